package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gitlab.com/henri.philipps/diffdetect"
	"gitlab.com/henri.philipps/diffdetect/endpoint"
)

// createJSONHandler is a generic HandlerFunc factory.
func createJSONHandler[Req endpoint.Requester, Resp endpoint.Responder](ep endpoint.Endpoint[Req, Resp]) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		request, err := decodeHTTPJSONRequest[Req](ctx, req)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Errorf("request decoder: %w", err))
			return
		}

		response, err := ep(ctx, request)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}

		if err := encodeHTTPJSONResponse(ctx, w, response); err != nil {
			panic(err)
		}
	}
}

// decodeHTTPJSONRequest is a generic decoder for JSON HTTP requests. An empty
// body is allowed, path and query parameters are bound afterwards for requests
// implementing endpoint.ParamBinder.
func decodeHTTPJSONRequest[Req endpoint.Requester](_ context.Context, r *http.Request) (Req, error) {
	var req Req

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return req, err
	}
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return req, err
		}
	}

	if binder, ok := any(&req).(endpoint.ParamBinder); ok {
		if err := binder.BindParams(paramFunc(r)); err != nil {
			return req, err
		}
	}

	return req, nil
}

// paramFunc is looking up URL parameters first and falls back to the query.
func paramFunc(r *http.Request) func(string) string {
	return func(name string) string {
		if v := chi.URLParam(r, name); v != "" {
			return v
		}
		return r.URL.Query().Get(name)
	}
}

// statusCode is mapping domain errors to http status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, diffdetect.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, diffdetect.ErrAlreadyExists), errors.Is(err, diffdetect.ErrInProgress):
		return http.StatusConflict
	case errors.Is(err, diffdetect.ErrConfig), errors.Is(err, diffdetect.ErrDiff):
		return http.StatusBadRequest
	case errors.Is(err, diffdetect.ErrFeedParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, diffdetect.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, diffdetect.ErrNetwork), errors.Is(err, diffdetect.ErrTooManyRedirects),
		errors.Is(err, diffdetect.ErrStatus):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func writeJSONError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(errResponse{Error: err.Error()}); err != nil {
		panic(err)
	}
}

// encodeHTTPJSONResponse is a generic response encoder. It is using Failed() to
// determine how to encode domain-specific errors and the StatusCode() to create
// the right http response code.
func encodeHTTPJSONResponse[Resp endpoint.Responder](_ context.Context, w http.ResponseWriter, response Resp) error {
	if err := response.Failed(); err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(statusCode(err))
		return json.NewEncoder(w).Encode(errResponse{Error: err.Error()})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(response.StatusCode())
	if response.StatusCode() != http.StatusNoContent {
		return json.NewEncoder(w).Encode(response)
	}
	return nil
}
