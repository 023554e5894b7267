package endpoint

import (
	"context"
	"fmt"
	"strconv"
)

// Endpoint is the fundamental building block of servers and clients.
// It represents a single RPC method.
type Endpoint[Req Requester, Resp Responder] func(ctx context.Context, request Req) (response Resp, err error)

// Requester is an interface helpful for decoders and to enrich endpoint middlewares with information.
type Requester interface {
	Name() string
}

// Responder is an interface helpful for encoders and to enrich endpoint middlewares with information.
type Responder interface {
	Failed() error
	StatusCode() int
}

// ParamBinder is implemented by requests taking values from the path or query
// of a request. param returns an empty string for missing parameters.
type ParamBinder interface {
	BindParams(param func(name string) string) error
}

// idParam is parsing a positive id. Missing parameters are returned as 0 if not required.
func idParam(param func(string) string, name string, required bool) (int64, error) {
	v := param(name)
	if v == "" {
		if required {
			return 0, fmt.Errorf("parameter %s missing", name)
		}
		return 0, nil
	}

	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("parameter %s: invalid id %q", name, v)
	}
	return id, nil
}
