package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"gitlab.com/henri.philipps/diffdetect/service"
	"gitlab.com/henri.philipps/diffdetect/storage/memory"
	"golang.org/x/exp/slog"
)

type site struct {
	mu      sync.Mutex
	status  int
	content string
}

func (s *site) set(status int, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.content = status, content
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.WriteHeader(s.status)
	io.WriteString(w, s.content)
}

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := memory.New(logger)
	archive := service.NewArchive(db, db, service.WithLogger(logger))
	api := httptest.NewServer(MakeAPIHandler(service.NewResources(db, logger), archive, archive, logger))
	t.Cleanup(api.Close)

	return api
}

func do(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if want, got := "application/json; charset=utf-8", resp.Header.Get("Content-Type"); want != got {
		t.Fatalf("%s %s: Expected content type %q, got %q", method, url, want, got)
	}

	data := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatalf("%s %s: failed to decode response: %v", method, url, err)
	}
	return resp.StatusCode, data
}

func TestAPI(t *testing.T) {
	content := &site{status: http.StatusOK, content: "line one\nline two"}
	ts := httptest.NewServer(content)
	defer ts.Close()

	api := newTestAPI(t)

	code, data := do(t, http.MethodPost, api.URL+"/api/intervals", `{"interval": {"name": "hourly", "period": "1h"}}`)
	if want, got := http.StatusCreated, code; want != got {
		t.Fatalf("Expected status %d, got %d: %v", want, got, data)
	}
	ivID := data["interval"].(map[string]any)["id"].(float64)

	body := fmt.Sprintf(`{"resource": {"url": %q, "enabled": true, "interval_id": %d}}`, ts.URL, int64(ivID))
	code, data = do(t, http.MethodPost, api.URL+"/api/resources", body)
	if want, got := http.StatusCreated, code; want != got {
		t.Fatalf("Expected status %d, got %d: %v", want, got, data)
	}
	id := int64(data["resource"].(map[string]any)["id"].(float64))
	if want, got := "generic", data["resource"].(map[string]any)["type"]; want != got {
		t.Fatalf("Expected type %q, got %v", want, got)
	}

	code, data = do(t, http.MethodPost, api.URL+"/api/resources", body)
	if want, got := http.StatusConflict, code; want != got {
		t.Fatalf("Expected status %d for duplicate url, got %d: %v", want, got, data)
	}

	for _, c := range []string{"line one\nline two", "line one\nline 2"} {
		content.set(http.StatusOK, c)
		code, data = do(t, http.MethodPost, fmt.Sprintf("%s/api/resources/%d/fetch", api.URL, id), "")
		if want, got := http.StatusCreated, code; want != got {
			t.Fatalf("Expected status %d, got %d: %v", want, got, data)
		}
		if want, got := c, data["snapshot"].(map[string]any)["content"]; want != got {
			t.Fatalf("Expected content %q, got %v", want, got)
		}
	}

	code, data = do(t, http.MethodGet, fmt.Sprintf("%s/api/resources/%d/snapshots", api.URL, id), "")
	if want, got := http.StatusOK, code; want != got {
		t.Fatalf("Expected status %d, got %d: %v", want, got, data)
	}
	snapshots := data["snapshots"].([]any)
	if want, got := 2, len(snapshots); want != got {
		t.Fatalf("Expected %d snapshots, got %d", want, got)
	}
	newest := int64(snapshots[0].(map[string]any)["id"].(float64))
	oldest := int64(snapshots[1].(map[string]any)["id"].(float64))

	code, data = do(t, http.MethodGet, fmt.Sprintf("%s/api/resources/%d/selection", api.URL, id), "")
	if want, got := http.StatusOK, code; want != got {
		t.Fatalf("Expected status %d, got %d: %v", want, got, data)
	}
	if want, got := float64(oldest), data["before"]; want != got {
		t.Fatalf("Expected before %v, got %v", want, got)
	}
	if want, got := float64(newest), data["after"]; want != got {
		t.Fatalf("Expected after %v, got %v", want, got)
	}

	code, data = do(t, http.MethodGet, fmt.Sprintf("%s/api/resources/%d/diff?before=%d&after=%d", api.URL, id, oldest, newest), "")
	if want, got := http.StatusOK, code; want != got {
		t.Fatalf("Expected status %d, got %d: %v", want, got, data)
	}
	if want, got := false, data["diff"].(map[string]any)["identical"]; want != got {
		t.Fatalf("Expected identical %v, got %v", want, got)
	}

	code, data = do(t, http.MethodGet, fmt.Sprintf("%s/api/snapshots/%d", api.URL, oldest), "")
	if want, got := http.StatusOK, code; want != got {
		t.Fatalf("Expected status %d, got %d: %v", want, got, data)
	}
	if want, got := "line one\nline two", data["snapshot"].(map[string]any)["content"]; want != got {
		t.Fatalf("Expected content %q, got %v", want, got)
	}

	body = fmt.Sprintf(`{"resource": {"url": %q, "name": "renamed", "enabled": true}}`, ts.URL)
	code, data = do(t, http.MethodPut, fmt.Sprintf("%s/api/resources/%d", api.URL, id), body)
	if want, got := http.StatusOK, code; want != got {
		t.Fatalf("Expected status %d, got %d: %v", want, got, data)
	}
	if want, got := "renamed", data["resource"].(map[string]any)["name"]; want != got {
		t.Fatalf("Expected name %q, got %v", want, got)
	}

	code, data = do(t, http.MethodGet, api.URL+"/api/resources", "")
	if want, got := 1, len(data["resources"].([]any)); code != http.StatusOK || want != got {
		t.Fatalf("Expected %d resources, got %d (status %d)", want, got, code)
	}
	code, data = do(t, http.MethodGet, api.URL+"/api/intervals", "")
	if want, got := "1h0m0s", data["intervals"].([]any)[0].(map[string]any)["period"]; code != http.StatusOK || want != got {
		t.Fatalf("Expected period %q, got %v (status %d)", want, got, code)
	}
}

func TestAPI_PasswordNotEchoed(t *testing.T) {
	api := newTestAPI(t)

	body := `{"resource": {"url": "http://site.example", "http_auth_login": "user", "http_auth_password": "secret"}}`
	code, data := do(t, http.MethodPost, api.URL+"/api/resources", body)
	if want, got := http.StatusCreated, code; want != got {
		t.Fatalf("Expected status %d, got %d: %v", want, got, data)
	}
	r := data["resource"].(map[string]any)
	id := int64(r["id"].(float64))

	_, single := do(t, http.MethodGet, fmt.Sprintf("%s/api/resources/%d", api.URL, id), "")
	_, list := do(t, http.MethodGet, api.URL+"/api/resources", "")

	for name, res := range map[string]any{
		"add":  r,
		"get":  single["resource"],
		"list": list["resources"].([]any)[0],
	} {
		fields := res.(map[string]any)
		if want, got := "user", fields["http_auth_login"]; want != got {
			t.Fatalf("%s: Expected login %q, got %v", name, want, got)
		}
		if pw, ok := fields["http_auth_password"]; ok {
			t.Fatalf("%s: Expected no password in response, got %v", name, pw)
		}
	}
}

func TestAPI_Errors(t *testing.T) {
	content := &site{status: http.StatusInternalServerError, content: "oops"}
	ts := httptest.NewServer(content)
	defer ts.Close()

	api := newTestAPI(t)

	_, data := do(t, http.MethodPost, api.URL+"/api/resources", fmt.Sprintf(`{"resource": {"url": %q, "enabled": true}}`, ts.URL))
	id := int64(data["resource"].(map[string]any)["id"].(float64))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{name: "unknown resource", method: http.MethodGet, path: "/api/resources/4711", code: http.StatusNotFound},
		{name: "invalid id", method: http.MethodGet, path: "/api/resources/abc", code: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/api/resources", body: `{"resource": {"url": "http://x.example"}, "foo": 1}`, code: http.StatusBadRequest},
		{name: "invalid url", method: http.MethodPost, path: "/api/resources", body: `{"resource": {"url": "ftp://x.example"}}`, code: http.StatusBadRequest},
		{name: "unknown interval", method: http.MethodPost, path: "/api/resources", body: `{"resource": {"url": "http://x.example", "interval_id": 9}}`, code: http.StatusBadRequest},
		{name: "invalid period", method: http.MethodPost, path: "/api/intervals", body: `{"interval": {"name": "x", "period": "soon"}}`, code: http.StatusBadRequest},
		{name: "bad status", method: http.MethodPost, path: fmt.Sprintf("/api/resources/%d/fetch", id), code: http.StatusBadGateway},
		{name: "no snapshots", method: http.MethodGet, path: fmt.Sprintf("/api/resources/%d/selection", id), code: http.StatusNotFound},
		{name: "equal selection", method: http.MethodGet, path: fmt.Sprintf("/api/resources/%d/diff?before=1&after=1", id), code: http.StatusBadRequest},
		{name: "unknown snapshot", method: http.MethodGet, path: "/api/snapshots/4711", code: http.StatusNotFound},
	}

	for _, tt := range tests {
		code, data := do(t, tt.method, api.URL+tt.path, tt.body)
		if want, got := tt.code, code; want != got {
			t.Fatalf("%s: Expected status %d, got %d: %v", tt.name, want, got, data)
		}
		if _, ok := data["error"]; !ok {
			t.Fatalf("%s: Expected error in response, got %v", tt.name, data)
		}
	}
}

func TestDiffPage(t *testing.T) {
	content := &site{status: http.StatusOK, content: "<b>old</b>\nsame"}
	ts := httptest.NewServer(content)
	defer ts.Close()

	api := newTestAPI(t)

	_, data := do(t, http.MethodPost, api.URL+"/api/resources", fmt.Sprintf(`{"resource": {"url": %q, "enabled": true}}`, ts.URL))
	id := int64(data["resource"].(map[string]any)["id"].(float64))

	for _, c := range []string{"<b>old</b>\nsame", "<b>new</b>\nsame"} {
		content.set(http.StatusOK, c)
		if code, data := do(t, http.MethodPost, fmt.Sprintf("%s/api/resources/%d/fetch", api.URL, id), ""); code != http.StatusCreated {
			t.Fatalf("fetch failed with status %d: %v", code, data)
		}
	}

	resp, err := http.Get(fmt.Sprintf("%s/diff/%d", api.URL, id))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if want, got := http.StatusOK, resp.StatusCode; want != got {
		t.Fatalf("Expected status %d, got %d", want, got)
	}
	if want, got := "text/html; charset=utf-8", resp.Header.Get("Content-Type"); want != got {
		t.Fatalf("Expected content type %q, got %q", want, got)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	// default selection is comparing the previous with the newest snapshot
	if want, got := "<b>old</b>", doc.Find("tbody.change-del td.old del").Text(); want != got {
		t.Fatalf("Expected deleted line %q, got %q", want, got)
	}
	if want, got := "<b>new</b>", doc.Find("tbody.change-ins td.new ins").Text(); want != got {
		t.Fatalf("Expected inserted line %q, got %q", want, got)
	}
	if doc.Find("td b").Length() != 0 {
		t.Fatalf("Expected snapshot markup to be escaped")
	}
}

func TestDiffPage_Error(t *testing.T) {
	api := newTestAPI(t)

	resp, err := http.Get(api.URL + "/diff/4711")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if want, got := http.StatusNotFound, resp.StatusCode; want != got {
		t.Fatalf("Expected status %d, got %d", want, got)
	}

	body, _ := io.ReadAll(resp.Body)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Find("p.error").Length() != 1 {
		t.Fatalf("Expected error message on page, got %s", body)
	}
}
