package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"gitlab.com/henri.philipps/diffdetect"
)

func TestFetch(t *testing.T) {

	urlStr1 := "/some/unknown/site"
	resp1 := "Site not found!"
	urlStr2 := "/site/static"
	resp2 := "Static Content"
	urlStr3 := "/site/broken"

	tests := []struct {
		name     string
		urlStr   string
		err      error
		response string
	}{
		{name: "not found", urlStr: urlStr1, err: diffdetect.ErrStatus},
		{name: "static site", urlStr: urlStr2, err: nil, response: resp2},
		{name: "server error", urlStr: urlStr3, err: diffdetect.ErrStatus},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case urlStr1:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(resp1))
		case urlStr2:
			w.Write([]byte(resp2))
		case urlStr3:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(fmt.Sprintf("Some other content. Request path was %s", r.URL.Path)))
		}
	}))
	defer server.Close()

	f := NewFetcher()

	for _, tc := range tests {
		res, err := f.Fetch(context.Background(), &diffdetect.Resource{ID: 1, URL: server.URL + tc.urlStr})

		if want, got := tc.err, err; !errors.Is(got, want) {
			t.Fatalf("%s: Expected error %v, got err: %v", tc.name, want, got)
		}

		if err == nil {
			if want, got := tc.response, string(res.Content); want != got {
				t.Fatalf("%s: Expected content %s, got %s", tc.name, want, got)
			}
			if want, got := 1, res.Requests; want != got {
				t.Fatalf("%s: Expected %d requests, got %d", tc.name, want, got)
			}
		}
	}

	var statusErr *diffdetect.StatusError
	_, err := f.Fetch(context.Background(), &diffdetect.Resource{ID: 1, URL: server.URL + urlStr1})
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected *StatusError, got %T", err)
	}
	if want, got := http.StatusNotFound, statusErr.StatusCode; want != got {
		t.Fatalf("Expected status code %d, got %d", want, got)
	}
}

func TestFetch_ConfigError(t *testing.T) {
	f := NewFetcher()

	for _, u := range []string{"", "not a url", "ftp://example.test/file"} {
		_, err := f.Fetch(context.Background(), &diffdetect.Resource{ID: 1, URL: u})
		if !errors.Is(err, diffdetect.ErrConfig) {
			t.Fatalf("Fetch(%q): expected ErrConfig, got %v", u, err)
		}
	}
}

func TestFetch_CookieReplay(t *testing.T) {
	var requests atomic.Int32
	var mu sync.Mutex
	var cookies []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		mu.Lock()
		cookies = append(cookies, r.Header.Get("Cookie"))
		mu.Unlock()

		// keep setting cookies, the fetcher must not chain them
		w.Header().Set("Set-Cookie", fmt.Sprintf("sid=abc%d; Path=/", requests.Load()-1))
		if r.Header.Get("Cookie") == "" {
			w.Write([]byte("gate"))
			return
		}
		w.Write([]byte("content behind gate"))
	}))
	defer server.Close()

	res, err := NewFetcher().Fetch(context.Background(), &diffdetect.Resource{ID: 1, URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}

	if want, got := int32(2), requests.Load(); want != got {
		t.Fatalf("Expected %d requests, got %d", want, got)
	}
	if want, got := 2, res.Requests; want != got {
		t.Fatalf("Expected Result.Requests %d, got %d", want, got)
	}

	mu.Lock()
	defer mu.Unlock()
	if want, got := "", cookies[0]; want != got {
		t.Fatalf("Expected no cookie on first request, got %q", got)
	}
	if want, got := "sid=abc0", cookies[1]; want != got {
		t.Fatalf("Expected cookie %q on second request, got %q", want, got)
	}
	if want, got := "content behind gate", string(res.Content); want != got {
		t.Fatalf("Expected content %q, got %q", want, got)
	}
}

func TestFetch_CookieWithoutAttributes(t *testing.T) {
	var got string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := r.Header.Get("Cookie"); c != "" {
			got = c
			return
		}
		w.Header().Set("Set-Cookie", "token=xyz")
	}))
	defer server.Close()

	if _, err := NewFetcher().Fetch(context.Background(), &diffdetect.Resource{ID: 1, URL: server.URL}); err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if want := "token=xyz"; want != got {
		t.Fatalf("Expected cookie %q, got %q", want, got)
	}
}

func TestFetch_BasicAuth(t *testing.T) {
	tests := []struct {
		name     string
		login    string
		password string
		wantAuth bool
	}{
		{name: "login and password", login: "user", password: "secret", wantAuth: true},
		{name: "login only", login: "user"},
		{name: "password only", password: "secret"},
		{name: "no credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var header string
			var user, pass string
			var ok bool

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				header = r.Header.Get("Authorization")
				user, pass, ok = r.BasicAuth()
			}))
			defer server.Close()

			res := &diffdetect.Resource{ID: 1, URL: server.URL, HTTPAuthLogin: tt.login, HTTPAuthPassword: tt.password}
			if _, err := NewFetcher().Fetch(context.Background(), res); err != nil {
				t.Fatalf("Fetch() failed: %v", err)
			}

			if want, got := tt.wantAuth, header != ""; want != got {
				t.Fatalf("Expected Authorization header: %v, got %q", want, header)
			}
			if tt.wantAuth && (!ok || user != tt.login || pass != tt.password) {
				t.Fatalf("Expected credentials %s/%s, got %s/%s", tt.login, tt.password, user, pass)
			}
		})
	}
}

func TestFetch_Redirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/hop/", func(w http.ResponseWriter, r *http.Request) {
		var n int
		fmt.Sscanf(r.URL.Path, "/hop/%d", &n)
		if n == 0 {
			w.Write([]byte("arrived"))
			return
		}
		http.Redirect(w, r, fmt.Sprintf("/hop/%d", n-1), http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tests := []struct {
		name    string
		hops    int
		wantErr error
	}{
		{name: "no redirect", hops: 0},
		{name: "within limit", hops: 3},
		{name: "at limit", hops: 5},
		{name: "over limit", hops: 6, wantErr: diffdetect.ErrTooManyRedirects},
	}

	f := NewFetcher(WithMaxRedirects(5))

	for _, tt := range tests {
		res, err := f.Fetch(context.Background(), &diffdetect.Resource{ID: 1, URL: fmt.Sprintf("%s/hop/%d", server.URL, tt.hops)})
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("%s: Expected error %v, got %v", tt.name, tt.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: Fetch() failed: %v", tt.name, err)
		}
		if want, got := "arrived", string(res.Content); want != got {
			t.Fatalf("%s: Expected content %q, got %q", tt.name, want, got)
		}
		if want, got := server.URL+"/hop/0", res.URL; want != got {
			t.Fatalf("%s: Expected final url %s, got %s", tt.name, want, got)
		}
	}
}

func TestFetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		w.Write([]byte("too late"))
	}))
	defer server.Close()

	_, err := NewFetcher(WithTimeout(50*time.Millisecond)).Fetch(context.Background(), &diffdetect.Resource{ID: 1, URL: server.URL})
	if !errors.Is(err, diffdetect.ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
}

func TestFetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewFetcher().Fetch(context.Background(), &diffdetect.Resource{ID: 1, URL: url})
	if !errors.Is(err, diffdetect.ErrNetwork) {
		t.Fatalf("Expected ErrNetwork, got %v", err)
	}
}

func TestFetch_Compression(t *testing.T) {
	content := []byte("<html><body>compressed content</body></html>")

	compress := map[string]func([]byte) []byte{
		"gzip": func(b []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			w.Write(b)
			w.Close()
			return buf.Bytes()
		},
		"deflate": func(b []byte) []byte {
			var buf bytes.Buffer
			w := zlib.NewWriter(&buf)
			w.Write(b)
			w.Close()
			return buf.Bytes()
		},
		"raw-deflate": func(b []byte) []byte {
			var buf bytes.Buffer
			w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
			w.Write(b)
			w.Close()
			return buf.Bytes()
		},
		"br": func(b []byte) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			w.Write(b)
			w.Close()
			return buf.Bytes()
		},
	}

	var acceptEncoding string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acceptEncoding = r.Header.Get("Accept-Encoding")
		encoding := r.URL.Query().Get("enc")
		fn, ok := compress[encoding]
		if !ok {
			w.Write(content)
			return
		}
		if encoding == "raw-deflate" {
			encoding = "deflate"
		}
		w.Header().Set("Content-Encoding", encoding)
		w.Write(fn(content))
	}))
	defer server.Close()

	f := NewFetcher()

	for _, enc := range []string{"identity", "gzip", "deflate", "raw-deflate", "br"} {
		res, err := f.Fetch(context.Background(), &diffdetect.Resource{ID: 1, URL: server.URL + "/?enc=" + enc})
		if err != nil {
			t.Fatalf("%s: Fetch() failed: %v", enc, err)
		}
		if want, got := string(content), string(res.Content); want != got {
			t.Fatalf("%s: Expected content %q, got %q", enc, want, got)
		}
		if want, got := "gzip, deflate, br", acceptEncoding; want != got {
			t.Fatalf("%s: Expected Accept-Encoding %q, got %q", enc, want, got)
		}
	}
}

func TestFetch_MaxBodySize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer server.Close()

	r := &diffdetect.Resource{ID: 1, URL: server.URL}

	res, err := NewFetcher(WithMaxBodySize(10)).Fetch(context.Background(), r)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if want, got := "0123456789", string(res.Content); want != got {
		t.Fatalf("Expected content %q, got %q", want, got)
	}

	res, err = NewFetcher(WithMaxBodySize(4)).Fetch(context.Background(), r)
	if !errors.Is(err, diffdetect.ErrNetwork) {
		t.Fatalf("Expected ErrNetwork for oversized body, got %v", err)
	}
	if res != nil {
		t.Fatalf("Expected no truncated result, got %q", res.Content)
	}
}

func TestFetch_TimeoutCoversCookieReplay(t *testing.T) {
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		if r.Header.Get("Cookie") == "" {
			w.Header().Set("Set-Cookie", "session=1; Path=/")
		}
		w.Write([]byte("content"))
	}))
	defer server.Close()

	// each request fits into the timeout, both together don't
	_, err := NewFetcher(WithTimeout(300*time.Millisecond)).Fetch(context.Background(), &diffdetect.Resource{ID: 1, URL: server.URL})
	if !errors.Is(err, diffdetect.ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if want, got := int32(2), requests.Load(); want != got {
		t.Fatalf("Expected %d requests, got %d", want, got)
	}
}
