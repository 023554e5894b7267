package fetch

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"gitlab.com/henri.philipps/diffdetect"
	"golang.org/x/exp/slog"
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultMaxRedirects = 5
	DefaultUserAgent    = "diffdetect/1.0"
)

// Result is holding the decoded body and metadata of a fetched resource.
type Result struct {
	URL        string
	StatusCode int
	Header     http.Header
	Content    []byte
	Requests   int
	FetchedAt  time.Time
}

// Fetcher is performing a single GET of a resource.
type Fetcher struct {
	client       *http.Client
	timeout      time.Duration
	maxRedirects int
	maxBodySize  int64
	userAgent    string
	logger       *slog.Logger
}

// Opt is a functional option for a Fetcher.
type Opt func(*Fetcher)

// NewFetcher is returning a new Fetcher.
func NewFetcher(opts ...Opt) *Fetcher {
	f := &Fetcher{
		client:       http.DefaultClient,
		timeout:      DefaultTimeout,
		maxRedirects: DefaultMaxRedirects,
		userAgent:    DefaultUserAgent,
		logger:       slog.Default(),
	}

	for _, o := range opts {
		o(f)
	}

	return f
}

// WithClient configures the http client used as base for requests.
// Its CheckRedirect func is replaced to enforce the redirect limit.
func WithClient(client *http.Client) Opt {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithTimeout sets the timeout of a whole fetch, including a cookie replay
// and reading the body.
func WithTimeout(timeout time.Duration) Opt {
	return func(f *Fetcher) {
		f.timeout = timeout
	}
}

// WithMaxRedirects sets the number of redirects which are followed.
func WithMaxRedirects(n int) Opt {
	return func(f *Fetcher) {
		f.maxRedirects = n
	}
}

// WithMaxBodySize limits the number of decoded bytes of the body. Larger bodies
// fail the fetch instead of being truncated. 0 means no limit.
func WithMaxBodySize(size int64) Opt {
	return func(f *Fetcher) {
		f.maxBodySize = size
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Opt {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithLogger configures the Logger.
func WithLogger(logger *slog.Logger) Opt {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// Fetch is returning the decoded content of the given resource.
//
// If the first response is setting a cookie, the request is sent once more
// with that cookie. Responses with a non-2xx status code are returned as
// *diffdetect.StatusError.
func (f *Fetcher) Fetch(ctx context.Context, res *diffdetect.Resource) (*Result, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	client := f.newClient()

	resp, err := f.get(ctx, client, res, "")
	if err != nil {
		return nil, err
	}
	requests := 1

	if setCookie := resp.Header.Get("Set-Cookie"); setCookie != "" {
		cookie, _, _ := strings.Cut(setCookie, ";")
		f.logger.Debug("replaying request with cookie", "url", res.URL, "resource", res.ID)

		resp.Body.Close()
		resp, err = f.get(ctx, client, res, strings.TrimSpace(cookie))
		if err != nil {
			return nil, err
		}
		requests++
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &diffdetect.StatusError{StatusCode: resp.StatusCode, URL: resp.Request.URL.String()}
	}

	content, err := f.readBody(resp)
	if err != nil {
		return nil, classify(res.URL, err)
	}

	return &Result{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Content:    content,
		Requests:   requests,
		FetchedAt:  time.Now(),
	}, nil
}

// newClient is returning a shallow copy of the base client enforcing the redirect limit.
func (f *Fetcher) newClient() *http.Client {
	client := *f.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > f.maxRedirects {
			return fmt.Errorf("stopped after %d redirects: %w", f.maxRedirects, diffdetect.ErrTooManyRedirects)
		}
		return nil
	}
	return &client
}

// get is sending one GET request.
func (f *Fetcher) get(ctx context.Context, client *http.Client, res *diffdetect.Resource, cookie string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %v: %w", res.URL, err, diffdetect.ErrConfig)
	}

	req.Header.Set("User-Agent", f.userAgent)
	// setting Accept-Encoding ourselves disables the transparent gzip
	// handling of the transport, decoding happens in readBody
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	if login, password, ok := res.BasicAuth(); ok {
		req.SetBasicAuth(login, password)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(res.URL, err)
	}
	return resp, nil
}

// readBody is reading the whole body and decoding it according to its Content-Encoding.
func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	body, err := decoder(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if f.maxBodySize <= 0 {
		return io.ReadAll(body)
	}

	content, err := io.ReadAll(io.LimitReader(body, f.maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > f.maxBodySize {
		return nil, fmt.Errorf("body larger than %d bytes", f.maxBodySize)
	}
	return content, nil
}

func decoder(encoding string, body io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.NopCloser(body), nil
	case "gzip", "x-gzip":
		return gzip.NewReader(body)
	case "br":
		return io.NopCloser(brotli.NewReader(body)), nil
	case "deflate":
		// servers disagree whether deflate means zlib or raw deflate
		br := bufio.NewReader(body)
		header, err := br.Peek(2)
		if err == nil && isZlibHeader(header) {
			return zlib.NewReader(br)
		}
		return flate.NewReader(br), nil
	}
	return nil, fmt.Errorf("unsupported content encoding %q", encoding)
}

func isZlibHeader(b []byte) bool {
	return b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

// classify is mapping transport errors to the error kinds of the diffdetect package.
func classify(url string, err error) error {
	var netErr net.Error

	switch {
	case errors.Is(err, diffdetect.ErrTooManyRedirects):
		return fmt.Errorf("GET %s: %w", url, err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("GET %s: %w: %w", url, diffdetect.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("GET %s: %w", url, err)
	}
	return fmt.Errorf("GET %s: %w: %w", url, diffdetect.ErrNetwork, err)
}
