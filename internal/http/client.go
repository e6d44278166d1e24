package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrTransport is returned when no HTTP response could be obtained.
var ErrTransport = errors.New("http: transport failure")

// ErrBodyTooLarge is returned when a 2xx body exceeds Options.MaxBodySize.
var ErrBodyTooLarge = errors.New("http: response body too large")

// DefaultUserAgent identifies the crawler to the servers it fetches from.
const DefaultUserAgent = "itchy-crawler (+https://github.com/extua/itchy-crawler)"

// Options configures the HTTP client.
type Options struct {
	// UserAgent is sent with every request.
	// Default: DefaultUserAgent
	UserAgent string

	// Timeout for individual requests, including reading the body.
	// Default: 30s
	Timeout time.Duration

	// MaxBodySize caps the number of bytes read from a response body. A
	// larger 2xx body fails with ErrBodyTooLarge; other bodies are cut off.
	// Default: 64 MiB
	MaxBodySize int64
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		UserAgent:   DefaultUserAgent,
		Timeout:     30 * time.Second,
		MaxBodySize: 64 << 20,
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RetryAfter returns the raw Retry-After header value and whether it was set.
func (r *Response) RetryAfter() (string, bool) {
	values, ok := r.Header[http.CanonicalHeaderKey("Retry-After")]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Client performs single GET requests.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	defaults := DefaultOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaults.MaxBodySize
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// Send performs one GET request and reads the whole body.
//
// Any HTTP status is returned as a Response with a nil error. An error is
// returned only when no response was obtained or its body could not be read;
// such errors wrap ErrTransport, or the context error if ctx is done. A 2xx
// body over MaxBodySize yields the Response without a body and an error
// wrapping ErrBodyTooLarge.
func (c *Client) Send(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodySize+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}
	if int64(len(body)) > c.opts.MaxBodySize {
		if IsSuccess(resp.StatusCode) {
			return out, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.opts.MaxBodySize)
		}
		body = body[:c.opts.MaxBodySize]
	}
	out.Body = body
	return out, nil
}

// IsSuccess reports whether code is a 2xx status.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}

// ParseRetryAfter parses a delay-seconds Retry-After value. Signed values and
// HTTP-date values are not accepted.
func ParseRetryAfter(value string) (int, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 31)
	if err != nil {
		return 0, fmt.Errorf("invalid Retry-After value %q: %w", value, err)
	}
	return int(n), nil
}
