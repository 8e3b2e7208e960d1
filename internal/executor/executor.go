package executor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/studiowebux/restsh/internal/clierr"
	"github.com/studiowebux/restsh/internal/pathtool"
	"github.com/studiowebux/restsh/internal/types"
)

const (
	// MaxAttempts is the number of times a request is sent before the
	// engine gives up with a connection error.
	MaxAttempts = 3

	// DefaultUserAgent identifies the client to the server.
	DefaultUserAgent = "restsh/0.1"
)

// Engine executes API calls against one endpoint over a persistent
// connection. Execute is serialized, so an Engine may be shared.
type Engine struct {
	mu          sync.Mutex
	endpoint    types.Endpoint
	credentials *types.Credentials
	session     *Session
	logger      *zap.Logger
	userAgent   string
	insecure    bool
	newTripper  func() http.RoundTripper
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for request traces.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(agent string) Option {
	return func(e *Engine) {
		if agent != "" {
			e.userAgent = agent
		}
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify(insecure bool) Option {
	return func(e *Engine) { e.insecure = insecure }
}

// WithTransportFactory replaces the function that opens a fresh connection
// handle. The engine calls it at start and after every non-transient
// transport failure.
func WithTransportFactory(factory func() http.RoundTripper) Option {
	return func(e *Engine) { e.newTripper = factory }
}

// New creates an engine for endpoint. Nil credentials mean anonymous calls.
func New(endpoint types.Endpoint, credentials *types.Credentials, opts ...Option) (*Engine, error) {
	if err := credentials.Validate(); err != nil {
		return nil, err
	}
	if endpoint.Hostname == "" {
		return nil, clierr.Configuration("endpoint has no host")
	}

	e := &Engine{
		endpoint:    endpoint,
		credentials: credentials,
		logger:      zap.NewNop(),
		userAgent:   DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.newTripper == nil {
		e.newTripper = e.buildTransport
	}
	e.session = newSession(e.newTripper)
	return e, nil
}

// Endpoint returns the endpoint the engine talks to.
func (e *Engine) Endpoint() types.Endpoint { return e.endpoint }

// Cookies returns a copy of the session cookie set.
func (e *Engine) Cookies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Cookies()
}

// SetCookies replaces the session cookie set.
func (e *Engine) SetCookies(cookies []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.replaceCookies(cookies)
}

// Close drops the underlying connection.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.disconnect()
}

// Execute sends call and classifies the response. A classified failure is
// reported through ApiResult.Failure; the returned error is reserved for
// fatal outcomes (connection or decode failures) and for calls that could
// not be built.
func (e *Engine) Execute(ctx context.Context, call *types.ApiCall) (*types.ApiResult, error) {
	if call == nil {
		panic("executor: Execute called with a nil call")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	built, err := e.buildRequest(call)
	if err != nil {
		return nil, err
	}
	apiPath := pathtool.Normalize(call.Path, true)
	trace := e.tracer(call.Options.Verbose)

	trace("request",
		zap.String("method", built.method),
		zap.String("url", built.url),
		zap.ByteString("body", built.body),
		zap.Any("headers", built.header),
		zap.Strings("cookies", e.session.cookies),
	)

	var (
		resp    *response
		lastErr error
	)
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		resp, lastErr = e.send(ctx, built)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, clierr.Connection("request to %q cancelled: %w", apiPath, ctx.Err())
		}
		if isTransient(lastErr) {
			e.logger.Debug("connection lost, reconnecting",
				zap.Int("attempt", attempt), zap.Error(lastErr))
			e.session.reconnect()
		} else {
			e.logger.Debug("transport failure, opening a fresh connection",
				zap.Int("attempt", attempt), zap.Error(lastErr))
			e.session.reset()
		}
	}
	if lastErr != nil {
		return nil, clierr.Connection("HTTP request to %q failed after %d attempts: %w",
			apiPath, MaxAttempts, lastErr)
	}

	if cookies := parseSetCookies(resp.header); len(cookies) > 0 {
		e.session.replaceCookies(cookies)
		trace("response cookies", zap.Strings("cookies", cookies))
	}
	trace("response",
		zap.Int("status", resp.status),
		zap.String("reason", resp.reason),
		zap.Any("headers", resp.header),
		zap.String("duration", FormatDuration(resp.duration.Milliseconds())),
		zap.String("size", FormatSize(len(resp.body))),
	)

	return classify(apiPath, call.Options, resp)
}

// response is the part of an HTTP response the classifier needs. The body
// is fully read before the connection is reused.
type response struct {
	status   int
	reason   string
	header   http.Header
	body     []byte
	duration time.Duration
}

func (e *Engine) send(ctx context.Context, built *builtRequest) (*response, error) {
	req, err := built.newHTTPRequest(ctx)
	if err != nil {
		return nil, err
	}
	for _, cookie := range e.session.cookies {
		req.Header.Add("Cookie", cookie)
	}

	start := time.Now()
	httpResp, err := e.session.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &response{
		status:   httpResp.StatusCode,
		reason:   reasonPhrase(httpResp),
		header:   httpResp.Header,
		body:     body,
		duration: time.Since(start),
	}, nil
}

func (e *Engine) tracer(verbose bool) func(string, ...zap.Field) {
	if verbose {
		return e.logger.Info
	}
	return e.logger.Debug
}

// buildTransport opens a connection handle limited to a single HTTP/1.1
// connection to the endpoint.
func (e *Engine) buildTransport() http.RoundTripper {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     1,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: e.insecure},
		// A non-nil empty map disables HTTP/2.
		TLSNextProto: map[string]func(string, *tls.Conn) http.RoundTripper{},
	}
}

// isTransient reports whether err means the peer dropped a connection that
// is worth re-dialing.
func isTransient(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}

func reasonPhrase(resp *http.Response) string {
	prefix := fmt.Sprintf("%d ", resp.StatusCode)
	if len(resp.Status) > len(prefix) && resp.Status[:len(prefix)] == prefix {
		return resp.Status[len(prefix):]
	}
	return http.StatusText(resp.StatusCode)
}

// FormatDuration formats duration in milliseconds to human-readable string
func FormatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	seconds := float64(ms) / 1000.0
	return fmt.Sprintf("%.2fs", seconds)
}

// FormatSize formats byte size to human-readable string
func FormatSize(bytes int) string {
	if bytes < 1024 {
		return fmt.Sprintf("%dB", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.2fKB", float64(bytes)/1024.0)
	}
	return fmt.Sprintf("%.2fMB", float64(bytes)/(1024.0*1024.0))
}

// IsSuccessStatus returns true if status code is 2xx
func IsSuccessStatus(status int) bool {
	return status >= 200 && status < 300
}
