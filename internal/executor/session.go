package executor

import (
	"net/http"
	"strings"
)

// Session is the connection state carried between calls: the cookie set
// replayed on every request and the transport owning the single connection.
type Session struct {
	cookies      []string
	transport    http.RoundTripper
	newTransport func() http.RoundTripper
	httpClient   *http.Client
}

func newSession(factory func() http.RoundTripper) *Session {
	s := &Session{newTransport: factory}
	s.open()
	return s
}

// Cookies returns a copy of the cookie set.
func (s *Session) Cookies() []string {
	out := make([]string, len(s.cookies))
	copy(out, s.cookies)
	return out
}

func (s *Session) replaceCookies(cookies []string) {
	s.cookies = make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c = strings.TrimSpace(c); c != "" {
			s.cookies = append(s.cookies, c)
		}
	}
}

func (s *Session) open() {
	s.transport = s.newTransport()
	s.httpClient = &http.Client{
		Transport: s.transport,
		// Redirects are reported to the caller like any other status.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *Session) client() *http.Client { return s.httpClient }

// reconnect drops the idle connection so the next request dials again.
func (s *Session) reconnect() {
	closeIdle(s.transport)
}

// reset discards the transport and opens a fresh one.
func (s *Session) reset() {
	s.disconnect()
	s.open()
}

func (s *Session) disconnect() {
	closeIdle(s.transport)
}

func closeIdle(rt http.RoundTripper) {
	if c, ok := rt.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// parseSetCookies keeps the name=value part of every Set-Cookie header.
func parseSetCookies(header http.Header) []string {
	var cookies []string
	for _, line := range header.Values("Set-Cookie") {
		value, _, _ := strings.Cut(line, ";")
		if value = strings.TrimSpace(value); value != "" {
			cookies = append(cookies, value)
		}
	}
	return cookies
}
