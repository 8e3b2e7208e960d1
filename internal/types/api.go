package types

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/studiowebux/restsh/internal/clierr"
	"github.com/studiowebux/restsh/internal/params"
	"github.com/studiowebux/restsh/internal/pathtool"
)

// HTTP verbs understood by the shell. EXEC is the legacy form-post call.
const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodPatch  = "PATCH"
	MethodDelete = "DELETE"
	MethodExec   = "EXEC"
)

// Methods lists every verb accepted as the first word of an API command.
var Methods = []string{MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete, MethodExec}

// IsMethod reports whether word (any case) names a supported verb.
func IsMethod(word string) bool {
	upper := strings.ToUpper(word)
	for _, m := range Methods {
		if m == upper {
			return true
		}
	}
	return false
}

const (
	defaultHTTPSPort = 443
	defaultHTTPPort  = 80
	maxPort          = 65535
)

var schemePattern = regexp.MustCompile(`^\w+://`)

// Endpoint is the single host an engine talks to. BasePath always begins
// and ends with a slash.
type Endpoint struct {
	Hostname string `json:"hostname" yaml:"hostname"`
	Port     int    `json:"port" yaml:"port"`
	BasePath string `json:"basePath" yaml:"basePath"`
	UseTLS   bool   `json:"useTLS" yaml:"useTLS"`
}

// ParseEndpoint derives an Endpoint from a service URL such as
// "https://api.example.com:8443/v1". A bare host implies https.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, clierr.Configuration("invalid API service URL: %q", raw)
	}

	ep := Endpoint{UseTLS: true}
	rest := raw
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "http://"):
		ep.UseTLS = false
		rest = raw[len("http://"):]
	case strings.HasPrefix(lower, "https://"):
		rest = raw[len("https://"):]
	case schemePattern.MatchString(raw):
		return Endpoint{}, clierr.Configuration("only HTTP and HTTPS are supported protocols: %q", raw)
	}

	hostport, path, _ := strings.Cut(rest, "/")
	host, portText, err := splitHostPort(hostport)
	if err != nil {
		return Endpoint{}, err
	}
	ep.Port = defaultHTTPPort
	if ep.UseTLS {
		ep.Port = defaultHTTPSPort
	}
	if portText != "" || strings.HasSuffix(hostport, ":") {
		port, err := strconv.Atoi(portText)
		if err != nil {
			return Endpoint{}, clierr.Configuration("invalid API service port: %q", portText)
		}
		if port < 0 || port > maxPort {
			return Endpoint{}, clierr.Configuration("invalid API service port: %d", port)
		}
		ep.Port = port
	}
	if host == "" {
		return Endpoint{}, clierr.Configuration("invalid API service URL: %q (missing host)", raw)
	}
	ep.Hostname = host

	ep.BasePath = pathtool.Normalize(path, true)
	if ep.BasePath != pathtool.Root {
		ep.BasePath += "/"
	}
	return ep, nil
}

// splitHostPort separates the optional port from hostport. IPv6 literals
// must be bracketed, as in "[::1]:8080"; the brackets are not part of host.
func splitHostPort(hostport string) (host, port string, err error) {
	if strings.HasPrefix(hostport, "[") {
		end := strings.Index(hostport, "]")
		if end < 0 {
			return "", "", clierr.Configuration("invalid API service host: %q (missing ])", hostport)
		}
		host, rest := hostport[1:end], hostport[end+1:]
		if rest == "" {
			return host, "", nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", "", clierr.Configuration("invalid API service host: %q", hostport)
		}
		return host, rest[1:], nil
	}
	host, port, _ = strings.Cut(hostport, ":")
	if strings.Contains(port, ":") {
		return "", "", clierr.Configuration("invalid API service host: %q (IPv6 addresses must be in brackets)", hostport)
	}
	return host, port, nil
}

// Scheme returns "https" or "http".
func (e Endpoint) Scheme() string {
	if e.UseTLS {
		return "https"
	}
	return "http"
}

// Host returns the host:port pair used to dial the endpoint.
func (e Endpoint) Host() string {
	return net.JoinHostPort(e.Hostname, strconv.Itoa(e.Port))
}

// String renders the endpoint back into a service URL.
func (e Endpoint) String() string {
	return e.Scheme() + "://" + e.Host() + e.BasePath
}

// Credentials authenticate every call. Either Username/Password or Token is
// set, never both.
type Credentials struct {
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"-"`
	Token    string `json:"token,omitempty" yaml:"-"`
}

// Validate checks that exactly one credential variant is present.
func (c *Credentials) Validate() error {
	if c == nil {
		return nil
	}
	hasPair := c.Username != "" || c.Password != ""
	switch {
	case hasPair && c.Token != "":
		return clierr.Configuration("invalid credentials: use either username/password or token, not both")
	case hasPair && (c.Username == "" || c.Password == ""):
		return clierr.Configuration("invalid credentials: username and password must both be set")
	case !hasPair && c.Token == "":
		return clierr.Configuration("invalid credentials: expected username/password or token")
	}
	return nil
}

// CallOptions tune how a response is classified and returned.
type CallOptions struct {
	Raw      bool `json:"raw"`
	Full     bool `json:"full"`
	Verbose  bool `json:"verbose"`
	NoFormat bool `json:"noFormat"`
}

// ApiCall is one logical API invocation. The engine never mutates it.
type ApiCall struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Params  *params.Node      `json:"params,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Files   map[string]string `json:"files,omitempty"`
	Query   []string          `json:"query,omitempty"` // raw -G name=value pairs
	Post    []string          `json:"post,omitempty"`  // raw -P name=value pairs
	Options CallOptions       `json:"options"`
}

// ApiResult is the classified outcome of a call that produced a response.
// Exactly one of Failure, IsText or Data is meaningful.
type ApiResult struct {
	Status  int           `json:"status"`
	Data    any           `json:"data,omitempty"`
	Text    string        `json:"text,omitempty"`
	IsText  bool          `json:"isText,omitempty"`
	Failure *clierr.Error `json:"-"`
}

// OK reports whether the call succeeded.
func (r *ApiResult) OK() bool { return r.Failure == nil }

// Err returns the failure as an error, or nil on success.
func (r *ApiResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// DisplayOptions control how the renderer formats a result.
type DisplayOptions struct {
	Color bool `json:"color"`
	Raw   bool `json:"raw"`
}
