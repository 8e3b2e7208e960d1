package executor

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/studiowebux/restsh/internal/clierr"
	"github.com/studiowebux/restsh/internal/params"
	"github.com/studiowebux/restsh/internal/pathtool"
	"github.com/studiowebux/restsh/internal/types"
)

const (
	contentTypeJSON = "application/json"
	headerAuth      = "Authentication"
)

// builtRequest holds everything needed to replay the same request on every
// attempt.
type builtRequest struct {
	method string
	url    string
	body   []byte
	header http.Header
}

func (b *builtRequest) newHTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, b.method, b.url, bytes.NewReader(b.body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = b.header.Clone()
	return req, nil
}

func (e *Engine) buildRequest(call *types.ApiCall) (*builtRequest, error) {
	method := strings.ToUpper(strings.TrimSpace(call.Method))
	if method == "" {
		method = types.MethodGet
	}
	if !types.IsMethod(method) {
		return nil, clierr.Usage("unsupported method %q", call.Method)
	}
	if method != types.MethodExec && (len(call.Files) > 0 || len(call.Post) > 0) {
		return nil, clierr.Usage("file uploads and -P post data are only supported by EXEC")
	}

	u := url.URL{
		Scheme: e.endpoint.Scheme(),
		Host:   e.endpoint.Host(),
		Path:   pathtool.Join(e.endpoint.BasePath, call.Path),
	}

	var query []string
	if method == types.MethodGet && call.Params != nil {
		for _, p := range call.Params.QueryPairs() {
			query = append(query, url.QueryEscape(p.Name)+"="+url.QueryEscape(p.Value))
		}
	}
	extra, err := encodeGetPairs(call.Query)
	if err != nil {
		return nil, err
	}
	query = append(query, extra...)
	u.RawQuery = strings.Join(query, "&")

	header := make(http.Header)
	header.Set("Content-Type", contentTypeJSON)
	header.Set("Accept", contentTypeJSON)
	for name, value := range call.Headers {
		header.Set(name, value)
	}
	header.Set("User-Agent", e.userAgent)
	if auth := e.authHeader(); auth != "" {
		header.Set(headerAuth, auth)
	}

	built := &builtRequest{method: method, url: u.String(), header: header}
	switch method {
	case types.MethodGet:
	case types.MethodExec:
		body, contentType, err := e.buildForm(call)
		if err != nil {
			return nil, err
		}
		built.method = http.MethodPost
		built.body = body
		header.Set("Content-Type", contentType)
	default:
		body, err := encodeParams(call.Params)
		if err != nil {
			return nil, err
		}
		built.body = body
	}
	return built, nil
}

// authHeader returns the Authentication header value, or "" for anonymous
// calls.
func (e *Engine) authHeader() string {
	c := e.credentials
	switch {
	case c == nil:
		return ""
	case c.Token != "":
		return c.Token
	default:
		sum := md5.Sum([]byte(c.Username + ":" + c.Password))
		digest := hex.EncodeToString(sum[:])
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(digest))
	}
}

func encodeParams(tree *params.Node) ([]byte, error) {
	var value any = map[string]any{}
	if tree != nil {
		value = tree.Value()
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, clierr.Usage("failed to encode parameters: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func encodeGetPairs(pairs []string) ([]string, error) {
	out := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, clierr.Usage("invalid GET data %q, expected name=value", pair)
		}
		out = append(out, url.QueryEscape(name)+"="+url.QueryEscape(value))
	}
	return out, nil
}

// buildForm renders the legacy multipart body used by EXEC.
func (e *Engine) buildForm(call *types.ApiCall) ([]byte, string, error) {
	encoded, err := encodeParams(call.Params)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"OMEGA_ENCODING", "json"},
		{"OMEGA_API_PARAMS", string(encoded)},
	}
	if e.credentials != nil {
		creds, err := json.Marshal(e.credentials)
		if err != nil {
			return nil, "", clierr.Usage("failed to encode credentials: %w", err)
		}
		fields = append(fields, [2]string{"OMEGA_CREDENTIALS", string(creds)})
	}
	for _, pair := range call.Post {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" || strings.Contains(pair, "&") {
			return nil, "", clierr.Usage("invalid POST data %q, expected a single name=value pair", pair)
		}
		fields = append(fields, [2]string{name, value})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %q: %w", f[0], err)
		}
	}

	names := make([]string, 0, len(call.Files))
	for name := range call.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path := call.Files[name]
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", clierr.Usage("failed to read file %q: %w", path, err)
		}
		part, err := w.CreateFormFile(name, filepath.Base(path))
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file %q: %w", name, err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", fmt.Errorf("failed to write form file %q: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
