package executor

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/studiowebux/restsh/internal/clierr"
	"github.com/studiowebux/restsh/internal/params"
	"github.com/studiowebux/restsh/internal/types"
)

func newTestEngine(t *testing.T, handler http.HandlerFunc, creds *types.Credentials) *Engine {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	ep, err := types.ParseEndpoint(server.URL + "/api")
	if err != nil {
		t.Fatalf("ParseEndpoint(%q) error: %v", server.URL, err)
	}
	engine, err := New(ep, creds)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestExecute_EnvelopeData(t *testing.T) {
	var gotPath, gotMethod string
	engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		writeJSON(w, http.StatusOK, `{"result":true,"data":{"id":5}}`)
	}, nil)

	result, err := engine.Execute(context.Background(), &types.ApiCall{Method: "get", Path: "/widgets/5"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !result.OK() {
		t.Fatalf("Execute() failure: %v", result.Failure)
	}
	if gotMethod != http.MethodGet || gotPath != "/api/widgets/5" {
		t.Errorf("request = %s %s, want GET /api/widgets/5", gotMethod, gotPath)
	}
	want := map[string]any{"id": json.Number("5")}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_FullEnvelope(t *testing.T) {
	engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"result":true,"data":1}`)
	}, nil)

	result, err := engine.Execute(context.Background(), &types.ApiCall{
		Path:    "/count",
		Options: types.CallOptions{Full: true},
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	want := map[string]any{"result": true, "data": json.Number("1")}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_StatusFailure(t *testing.T) {
	engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"reason":"not found"}`)
	}, nil)

	result, err := engine.Execute(context.Background(), &types.ApiCall{Method: "GET", Path: "/widgets/5"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.OK() {
		t.Fatal("Execute() succeeded, want failure")
	}
	want := `API "/widgets/5" failed (404 Not Found): not found`
	if got := result.Failure.Error(); got != want {
		t.Errorf("Failure = %q, want %q", got, want)
	}
	if result.Failure.Kind != clierr.KindAPI {
		t.Errorf("Failure.Kind = %q, want %q", result.Failure.Kind, clierr.KindAPI)
	}
}

func TestExecute_StatusFailureFallbacks(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		full        bool
		wantReason  string
		wantDetail  string
	}{
		{"plain body", "text/plain", "gateway down", false, "gateway down", ""},
		{"empty body", "text/plain", "", false, unknownFailure, ""},
		{"json without reason", "application/json", `{"code":7}`, false, `{"code":7}`, ""},
		{"full adds detail", "application/json", `{"reason":"nope"}`, true, "nope", "{\n    \"reason\": \"nope\"\n}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, tt.body)
			}, nil)

			result, err := engine.Execute(context.Background(), &types.ApiCall{
				Path:    "gw",
				Options: types.CallOptions{Full: tt.full},
			})
			if err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if result.OK() {
				t.Fatal("Execute() succeeded, want failure")
			}
			wantMsg := `API "/gw" failed (502 Bad Gateway): ` + tt.wantReason
			if got := result.Failure.Err.Error(); got != wantMsg {
				t.Errorf("Failure = %q, want %q", got, wantMsg)
			}
			if result.Failure.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", result.Failure.Detail, tt.wantDetail)
			}
		})
	}
}

func TestExecute_DecodeFailure(t *testing.T) {
	engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, "not json")
	}, nil)

	_, err := engine.Execute(context.Background(), &types.ApiCall{Path: "/widgets"})
	if !clierr.Is(err, clierr.KindDecode) {
		t.Fatalf("Execute() error = %v, want decode error", err)
	}
}

func TestExecute_TextContent(t *testing.T) {
	engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "hello")
	}, nil)

	result, err := engine.Execute(context.Background(), &types.ApiCall{Path: "/hello"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !result.IsText || result.Text != "hello" {
		t.Errorf("result = %+v, want text %q", result, "hello")
	}
}

func TestExecute_EnvelopeFailure(t *testing.T) {
	tests := []struct {
		name string
		body string
		full bool
		want string
	}{
		{"reason", `{"result":false,"reason":"bad input"}`, false, "bad input"},
		{"no reason", `{"result":false}`, false, `API "/jobs" failed but did not provide an explanation`},
		{"full", `{"result":false,"reason":"bad input"}`, true, `API "/jobs" failed: bad input`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.body)
			}, nil)

			result, err := engine.Execute(context.Background(), &types.ApiCall{
				Path:    "/jobs",
				Options: types.CallOptions{Full: tt.full},
			})
			if err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if result.OK() {
				t.Fatal("Execute() succeeded, want failure")
			}
			if got := result.Failure.Err.Error(); got != tt.want {
				t.Errorf("Failure = %q, want %q", got, tt.want)
			}
			if tt.full && result.Failure.Detail == "" {
				t.Error("full failure has no detail")
			}
		})
	}
}

func TestExecute_RawResponse(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		noFormat bool
		want     string
	}{
		{"indented", `{"result":true,"data":{"b":1,"a":"x"}}`, false, "{\n    \"a\": \"x\",\n    \"b\": 1\n}\n"},
		{"compact", `{"result":true,"data":{"b":1,"a":"x"}}`, true, "{\"a\":\"x\",\"b\":1}\n"},
		{"missing data", `{"result":true}`, false, "{}\n"},
		{"bare array", `[1,2]`, true, "[1,2]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.body)
			}, nil)

			result, err := engine.Execute(context.Background(), &types.ApiCall{
				Path:    "/raw",
				Options: types.CallOptions{Raw: true, NoFormat: tt.noFormat},
			})
			if err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if !result.IsText || result.Text != tt.want {
				t.Errorf("Text = %q, want %q", result.Text, tt.want)
			}
		})
	}
}

func TestExecute_RequestEncoding(t *testing.T) {
	type seen struct {
		query       string
		body        string
		contentType string
		accept      string
		custom      string
	}
	var got seen
	engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = seen{
			query:       r.URL.RawQuery,
			body:        string(body),
			contentType: r.Header.Get("Content-Type"),
			accept:      r.Header.Get("Accept"),
			custom:      r.Header.Get("X-Trace"),
		}
		writeJSON(w, http.StatusOK, `{"result":true}`)
	}, nil)

	tree := params.NewTree()
	for _, token := range []string{"name=a b", "deep.x=1", "on"} {
		if err := tree.Assign(token); err != nil {
			t.Fatalf("Assign(%q) error: %v", token, err)
		}
	}

	t.Run("GET query", func(t *testing.T) {
		_, err := engine.Execute(context.Background(), &types.ApiCall{
			Method: types.MethodGet,
			Path:   "/search",
			Params: tree,
			Query:  []string{"page=2&x"},
		})
		if err != nil {
			t.Fatalf("Execute() error: %v", err)
		}
		want := "deep.x=1&name=a+b&on=true&page=2%26x"
		if got.query != want {
			t.Errorf("query = %q, want %q", got.query, want)
		}
		if got.body != "" {
			t.Errorf("body = %q, want empty", got.body)
		}
	})

	t.Run("POST body", func(t *testing.T) {
		_, err := engine.Execute(context.Background(), &types.ApiCall{
			Method:  types.MethodPost,
			Path:    "/search",
			Params:  tree,
			Headers: map[string]string{"X-Trace": "1", "Accept": "text/plain"},
		})
		if err != nil {
			t.Fatalf("Execute() error: %v", err)
		}
		want := `{"deep":{"x":"1"},"name":"a b","on":true}`
		if got.body != want {
			t.Errorf("body = %q, want %q", got.body, want)
		}
		if got.contentType != "application/json" || got.accept != "text/plain" || got.custom != "1" {
			t.Errorf("headers = %+v", got)
		}
	})

	t.Run("POST without params", func(t *testing.T) {
		_, err := engine.Execute(context.Background(), &types.ApiCall{Method: types.MethodPut, Path: "/x"})
		if err != nil {
			t.Fatalf("Execute() error: %v", err)
		}
		if got.body != "{}" {
			t.Errorf("body = %q, want {}", got.body)
		}
	})

	t.Run("files rejected outside EXEC", func(t *testing.T) {
		_, err := engine.Execute(context.Background(), &types.ApiCall{
			Method: types.MethodPost,
			Path:   "/x",
			Files:  map[string]string{"f": "/dev/null"},
		})
		if !clierr.Is(err, clierr.KindUsage) {
			t.Errorf("Execute() error = %v, want usage error", err)
		}
	})
}

func TestExecute_Authentication(t *testing.T) {
	sum := md5.Sum([]byte("alice:secret"))
	basic := "Basic " + base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(sum[:])))

	tests := []struct {
		name  string
		creds *types.Credentials
		want  string
	}{
		{"anonymous", nil, ""},
		{"password", &types.Credentials{Username: "alice", Password: "secret"}, basic},
		{"token", &types.Credentials{Token: "tok-123"}, "tok-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("Authentication")
				writeJSON(w, http.StatusOK, `{"result":true}`)
			}, tt.creds)

			if _, err := engine.Execute(context.Background(), &types.ApiCall{Path: "/me"}); err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Authentication = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecute_Cookies(t *testing.T) {
	var (
		mu   sync.Mutex
		seen [][]string
	)
	calls := 0
	engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Values("Cookie"))
		calls++
		n := calls
		mu.Unlock()
		switch n {
		case 1:
			w.Header().Add("Set-Cookie", "sid=abc; Path=/; HttpOnly")
			w.Header().Add("Set-Cookie", "lang=en")
		case 3:
			w.Header().Add("Set-Cookie", "sid=xyz")
		}
		writeJSON(w, http.StatusOK, `{"result":true}`)
	}, nil)

	for i := 0; i < 4; i++ {
		if _, err := engine.Execute(context.Background(), &types.ApiCall{Path: "/ping"}); err != nil {
			t.Fatalf("Execute() #%d error: %v", i+1, err)
		}
	}

	want := [][]string{nil, {"sid=abc", "lang=en"}, {"sid=abc", "lang=en"}, {"sid=xyz"}}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("cookies mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"sid=xyz"}, engine.Cookies()); diff != "" {
		t.Errorf("Cookies() mismatch (-want +got):\n%s", diff)
	}

	engine.SetCookies([]string{" restored=1 ", ""})
	if diff := cmp.Diff([]string{"restored=1"}, engine.Cookies()); diff != "" {
		t.Errorf("SetCookies() mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_Exec(t *testing.T) {
	dir := t.TempDir()
	upload := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(upload, []byte("file body"), 0644); err != nil {
		t.Fatal(err)
	}

	var form map[string]string
	var method, fileBody string
	engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error: %v", err)
		}
		form = map[string]string{}
		for name, values := range r.MultipartForm.Value {
			form[name] = values[0]
		}
		if f, _, err := r.FormFile("doc"); err == nil {
			data, _ := io.ReadAll(f)
			fileBody = string(data)
			f.Close()
		}
		writeJSON(w, http.StatusOK, `{"result":true,"data":"ok"}`)
	}, &types.Credentials{Token: "t"})

	tree := params.NewTree()
	_ = tree.Assign("id:=7")
	result, err := engine.Execute(context.Background(), &types.ApiCall{
		Method: "exec",
		Path:   "/legacy.run",
		Params: tree,
		Post:   []string{"extra=1"},
		Files:  map[string]string{"doc": upload},
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.Data != "ok" {
		t.Errorf("Data = %v, want ok", result.Data)
	}
	if method != http.MethodPost {
		t.Errorf("method = %s, want POST", method)
	}
	want := map[string]string{
		"OMEGA_ENCODING":    "json",
		"OMEGA_API_PARAMS":  `{"id":7}`,
		"OMEGA_CREDENTIALS": `{"token":"t"}`,
		"extra":             "1",
	}
	if diff := cmp.Diff(want, form); diff != "" {
		t.Errorf("form mismatch (-want +got):\n%s", diff)
	}
	if fileBody != "file body" {
		t.Errorf("file = %q, want %q", fileBody, "file body")
	}
}

// flakyTransport fails the first failures round trips, then answers with
// a canned JSON response.
type flakyTransport struct {
	mu       *sync.Mutex
	attempts *int
	failures int
	err      error
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	*f.attempts++
	n := *f.attempts
	f.mu.Unlock()
	if n <= f.failures {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"result":true,"data":{"id":5}}`)),
		Request:    req,
	}, nil
}

func TestExecute_Retries(t *testing.T) {
	tests := []struct {
		name          string
		failures      int
		err           error
		wantAttempts  int
		wantFactories int
		wantFailure   bool
	}{
		{"first attempt", 0, io.ErrUnexpectedEOF, 1, 1, false},
		{"second attempt", 1, io.ErrUnexpectedEOF, 2, 1, false},
		{"third attempt", 2, errors.New("tls handshake"), 3, 3, false},
		{"exhausted transient", 3, io.ErrUnexpectedEOF, 3, 1, true},
		{"exhausted hard", 5, errors.New("no route"), 3, 4, true},
	}

	ep, err := types.ParseEndpoint("http://api.test")
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			attempts, factories := 0, 0
			engine, err := New(ep, nil, WithTransportFactory(func() http.RoundTripper {
				factories++
				return &flakyTransport{mu: &mu, attempts: &attempts, failures: tt.failures, err: tt.err}
			}))
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}

			result, err := engine.Execute(context.Background(), &types.ApiCall{Path: "/widgets/5"})
			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			if factories != tt.wantFactories {
				t.Errorf("transports built = %d, want %d", factories, tt.wantFactories)
			}
			if tt.wantFailure {
				if !clierr.Is(err, clierr.KindConnection) {
					t.Fatalf("Execute() error = %v, want connection error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			want := map[string]any{"id": json.Number("5")}
			if diff := cmp.Diff(want, result.Data); diff != "" {
				t.Errorf("Data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExecute_Cancelled(t *testing.T) {
	ep, _ := types.ParseEndpoint("http://api.test")
	var mu sync.Mutex
	attempts := 0
	engine, err := New(ep, nil, WithTransportFactory(func() http.RoundTripper {
		return &flakyTransport{mu: &mu, attempts: &attempts, failures: 10, err: context.Canceled}
	}))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Execute(ctx, &types.ApiCall{Path: "/x"})
	if !clierr.Is(err, clierr.KindConnection) {
		t.Fatalf("Execute() error = %v, want connection error", err)
	}
	if attempts > 1 {
		t.Errorf("attempts = %d, want at most 1 after cancellation", attempts)
	}
}

func TestNew_InvalidCredentials(t *testing.T) {
	ep, _ := types.ParseEndpoint("https://api.test")
	_, err := New(ep, &types.Credentials{Username: "bob"})
	if !clierr.Is(err, clierr.KindConfiguration) {
		t.Errorf("New() error = %v, want configuration error", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0ms"},
		{999, "999ms"},
		{1500, "1.50s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}
