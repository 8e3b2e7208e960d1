package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/studiowebux/restsh/internal/clierr"
	"github.com/studiowebux/restsh/internal/types"
)

func TestInitializeAt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "home", DirName)
	if err := InitializeAt(dir); err != nil {
		t.Fatalf("InitializeAt() error: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("config dir not created: %v", err)
	}

	paths := map[string]string{
		"ConfigFile":   ConfigFile,
		"DatabasePath": DatabasePath,
		"CookieFile":   CookieFile,
	}
	want := map[string]string{
		"ConfigFile":   filepath.Join(dir, "config.yaml"),
		"DatabasePath": filepath.Join(dir, "restsh.db"),
		"CookieFile":   filepath.Join(dir, "cookies.json"),
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	if err := InitializeAt(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "restsh.yaml")
	content := `url: https://api.example.com/v1
username: alice
full_response: true
headers:
  X-Client: restsh
`
	if err := os.WriteFile(path, []byte(content), FilePermissions); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RESTSH_PASSWORD", "from-env")
	t.Setenv("RESTSH_VERBOSE", "true")

	s, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := Settings{
		URL:          "https://api.example.com/v1",
		Username:     "alice",
		Password:     "from-env",
		FullResponse: true,
		Verbose:      true,
		Headers:      map[string]string{"x-client": "restsh"},
		History:      true,
		CookieFile:   CookieFile,
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	if diff := cmp.Diff(&types.Credentials{Username: "alice", Password: "from-env"}, s.Credentials()); diff != "" {
		t.Errorf("Credentials() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	if !clierr.Is(err, clierr.KindConfiguration) {
		t.Errorf("Load() error = %v, want configuration error", err)
	}
}

func TestLoad_DefaultFileOptional(t *testing.T) {
	if err := InitializeAt(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	s, err := Load(NewViper(), "")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !s.History || s.URL != "" {
		t.Errorf("Load() = %+v, want defaults", s)
	}
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{"anonymous", Settings{URL: "http://localhost:8080"}, false},
		{"token", Settings{URL: "api.test", Token: "t"}, false},
		{"missing url", Settings{}, true},
		{"bad scheme", Settings{URL: "ftp://api.test"}, true},
		{"token and user", Settings{URL: "api.test", Token: "t", Username: "u"}, true},
		{"password only", Settings{URL: "api.test", Password: "p"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !clierr.Is(err, clierr.KindConfiguration) {
				t.Errorf("Validate() error kind = %q, want configuration", clierr.KindOf(err))
			}
		})
	}
}

func TestSettings_Redacted(t *testing.T) {
	s := Settings{Password: "secret", Token: "tok"}
	r := s.Redacted()
	if r.Password == "secret" || r.Token == "tok" {
		t.Errorf("Redacted() = %+v, secrets still visible", r)
	}
	if s.Password != "secret" {
		t.Error("Redacted() modified the receiver")
	}
}
