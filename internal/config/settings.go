package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/studiowebux/restsh/internal/clierr"
	"github.com/studiowebux/restsh/internal/types"
)

// EnvPrefix prefixes every environment override, e.g. RESTSH_URL.
const EnvPrefix = "RESTSH"

// Setting keys shared by the config file, the environment and the flags.
const (
	KeyURL          = "url"
	KeyUsername     = "username"
	KeyPassword     = "password"
	KeyToken        = "token"
	KeyColor        = "color"
	KeyFullResponse = "full_response"
	KeyRawResponse  = "raw_response"
	KeyVerbose      = "verbose"
	KeyNoFormat     = "no_format"
	KeyHeaders      = "headers"
	KeyHistory      = "history"
	KeyCookieFile   = "cookie_file"
	KeyInsecure     = "insecure"
)

// Settings is the resolved configuration of one run.
type Settings struct {
	URL          string            `mapstructure:"url" yaml:"url"`
	Username     string            `mapstructure:"username" yaml:"username,omitempty"`
	Password     string            `mapstructure:"password" yaml:"password,omitempty"`
	Token        string            `mapstructure:"token" yaml:"token,omitempty"`
	Color        bool              `mapstructure:"color" yaml:"color"`
	FullResponse bool              `mapstructure:"full_response" yaml:"full_response"`
	RawResponse  bool              `mapstructure:"raw_response" yaml:"raw_response"`
	Verbose      bool              `mapstructure:"verbose" yaml:"verbose"`
	NoFormat     bool              `mapstructure:"no_format" yaml:"no_format"`
	Headers      map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
	History      bool              `mapstructure:"history" yaml:"history"`
	CookieFile   string            `mapstructure:"cookie_file" yaml:"cookie_file,omitempty"`
	Insecure     bool              `mapstructure:"insecure" yaml:"insecure,omitempty"`
}

// NewViper returns a viper instance with defaults and environment
// overrides registered for every key.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyURL, "")
	v.SetDefault(KeyUsername, "")
	v.SetDefault(KeyPassword, "")
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyColor, false)
	v.SetDefault(KeyFullResponse, false)
	v.SetDefault(KeyRawResponse, false)
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyNoFormat, false)
	v.SetDefault(KeyHeaders, map[string]string{})
	v.SetDefault(KeyHistory, true)
	v.SetDefault(KeyCookieFile, "")
	v.SetDefault(KeyInsecure, false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the settings file into v and decodes the result. An explicit
// path must exist; the default ConfigFile is optional.
func Load(v *viper.Viper, explicitPath string) (Settings, error) {
	path := explicitPath
	if path == "" {
		path = ConfigFile
	}
	if path != "" {
		expanded, err := ExpandHome(path)
		if err != nil {
			return Settings{}, clierr.Configuration("%w", err)
		}
		path = expanded
	}

	if path != "" {
		info, statErr := os.Stat(path)
		switch {
		case statErr == nil && info.IsDir():
			return Settings{}, clierr.Configuration("configuration path %s is a directory", path)
		case statErr == nil:
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Settings{}, clierr.Configuration("read configuration from %s: %w", path, err)
			}
		case explicitPath != "":
			return Settings{}, clierr.Configuration("read configuration from %s: %w", path, statErr)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, clierr.Configuration("decode configuration: %w", err)
	}
	if s.Headers == nil {
		s.Headers = map[string]string{}
	}
	if s.CookieFile == "" {
		s.CookieFile = CookieFile
	}
	return s, nil
}

// Validate checks the settings needed to reach the API.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return clierr.Configuration("no API service URL configured (use --url or %s_URL)", EnvPrefix)
	}
	if _, err := types.ParseEndpoint(s.URL); err != nil {
		return err
	}
	if s.Token != "" && (s.Username != "" || s.Password != "") {
		return clierr.Configuration("invalid credentials: use either username/password or token, not both")
	}
	if s.Password != "" && s.Username == "" {
		return clierr.Configuration("invalid credentials: password given without a username")
	}
	return nil
}

// Endpoint parses the configured URL.
func (s Settings) Endpoint() (types.Endpoint, error) {
	return types.ParseEndpoint(s.URL)
}

// Credentials returns the configured credentials, or nil for anonymous use.
func (s Settings) Credentials() *types.Credentials {
	switch {
	case s.Token != "":
		return &types.Credentials{Token: s.Token}
	case s.Username != "":
		return &types.Credentials{Username: s.Username, Password: s.Password}
	default:
		return nil
	}
}

// Redacted returns a copy safe to print.
func (s Settings) Redacted() Settings {
	out := s
	if out.Password != "" {
		out.Password = "********"
	}
	if out.Token != "" {
		out.Token = "********"
	}
	return out
}
