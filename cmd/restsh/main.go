package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/studiowebux/restsh/internal/clierr"
	"github.com/studiowebux/restsh/internal/config"
	"github.com/studiowebux/restsh/internal/logging"
	"github.com/studiowebux/restsh/internal/shell"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errCommandFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "restsh [flags] [METHOD] [PATH] [PARAMS...]",
	Short: "restsh - interactive shell for JSON REST APIs",
	Long: `restsh is a shell for JSON REST APIs that wrap their payloads in a
{"result": ..., "data": ..., "reason": ...} envelope.

Run without a command to start the interactive shell, or give a command to
run it once and exit (exit status 1 when it fails).

Settings are read from ~/.restsh/config.yaml (or --config), then from
RESTSH_* environment variables, then from flags.

Examples:
  restsh -u https://api.example.com/v1            # Start the shell
  restsh -u api.example.com --user alice          # Prompt for the password
  restsh -u api.example.com GET widgets/5         # Run one call
  restsh -u api.example.com widgets name=x -q id  # POST, print the new id
  restsh --help                                   # Show help`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		logger, err := logging.New(flagDebug)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()
		logger.Debug("settings loaded", zap.Any("settings", settings.Redacted()))

		if flagClearHistory {
			return clearHistory(settings, os.Stdout)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st := streams{
			in:          os.Stdin,
			out:         os.Stdout,
			errOut:      os.Stderr,
			interactive: term.IsTerminal(int(os.Stdin.Fd())),
		}
		if st.interactive && term.IsTerminal(int(os.Stdout.Fd())) {
			st.terminal = shell.NewTerminal(struct {
				io.Reader
				io.Writer
			}{os.Stdin, os.Stdout}, int(os.Stdin.Fd()))
			defer func() { _ = st.terminal.Close() }()
		}
		return run(ctx, settings, logger, args, st)
	},
}

var settingsViper = config.NewViper()

var (
	flagConfig       string
	flagHeaders      []string
	flagNoHistory    bool
	flagClearHistory bool
	flagDebug        bool
)

func init() {
	flags := rootCmd.Flags()
	// Flags after the first word belong to the shell command.
	flags.SetInterspersed(false)

	flags.StringP("url", "u", "", "API service URL, e.g. https://api.example.com/v1")
	flags.String("user", "", "Username (prompts for the password when --password is not given)")
	flags.String("password", "", "Password")
	flags.String("token", "", "Authentication token, instead of a username and password")
	flags.Bool("color", false, "Colorize output (default: when stdout is a terminal)")
	flags.Bool("full", false, "Return full response envelopes")
	flags.Bool("raw", false, "Return raw response text")
	flags.Bool("no-format", false, "Do not indent raw JSON output")
	flags.Bool("verbose", false, "Trace every request and response on stderr")
	flags.Bool("insecure", false, "Skip TLS certificate verification")
	flags.String("cookie-file", "", "Cookie file (default ~/.restsh/cookies.json)")
	flags.StringVar(&flagConfig, "config", "", "Settings file (yaml, json or toml)")
	flags.StringArrayVarP(&flagHeaders, "header", "H", []string{}, "Extra request header (Name: Value), can be repeated")
	flags.BoolVar(&flagNoHistory, "no-history", false, "Do not load or save line history")
	flags.BoolVar(&flagClearHistory, "clear-history", false, "Delete the line history of the endpoint and exit")
	flags.BoolVar(&flagDebug, "debug", false, "Log request traces of every call")

	bindings := map[string]string{
		config.KeyURL:          "url",
		config.KeyUsername:     "user",
		config.KeyPassword:     "password",
		config.KeyToken:        "token",
		config.KeyColor:        "color",
		config.KeyFullResponse: "full",
		config.KeyRawResponse:  "raw",
		config.KeyNoFormat:     "no-format",
		config.KeyVerbose:      "verbose",
		config.KeyInsecure:     "insecure",
		config.KeyCookieFile:   "cookie-file",
	}
	for key, name := range bindings {
		if err := settingsViper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// loadSettings resolves the settings of this run from the settings file,
// the environment and the flags, prompting for a missing password.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	settings, err := config.Load(settingsViper, flagConfig)
	if err != nil {
		return config.Settings{}, err
	}

	headers, err := parseHeaders(flagHeaders)
	if err != nil {
		return config.Settings{}, err
	}
	for name, value := range headers {
		settings.Headers[name] = value
	}
	if flagNoHistory {
		settings.History = false
	}
	if !colorConfigured(cmd, settingsViper) {
		settings.Color = term.IsTerminal(int(os.Stdout.Fd()))
	}

	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}

	if settings.Username != "" && settings.Password == "" {
		password, err := readPassword(settings.Username)
		if err != nil {
			return config.Settings{}, err
		}
		settings.Password = password
	}
	return settings, nil
}

func colorConfigured(cmd *cobra.Command, v *viper.Viper) bool {
	if cmd.Flags().Changed("color") || v.InConfig(config.KeyColor) {
		return true
	}
	_, ok := os.LookupEnv(config.EnvPrefix + "_" + strings.ToUpper(config.KeyColor))
	return ok
}

// parseHeaders turns repeated "Name: Value" flags into a header map.
func parseHeaders(values []string) (map[string]string, error) {
	headers := make(map[string]string, len(values))
	for _, raw := range values {
		name, value, ok := strings.Cut(raw, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, clierr.Configuration("invalid header %q, expected Name: Value", raw)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

func readPassword(username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", clierr.Configuration("no password given for %q and no terminal to prompt for it (use --password or RESTSH_PASSWORD)", username)
	}

	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}
