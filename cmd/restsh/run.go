package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/studiowebux/restsh/internal/config"
	"github.com/studiowebux/restsh/internal/executor"
	"github.com/studiowebux/restsh/internal/history"
	"github.com/studiowebux/restsh/internal/session"
	"github.com/studiowebux/restsh/internal/shell"
)

// errCommandFailed is returned in scripted mode once the shell has already
// reported the failure.
var errCommandFailed = errors.New("command failed")

type streams struct {
	in          io.Reader
	out         io.Writer
	errOut      io.Writer
	interactive bool
	// terminal, when set, replaces in for the interactive shell.
	terminal *shell.Terminal
}

// run executes args once, or starts the shell when there are none. Cookies
// and the interactive location are restored from and saved to the cookie
// file.
func run(ctx context.Context, settings config.Settings, logger *zap.Logger, args []string, st streams) error {
	endpoint, err := settings.Endpoint()
	if err != nil {
		return err
	}

	engine, err := executor.New(endpoint, settings.Credentials(),
		executor.WithLogger(logger),
		executor.WithUserAgent("restsh/"+version),
		executor.WithInsecureSkipVerify(settings.Insecure),
	)
	if err != nil {
		return err
	}
	defer engine.Close()

	cookies := session.NewManager(settings.CookieFile)
	loadErr := cookies.Load()
	if loadErr != nil {
		logger.Warn("ignoring cookie file, it will not be saved", zap.String("path", cookies.Path()), zap.Error(loadErr))
	}
	saved, _ := cookies.Get(endpoint.Host())
	engine.SetCookies(saved.Cookies)

	opts := []shell.Option{
		shell.WithLogger(logger),
		shell.WithOptions(shell.OptionsFromSettings(settings)),
		shell.WithEndpoint(endpoint),
		shell.WithInteractive(st.interactive),
	}
	scripted := len(args) > 0
	if !scripted {
		opts = append(opts, shell.WithPath(saved.Path))
		if settings.History {
			store, err := history.Open(config.DatabasePath, endpoint.String())
			if err != nil {
				logger.Warn("line history disabled", zap.Error(err))
			} else {
				defer store.Close()
				opts = append(opts, shell.WithHistoryStore(store))
			}
		}
	}
	sh := shell.New(engine, st.out, st.errOut, opts...)

	defer func() {
		// Saving over a file that could not be read would drop every other host.
		if loadErr != nil {
			return
		}
		path := saved.Path
		if !scripted {
			path = sh.State().Current
		}
		cookies.Put(endpoint.Host(), session.State{Cookies: engine.Cookies(), Path: path})
		if err := cookies.Save(); err != nil {
			logger.Warn("failed to save cookie file", zap.String("path", cookies.Path()), zap.Error(err))
		}
	}()

	if scripted {
		if outcome := sh.RunArgs(ctx, args); !outcome.OK() {
			return errCommandFailed
		}
		return nil
	}
	if st.terminal != nil {
		return sh.StartTerminal(ctx, st.terminal)
	}
	return sh.Start(ctx, st.in)
}

// clearHistory deletes the stored lines of the configured endpoint.
func clearHistory(settings config.Settings, out io.Writer) error {
	endpoint, err := settings.Endpoint()
	if err != nil {
		return err
	}
	store, err := history.Open(config.DatabasePath, endpoint.String())
	if err != nil {
		return err
	}
	defer store.Close()

	count, err := store.Count()
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Removed %d history lines for %s\n", count, endpoint)
	return nil
}
