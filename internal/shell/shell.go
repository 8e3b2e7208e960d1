package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"

	"github.com/studiowebux/restsh/internal/clierr"
	"github.com/studiowebux/restsh/internal/config"
	"github.com/studiowebux/restsh/internal/executor"
	"github.com/studiowebux/restsh/internal/filter"
	"github.com/studiowebux/restsh/internal/history"
	"github.com/studiowebux/restsh/internal/pathtool"
	"github.com/studiowebux/restsh/internal/render"
	"github.com/studiowebux/restsh/internal/types"
)

// Executor runs API calls. *executor.Engine implements it.
type Executor interface {
	Execute(ctx context.Context, call *types.ApiCall) (*types.ApiResult, error)
}

// Options are the settings changed with the set built-in.
type Options struct {
	Color        bool              `yaml:"color"`
	FullResponse bool              `yaml:"full_response"`
	RawResponse  bool              `yaml:"raw_response"`
	Verbose      bool              `yaml:"verbose"`
	NoFormat     bool              `yaml:"no_format"`
	Headers      map[string]string `yaml:"headers"`
}

// OptionsFromSettings copies the display and call settings of a run.
func OptionsFromSettings(s config.Settings) Options {
	headers := make(map[string]string, len(s.Headers))
	for k, v := range s.Headers {
		headers[k] = v
	}
	return Options{
		Color:        s.Color,
		FullResponse: s.FullResponse,
		RawResponse:  s.RawResponse,
		Verbose:      s.Verbose,
		NoFormat:     s.NoFormat,
		Headers:      headers,
	}
}

// State is the mutable interpreter state. Only cd and set change it.
type State struct {
	Current string
	Last    string
	Options Options
}

// Outcome reports what a line did.
type Outcome struct {
	Quit   bool
	Err    error
	Result *types.ApiResult
}

// OK reports whether the line succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Shell interprets command lines against one API endpoint.
type Shell struct {
	engine    Executor
	endpoint  string
	renderer  *render.Renderer
	out       io.Writer
	errOut    io.Writer
	logger    *zap.Logger
	state     State
	history   *history.Buffer
	store     *history.Store
	interact  bool
	lastOut   string
	clipboard func(string) error
}

// Option configures a Shell.
type Option func(*Shell)

// WithLogger sets the logger for verbose traces and warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Shell) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOptions sets the initial options.
func WithOptions(opts Options) Option {
	return func(s *Shell) { s.state.Options = opts }
}

// WithPath starts the shell at path instead of the root.
func WithPath(path string) Option {
	return func(s *Shell) {
		if path == "" {
			return
		}
		if resolved, err := pathtool.Resolve(pathtool.Root, pathtool.Root, path); err == nil {
			s.state.Current = resolved
		}
	}
}

// WithEndpoint names the endpoint in prompts and the config built-in.
func WithEndpoint(ep types.Endpoint) Option {
	return func(s *Shell) { s.endpoint = ep.String() }
}

// WithHistoryStore persists entered lines.
func WithHistoryStore(store *history.Store) Option {
	return func(s *Shell) { s.store = store }
}

// WithInteractive enables the prompt.
func WithInteractive(interactive bool) Option {
	return func(s *Shell) { s.interact = interactive }
}

// WithClipboard replaces the clipboard writer used by copy.
func WithClipboard(write func(string) error) Option {
	return func(s *Shell) { s.clipboard = write }
}

// New creates a shell writing results to out and failures to errOut.
func New(engine Executor, out, errOut io.Writer, opts ...Option) *Shell {
	s := &Shell{
		engine:    engine,
		renderer:  render.New(errOut),
		out:       out,
		errOut:    errOut,
		logger:    zap.NewNop(),
		history:   history.NewBuffer(history.MaxEntries),
		clipboard: clipboard.WriteAll,
		state: State{
			Current: pathtool.Root,
			Last:    pathtool.Root,
			Options: Options{Headers: map[string]string{}},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.state.Options.Headers == nil {
		s.state.Options.Headers = map[string]string{}
	}
	return s
}

// State returns a copy of the interpreter state.
func (s *Shell) State() State { return s.state }

// RunLine parses and runs one line. Failures are written to the error
// stream as "! reason" and returned in the outcome.
func (s *Shell) RunLine(ctx context.Context, line string) Outcome {
	cmd, err := s.ParseLine(line)
	if err != nil {
		return s.fail(err)
	}
	return s.Run(ctx, cmd)
}

// RunArgs runs a command given as separate words, as in scripted mode.
func (s *Shell) RunArgs(ctx context.Context, args []string) Outcome {
	cmd, err := s.ParseTokens(args)
	if err != nil {
		return s.fail(err)
	}
	return s.Run(ctx, cmd)
}

// Run executes a parsed command.
func (s *Shell) Run(ctx context.Context, cmd *Command) Outcome {
	switch cmd.Kind {
	case KindEmpty:
		return Outcome{}
	case KindEscape:
		return s.finish(cmd, s.runEscape(ctx, cmd))
	case KindBuiltin:
		return s.finish(cmd, s.runBuiltin(ctx, cmd))
	default:
		return s.finish(cmd, s.runAPI(ctx, cmd))
	}
}

// output is the text a command produced before it is written anywhere.
type output struct {
	text   string
	plain  string // uncolored copy kept for the copy built-in
	result *types.ApiResult
	quit   bool
	err    error
}

// finish writes a command's output to stdout or its redirect target. The
// target is only opened once the command succeeded.
func (s *Shell) finish(cmd *Command, o output) Outcome {
	if o.err != nil {
		return s.fail(o.err)
	}
	switch {
	case cmd.Redirect != nil:
		if err := writeRedirect(cmd.Redirect, o.plain); err != nil {
			return s.fail(err)
		}
	case o.text != "":
		if _, err := io.WriteString(s.out, o.text); err != nil {
			return s.fail(fmt.Errorf("failed to write output: %w", err))
		}
	}
	if o.result != nil {
		s.lastOut = o.plain
	}
	return Outcome{Quit: o.quit, Result: o.result}
}

func (s *Shell) fail(err error) Outcome {
	s.renderer.Failure(err, s.state.Options.Color)
	return Outcome{Err: err}
}

func writeRedirect(r *Redirect, text string) error {
	path, err := config.ExpandHome(r.Path)
	if err != nil {
		return err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if r.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, config.FilePermissions)
	if err != nil {
		return clierr.Usage("failed to open %q: %w", r.Path, err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, text); err != nil {
		return clierr.Usage("failed to write %q: %w", r.Path, err)
	}
	return nil
}

// buildCall turns a parsed API command into an ApiCall, merging the shell
// options with the flags of the line.
func (s *Shell) buildCall(cmd *Command) *types.ApiCall {
	opts := s.state.Options
	headers := make(map[string]string, len(opts.Headers)+len(cmd.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}
	for k, v := range cmd.Headers {
		headers[k] = v
	}
	return &types.ApiCall{
		Method:  cmd.HTTPMethod(),
		Path:    cmd.Path,
		Params:  cmd.Params,
		Headers: headers,
		Files:   cmd.Files,
		Query:   cmd.Query,
		Post:    cmd.Post,
		Options: types.CallOptions{
			Raw:      opts.RawResponse || cmd.Options.Raw,
			Full:     opts.FullResponse || cmd.Options.Full,
			Verbose:  opts.Verbose || cmd.Options.Verbose,
			NoFormat: opts.NoFormat || cmd.Options.NoFormat,
		},
	}
}

func (s *Shell) runAPI(ctx context.Context, cmd *Command) output {
	call := s.buildCall(cmd)
	if call.Options.Verbose {
		encoded, _ := json.Marshal(call.Params)
		s.logger.Info(fmt.Sprintf("+ API=%s, PARAMS=%s", call.Path, encoded),
			zap.String("method", call.Method),
			zap.Any("options", call.Options))
	}

	result, err := s.engine.Execute(ctx, call)
	if err != nil {
		return output{err: err}
	}
	if !result.OK() {
		return output{err: result.Failure}
	}

	if cmd.Filter != "" {
		if err := s.applyFilter(ctx, result, cmd.Filter, call.Options.NoFormat); err != nil {
			return output{err: err}
		}
	}

	display := types.DisplayOptions{
		Color: s.state.Options.Color || cmd.Color,
		Raw:   call.Options.Raw,
	}
	text, err := render.Format(result, display)
	if err != nil {
		return output{err: err}
	}
	plain := text
	if display.Color {
		if plain, err = render.Format(result, types.DisplayOptions{Raw: display.Raw}); err != nil {
			return output{err: err}
		}
	}
	return output{text: text, plain: plain, result: result}
}

// applyFilter narrows a successful result with a JMESPath expression or
// pipes it through a $(command).
func (s *Shell) applyFilter(ctx context.Context, result *types.ApiResult, expression string, compact bool) error {
	if command, ok := filter.ShellCommand(expression); ok {
		body := result.Text
		if !result.IsText {
			encoded, err := executor.Marshal(result.Data, compact)
			if err != nil {
				return clierr.Decode("failed to encode response: %w", err)
			}
			body = encoded
		}
		text, err := filter.Shell(ctx, body, command)
		if err != nil {
			return err
		}
		result.IsText, result.Text, result.Data = true, text, nil
		return nil
	}

	var (
		filtered any
		err      error
	)
	if result.IsText {
		filtered, err = filter.ApplyText(result.Text, expression)
	} else {
		filtered, err = filter.Apply(result.Data, expression)
	}
	if err != nil {
		return err
	}

	if result.IsText {
		text, err := executor.Marshal(filtered, compact)
		if err != nil {
			return clierr.Decode("failed to encode query result: %w", err)
		}
		result.Text = text + "\n"
		return nil
	}
	result.Data = filtered
	return nil
}

// lastOutput returns the uncolored output of the last successful call.
func (s *Shell) lastOutput() string {
	return strings.TrimRight(s.lastOut, "\n")
}
