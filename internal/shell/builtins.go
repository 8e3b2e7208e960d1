package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"

	"github.com/studiowebux/restsh/internal/clierr"
	"github.com/studiowebux/restsh/internal/params"
	"github.com/studiowebux/restsh/internal/pathtool"
)

// Option names accepted by set.
const (
	OptColor        = "color"
	OptFullResponse = "full_response"
	OptRawResponse  = "raw_response"
	OptVerbose      = "verbose"
	OptNoFormat     = "no_format"
	OptHeaders      = "headers"
)

var optionNames = []string{OptColor, OptFullResponse, OptRawResponse, OptVerbose, OptNoFormat, OptHeaders}

func text(s string) output { return output{text: s, plain: s} }

func (s *Shell) runBuiltin(ctx context.Context, cmd *Command) output {
	switch cmd.Builtin {
	case BuiltinSet:
		if len(cmd.Args) == 0 {
			return s.showConfig()
		}
		return output{err: s.set(cmd.Args)}
	case BuiltinCd:
		return output{err: s.cd(cmd.Args)}
	case BuiltinPwd:
		return text(s.state.Current + "\n")
	case BuiltinConfig:
		return s.showConfig()
	case BuiltinHelp:
		return text(helpText)
	case BuiltinQuit, BuiltinExit:
		return output{quit: true}
	case BuiltinSh:
		if len(cmd.Args) == 0 {
			return output{err: clierr.Usage("usage: sh COMMAND [ARGS...]")}
		}
		return s.runProcess(ctx, cmd, exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...))
	case BuiltinHistory:
		return s.showHistory(cmd.Args)
	case BuiltinCopy:
		return output{err: s.copyLast()}
	default:
		return output{err: clierr.Usage("unrecognized command %q; enter \"help\" for help", cmd.Builtin)}
	}
}

func (s *Shell) runEscape(ctx context.Context, cmd *Command) output {
	return s.runProcess(ctx, cmd, exec.CommandContext(ctx, "sh", "-c", cmd.Args[0]))
}

// runProcess streams a child process to the shell's streams, or captures
// its stdout when the line is redirected.
func (s *Shell) runProcess(ctx context.Context, cmd *Command, proc *exec.Cmd) output {
	var captured bytes.Buffer
	proc.Stdout = s.out
	if cmd.Redirect != nil {
		proc.Stdout = &captured
	}
	proc.Stderr = s.errOut

	if err := proc.Run(); err != nil {
		return output{err: clierr.Usage("command failed: %w", err)}
	}
	return text(captured.String())
}

func (s *Shell) cd(args []string) error {
	if len(args) > 1 {
		return clierr.Usage("usage: cd [PATH]")
	}
	input := ""
	if len(args) == 1 && args[0] != "-" {
		input = args[0]
	}
	resolved, err := pathtool.Resolve(s.state.Current, s.state.Last, input)
	if err != nil {
		return err
	}
	s.state.Last, s.state.Current = s.state.Current, resolved
	return nil
}

// set applies name=value assignments to the options. Booleans accept
// 1/true/True and 0/false/False; headers take a JSON object, dotted names
// (headers.X-Trace=1) or an empty value to clear them.
func (s *Shell) set(args []string) error {
	next := s.state.Options
	next.Headers = make(map[string]string, len(s.state.Options.Headers))
	for k, v := range s.state.Options.Headers {
		next.Headers[k] = v
	}

	for _, arg := range args {
		tree := params.NewTree()
		if err := tree.Assign(arg); err != nil {
			return err
		}
		for _, key := range tree.Keys() {
			value, _ := tree.Get(key)
			if err := applyOption(&next, key, value); err != nil {
				return err
			}
		}
	}
	s.state.Options = next
	return nil
}

func applyOption(opts *Options, key string, value *params.Node) error {
	var target *bool
	switch key {
	case OptColor:
		target = &opts.Color
	case OptFullResponse:
		target = &opts.FullResponse
	case OptRawResponse:
		target = &opts.RawResponse
	case OptVerbose:
		target = &opts.Verbose
	case OptNoFormat:
		target = &opts.NoFormat
	case OptHeaders:
		return applyHeaders(opts, value)
	default:
		return unknownOption(key)
	}

	b, err := coerceBool(value)
	if err != nil {
		return clierr.Configuration("invalid value for %q: %w", key, err)
	}
	*target = b
	return nil
}

func coerceBool(value *params.Node) (bool, error) {
	switch v := value.Value().(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "1", "true", "True":
			return true, nil
		case "0", "false", "False":
			return false, nil
		}
		return false, fmt.Errorf("expected a boolean, got %q", v)
	default:
		if n, ok := v.(interface{ String() string }); ok {
			return coerceBool(params.String(n.String()))
		}
		return false, fmt.Errorf("expected a boolean")
	}
}

func applyHeaders(opts *Options, value *params.Node) error {
	switch v := value.Value().(type) {
	case map[string]any:
		for name, raw := range v {
			if nested, ok := raw.(map[string]any); ok {
				return clierr.Configuration("invalid header %q: nested value %v", name, nested)
			}
			opts.Headers[name] = fmt.Sprint(raw)
		}
		return nil
	case string:
		if v == "" {
			opts.Headers = map[string]string{}
			return nil
		}
	}
	return clierr.Configuration("invalid value for %q: expected headers.NAME=VALUE, a JSON object or an empty value", OptHeaders)
}

func unknownOption(key string) error {
	err := clierr.Configuration("unrecognized option %q", key)
	if matches := fuzzy.Find(key, optionNames); len(matches) > 0 {
		return err.WithDetail(fmt.Sprintf("did you mean %q?", matches[0].Str))
	}
	return err.WithDetail(`enter "help" for the list of options`)
}

// configView is what the config built-in prints.
type configView struct {
	Endpoint string  `yaml:"endpoint,omitempty"`
	Path     string  `yaml:"path"`
	Previous string  `yaml:"previous"`
	Options  Options `yaml:"options"`
}

func (s *Shell) showConfig() output {
	data, err := yaml.Marshal(configView{
		Endpoint: s.endpoint,
		Path:     s.state.Current,
		Previous: s.state.Last,
		Options:  s.state.Options,
	})
	if err != nil {
		return output{err: fmt.Errorf("failed to render configuration: %w", err)}
	}
	return text(string(data))
}

func (s *Shell) showHistory(args []string) output {
	limit := 0
	switch len(args) {
	case 0:
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return output{err: clierr.Usage("usage: history [N]")}
		}
		limit = n
	default:
		return output{err: clierr.Usage("usage: history [N]")}
	}

	lines := s.history.Last(limit)
	first := s.history.Len() - len(lines) + 1
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%5d  %s\n", first+i, line)
	}
	return text(b.String())
}

func (s *Shell) copyLast() error {
	last := s.lastOutput()
	if last == "" {
		return clierr.Usage("nothing to copy yet")
	}
	if err := s.clipboard(last); err != nil {
		return clierr.Usage("failed to copy to clipboard: %w", err)
	}
	return nil
}
