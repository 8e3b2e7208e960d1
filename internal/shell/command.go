package shell

import (
	"os"
	"strings"

	"github.com/google/shlex"

	"github.com/studiowebux/restsh/internal/clierr"
	"github.com/studiowebux/restsh/internal/filter"
	"github.com/studiowebux/restsh/internal/params"
	"github.com/studiowebux/restsh/internal/pathtool"
	"github.com/studiowebux/restsh/internal/types"
)

// EscapePrefix marks a line run by the system shell.
const EscapePrefix = "!"

// Built-in command names.
const (
	BuiltinSet     = "set"
	BuiltinCd      = "cd"
	BuiltinConfig  = "config"
	BuiltinHelp    = "help"
	BuiltinQuit    = "quit"
	BuiltinExit    = "exit"
	BuiltinSh      = "sh"
	BuiltinPwd     = "pwd"
	BuiltinHistory = "history"
	BuiltinCopy    = "copy"
)

var builtins = map[string]bool{
	BuiltinSet: true, BuiltinCd: true, BuiltinConfig: true, BuiltinHelp: true,
	BuiltinQuit: true, BuiltinExit: true, BuiltinSh: true, BuiltinPwd: true,
	BuiltinHistory: true, BuiltinCopy: true,
}

// IsBuiltin reports whether word names a built-in command.
func IsBuiltin(word string) bool { return builtins[word] }

// Kind tells what a parsed line asks for.
type Kind int

const (
	KindEmpty Kind = iota
	KindAPI
	KindBuiltin
	KindEscape
)

// Redirect is an output redirection target.
type Redirect struct {
	Path   string
	Append bool
}

// Command is one parsed input line.
type Command struct {
	Kind    Kind
	Builtin string
	Args    []string // built-in arguments, or the escaped shell line

	Method  string // explicit verb, empty when inferred
	RawPath string
	Path    string // resolved, absolute
	Params  *params.Node
	Files   map[string]string
	Query   []string
	Post    []string
	Headers map[string]string
	Filter  string // -q expression

	// Flags only turn options on; the shell ORs them with its settings.
	Options  types.CallOptions
	Color    bool
	Redirect *Redirect
}

// HTTPMethod returns the verb to send: the explicit one, else POST when
// parameters are present and GET otherwise.
func (c *Command) HTTPMethod() string {
	if c.Method != "" {
		return c.Method
	}
	if !c.Params.IsEmpty() {
		return types.MethodPost
	}
	return types.MethodGet
}

// ParseLine tokenizes line with shell-word rules and parses it against the
// current location.
func (s *Shell) ParseLine(line string) (*Command, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return &Command{Kind: KindEmpty}, nil
	}
	if strings.HasPrefix(trimmed, EscapePrefix) {
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, EscapePrefix))
		if rest == "" {
			return nil, clierr.Usage("missing command after %q", EscapePrefix)
		}
		return &Command{Kind: KindEscape, Args: []string{rest}}, nil
	}

	tokens, err := shlex.Split(trimmed)
	if err != nil {
		return nil, clierr.Usage("failed to parse command line: %w", err)
	}
	return s.ParseTokens(tokens)
}

// ParseTokens parses an already tokenized command line.
func (s *Shell) ParseTokens(tokens []string) (*Command, error) {
	cmd := &Command{Params: params.NewTree()}
	p := &tokenParser{tokens: tokens}

	for p.next() {
		tok := p.current()

		if !p.positionalOnly {
			handled, err := p.redirect(cmd, tok)
			if err != nil {
				return nil, err
			}
			if handled {
				continue
			}
		}
		if cmd.Builtin == BuiltinSh {
			cmd.Args = append(cmd.Args, tok)
			continue
		}
		if !p.positionalOnly {
			handled, err := p.option(cmd, tok)
			if err != nil {
				return nil, err
			}
			if handled {
				continue
			}
		}

		switch {
		case cmd.Method == "" && cmd.RawPath == "" && cmd.Builtin == "":
			switch {
			case types.IsMethod(tok):
				cmd.Method = strings.ToUpper(tok)
			case IsBuiltin(tok):
				cmd.Builtin = tok
			default:
				cmd.RawPath = tok
			}
		case cmd.Builtin != "":
			cmd.Args = append(cmd.Args, tok)
		case cmd.RawPath == "":
			cmd.RawPath = tok
		default:
			if err := cmd.Params.Assign(tok); err != nil {
				return nil, err
			}
		}
	}

	switch {
	case cmd.Builtin != "":
		cmd.Kind = KindBuiltin
	case cmd.Method != "" || cmd.RawPath != "":
		cmd.Kind = KindAPI
		cmd.Path = s.state.Current
		if cmd.RawPath != "" {
			resolved, err := pathtool.Resolve(s.state.Current, s.state.Last, cmd.RawPath)
			if err != nil {
				return nil, err
			}
			cmd.Path = resolved
		}
	default:
		if cmd.Redirect != nil || !cmd.Params.IsEmpty() {
			return nil, clierr.Usage("missing API path or command")
		}
		cmd.Kind = KindEmpty
	}
	return cmd, nil
}

type tokenParser struct {
	tokens         []string
	pos            int
	started        bool
	positionalOnly bool
}

func (p *tokenParser) next() bool {
	if p.started {
		p.pos++
	}
	p.started = true
	return p.pos < len(p.tokens)
}

func (p *tokenParser) current() string { return p.tokens[p.pos] }

// value consumes the argument of flag.
func (p *tokenParser) value(flag string) (string, error) {
	if p.pos+1 >= len(p.tokens) {
		return "", clierr.Usage("option %s requires a value", flag)
	}
	p.pos++
	return p.tokens[p.pos], nil
}

// redirect applies tok when it is an output redirection.
func (p *tokenParser) redirect(cmd *Command, tok string) (bool, error) {
	switch {
	case tok == ">" || tok == ">>":
		target, err := p.value(tok)
		if err != nil {
			return false, err
		}
		cmd.Redirect = &Redirect{Path: target, Append: tok == ">>"}
		return true, nil
	case strings.HasPrefix(tok, ">>"):
		cmd.Redirect = &Redirect{Path: tok[2:], Append: true}
		return true, nil
	case strings.HasPrefix(tok, ">"):
		cmd.Redirect = &Redirect{Path: tok[1:]}
		return true, nil
	}
	return false, nil
}

// option applies tok when it is a flag.
func (p *tokenParser) option(cmd *Command, tok string) (bool, error) {
	switch {
	case tok == "--":
		p.positionalOnly = true
		return true, nil
	case len(tok) < 2 || tok[0] != '-':
		return false, nil
	}

	flag, inline, hasInline := tok, "", false
	if strings.HasPrefix(tok, "--") {
		flag, inline, hasInline = strings.Cut(tok, "=")
	}
	arg := func() (string, error) {
		if hasInline {
			return inline, nil
		}
		return p.value(flag)
	}

	switch flag {
	case "-F", "--file":
		v, err := arg()
		if err != nil {
			return false, err
		}
		name, path, ok := strings.Cut(v, "=")
		if !ok || name == "" || path == "" {
			return false, clierr.Usage("invalid file %q, expected name=path", v)
		}
		if _, err := os.Stat(path); err != nil {
			return false, clierr.Usage("file %q for %q not found: %w", path, name, err)
		}
		if cmd.Files == nil {
			cmd.Files = map[string]string{}
		}
		cmd.Files[name] = path
	case "-G", "--get":
		v, err := arg()
		if err != nil {
			return false, err
		}
		if !strings.Contains(v, "=") || strings.Contains(v, "&") {
			return false, clierr.Usage("invalid GET data %q, expected a single name=value pair", v)
		}
		cmd.Query = append(cmd.Query, v)
	case "-P", "--post":
		v, err := arg()
		if err != nil {
			return false, err
		}
		if !strings.Contains(v, "=") || strings.Contains(v, "&") {
			return false, clierr.Usage("invalid POST data %q, expected a single name=value pair", v)
		}
		cmd.Post = append(cmd.Post, v)
	case "-H", "--header":
		v, err := arg()
		if err != nil {
			return false, err
		}
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return false, clierr.Usage("invalid header %q, expected Name:Value", v)
		}
		if cmd.Headers == nil {
			cmd.Headers = map[string]string{}
		}
		cmd.Headers[name] = strings.TrimSpace(value)
	case "-q", "--query":
		v, err := arg()
		if err != nil {
			return false, err
		}
		if _, isShell := filter.ShellCommand(v); !isShell && !filter.IsValidJMESPath(v) {
			return false, clierr.Usage("invalid JMESPath expression %q", v)
		}
		cmd.Filter = v
	case "-j", "--json":
		v, err := arg()
		if err != nil {
			return false, err
		}
		if err := mergeJSON(cmd.Params, v); err != nil {
			return false, err
		}
	case "-f", "--full":
		cmd.Options.Full = true
	case "-r", "--raw":
		cmd.Options.Raw = true
	case "-n", "--no-format":
		cmd.Options.NoFormat = true
	case "-v", "--verbose":
		cmd.Options.Verbose = true
	case "-c", "--color":
		cmd.Color = true
	default:
		return false, clierr.Usage("unknown option %q", tok)
	}
	return true, nil
}

// mergeJSON folds the keys of a JSON object into tree.
func mergeJSON(tree *params.Node, data string) error {
	obj, err := params.FromJSON([]byte(data))
	if err != nil {
		return err
	}
	for _, key := range obj.Keys() {
		child, _ := obj.Get(key)
		if err := tree.Set([]string{key}, child); err != nil {
			return err
		}
	}
	return nil
}
