package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/jmespath/go-jmespath"

	"github.com/studiowebux/restsh/internal/clierr"
)

const (
	// QueryShellTimeout is the maximum time allowed for query shell command execution
	QueryShellTimeout = 30 * time.Second
)

var (
	// Shell command pattern: $(command)
	shellPattern = regexp.MustCompile(`^\$\((.+)\)$`)
)

// Apply runs a JMESPath expression against decoded response data.
// Numbers decoded as json.Number are converted so comparisons work.
func Apply(data any, expression string) (any, error) {
	if expression == "" {
		return data, nil
	}

	jp, err := jmespath.Compile(expression)
	if err != nil {
		return nil, clierr.Usage("invalid JMESPath expression '%s': %w", expression, err)
	}

	result, err := jp.Search(plain(data))
	if err != nil {
		return nil, clierr.Usage("JMESPath search failed: %w", err)
	}
	return result, nil
}

// ApplyText decodes a JSON document and applies expression to it.
func ApplyText(body string, expression string) (any, error) {
	var data any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil, clierr.Decode("invalid JSON: %w", err)
	}
	return Apply(data, expression)
}

// Shell runs command through sh with body piped to stdin and returns its
// trimmed stdout.
func Shell(ctx context.Context, body string, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryShellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = strings.NewReader(body)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := err.Error()
		if stderr.Len() > 0 {
			errMsg = strings.TrimSpace(stderr.String())
		}
		return "", clierr.Usage("command '%s' failed: %s", command, errMsg)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// ShellCommand extracts the command of a $(...) query.
func ShellCommand(query string) (string, bool) {
	matches := shellPattern.FindStringSubmatch(strings.TrimSpace(query))
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// IsValidJMESPath checks if an expression is valid JMESPath syntax
func IsValidJMESPath(expression string) bool {
	_, err := jmespath.Compile(expression)
	return err == nil
}

// plain rewrites json.Number leaves as float64, the only numeric type
// go-jmespath compares.
func plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = plain(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = plain(child)
		}
		return out
	default:
		return v
	}
}
