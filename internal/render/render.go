package render

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"

	"github.com/studiowebux/restsh/internal/executor"
	"github.com/studiowebux/restsh/internal/types"
)

// Adaptive color definitions for light/dark terminal support
var (
	colorRed    = lipgloss.AdaptiveColor{Light: "#8b0000", Dark: "#ff0000"}
	colorYellow = lipgloss.AdaptiveColor{Light: "#b8860b", Dark: "#ffff00"}
	colorCyan   = lipgloss.AdaptiveColor{Light: "#008b8b", Dark: "#00ffff"}
	colorGray   = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#888888"}
)

// Style definitions
var (
	stylePrompt = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	styleError = lipgloss.NewStyle().
			Foreground(colorRed)

	styleWarning = lipgloss.NewStyle().
			Foreground(colorYellow)

	styleSubtle = lipgloss.NewStyle().
			Foreground(colorGray)
)

// Renderer writes failures and notices to the error stream.
type Renderer struct {
	errOut io.Writer
}

// New creates a renderer writing to errOut.
func New(errOut io.Writer) *Renderer {
	return &Renderer{errOut: errOut}
}

// Format renders a successful result. Text results are returned as is
// (newline terminated), data is pretty-printed JSON, highlighted when color
// is on and the result is not raw. A nil payload renders as nothing.
func Format(result *types.ApiResult, opts types.DisplayOptions) (string, error) {
	if result.IsText {
		return terminate(result.Text), nil
	}
	if result.Data == nil {
		return "", nil
	}

	text, err := executor.Marshal(result.Data, false)
	if err != nil {
		return "", fmt.Errorf("failed to format response: %w", err)
	}
	if opts.Color && !opts.Raw {
		text = Highlight(text)
	}
	return terminate(text), nil
}

// Failure writes "! reason" to the error stream.
func (r *Renderer) Failure(err error, color bool) {
	msg := "! " + err.Error()
	if color {
		msg = styleError.Render(msg)
	}
	_, _ = io.WriteString(r.errOut, msg+"\n")
}

// Warning writes a non-fatal notice to the error stream.
func (r *Renderer) Warning(msg string, color bool) {
	msg = "# " + msg
	if color {
		msg = styleWarning.Render(msg)
	}
	_, _ = io.WriteString(r.errOut, msg+"\n")
}

// Prompt renders the interactive prompt for the current path.
func Prompt(path string, color bool) string {
	if !color {
		return path + " > "
	}
	return stylePrompt.Render(path) + styleSubtle.Render(" > ")
}

// Highlight colors a JSON document for a 256-color terminal. On failure
// the text is returned unchanged.
func Highlight(code string) string {
	var buffer bytes.Buffer
	if err := quick.Highlight(&buffer, code, "json", "terminal256", "monokai"); err != nil {
		return code
	}
	return buffer.String()
}

func terminate(text string) string {
	if text == "" || strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}
