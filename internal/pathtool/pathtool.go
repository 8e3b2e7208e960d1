// Package pathtool normalizes and resolves the hierarchical API paths the
// shell navigates with `cd`.
package pathtool

import (
	"errors"
	"regexp"
	"strings"

	"github.com/studiowebux/restsh/internal/clierr"
)

// Root is the top of every path walk.
const Root = "/"

// ErrOutOfBounds is returned when `..` would climb above the root.
var ErrOutOfBounds = errors.New("path is out of bounds")

var slashRuns = regexp.MustCompile(`/{2,}`)

// Normalize collapses runs of slashes, strips the trailing slash and, when
// absolute is set, guarantees a leading slash. Normalize is idempotent.
func Normalize(path string, absolute bool) string {
	path = slashRuns.ReplaceAllString(path, "/")
	path = strings.TrimRight(path, "/")
	if absolute && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// Resolve walks input against current and returns an absolute,
// slash-terminated path. An empty input returns last, so that a bare `cd`
// toggles between the two most recent locations.
func Resolve(current, last, input string) (string, error) {
	if input == "" {
		if last == "" {
			return Root, nil
		}
		return last, nil
	}

	var stack []string
	if !strings.HasPrefix(input, "/") {
		stack = segments(current)
	}

	for _, segment := range strings.Split(Normalize(input, false), "/") {
		switch segment {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", clierr.Usage("%w: %q", ErrOutOfBounds, input)
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, segment)
		}
	}

	if len(stack) == 0 {
		return Root, nil
	}
	return "/" + strings.Join(stack, "/") + "/", nil
}

// Join appends an API path to an endpoint base path, producing the path
// component of a request URL.
func Join(base, path string) string {
	return Normalize(base+"/"+path, true)
}

func segments(path string) []string {
	var out []string
	for _, segment := range strings.Split(path, "/") {
		if segment != "" && segment != "." {
			out = append(out, segment)
		}
	}
	return out
}
