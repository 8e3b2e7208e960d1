package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/studiowebux/restsh/internal/clierr"
	"github.com/studiowebux/restsh/internal/types"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		result *types.ApiResult
		want   string
	}{
		{"text", &types.ApiResult{IsText: true, Text: "plain"}, "plain\n"},
		{"terminated text", &types.ApiResult{IsText: true, Text: "{}\n"}, "{}\n"},
		{"nil data", &types.ApiResult{}, ""},
		{"object", &types.ApiResult{Data: map[string]any{"id": json.Number("5"), "a": "b"}}, "{\n    \"a\": \"b\",\n    \"id\": 5\n}\n"},
		{"scalar", &types.ApiResult{Data: "ok"}, "\"ok\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.result, types.DisplayOptions{})
			if err != nil {
				t.Fatalf("Format() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormat_ColorKeepsContent(t *testing.T) {
	result := &types.ApiResult{Data: map[string]any{"name": "widget"}}
	got, err := Format(result, types.DisplayOptions{Color: true})
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}
	if !strings.Contains(got, "widget") {
		t.Errorf("Format() = %q, want it to contain the value", got)
	}
}

func TestRenderer_Failure(t *testing.T) {
	var errOut bytes.Buffer
	r := New(&errOut)

	r.Failure(clierr.API("not found"), false)
	r.Failure(errors.New("boom"), false)

	want := "! not found\n! boom\n"
	if errOut.String() != want {
		t.Errorf("stderr = %q, want %q", errOut.String(), want)
	}
}

func TestPrompt(t *testing.T) {
	if got := Prompt("/site/", false); got != "/site/ > " {
		t.Errorf("Prompt(/site/, false) = %q, want %q", got, "/site/ > ")
	}
	if got := Prompt("/site/", true); !strings.Contains(got, "/site/") {
		t.Errorf("Prompt(/site/, true) = %q, want it to contain the path", got)
	}
}

func TestRenderer_Warning(t *testing.T) {
	var errOut bytes.Buffer
	r := New(&errOut)

	r.Warning("history unavailable", false)

	if errOut.String() != "# history unavailable\n" {
		t.Errorf("stderr = %q, want %q", errOut.String(), "# history unavailable\n")
	}
}
