package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/studiowebux/restsh/internal/clierr"
	"github.com/studiowebux/restsh/internal/types"
)

const unknownFailure = "An unknown error has occurred."

// classify turns a received response into an ApiResult. Only a body that
// claims to be JSON but is not yields an error.
func classify(apiPath string, opts types.CallOptions, resp *response) (*types.ApiResult, error) {
	result := &types.ApiResult{Status: resp.status}
	isJSON := isJSONContent(resp.header.Get("Content-Type"))

	if !IsSuccessStatus(resp.status) {
		result.Failure = statusFailure(apiPath, opts, resp, isJSON)
		return result, nil
	}

	if !isJSON {
		result.IsText = true
		result.Text = string(resp.body)
		return result, nil
	}

	payload, err := decodeBody(resp.body)
	if err != nil {
		return nil, clierr.Decode("failed to decode response of API %q: %w", apiPath, err).
			WithDetail(string(resp.body))
	}

	envelope, isObject := payload.(map[string]any)
	if !isObject {
		return succeed(result, opts, payload, true)
	}

	if ok, present := envelope["result"].(bool); present && !ok {
		result.Failure = envelopeFailure(apiPath, opts, envelope)
		return result, nil
	}

	if opts.Full {
		return succeed(result, opts, envelope, true)
	}
	data, present := envelope["data"]
	return succeed(result, opts, data, present)
}

func succeed(result *types.ApiResult, opts types.CallOptions, data any, present bool) (*types.ApiResult, error) {
	if !opts.Raw {
		result.Data = data
		return result, nil
	}
	if !present {
		data = map[string]any{}
	}
	text, err := Marshal(data, opts.NoFormat)
	if err != nil {
		return nil, clierr.Decode("failed to re-encode response: %w", err)
	}
	result.IsText = true
	result.Text = text + "\n"
	return result, nil
}

func statusFailure(apiPath string, opts types.CallOptions, resp *response, isJSON bool) *clierr.Error {
	raw := strings.TrimSpace(string(resp.body))
	reason := ""
	var payload any
	if isJSON && !opts.Raw {
		if decoded, err := decodeBody(resp.body); err == nil {
			payload = decoded
			if obj, ok := decoded.(map[string]any); ok {
				reason, _ = obj["reason"].(string)
			}
		}
	}
	if reason == "" {
		reason = raw
	}
	if reason == "" {
		reason = unknownFailure
	}

	failure := clierr.API("API %q failed (%d %s): %s", apiPath, resp.status, resp.reason, reason)
	if opts.Full {
		detail := raw
		if payload != nil {
			if pretty, err := Marshal(payload, false); err == nil {
				detail = pretty
			}
		}
		if detail != "" {
			failure = failure.WithDetail(detail)
		}
	}
	return failure
}

func envelopeFailure(apiPath string, opts types.CallOptions, envelope map[string]any) *clierr.Error {
	reason, _ := envelope["reason"].(string)
	if reason == "" {
		failure := clierr.API("API %q failed but did not provide an explanation", apiPath)
		if opts.Full {
			if pretty, err := Marshal(envelope, false); err == nil {
				failure = failure.WithDetail(pretty)
			}
		}
		return failure
	}
	if !opts.Full {
		return clierr.API("%s", reason)
	}
	failure := clierr.API("API %q failed: %s", apiPath, reason)
	if pretty, err := Marshal(envelope, false); err == nil {
		failure = failure.WithDetail(pretty)
	}
	return failure
}

// Marshal renders v as JSON with sorted keys, indented by four spaces unless
// compact is set.
func Marshal(v any, compact bool) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if !compact {
		enc.SetIndent("", "    ")
	}
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func decodeBody(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value at offset %d", dec.InputOffset())
	}
	return v, nil
}

func isJSONContent(contentType string) bool {
	if contentType == "" {
		return false
	}
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return media == contentTypeJSON || strings.HasSuffix(media, "+json")
}
