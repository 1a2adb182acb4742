// Package httpx implements the outbound HTTP request tool.
package httpx

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/opsgate/opsgate/internal/profile"
	"github.com/opsgate/opsgate/internal/tool"
)

// MaxCaptureBytes bounds how much of a response body is captured.
const MaxCaptureBytes = 1 << 20

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// Handler performs HTTP requests on behalf of the caller.
type Handler struct {
	profiles *profile.Store
}

// New creates the HTTP handler.
func New(profiles *profile.Store) *Handler {
	return &Handler{profiles: profiles}
}

func (h *Handler) Name() string        { return "mcp_http" }
func (h *Handler) Description() string { return "Perform an outbound HTTP request" }

func (h *Handler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"method": {"type": "string"},
			"url": {"type": "string"},
			"headers": {"type": "object"},
			"body": {"type": "string"},
			"profile": {"type": "string"},
			"insecure_skip_verify": {"type": "boolean"}
		},
		"required": ["url"],
		"additionalProperties": true
	}`)
}

// Example implements tool.Exampler.
func (h *Handler) Example() map[string]any {
	return map[string]any{"method": "GET", "url": "https://example.com/health"}
}

func (h *Handler) Execute(ctx context.Context, call tool.ResolvedCall) (any, error) {
	args := tool.Args(call.Args)
	switch call.Action {
	case "", "request":
	default:
		return nil, tool.InvalidArgs("action_unknown", "http supports request, not %q", call.Action)
	}

	if name, err := args.String("profile"); err != nil {
		return nil, err
	} else if name != "" {
		if h.profiles == nil {
			return nil, tool.NotFound("profile_unknown", "no profile store is configured")
		}
		p, err := h.profiles.Export(name)
		if err != nil {
			return nil, err
		}
		args = tool.Args(tool.FillMissing(args, p.Data))
	}

	rawURL, err := args.RequiredString("url")
	if err != nil {
		return nil, err
	}
	method, err := args.String("method")
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)
	if !allowedMethods[method] {
		return nil, tool.InvalidArgs("method_unknown", "unsupported HTTP method %q", method)
	}
	body, err := args.String("body")
	if err != nil {
		return nil, err
	}
	headers, err := args.Map("headers")
	if err != nil {
		return nil, err
	}
	insecure, err := args.Bool("insecure_skip_verify", false)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, tool.InvalidArgs("url_invalid", "building request: %s", err.Error())
	}
	for key, value := range headers {
		s, ok := value.(string)
		if !ok {
			return nil, tool.InvalidArgs("arg_type", "header %q must be a string", key)
		}
		req.Header.Set(key, s)
	}

	client := &http.Client{}
	if insecure {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, tool.Timeout("deadline_exceeded", "request did not finish in time")
		}
		return nil, tool.Upstream("http_request", true, "performing request: %s", err.Error())
	}
	defer resp.Body.Close()

	captured, err := io.ReadAll(io.LimitReader(resp.Body, MaxCaptureBytes+1))
	if err != nil {
		return nil, tool.Upstream("http_read", true, "reading response: %s", err.Error())
	}
	truncated := len(captured) > MaxCaptureBytes
	if truncated {
		captured = captured[:MaxCaptureBytes]
	}

	respHeaders := map[string]string{}
	for key := range resp.Header {
		respHeaders[key] = resp.Header.Get(key)
	}

	result := map[string]any{
		"status":      resp.Status,
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"bytes":       len(captured),
		"truncated":   truncated,
	}
	if utf8.Valid(captured) {
		result["body"] = string(captured)
	} else {
		result["body_base64"] = captured
	}
	return result, nil
}
