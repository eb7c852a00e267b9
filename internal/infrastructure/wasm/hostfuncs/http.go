package hostfuncs

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/warden-dev/warden/internal/version"
)

const maxResponseBody = 10 * 1024 * 1024

// ErrNoNetwork is returned when the plugin profile denies network access.
var ErrNoNetwork = errors.New("network access not granted")

// HTTPRequestWire is the wire form of http_request. Body is base64.
type HTTPRequestWire struct {
	Method    string              `json:"method"`
	URL       string              `json:"url"`
	Headers   map[string][]string `json:"headers,omitempty"`
	Body      string              `json:"body,omitempty"`
	TimeoutMs int64               `json:"timeoutMs,omitempty"`
}

// HTTPResponseWire is the data of an http_request response. Body is base64.
type HTTPResponseWire struct {
	StatusCode    int                 `json:"statusCode"`
	Headers       map[string][]string `json:"headers,omitempty"`
	Body          string              `json:"body,omitempty"`
	BodyTruncated bool                `json:"bodyTruncated,omitempty"`
}

// HTTPRequest implements http_request through the plugin's guarded client, so
// only hosts its profile grants are reachable.
func HTTPRequest(ctx context.Context, mod api.Module, stack []uint64) {
	var req HTTPRequestWire
	g, err := guestCall(ctx, mod, stack[0], &req)
	if err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}

	client := g.Context.HTTP()
	if client == nil {
		stack[0] = writeError(ctx, mod, ErrNoNetwork)
		return
	}

	resp, err := doHTTP(ctx, client, req)
	if err != nil {
		g.Context.Logger().WarnContext(ctx, "plugin http request failed", "url", req.URL, "method", req.Method, "error", err)
		stack[0] = writeError(ctx, mod, err)
		return
	}
	stack[0] = writeResponse(ctx, mod, Response{Data: resp})
}

func doHTTP(ctx context.Context, client *http.Client, wire HTTPRequestWire) (*HTTPResponseWire, error) {
	if wire.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(wire.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	var body io.Reader
	if wire.Body != "" {
		decoded, err := base64.StdEncoding.DecodeString(wire.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode request body: %w", err)
		}
		body = bytes.NewReader(decoded)
	}

	method := wire.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, wire.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("User-Agent", version.Get().UserAgent())
	for key, values := range wire.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	out := &HTTPResponseWire{StatusCode: resp.StatusCode, Headers: resp.Header}
	if len(data) > maxResponseBody {
		data = data[:maxResponseBody]
		out.BodyTruncated = true
		slog.WarnContext(ctx, "plugin http response truncated", "url", wire.URL, "max_size_mb", maxResponseBody/(1024*1024))
	}
	if len(data) > 0 {
		out.Body = base64.StdEncoding.EncodeToString(data)
	}
	return out, nil
}
