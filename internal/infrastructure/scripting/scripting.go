// Package scripting holds what the JavaScript and Lua runtimes share: call
// limits, the guarded fetch helper and serialized setting notifications.
package scripting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/version"
)

// DefaultCallTimeout bounds one call into script code.
const DefaultCallTimeout = 5 * time.Second

// MaxSourceBytes caps the size of a script entry file.
const MaxSourceBytes = 4 << 20

const maxFetchBody = 10 << 20

// Errors surfaced to scripts.
var (
	ErrNoVault   = errors.New("vault access not granted")
	ErrNoNetwork = errors.New("network access not granted")
	ErrNoEnv     = errors.New("environment access not granted")
	ErrTimeout   = errors.New("script call timed out")
)

// Options configures a script runtime.
type Options struct {
	// CallTimeout bounds each call into the script. Zero means DefaultCallTimeout.
	CallTimeout time.Duration
}

// Timeout returns the effective call timeout.
func (o Options) Timeout() time.Duration {
	if o.CallTimeout <= 0 {
		return DefaultCallTimeout
	}
	return o.CallTimeout
}

// ReadSource loads a script entry file.
func ReadSource(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat script: %w", err)
	}
	if info.Size() > MaxSourceBytes {
		return "", fmt.Errorf("script %s is %d bytes, limit is %d", path, info.Size(), MaxSourceBytes)
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a validated manifest
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(data), nil
}

// Level maps a script log level name to slog. Unknown names log at info.
func Level(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Getenv reads a host environment variable for a plugin granted env access.
func Getenv(pc plugin.Context, name string) (string, error) {
	if !pc.Profile().Env {
		return "", ErrNoEnv
	}
	return os.Getenv(name), nil
}

// Descriptors converts a script value (already exported to plain Go data) to
// setting descriptors.
func Descriptors(v any) ([]plugin.SettingDescriptor, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var descs []plugin.SettingDescriptor
	if err := json.Unmarshal(data, &descs); err != nil {
		return nil, fmt.Errorf("malformed settings declaration: %w", err)
	}
	return descs, nil
}

// FetchRequest is what a script passes to fetch. Body is sent verbatim.
type FetchRequest struct {
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body"`
	TimeoutMs int64             `json:"timeoutMs"`
}

// FetchResponse is what fetch returns to a script.
type FetchResponse struct {
	Status    int               `json:"status"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body"`
	Truncated bool              `json:"truncated"`
}

// DecodeFetch converts an exported script object, or a bare URL string, to a FetchRequest.
func DecodeFetch(v any) (FetchRequest, error) {
	if url, ok := v.(string); ok {
		return FetchRequest{URL: url}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return FetchRequest{}, err
	}
	var req FetchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return FetchRequest{}, fmt.Errorf("malformed fetch request: %w", err)
	}
	if req.URL == "" {
		return FetchRequest{}, errors.New("fetch requires a url")
	}
	return req, nil
}

// Fetch performs req through the plugin's guarded client.
func Fetch(ctx context.Context, pc plugin.Context, req FetchRequest) (*FetchResponse, error) {
	client := pc.HTTP()
	if client == nil {
		return nil, ErrNoNetwork
	}
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", version.Get().UserAgent())
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	out := &FetchResponse{Status: resp.StatusCode, Headers: make(map[string]string, len(resp.Header))}
	if len(data) > maxFetchBody {
		data = data[:maxFetchBody]
		out.Truncated = true
	}
	out.Body = string(data)
	for k := range resp.Header {
		out.Headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	return out, nil
}

type change struct {
	key   string
	value any
}

// Changes delivers setting notifications in order on its own goroutine. A
// script that sets its own setting is notified after its current call returns.
type Changes struct {
	queue  chan change
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewChanges starts a queue that calls fn for each posted change.
func NewChanges(fn func(key string, value any), logger *slog.Logger) *Changes {
	c := &Changes{
		queue:  make(chan change, 16),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		logger: logger,
	}
	go func() {
		defer close(c.exited)
		for {
			select {
			case ch := <-c.queue:
				fn(ch.key, ch.value)
			case <-c.done:
				return
			}
		}
	}()
	return c
}

// Post queues a change without blocking. A full queue drops it.
func (c *Changes) Post(key string, value any) {
	select {
	case <-c.done:
	case c.queue <- change{key: key, value: value}:
	default:
		c.logger.Warn("setting change dropped, handler is behind", "key", key)
	}
}

// Close stops delivery and waits for a change in progress to finish. Pending
// changes are discarded. Close must not be called from fn.
func (c *Changes) Close() {
	c.once.Do(func() { close(c.done) })
	<-c.exited
}
