package hostfuncs

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackPtrLen(t *testing.T) {
	t.Parallel()

	packed := PackPtrLen(0xdeadbeef, 42)
	ptr, length := UnpackPtrLen(packed)
	assert.Equal(t, uint32(0xdeadbeef), ptr)
	assert.Equal(t, uint32(42), length)

	ptr, length = UnpackPtrLen(0)
	assert.Zero(t, ptr)
	assert.Zero(t, length)
}

func TestGuestFromContext(t *testing.T) {
	t.Parallel()

	_, ok := GuestFromContext(context.Background())
	assert.False(t, ok)

	_, ok = GuestFromContext(WithGuest(context.Background(), &Guest{}))
	assert.False(t, ok, "a guest without a plugin context is unusable")
}

func TestClassifyExec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command string
		args    []string
		want    execKind
	}{
		{name: "plain binary", command: "/usr/bin/git", args: []string{"status"}, want: execSafe},
		{name: "shell without args", command: "bash", want: execSafe},
		{name: "shell script", command: "/bin/sh", args: []string{"-c", "rm -rf /"}, want: execShell},
		{name: "python eval", command: "python3", args: []string{"-c", "print(1)"}, want: execInterpreter},
		{name: "versioned python", command: "python3.12", args: []string{"-c", "1"}, want: execInterpreter},
		{name: "python script", command: "python3", args: []string{"script.py"}, want: execSafe},
		{name: "node eval flag with value", command: "node", args: []string{"--eval=1"}, want: execInterpreter},
		{name: "perl", command: "perl", args: []string{"-E", "say 1"}, want: execInterpreter},
		{name: "awk block", command: "gawk", args: []string{"BEGIN { system(\"id\") }"}, want: execInterpreter},
		{name: "awk field", command: "awk", args: []string{"{print $1}"}, want: execSafe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, classifyExec(tt.command, tt.args))
		})
	}
}

func TestBoundedBuffer(t *testing.T) {
	t.Parallel()

	b := NewBoundedBuffer(5)
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, b.Truncated)

	n, err = b.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.True(t, b.Truncated)
	assert.Equal(t, "abcde", b.String())

	n, err = b.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcde", b.String())
}

func TestRunCommand(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	t.Run("captures output and exit code", func(t *testing.T) {
		t.Parallel()
		resp, err := runCommand(context.Background(), ExecRequestWire{
			Command: "sh",
			Args:    []string{"-c", "echo out; echo err >&2; exit 3"},
		})
		require.NoError(t, err)
		assert.Equal(t, "out\n", resp.Stdout)
		assert.Equal(t, "err\n", resp.Stderr)
		assert.Equal(t, 3, resp.ExitCode)
		assert.False(t, resp.TimedOut)
	})

	t.Run("does not inherit the host environment", func(t *testing.T) {
		t.Parallel()
		resp, err := runCommand(context.Background(), ExecRequestWire{
			Command: "sh",
			Args:    []string{"-c", "echo \"[$HOME][$ONLY]\""},
			Env:     []string{"ONLY=set"},
		})
		require.NoError(t, err)
		assert.Equal(t, "[][set]\n", resp.Stdout)
	})

	t.Run("times out", func(t *testing.T) {
		t.Parallel()
		resp, err := runCommand(context.Background(), ExecRequestWire{
			Command:   "sh",
			Args:      []string{"-c", "exec sleep 5"},
			TimeoutMs: 50,
		})
		require.NoError(t, err)
		assert.True(t, resp.TimedOut)
		assert.Less(t, resp.DurationMs, int64(5000))
	})

	t.Run("missing binary", func(t *testing.T) {
		t.Parallel()
		_, err := runCommand(context.Background(), ExecRequestWire{Command: "/nonexistent/warden-test-binary"})
		require.Error(t, err)
	})
}

func TestDoHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Agent", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("echo:" + string(body)))
	}))
	t.Cleanup(srv.Close)

	resp, err := doHTTP(context.Background(), srv.Client(), HTTPRequestWire{
		Method: http.MethodPost,
		URL:    srv.URL,
		Body:   base64.StdEncoding.EncodeToString([]byte("ping")),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{http.MethodPost}, resp.Headers["X-Method"])
	assert.True(t, strings.HasPrefix(resp.Headers["X-Agent"][0], "warden/"))
	body, err := base64.StdEncoding.DecodeString(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "echo:ping", string(body))
	assert.False(t, resp.BodyTruncated)
}

func TestDoHTTP_Errors(t *testing.T) {
	t.Parallel()

	_, err := doHTTP(context.Background(), http.DefaultClient, HTTPRequestWire{URL: "http://127.0.0.1", Body: "%%%"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode request body")

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	_, err = doHTTP(context.Background(), slow.Client(), HTTPRequestWire{URL: slow.URL, TimeoutMs: 20})
	require.Error(t, err)
}

func TestConvertAttr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   LogAttrWire
		want slog.Value
	}{
		{in: LogAttrWire{Key: "n", Type: "int64", Value: "7"}, want: slog.Int64Value(7)},
		{in: LogAttrWire{Key: "b", Type: "bool", Value: "true"}, want: slog.BoolValue(true)},
		{in: LogAttrWire{Key: "f", Type: "float64", Value: "1.5"}, want: slog.Float64Value(1.5)},
		{in: LogAttrWire{Key: "s", Type: "string", Value: "x"}, want: slog.StringValue("x")},
		{in: LogAttrWire{Key: "bad", Type: "int64", Value: "seven"}, want: slog.StringValue("seven")},
	}

	for _, tt := range tests {
		got := convertAttr(tt.in)
		assert.Equal(t, tt.in.Key, got.Key)
		assert.True(t, tt.want.Equal(got.Value), "%s: got %v", tt.in.Key, got.Value)
	}
}
