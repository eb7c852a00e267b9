package hostfuncs

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/tetratelabs/wazero/api"
)

const maxExecOutput = 10 * 1024 * 1024

// ErrNoSubprocess is returned when the plugin profile denies subprocesses.
var ErrNoSubprocess = errors.New("subprocess execution not granted")

// ExecRequestWire is the wire form of exec_command.
type ExecRequestWire struct {
	Command   string   `json:"command"`
	Args      []string `json:"args,omitempty"`
	Dir       string   `json:"dir,omitempty"`
	Env       []string `json:"env,omitempty"`
	TimeoutMs int64    `json:"timeoutMs,omitempty"`
}

// ExecResponseWire is the data of an exec_command response.
type ExecResponseWire struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exitCode"`
	DurationMs int64  `json:"durationMs"`
	Truncated  bool   `json:"truncated,omitempty"`
	TimedOut   bool   `json:"timedOut,omitempty"`
}

// ExecCommand implements exec_command for plugins whose profile grants
// subprocesses. The child never inherits the host environment.
func ExecCommand(ctx context.Context, mod api.Module, stack []uint64) {
	var req ExecRequestWire
	g, err := guestCall(ctx, mod, stack[0], &req)
	if err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}

	logger := g.Context.Logger()
	if !g.Context.Profile().Subprocess {
		logger.WarnContext(ctx, "subprocess denied", "command", req.Command)
		stack[0] = writeError(ctx, mod, ErrNoSubprocess)
		return
	}
	if req.Command == "" {
		stack[0] = writeError(ctx, mod, errors.New("command is required"))
		return
	}

	if kind := classifyExec(req.Command, req.Args); kind != execSafe {
		logger.WarnContext(ctx, "plugin running arbitrary code", "command", req.Command, "args", req.Args, "kind", string(kind))
	}

	resp, err := runCommand(ctx, req)
	if err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}
	logger.DebugContext(ctx, "executed command", "command", req.Command, "exit_code", resp.ExitCode, "duration_ms", resp.DurationMs)
	stack[0] = writeResponse(ctx, mod, Response{Data: resp})
}

func runCommand(ctx context.Context, req ExecRequestWire) (*ExecResponseWire, error) {
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	//nolint:gosec // G204: gated on the tier 3 subprocess grant; no shell interpretation
	cmd := exec.CommandContext(ctx, req.Command, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = append([]string{}, req.Env...)
	cmd.WaitDelay = time.Second

	stdout := NewBoundedBuffer(maxExecOutput)
	stderr := NewBoundedBuffer(maxExecOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	resp := &ExecResponseWire{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
		Truncated:  stdout.Truncated || stderr.Truncated,
	}
	if err == nil {
		return resp, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		resp.ExitCode = exitErr.ExitCode()
		resp.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
		return resp, nil
	}
	return nil, err
}

// BoundedBuffer keeps at most limit bytes and records whether it dropped any.
type BoundedBuffer struct {
	buffer    bytes.Buffer
	limit     int
	Truncated bool
}

// NewBoundedBuffer creates a BoundedBuffer holding up to limit bytes.
func NewBoundedBuffer(limit int) *BoundedBuffer {
	return &BoundedBuffer{limit: limit}
}

// Write implements io.Writer. It never reports a short write.
func (b *BoundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buffer.Len()
	if remaining <= 0 {
		b.Truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.Truncated = true
		b.buffer.Write(p[:remaining])
		return len(p), nil
	}
	return b.buffer.Write(p)
}

func (b *BoundedBuffer) String() string {
	return b.buffer.String()
}

type execKind string

const (
	execSafe        execKind = "safe"
	execShell       execKind = "shell"
	execInterpreter execKind = "interpreter"
)

var (
	shells       = []string{"sh", "bash", "dash", "zsh", "ksh", "csh", "tcsh", "fish"}
	evalFlags    = map[string][]string{"python": {"-c"}, "perl": {"-e", "-E"}, "ruby": {"-e"}, "node": {"-e", "--eval"}, "php": {"-r"}, "lua": {"-e"}}
	awkVariants  = []string{"awk", "gawk", "mawk", "nawk"}
	awkBlockTags = []string{"BEGIN{", "BEGIN {", "END{", "END {"}
)

// classifyExec flags shells and interpreters asked to evaluate inline code.
func classifyExec(command string, args []string) execKind {
	base := filepath.Base(command)
	if slices.Contains(shells, base) && len(args) > 0 {
		return execShell
	}

	if slices.Contains(awkVariants, base) {
		for _, a := range args {
			trimmed := strings.TrimSpace(a)
			if slices.ContainsFunc(awkBlockTags, func(tag string) bool { return strings.HasPrefix(trimmed, tag) }) {
				return execInterpreter
			}
		}
	}

	// python3.12 and lua5.4 share flags with their family.
	family := strings.TrimRight(base, "0123456789.")
	for _, flag := range evalFlags[family] {
		for _, a := range args {
			if a == flag || strings.HasPrefix(a, flag+"=") {
				return execInterpreter
			}
		}
	}
	return execSafe
}
