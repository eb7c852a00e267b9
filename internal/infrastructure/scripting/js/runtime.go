// Package js runs JavaScript plugins on goja. Each enabled plugin gets its own
// interpreter; calls into it are serialized and bounded by a timeout.
//
// A script declares its hooks as globals:
//
//	function init() {}
//	function destroy() {}
//	var settings = [{key: "limit", label: "Limit", type: "number", default: 10}];
//	function onSettingChange(key, value) {}
//
// and reaches the host through the warden global.
package js

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dop251/goja"

	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/infrastructure/scripting"
)

// Extension is the entry point suffix this runtime loads.
const Extension = ".js"

// Runtime loads .js entry points.
type Runtime struct {
	opts   scripting.Options
	logger *slog.Logger
}

var _ plugin.Loader = (*Runtime)(nil)

// NewRuntime creates a JavaScript loader.
func NewRuntime(opts scripting.Options, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{opts: opts, logger: logger.With("component", "js")}
}

// Load evaluates the entry script. The script must define an init function.
func (r *Runtime) Load(ctx context.Context, pc plugin.Context) (plugin.Plugin, error) {
	path := pc.Manifest().EntryPath()
	src, err := scripting.ReadSource(path)
	if err != nil {
		return nil, err
	}

	p := newPlugin(pc, r.opts.Timeout())
	if err := p.guard(ctx, func() error {
		_, err := p.vm.RunScript(path, src)
		return err
	}); err != nil {
		_ = p.Close(ctx)
		return nil, fmt.Errorf("failed to evaluate %s: %w", path, err)
	}

	if _, ok := goja.AssertFunction(p.vm.Get(hookInit)); !ok {
		_ = p.Close(ctx)
		return nil, fmt.Errorf("script %s does not define %s()", path, hookInit)
	}
	r.logger.Debug("loaded script plugin", "plugin", pc.ID(), "path", path)
	return p, nil
}
