// Package lua runs Lua plugins on gopher-lua inside a sandbox without io, os,
// debug or module loading. Hooks are globals:
//
//	function init() end
//	function destroy() end
//	settings = { { key = "limit", label = "Limit", type = "number", default = 10 } }
//	function on_setting_change(key, value) end
//
// and the host is reached through the warden table.
package lua

import (
	"context"
	"fmt"
	"log/slog"

	lua "github.com/yuin/gopher-lua"

	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/infrastructure/scripting"
)

// Extension is the entry point suffix this runtime loads.
const Extension = ".lua"

// Runtime loads .lua entry points.
type Runtime struct {
	opts   scripting.Options
	logger *slog.Logger
}

var _ plugin.Loader = (*Runtime)(nil)

// NewRuntime creates a Lua loader.
func NewRuntime(opts scripting.Options, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{opts: opts, logger: logger.With("component", "lua")}
}

// Load runs the entry chunk. The chunk must define an init function.
func (r *Runtime) Load(ctx context.Context, pc plugin.Context) (plugin.Plugin, error) {
	path := pc.Manifest().EntryPath()
	src, err := scripting.ReadSource(path)
	if err != nil {
		return nil, err
	}

	p := newPlugin(pc, r.opts.Timeout())
	err = p.guard(ctx, func() error {
		fn, err := p.L.Load(stringReader(src), "@"+path)
		if err != nil {
			return err
		}
		return p.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
	})
	if err != nil {
		_ = p.Close(ctx)
		return nil, fmt.Errorf("failed to evaluate %s: %w", path, err)
	}

	if _, ok := p.L.GetGlobal(hookInit).(*lua.LFunction); !ok {
		_ = p.Close(ctx)
		return nil, fmt.Errorf("script %s does not define %s()", path, hookInit)
	}
	r.logger.Debug("loaded script plugin", "plugin", pc.ID(), "path", path)
	return p, nil
}
