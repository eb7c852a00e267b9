package lua

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/infrastructure/scripting"
)

// Script hooks.
const (
	hookInit            = "init"
	hookDestroy         = "destroy"
	hookSettings        = "settings"
	hookOnSettingChange = "on_setting_change"
)

// Plugin is one Lua state bound to a plugin context. LState is not safe for
// concurrent use; every call holds mu.
type Plugin struct {
	pc      plugin.Context
	L       *lua.LState
	timeout time.Duration
	changes *scripting.Changes

	mu     sync.Mutex
	closed bool
}

var (
	_ plugin.Plugin               = (*Plugin)(nil)
	_ plugin.SettingsProvider     = (*Plugin)(nil)
	_ plugin.SettingChangeHandler = (*Plugin)(nil)
)

func newPlugin(pc plugin.Context, timeout time.Duration) *Plugin {
	p := &Plugin{pc: pc, L: newSandboxedState(), timeout: timeout}
	p.changes = scripting.NewChanges(p.notifyChange, pc.Logger())
	p.L.SetGlobal("warden", p.api())
	p.L.SetGlobal("print", p.L.NewFunction(p.print))
	return p
}

// Init calls init().
func (p *Plugin) Init(ctx context.Context) error {
	return p.callHook(ctx, hookInit, true)
}

// Destroy calls destroy() when defined and closes the state.
func (p *Plugin) Destroy(ctx context.Context) error {
	err := p.callHook(ctx, hookDestroy, false)
	_ = p.Close(ctx)
	return err
}

// Settings reads the settings global, a table or a function returning one.
func (p *Plugin) Settings() []plugin.SettingDescriptor {
	var exported any
	err := p.locked(context.Background(), func() error {
		v := p.L.GetGlobal(hookSettings)
		if fn, ok := v.(*lua.LFunction); ok {
			if err := p.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
				return err
			}
			v = p.L.Get(-1)
			p.L.Pop(1)
		}
		exported = toGo(v)
		return nil
	})
	if err != nil {
		p.pc.Logger().Warn("failed to read script settings", "error", err)
		return nil
	}

	if m, ok := exported.(map[string]any); ok && len(m) == 0 {
		return nil
	}
	descs, err := scripting.Descriptors(exported)
	if err != nil {
		p.pc.Logger().Warn("script declared malformed settings", "error", err)
		return nil
	}
	return descs
}

// OnSettingChange queues a call to on_setting_change(key, value).
func (p *Plugin) OnSettingChange(key string, value any) {
	p.changes.Post(key, value)
}

func (p *Plugin) notifyChange(key string, value any) {
	err := p.locked(context.Background(), func() error {
		fn, ok := p.L.GetGlobal(hookOnSettingChange).(*lua.LFunction)
		if !ok {
			return nil
		}
		return p.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, lua.LString(key), toLua(p.L, value))
	})
	if err != nil {
		p.pc.Logger().Warn("on_setting_change failed", "key", key, "error", err)
	}
}

func (p *Plugin) callHook(ctx context.Context, name string, required bool) error {
	return p.locked(ctx, func() error {
		fn, ok := p.L.GetGlobal(name).(*lua.LFunction)
		if !ok {
			if required {
				return fmt.Errorf("script does not define %s()", name)
			}
			return nil
		}
		return p.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
	})
}

// callback runs a function registered through the API, e.g. an event handler.
func (p *Plugin) callback(fn *lua.LFunction, args ...any) {
	err := p.locked(context.Background(), func() error {
		values := make([]lua.LValue, len(args))
		for i, a := range args {
			values[i] = toLua(p.L, a)
		}
		return p.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, values...)
	})
	if err != nil {
		p.pc.Logger().Warn("script callback failed", "error", err)
	}
}

func (p *Plugin) locked(ctx context.Context, fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("script plugin is closed")
	}
	return p.guard(ctx, fn)
}

// guard cancels fn through the state's context once the call timeout expires.
func (p *Plugin) guard(ctx context.Context, fn func() error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.L.SetContext(ctx)
	defer p.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	err = fn()
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", scripting.ErrTimeout, p.timeout)
	}
	return err
}

// Close stops setting notifications and closes the Lua state. Close is
// idempotent.
func (p *Plugin) Close(context.Context) error {
	p.changes.Close()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.L.Close()
	}
	return nil
}

func stringReader(s string) io.Reader { return strings.NewReader(s) }
