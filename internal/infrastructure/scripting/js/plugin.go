package js

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/infrastructure/scripting"
)

// Script hooks.
const (
	hookInit            = "init"
	hookDestroy         = "destroy"
	hookSettings        = "settings"
	hookOnSettingChange = "onSettingChange"
)

// Plugin is one goja interpreter bound to a plugin context.
type Plugin struct {
	pc      plugin.Context
	vm      *goja.Runtime
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
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	p := &Plugin{pc: pc, vm: vm, timeout: timeout}
	p.changes = scripting.NewChanges(p.notifyChange, pc.Logger())
	if err := vm.Set("warden", p.api()); err != nil {
		panic(err)
	}
	if err := vm.Set("console", p.console()); err != nil {
		panic(err)
	}
	return p
}

// Init calls the script's init().
func (p *Plugin) Init(ctx context.Context) error {
	return p.callHook(ctx, hookInit, true)
}

// Destroy calls destroy() when defined and releases the interpreter.
func (p *Plugin) Destroy(ctx context.Context) error {
	err := p.callHook(ctx, hookDestroy, false)
	_ = p.Close(ctx)
	return err
}

// Settings reads the script's settings global, an array or a function returning one.
func (p *Plugin) Settings() []plugin.SettingDescriptor {
	var exported any
	err := p.locked(context.Background(), func() error {
		v := p.vm.Get(hookSettings)
		if fn, ok := goja.AssertFunction(v); ok {
			res, err := fn(goja.Undefined())
			if err != nil {
				return err
			}
			v = res
		}
		if v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			exported = v.Export()
		}
		return nil
	})
	if err != nil {
		p.pc.Logger().Warn("failed to read script settings", "error", err)
		return nil
	}

	descs, err := scripting.Descriptors(exported)
	if err != nil {
		p.pc.Logger().Warn("script declared malformed settings", "error", err)
		return nil
	}
	return descs
}

// OnSettingChange queues a call to onSettingChange(key, value).
func (p *Plugin) OnSettingChange(key string, value any) {
	p.changes.Post(key, value)
}

func (p *Plugin) notifyChange(key string, value any) {
	err := p.locked(context.Background(), func() error {
		fn, ok := goja.AssertFunction(p.vm.Get(hookOnSettingChange))
		if !ok {
			return nil
		}
		_, err := fn(goja.Undefined(), p.vm.ToValue(key), p.vm.ToValue(value))
		return err
	})
	if err != nil {
		p.pc.Logger().Warn("onSettingChange failed", "key", key, "error", err)
	}
}

func (p *Plugin) callHook(ctx context.Context, name string, required bool) error {
	return p.locked(ctx, func() error {
		fn, ok := goja.AssertFunction(p.vm.Get(name))
		if !ok {
			if required {
				return fmt.Errorf("script does not define %s()", name)
			}
			return nil
		}
		_, err := fn(goja.Undefined())
		return err
	})
}

// callback runs a script function registered through the API, e.g. an event handler.
func (p *Plugin) callback(fn goja.Callable, args ...any) {
	err := p.locked(context.Background(), func() error {
		values := make([]goja.Value, len(args))
		for i, a := range args {
			values[i] = p.vm.ToValue(a)
		}
		_, err := fn(goja.Undefined(), values...)
		return err
	})
	if err != nil {
		p.pc.Logger().Warn("script callback failed", "error", err)
	}
}

// locked serializes fn with every other call into the interpreter.
func (p *Plugin) locked(ctx context.Context, fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("script plugin is closed")
	}
	return p.guard(ctx, fn)
}

// guard interrupts fn once the call timeout or ctx expires.
func (p *Plugin) guard(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		p.vm.Interrupt(scripting.ErrTimeout)
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
		}
		p.vm.ClearInterrupt()
	}()

	err := fn()
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("%w after %s", scripting.ErrTimeout, p.timeout)
	}
	return err
}

// Close stops setting notifications and retires the interpreter. Later calls
// fail with "script plugin is closed". Close is idempotent.
func (p *Plugin) Close(context.Context) error {
	p.changes.Close()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
