package wasm

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/warden-dev/warden/internal/domain/capabilities"
	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/infrastructure/wasm/hostfuncs"
)

// GuestVaultRoot is where vault mounts appear inside the guest filesystem.
const GuestVaultRoot = "/vault"

// Guest exports.
const (
	exportAllocate        = "allocate"
	exportDeallocate      = "deallocate"
	exportInitialize      = "_initialize"
	exportInit            = "init"
	exportDestroy         = "destroy"
	exportOnEvent         = "on_event"
	exportSettings        = "settings"
	exportOnSettingChange = "on_setting_change"
)

// ErrMissingExport is returned when a required guest export is absent.
var ErrMissingExport = errors.New("module does not export required function")

// Plugin adapts one module instance to plugin.Plugin. Guest calls are
// serialized; wazero instances are not safe for concurrent use.
type Plugin struct {
	id    string
	pc    plugin.Context
	guest *hostfuncs.Guest
	// base is used for calls that have no caller context, such as event delivery.
	base context.Context

	mu       sync.Mutex
	instance api.Module
}

var (
	_ plugin.Plugin               = (*Plugin)(nil)
	_ plugin.SettingsProvider     = (*Plugin)(nil)
	_ plugin.SettingChangeHandler = (*Plugin)(nil)
)

func newPlugin(ctx context.Context, r *Runtime, compiled wazero.CompiledModule, pc plugin.Context) (*Plugin, error) {
	p := &Plugin{
		id:    pc.ID(),
		pc:    pc,
		guest: &hostfuncs.Guest{Context: pc},
	}
	p.base = hostfuncs.WithGuest(context.WithoutCancel(ctx), p.guest)

	config, err := r.moduleConfig(pc)
	if err != nil {
		return nil, err
	}

	instance, err := r.runtime.InstantiateModule(p.withGuest(ctx), compiled, config)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate %s: %w", p.id, err)
	}
	if fn := instance.ExportedFunction(exportInitialize); fn != nil {
		if _, err := fn.Call(p.withGuest(ctx)); err != nil {
			_ = instance.Close(ctx)
			return nil, fmt.Errorf("failed to initialize %s: %w", p.id, err)
		}
	}
	if instance.ExportedFunction(exportAllocate) == nil {
		_ = instance.Close(ctx)
		return nil, fmt.Errorf("%w: %s", ErrMissingExport, exportAllocate)
	}
	if instance.ExportedFunction(exportOnEvent) != nil {
		p.guest.Deliver = p.deliver
	}

	p.instance = instance
	return p, nil
}

func (p *Plugin) withGuest(ctx context.Context) context.Context {
	return hostfuncs.WithGuest(ctx, p.guest)
}

// Init calls the guest's init export.
func (p *Plugin) Init(ctx context.Context) error {
	return p.invoke(ctx, exportInit, nil, true)
}

// Destroy calls the guest's destroy export when present.
func (p *Plugin) Destroy(ctx context.Context) error {
	return p.invoke(ctx, exportDestroy, nil, false)
}

// Close releases the module instance.
func (p *Plugin) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.instance == nil {
		return nil
	}
	err := p.instance.Close(ctx)
	p.instance = nil
	return err
}

// Settings reads descriptors from the guest's settings export.
func (p *Plugin) Settings() []plugin.SettingDescriptor {
	out, err := p.call(p.base, exportSettings, nil)
	if err != nil {
		if !errors.Is(err, ErrMissingExport) {
			p.pc.Logger().Warn("failed to read plugin settings", "error", err)
		}
		return nil
	}

	var descs []plugin.SettingDescriptor
	if err := json.Unmarshal(out, &descs); err != nil {
		p.pc.Logger().Warn("plugin returned malformed settings", "error", err)
		return nil
	}
	return descs
}

// OnSettingChange forwards a change to on_setting_change when exported.
func (p *Plugin) OnSettingChange(key string, value any) {
	payload, err := json.Marshal(map[string]any{"key": key, "value": value})
	if err != nil {
		return
	}
	if err := p.invoke(p.base, exportOnSettingChange, payload, false); err != nil {
		p.pc.Logger().Warn("on_setting_change failed", "key", key, "error", err)
	}
}

func (p *Plugin) deliver(ev plugin.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.pc.Logger().Warn("failed to encode event for guest", "event", ev.Type, "error", err)
		return
	}
	if err := p.invoke(p.base, exportOnEvent, payload, true); err != nil {
		p.pc.Logger().Warn("on_event failed", "event", ev.Type, "error", err)
	}
}

// invoke calls an export whose result is 0 on success or a packed
// {"error":"..."} document.
func (p *Plugin) invoke(ctx context.Context, name string, payload []byte, required bool) error {
	out, err := p.call(ctx, name, payload)
	if errors.Is(err, ErrMissingExport) && !required {
		return nil
	}
	if err != nil || len(out) == 0 {
		return err
	}

	var res hostfuncs.Response
	if err := json.Unmarshal(out, &res); err != nil {
		return fmt.Errorf("%s returned malformed result: %w", name, err)
	}
	if res.Error != "" {
		return fmt.Errorf("%s: %s", name, res.Error)
	}
	return nil
}

// call runs export name. A non-nil payload is copied into guest memory and
// passed as (ptr, len). A packed non-zero result is read back and freed.
func (p *Plugin) call(ctx context.Context, name string, payload []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.instance == nil {
		return nil, fmt.Errorf("plugin %s is closed", p.id)
	}
	fn := p.instance.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingExport, name)
	}
	ctx = p.withGuest(ctx)

	var params []uint64
	if payload != nil {
		packed := hostfuncs.WriteGuest(ctx, p.instance, payload)
		if packed == 0 {
			return nil, fmt.Errorf("failed to copy %d bytes into guest memory", len(payload))
		}
		defer p.free(ctx, packed)
		ptr, length := hostfuncs.UnpackPtrLen(packed)
		params = []uint64{uint64(ptr), uint64(length)}
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("%s trapped: %w", name, err)
	}
	if len(results) == 0 || results[0] == 0 {
		return nil, nil
	}

	packed := results[0]
	defer p.free(ctx, packed)
	ptr, length := hostfuncs.UnpackPtrLen(packed)
	data, ok := p.instance.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("%s result out of bounds (ptr=%d len=%d)", name, ptr, length)
	}
	return slices.Clone(data), nil
}

// free hands a block back to the guest. Failures are ignored.
func (p *Plugin) free(ctx context.Context, packed uint64) {
	fn := p.instance.ExportedFunction(exportDeallocate)
	if fn == nil {
		return
	}
	defer func() { _ = recover() }()
	ptr, length := hostfuncs.UnpackPtrLen(packed)
	_, _ = fn.Call(ctx, uint64(ptr), uint64(length))
}

// fsMount maps a host directory into the guest.
type fsMount struct {
	hostPath  string
	guestPath string
	readOnly  bool
}

// vaultMounts turns a profile into mounts under GuestVaultRoot. A prefix granted
// for both modes is mounted once, read-write. Missing write directories are created;
// missing read directories are skipped.
func vaultMounts(profile capabilities.Profile, vaultBase string) ([]fsMount, error) {
	var mounts []fsMount
	seen := make(map[string]bool)

	for _, prefix := range profile.Write {
		if seen[prefix] {
			continue
		}
		seen[prefix] = true
		if err := os.MkdirAll(prefix, 0o750); err != nil {
			return nil, fmt.Errorf("failed to prepare vault directory: %w", err)
		}
		mounts = append(mounts, fsMount{hostPath: prefix, guestPath: guestPath(vaultBase, prefix)})
	}

	for _, prefix := range profile.Read {
		if seen[prefix] {
			continue
		}
		seen[prefix] = true
		if info, err := os.Stat(prefix); err != nil || !info.IsDir() {
			continue
		}
		mounts = append(mounts, fsMount{hostPath: prefix, guestPath: guestPath(vaultBase, prefix), readOnly: true})
	}
	return mounts, nil
}

func guestPath(vaultBase, prefix string) string {
	rel, err := filepath.Rel(vaultBase, prefix)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(prefix)
	}
	return path.Join(GuestVaultRoot, filepath.ToSlash(rel))
}

func (r *Runtime) moduleConfig(pc plugin.Context) (wazero.ModuleConfig, error) {
	profile := pc.Profile()
	mounts, err := vaultMounts(profile, r.vaultBase)
	if err != nil {
		return nil, err
	}

	fsConfig := wazero.NewFSConfig()
	for _, m := range mounts {
		if m.readOnly {
			fsConfig = fsConfig.WithReadOnlyDirMount(m.hostPath, m.guestPath)
		} else {
			fsConfig = fsConfig.WithDirMount(m.hostPath, m.guestPath)
		}
		r.logger.Debug("mounted vault directory", "plugin", pc.ID(), "host", m.hostPath, "guest", m.guestPath, "read_only", m.readOnly)
	}

	config := wazero.NewModuleConfig().
		WithName(pc.ID()).
		WithFSConfig(fsConfig).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader).
		WithStdout(r.output).
		WithStderr(r.output)

	if profile.Env {
		for _, kv := range r.frozenEnv {
			if k, v, ok := strings.Cut(kv, "="); ok {
				config = config.WithEnv(k, v)
			}
		}
	}
	return config, nil
}
