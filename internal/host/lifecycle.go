package host

import (
	"context"
	"fmt"
	"net/http"

	apperrors "github.com/warden-dev/warden/internal/application/errors"
	"github.com/warden-dev/warden/internal/domain/manifest"
	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/protocol"
)

// Closer is implemented by runtime-backed plugins that hold resources
// (module instances, interpreter states) beyond Destroy.
type Closer interface {
	Close(ctx context.Context) error
}

// EnablePlugin constructs the plugin's context, instantiates its entry object
// and runs Init. Enabling an enabled plugin is a no-op. Any failure leaves the
// plugin disabled with lastError set.
func (h *Host) EnablePlugin(ctx context.Context, id string) error {
	e, err := h.lookup(id)
	if err != nil {
		return err
	}

	e.life.Lock()
	defer e.life.Unlock()

	h.mu.RLock()
	enabled := e.enabled
	h.mu.RUnlock()
	if enabled {
		return nil
	}

	if err := h.checkApproval(e); err != nil {
		return h.fail(e, apperrors.PhaseApproval, err)
	}

	factory, err := h.opts.Registry.Resolve(e.manifest)
	if err != nil {
		return h.fail(e, apperrors.PhaseResolve, err)
	}

	pctx := h.newContext(e)
	inst, err := construct(ctx, factory, pctx)
	if err != nil {
		h.teardown(ctx, e, nil, pctx)
		return h.fail(e, apperrors.PhaseConstruct, err)
	}

	if err := h.declareSettings(e, inst); err != nil {
		h.teardown(ctx, e, inst, pctx)
		return h.fail(e, apperrors.PhaseSettings, err)
	}

	if err := safeCall(func() error { return inst.Init(ctx) }); err != nil {
		h.teardown(ctx, e, inst, pctx)
		return h.fail(e, apperrors.PhaseInit, err)
	}

	pctx.events.start()

	h.mu.Lock()
	e.enabled = true
	e.loaded = true
	e.lastError = ""
	e.instance = inst
	e.pctx = pctx
	h.mu.Unlock()

	h.logger.Info("plugin enabled", "plugin", id)
	h.publishRoster()
	return nil
}

// DisablePlugin tears the plugin down. Disabling a disabled plugin is a no-op.
// Destroy failures are logged and never returned.
func (h *Host) DisablePlugin(ctx context.Context, id string) error {
	e, err := h.lookup(id)
	if err != nil {
		return err
	}

	e.life.Lock()
	defer e.life.Unlock()

	h.mu.Lock()
	if !e.enabled {
		h.mu.Unlock()
		return nil
	}
	inst, pctx := e.instance, e.pctx
	e.enabled = false
	h.mu.Unlock()

	pctx.events.stop()
	if err := safeCall(func() error { return inst.Destroy(ctx) }); err != nil {
		h.logger.Warn("plugin destroy failed", "plugin", id, "error", err)
	}
	h.teardown(ctx, e, inst, pctx)

	h.mu.Lock()
	e.instance = nil
	e.pctx = nil
	h.mu.Unlock()

	h.logger.Info("plugin disabled", "plugin", id)
	h.publishRoster()
	return nil
}

// teardown releases everything an enable attempt created. inst may be nil.
func (h *Host) teardown(ctx context.Context, e *entry, inst plugin.Plugin, pctx *pluginContext) {
	pctx.events.stop()
	pctx.panel.closeAll()
	e.settings.setHandler(nil)

	if c, ok := inst.(Closer); ok {
		if err := safeCall(func() error { return c.Close(ctx) }); err != nil {
			h.logger.Warn("failed to release plugin runtime", "plugin", e.manifest.ID, "error", err)
		}
	}
}

func (h *Host) fail(e *entry, phase apperrors.Phase, cause error) error {
	err := apperrors.NewLifecycleError(e.manifest.ID, phase, cause)

	h.mu.Lock()
	e.lastError = err.Error()
	h.mu.Unlock()

	h.logger.Error("plugin failed to enable", "plugin", e.manifest.ID, "phase", phase, "error", cause)
	h.publish(protocol.EventPluginError, protocol.PluginError{
		PluginID: e.manifest.ID,
		Phase:    string(phase),
		Error:    cause.Error(),
	})
	h.publishRoster()
	return err
}

func (h *Host) checkApproval(e *entry) error {
	if !h.opts.RequireApproval || e.manifest.Tier < manifest.TierVerified {
		return nil
	}
	if h.opts.Approvals == nil {
		return ErrNotApproved
	}

	caps := e.guard.ResolveProfile().Capabilities()
	ok, err := h.opts.Approvals.IsApproved(e.manifest.ID, e.manifest.Version, caps)
	if err != nil {
		return fmt.Errorf("failed to read approvals: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %w", ErrNotApproved,
			apperrors.NewCapabilityError(e.manifest.ID, "run `warden plugins approve "+e.manifest.ID+"`", caps))
	}
	return nil
}

func (h *Host) newContext(e *entry) *pluginContext {
	id := e.manifest.ID
	logger := h.opts.PluginLogger.With("plugin", id)
	profile := e.guard.ResolveProfile()

	pctx := &pluginContext{
		manifest: e.manifest,
		profile:  profile,
		panel:    newPanel(id, h.publish),
		events:   newMailbox(h.opts.MailboxSize, logger),
		settings: e.settings,
		logger:   logger,
	}
	if e.manifest.Tier >= manifest.TierVerified && h.opts.Vault != nil {
		pctx.vault = &guardedVault{guard: e.guard, store: h.opts.Vault}
	}
	if !profile.NetworkDenied() {
		pctx.client = &http.Client{Transport: &guardedTransport{guard: e.guard, base: h.opts.Transport}}
	}
	return pctx
}

func (h *Host) declareSettings(e *entry, inst plugin.Plugin) error {
	if sp, ok := inst.(plugin.SettingsProvider); ok {
		var descs []plugin.SettingDescriptor
		err := safeCall(func() error {
			descs = sp.Settings()
			return nil
		})
		if err != nil {
			return err
		}
		if err := e.settings.declare(descs); err != nil {
			return err
		}
	}

	if sh, ok := inst.(plugin.SettingChangeHandler); ok {
		id := e.manifest.ID
		e.settings.setHandler(func(key string, value any) {
			err := safeCall(func() error {
				sh.OnSettingChange(key, value)
				return nil
			})
			if err != nil {
				h.logger.Warn("setting change handler failed", "plugin", id, "key", key, "error", err)
			}
		})
	}
	return nil
}

func construct(ctx context.Context, factory plugin.Factory, pctx plugin.Context) (inst plugin.Plugin, err error) {
	err = safeCall(func() error {
		var ferr error
		inst, ferr = factory(ctx, pctx)
		return ferr
	})
	if err == nil && inst == nil {
		err = fmt.Errorf("factory returned no plugin")
	}
	return inst, err
}

// safeCall runs fn and converts a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &apperrors.PanicError{Value: r}
		}
	}()
	return fn()
}
