package js

import (
	"context"
	"log/slog"
	"sort"

	"github.com/dop251/goja"

	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/infrastructure/scripting"
)

// api builds the warden global. Go errors surface in the script as thrown GoErrors.
func (p *Plugin) api() map[string]any {
	pc := p.pc
	return map[string]any{
		"id":   pc.ID(),
		"tier": int(pc.Manifest().Tier),
		"log": map[string]any{
			"debug": p.logAt(slog.LevelDebug),
			"info":  p.logAt(slog.LevelInfo),
			"warn":  p.logAt(slog.LevelWarn),
			"error": p.logAt(slog.LevelError),
		},
		"panel": map[string]any{
			"createTab": func(title string, content goja.Value) (string, error) {
				return pc.Panel().CreateTab(title, export(content))
			},
			"updateTab": func(tabID string, content goja.Value) error {
				return pc.Panel().UpdateTab(tabID, export(content))
			},
			"closeTab": func(tabID string) error {
				return pc.Panel().CloseTab(tabID)
			},
		},
		"events": map[string]any{
			"on": func(eventType string, handler goja.Value) int64 {
				fn, ok := goja.AssertFunction(handler)
				if !ok {
					panic(p.vm.NewTypeError("events.on requires a handler function"))
				}
				id := pc.Events().On(eventType, func(ev plugin.Event) {
					p.callback(fn, map[string]any{"type": ev.Type, "data": ev.Data, "timestamp": ev.Time.UnixMilli()})
				})
				return int64(id) //nolint:gosec // G115: subscription ids are small counters
			},
			"off": func(id int64) {
				pc.Events().Off(plugin.SubscriptionID(id)) //nolint:gosec // G115: ids come from on()
			},
		},
		"settings": map[string]any{
			"get": func(key string) goja.Value {
				v, ok := pc.Settings().Get(key)
				if !ok {
					return goja.Undefined()
				}
				return p.vm.ToValue(v)
			},
			"set": func(key string, value goja.Value) error {
				return pc.Settings().Set(key, export(value))
			},
			"all": func() map[string]any {
				return pc.Settings().All()
			},
		},
		"vault": map[string]any{
			"read": func(path string) (string, error) {
				v := pc.Vault()
				if v == nil {
					return "", scripting.ErrNoVault
				}
				data, err := v.Read(path)
				return string(data), err
			},
			"write": func(path, content string) error {
				v := pc.Vault()
				if v == nil {
					return scripting.ErrNoVault
				}
				return v.Write(path, []byte(content))
			},
		},
		"fetch": func(req goja.Value) (*scripting.FetchResponse, error) {
			decoded, err := scripting.DecodeFetch(export(req))
			if err != nil {
				return nil, err
			}
			return scripting.Fetch(context.Background(), pc, decoded)
		},
		"env": func(name string) (string, error) {
			return scripting.Getenv(pc, name)
		},
	}
}

// console maps console.log and friends onto the plugin logger.
func (p *Plugin) console() map[string]any {
	return map[string]any{
		"log":   p.logAt(slog.LevelInfo),
		"info":  p.logAt(slog.LevelInfo),
		"debug": p.logAt(slog.LevelDebug),
		"warn":  p.logAt(slog.LevelWarn),
		"error": p.logAt(slog.LevelError),
	}
}

// logAt returns a function logging (message, fields?) at level.
func (p *Plugin) logAt(level slog.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		msg := call.Argument(0).String()
		var attrs []any
		if fields, ok := export(call.Argument(1)).(map[string]any); ok {
			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				attrs = append(attrs, k, fields[k])
			}
		}
		p.pc.Logger().Log(context.Background(), level, msg, attrs...)
		return goja.Undefined()
	}
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
