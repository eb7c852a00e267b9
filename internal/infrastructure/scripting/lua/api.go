package lua

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/infrastructure/scripting"
)

// api builds the warden table. Failures raise Lua errors, which scripts may
// catch with pcall.
func (p *Plugin) api() *lua.LTable {
	L := p.L
	pc := p.pc

	log := L.NewTable()
	for name, level := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		L.SetField(log, name, L.NewFunction(p.logAt(level)))
	}

	panel := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"create_tab": func(L *lua.LState) int {
			id, err := pc.Panel().CreateTab(L.CheckString(1), toGo(L.Get(2)))
			raise(L, err)
			L.Push(lua.LString(id))
			return 1
		},
		"update_tab": func(L *lua.LState) int {
			raise(L, pc.Panel().UpdateTab(L.CheckString(1), toGo(L.Get(2))))
			return 0
		},
		"close_tab": func(L *lua.LState) int {
			raise(L, pc.Panel().CloseTab(L.CheckString(1)))
			return 0
		},
	})

	events := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"on": func(L *lua.LState) int {
			eventType := L.CheckString(1)
			fn := L.CheckFunction(2)
			id := pc.Events().On(eventType, func(ev plugin.Event) {
				p.callback(fn, map[string]any{"type": ev.Type, "data": ev.Data, "timestamp": ev.Time.UnixMilli()})
			})
			L.Push(lua.LNumber(id))
			return 1
		},
		"off": func(L *lua.LState) int {
			pc.Events().Off(plugin.SubscriptionID(L.CheckInt64(1))) //nolint:gosec // G115: ids come from on()
			return 0
		},
	})

	settings := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"get": func(L *lua.LState) int {
			v, ok := pc.Settings().Get(L.CheckString(1))
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(toLua(L, v))
			return 1
		},
		"set": func(L *lua.LState) int {
			raise(L, pc.Settings().Set(L.CheckString(1), toGo(L.Get(2))))
			return 0
		},
		"all": func(L *lua.LState) int {
			L.Push(toLua(L, pc.Settings().All()))
			return 1
		},
	})

	vault := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"read": func(L *lua.LState) int {
			path := L.CheckString(1)
			v := pc.Vault()
			if v == nil {
				raise(L, scripting.ErrNoVault)
			}
			data, err := v.Read(path)
			raise(L, err)
			L.Push(lua.LString(data))
			return 1
		},
		"write": func(L *lua.LState) int {
			path, content := L.CheckString(1), L.CheckString(2)
			v := pc.Vault()
			if v == nil {
				raise(L, scripting.ErrNoVault)
			}
			raise(L, v.Write(path, []byte(content)))
			return 0
		},
	})

	warden := L.NewTable()
	L.SetField(warden, "id", lua.LString(pc.ID()))
	L.SetField(warden, "tier", lua.LNumber(pc.Manifest().Tier))
	L.SetField(warden, "log", log)
	L.SetField(warden, "panel", panel)
	L.SetField(warden, "events", events)
	L.SetField(warden, "settings", settings)
	L.SetField(warden, "vault", vault)
	L.SetField(warden, "fetch", L.NewFunction(func(L *lua.LState) int {
		req, err := scripting.DecodeFetch(toGo(L.CheckAny(1)))
		raise(L, err)
		resp, err := scripting.Fetch(context.Background(), pc, req)
		raise(L, err)
		L.Push(toLua(L, resp))
		return 1
	}))
	L.SetField(warden, "env", L.NewFunction(func(L *lua.LState) int {
		v, err := scripting.Getenv(pc, L.CheckString(1))
		raise(L, err)
		L.Push(lua.LString(v))
		return 1
	}))
	return warden
}

// logAt returns a function logging (message, fields?) at level.
func (p *Plugin) logAt(level slog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		var attrs []any
		if fields, ok := toGo(L.Get(2)).(map[string]any); ok {
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
		return 0
	}
}

// print logs its arguments at info, joined by tabs like the stock print.
func (p *Plugin) print(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	p.pc.Logger().Info(strings.Join(parts, "\t"))
	return 0
}

func raise(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
}
