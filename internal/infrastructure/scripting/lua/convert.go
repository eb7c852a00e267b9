package lua

import (
	"encoding/json"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
)

// toGo converts a Lua value to plain Go data. Tables with keys 1..n become
// slices; other tables become maps. Functions and cycles become nil.
func toGo(v lua.LValue) any {
	return toGoVisited(v, make(map[*lua.LTable]bool))
}

func toGoVisited(v lua.LValue, visited map[*lua.LTable]bool) any {
	switch t := v.(type) {
	case lua.LBool:
		return bool(t)
	case lua.LNumber:
		f := float64(t)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(t)
	case *lua.LTable:
		if visited[t] {
			return nil
		}
		visited[t] = true
		defer delete(visited, t)
		return tableToGo(t, visited)
	case *lua.LUserData:
		return t.Value
	default:
		return nil
	}
}

func tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && n == count {
		out := make([]any, n)
		for i := 1; i <= n; i++ {
			out[i-1] = toGoVisited(t.RawGetInt(i), visited)
		}
		return out
	}

	out := make(map[string]any, count)
	t.ForEach(func(k, val lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = fmt.Sprint(toGo(kv))
		default:
			key = k.String()
		}
		out[key] = toGoVisited(val, visited)
	})
	return out
}

// toLua converts Go data to a Lua value. Types outside the JSON model are
// converted through their JSON encoding.
func toLua(L *lua.LState, v any) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return t
	case bool:
		return lua.LBool(t)
	case string:
		return lua.LString(t)
	case []byte:
		return lua.LString(t)
	case int:
		return lua.LNumber(t)
	case int64:
		return lua.LNumber(t)
	case int32:
		return lua.LNumber(t)
	case uint64:
		return lua.LNumber(t)
	case float64:
		return lua.LNumber(t)
	case float32:
		return lua.LNumber(t)
	case []any:
		tbl := L.CreateTable(len(t), 0)
		for i, item := range t {
			tbl.RawSetInt(i+1, toLua(L, item))
		}
		return tbl
	case []string:
		tbl := L.CreateTable(len(t), 0)
		for i, item := range t {
			tbl.RawSetInt(i+1, lua.LString(item))
		}
		return tbl
	case map[string]any:
		tbl := L.CreateTable(0, len(t))
		for k, item := range t {
			tbl.RawSetString(k, toLua(L, item))
		}
		return tbl
	case map[string]string:
		tbl := L.CreateTable(0, len(t))
		for k, item := range t {
			tbl.RawSetString(k, lua.LString(item))
		}
		return tbl
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return lua.LNil
		}
		var plain any
		if err := json.Unmarshal(data, &plain); err != nil {
			return lua.LNil
		}
		return toLua(L, plain)
	}
}
