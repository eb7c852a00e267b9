package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// removedGlobals can load code from disk or from strings outside the sandbox.
var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module", "collectgarbage"}

// newSandboxedState opens base, table, string and math only. io, os, debug,
// package and channel are never opened.
func newSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}
