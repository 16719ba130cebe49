package script

import (
	"context"
	"errors"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/textstore"
)

// storeModule implements the global `store` Lua module. All offsets are
// rune offsets, matching the registry API; buffer ids are plain numbers.
type storeModule struct {
	reg     *textstore.Registry
	sub     *textstore.Subscription
	timeout time.Duration
}

// register installs the module into the Lua state.
func (m *storeModule) register(L *lua.LState) {
	mod := L.NewTable()

	L.SetField(mod, "create", L.NewFunction(m.create))
	L.SetField(mod, "open", L.NewFunction(m.open))
	L.SetField(mod, "text", L.NewFunction(m.text))
	L.SetField(mod, "len", L.NewFunction(m.length))
	L.SetField(mod, "version", L.NewFunction(m.version))
	L.SetField(mod, "line_count", L.NewFunction(m.lineCount))
	L.SetField(mod, "insert", L.NewFunction(m.insert))
	L.SetField(mod, "delete", L.NewFunction(m.delete))
	L.SetField(mod, "replace", L.NewFunction(m.replace))
	L.SetField(mod, "remove", L.NewFunction(m.remove))
	L.SetField(mod, "reset", L.NewFunction(m.reset))
	L.SetField(mod, "list", L.NewFunction(m.list))
	L.SetField(mod, "events", L.NewFunction(m.events))

	L.SetGlobal("store", mod)
}

// opCtx bounds lock acquisition for a single store call.
func (m *storeModule) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.timeout)
}

// checkID reads a positive buffer id argument.
func checkID(L *lua.LState, n int) textstore.BufferID {
	v := L.CheckInt64(n)
	if v < 1 {
		L.ArgError(n, "buffer id must be positive")
	}
	return textstore.BufferID(v)
}

// readGuard acquires a read guard or raises a Lua error.
func (m *storeModule) readGuard(L *lua.LState, op string, id textstore.BufferID) *textstore.ReadGuard {
	h, err := m.reg.Get(id)
	if err != nil {
		L.RaiseError("%s: %v", op, err)
		return nil
	}
	ctx, cancel := m.opCtx()
	defer cancel()
	g, err := h.Read(ctx)
	if err != nil {
		L.RaiseError("%s: %v", op, err)
		return nil
	}
	return g
}

// writeGuard acquires a write guard or raises a Lua error.
func (m *storeModule) writeGuard(L *lua.LState, op string, id textstore.BufferID) *textstore.WriteGuard {
	h, err := m.reg.Get(id)
	if err != nil {
		L.RaiseError("%s: %v", op, err)
		return nil
	}
	ctx, cancel := m.opCtx()
	defer cancel()
	g, err := h.Write(ctx)
	if err != nil {
		L.RaiseError("%s: %v", op, err)
		return nil
	}
	return g
}

// create(text?) -> id
// Creates a buffer with optional initial text.
func (m *storeModule) create(L *lua.LState) int {
	text := L.OptString(1, "")

	id, err := m.reg.Create(text)
	if err != nil {
		L.RaiseError("create: %v", err)
		return 0
	}

	L.Push(lua.LNumber(id))
	return 1
}

// open(id) -> version
// Verifies the buffer exists and returns its current version.
func (m *storeModule) open(L *lua.LState) int {
	id := checkID(L, 1)

	g := m.readGuard(L, "open", id)
	ver := g.Version()
	g.Release()

	L.Push(lua.LNumber(ver))
	return 1
}

// text(id) -> string
// Returns the full buffer content.
func (m *storeModule) text(L *lua.LState) int {
	id := checkID(L, 1)

	g := m.readGuard(L, "text", id)
	text := g.Text()
	g.Release()

	L.Push(lua.LString(text))
	return 1
}

// len(id) -> number
// Returns the buffer length in runes.
func (m *storeModule) length(L *lua.LState) int {
	id := checkID(L, 1)

	g := m.readGuard(L, "len", id)
	n := g.Len()
	g.Release()

	L.Push(lua.LNumber(n))
	return 1
}

// version(id) -> number
// Returns the buffer version.
func (m *storeModule) version(L *lua.LState) int {
	id := checkID(L, 1)

	g := m.readGuard(L, "version", id)
	ver := g.Version()
	g.Release()

	L.Push(lua.LNumber(ver))
	return 1
}

// line_count(id) -> number
// Returns the number of lines in the buffer.
func (m *storeModule) lineCount(L *lua.LState) int {
	id := checkID(L, 1)

	g := m.readGuard(L, "line_count", id)
	n := g.LineCount()
	g.Release()

	L.Push(lua.LNumber(n))
	return 1
}

// insert(id, at, text) -> version
// Inserts text at the given rune offset.
func (m *storeModule) insert(L *lua.LState) int {
	id := checkID(L, 1)
	at := L.CheckInt(2)
	text := L.CheckString(3)

	if at < 0 {
		L.ArgError(2, "offset must be non-negative")
		return 0
	}

	g := m.writeGuard(L, "insert", id)
	ver, _, err := g.Apply(textstore.Insert(at, text))
	g.Release()
	if err != nil {
		L.RaiseError("insert: %v", err)
		return 0
	}

	L.Push(lua.LNumber(ver))
	return 1
}

// delete(id, start, end) -> version, old_text
// Deletes the given rune range.
func (m *storeModule) delete(L *lua.LState) int {
	id := checkID(L, 1)
	start := L.CheckInt(2)
	end := L.CheckInt(3)

	if start < 0 {
		L.ArgError(2, "start must be non-negative")
		return 0
	}
	if end < start {
		L.ArgError(3, "end must be >= start")
		return 0
	}

	g := m.writeGuard(L, "delete", id)
	ver, ev, err := g.Apply(textstore.Delete(start, end))
	g.Release()
	if err != nil {
		L.RaiseError("delete: %v", err)
		return 0
	}

	L.Push(lua.LNumber(ver))
	L.Push(lua.LString(ev.OldText))
	return 2
}

// replace(id, start, end, text) -> version, old_text
// Atomically replaces the given rune range.
func (m *storeModule) replace(L *lua.LState) int {
	id := checkID(L, 1)
	start := L.CheckInt(2)
	end := L.CheckInt(3)
	text := L.CheckString(4)

	if start < 0 {
		L.ArgError(2, "start must be non-negative")
		return 0
	}
	if end < start {
		L.ArgError(3, "end must be >= start")
		return 0
	}

	g := m.writeGuard(L, "replace", id)
	ver, ev, err := g.Apply(textstore.Replace(start, end, text))
	g.Release()
	if err != nil {
		L.RaiseError("replace: %v", err)
		return 0
	}

	L.Push(lua.LNumber(ver))
	L.Push(lua.LString(ev.OldText))
	return 2
}

// remove(id) -> bool
// Removes the buffer; false if it did not exist.
func (m *storeModule) remove(L *lua.LState) int {
	id := checkID(L, 1)

	err := m.reg.Remove(id)
	if err != nil {
		if errors.Is(err, textstore.ErrNotFound) {
			L.Push(lua.LBool(false))
			return 1
		}
		L.RaiseError("remove: %v", err)
		return 0
	}

	L.Push(lua.LBool(true))
	return 1
}

// reset(id) -> nil
// Empties the buffer, recovering it if poisoned.
func (m *storeModule) reset(L *lua.LState) int {
	id := checkID(L, 1)

	ctx, cancel := m.opCtx()
	defer cancel()
	if err := m.reg.Reset(ctx, id); err != nil {
		L.RaiseError("reset: %v", err)
		return 0
	}
	return 0
}

// list() -> table
// Returns all buffer ids in ascending order.
func (m *storeModule) list(L *lua.LState) int {
	ids := m.reg.List()

	tbl := L.NewTable()
	for _, id := range ids {
		tbl.Append(lua.LNumber(id))
	}

	L.Push(tbl)
	return 1
}

// events() -> table, lagged
// Drains all change events queued since the engine was created (or
// since the previous call). Each entry is a table with buffer,
// old_version, new_version, kind, start, end, text and old_text.
// The second return is true when the queue overflowed and events were
// dropped since the last drain.
func (m *storeModule) events(L *lua.LState) int {
	tbl := L.NewTable()
	lagged := false

	for {
		ev, err := m.sub.TryNext()
		if err != nil {
			if errors.Is(err, textstore.ErrLagged) {
				lagged = true
				continue
			}
			// ErrNoEvent or a closed subscription both end the drain.
			break
		}
		tbl.Append(eventToTable(L, ev))
	}

	L.Push(tbl)
	L.Push(lua.LBool(lagged))
	return 2
}

// eventToTable converts a ChangeEvent into a Lua table.
func eventToTable(L *lua.LState, ev textstore.ChangeEvent) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "buffer", lua.LNumber(ev.BufferID))
	L.SetField(tbl, "old_version", lua.LNumber(ev.OldVersion))
	L.SetField(tbl, "new_version", lua.LNumber(ev.NewVersion))
	L.SetField(tbl, "kind", lua.LString(ev.Op.Kind.String()))
	L.SetField(tbl, "start", lua.LNumber(ev.Op.Start))
	L.SetField(tbl, "end", lua.LNumber(ev.Op.End))
	L.SetField(tbl, "text", lua.LString(ev.Op.Text))
	L.SetField(tbl, "old_text", lua.LString(ev.OldText))
	return tbl
}
