package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/textstore"
)

func setupEngine(t *testing.T) (*textstore.Registry, *Engine) {
	t.Helper()

	reg := textstore.New()
	t.Cleanup(func() { reg.Close() })

	eng, err := NewEngine(reg)
	if err != nil {
		t.Fatalf("NewEngine error = %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	return reg, eng
}

func TestNewEngineNilRegistry(t *testing.T) {
	if _, err := NewEngine(nil); err == nil {
		t.Fatal("expected error for nil registry")
	}
}

func TestCreateAndText(t *testing.T) {
	_, eng := setupEngine(t)

	err := eng.DoString(`
		id = store.create("hello world")
		result = store.text(id)
	`)
	if err != nil {
		t.Fatalf("DoString error = %v", err)
	}

	result := eng.GetGlobal("result")
	if result.String() != "hello world" {
		t.Errorf("text() = %q, want %q", result.String(), "hello world")
	}
}

func TestCreateEmpty(t *testing.T) {
	_, eng := setupEngine(t)

	err := eng.DoString(`
		id = store.create()
		result = store.len(id)
	`)
	if err != nil {
		t.Fatalf("DoString error = %v", err)
	}

	if got := eng.GetGlobal("result").String(); got != "0" {
		t.Errorf("len() = %s, want 0", got)
	}
}

func TestOpenReturnsVersion(t *testing.T) {
	_, eng := setupEngine(t)

	err := eng.DoString(`
		id = store.create("abc")
		store.insert(id, 3, "def")
		result = store.open(id)
	`)
	if err != nil {
		t.Fatalf("DoString error = %v", err)
	}

	if got := eng.GetGlobal("result").String(); got != "1" {
		t.Errorf("open() = %s, want 1", got)
	}
}

func TestOpenMissingRaises(t *testing.T) {
	_, eng := setupEngine(t)

	err := eng.DoString(`store.open(42)`)
	if err == nil {
		t.Fatal("expected error for missing buffer")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want mention of not found", err)
	}
}

func TestLenCountsRunes(t *testing.T) {
	_, eng := setupEngine(t)

	err := eng.DoString(`
		id = store.create("héllo 世界")
		result = store.len(id)
	`)
	if err != nil {
		t.Fatalf("DoString error = %v", err)
	}

	if got := eng.GetGlobal("result").String(); got != "8" {
		t.Errorf("len() = %s, want 8 (runes, not bytes)", got)
	}
}

func TestEditSequence(t *testing.T) {
	_, eng := setupEngine(t)

	err := eng.DoString(`
		id = store.create("hello world")
		v1 = store.insert(id, 11, "!")
		v2, old1 = store.delete(id, 0, 6)
		v3, old2 = store.replace(id, 0, 5, "WORLD")
		text = store.text(id)
		ver = store.version(id)
	`)
	if err != nil {
		t.Fatalf("DoString error = %v", err)
	}

	checks := []struct {
		global string
		want   string
	}{
		{"v1", "1"},
		{"v2", "2"},
		{"old1", "hello "},
		{"v3", "3"},
		{"old2", "world"},
		{"text", "WORLD!"},
		{"ver", "3"},
	}
	for _, c := range checks {
		if got := eng.GetGlobal(c.global).String(); got != c.want {
			t.Errorf("%s = %q, want %q", c.global, got, c.want)
		}
	}
}

func TestLineCount(t *testing.T) {
	_, eng := setupEngine(t)

	err := eng.DoString(`
		id = store.create("one\ntwo\nthree")
		result = store.line_count(id)
	`)
	if err != nil {
		t.Fatalf("DoString error = %v", err)
	}

	if got := eng.GetGlobal("result").String(); got != "3" {
		t.Errorf("line_count() = %s, want 3", got)
	}
}

func TestListAndRemove(t *testing.T) {
	_, eng := setupEngine(t)

	err := eng.DoString(`
		a = store.create("a")
		b = store.create("b")
		c = store.create("c")
		removed = store.remove(b)
		removed_again = store.remove(b)
		ids = store.list()
		n = #ids
		first = ids[1]
		last = ids[2]
	`)
	if err != nil {
		t.Fatalf("DoString error = %v", err)
	}

	if got := eng.GetGlobal("removed"); got != lua.LTrue {
		t.Errorf("remove(b) = %v, want true", got)
	}
	if got := eng.GetGlobal("removed_again"); got != lua.LFalse {
		t.Errorf("second remove(b) = %v, want false", got)
	}
	if got := eng.GetGlobal("n").String(); got != "2" {
		t.Errorf("#list() = %s, want 2", got)
	}
	if got := eng.GetGlobal("first").String(); got != "1" {
		t.Errorf("ids[1] = %s, want 1", got)
	}
	if got := eng.GetGlobal("last").String(); got != "3" {
		t.Errorf("ids[2] = %s, want 3", got)
	}
}

func TestReset(t *testing.T) {
	_, eng := setupEngine(t)

	err := eng.DoString(`
		id = store.create("content")
		store.reset(id)
		text = store.text(id)
		ver = store.version(id)
	`)
	if err != nil {
		t.Fatalf("DoString error = %v", err)
	}

	if got := eng.GetGlobal("text").String(); got != "" {
		t.Errorf("text after reset = %q, want empty", got)
	}
	if got := eng.GetGlobal("ver").String(); got != "1" {
		t.Errorf("version after reset = %s, want 1", got)
	}
}

func TestValidationRaises(t *testing.T) {
	_, eng := setupEngine(t)

	err := eng.DoString(`
		id = store.create("short")
		store.insert(id, 99, "x")
	`)
	if err == nil {
		t.Fatal("expected error for out-of-range offset")
	}
	if !strings.Contains(err.Error(), "out of range") {
		t.Errorf("error = %v, want mention of out of range", err)
	}
}

func TestEvents(t *testing.T) {
	_, eng := setupEngine(t)

	err := eng.DoString(`
		id = store.create("base")
		store.insert(id, 4, " one")
		store.delete(id, 0, 4)
		evs, lagged = store.events()
		n = #evs
		k1 = evs[1].kind
		k2 = evs[2].kind
		b1 = evs[1].buffer
		nv1 = evs[1].new_version
		ot2 = evs[2].old_text
	`)
	if err != nil {
		t.Fatalf("DoString error = %v", err)
	}

	if got := eng.GetGlobal("n").String(); got != "2" {
		t.Fatalf("#events = %s, want 2", got)
	}
	if got := eng.GetGlobal("lagged"); got != lua.LFalse {
		t.Errorf("lagged = %v, want false", got)
	}
	if got := eng.GetGlobal("k1").String(); got != "insert" {
		t.Errorf("first kind = %q, want 'insert'", got)
	}
	if got := eng.GetGlobal("k2").String(); got != "delete" {
		t.Errorf("second kind = %q, want 'delete'", got)
	}
	if got := eng.GetGlobal("b1").String(); got != "1" {
		t.Errorf("first buffer = %s, want 1", got)
	}
	if got := eng.GetGlobal("nv1").String(); got != "1" {
		t.Errorf("first new_version = %s, want 1", got)
	}
	if got := eng.GetGlobal("ot2").String(); got != "base" {
		t.Errorf("second old_text = %q, want 'base'", got)
	}
}

func TestEventsDrainOnce(t *testing.T) {
	_, eng := setupEngine(t)

	err := eng.DoString(`
		id = store.create("x")
		store.insert(id, 1, "y")
		first = #store.events()
		second = #store.events()
	`)
	if err != nil {
		t.Fatalf("DoString error = %v", err)
	}

	if got := eng.GetGlobal("first").String(); got != "1" {
		t.Errorf("first drain = %s, want 1", got)
	}
	if got := eng.GetGlobal("second").String(); got != "0" {
		t.Errorf("second drain = %s, want 0", got)
	}
}

func TestSandboxExcludesIOAndOS(t *testing.T) {
	_, eng := setupEngine(t)

	err := eng.DoString(`
		no_io = (io == nil)
		no_os = (os == nil)
	`)
	if err != nil {
		t.Fatalf("DoString error = %v", err)
	}

	if got := eng.GetGlobal("no_io"); got != lua.LTrue {
		t.Error("io library should not be available")
	}
	if got := eng.GetGlobal("no_os"); got != lua.LTrue {
		t.Error("os library should not be available")
	}
}

func TestDoFile(t *testing.T) {
	_, eng := setupEngine(t)

	path := filepath.Join(t.TempDir(), "script.lua")
	code := `
		id = store.create("from file")
		result = store.text(id)
	`
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := eng.DoFile(path); err != nil {
		t.Fatalf("DoFile error = %v", err)
	}
	if got := eng.GetGlobal("result").String(); got != "from file" {
		t.Errorf("result = %q, want 'from file'", got)
	}
}

func TestSyntaxError(t *testing.T) {
	_, eng := setupEngine(t)

	if err := eng.DoString(`store.create(`); err == nil {
		t.Fatal("expected syntax error")
	}
}

func TestClosedEngine(t *testing.T) {
	_, eng := setupEngine(t)

	if err := eng.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Errorf("second Close error = %v, want nil", err)
	}
	if !eng.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}

	if err := eng.DoString(`x = 1`); err != ErrEngineClosed {
		t.Errorf("DoString after close error = %v, want ErrEngineClosed", err)
	}
	if got := eng.GetGlobal("store"); got != lua.LNil {
		t.Errorf("GetGlobal after close = %v, want nil", got)
	}
}

func TestRegistryVisibleFromGo(t *testing.T) {
	reg, eng := setupEngine(t)

	err := eng.DoString(`store.create("shared state")`)
	if err != nil {
		t.Fatalf("DoString error = %v", err)
	}

	if got := reg.Len(); got != 1 {
		t.Errorf("registry Len() = %d, want 1", got)
	}
}
