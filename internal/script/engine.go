// Package script embeds a sandboxed Lua interpreter with bindings to a
// buffer registry. Scripts drive store operations through a global
// `store` module; see store.go for the function list.
package script

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/textstore"
)

// ErrEngineClosed is returned by operations on a closed Engine.
var ErrEngineClosed = errors.New("script: engine closed")

// DefaultOpTimeout bounds lock acquisition for store operations issued
// from Lua.
const DefaultOpTimeout = 5 * time.Second

// DefaultEventCapacity is the queue size of the engine's registry-wide
// subscription backing store.events().
const DefaultEventCapacity = 256

// Option configures an Engine.
type Option func(*Engine)

// WithOpTimeout sets the per-operation lock acquisition timeout.
func WithOpTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithEventCapacity sets the queue size of the subscription backing
// store.events().
func WithEventCapacity(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.eventCap = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// Engine executes Lua against a registry.
//
// The underlying Lua state is not goroutine-safe; Engine serializes
// DoString and DoFile with a mutex, and Lua execution itself is
// single-threaded.
type Engine struct {
	mu sync.Mutex

	L        *lua.LState
	reg      *textstore.Registry
	sub      *textstore.Subscription
	timeout  time.Duration
	eventCap int
	log      *slog.Logger
	closed   bool
}

// NewEngine creates an Engine bound to reg. The engine opens a
// registry-wide subscription immediately so scripts observe every edit
// made after this call through store.events().
func NewEngine(reg *textstore.Registry, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, errors.New("script: nil registry")
	}

	e := &Engine{
		reg:      reg,
		timeout:  DefaultOpTimeout,
		eventCap: DefaultEventCapacity,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	sub, err := reg.Subscribe(textstore.WithCapacity(e.eventCap))
	if err != nil {
		return nil, fmt.Errorf("script: subscribe: %w", err)
	}
	e.sub = sub

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	e.L = L
	openSafeLibraries(L)

	mod := &storeModule{
		reg:     reg,
		sub:     sub,
		timeout: e.timeout,
	}
	mod.register(L)

	return e, nil
}

// openSafeLibraries opens only side-effect-free Lua standard libraries.
// io, os, debug and package stay closed.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// DoString executes Lua source code. Execution is synchronous.
func (e *Engine) DoString(code string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	return e.doWithRecovery(func() error {
		return e.L.DoString(code)
	})
}

// DoFile executes a Lua file. Execution is synchronous.
func (e *Engine) DoFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	return e.doWithRecovery(func() error {
		return e.L.DoFile(path)
	})
}

// doWithRecovery converts interpreter panics into errors.
func (e *Engine) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("lua panic", "panic", r)
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// GetGlobal returns a global from the Lua state, lua.LNil if closed.
func (e *Engine) GetGlobal(name string) lua.LValue {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return lua.LNil
	}
	return e.L.GetGlobal(name)
}

// IsClosed reports whether Close has been called.
func (e *Engine) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close releases the Lua state and the event subscription.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.sub.Close()
	e.L.Close()
	return nil
}
