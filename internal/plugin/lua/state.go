package lua

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"
)

// DefaultCallTimeout bounds callbacks the host makes into Lua (command
// handlers, event handlers, file watch callbacks). Activation hooks are not
// bounded.
const DefaultCallTimeout = 5 * time.Second

// State wraps a sandboxed gopher-lua state.
//
// gopher-lua's LState is not goroutine-safe. Every entry into the state goes
// through the mutex, so host callbacks arriving on other goroutines are
// serialized. Go functions exposed to Lua must never re-enter the state.
type State struct {
	L *lua.LState

	mu          sync.Mutex
	log         zerolog.Logger
	callTimeout time.Duration
	closed      bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithLogger sets the logger that receives print output and callback
// failures.
func WithLogger(log zerolog.Logger) StateOption {
	return func(s *State) {
		s.log = log
	}
}

// WithCallTimeout sets the deadline for host callbacks into Lua. Zero
// disables it.
func WithCallTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.callTimeout = d
	}
}

// NewState creates a sandboxed Lua state.
func NewState(opts ...StateOption) *State {
	s := &State{
		log:         zerolog.Nop(),
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(s.L)
	installSandbox(s.L, s.log)
	return s
}

// openSafeLibraries opens the libraries plugins may use. io, os, debug and
// package are never opened; host access goes through the api table.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// do runs fn with the state locked, converting panics into errors.
func (s *State) do(fn func(L *lua.LState) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn(s.L)
}

// Run compiles src as a chunk named name, executes it and returns its
// results.
func (s *State) Run(src io.Reader, name string) ([]lua.LValue, error) {
	var results []lua.LValue
	err := s.do(func(L *lua.LState) error {
		fn, err := L.Load(src, name)
		if err != nil {
			return err
		}
		results, err = pcall(L, fn)
		return err
	})
	return results, err
}

// DoString executes a string chunk.
func (s *State) DoString(code string) error {
	return s.do(func(L *lua.LState) error {
		return L.DoString(code)
	})
}

// Global returns a global variable.
func (s *State) Global(name string) lua.LValue {
	var v lua.LValue = lua.LNil
	s.do(func(L *lua.LState) error {
		v = L.GetGlobal(name)
		return nil
	})
	return v
}

// Invoke calls fn with Go arguments and no deadline, returning the Lua
// results converted to Go values.
func (s *State) Invoke(fn *lua.LFunction, args ...any) ([]any, error) {
	return s.invoke(context.Background(), fn, args...)
}

// Callback calls fn under the state's callback timeout.
func (s *State) Callback(ctx context.Context, fn *lua.LFunction, args ...any) ([]any, error) {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}
	out, err := s.invoke(ctx, fn, args...)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %v", ErrCallTimeout, err)
	}
	return out, err
}

func (s *State) invoke(ctx context.Context, fn *lua.LFunction, args ...any) ([]any, error) {
	var out []any
	err := s.do(func(L *lua.LState) error {
		if ctx.Done() != nil {
			L.SetContext(ctx)
			defer L.RemoveContext()
		}

		lvs := make([]lua.LValue, len(args))
		for i, a := range args {
			lvs[i] = toLua(L, a)
		}
		results, err := pcall(L, fn, lvs...)
		if err != nil {
			return err
		}
		out = make([]any, len(results))
		for i, r := range results {
			out[i] = toGo(r)
		}
		return nil
	})
	return out, err
}

// pcall calls fn in protected mode and pops its results.
func pcall(L *lua.LState, fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	top := L.GetTop()
	L.Push(fn)
	for _, a := range args {
		L.Push(a)
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		return nil, err
	}

	n := L.GetTop() - top
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = L.Get(top + i + 1)
	}
	L.Pop(n)
	return results, nil
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the Lua state. Later calls return ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
