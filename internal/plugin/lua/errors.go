package lua

import "errors"

// Errors for Lua module operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrCallTimeout is returned when a callback runs past its deadline.
	ErrCallTimeout = errors.New("lua call timed out")

	// ErrNotExported is returned when a module chunk neither returns a table
	// nor defines activate/deactivate globals.
	ErrNotExported = errors.New("module did not export an object")
)
