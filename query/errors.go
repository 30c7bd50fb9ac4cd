package query

import "errors"

var (
	// ErrNoClass is returned by Execute when no class was set.
	ErrNoClass = errors.New("query: no class")

	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("query: iterator closed")
)
