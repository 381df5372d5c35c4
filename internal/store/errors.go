package store

import (
	"errors"
	"fmt"
)

var (
	// ErrUnimplemented marks an operation a plugin does not provide.
	ErrUnimplemented = errors.New("capability not implemented")
	// ErrUndeclaredType marks a catalog entry whose type the plugin never declared.
	ErrUndeclaredType = errors.New("product type not declared by store")
)

// UnimplementedError is returned when a plugin is asked for an operation it
// does not implement. It is never recovered from.
type UnimplementedError struct {
	Store string
	Op    string
}

func (e *UnimplementedError) Error() string {
	if e.Store == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrUnimplemented)
	}
	return fmt.Sprintf("store %s: %s: %v", e.Store, e.Op, ErrUnimplemented)
}

func (e *UnimplementedError) Unwrap() error {
	return ErrUnimplemented
}

// FetchError reports a failed product detail retrieval.
type FetchError struct {
	Store string
	URL   string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("store %s: fetch %s: %v", e.Store, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// EnumerationError reports a failure while listing a store's catalog.
type EnumerationError struct {
	Store string
	Err   error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("store %s: enumerate: %v", e.Store, e.Err)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}

// IsUnimplemented reports whether err carries ErrUnimplemented.
func IsUnimplemented(err error) bool {
	return errors.Is(err, ErrUnimplemented)
}
