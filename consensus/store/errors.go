package store

import "github.com/pkg/errors"

// ErrNotFound is returned by lookups that find no row for the given key.
var ErrNotFound = errors.New("store: not found")

// ErrWriterInFlight is returned by Writer when a writer transaction is
// already open; the Block Store allows at most one writer transaction in
// flight globally.
var ErrWriterInFlight = errors.New("store: a writer transaction is already in flight")
