package memory

import "errors"

// ErrClosed is the cause attached to calls made after Close.
var ErrClosed = errors.New("memory store is closed")
