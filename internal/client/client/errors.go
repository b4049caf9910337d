package client

import "errors"

// ErrUnavailable means the server could not be reached or timed out. Callers
// fall back to offline mode on it.
var ErrUnavailable = errors.New("server unavailable")
