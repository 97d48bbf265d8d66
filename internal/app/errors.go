package service

import "errors"

// ErrNotStarted is returned by operations that need the worker pool before Start.
var ErrNotStarted = errors.New("service not started")
