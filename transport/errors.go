package transport

import "github.com/pkg/errors"

// ErrTransportClosed is returned by Recv/Send once Close has been called
// (spec §7: an expected, non-fatal shutdown signal rather than an error to
// surface to an agent).
var ErrTransportClosed = errors.New("transport: closed")

// ErrNoSubscriber is returned by a non-blocking Send attempt when the
// action channel has no subscriber connected yet; callers treat this as a
// drop, not a failure (spec §4.B slow-joiner behavior).
var ErrNoSubscriber = errors.New("transport: no subscriber connected")
