package controller

import "github.com/pkg/errors"

// Sentinel errors surfaced across the Controller's public operations
// (spec §7).
var (
	// ErrControllerClosed is returned by RecvObservation once the
	// Controller has begun shutting down, including to a caller blocked in
	// RecvObservation (or in SendAndRecvMatch's wait) at the moment
	// shutdown begins.
	ErrControllerClosed = errors.New("controller: closed")

	// ErrInvalidState is returned when a public operation is invoked
	// while the Controller is not in the RUNNING state.
	ErrInvalidState = errors.New("controller: invalid state")

	// ErrMatchTimeout is returned by SendAndRecvMatch when the bounded
	// skip budget is exhausted without finding a matching observation,
	// the inferred signature of a simulator restart (spec §7, §9).
	ErrMatchTimeout = errors.New("controller: match timeout")
)
