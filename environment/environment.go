// Package environment provides a thin synchronous wrapper around Controller
// intended to seed RL-style step/reset loops (spec §4.E, Component E). It is
// stateless beyond its Controller reference and an optional display sink.
package environment

import (
	"context"

	"mcio.dev/core/codec"
	"mcio.dev/core/controller"
)

// DisplaySink receives every observation returned by Reset or Step, in
// addition to the caller. Display/decoding of the frame itself stays a
// consumer concern; the façade only forwards the packet.
type DisplaySink func(*codec.ObservationPacket)

// Environment wraps a Controller with reset-packet semantics and an optional
// display sink. It adds no state of its own beyond the Controller reference.
type Environment struct {
	ctrl    *controller.Controller
	display DisplaySink
}

// New wraps an already-constructed Controller. The Controller must still be
// started via Start before Reset/Step are called.
func New(ctrl *controller.Controller, display DisplaySink) *Environment {
	return &Environment{ctrl: ctrl, display: display}
}

// Start binds the underlying Controller's transport and launches its
// workers. It is a pass-through convenience so callers of Environment never
// need to reach into the wrapped Controller directly.
func (e *Environment) Start(ctx context.Context) error {
	return e.ctrl.Start(ctx)
}

// Reset constructs an ActionPacket{ClearInput: true, Commands: commands}
// and runs it through the synchronous match primitive, returning the first
// observation the simulator produces after applying it (spec §4.E).
func (e *Environment) Reset(commands []string) (*codec.ObservationPacket, error) {
	obs, err := e.ctrl.SendAndRecvMatch(&codec.ActionPacket{
		ClearInput: true,
		Commands:   commands,
	})
	if err != nil {
		return nil, err
	}
	e.emit(obs)
	return obs, nil
}

// Step dispatches action and returns the first observation whose
// last_action_sequence has caught up to it (spec §4.D point 4).
func (e *Environment) Step(action *codec.ActionPacket) (*codec.ObservationPacket, error) {
	obs, err := e.ctrl.SendAndRecvMatch(action)
	if err != nil {
		return nil, err
	}
	e.emit(obs)
	return obs, nil
}

// Close forwards to the Controller's shutdown sequence.
func (e *Environment) Close() error {
	return e.ctrl.Shutdown()
}

func (e *Environment) emit(obs *codec.ObservationPacket) {
	if e.display != nil {
		e.display(obs)
	}
}
