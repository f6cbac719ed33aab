// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

// Package fiber implements the single-threaded cooperative task scheduler
// that sits underneath the dispatcher: await(event), delay(duration),
// timers, deferred cross-plugin requests, and cancellation.
//
// Go has no stackful user-mode coroutines in the standard toolchain, so
// each Fiber is backed by one goroutine. Single-threaded cooperative
// semantics are still enforced: a baton of size 1 means exactly one fiber
// (or the driving connection loop) is ever actually running at a time.
// Suspension points (Await, Delay, Yield, Defer) release the baton as
// their first action and block until they reacquire it.
package fiber

import (
	"fmt"

	"github.com/google/uuid"
)

// ID uniquely identifies a fiber across its lifetime.
type ID string

func newID() ID {
	return ID(uuid.NewString())
}

// State describes where a fiber currently sits in its lifecycle.
type State int

const (
	// Ready fibers are runnable but have not been given the baton yet.
	Ready State = iota
	// Running is held by at most one fiber at any instant.
	Running
	// AwaitingEvent fibers are parked in the scheduler's await table.
	AwaitingEvent
	// AwaitingDelay fibers are parked in the scheduler's timer heap.
	AwaitingDelay
	// Dead fibers have returned, panicked (recovered in Spawn), or
	// been dropped by cancellation.
	Dead
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case AwaitingEvent:
		return "awaiting-event"
	case AwaitingDelay:
		return "awaiting-delay"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Fiber is a stackful-in-spirit cooperative task with stable identity
// across suspensions. The zero value is not usable; construct one with
// Scheduler.Spawn.
type Fiber struct {
	id      ID
	owner   string // plugin name, for cancellation and diagnostics
	state   State
	dropped bool  // set by cancellation; fiber body must not run further handler code
	err     error // set once state reaches Dead: nil, a body error, ErrCancelled, or a recovered panic
}

// ID returns the fiber's stable identifier.
func (f *Fiber) ID() ID { return f.id }

// Owner returns the plugin name that spawned this fiber.
func (f *Fiber) Owner() string { return f.owner }

// State returns the fiber's last-known scheduling state. Only meaningful
// when read from within the scheduler goroutine (diagnostics/tests).
func (f *Fiber) State() State { return f.state }

// Err returns the fiber's completion error. Only meaningful once State
// reports Dead; nil means the body returned nil.
func (f *Fiber) Err() error { return f.err }

func (f *Fiber) String() string {
	return fmt.Sprintf("fiber(%s owner=%s state=%s)", f.id, f.owner, f.state)
}
