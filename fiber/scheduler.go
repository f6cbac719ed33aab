// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package fiber

import (
	"container/heap"
	"errors"
	"time"
)

// ErrCancelled is delivered to a suspension point (Await, Delay, Yield,
// Defer) when the fiber's owner has been disabled or the scheduler is
// shutting down (spec §4.5, cancellation). A fiber body sees this surface
// as a panic recovered at the top of Spawn and reported as the fiber's
// completion error; Go's own defer statements still run as the goroutine
// unwinds, but no further suspension point will ever resume normally.
var ErrCancelled = errors.New("fiber: cancelled")

// Scheduler is the single-threaded cooperative task loop described in
// spec §4.5. Topic identifies what a fiber is awaiting (an event type, in
// the corvus package); Payload is what gets delivered to a resumed fiber.
//
// Scheduler is not safe for concurrent use from multiple goroutines; it is
// driven exclusively by the connection loop's single goroutine, exactly as
// the registry and server profile are (spec §5: "no locks appear anywhere
// in the core"). Fiber bodies run on their own goroutines, but the
// scheduler only ever lets one of them (or the driver) hold the "baton" —
// be doing anything other than blocking on a channel receive — at a time.
type Scheduler[Topic comparable, Payload any] struct {
	awaiters map[Topic][]*Fiber
	timers   timerHeap[Payload]
	ready    []*Fiber

	chans map[ID]fiberChans[Topic, Payload]

	seq int64 // monotonic registration sequence, for deadline tie-breaking
}

type fiberChans[Topic comparable, Payload any] struct {
	in  chan resumeMsg[Payload]
	out chan suspendMsg[Topic, Payload]
}

// Ctx is handed to a fiber's body and exposes the suspension points.
type Ctx[Topic comparable, Payload any] struct {
	in  chan resumeMsg[Payload]
	out chan suspendMsg[Topic, Payload]
}

type suspendKind int

const (
	suspendAwait suspendKind = iota
	suspendDelay
	suspendYield
	suspendDefer
	suspendDone
)

type suspendMsg[Topic comparable, Payload any] struct {
	kind     suspendKind
	topics   []Topic
	duration time.Duration
	resolve  func() Payload
	err      error
}

type resumeMsg[Payload any] struct {
	payload   Payload
	cancelled bool
}

// New creates an empty scheduler.
func New[Topic comparable, Payload any]() *Scheduler[Topic, Payload] {
	return &Scheduler[Topic, Payload]{
		awaiters: make(map[Topic][]*Fiber),
		chans:    make(map[ID]fiberChans[Topic, Payload]),
	}
}

// Spawn creates a suspended task with its own goroutine ("owned stack") and
// drives it inline until its first suspension point or completion — the
// same way an inline-invoked handler runs synchronously up to the point it
// needs to wait on something. owner is normally a plugin name, used for
// bulk cancellation (CancelOwner).
func (s *Scheduler[Topic, Payload]) Spawn(owner string, fn func(ctx *Ctx[Topic, Payload]) error) *Fiber {
	f := &Fiber{id: newID(), owner: owner, state: Running}

	in := make(chan resumeMsg[Payload])
	out := make(chan suspendMsg[Topic, Payload])
	s.chans[f.id] = fiberChans[Topic, Payload]{in: in, out: out}

	ctx := &Ctx[Topic, Payload]{in: in, out: out}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = panicError{r}
				}
				out <- suspendMsg[Topic, Payload]{kind: suspendDone, err: err}
			}
		}()
		err := fn(ctx)
		out <- suspendMsg[Topic, Payload]{kind: suspendDone, err: err}
	}()

	s.drive(f)
	return f
}

// panicError wraps a recovered non-error panic value.
type panicError struct{ v any }

func (p panicError) Error() string { return "fiber panic: non-error value" }

// drive blocks on the fiber's suspend channel until it either completes or
// registers a new suspension, and handles bookkeeping for the latter. This
// is the "baton": while drive is blocked, only the fiber goroutine is doing
// work, and nothing else touches scheduler state.
func (s *Scheduler[Topic, Payload]) drive(f *Fiber) {
	ch := s.chans[f.id]
	msg := <-ch.out

	switch msg.kind {
	case suspendDone:
		f.state = Dead
		f.err = msg.err
		delete(s.chans, f.id)

	case suspendAwait:
		f.state = AwaitingEvent
		for _, t := range msg.topics {
			s.awaiters[t] = append(s.awaiters[t], f)
		}

	case suspendDelay:
		f.state = AwaitingDelay
		s.seq++
		heap.Push(&s.timers, &timerEntry[Payload]{
			deadline: time.Now().Add(msg.duration),
			seq:      s.seq,
			fiber:    f,
		})

	case suspendYield:
		f.state = Ready
		s.ready = append(s.ready, f)

	case suspendDefer:
		payload := msg.resolve()
		ch.in <- resumeMsg[Payload]{payload: payload}
		s.drive(f)
	}
}

// resume delivers payload to f and drives it to its next suspension point.
// Callers must have already removed f from whatever table it was parked in.
func (s *Scheduler[Topic, Payload]) resume(f *Fiber, payload Payload) {
	ch, ok := s.chans[f.id]
	if !ok {
		return
	}
	ch.in <- resumeMsg[Payload]{payload: payload}
	s.drive(f)
}

// Await suspends the current fiber until the dispatcher delivers an event
// matching one of the given topics. The matched payload is the resume
// value.
func (c *Ctx[Topic, Payload]) Await(topics ...Topic) Payload {
	c.out <- suspendMsg[Topic, Payload]{kind: suspendAwait, topics: topics}
	r := <-c.in
	if r.cancelled {
		panic(ErrCancelled)
	}
	return r.payload
}

// Delay suspends for at least d. The scheduler guarantees resumption no
// earlier than the deadline and no later than deadline+one tick (spec §4.5).
func (c *Ctx[Topic, Payload]) Delay(d time.Duration) {
	c.out <- suspendMsg[Topic, Payload]{kind: suspendDelay, duration: d}
	if r := <-c.in; r.cancelled {
		panic(ErrCancelled)
	}
}

// Yield returns control to the scheduler without suspending for an event or
// timer; the fiber is re-queued to run again at the next drain of the ready
// queue (spec §4.6 step 1).
func (c *Ctx[Topic, Payload]) Yield() {
	c.out <- suspendMsg[Topic, Payload]{kind: suspendYield}
	if r := <-c.in; r.cancelled {
		panic(ErrCancelled)
	}
}

// Defer enqueues a cross-plugin request: resolve is invoked synchronously
// by the scheduler (which has the privileged view needed to compute it,
// e.g. walking the plugin registry) and its result is delivered back to
// this fiber. This is the only sanctioned way one plugin inspects another
// plugin's command surface (spec §4.7).
func (c *Ctx[Topic, Payload]) Defer(resolve func() Payload) Payload {
	c.out <- suspendMsg[Topic, Payload]{kind: suspendDefer, resolve: resolve}
	r := <-c.in
	if r.cancelled {
		panic(ErrCancelled)
	}
	return r.payload
}

// DeliverEvent resumes exactly one fiber awaiting topic (FIFO, oldest
// registered first), removing it from the await table entirely (including
// any other topics it was also awaiting), and drives it to its next
// suspension point or completion. Returns true if a fiber was resumed.
func (s *Scheduler[Topic, Payload]) DeliverEvent(topic Topic, payload Payload) bool {
	entries := s.awaiters[topic]
	if len(entries) == 0 {
		return false
	}

	f := entries[0]
	s.removeWaiter(f)
	s.resume(f, payload)
	return true
}

func (s *Scheduler[Topic, Payload]) removeWaiter(f *Fiber) {
	for topic, entries := range s.awaiters {
		filtered := entries[:0]
		for _, e := range entries {
			if e.id != f.id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(s.awaiters, topic)
		} else {
			s.awaiters[topic] = filtered
		}
	}
}

// RunDueTimers resumes every fiber (and invokes every callback) whose
// deadline is <= now, in deadline order, ties broken by registration order
// (spec §5 ordering guarantee c). Must be called before reading from the
// transport on every tick (spec §4.6 step 2).
func (s *Scheduler[Topic, Payload]) RunDueTimers(now time.Time) {
	var zero Payload
	for s.timers.Len() > 0 && !s.timers[0].deadline.After(now) {
		entry := heap.Pop(&s.timers).(*timerEntry[Payload])
		if entry.callback != nil {
			entry.callback()
			continue
		}
		s.resume(entry.fiber, zero)
	}
}

// NextDeadline reports the earliest pending timer deadline, if any.
func (s *Scheduler[Topic, Payload]) NextDeadline() (time.Time, bool) {
	if s.timers.Len() == 0 {
		return time.Time{}, false
	}
	return s.timers[0].deadline, true
}

// DelayFunc schedules a one-shot, non-fiber callback to run no earlier than
// d from now (spec §4.5 "delay(callback, duration)").
func (s *Scheduler[Topic, Payload]) DelayFunc(d time.Duration, cb func()) {
	s.seq++
	heap.Push(&s.timers, &timerEntry[Payload]{
		deadline: time.Now().Add(d),
		seq:      s.seq,
		callback: cb,
	})
}

// DrainReady resumes every fiber in the ready queue (those that called
// Yield), in FIFO order, until the queue is empty or budget calls have run
// — satisfying spec §4.6 step 1 ("drain the scheduler's ready queue until
// empty or until a per-tick budget is reached"). Newly-yielded fibers
// encountered while draining are processed in the same pass, up to budget.
func (s *Scheduler[Topic, Payload]) DrainReady(budget int) (ran int) {
	var zero Payload
	for len(s.ready) > 0 && (budget <= 0 || ran < budget) {
		f := s.ready[0]
		s.ready = s.ready[1:]
		s.resume(f, zero)
		ran++
	}
	return ran
}

// AwaitingCount returns the number of fibers currently parked awaiting an
// event (diagnostics/tests).
func (s *Scheduler[Topic, Payload]) AwaitingCount() int {
	total := 0
	for _, v := range s.awaiters {
		total += len(v)
	}
	return total
}

// PendingTimers returns the number of outstanding timer entries
// (diagnostics/tests).
func (s *Scheduler[Topic, Payload]) PendingTimers() int { return s.timers.Len() }

// CancelOwner drops every pending await, timer, and ready-queue entry
// belonging to owner, without resuming them normally: their goroutines are
// released via a cancelled resume so they unwind (running only Go's own
// defer statements, not further suspension-point continuations), per spec
// §4.5 cancellation semantics. Call this when a plugin is disabled or the
// process is shutting down.
func (s *Scheduler[Topic, Payload]) CancelOwner(owner string) {
	var victims []*Fiber

	for topic, entries := range s.awaiters {
		kept := entries[:0]
		for _, f := range entries {
			if f.owner == owner {
				victims = append(victims, f)
			} else {
				kept = append(kept, f)
			}
		}
		if len(kept) == 0 {
			delete(s.awaiters, topic)
		} else {
			s.awaiters[topic] = kept
		}
	}

	kept := s.timers[:0]
	for _, entry := range s.timers {
		if entry.fiber != nil && entry.fiber.owner == owner {
			victims = append(victims, entry.fiber)
		} else {
			kept = append(kept, entry)
		}
	}
	s.timers = kept
	heap.Init(&s.timers)

	readyKept := s.ready[:0]
	for _, f := range s.ready {
		if f.owner == owner {
			victims = append(victims, f)
		} else {
			readyKept = append(readyKept, f)
		}
	}
	s.ready = readyKept

	for _, f := range victims {
		f.dropped = true
		f.state = Dead
		f.err = ErrCancelled
		ch, ok := s.chans[f.id]
		if !ok {
			continue
		}
		delete(s.chans, f.id)
		go func(ch fiberChans[Topic, Payload]) {
			ch.in <- resumeMsg[Payload]{cancelled: true}
			// Drain and discard whatever the unwinding fiber sends back;
			// f's state and error are already final, set above.
			<-ch.out
		}(ch)
	}
}
