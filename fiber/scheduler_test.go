// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package fiber

import (
	"errors"
	"testing"
	"time"
)

// topic and payload stand in for corvus.EventType and *corvus.Event without
// importing the corvus package (which would be circular).
type topic string

type payload struct {
	body string
}

func newSched() *Scheduler[topic, payload] {
	return New[topic, payload]()
}

func TestAwaitFIFOOrdering(t *testing.T) {
	s := newSched()

	var order []int
	done := make(chan struct{}, 3)

	for i := 0; i < 3; i++ {
		i := i
		s.Spawn("p", func(ctx *Ctx[topic, payload]) error {
			ctx.Await("join")
			order = append(order, i)
			done <- struct{}{}
			return nil
		})
	}

	if n := s.AwaitingCount(); n != 3 {
		t.Fatalf("AwaitingCount() = %d, want 3", n)
	}

	for i := 0; i < 3; i++ {
		if !s.DeliverEvent("join", payload{}) {
			t.Fatalf("DeliverEvent() returned false on delivery %d", i)
		}
		<-done
	}

	if s.AwaitingCount() != 0 {
		t.Fatalf("AwaitingCount() = %d, want 0 after all delivered", s.AwaitingCount())
	}

	for i, got := range order {
		if got != i {
			t.Errorf("resume order[%d] = %d, want %d (FIFO by registration)", i, got, i)
		}
	}
}

func TestAwaitMultiTopicRemovesAllRegistrations(t *testing.T) {
	s := newSched()
	done := make(chan struct{})

	s.Spawn("p", func(ctx *Ctx[topic, payload]) error {
		ctx.Await("a", "b")
		close(done)
		return nil
	})

	if n := s.AwaitingCount(); n != 2 {
		t.Fatalf("AwaitingCount() = %d, want 2 (registered under both topics)", n)
	}

	if !s.DeliverEvent("a", payload{}) {
		t.Fatal("DeliverEvent(a) = false, want true")
	}
	<-done

	if s.DeliverEvent("b", payload{}) {
		t.Fatal("DeliverEvent(b) = true after fiber already resumed via topic a")
	}
	if n := s.AwaitingCount(); n != 0 {
		t.Fatalf("AwaitingCount() = %d, want 0", n)
	}
}

func TestDelayOrderingWithTieBreak(t *testing.T) {
	s := newSched()

	var order []int
	done := make(chan struct{}, 3)

	// All three use the same delay, so their deadlines are equal or in
	// spawn order (equal deadlines fall back to registration order);
	// either way resumption must follow registration order.
	now := time.Now()
	for i := 0; i < 3; i++ {
		i := i
		s.Spawn("p", func(ctx *Ctx[topic, payload]) error {
			ctx.Delay(10 * time.Millisecond)
			order = append(order, i)
			done <- struct{}{}
			return nil
		})
	}

	if n := s.PendingTimers(); n != 3 {
		t.Fatalf("PendingTimers() = %d, want 3", n)
	}

	s.RunDueTimers(now.Add(time.Hour))
	for i := 0; i < 3; i++ {
		<-done
	}

	for i, got := range order {
		if got != i {
			t.Errorf("resume order[%d] = %d, want %d (registration tie-break)", i, got, i)
		}
	}
}

func TestRunDueTimersOnlyRunsDue(t *testing.T) {
	s := newSched()
	resumed := make(chan struct{}, 1)

	s.Spawn("p", func(ctx *Ctx[topic, payload]) error {
		ctx.Delay(time.Hour)
		resumed <- struct{}{}
		return nil
	})

	s.RunDueTimers(time.Now())
	select {
	case <-resumed:
		t.Fatal("fiber resumed before its deadline")
	default:
	}

	if n := s.PendingTimers(); n != 1 {
		t.Fatalf("PendingTimers() = %d, want 1", n)
	}

	s.RunDueTimers(time.Now().Add(2 * time.Hour))
	<-resumed
}

func TestDelayFuncRunsCallbackNotFiber(t *testing.T) {
	s := newSched()
	var ran bool

	s.DelayFunc(time.Millisecond, func() { ran = true })
	s.RunDueTimers(time.Now().Add(time.Second))

	if !ran {
		t.Fatal("DelayFunc callback never ran")
	}
	if s.PendingTimers() != 0 {
		t.Fatalf("PendingTimers() = %d, want 0", s.PendingTimers())
	}
}

func TestYieldRequeues(t *testing.T) {
	s := newSched()
	var steps int
	done := make(chan struct{})

	s.Spawn("p", func(ctx *Ctx[topic, payload]) error {
		steps++
		ctx.Yield()
		steps++
		ctx.Yield()
		steps++
		close(done)
		return nil
	})

	if steps != 1 {
		t.Fatalf("steps after spawn = %d, want 1 (blocks at first Yield)", steps)
	}

	if n := s.DrainReady(1); n != 1 {
		t.Fatalf("DrainReady(1) ran %d, want 1", n)
	}
	if steps != 2 {
		t.Fatalf("steps after first drain = %d, want 2", steps)
	}

	if n := s.DrainReady(1); n != 1 {
		t.Fatalf("DrainReady(1) ran %d, want 1", n)
	}
	<-done
	if steps != 3 {
		t.Fatalf("steps after second drain = %d, want 3", steps)
	}
}

func TestDrainReadyRespectsBudget(t *testing.T) {
	s := newSched()
	var resumed int

	for i := 0; i < 5; i++ {
		s.Spawn("p", func(ctx *Ctx[topic, payload]) error {
			ctx.Yield()
			resumed++
			return nil
		})
	}

	if n := s.DrainReady(2); n != 2 {
		t.Fatalf("DrainReady(2) = %d, want 2", n)
	}
	if resumed != 2 {
		t.Fatalf("resumed = %d, want 2", resumed)
	}

	if n := s.DrainReady(0); n != 3 {
		t.Fatalf("DrainReady(0) = %d, want 3 (remaining, no budget)", n)
	}
}

func TestDeferRoundTrip(t *testing.T) {
	s := newSched()
	result := make(chan string, 1)

	s.Spawn("p", func(ctx *Ctx[topic, payload]) error {
		p := ctx.Defer(func() payload { return payload{body: "resolved"} })
		result <- p.body
		return nil
	})

	if got := <-result; got != "resolved" {
		t.Fatalf("Defer result = %q, want %q", got, "resolved")
	}
}

func TestSpawnCapturesCompletionError(t *testing.T) {
	s := newSched()
	wantErr := errors.New("boom")
	done := make(chan struct{})

	f := s.Spawn("p", func(ctx *Ctx[topic, payload]) error {
		close(done)
		return wantErr
	})
	<-done

	// The fiber body already returned by the time Spawn's inline drive
	// completes, so f.Err() is immediately readable.
	if !errors.Is(f.Err(), wantErr) {
		t.Fatalf("Err() = %v, want %v", f.Err(), wantErr)
	}
	if f.State() != Dead {
		t.Fatalf("State() = %v, want Dead", f.State())
	}
}

func TestSpawnRecoversPanic(t *testing.T) {
	s := newSched()

	f := s.Spawn("p", func(ctx *Ctx[topic, payload]) error {
		panic(errors.New("kaboom"))
	})

	if f.State() != Dead {
		t.Fatalf("State() = %v, want Dead", f.State())
	}
	if f.Err() == nil {
		t.Fatal("Err() = nil, want recovered panic error")
	}
}

func TestCancelOwnerStopsAwaiter(t *testing.T) {
	s := newSched()
	unwound := make(chan error, 1)

	s.Spawn("victim", func(ctx *Ctx[topic, payload]) error {
		defer func() {
			if r := recover(); r != nil {
				err, _ := r.(error)
				unwound <- err
				panic(r)
			}
		}()
		ctx.Await("never")
		return nil
	})

	if s.AwaitingCount() != 1 {
		t.Fatalf("AwaitingCount() = %d, want 1", s.AwaitingCount())
	}

	s.CancelOwner("victim")

	if s.AwaitingCount() != 0 {
		t.Fatalf("AwaitingCount() = %d, want 0 after CancelOwner", s.AwaitingCount())
	}

	if err := <-unwound; !errors.Is(err, ErrCancelled) {
		t.Fatalf("unwound with %v, want %v", err, ErrCancelled)
	}

	// The event this fiber was awaiting must no longer be deliverable.
	if s.DeliverEvent("never", payload{}) {
		t.Fatal("DeliverEvent() = true, want false after cancellation")
	}
}

func TestCancelOwnerLeavesOtherOwnersRunning(t *testing.T) {
	s := newSched()
	resumed := make(chan struct{}, 1)

	s.Spawn("victim", func(ctx *Ctx[topic, payload]) error {
		ctx.Await("shared")
		return nil
	})
	s.Spawn("survivor", func(ctx *Ctx[topic, payload]) error {
		ctx.Await("shared")
		resumed <- struct{}{}
		return nil
	})

	s.CancelOwner("victim")

	if n := s.AwaitingCount(); n != 1 {
		t.Fatalf("AwaitingCount() = %d, want 1 (survivor still parked)", n)
	}

	if !s.DeliverEvent("shared", payload{}) {
		t.Fatal("DeliverEvent() = false, want true (survivor should still be awaiting)")
	}
	<-resumed
}

func TestCancelOwnerStopsDelayedFiber(t *testing.T) {
	s := newSched()

	f := s.Spawn("victim", func(ctx *Ctx[topic, payload]) error {
		ctx.Delay(time.Hour)
		return nil
	})

	if s.PendingTimers() != 1 {
		t.Fatalf("PendingTimers() = %d, want 1", s.PendingTimers())
	}

	s.CancelOwner("victim")

	if s.PendingTimers() != 0 {
		t.Fatalf("PendingTimers() = %d, want 0 after CancelOwner", s.PendingTimers())
	}
	if f.State() != Dead {
		t.Fatalf("State() = %v, want Dead", f.State())
	}
}
