// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"testing"
	"time"
)

func TestSquelchActiveWithinWindow(t *testing.T) {
	s := NewSquelch()
	t0 := time.Unix(0, 0)
	s.Touch("#chan", t0)

	if !s.Active("#chan", t0.Add(1*time.Second)) {
		t.Error("expected #chan squelched within the 5s window")
	}
}

func TestSquelchExpiresAfterTimeout(t *testing.T) {
	s := NewSquelch()
	t0 := time.Unix(0, 0)
	s.Touch("#chan", t0)

	if s.Active("#chan", t0.Add(6*time.Second)) {
		t.Error("expected #chan unsquelched after the 5s window elapsed")
	}
}

func TestSquelchReleaseClearsImmediately(t *testing.T) {
	s := NewSquelch()
	t0 := time.Unix(0, 0)
	s.Touch("#chan", t0)
	s.Release("#chan")

	if s.Active("#chan", t0) {
		t.Error("expected #chan unsquelched immediately after Release")
	}
}

func TestSquelchUntouchedKeyIsNotActive(t *testing.T) {
	s := NewSquelch()
	if s.Active("#never", time.Unix(0, 0)) {
		t.Error("an untouched key should never be active")
	}
}

func TestSquelchSweepRemovesOnlyExpiredEntries(t *testing.T) {
	s := NewSquelch()
	t0 := time.Unix(0, 0)
	s.Touch("#old", t0)
	s.Touch("#fresh", t0.Add(10*time.Second))

	s.Sweep(t0.Add(6 * time.Second))

	if s.Active("#old", t0.Add(6*time.Second)) {
		t.Error("#old should have been swept")
	}
	if !s.Active("#fresh", t0.Add(6*time.Second)) {
		t.Error("#fresh should still be active after Sweep")
	}
}
