// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newTestState(t *testing.T, homes []string) *State {
	t.Helper()
	policy, err := NewChannelPolicy(homes, CaseMapRFC1459)
	if err != nil {
		t.Fatalf("NewChannelPolicy: %v", err)
	}
	return &State{
		Registry: newTestRegistry(),
		Policy:   policy,
		Classes:  NewClassTable(),
		Bus:      NewBus(),
		Squelch:  NewSquelch(),
		Log:      slog.Default(),
	}
}

func TestStateIsHome(t *testing.T) {
	s := newTestState(t, []string{"#home"})

	if !s.IsHome("#HOME") {
		t.Fatalf("IsHome should be case-insensitive per the server's case-mapping")
	}
	if s.IsHome("#guest") {
		t.Fatalf("#guest should not be a home channel")
	}
}

func TestStatePluginLogAttachesPluginField(t *testing.T) {
	s := newTestState(t, nil)
	var buf bytes.Buffer
	s.Log = slog.New(slog.NewTextHandler(&buf, nil))
	l := s.PluginLog("oneliner")
	if l == nil {
		t.Fatalf("PluginLog returned nil")
	}
	l.Info("hello")
	if !strings.Contains(buf.String(), "plugin=oneliner") {
		t.Errorf("log output %q lacks plugin=oneliner", buf.String())
	}
}
