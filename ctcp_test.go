// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import "testing"

func TestDecodeCTCPCommandOnly(t *testing.T) {
	e := &Event{Command: "PRIVMSG", Params: []string{"#chan"}, Trailing: "\x01VERSION\x01"}
	ctcp := decodeCTCP(e)
	if ctcp == nil {
		t.Fatal("expected a CTCPEvent")
	}
	if ctcp.Command != "VERSION" || ctcp.Reply {
		t.Errorf("ctcp = %+v", ctcp)
	}
}

func TestDecodeCTCPNotCTCP(t *testing.T) {
	e := &Event{Command: "PRIVMSG", Params: []string{"#chan"}, Trailing: "hello"}
	if decodeCTCP(e) != nil {
		t.Fatal("expected nil for a non-CTCP message")
	}
}

func TestDecodeCTCPReplyViaNotice(t *testing.T) {
	e := &Event{Command: "NOTICE", Params: []string{"nick"}, Trailing: "\x01PING 12345\x01"}
	ctcp := decodeCTCP(e)
	if ctcp == nil || !ctcp.Reply || ctcp.Command != "PING" || ctcp.Text != "12345" {
		t.Fatalf("ctcp = %+v", ctcp)
	}
}

func TestCTCPRegistryDispatchesKnownAndUnknown(t *testing.T) {
	r := NewCTCPRegistry()

	var gotCmd, gotText string
	reply := func(cmd, text string) { gotCmd, gotText = cmd, text }

	r.Dispatch(&CTCPEvent{Command: "VERSION"}, reply)
	if gotCmd != CTCPVersion || gotText == "" {
		t.Errorf("VERSION dispatch = %q %q", gotCmd, gotText)
	}

	gotCmd, gotText = "", ""
	r.Dispatch(&CTCPEvent{Command: "BOGUS", Source: &Source{Name: "nick"}}, reply)
	if gotCmd != CTCPErrMsg {
		t.Errorf("unknown CTCP dispatch = %q, want %q", gotCmd, CTCPErrMsg)
	}
}

func TestCTCPRegistrySetClear(t *testing.T) {
	r := NewCTCPRegistry()
	called := false
	r.Set("CUSTOM", func(reply func(cmd, text string), ctcp *CTCPEvent) { called = true })
	r.Dispatch(&CTCPEvent{Command: "CUSTOM"}, func(cmd, text string) {})
	if !called {
		t.Fatal("custom handler was not invoked")
	}

	r.Clear("CUSTOM")
	called = false
	r.Dispatch(&CTCPEvent{Command: "CUSTOM"}, func(cmd, text string) {})
	if called {
		t.Fatal("cleared handler was still invoked")
	}
}
