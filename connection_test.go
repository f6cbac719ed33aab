// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"bufio"
	"encoding/base64"
	"net"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestSplitOutboundLeavesShortMessageUntouched(t *testing.T) {
	e := &Event{Command: "PRIVMSG", Params: []string{"#chan"}, Trailing: "hello there"}
	got := splitOutbound(e, maxLength)
	if len(got) != 1 || got[0] != e {
		t.Fatalf("short message was split: %+v", got)
	}
}

func TestSplitOutboundWrapsLongMessage(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "lorem ipsum dolor sit amet "
	}
	e := &Event{Command: "PRIVMSG", Params: []string{"#chan"}, Trailing: long}
	parts := splitOutbound(e, 80)
	if len(parts) < 2 {
		t.Fatalf("expected multiple parts, got %d", len(parts))
	}
	var rebuilt string
	for _, p := range parts {
		if p.Len() > 80 {
			t.Errorf("part exceeds maxLen: %d > 80 (%q)", p.Len(), p.Trailing)
		}
		rebuilt += p.Trailing
	}
}

func TestBackoffStaysWithinCap(t *testing.T) {
	c := &Connection{cfg: ConnectionConfig{ReconnectBase: 5 * time.Second, ReconnectCap: 5 * time.Minute}}
	for i := 0; i < 30; i++ {
		d := c.backoff()
		if d < 0 || d > c.cfg.ReconnectCap {
			t.Fatalf("backoff out of bounds at try %d: %s", i, d)
		}
	}
}

func TestRegisterSendsPassCapNickUser(t *testing.T) {
	state := newTestState(t, nil)
	state.Settings.Nickname = "bot"
	state.Settings.Ident = "botident"
	post := NewPostprocessor(state.Registry)

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := &Connection{
		cfg:     ConnectionConfig{Pass: "serverpass"},
		state:   state,
		post:    post,
		rw:      bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)),
		limiter: rate.NewLimiter(rate.Inf, 1),
	}

	done := make(chan error, 1)
	go func() { done <- c.register() }()

	sc := bufio.NewScanner(server)
	var lines []string
	for i := 0; i < 4; i++ {
		if !sc.Scan() {
			t.Fatalf("scan line %d: %v", i, sc.Err())
		}
		lines = append(lines, sc.Text())
	}
	if err := <-done; err != nil {
		t.Fatalf("register: %v", err)
	}

	want := []string{"PASS serverpass", "CAP LS 302", "NICK bot", "USER botident * * botident"}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %q, want %q", i, lines[i], w)
		}
	}
}

func TestAdvanceCAPNegotiationRequestsOfferedCaps(t *testing.T) {
	state := newTestState(t, nil)
	post := NewPostprocessor(state.Registry)
	c := &Connection{state: state, post: post, cfg: ConnectionConfig{SASLUser: "bot"}, outbox: make(chan *Event, 8)}

	post.WantCaps([]string{"sasl", "multi-prefix"})
	e := ParseEvent(":irc.example CAP * LS :sasl multi-prefix account-notify")
	post.Process(e)

	c.advanceCAPNegotiation(e)

	select {
	case out := <-c.outbox:
		if out.Command != "CAP" || len(out.Params) == 0 || out.Params[0] != "REQ" {
			t.Fatalf("got %+v, want CAP REQ", out)
		}
	default:
		t.Fatal("expected a CAP REQ to be enqueued")
	}
}

func TestAdvanceCAPNegotiationDrivesSASLThenEnds(t *testing.T) {
	state := newTestState(t, nil)
	post := NewPostprocessor(state.Registry)
	c := &Connection{state: state, post: post, cfg: ConnectionConfig{SASLUser: "bot", SASLPass: "secret"}, outbox: make(chan *Event, 8)}

	ack := ParseEvent(":irc.example CAP * ACK :sasl")
	post.Process(ack)
	c.advanceCAPNegotiation(ack)

	select {
	case out := <-c.outbox:
		if out.Command != "AUTHENTICATE" || out.Params[0] != "PLAIN" {
			t.Fatalf("got %+v, want AUTHENTICATE PLAIN", out)
		}
	default:
		t.Fatal("expected AUTHENTICATE PLAIN to be enqueued")
	}

	authPlus := &Event{Command: "AUTHENTICATE", Trailing: "+"}
	c.advanceCAPNegotiation(authPlus)
	select {
	case out := <-c.outbox:
		if out.Command != "AUTHENTICATE" || !out.Sensitive {
			t.Fatalf("got %+v, want a sensitive AUTHENTICATE payload", out)
		}
		decoded, err := base64.StdEncoding.DecodeString(out.Params[0])
		if err != nil || string(decoded) != "\x00bot\x00secret" {
			t.Fatalf("payload decode = %q, err=%v", decoded, err)
		}
	default:
		t.Fatal("expected the SASL PLAIN payload to be enqueued")
	}

	success := &Event{Type: SASLSuccess}
	c.advanceCAPNegotiation(success)
	select {
	case out := <-c.outbox:
		if out.Command != "CAP" || out.Params[0] != "END" {
			t.Fatalf("got %+v, want CAP END", out)
		}
	default:
		t.Fatal("expected CAP END after SASL success")
	}
}

func TestNewMessageSplitsTrailingOnSpace(t *testing.T) {
	e := NewMessage("PRIVMSG", "#chan", "hello world")
	if len(e.Params) != 1 || e.Params[0] != "#chan" {
		t.Fatalf("Params = %v, want [#chan]", e.Params)
	}
	if e.Trailing != "hello world" {
		t.Fatalf("Trailing = %q, want %q", e.Trailing, "hello world")
	}
}
