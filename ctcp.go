// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"strings"
	"time"
)

// ctcpDelim is the delimiter used for CTCP-formatted messages.
const ctcpDelim byte = 0x01

// Well-known CTCP tags, used by the default auto-responder.
const (
	CTCPPing    = "PING"
	CTCPPong    = "PONG"
	CTCPVersion = "VERSION"
	CTCPSource  = "SOURCE"
	CTCPTime    = "TIME"
	CTCPErrMsg  = "ERRMSG"
)

// CTCPEvent is the information extracted from a CTCP-encoded PRIVMSG or
// NOTICE (http://www.irchelp.org/protocol/ctcpspec.html).
type CTCPEvent struct {
	Source  *Source
	Command string
	Text    string
	Reply   bool // true if this arrived via NOTICE, i.e. a reply to our own query
}

// decodeCTCP extracts a CTCPEvent from e, or returns nil if e isn't a
// CTCP-formatted message.
func decodeCTCP(e *Event) *CTCPEvent {
	if len(e.Params) != 1 || len(e.Trailing) < 3 {
		return nil
	}
	if e.Command != "PRIVMSG" && e.Command != "NOTICE" {
		return nil
	}
	if e.Trailing[0] != ctcpDelim || e.Trailing[len(e.Trailing)-1] != ctcpDelim {
		return nil
	}

	text := e.Trailing[1 : len(e.Trailing)-1]
	s := strings.IndexByte(text, eventSpace)

	if s < 0 {
		if !isCTCPTag(text) {
			return nil
		}
		return &CTCPEvent{Source: e.Source, Command: text, Reply: e.Command == "NOTICE"}
	}

	if !isCTCPTag(text[:s]) {
		return nil
	}
	return &CTCPEvent{
		Source:  e.Source,
		Command: text[:s],
		Text:    text[s+1:],
		Reply:   e.Command == "NOTICE",
	}
}

func isCTCPTag(tag string) bool {
	if tag == "" {
		return false
	}
	for i := 0; i < len(tag); i++ {
		if (tag[i] < 'A' || tag[i] > 'Z') && (tag[i] < '0' || tag[i] > '9') {
			return false
		}
	}
	return true
}

// encodeCTCPRaw wraps cmd/text in CTCP delimiters for use as a PRIVMSG or
// NOTICE Trailing payload.
func encodeCTCPRaw(cmd, text string) string {
	if cmd == "" {
		return ""
	}
	out := string(ctcpDelim) + cmd
	if text != "" {
		out += string(eventSpace) + text
	}
	return out + string(ctcpDelim)
}

// CTCPHandler responds to a decoded CTCP query. It runs inline on the
// connection loop's goroutine (§5: no parallelism in the core) and must
// not block; a handler needing to wait on anything spawns a fiber instead.
type CTCPHandler func(reply func(cmd, text string), ctcp *CTCPEvent)

// CTCPRegistry dispatches incoming CTCP queries to registered handlers,
// the way girc's CTCP type does, minus the per-call goroutine spawn (the
// scheduler, not ad-hoc goroutines, owns concurrency here).
type CTCPRegistry struct {
	handlers map[string]CTCPHandler
}

// NewCTCPRegistry returns a registry preloaded with the standard PING,
// VERSION, SOURCE, and TIME auto-responders.
func NewCTCPRegistry() *CTCPRegistry {
	r := &CTCPRegistry{handlers: make(map[string]CTCPHandler)}
	r.Set(CTCPPing, handleCTCPPing)
	r.Set(CTCPVersion, handleCTCPVersion)
	r.Set(CTCPSource, handleCTCPSource)
	r.Set(CTCPTime, handleCTCPTime)
	return r
}

// Set installs (or replaces) the handler for cmd.
func (r *CTCPRegistry) Set(cmd string, h CTCPHandler) {
	cmd = strings.ToUpper(cmd)
	if !isCTCPTag(cmd) {
		return
	}
	r.handlers[cmd] = h
}

// Clear removes the handler for cmd, if any.
func (r *CTCPRegistry) Clear(cmd string) {
	delete(r.handlers, strings.ToUpper(cmd))
}

// Dispatch invokes the handler registered for ctcp.Command, if any. reply
// is called by handlers that want to send a CTCP reply back to the
// querying user via NOTICE.
func (r *CTCPRegistry) Dispatch(ctcp *CTCPEvent, reply func(cmd, text string)) {
	if h, ok := r.handlers[ctcp.Command]; ok {
		h(reply, ctcp)
		return
	}
	if ctcp.Source != nil && !ctcp.Reply {
		reply(CTCPErrMsg, "that is an unknown CTCP query")
	}
}

func handleCTCPPing(reply func(cmd, text string), ctcp *CTCPEvent) {
	if ctcp.Reply {
		return
	}
	reply(CTCPPing, ctcp.Text)
}

func handleCTCPVersion(reply func(cmd, text string), ctcp *CTCPEvent) {
	if ctcp.Reply {
		return
	}
	reply(CTCPVersion, "corvus (github.com/corvus-irc/corvus)")
}

func handleCTCPSource(reply func(cmd, text string), ctcp *CTCPEvent) {
	if ctcp.Reply {
		return
	}
	reply(CTCPSource, "https://github.com/corvus-irc/corvus")
}

func handleCTCPTime(reply func(cmd, text string), ctcp *CTCPEvent) {
	if ctcp.Reply {
		return
	}
	reply(CTCPTime, time.Now().Format(time.RFC1123Z))
}
