// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// capState tracks the CAP LS/REQ/ACK/NAK negotiation and SASL progress
// (§6, §3.2), grounded on girc's handleCAP (cap.go) generalised from
// Client-coupled globals into an explicit, reusable piece of Postprocessor
// state.
type capState struct {
	requested []string
	enabled   map[string]bool
	done      bool // CAP END sent
}

func newCapState() *capState {
	return &capState{enabled: make(map[string]bool)}
}

// Postprocessor enriches a freshly parsed Event using the registry and
// applies per-daemon quirks, advances CAP/SASL negotiation, and recomputes
// the server profile on RPL_ISUPPORT (§4.2).
type Postprocessor struct {
	reg  *Registry
	cap  *capState
	pend []string // capabilities we want, filled in by the connection layer
}

// NewPostprocessor returns a postprocessor writing into reg.
func NewPostprocessor(reg *Registry) *Postprocessor {
	return &Postprocessor{reg: reg, cap: newCapState()}
}

// WantCaps sets the capability list the connection wants to REQ once the
// server's CAP LS reply lists it as available.
func (p *Postprocessor) WantCaps(caps []string) { p.pend = caps }

// targetClearAllowList is the set of EventTypes whose target nickname is
// kept even when it equals our own; for every other type, Process clears
// a target nickname equal to our own to "".
var targetClearAllowList = map[EventType]bool{
	Mode:           true,
	PrivateMessage: true, // "QUERY"
	SelfNick:       true,
	Welcome:        true,

	TwitchClearChat:    true,
	TwitchClearMsg:     true,
	TwitchBan:          true,
	TwitchGiftChain:    true,
	TwitchGiftReceived: true,
	TwitchSubGift:      true,
	TwitchTimeout:      true,
	ChannelMessage:     true, // "CHAN"
	Action:             true, // "EMOTE"
}

// Process runs the full postprocessing pipeline on e in place (§4.2).
func (p *Postprocessor) Process(e *Event) {
	e.Time = time.Now()

	prof := p.reg.Profile()

	if e.Source != nil && !e.Source.IsServer() {
		e.Sender = p.reg.upsertUser(e.Source)
		e.Sender.Class = p.classify(e.Sender)
	} else if e.Source != nil {
		e.Sender = e.Source.newUser()
	}

	p.resolveTargetAndChannel(e, prof)
	p.trackMembership(e, prof)
	p.advanceRegistration(e)

	applyQuirks(prof.Daemon, e)

	if ctcp := decodeCTCP(e); ctcp != nil {
		if ctcp.Reply {
			e.Type = CTCPReply
		} else {
			e.Type = CTCP
		}
		e.Content = ctcp.Text
		e.Aux[0] = ctcp.Command
	} else if e.Command == "PRIVMSG" || e.Command == "NOTICE" {
		e.Content = e.Trailing
	}

	if e.Sender != nil && e.Sender.Nick == p.reg.SelfNick() && e.Command == "NICK" {
		e.Type = SelfNick
	}

	if e.Target != nil && e.Target.Nick != "" &&
		prof.CaseMap().Equal(e.Target.Nick, p.reg.SelfNick()) &&
		!targetClearAllowList[e.Type] {
		e.Target.Nick = ""
	}
}

func (p *Postprocessor) classify(u *User) Class {
	// Only "registered" (non-empty Account) and "anyone" are assigned here.
	// The bot's ClassTable (class.go, State.Classes) is not consulted, so
	// no sender is given a whitelist/operator/staff/blacklist class.
	if u.Account != "" {
		return ClassRegistered
	}
	return ClassAnyone
}

// resolveTargetAndChannel fills Channel/Target from Params[0] depending on
// whether it names a channel (per the current profile) or a nickname.
func (p *Postprocessor) resolveTargetAndChannel(e *Event, prof *Profile) {
	if len(e.Params) == 0 {
		return
	}
	target := e.Params[0]

	if prof.IsChannel(target) {
		e.Channel = p.reg.lookupChannel(target)
		if e.Channel == nil {
			e.Channel = newChannel(target)
		}
		if e.Command == "PRIVMSG" {
			e.Type = ChannelMessage
		}
		return
	}

	if e.Command == "PRIVMSG" {
		e.Type = PrivateMessage
	}
	e.Target = p.reg.lookupUser(target)
	if e.Target == nil {
		e.Target = &User{Nick: target}
	}
}

// trackMembership updates the registry for events that move users between
// channels, skipped for daemons where JOIN/PART/NICK/QUIT are unreliable
// or never sent (§4.2: Twitch).
func (p *Postprocessor) trackMembership(e *Event, prof *Profile) {
	if twitchUnreliableMembership(prof.Daemon) {
		return
	}

	switch e.Command {
	case "JOIN":
		if e.Source == nil || len(e.Params) == 0 {
			return
		}
		p.reg.upsertUser(e.Source)
		e.Channel = p.reg.enterChannel(e.Params[0], e.Source.Name, "")
	case "PART":
		if e.Source == nil || len(e.Params) == 0 {
			return
		}
		e.Channel = p.reg.lookupChannel(e.Params[0])
		p.reg.leaveChannel(e.Params[0], e.Source.Name)
	case "KICK":
		if len(e.Params) < 2 {
			return
		}
		e.Channel = p.reg.lookupChannel(e.Params[0])
		p.reg.leaveChannel(e.Params[0], e.Params[1])
	case "QUIT":
		if e.Source == nil {
			return
		}
		p.reg.forgetUser("", e.Source.Name)
	case "NICK":
		if e.Source == nil || len(e.Params) == 0 {
			return
		}
		p.reg.renameUser(e.Source.Name, e.Params[0])
	case "TOPIC":
		if len(e.Params) == 0 {
			return
		}
		p.reg.setTopic(e.Params[0], e.Trailing)
		e.Channel = p.reg.lookupChannel(e.Params[0])
	case "MODE":
		if len(e.Params) < 1 || !prof.IsChannel(e.Params[0]) {
			return
		}
		modes := prof.modes.parse(e.Params[1], e.Params[2:])
		p.reg.setMode(e.Params[0], modes)
		e.Channel = p.reg.lookupChannel(e.Params[0])
	}
}

// advanceRegistration drives RPL_ISUPPORT profile recomputation and the
// CAP/SASL state machine (§4.2, §6).
func (p *Postprocessor) advanceRegistration(e *Event) {
	switch {
	case e.Num == 1: // RPL_WELCOME
		if len(e.Params) > 0 {
			p.reg.SetSelfNick(e.Params[0])
		}
	case e.Num == numCreated:
		if t, ok := parseCreatedTimestamp(e.Trailing); ok {
			p.reg.SetProfile(p.reg.Profile().WithCompiled(t))
		}
	case e.Type == ISupport:
		if !strings.HasSuffix(e.Trailing, "this server") || len(e.Params) < 2 {
			return
		}
		p.reg.SetProfile(p.reg.Profile().WithISupport(e.Params[1:]))
	case e.Command == "CAP":
		p.advanceCAP(e)
	case e.Command == "AUTHENTICATE":
		// SASL PLAIN payload exchange; the actual credential bytes are
		// supplied by the connection layer, never logged (Event.Sensitive).
		e.Sensitive = true
	}
}

// weekdayAbbrevs are the day-of-week tokens RPL_CREATED's trailing text
// conventionally leads its timestamp phrase with, e.g. "This server was
// created Thu, 4 Jun 2026 at 10:30:00 UTC" — grounded directly on girc's
// handleCREATED (builtin.go), which scans for the same markers before
// handing the remainder to dateparse.
var weekdayAbbrevs = []string{"Mon,", "Tue,", "Wed,", "Thu,", "Fri,", "Sat,", "Sun,"}

// parseCreatedTimestamp extracts and parses the free-form date phrase out
// of an RPL_CREATED trailing string, tolerating whatever human-readable
// format the ircd emits it in (§6: "parsing human-entered/legacy
// timestamps found in persisted resources and log directories").
func parseCreatedTimestamp(trailing string) (time.Time, bool) {
	words := strings.Fields(trailing)
	found := -1
	for i, word := range words {
		for _, abbrev := range weekdayAbbrevs {
			if word == abbrev {
				found = i
				break
			}
		}
		if found != -1 {
			break
		}
	}
	if found == -1 {
		return time.Time{}, false
	}

	t, err := dateparse.ParseAny(strings.Join(words[found:], " "))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (p *Postprocessor) advanceCAP(e *Event) {
	if len(e.Params) < 2 {
		return
	}
	switch e.Params[1] {
	case "LS":
		e.Type = CapList
		for _, token := range strings.Fields(e.Trailing) {
			name := token
			if i := strings.IndexByte(token, '='); i >= 0 {
				name = token[:i]
			}
			for _, want := range p.pend {
				if want == name {
					p.cap.requested = append(p.cap.requested, name)
				}
			}
		}
	case "ACK":
		e.Type = CapAck
		for _, c := range strings.Fields(e.Trailing) {
			p.cap.enabled[c] = true
		}
	case "NAK":
		e.Type = CapNak
	case "NEW":
		e.Type = CapNew
	case "DEL":
		e.Type = CapDel
		for _, c := range strings.Fields(e.Trailing) {
			delete(p.cap.enabled, c)
		}
	}
}

// CapsEnabled reports whether cap was ACKed by the server.
func (p *Postprocessor) CapsEnabled(cap string) bool { return p.cap.enabled[cap] }

// CapsToRequest drains and returns the capabilities discovered via CAP LS
// that match WantCaps, for the connection layer to CAP REQ.
func (p *Postprocessor) CapsToRequest() []string {
	out := p.cap.requested
	p.cap.requested = nil
	return out
}
