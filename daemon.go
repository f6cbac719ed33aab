// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import "strconv"

// DaemonTwitch is the quirks-table key for Twitch's IRC-like dialect.
const DaemonTwitch = "twitch"

// quirkFunc applies one daemon's dialect-specific enrichment to an already
// registry-resolved event. Keyed by daemon tag rather than a chain of ifs
// (§3.2: "adding a new dialect... doesn't require touching the generic
// path").
type quirkFunc func(e *Event)

var daemonQuirks = map[string]quirkFunc{
	DaemonTwitch: applyTwitchQuirks,
}

// applyQuirks runs the quirk function registered for daemon, if any.
func applyQuirks(daemon string, e *Event) {
	if fn, ok := daemonQuirks[daemon]; ok {
		fn(e)
	}
}

// applyTwitchQuirks lifts Twitch's tag-driven metadata into Event's
// semantic fields (§4.2: "Twitch's badge/display-name/colour tags") and
// reclassifies tag-driven pseudo-events (§3: "Twitch-specific tags such as
// sub, gift, announcement, clearchat").
func applyTwitchQuirks(e *Event) {
	if dn, ok := e.Tags.Get("display-name"); ok && dn != "" && e.Sender != nil {
		e.Sender.DisplayName = dn
	}
	if badges, ok := e.Tags.Get("badges"); ok && e.Sender != nil {
		e.Sender.Badges = badges
	}
	if colour, ok := e.Tags.Get("color"); ok && e.Sender != nil {
		e.Sender.Colour = colour
	}
	if roomID, ok := e.Tags.Get("room-id"); ok && e.Channel != nil {
		e.Channel.ID = roomID
	}

	if e.Command != "USERNOTICE" && e.Command != "PRIVMSG" && e.Command != "CLEARCHAT" && e.Command != "CLEARMSG" {
		return
	}

	msgID, _ := e.Tags.Get("msg-id")
	switch {
	case e.Command == "CLEARCHAT":
		switch {
		case len(e.Params) < 2 || e.Params[1] == "":
			e.Type = TwitchClearChat
		default:
			if _, dur := e.Tags.Get("ban-duration"); dur {
				e.Type = TwitchTimeout
			} else {
				e.Type = TwitchBan
			}
		}
	case e.Command == "CLEARMSG":
		e.Type = TwitchClearMsg
	case e.Command == "USERNOTICE":
		e.Type = twitchUsernoticeType(msgID)
		if n, ok := e.Tags.Get("msg-param-months"); ok {
			if v, err := strconv.Atoi(n); err == nil {
				e.Count[0] = v
			}
		}
		if n, ok := e.Tags.Get("msg-param-viewerCount"); ok {
			if v, err := strconv.Atoi(n); err == nil {
				e.Count[0] = v
			}
		}
		e.AltContent = e.Trailing
	}
}

func twitchUsernoticeType(msgID string) EventType {
	switch msgID {
	case "sub", "resub":
		return TwitchSub
	case "subgift":
		return TwitchSubGift
	case "submysterygift":
		return TwitchGiftChain
	case "giftpaidupgrade", "anongiftpaidupgrade":
		return TwitchGiftReceived
	case "raid":
		return TwitchRaid
	case "announcement":
		return TwitchAnnouncement
	default:
		return Unset
	}
}

// twitchUnreliableMembership reports whether daemon is one where JOIN/PART
// are unreliable and NICK/QUIT do not occur at all (§4.2), so the
// postprocessor knows not to rely on those events for membership tracking.
func twitchUnreliableMembership(daemon string) bool {
	return daemon == DaemonTwitch
}
