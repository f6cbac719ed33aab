// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

// EventType is a closed enumeration of IRC semantic categories (§3). It
// replaces girc's bare Command strings with a type the dispatcher and
// plugin handler-entry sets can match on directly, and the numeric-reply
// range is folded in rather than left as raw three-digit strings.
type EventType int

const (
	// Unset is produced for a verb or numeric the codec does not
	// recognise; Event.Errors and Event.Raw are always populated.
	Unset EventType = iota

	ChannelMessage // PRIVMSG to a channel
	PrivateMessage // PRIVMSG to a nickname
	Notice
	Join
	Part
	Quit
	NickChange
	SelfNick // NICK where Source is our own client
	Mode
	Topic
	Kick
	Invite
	CTCP
	CTCPReply
	Action // PRIVMSG ACTION (/me)

	// Registration / capability negotiation.
	CapList
	CapAck
	CapNak
	CapNew
	CapDel
	SASLAuthenticate
	SASLSuccess
	SASLFail

	// Numeric replies: every RPL_*/ERR_* numeric maps into this single
	// type; Event.Num carries the three-digit code so handlers can still
	// discriminate within it, and the numerics table additionally assigns
	// a handful of high-traffic numerics their own EventType below.
	Numeric

	Welcome // RPL_WELCOME (001)
	ISupport
	Topic332 // RPL_TOPIC
	NamReply
	WhoReply
	MOTD

	// Twitch-specific pseudo-events, tag-driven rather than verb-driven
	// (§6): Twitch's own JOIN/PART are unreliable and it never sends
	// NICK/QUIT, so these arrive via USERNOTICE/CLEARCHAT tags instead.
	TwitchSub
	TwitchGiftSub
	TwitchGiftChain
	TwitchGiftReceived
	TwitchSubGift
	TwitchAnnouncement
	TwitchRaid
	TwitchClearChat
	TwitchClearMsg
	TwitchBan
	TwitchTimeout

	Ping
	Pong
	Error

	// eventTypeCount is a sentinel for table sizing, not a real type.
	eventTypeCount
)

var eventTypeNames = [eventTypeCount]string{
	Unset:              "unset",
	ChannelMessage:     "channel-message",
	PrivateMessage:     "private-message",
	Notice:             "notice",
	Join:               "join",
	Part:               "part",
	Quit:               "quit",
	NickChange:         "nick-change",
	SelfNick:           "self-nick",
	Mode:               "mode",
	Topic:              "topic",
	Kick:               "kick",
	Invite:             "invite",
	CTCP:               "ctcp",
	CTCPReply:          "ctcp-reply",
	Action:             "action",
	CapList:            "cap-list",
	CapAck:             "cap-ack",
	CapNak:             "cap-nak",
	CapNew:             "cap-new",
	CapDel:             "cap-del",
	SASLAuthenticate:   "sasl-authenticate",
	SASLSuccess:        "sasl-success",
	SASLFail:           "sasl-fail",
	Numeric:            "numeric",
	Welcome:            "welcome",
	ISupport:           "isupport",
	Topic332:           "topic-reply",
	NamReply:           "nam-reply",
	WhoReply:           "who-reply",
	MOTD:               "motd",
	TwitchSub:          "twitch-sub",
	TwitchGiftSub:      "twitch-gift-sub",
	TwitchGiftChain:    "twitch-gift-chain",
	TwitchGiftReceived: "twitch-gift-received",
	TwitchSubGift:      "twitch-sub-gift",
	TwitchAnnouncement: "twitch-announcement",
	TwitchRaid:         "twitch-raid",
	TwitchClearChat:    "twitch-clear-chat",
	TwitchClearMsg:     "twitch-clear-msg",
	TwitchBan:          "twitch-ban",
	TwitchTimeout:      "twitch-timeout",
	Ping:               "ping",
	Pong:               "pong",
	Error:              "error",
}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventTypeNames) {
		return "unknown"
	}
	if s := eventTypeNames[t]; s != "" {
		return s
	}
	return "unknown"
}

// Any is the wildcard handler-entry type set member (§4.4: "h.types ≠
// {ANY}"). A handler entry subscribed to Any receives every event type.
const Any EventType = -1
