// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"strings"
	"time"
)

// CaseMapping identifies how the server folds nicknames and channel names
// for equality, per ISUPPORT CASEMAPPING (§3.2).
type CaseMapping int

const (
	// CaseMapRFC1459 additionally folds [\]~ to {}|^, the IRC default.
	CaseMapRFC1459 CaseMapping = iota
	// CaseMapASCII folds only A-Z to a-z.
	CaseMapASCII
	// CaseMapStrictRFC1459 is RFC1459 minus the ~/^ pair.
	CaseMapStrictRFC1459
)

func parseCaseMapping(raw string) CaseMapping {
	switch strings.ToLower(raw) {
	case "ascii":
		return CaseMapASCII
	case "strict-rfc1459":
		return CaseMapStrictRFC1459
	default:
		return CaseMapRFC1459
	}
}

// foldByte lowercases one byte according to m.
func (m CaseMapping) foldByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	if m == CaseMapASCII {
		return c
	}
	switch c {
	case '[':
		return '{'
	case ']':
		return '}'
	case '\\':
		return '|'
	case '~':
		if m == CaseMapRFC1459 {
			return '^'
		}
	}
	return c
}

// Fold returns s case-mapped per m, for use as a registry lookup key.
func (m CaseMapping) Fold(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = m.foldByte(s[i])
	}
	return string(out)
}

// Equal reports whether a and b are the same nickname or channel under m.
func (m CaseMapping) Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if m.foldByte(a[i]) != m.foldByte(b[i]) {
			return false
		}
	}
	return true
}

// stsPolicy records an STS-style "upgrade and fall back" directive, the
// way kameloso and girc both track it for the underlying transport. The
// transport itself is out of scope (§1 Non-goals); the profile only keeps
// the bookkeeping so the connection loop (external, per Non-goals) can act
// on it.
type stsPolicy struct {
	upgrade    bool
	expiresAt  time.Time
	persistent bool
}

// Profile holds everything the postprocessor and registry need to know
// about the server's current dialect (§3.2): ISUPPORT values, channel
// prefixes, case-mapping, and the daemon tag driving applyQuirks.
//
// A Profile is not modified once built, except for the STS state that
// RequestSTSUpgrade records in place; RPL_ISUPPORT recomputation builds a
// fresh Profile and swaps the registry's pointer to it, so concurrent
// lookups never observe a half-updated set of ISUPPORT values.
type Profile struct {
	Daemon  string // quirks-table key, e.g. "twitch", "" for generic RFC1459
	Network string

	ISupport map[string]string

	channelPrefixes string // e.g. "#&!+"
	caseMap         CaseMapping
	modes           CModes // CHANMODES + PREFIX, parsed

	// Compiled is the ircd's self-reported build date, from RPL_CREATED's
	// human-formatted trailing text (zero until seen).
	Compiled time.Time

	sts stsPolicy
}

// defaultChannelPrefixes matches girc's validChannelPrefixes, including the
// non-RFC "*" ZNC commonly uses.
const defaultChannelPrefixes = "#&!+*"

// NewProfile returns a Profile with RFC1459 defaults, before any
// RPL_ISUPPORT has been seen.
func NewProfile(daemon, network string) *Profile {
	return &Profile{
		Daemon:          daemon,
		Network:         network,
		ISupport:        make(map[string]string),
		channelPrefixes: defaultChannelPrefixes,
		caseMap:         CaseMapRFC1459,
		modes:           newCModes("", ""),
	}
}

// WithISupport returns a new Profile with the given RPL_ISUPPORT tokens
// ("NAME=VALUE" or bare "NAME") merged in, recomputing channel prefixes,
// case-mapping, and channel-mode classification as needed. The receiver is
// left untouched; callers swap the registry's pointer to the result.
func (p *Profile) WithISupport(tokens []string) *Profile {
	next := &Profile{
		Daemon:          p.Daemon,
		Network:         p.Network,
		ISupport:        make(map[string]string, len(p.ISupport)+len(tokens)),
		channelPrefixes: p.channelPrefixes,
		caseMap:         p.caseMap,
		modes:           p.modes,
		Compiled:        p.Compiled,
		sts:             p.sts,
	}
	for k, v := range p.ISupport {
		next.ISupport[k] = v
	}

	for _, tok := range tokens {
		i := strings.IndexByte(tok, '=')
		if i < 0 {
			next.ISupport[tok] = ""
			continue
		}
		next.ISupport[tok[:i]] = tok[i+1:]
	}

	if v, ok := next.ISupport["NETWORK"]; ok && v != "" {
		next.Network = v
	}
	if v, ok := next.ISupport["CASEMAPPING"]; ok {
		next.caseMap = parseCaseMapping(v)
	}
	if v, ok := next.ISupport["CHANTYPES"]; ok && v != "" {
		next.channelPrefixes = v
	}

	chanModes, hasChanModes := next.ISupport["CHANMODES"]
	prefix, hasPrefix := next.ISupport["PREFIX"]
	if hasChanModes || hasPrefix {
		userPrefixes := ""
		if hasPrefix {
			userPrefixes, _ = parsePrefixes(prefix)
		}
		next.modes = newCModes(chanModes, userPrefixes)
	}

	return next
}

// WithCompiled returns a new Profile with Compiled set to t; the receiver
// is left untouched, matching WithISupport's copy-on-write discipline.
func (p *Profile) WithCompiled(t time.Time) *Profile {
	next := *p
	next.Compiled = t
	return &next
}

// IsChannel reports whether name carries one of the server's current
// channel prefixes, the profile-driven replacement for girc's hardcoded
// IsValidChannel (§3.2).
func (p *Profile) IsChannel(name string) bool {
	if len(name) < 2 {
		return false
	}
	return strings.IndexByte(p.channelPrefixes, name[0]) != -1
}

// CaseMap returns the server's current case-mapping.
func (p *Profile) CaseMap() CaseMapping {
	if p == nil {
		return CaseMapRFC1459
	}
	return p.caseMap
}

// PrefixModes returns the PREFIX-derived (modeLetters, displayPrefixes)
// pair, e.g. ("ov", "@+"), in matching rank order.
func (p *Profile) PrefixModes() (modes, prefixes string) {
	raw, ok := p.ISupport["PREFIX"]
	if !ok {
		return "", ""
	}
	return parsePrefixes(raw)
}

// RequestSTSUpgrade records that the server asked for a transport upgrade
// (or a persistent policy to keep requesting one) expiring at exp.
func (p *Profile) RequestSTSUpgrade(exp time.Time, persistent bool) {
	p.sts = stsPolicy{upgrade: true, expiresAt: exp, persistent: persistent}
}

// STSUpgradePending reports whether an outstanding, unexpired STS upgrade
// directive applies as of now.
func (p *Profile) STSUpgradePending(now time.Time) bool {
	return p.sts.upgrade && now.Before(p.sts.expiresAt)
}
