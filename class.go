// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import "github.com/gobwas/glob"

// classRule pairs a compiled hostmask pattern with the class it grants (or
// ClassBlacklist to deny).
type classRule struct {
	pattern glob.Glob
	raw     string
	class   Class
}

// ClassTable assigns a User's Class by matching its hostmask against an
// ordered list of glob patterns (§3: "class (anyone/registered/whitelist/
// operator/staff/blacklist)"), the way gravwell's filters.go compiles and
// evaluates cbac glob rules in order.
//
// Rules are evaluated in the order they were added; the first match wins.
// A User matching no rule keeps ClassAnyone, or ClassRegistered if it has
// a non-empty Account.
type ClassTable struct {
	rules []classRule
}

// NewClassTable returns an empty table.
func NewClassTable() *ClassTable { return &ClassTable{} }

// AddRule compiles pattern (a nick!ident@host glob, e.g. "*!*@trusted.host")
// and appends a rule granting class on match. Returns an error if pattern
// doesn't compile.
func (t *ClassTable) AddRule(pattern string, class Class) error {
	g, err := glob.Compile(pattern, '!', '@')
	if err != nil {
		return err
	}
	t.rules = append(t.rules, classRule{pattern: g, raw: pattern, class: class})
	return nil
}

// Classify returns u's class per the first matching rule, falling back to
// ClassRegistered (u.Account != "") or ClassAnyone.
func (t *ClassTable) Classify(u *User) Class {
	if u == nil {
		return ClassAnyone
	}
	mask := u.Mask()
	for _, r := range t.rules {
		if r.pattern.Match(mask) {
			return r.class
		}
	}
	if u.Account != "" {
		return ClassRegistered
	}
	return ClassAnyone
}

// channelRule pairs a compiled home-channel glob with the raw pattern it
// was compiled from, for §4.4's channel-policy ("home"/"guest") evaluation.
type channelRule struct {
	pattern glob.Glob
	raw     string
}

// ChannelPolicy tracks which channels are configured as home channels
// (full functionality) versus guest channels (everywhere else, §Glossary).
type ChannelPolicy struct {
	homes []channelRule
}

// NewChannelPolicy compiles homes (exact names or globs) into a policy.
func NewChannelPolicy(homes []string, caseMap CaseMapping) (*ChannelPolicy, error) {
	p := &ChannelPolicy{}
	for _, h := range homes {
		g, err := glob.Compile(caseMap.Fold(h))
		if err != nil {
			return nil, err
		}
		p.homes = append(p.homes, channelRule{pattern: g, raw: h})
	}
	return p, nil
}

// IsHome reports whether channel (already case-mapped by the caller, or
// raw — Fold is idempotent) is a configured home channel.
func (p *ChannelPolicy) IsHome(channel string, caseMap CaseMapping) bool {
	folded := caseMap.Fold(channel)
	for _, r := range p.homes {
		if r.pattern.Match(folded) {
			return true
		}
	}
	return false
}
