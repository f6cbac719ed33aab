// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map"
)

// staleSweepAfter is how long a user may sit at zero channel memberships
// before the sweep removes it outright (§3.3).
const staleSweepAfter = 10 * time.Minute

// registryUser is the registry's internal bookkeeping around a User: the
// public value plus tracking fields no handler needs to see.
type registryUser struct {
	user       *User
	channels   map[string]bool // case-mapped channel name -> member
	stale      bool
	staleSince time.Time
}

// Registry is the single owner of live User and Channel state (§3.3, §4.3).
// It is built on concurrent-map the way girc's state type is, even though
// the scheduler guarantees single-threaded access during a tick — the
// concurrent map buys safe iteration-while-mutating and a ready-made Clear,
// not cross-goroutine safety per se.
type Registry struct {
	mu sync.RWMutex

	profile *Profile

	users    cmap.ConcurrentMap // case-mapped nick -> *registryUser
	channels cmap.ConcurrentMap // case-mapped name -> *Channel

	selfNick string

	onEvent func(*Event) // postprocessor hook invoked for synthetic events (NICK, etc)
}

// NewRegistry returns an empty registry under the given starting profile.
func NewRegistry(prof *Profile) *Registry {
	return &Registry{
		profile:  prof,
		users:    cmap.New(),
		channels: cmap.New(),
	}
}

// Profile returns the registry's current server profile.
func (r *Registry) Profile() *Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profile
}

// SetProfile atomically swaps in a new profile, e.g. after RPL_ISUPPORT
// recomputation (§3.2: "build the new profile, then swap a single pointer").
func (r *Registry) SetProfile(prof *Profile) {
	r.mu.Lock()
	r.profile = prof
	r.mu.Unlock()
}

func (r *Registry) fold(s string) string {
	return r.Profile().CaseMap().Fold(s)
}

// SetSelfNick records the bot's own current nickname, case-mapping aware.
func (r *Registry) SetSelfNick(nick string) {
	r.mu.Lock()
	r.selfNick = nick
	r.mu.Unlock()
}

// SelfNick returns the bot's own current nickname.
func (r *Registry) SelfNick() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selfNick
}

// upsertUser creates src's User if unknown, or refreshes its identity
// fields (ident/host may change on rejoin) if already known. Returns the
// live *User; callers must not retain it past the tick without Clone.
func (r *Registry) upsertUser(src *Source) *User {
	key := r.fold(src.Name)

	if v, ok := r.users.Get(key); ok {
		ru := v.(*registryUser)
		ru.user.Ident = src.Ident
		ru.user.Host = src.Host
		ru.stale = false
		return ru.user
	}

	u := src.newUser()
	r.users.Set(key, &registryUser{user: u, channels: make(map[string]bool)})
	return u
}

// lookupUser returns the live *User for nick, or nil.
func (r *Registry) lookupUser(nick string) *User {
	v, ok := r.users.Get(r.fold(nick))
	if !ok {
		return nil
	}
	return v.(*registryUser).user
}

// forgetUser marks nick stale (if it drops to zero channels) or, if
// channel is "", unconditionally marks it stale everywhere (a QUIT) — it
// is never deleted outright here; sweepStale does that once the grace
// period in §3.3 has elapsed, matching girc's deleteUser/Stale behavior.
func (r *Registry) forgetUser(channel, nick string) {
	key := r.fold(nick)
	v, ok := r.users.Get(key)
	if !ok {
		return
	}
	ru := v.(*registryUser)

	if channel == "" {
		ru.channels = make(map[string]bool)
	} else {
		delete(ru.channels, r.fold(channel))
		if ch := r.lookupChannel(channel); ch != nil {
			delete(ch.Members, ru.user.Nick)
		}
	}

	if len(ru.channels) == 0 && !ru.stale {
		ru.stale = true
		ru.staleSince = time.Now()
	}
}

// renameUser moves the registry entry for from to to and fires a
// synthetic NICK event before returning, per the §3.3/§8 quantified
// invariant: no lookup after renameUser returns may see the old nickname,
// and any plugin NICK handler observes the rename before any other code
// resumes.
func (r *Registry) renameUser(from, to string) {
	oldKey := r.fold(from)
	newKey := r.fold(to)

	v, ok := r.users.Pop(oldKey)
	if !ok {
		return
	}
	ru := v.(*registryUser)
	oldNick := ru.user.Nick
	ru.user.Nick = to
	r.users.Set(newKey, ru)

	if r.fold(r.SelfNick()) == oldKey {
		r.SetSelfNick(to)
	}

	for ch := range ru.channels {
		v, ok := r.channels.Get(ch)
		if !ok {
			continue
		}
		chn := v.(*Channel)
		if mm, ok := chn.Members[oldNick]; ok {
			delete(chn.Members, oldNick)
			chn.Members[to] = mm
		}
	}

	if r.onEvent != nil {
		r.onEvent(&Event{Type: NickChange, Command: "NICK", Source: &Source{Name: oldNick}, Params: []string{to}})
	}
}

// enterChannel creates name if unknown, and records nick as a member with
// the given mode flags.
func (r *Registry) enterChannel(name, nick, flags string) *Channel {
	key := r.fold(name)

	var chn *Channel
	if v, ok := r.channels.Get(key); ok {
		chn = v.(*Channel)
	} else {
		chn = newChannel(name)
		r.channels.Set(key, chn)
	}
	chn.Members[nick] = MemberModes{Flags: flags}

	if v, ok := r.users.Get(r.fold(nick)); ok {
		v.(*registryUser).channels[key] = true
		v.(*registryUser).stale = false
	}

	return chn
}

// leaveChannel removes nick from name's membership; if nick is the bot's
// own current nickname, the whole channel is forgotten (matches girc's
// deleteChannel-on-self-part behavior).
func (r *Registry) leaveChannel(name, nick string) {
	key := r.fold(name)

	if r.fold(nick) == r.fold(r.SelfNick()) {
		if v, ok := r.channels.Pop(key); ok {
			chn := v.(*Channel)
			for member := range chn.Members {
				r.forgetUser(name, member)
			}
		}
		return
	}

	r.forgetUser(name, nick)
}

// lookupChannel returns the live *Channel for name, or nil.
func (r *Registry) lookupChannel(name string) *Channel {
	v, ok := r.channels.Get(r.fold(name))
	if !ok {
		return nil
	}
	return v.(*Channel)
}

// setTopic records name's topic, creating the channel entry if unknown.
func (r *Registry) setTopic(name, topic string) {
	key := r.fold(name)
	v, ok := r.channels.Get(key)
	var chn *Channel
	if ok {
		chn = v.(*Channel)
	} else {
		chn = newChannel(name)
		r.channels.Set(key, chn)
	}
	chn.Topic = topic
}

// setMode applies parsed channel mode changes to name, and updates any
// affected member's prefix flags.
func (r *Registry) setMode(name string, modes []CMode) {
	chn := r.lookupChannel(name)
	if chn == nil {
		return
	}
	chn.Modes.apply(modes)

	modeLetters, prefixes := r.Profile().PrefixModes()
	for _, m := range modes {
		if m.setting || m.args == "" {
			continue
		}
		mm := chn.Members[m.args]
		flags := mm.Flags
		has := false
		for i := 0; i < len(flags); i++ {
			if flags[i] == prefixCharFor(modeLetters, prefixes, m.name) {
				has = true
				break
			}
		}
		want := m.add
		if want && !has {
			flags += string(prefixCharFor(modeLetters, prefixes, m.name))
		} else if !want && has {
			flags = stripByte(flags, prefixCharFor(modeLetters, prefixes, m.name))
		}
		chn.Members[m.args] = MemberModes{Flags: flags}
	}
}

func prefixCharFor(modeLetters, prefixes string, mode byte) byte {
	for i := 0; i < len(modeLetters) && i < len(prefixes); i++ {
		if modeLetters[i] == mode {
			return prefixes[i]
		}
	}
	return 0
}

func stripByte(s string, b byte) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != b {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// sweepStale removes users that have been stale for longer than
// staleSweepAfter, reclaiming the memory transient-identity tracking would
// otherwise leak (§3.3). Intended to be called periodically off a
// fiber.Scheduler timer, not per-event.
func (r *Registry) sweepStale(now time.Time) {
	var dead []string
	for item := range r.users.IterBuffered() {
		ru := item.Val.(*registryUser)
		if ru.stale && now.Sub(ru.staleSince) > staleSweepAfter {
			dead = append(dead, item.Key)
		}
	}
	for _, key := range dead {
		r.users.Remove(key)
	}
}
