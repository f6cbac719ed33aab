// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import "log/slog"

// CoreSettings holds the subset of IRCBot/IRCServer config every plugin may
// read (§6): nickname/ident/realname, the command prefix, and the
// configured home/guest channel lists.
type CoreSettings struct {
	Nickname string
	Ident    string
	Realname string
	Prefix   string

	Homes    []string
	Channels []string
}

// State is the shared reference every plugin holds (§3 "Plugin state"):
// server profile, registry, client identity, core settings, home/guest
// channel lists, and the plugin's own resource directory. All plugins see
// the same *State instance — this is the explicit context struct §9 Design
// Notes calls for in place of girc's package-level mutable state
// (c.state, a global *log.Logger, etc).
type State struct {
	Registry *Registry
	Settings CoreSettings
	Policy   *ChannelPolicy
	Classes  *ClassTable
	Bus      *Bus
	Squelch  *Squelch

	// ResourceRoot is the bot-wide resource directory. Dispatcher.Register
	// does not bind resource-tagged settings fields or hand a plugin its
	// own directory before InitResources runs.
	ResourceRoot string

	Log *slog.Logger
}

// Profile returns the current server profile via the registry, the single
// pointer-swap point §3.2 describes.
func (s *State) Profile() *Profile { return s.Registry.Profile() }

// IsHome reports whether channel is one of the bot's configured home
// channels (§Glossary).
func (s *State) IsHome(channel string) bool {
	if s.Policy == nil {
		return false
	}
	return s.Policy.IsHome(channel, s.Profile().CaseMap())
}

// PluginLog returns a logger scoped to one plugin (§1 Ambient Stack: "every
// subsystem gets a *slog.Logger with static fields... not a global
// logger").
func (s *State) PluginLog(plugin string) *slog.Logger {
	return s.Log.With("plugin", plugin)
}
