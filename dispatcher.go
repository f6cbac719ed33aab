// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"log/slog"
	"sort"

	"github.com/corvus-irc/corvus/fiber"
)

// Scheduler is the concrete fiber scheduler instantiation corvus drives:
// Topic is an EventType, Payload is the matched *Event.
type Scheduler = fiber.Scheduler[EventType, *Event]

// Ctx is handed to a plugin's fiber body (Setup, handlers that spawn a
// fiber) to expose the suspension points (§4.5).
type Ctx = fiber.Ctx[EventType, *Event]

// NewScheduler returns an empty Scheduler instantiated for corvus's own
// Topic/Payload types.
func NewScheduler() *Scheduler {
	return fiber.New[EventType, *Event]()
}

// maxConsecutiveFailures is the handler-exception threshold past which a
// plugin is disabled for the remainder of the connection (§7 item 5).
const maxConsecutiveFailures = 5

// Dispatcher walks the plugin registry in priority order and fans out
// each event under the policy gates §4.4 describes. It also drives the
// fiber.Scheduler it is given (shared with the connection loop), since
// resuming a fiber on a matched await is part of the same per-event
// fan-out girc's Caller.Traverse plays for plain handlers (handler.go).
type Dispatcher struct {
	state     *State
	scheduler *Scheduler

	plugins []*registeredPlugin
	byName  map[string]*registeredPlugin
}

// NewDispatcher returns an empty dispatcher over state, using the
// caller-supplied fiber scheduler sched. It subscribes itself to TopicReload so that a
// ConfigWatcher (or anything else publishing on the bus) drives the
// plugin Reload hook without the caller wiring that by hand (§9: plugin
// Reload hook).
func NewDispatcher(state *State, sched *Scheduler) *Dispatcher {
	d := &Dispatcher{
		state:     state,
		scheduler: sched,
		byName:    make(map[string]*registeredPlugin),
	}
	// TopicReload is a builtin topic (bus.go); Subscribe only errors for
	// an unregistered topic, so this can never fail.
	_ = state.Bus.Subscribe(TopicReload, d.handleReload)
	return d
}

// handleReload runs Reload on the plugin msg names, or on every enabled
// plugin if msg.Plugin is "" (bus.go: ReloadMessage, "" means every
// plugin should reload).
func (d *Dispatcher) handleReload(msg any) {
	rm, ok := msg.(ReloadMessage)
	if !ok {
		return
	}
	for _, rp := range d.plugins {
		if !rp.enabled {
			continue
		}
		if rm.Plugin != "" && rm.Plugin != rp.plugin.Name() {
			continue
		}
		if err := rp.plugin.Reload(d.state); err != nil {
			d.state.PluginLog(rp.plugin.Name()).Error("reload failed", slog.Any("err", err))
		}
	}
}

// Register attaches p to the dispatcher at the given priority (§4.4:
// "negative values run earlier... the printer plugin registers at
// priority -40"). Ties are broken by registration order. InitResources and
// Setup run synchronously before p is added to the rotation (§4.4); a
// failure from either aborts registration and p is never dispatched to.
func (d *Dispatcher) Register(p Plugin, priority int) error {
	if err := p.InitResources(d.state); err != nil {
		return err
	}
	if err := p.Setup(d.state); err != nil {
		return err
	}

	rp := &registeredPlugin{plugin: p, priority: priority, order: len(d.plugins), enabled: true}
	d.plugins = append(d.plugins, rp)
	d.byName[p.Name()] = rp
	sort.SliceStable(d.plugins, func(i, j int) bool {
		return d.plugins[i].priority < d.plugins[j].priority
	})
	return nil
}

// Disable turns a plugin off and cancels every fiber it owns (§4.5
// cancellation: "when a plugin is disabled... all of its pending awaits
// and delays are removed").
func (d *Dispatcher) Disable(name string) {
	rp, ok := d.byName[name]
	if !ok {
		return
	}
	rp.enabled = false
	d.scheduler.CancelOwner(name)
}

// Enabled reports whether name is currently enabled.
func (d *Dispatcher) Enabled(name string) bool {
	rp, ok := d.byName[name]
	return ok && rp.enabled
}

func typeMatches(types []EventType, t EventType) bool {
	if len(types) == 1 && types[0] == Any {
		return true
	}
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

func (d *Dispatcher) channelPolicyMatches(policy ChanPolicy, e *Event) bool {
	switch policy {
	case ChanHome:
		return e.Channel != nil && d.state.IsHome(e.Channel.Name)
	case ChanGuest:
		return e.Channel != nil && !d.state.IsHome(e.Channel.Name)
	default:
		return true
	}
}

// Dispatch runs the §4.4 algorithm for one event, then delivers it to any
// fiber awaiting e.Type.
func (d *Dispatcher) Dispatch(e *Event) {
	stopAll := false

	for _, rp := range d.plugins {
		if stopAll {
			break
		}
		if !rp.enabled {
			continue
		}

		if e.Type == Welcome && !rp.started {
			rp.started = true
			if err := rp.plugin.Start(d.state); err != nil {
				d.state.PluginLog(rp.plugin.Name()).Error("start failed", slog.Any("err", err))
			}
		}

		stopPlugin := false
		for _, h := range rp.plugin.Handlers() {
			if stopPlugin {
				break
			}
			if !typeMatches(h.Types, e.Type) {
				continue
			}
			if !d.channelPolicyMatches(h.Channel, e) {
				continue
			}
			if e.Sender != nil && e.Sender.Class < h.MinClass {
				continue
			}

			if len(h.Commands) > 0 {
				matched := false
				for _, c := range h.Commands {
					if args, ok := matchesCommand(e.Content, d.state.Settings.Prefix, c.Trigger, d.state.Profile().CaseMap()); ok {
						e.AltContent = args
						matched = true
						break
					}
				}
				if !matched {
					continue
				}
			}

			result := d.invoke(rp, h, e)
			if result == ResultFatal || !h.Chainable {
				stopPlugin = true
			}
			if result != ResultContinue {
				stopAll = true
			}
		}
	}

	d.scheduler.DeliverEvent(e.Type, e)
}

// invoke runs h.Handler, recovering a panic, logging it through
// recordFailure and treating it as ResultFatal (§7 item 5: "logged with
// plugin name and event digest, squelched for that event"), and tracking
// the plugin's consecutive-failure count.
func (d *Dispatcher) invoke(rp *registeredPlugin, h HandlerEntry, e *Event) (result HandlerResult) {
	defer func() {
		if r := recover(); r != nil {
			d.recordFailure(rp, e, r)
			result = ResultFatal
		}
	}()

	result = h.Handler(d.state, e)

	if result == ResultFatal {
		d.recordFailure(rp, e, nil)
	} else {
		rp.failures = 0
	}
	return result
}

func (d *Dispatcher) recordFailure(rp *registeredPlugin, e *Event, panicVal any) {
	rp.failures++

	log := d.state.PluginLog(rp.plugin.Name())
	if panicVal != nil {
		log.Error("handler panic", slog.String("event", e.Command), slog.Any("recover", panicVal))
	} else {
		log.Error("handler returned fatal", slog.String("event", e.Command))
	}

	if rp.failures > maxConsecutiveFailures {
		log.Warn("disabling plugin after repeated handler failures", slog.Int("failures", rp.failures))
		d.Disable(rp.plugin.Name())
	}
}

// ResolveCommands composes the global + channel-specific command map
// across every enabled plugin, the payload a defer<T> request resolves
// to (§4.7: "the only sanctioned way one plugin inspects another plugin's
// command surface").
func (d *Dispatcher) ResolveCommands(channel string) map[string]CommandMeta {
	out := make(map[string]CommandMeta)
	for _, rp := range d.plugins {
		if !rp.enabled {
			continue
		}
		for _, h := range rp.plugin.Handlers() {
			for _, c := range h.Commands {
				out[c.Trigger] = c.Meta
			}
		}
		if channel != "" {
			for trigger, meta := range rp.plugin.ChannelSpecificCommands(channel) {
				out[trigger] = meta
			}
		}
	}
	return out
}

// Teardown runs every enabled plugin's Teardown hook in reverse priority
// order (§7 item 3) and cancels its fibers.
func (d *Dispatcher) Teardown() {
	for i := len(d.plugins) - 1; i >= 0; i-- {
		rp := d.plugins[i]
		if !rp.enabled {
			continue
		}
		if err := rp.plugin.Teardown(d.state); err != nil {
			d.state.PluginLog(rp.plugin.Name()).Error("teardown failed", slog.Any("err", err))
		}
		d.scheduler.CancelOwner(rp.plugin.Name())
	}
}
