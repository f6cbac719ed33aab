// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Transport is the minimal network surface the connection loop needs,
// grounded on girc's Dialer interface (conn.go) but narrowed to what this
// package actually drives directly.
type Transport interface {
	Dial(ctx context.Context, network, addr string) (net.Conn, error)
}

type netTransport struct{ tlsConfig *tls.Config }

func (t *netTransport) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 10 * time.Second}
	if t.tlsConfig != nil {
		return tls.DialWithDialer(d, network, addr, t.tlsConfig)
	}
	return d.DialContext(ctx, network, addr)
}

// ConnectionConfig holds the §4.6 connection-loop tunables.
type ConnectionConfig struct {
	Address   string
	TLS       bool
	TLSConfig *tls.Config

	// Pass is the server connection password (PASS, sent before CAP LS);
	// empty means the server requires none.
	Pass string
	// SASLUser/SASLPass are the SASL PLAIN credentials (§6: "Must support
	// SASL PLAIN during registration"). SASL is only attempted when
	// SASLUser is non-empty.
	SASLUser string
	SASLPass string

	// PingInterval is how often the loop sends its own PING when idle
	// (§3.6: default 5 minutes).
	PingInterval time.Duration
	// MaxMissedPongs is how many consecutive un-ponged pings trigger a
	// disconnect (§3.6: default 3).
	MaxMissedPongs int

	// ReconnectBase/ReconnectCap bound the jittered exponential backoff
	// between reconnect attempts (§7 item 2: base 5s, cap 5min).
	ReconnectBase time.Duration
	ReconnectCap  time.Duration

	// OutboundRateLimit/OutboundBurst configure the token bucket guarding
	// writes (replacing girc's hand-rolled ircConn.rate with
	// golang.org/x/time/rate).
	OutboundRateLimit rate.Limit
	OutboundBurst     int

	// ReadyBudget bounds how many ready-queue fibers DrainReady resumes
	// per tick (§4.6 step 1).
	ReadyBudget int
}

// DefaultConnectionConfig returns the §3.6 defaults.
func DefaultConnectionConfig(address string) ConnectionConfig {
	return ConnectionConfig{
		Address:           address,
		PingInterval:      5 * time.Minute,
		MaxMissedPongs:    3,
		ReconnectBase:     5 * time.Second,
		ReconnectCap:      5 * time.Minute,
		OutboundRateLimit: rate.Every(time.Second),
		OutboundBurst:     4,
		ReadyBudget:       64,
	}
}

// Connection drives one IRC session: framing, the fiber scheduler's
// ready/timer ticks, keepalive, and reconnect-with-backoff (§4.6).
type Connection struct {
	cfg       ConnectionConfig
	transport Transport
	state     *State
	sched     *Scheduler
	dispatch  *Dispatcher
	post      *Postprocessor

	conn    net.Conn
	rw      *bufio.ReadWriter
	limiter *rate.Limiter

	lastPing    time.Time
	lastPong    time.Time
	missedPongs int
	tries       int
	saslStarted bool

	outbox chan *Event
}

// NewConnection wires a Connection over an already-constructed
// state/scheduler/dispatcher/postprocessor (§4.2, §4.4, §4.5 all meeting
// here, the one place they are assembled end to end).
func NewConnection(cfg ConnectionConfig, state *State, sched *Scheduler, dispatch *Dispatcher, post *Postprocessor) *Connection {
	return &Connection{
		cfg:       cfg,
		transport: &netTransport{tlsConfig: cfg.TLSConfig},
		state:     state,
		sched:     sched,
		dispatch:  dispatch,
		post:      post,
		limiter:   rate.NewLimiter(cfg.OutboundRateLimit, cfg.OutboundBurst),
		outbox:    make(chan *Event, 64),
	}
}

// Run connects and drives the connection loop until ctx is cancelled,
// reconnecting with jittered exponential backoff on transport errors
// (§7 item 2).
func (c *Connection) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.runOnce(ctx)
		if err == nil || ctx.Err() != nil {
			return err
		}

		var fatal *FatalTransportError
		if errors.As(err, &fatal) {
			return err
		}

		delay := c.backoff()
		c.state.Log.Warn("connection dropped, reconnecting", "error", err, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backoff computes the next jittered exponential delay (§7 item 2: base
// 5s, cap 5min), grounded on girc's fixed ReconnectDelay (main.go) but
// generalised to exponential-with-jitter per the expanded spec.
func (c *Connection) backoff() time.Duration {
	c.tries++
	d := c.cfg.ReconnectBase * time.Duration(1<<uint(min(c.tries-1, 16)))
	if d > c.cfg.ReconnectCap || d <= 0 {
		d = c.cfg.ReconnectCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d/2 + jitter
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// runOnce dials, registers, and drives a single connection's lifetime.
func (c *Connection) runOnce(ctx context.Context) error {
	conn, err := c.transport.Dial(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return &TransientTransportError{Err: err}
	}
	c.conn = conn
	c.rw = bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	c.tries = 0
	c.lastPing = time.Now()
	c.lastPong = time.Now()
	c.missedPongs = 0
	c.saslStarted = false

	defer conn.Close()

	lines := make(chan string, 1)
	readErrs := make(chan error, 1)
	go c.readLines(lines, readErrs)

	if err := c.register(); err != nil {
		return &TransientTransportError{Err: err}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case line := <-lines:
			e := ParseEvent(line)
			if e == nil {
				continue
			}
			c.post.Process(e)
			if e.Type == Ping {
				c.enqueue(NewMessage("PONG", e.Trailing))
				continue
			}
			if e.Command == "PONG" {
				c.lastPong = time.Now()
				c.missedPongs = 0
			}
			c.advanceCAPNegotiation(e)
			c.dispatch.Dispatch(e)

		case err := <-readErrs:
			return &TransientTransportError{Err: err}

		case out := <-c.outbox:
			if werr := c.writeEvent(out); werr != nil {
				return &TransientTransportError{Err: werr}
			}

		case now := <-ticker.C:
			c.sched.RunDueTimers(now)
			c.sched.DrainReady(c.cfg.ReadyBudget)
			if err := c.tickKeepalive(now); err != nil {
				return err
			}
		}
	}
}

// register sends the connection's initial PASS/CAP LS/NICK/USER sequence
// (§4.6, §6), the same eager send-before-reading-replies ordering girc's
// Client.Connect uses (conn.go): server password first, then CAP LS, then
// NICK/USER. CAP REQ/END and the SASL AUTHENTICATE handshake can't be sent
// here since they depend on what the server's CAP LS reply actually
// offers — those are driven by advanceCAPNegotiation as the replies
// arrive in runOnce's read loop.
func (c *Connection) register() error {
	if c.cfg.Pass != "" {
		if err := c.writeEvent(&Event{Command: "PASS", Params: []string{c.cfg.Pass}, Sensitive: true}); err != nil {
			return err
		}
	}

	c.post.WantCaps(c.wantedCaps())
	if err := c.writeEvent(NewMessage("CAP", "LS", "302")); err != nil {
		return err
	}

	if err := c.writeEvent(NewMessage("NICK", c.state.Settings.Nickname)); err != nil {
		return err
	}

	realname := c.state.Settings.Realname
	if realname == "" {
		realname = c.state.Settings.Ident
	}
	return c.writeEvent(NewMessage("USER", c.state.Settings.Ident, "*", "*", realname))
}

// wantedCaps is the capability set register asks the server about via CAP
// LS, matching it against whatever the server actually lists (§6). sasl is
// only requested when SASL credentials are configured.
func (c *Connection) wantedCaps() []string {
	caps := []string{"multi-prefix", "account-notify", "extended-join", "server-time"}
	if c.cfg.SASLUser != "" {
		caps = append(caps, "sasl")
	}
	return caps
}

// advanceCAPNegotiation reacts to CAP/SASL replies as they arrive, sending
// CAP REQ once CAP LS comes back, driving the SASL PLAIN AUTHENTICATE
// exchange if sasl was ACKed, and finally CAP END — grounded on girc's
// event-driven handleCAP (cap.go), which sends CAP REQ off the LS reply
// and CAP END once negotiation settles rather than all up front.
func (c *Connection) advanceCAPNegotiation(e *Event) {
	if e.Command == "AUTHENTICATE" && (e.Trailing == "+" || (len(e.Params) > 0 && e.Params[0] == "+")) {
		payload := "\x00" + c.cfg.SASLUser + "\x00" + c.cfg.SASLPass
		c.enqueue(&Event{Command: "AUTHENTICATE", Params: []string{base64.StdEncoding.EncodeToString([]byte(payload))}, Sensitive: true})
		return
	}

	switch e.Type {
	case CapList:
		if caps := c.post.CapsToRequest(); len(caps) > 0 {
			c.enqueue(&Event{Command: "CAP", Params: []string{"REQ"}, Trailing: strings.Join(caps, " ")})
		} else {
			c.enqueue(NewMessage("CAP", "END"))
		}
	case CapNak:
		c.enqueue(NewMessage("CAP", "END"))
	case CapAck:
		if c.cfg.SASLUser != "" && c.post.CapsEnabled("sasl") && !c.saslStarted {
			c.saslStarted = true
			c.enqueue(NewMessage("AUTHENTICATE", "PLAIN"))
			return
		}
		c.enqueue(NewMessage("CAP", "END"))
	case SASLSuccess, SASLFail:
		c.enqueue(NewMessage("CAP", "END"))
	}
}

// readLines is the single reader goroutine; framing is delimited by '\n'
// per §4.1, same as girc's ircConn.decode.
func (c *Connection) readLines(lines chan<- string, errs chan<- error) {
	for {
		line, err := c.rw.ReadString('\n')
		if line != "" {
			lines <- line
		}
		if err != nil {
			errs <- err
			return
		}
	}
}

// tickKeepalive sends a self-generated PING when idle past PingInterval
// and declares the connection dead after MaxMissedPongs (§3.6).
func (c *Connection) tickKeepalive(now time.Time) error {
	if c.cfg.PingInterval <= 0 {
		return nil
	}
	if now.Sub(c.lastPing) < c.cfg.PingInterval {
		return nil
	}

	if now.Sub(c.lastPong) > c.cfg.PingInterval {
		c.missedPongs++
		if c.missedPongs >= c.cfg.MaxMissedPongs {
			return &TransientTransportError{Err: fmt.Errorf("missed %d consecutive PONGs", c.missedPongs)}
		}
	}

	c.lastPing = now
	c.enqueue(NewMessage("PING", strconv.FormatInt(now.UnixNano(), 10)))
	return nil
}

// enqueue schedules e for transmission, split if it exceeds the wire
// length limit, same splitting discipline as girc's Client.Send/splitEvent
// (split.go) but limited to PRIVMSG/NOTICE trailing-text wrapping, which
// is the only case the expanded spec requires.
func (c *Connection) enqueue(e *Event) {
	for _, part := range splitOutbound(e, maxLength) {
		select {
		case c.outbox <- part:
		default:
			c.state.Log.Warn("outbox full, dropping event", "command", e.Command)
		}
	}
}

// splitOutbound wraps an outbound PRIVMSG/NOTICE's trailing text across
// multiple events if it would exceed maxLen once framed, breaking on the
// last whitespace boundary before the limit (grounded on girc's
// splitPRIVMSG, split.go).
func splitOutbound(e *Event, maxLen int) []*Event {
	if e.Command != "PRIVMSG" && e.Command != "NOTICE" {
		return []*Event{e}
	}

	base := &Event{Command: e.Command, Params: e.Params}
	headroom := maxLen - base.Len() - len(" :")
	if headroom <= 0 || len(e.Trailing) <= headroom {
		return []*Event{e}
	}

	var out []*Event
	text := e.Trailing
	for len(text) > headroom {
		cut := lastSpaceWithin(text, headroom)
		out = append(out, &Event{Command: e.Command, Params: e.Params, Trailing: text[:cut]})
		text = text[cut:]
		for len(text) > 0 && text[0] == ' ' {
			text = text[1:]
		}
	}
	out = append(out, &Event{Command: e.Command, Params: e.Params, Trailing: text})
	return out
}

func lastSpaceWithin(s string, limit int) int {
	if limit >= len(s) {
		return len(s)
	}
	for i := limit; i > 0; i-- {
		if s[i] == ' ' {
			return i
		}
	}
	return limit
}

// writeEvent rate-limits (golang.org/x/time/rate, replacing girc's
// hand-rolled ircConn.rate token bucket) and flushes one event.
func (c *Connection) writeEvent(e *Event) error {
	if err := c.limiter.Wait(context.Background()); err != nil {
		return err
	}
	if _, err := c.rw.Write(e.Bytes()); err != nil {
		return err
	}
	if _, err := c.rw.Write(endline); err != nil {
		return err
	}
	return c.rw.Flush()
}

var endline = []byte("\r\n")

// NewMessage builds an outbound Event from a command and params, the last
// of which becomes Trailing if it is empty, starts with ':' or contains a
// space (mirrors girc's NewMessage-style constructors in commands.go).
func NewMessage(command string, params ...string) *Event {
	e := &Event{Command: command}
	if len(params) == 0 {
		return e
	}
	last := params[len(params)-1]
	if last == "" || last[0] == ':' || strings.ContainsRune(last, ' ') {
		e.Params = params[:len(params)-1]
		e.Trailing = last
		return e
	}
	e.Params = params
	return e
}
