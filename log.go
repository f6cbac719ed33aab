// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// redactingHandler redacts the message of a log record when its Sensitive
// attribute is set (e.g. a logged *Event carrying SASL payload bytes,
// §7: "must not be logged verbatim"), replacing girc's single hardcoded
// "***redacted***" string literal (client.go) with a general handler
// wrapper so any subsystem can opt a record out of verbatim logging.
type redactingHandler struct {
	slog.Handler
}

func (h redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	redacted := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "sensitive" && a.Value.Kind() == slog.KindBool && a.Value.Bool() {
			redacted = true
			return false
		}
		return true
	})
	if redacted {
		r = slog.NewRecord(r.Time, r.Level, "***redacted***", r.PC)
	}
	return h.Handler.Handle(ctx, r)
}

func (h redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return redactingHandler{h.Handler.WithAttrs(attrs)}
}

func (h redactingHandler) WithGroup(name string) slog.Handler {
	return redactingHandler{h.Handler.WithGroup(name)}
}

// NewRootLogger builds the root *slog.Logger per the --bright/--headless
// flags (§6): headless discards everything; otherwise a plain text handler
// writes to w, at Debug level when bright is set and Info level when not.
// No colour codes are written in either case.
func NewRootLogger(w io.Writer, bright, headless bool) *slog.Logger {
	if headless {
		return slog.New(redactingHandler{slog.NewTextHandler(io.Discard, nil)})
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if bright {
		opts.Level = slog.LevelDebug
	}
	return slog.New(redactingHandler{slog.NewTextHandler(w, opts)})
}

// LogEvent emits e at debug level, honouring Sensitive (§7), the
// structured-logging replacement for girc's Client.debugLogEvent
// (client.go).
func LogEvent(log *slog.Logger, e *Event, dropped bool) {
	attrs := []any{"command", e.Command, "dropped", dropped, "sensitive", e.Sensitive}
	if e.Sensitive {
		log.Debug("event", attrs...)
		return
	}
	log.Debug("event", append(attrs, "raw", e.Raw)...)
}
