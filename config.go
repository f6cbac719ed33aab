// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gravwell/gcfg"
	"github.com/jessevdk/go-flags"
)

// maxConfigSize bounds how large a config file LoadConfigFile will accept,
// the same guard gravwell's config/loader.go applies before handing bytes
// to gcfg.
const maxConfigSize int64 = 1 << 20

var errConfigTooLarge = errors.New("config file is too large")

// Flags are the CLI options §6 names as a minimum. Parsed with go-flags,
// already an indirect girc dependency.
type Flags struct {
	WriteConfig bool   `long:"writeconfig" description:"write current settings to the config file and exit"`
	ConfigFile  string `long:"configfile" description:"path to the INI-style config file" default:"corvus.conf"`
	Homes       string `long:"homes" description:"comma-separated list of home channels"`
	Channels    string `long:"channels" description:"comma-separated list of guest channels"`
	Bright      bool   `long:"bright" description:"adapt colours to a bright terminal"`
	Headless    bool   `long:"headless" description:"suppress all terminal output"`
}

// ParseFlags parses argv (excluding argv[0]) into a Flags value.
func ParseFlags(argv []string) (*Flags, error) {
	var f Flags
	if _, err := flags.ParseArgs(&f, argv); err != nil {
		return nil, err
	}
	return &f, nil
}

// IRCBotSection is the `[IRCBot]` config section (§6). Pass is the server
// connection password (PASS); SASLUser/AuthPassword are the SASL PLAIN
// credentials used during registration's CAP negotiation (§4.6, §6:
// "Must support SASL PLAIN during registration").
type IRCBotSection struct {
	Nickname       string
	Ident          string
	Realname       string
	Pass           string
	SASLUser       string
	AuthPassword   string
	Homes          []string
	Channels       []string
}

// IRCServerSection is the `[IRCServer]` config section (§6).
type IRCServerSection struct {
	Address string
	Port    int
	TLS     bool
}

// CoreSection is the `[Core]` config section (§6): bot-wide, non-plugin,
// non-connection settings.
type CoreSection struct {
	Prefix       string
	ResourceDir  string
	LogDir       string
}

// Config is the full parsed configuration, one struct field per §6
// section, with one map entry per plugin section (`[plugin "name"]`), the
// shape gcfg.ReadStringInto expects for unknown/dynamic subsections.
type Config struct {
	Core      CoreSection
	IRCBot    IRCBotSection
	IRCServer IRCServerSection
	Plugin    map[string]*gcfg.VariableConfig `gcfg:"plugin"`

	// rawLines preserves the original file verbatim (including comments)
	// so --writeconfig can splice updated values back in without
	// clobbering user annotations (§6: "Rewriting preserves user
	// comments") — gcfg itself has no marshal-with-comments support, so
	// this is hand-rolled line-editing (justified stdlib part, DESIGN.md).
	rawLines []string
}

// LoadConfigFile reads and parses path the way gravwell's
// config.LoadConfigFile does: size-capped read, then delegate to gcfg.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() > maxConfigSize {
		return nil, errConfigTooLarge
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, f); err != nil {
		return nil, err
	}

	return LoadConfigBytes(buf.Bytes())
}

// LoadConfigBytes parses raw INI-like bytes into a Config.
func LoadConfigBytes(raw []byte) (*Config, error) {
	if int64(len(raw)) > maxConfigSize {
		return nil, errConfigTooLarge
	}

	var cfg Config
	if err := gcfg.ReadStringInto(&cfg, string(raw)); err != nil {
		return nil, err
	}

	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		cfg.rawLines = append(cfg.rawLines, sc.Text())
	}

	return &cfg, nil
}

// splitCSV splits a comma-separated flag value into a trimmed slice,
// skipping empty elements.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ApplyFlags overlays CLI flag overrides onto cfg (--homes/--channels
// replace, not merge, the config file's lists).
func (c *Config) ApplyFlags(f *Flags) {
	if f.Homes != "" {
		c.IRCBot.Homes = splitCSV(f.Homes)
	}
	if f.Channels != "" {
		c.IRCBot.Channels = splitCSV(f.Channels)
	}
}

// WriteConfig rewrites path with cfg's current values spliced into the
// original lines, preserving comments and unknown keys (§6) — hand-rolled
// line-editing since gcfg has no marshal support, grounded on gravwell's
// own config-management style (manager/config.go) of treating the file as
// text rather than round-tripping through a marshaller.
func (c *Config) WriteConfig(path string) error {
	section := ""
	out := make([]string, 0, len(c.rawLines))

	known := map[string]func() string{
		"core.prefix":            func() string { return c.Core.Prefix },
		"core.resourcedir":       func() string { return c.Core.ResourceDir },
		"core.logdir":            func() string { return c.Core.LogDir },
		"ircbot.nickname":        func() string { return c.IRCBot.Nickname },
		"ircbot.ident":           func() string { return c.IRCBot.Ident },
		"ircbot.realname":        func() string { return c.IRCBot.Realname },
		"ircbot.homes":           func() string { return strings.Join(c.IRCBot.Homes, ",") },
		"ircbot.channels":        func() string { return strings.Join(c.IRCBot.Channels, ",") },
		"ircbot.pass":            func() string { return c.IRCBot.Pass },
		"ircbot.sasluser":        func() string { return c.IRCBot.SASLUser },
		"ircbot.authpassword":    func() string { return c.IRCBot.AuthPassword },
		"ircserver.address":      func() string { return c.IRCServer.Address },
		"ircserver.port":         func() string { return strconv.Itoa(c.IRCServer.Port) },
		"ircserver.tls":          func() string { return strconv.FormatBool(c.IRCServer.TLS) },
	}

	for _, line := range c.rawLines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.ToLower(strings.Trim(trimmed, "[]"))
			out = append(out, line)
			continue
		}

		if trimmed == "" || strings.HasPrefix(trimmed, ";") || strings.HasPrefix(trimmed, "#") {
			out = append(out, line)
			continue
		}

		key := strings.ToLower(strings.Fields(trimmed)[0])
		if render, ok := known[section+"."+key]; ok {
			out = append(out, fmt.Sprintf("%s %s", key, render()))
			continue
		}
		// Unknown key: keep the line verbatim (§6: "Unknown keys are
		// warned about, not fatal").
		out = append(out, line)
	}

	return SaveResource("core", path, []byte(strings.Join(out, "\n")+"\n"), 0o644)
}
