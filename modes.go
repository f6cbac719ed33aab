// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import "strings"

// CMode is a single parsed channel mode change.
type CMode struct {
	add     bool
	name    byte
	setting bool
	args    string
}

func (c *CMode) Short() string {
	status := "+"
	if !c.add {
		status = "-"
	}
	return status + string(c.name)
}

func (c *CMode) String() string {
	if len(c.args) == 0 {
		return c.Short()
	}
	return c.Short() + " " + c.args
}

// CModes tracks a channel's current mode set plus the ISUPPORT CHANMODES/
// PREFIX classification needed to know which modes take arguments.
type CModes struct {
	raw           string
	modesListArgs string
	modesArgs     string
	modesSetArgs  string
	modesNoArgs   string

	prefixes string
	modes    []CMode
}

func (c *CModes) String() string {
	var out, args string
	if len(c.modes) > 0 {
		out += "+"
	}
	for i := range c.modes {
		out += string(c.modes[i].name)
		if len(c.modes[i].args) > 0 {
			args += " " + c.modes[i].args
		}
	}
	return out + args
}

// "modes" is a list of channel modes according to 4 types: "A,B,C,D".
// A = adds/removes a nick or address to a list; always has a parameter.
// B = changes a setting and always has a parameter.
// C = changes a setting and only has a parameter when set.
// D = changes a setting and never has a parameter.
func (c *CModes) hasArg(set bool, mode byte) (hasArgs, isSetting bool) {
	if len(c.raw) < 1 {
		return false, true
	}
	if strings.IndexByte(c.modesListArgs, mode) > -1 {
		return true, false
	}
	if strings.IndexByte(c.modesArgs, mode) > -1 {
		return true, true
	}
	if strings.IndexByte(c.modesSetArgs, mode) > -1 {
		if set {
			return true, true
		}
		return false, true
	}
	if strings.IndexByte(c.prefixes, mode) > -1 {
		return true, false
	}
	return false, true
}

func (c *CModes) apply(modes []CMode) {
	var kept []CMode

	for j := range c.modes {
		isin := false
		for i := range modes {
			if !modes[i].setting {
				continue
			}
			if c.modes[j].name == modes[i].name {
				if modes[i].add {
					kept = append(kept, modes[i])
				}
				isin = true
				break
			}
		}
		if !isin {
			kept = append(kept, c.modes[j])
		}
	}

	for i := range modes {
		if !modes[i].setting || !modes[i].add {
			continue
		}
		isin := false
		for j := range kept {
			if modes[i].name == kept[j].name {
				isin = true
				break
			}
		}
		if !isin {
			kept = append(kept, modes[i])
		}
	}

	c.modes = kept
}

func (c *CModes) parse(flags string, args []string) (out []CMode) {
	add := true
	var argCount int

	for i := 0; i < len(flags); i++ {
		if flags[i] == '+' {
			add = true
			continue
		}
		if flags[i] == '-' {
			add = false
			continue
		}

		mode := CMode{name: flags[i], add: add}

		hasArgs, isSetting := c.hasArg(add, flags[i])
		if hasArgs && len(args) >= argCount+1 {
			mode.args = args[argCount]
			argCount++
		}
		mode.setting = isSetting

		out = append(out, mode)
	}

	return out
}

func newCModes(channelModes, userPrefixes string) CModes {
	split := strings.SplitN(channelModes, ",", 4)
	for len(split) < 4 {
		split = append(split, "")
	}

	return CModes{
		raw:           channelModes,
		modesListArgs: split[0],
		modesArgs:     split[1],
		modesSetArgs:  split[2],
		modesNoArgs:   split[3],
		prefixes:      userPrefixes,
	}
}

func isValidChannelMode(raw string) bool {
	if len(raw) < 1 {
		return false
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] != ',' && (raw[i] < 'A' || raw[i] > 'Z') && (raw[i] < 'a' || raw[i] > 'z') {
			return false
		}
	}
	return true
}

func isValidUserPrefix(raw string) bool {
	if len(raw) < 1 || raw[0] != '(' {
		return false
	}

	var keys, rep int
	var passedKeys bool

	for i := 1; i < len(raw); i++ {
		if raw[i] == ')' {
			passedKeys = true
			continue
		}
		if passedKeys {
			rep++
		} else {
			keys++
		}
	}

	return keys == rep
}

// parsePrefixes splits an ISUPPORT PREFIX=(ov)@+ token into its mode
// letters ("ov") and display prefixes ("@+"), in matching order.
func parsePrefixes(raw string) (modes, prefixes string) {
	if !isValidUserPrefix(raw) {
		return "", ""
	}
	i := strings.Index(raw, ")")
	if i < 1 {
		return "", ""
	}
	return raw[1:i], raw[i+1:]
}

// prefixFlags renders the subset of prefix characters a member currently
// holds, highest-ranked first, given the ISUPPORT-derived modes/prefixes
// pairing and the member's raw mode letters (e.g. "ov" -> "@+").
func prefixFlags(modes, prefixes, memberModes string) string {
	var out strings.Builder
	for i := 0; i < len(modes) && i < len(prefixes); i++ {
		if strings.IndexByte(memberModes, modes[i]) > -1 {
			out.WriteByte(prefixes[i])
		}
	}
	return out.String()
}
