// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import "strings"

// color maps a set of "{name}" aliases to the mIRC control code they expand
// to, grounded on girc's own format.go color table.
type color struct {
	aliases []string
	val     string
}

var colors = []*color{
	{aliases: []string{"white"}, val: "\x0300"},
	{aliases: []string{"black"}, val: "\x0301"},
	{aliases: []string{"blue", "navy"}, val: "\x0302"},
	{aliases: []string{"green"}, val: "\x0303"},
	{aliases: []string{"red"}, val: "\x0304"},
	{aliases: []string{"brown", "maroon"}, val: "\x0305"},
	{aliases: []string{"purple"}, val: "\x0306"},
	{aliases: []string{"orange", "olive", "gold"}, val: "\x0307"},
	{aliases: []string{"yellow"}, val: "\x0308"},
	{aliases: []string{"lightgreen", "lime"}, val: "\x0309"},
	{aliases: []string{"teal"}, val: "\x0310"},
	{aliases: []string{"cyan"}, val: "\x0311"},
	{aliases: []string{"lightblue", "royal"}, val: "\x0312"},
	{aliases: []string{"lightpurple", "pink", "fuchsia"}, val: "\x0313"},
	{aliases: []string{"grey", "gray"}, val: "\x0314"},
	{aliases: []string{"lightgrey", "silver"}, val: "\x0315"},
	{aliases: []string{"bold", "b"}, val: "\x02"},
	{aliases: []string{"italic", "i"}, val: "\x1d"},
	{aliases: []string{"reset", "r"}, val: "\x0f"},
	{aliases: []string{"clear", "c"}, val: "\x03"},
	{aliases: []string{"reverse"}, val: "\x16"},
	{aliases: []string{"underline", "ul"}, val: "\x1f"},
}

// Fmt expands "{red}", "{b}", etc. in text into the mIRC control codes they
// name, for plugins composing PRIVMSG/NOTICE content (§6's "Persisted
// state" and command responses both flow through outbound Events carrying
// this formatting).
func Fmt(text string) string {
	for i := 0; i < len(colors); i++ {
		for a := 0; a < len(colors[i].aliases); a++ {
			text = strings.ReplaceAll(text, "{"+colors[i].aliases[a]+"}", colors[i].val)
		}

		var more bool
		for c := 0; c < len(text); c++ {
			if text[c] == '{' {
				more = true
				break
			}
		}
		if !more {
			return text
		}
	}
	return text
}

// TrimFmt strips "{color}"-style formatting markup without replacing it
// with control codes, for logging/display contexts that want plain text.
func TrimFmt(text string) string {
	for i := 0; i < len(colors); i++ {
		for a := 0; a < len(colors[i].aliases); a++ {
			text = strings.ReplaceAll(text, "{"+colors[i].aliases[a]+"}", "")
		}

		var more bool
		for c := 0; c < len(text); c++ {
			if text[c] == '{' {
				more = true
				break
			}
		}
		if !more {
			return text
		}
	}
	return text
}

// StripRaw removes actual mIRC control codes (as opposed to the "{name}"
// markup Fmt/TrimFmt operate on) from text, for logging a line a plugin
// already formatted.
func StripRaw(text string) string {
	for i := 0; i < len(colors); i++ {
		text = strings.ReplaceAll(text, colors[i].val, "")
	}
	return text
}
