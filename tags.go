// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	prefixTag      byte = 0x40 // @
	prefixTagValue byte = 0x3D // =
	prefixUserTag  byte = 0x2B // +
	tagSeparator   byte = 0x3B // ;
	maxTagLength   int  = 511  // 510 + "@" and the trailing space
)

// tagPair is one entry of a Tags multimap, retained in parse order.
type tagPair struct {
	key   string
	value string
}

// Tags holds IRCv3 message tags in first-occurrence order (§8 round-trip
// law: re-encoding must preserve the order tags were first seen in). Unlike
// a Go map, iterating Tags is deterministic.
type Tags struct {
	pairs []tagPair
}

// ParseTags parses the tag portion of a line. raw must be only the tag
// data (optionally still carrying its leading "@"), not the full message:
//
//	@aaa=bbb;ccc;example.com/ddd=eee
func ParseTags(raw string) Tags {
	var t Tags

	if len(raw) > 0 && raw[0] == prefixTag {
		raw = raw[1:]
	}
	if raw == "" {
		return t
	}

	parts := strings.Split(raw, string(tagSeparator))
	for _, part := range parts {
		idx := strings.IndexByte(part, prefixTagValue)

		if idx < 1 || len(part) < idx+1 {
			if !validTag(part) {
				continue
			}
			t.set(part, "")
			continue
		}

		key, val := part[:idx], part[idx+1:]
		if !validTag(key) || !validTagValue(val) {
			continue
		}
		t.set(key, val)
	}

	return t
}

// set appends key=value, or overwrites it in place if key was already
// present — first-occurrence position is preserved either way.
func (t *Tags) set(key, value string) {
	for i := range t.pairs {
		if t.pairs[i].key == key {
			t.pairs[i].value = value
			return
		}
	}
	t.pairs = append(t.pairs, tagPair{key: key, value: value})
}

// Get returns the unescaped value of key, and whether it was present.
func (t Tags) Get(key string) (value string, ok bool) {
	for _, p := range t.pairs {
		if p.key == key {
			return tagDecoder.Replace(p.value), true
		}
	}
	return "", false
}

// Set escapes value and stores it under key, validating key first.
func (t *Tags) Set(key, value string) error {
	if !validTag(key) {
		return fmt.Errorf("tag %q is invalid", key)
	}
	encoded := tagEncoder.Replace(value)
	if (t.Len() + len(key) + len(encoded) + 2) > maxTagLength {
		return fmt.Errorf("unable to set tag %q: tags too long for message", key)
	}
	t.set(key, encoded)
	return nil
}

// Remove deletes key, reporting whether it was present.
func (t *Tags) Remove(key string) bool {
	for i := range t.pairs {
		if t.pairs[i].key == key {
			t.pairs = append(t.pairs[:i], t.pairs[i+1:]...)
			return true
		}
	}
	return false
}

// Count returns the number of tags present.
func (t Tags) Count() int { return len(t.pairs) }

// Len returns the length of the encoded tag string, including the leading
// "@" but excluding the trailing separating space.
func (t Tags) Len() int { return len(t.Bytes()) }

// Bytes encodes the tags, in first-occurrence order, including the
// leading "@". Returns nil if there are no tags.
func (t Tags) Bytes() []byte {
	if len(t.pairs) == 0 {
		return nil
	}

	buf := new(bytes.Buffer)
	buf.WriteByte(prefixTag)

	for i, p := range t.pairs {
		if (buf.Len() + len(p.key) + len(p.value) + 2) > maxTagLength {
			break
		}
		buf.WriteString(p.key)
		if p.value != "" {
			buf.WriteByte(prefixTagValue)
			buf.WriteString(p.value)
		}
		if i < len(t.pairs)-1 {
			buf.WriteByte(tagSeparator)
		}
	}

	return buf.Bytes()
}

func (t Tags) String() string { return string(t.Bytes()) }

// writeTo writes the encoded tags plus a trailing separator space, if any
// tags are present.
func (t Tags) writeTo(buf *bytes.Buffer) {
	b := t.Bytes()
	if len(b) == 0 {
		return
	}
	buf.Write(b)
	buf.WriteByte(eventSpace)
}

var tagDecoder = strings.NewReplacer(
	"\\:", ";",
	"\\s", " ",
	"\\\\", "\\",
	"\\r", "\r",
	"\\n", "\n",
)

var tagEncoder = strings.NewReplacer(
	";", "\\:",
	" ", "\\s",
	"\\", "\\\\",
	"\r", "\\r",
	"\n", "\\n",
)

// validTag validates an IRC tag key.
func validTag(name string) bool {
	if len(name) < 1 {
		return false
	}
	if len(name) >= 2 && name[0] == prefixUserTag {
		name = name[1:]
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') && (c < '-' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}

// validTagValue validates a raw tag value as it appears on the wire (still
// escaped, so it never contains a space or ';').
func validTagValue(value string) bool {
	for i := 0; i < len(value); i++ {
		if value[i] < 0x21 || value[i] > 0x7E || value[i] == 0x3B {
			return false
		}
	}
	return true
}
