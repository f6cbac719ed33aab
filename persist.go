// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dchest/safefile"
	"gopkg.in/yaml.v3"
)

// reservedWindowsNames are the device names §6 requires escaping,
// regardless of the host OS (resource directories may be synced onto a
// Windows machine later).
var reservedWindowsNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
}

func init() {
	for i := byte('0'); i <= '9'; i++ {
		reservedWindowsNames["COM"+string(i)] = true
		reservedWindowsNames["LPT"+string(i)] = true
	}
}

// EscapePath rewrites one path element per §6's byte-for-byte rules:
// reserved Windows device names get a trailing "~", "\" becomes "~", "|"
// becomes ")". It is idempotent (§8: escape(escape(p)) == escape(p)) — a
// name already bearing the trailing "~" is left alone because an escaped
// reserved name no longer matches reservedWindowsNames, and '\\'/'|' have
// already been rewritten to characters the function doesn't touch again.
func EscapePath(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '\\':
			b.WriteByte('~')
		case '|':
			b.WriteByte(')')
		default:
			b.WriteByte(name[i])
		}
	}
	out := b.String()
	if reservedWindowsNames[strings.ToUpper(out)] {
		out += "~"
	}
	return out
}

// ResourcePath joins root and the escaped form of each path element,
// guaranteeing every component is safe on every platform (§6).
func ResourcePath(root string, elems ...string) string {
	escaped := make([]string, 0, len(elems)+1)
	escaped = append(escaped, root)
	for _, e := range elems {
		escaped = append(escaped, EscapePath(e))
	}
	return filepath.Join(escaped...)
}

// SaveResource atomically writes data to path (write-tmp-then-rename,
// §6), the discipline gravwell's ingesters/utils/state.go uses
// safefile.Create/Commit for. On any failure it returns a
// *ResourceIOError; per §9's Open Question decision, the caller's
// in-memory state is never touched here — retry is the caller's job.
func SaveResource(plugin, path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &ResourceIOError{Plugin: plugin, Path: path, Err: err}
	}

	f, err := safefile.Create(path, perm)
	if err != nil {
		return &ResourceIOError{Plugin: plugin, Path: path, Err: err}
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return &ResourceIOError{Plugin: plugin, Path: path, Err: err}
	}
	if err := f.Commit(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return &ResourceIOError{Plugin: plugin, Path: path, Err: err}
	}
	return nil
}

// SaveResourceYAML encodes v as YAML and atomically writes it to path
// (§3.8: "Default resource encoding is YAML via gopkg.in/yaml.v3").
func SaveResourceYAML(plugin, path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return &ResourceIOError{Plugin: plugin, Path: path, Err: err}
	}
	return SaveResource(plugin, path, data, 0o644)
}

// LoadResourceYAML decodes the YAML file at path into v.
func LoadResourceYAML(plugin, path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &ResourceIOError{Plugin: plugin, Path: path, Err: err}
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return &ResourceIOError{Plugin: plugin, Path: path, Err: err}
	}
	return nil
}
