// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import "testing"

type testPluginSettings struct {
	Greeting string `corvus:"default=hello,desc=what to say"`
	MaxLines int    `corvus:"default=10,desc=line cap,sealed"`
	Ignored  string
	LogPath  string `corvus:"resource"`
}

func TestScanSettingsReadsTagsAndSkipsUntagged(t *testing.T) {
	fields := scanSettings(&testPluginSettings{})

	if len(fields) != 3 {
		t.Fatalf("scanSettings returned %d fields, want 3 (Ignored has no tag)", len(fields))
	}

	byName := make(map[string]SettingField)
	for _, f := range fields {
		byName[f.Name] = f
	}

	if g, ok := byName["Greeting"]; !ok || g.Default != "hello" || g.Description != "what to say" || g.Sealed {
		t.Errorf("Greeting field = %+v", g)
	}
	if m, ok := byName["MaxLines"]; !ok || m.Default != "10" || !m.Sealed {
		t.Errorf("MaxLines field = %+v", m)
	}
	if _, ok := byName["Ignored"]; ok {
		t.Error("Ignored field should not appear: it has no corvus tag")
	}
}

func TestScanSettingsNilReturnsNil(t *testing.T) {
	if got := scanSettings(nil); got != nil {
		t.Errorf("scanSettings(nil) = %v, want nil", got)
	}
}

func TestBindResourcesRewritesTaggedFieldsOnly(t *testing.T) {
	s := &testPluginSettings{Greeting: "hi"}
	bindResources(s, "/var/corvus/oneliner")

	if s.LogPath != "/var/corvus/oneliner/logpath" {
		t.Errorf("LogPath = %q, want rooted path", s.LogPath)
	}
	if s.Greeting != "hi" {
		t.Errorf("untagged field Greeting was mutated: %q", s.Greeting)
	}
}

func TestBindResourcesNilIsNoop(t *testing.T) {
	bindResources(nil, "/root")
}

func TestMatchesCommandExactAndWithArgs(t *testing.T) {
	args, ok := matchesCommand("!echo hello world", "!", "echo", CaseMapRFC1459)
	if !ok || args != "hello world" {
		t.Errorf("matchesCommand = %q, %v, want %q, true", args, ok, "hello world")
	}

	args, ok = matchesCommand("!echo", "!", "echo", CaseMapRFC1459)
	if !ok || args != "" {
		t.Errorf("bare trigger match = %q, %v, want empty, true", args, ok)
	}
}

func TestMatchesCommandRejectsPartialWordMatch(t *testing.T) {
	if _, ok := matchesCommand("!echoing", "!", "echo", CaseMapRFC1459); ok {
		t.Error("!echoing should not match trigger echo (not end-of-string/whitespace delimited)")
	}
}

func TestMatchesCommandIsCaseFolded(t *testing.T) {
	args, ok := matchesCommand("!ECHO hi", "!", "echo", CaseMapRFC1459)
	if !ok || args != "hi" {
		t.Errorf("case-insensitive match = %q, %v, want %q, true", args, ok, "hi")
	}
}

func TestBasePluginLifecycleNoopsSucceed(t *testing.T) {
	var p BasePlugin
	if err := p.InitResources(nil); err != nil {
		t.Errorf("InitResources: %v", err)
	}
	if err := p.Setup(nil); err != nil {
		t.Errorf("Setup: %v", err)
	}
	if err := p.Start(nil); err != nil {
		t.Errorf("Start: %v", err)
	}
	if err := p.Reload(nil); err != nil {
		t.Errorf("Reload: %v", err)
	}
	if err := p.Teardown(nil); err != nil {
		t.Errorf("Teardown: %v", err)
	}
	if p.Handlers() != nil {
		t.Error("Handlers() should be nil by default")
	}
	if p.ChannelSpecificCommands("#chan") != nil {
		t.Error("ChannelSpecificCommands() should be nil by default")
	}
}
