// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import "testing"

func TestNewChannelInitializesMembers(t *testing.T) {
	c := newChannel("#chan")
	if c.Name != "#chan" {
		t.Errorf("Name = %q, want #chan", c.Name)
	}
	if c.Members == nil {
		t.Fatal("Members map was not initialised")
	}
}

func TestChannelCloneIsIndependent(t *testing.T) {
	c := newChannel("#chan")
	c.Members["alice"] = MemberModes{Flags: "@"}

	clone := c.Clone()
	clone.Members["alice"] = MemberModes{Flags: ""}
	clone.Members["bob"] = MemberModes{Flags: "+"}

	if c.Members["alice"].Flags != "@" {
		t.Errorf("original mutated via clone: %+v", c.Members["alice"])
	}
	if _, ok := c.Members["bob"]; ok {
		t.Error("original gained a member added only to the clone")
	}
}

func TestChannelCloneNil(t *testing.T) {
	var c *Channel
	if c.Clone() != nil {
		t.Error("Clone of a nil Channel should be nil")
	}
}
