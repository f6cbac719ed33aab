// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import "testing"

func TestPluginNameFromResourcePath(t *testing.T) {
	cases := []struct {
		root, path, want string
	}{
		{"/var/lib/corvus", "/var/lib/corvus/karma/data.yaml", "karma"},
		{"/var/lib/corvus", "/var/lib/corvus/corvus.conf", "corvus.conf"},
		{"/var/lib/corvus", "/other/place/file", ""},
	}
	for _, c := range cases {
		if got := pluginNameFromResourcePath(c.root, c.path); got != c.want {
			t.Errorf("pluginNameFromResourcePath(%q, %q) = %q, want %q", c.root, c.path, got, c.want)
		}
	}
}
