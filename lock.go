// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// InstanceLock prevents two corvus processes from sharing one resource
// directory (§6: "Persisted state... single-owner"), grounded on
// gravwell's use of gofrs/flock for its own exclusive process locks.
type InstanceLock struct {
	fl *flock.Flock
}

// errAlreadyRunning is returned when the lock file is already held.
var errAlreadyRunning = fmt.Errorf("another corvus instance already holds the resource directory lock")

// AcquireInstanceLock takes an exclusive, non-blocking lock on
// "<resourceRoot>/.corvus.lock", failing fast rather than waiting, since a
// second instance fighting the first over the same resource files would
// corrupt them.
func AcquireInstanceLock(resourceRoot string) (*InstanceLock, error) {
	path := filepath.Join(resourceRoot, ".corvus.lock")
	fl := flock.New(path)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, &ResourceIOError{Plugin: "core", Path: path, Err: err}
	}
	if !ok {
		return nil, errAlreadyRunning
	}
	return &InstanceLock{fl: fl}, nil
}

// Release drops the lock.
func (l *InstanceLock) Release() error {
	return l.fl.Unlock()
}
