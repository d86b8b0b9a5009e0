// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package runlock guards an output tree against concurrent
// admission-and-execute cycles, using a marker file. A second
// invocation that finds the marker declines to run; it does not queue.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// ErrAlreadyLocked is wrapped by the error returned when the marker
// file already exists.
var ErrAlreadyLocked = errors.New("already locked")

// A Lock is a held run lock. Release it when the cycle terminates.
type Lock struct {
	path string
	file *os.File
}

// Path returns the marker file path.
func (l *Lock) Path() string { return l.path }

// Acquire creates the marker file at path, failing with an
// ErrAlreadyLocked-wrapped error if it already exists. The caller
// must not have probed capacity or admitted anything before
// acquiring.
//
// Creation uses O_EXCL plus a flock on the open handle, so two
// processes racing on the same host cannot both win. A marker left
// behind by a crashed cycle also blocks: refusing on stale state is
// preferred over guessing whether the previous cycle finished.
func Acquire(path string) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if os.IsExist(err) {
		return nil, fmt.Errorf("%w: marker %s exists (remove it if no other cycle is running)", ErrAlreadyLocked, path)
	} else if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: flock %s: %s", ErrAlreadyLocked, path, err)
	}
	fmt.Fprintf(file, "pid %d\nstarted %s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	return &Lock{path: path, file: file}, nil
}

// Release removes the marker and drops the lock.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	err := os.Remove(l.path)
	if closeErr := l.file.Close(); err == nil {
		err = closeErr
	}
	l.file = nil
	return err
}
