// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package service wraps one admission-and-execute cycle in the
// run-once / run-forever plumbing shared by the process and transfer
// commands.
package service

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.bcgsc.ca/rsempipeline.git/lib/runlock"
	"github.com/coreos/go-systemd/daemon"
	"github.com/sirupsen/logrus"
)

// CycleStats summarizes one admission cycle, for logging and metrics.
type CycleStats struct {
	FreeSpace     int64
	CurrentUsage  int64
	Budget        int64
	Admitted      int
	AdmittedBytes int64
}

// A CycleFunc computes and executes one admission cycle.
type CycleFunc func(ctx context.Context) (CycleStats, error)

// A Runner invokes a CycleFunc once, or periodically.
type Runner struct {
	Logger  logrus.FieldLogger
	Cycle   CycleFunc
	Period  time.Duration
	Metrics *Metrics // optional
}

// RunOnce runs a single cycle.
func (r *Runner) RunOnce(ctx context.Context) error {
	t0 := time.Now()
	stats, err := r.Cycle(ctx)
	if r.Metrics != nil {
		r.Metrics.Update(stats, time.Since(t0), err)
	}
	return err
}

// RunForever runs a cycle on every period tick and on SIGUSR1, until
// ctx is cancelled or the stop channel (which may be nil, for
// testing) is ready. A cycle that declines to run because another
// cycle holds the run lock is logged and retried on the next tick; it
// does not stop the service.
func (r *Runner) RunForever(ctx context.Context, stop <-chan interface{}) error {
	logger := r.Logger

	ticker := time.NewTicker(r.Period)
	defer ticker.Stop()

	// The unbuffered channel here means we only hear SIGUSR1 if
	// it arrives while we're waiting in select{}.
	sigUSR1 := make(chan os.Signal)
	signal.Notify(sigUSR1, syscall.SIGUSR1)
	defer signal.Stop(sigUSR1)

	logger.Printf("starting up: will run every %v and on SIGUSR1", r.Period)
	if ok, err := daemon.SdNotify(false, "READY=1"); !ok && err != nil {
		logger.WithError(err).Warn("error notifying init daemon")
	}

	for {
		err := r.RunOnce(ctx)
		if errors.Is(err, runlock.ErrAlreadyLocked) {
			logger.WithError(err).Warn("declined to run: another cycle is in flight")
		} else if err != nil {
			logger.WithError(err).Error("cycle failed")
		} else {
			logger.Info("cycle succeeded")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			logger.Debug("timer went off")
		case <-sigUSR1:
			logger.Info("received SIGUSR1, resuming")
			// Reset the timer so we don't start the N+1st
			// cycle right after the Nth cycle.
			ticker.Reset(r.Period)
		}
	}
}
