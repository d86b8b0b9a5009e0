// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"git.bcgsc.ca/rsempipeline.git/lib/config"
	"git.bcgsc.ca/rsempipeline.git/lib/runlock"
	"git.bcgsc.ca/rsempipeline.git/lib/service"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	// LockBasename is the run-lock marker under the local top
	// output directory. While it exists, a transfer cycle is in
	// flight.
	LockBasename = ".rsem_transfer.lock"

	scriptsDirBasename = "transfer_scripts"
)

// A Controller runs transfer admission cycles: it decides which
// finished samples fit the remote host's disk budget, renders and
// runs an rsync script for them, and records the successful batch in
// the ledger.
type Controller struct {
	Config *config.Config
	Logger logrus.FieldLogger
	Exec   RemoteExecutor
	Runner ScriptRunner

	// test hook
	now func() time.Time
}

// RunCycle runs one admission-and-transfer cycle. It returns an
// error wrapping runlock.ErrAlreadyLocked, without probing anything,
// if another cycle holds the run lock.
func (ctrl *Controller) RunCycle(ctx context.Context) (service.CycleStats, error) {
	var stats service.CycleStats
	cfg, logger := ctrl.Config, ctrl.Logger

	lock, err := runlock.Acquire(filepath.Join(cfg.LocalTopOutdir, LockBasename))
	if err != nil {
		return stats, err
	}
	defer lock.Release()

	insp := &Inspector{Exec: ctrl.Exec, Logger: logger}
	freeSpace, err := insp.FreeSpace(cfg.Remote.DFCommand)
	if err != nil {
		return stats, err
	}
	stats.FreeSpace = freeSpace
	logger.WithFields(logrus.Fields{
		"host":      cfg.Remote.Host,
		"freeSpace": humanize.IBytes(uint64(freeSpace)),
	}).Info("remote free space")

	// Real usage is logged for the operator's benefit only; see
	// RealUsage.
	realUsage, err := insp.RealUsage(cfg.Remote.TopOutdir)
	if err != nil {
		return stats, err
	}
	logger.WithFields(logrus.Fields{
		"dir":       cfg.Remote.TopOutdir,
		"realUsage": humanize.IBytes(uint64(realUsage)),
	}).Info("real current usage on remote host")

	estUsage, err := insp.EstimatedUsage(cfg.Remote.TopOutdir, cfg.LocalTopOutdir, cfg.FastqToUsageRatio)
	if err != nil {
		return stats, err
	}
	stats.CurrentUsage = estUsage

	budget := RemoteBudget(int64(cfg.Remote.MaxUsage), freeSpace, estUsage, int64(cfg.Remote.MinFree))
	stats.Budget = budget
	logger.WithField("budget", budget).Info("remote space free to use")

	ledger := &Ledger{Path: filepath.Join(cfg.LocalTopOutdir, LedgerBasename)}
	transferred, err := ledger.Transferred()
	if err != nil {
		return stats, err
	}

	admitted, admittedBytes, err := SelectToTransfer(logger, cfg.LocalTopOutdir, transferred, budget, cfg.FastqToUsageRatio)
	if err != nil {
		return stats, err
	}
	stats.Admitted = len(admitted)
	stats.AdmittedBytes = admittedBytes
	if len(admitted) == 0 {
		logger.Info("no sample fits the current disk usage rule")
		return stats, nil
	}

	now := time.Now
	if ctrl.now != nil {
		now = ctrl.now
	}
	jobName := "transfer." + now().Format("06-01-02_15:04:05")
	scriptsDir := filepath.Join(cfg.LocalTopOutdir, scriptsDirBasename)
	if err := os.MkdirAll(scriptsDir, 0777); err != nil {
		return stats, err
	}
	script := filepath.Join(scriptsDir, jobName+".sh")
	err = writeScript(script, cfg.RsyncTemplate, scriptParams{
		JobName:         jobName,
		Username:        cfg.Remote.Username,
		Hostname:        cfg.Remote.Host,
		LocalTopOutdir:  cfg.LocalTopOutdir,
		RemoteTopOutdir: cfg.Remote.TopOutdir,
		Samples:         admitted,
	})
	if err != nil {
		return stats, err
	}
	logger.WithField("script", script).Info("templated transfer script")

	if err := ctrl.Runner.Run(script); err != nil {
		return stats, fmt.Errorf("transfer script %s failed: %s", script, err)
	}
	// Only record the batch after the script succeeds, so an
	// interrupted transfer is retried next cycle.
	if err := ledger.Append(admitted); err != nil {
		return stats, err
	}
	logger.WithField("samples", len(admitted)).Info("transfer recorded")
	return stats, nil
}

// RemoteBudget derives the budget for new transfers:
// min(maxUsage, freeSpace) - estUsage, further capped by the
// freeSpace - minFree reserve. May be negative.
func RemoteBudget(maxUsage, freeSpace, estUsage, minFree int64) int64 {
	ceiling := maxUsage
	if freeSpace < ceiling {
		ceiling = freeSpace
	}
	budget := ceiling - estUsage
	if reserve := freeSpace - minFree; reserve < budget {
		budget = reserve
	}
	return budget
}
