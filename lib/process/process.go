// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package process runs local processing admission cycles: under the
// local disk budget, it decides which samples may start or continue
// the download/sra2fastq/rsem pipeline, and hands the admitted list
// to the execution collaborator.
package process

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"git.bcgsc.ca/rsempipeline.git/lib/config"
	"git.bcgsc.ca/rsempipeline.git/lib/pipeline"
	"git.bcgsc.ca/rsempipeline.git/lib/runlock"
	"git.bcgsc.ca/rsempipeline.git/lib/service"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// LockBasename is the run-lock marker under the local top output
// directory. While it exists, a processing cycle is in flight.
const LockBasename = ".rp-run.lock"

// A Controller computes one processing admission cycle.
type Controller struct {
	Config  *config.Config
	Logger  logrus.FieldLogger
	Samples []*pipeline.Sample

	// Admit every unprocessed sample regardless of budget.
	IgnoreDiskUsageRule bool

	// Admitted sample keys are written here, one per line, for
	// the execution collaborator.
	Output io.Writer
}

// RunCycle initializes sample output directories, measures local
// capacity, and selects the samples admitted into this cycle. It
// returns an error wrapping runlock.ErrAlreadyLocked, without probing
// anything, if another cycle holds the run lock.
func (ctrl *Controller) RunCycle(ctx context.Context) (service.CycleStats, error) {
	var stats service.CycleStats
	cfg, logger := ctrl.Config, ctrl.Logger

	lock, err := runlock.Acquire(filepath.Join(cfg.LocalTopOutdir, LockBasename))
	if err != nil {
		return stats, err
	}
	defer lock.Release()

	if err := pipeline.InitOutdirs(logger, cfg.LocalTopOutdir, ctrl.Samples); err != nil {
		return stats, err
	}

	freeSpace, err := pipeline.FreeSpace(cfg.LocalDFCommand)
	if err != nil {
		return stats, err
	}
	stats.FreeSpace = freeSpace
	logger.WithField("freeSpace", humanize.IBytes(uint64(freeSpace))).Info("local free space available")

	currentUsage, err := pipeline.DiskUsage(cfg.LocalTopOutdir)
	if err != nil {
		return stats, err
	}
	stats.CurrentUsage = currentUsage
	logger.WithFields(logrus.Fields{
		"dir":          cfg.LocalTopOutdir,
		"currentUsage": humanize.IBytes(uint64(currentUsage)),
	}).Info("local current usage")

	budget := pipeline.AvailableToUse(int64(cfg.LocalMaxUsage), freeSpace, currentUsage, int64(cfg.LocalMinFree))
	stats.Budget = budget
	logger.WithField("budget", budget).Info("local space free to use")

	admitted, admittedBytes := pipeline.SelectToProcess(logger, ctrl.Samples, budget, cfg.SRAToUsageRatio, ctrl.IgnoreDiskUsageRule)
	stats.Admitted = len(admitted)
	stats.AdmittedBytes = admittedBytes
	if len(admitted) == 0 {
		logger.Info("no sample fits the current disk usage rule")
		return stats, nil
	}
	for _, sample := range admitted {
		if _, err := fmt.Fprintln(ctrl.Output, sample.String()); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
