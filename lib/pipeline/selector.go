// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pipeline

import (
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// SelectToProcess scans samples in their given order and greedily
// admits the ones whose projected disk usage fits the remaining
// budget. A sample that does not fit is skipped, but the scan
// continues: a later, smaller sample may still fit. For a given
// candidate order and budget the admitted subset and its order are
// deterministic.
//
// Fully processed samples are excluded; samples with missing size
// metadata are skipped for this cycle with a warning. If ignoreBudget
// is set, every not-fully-processed sample is admitted regardless of
// budget.
// The second return value is the total projected usage of the
// admitted samples.
func SelectToProcess(logger logrus.FieldLogger, samples []*Sample, budget int64, ratio float64, ignoreBudget bool) ([]*Sample, int64) {
	if !ignoreBudget && budget <= 0 {
		logger.WithField("budget", budget).Warn("no space available for new work, admitting nothing")
		return nil, 0
	}
	var admitted []*Sample
	var total int64
	for _, sample := range samples {
		logger := logger.WithField("sample", sample.String())
		inputs, err := RawInputs(sample.Outdir)
		if err != nil {
			logger.WithError(err).Warn("skipping: cannot determine size")
			continue
		}
		if state := classify(sample.Outdir, inputs); state == FullyProcessed {
			logger.Debug("already processed successfully, skipping")
			continue
		}
		if ignoreBudget {
			admitted = append(admitted, sample)
			continue
		}
		projected := EstimateUsage(RawTotal(inputs), ratio)
		if projected < budget {
			budget -= projected
			total += projected
			logger.WithFields(logrus.Fields{
				"projected":       humanize.IBytes(uint64(projected)),
				"remainingBudget": humanize.IBytes(uint64(budget)),
			}).Info("admitted for processing")
			admitted = append(admitted, sample)
		} else {
			logger.WithFields(logrus.Fields{
				"projected":       humanize.IBytes(uint64(projected)),
				"remainingBudget": humanize.IBytes(uint64(budget)),
			}).Debug("does not fit remaining budget, skipping")
		}
	}
	return admitted, total
}
