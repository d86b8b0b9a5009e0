// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package transfer

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"git.bcgsc.ca/rsempipeline.git/lib/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

var gsePathRe = regexp.MustCompile(`GSE\d+$`)

// SelectToTransfer walks the local output tree and greedily admits
// finished samples whose projected remote footprint fits the
// remaining budget. Candidates are visited in lexical path order, so
// for the same tree and budget the admitted subset and its order are
// identical on every run.
//
// A sample is transfer-eligible once every raw input has its
// sra2fastq flag and its submit script has been generated; samples
// already in the transferred set are excluded permanently. Like the
// processing selector, a candidate that does not fit is skipped and
// the scan continues.
//
// The returned keys are sample directories relative to localTop, the
// same form the ledger records; the int64 is the admitted samples'
// total projected usage.
func SelectToTransfer(logger logrus.FieldLogger, localTop string, transferred map[string]bool, budget int64, ratio float64) ([]string, int64, error) {
	if budget <= 0 {
		logger.WithField("budget", budget).Warn("no space available on remote host, admitting nothing")
		return nil, 0, nil
	}
	var admitted []string
	var total int64
	err := filepath.WalkDir(localTop, func(dir string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || !gsmDirPath(dir) {
			return nil
		}
		key, err := filepath.Rel(localTop, dir)
		if err != nil {
			return err
		}
		logger := logger.WithField("sample", key)
		if transferred[key] {
			logger.Debug("already transferred, skipping")
			return fs.SkipDir
		}
		inputs, err := pipeline.RawInputs(dir)
		if err != nil {
			logger.Debug("no raw input metadata yet, skipping")
			return fs.SkipDir
		}
		if !pipeline.ConvertDone(dir, inputs) {
			logger.Debug("sra2fastq not completed, skipping")
			return fs.SkipDir
		}
		if _, err := os.Stat(filepath.Join(dir, pipeline.SubmitScriptBasename)); err != nil {
			logger.Warn("submit script missing, skipping")
			return fs.SkipDir
		}
		size, err := FastqSizes(logger, dir)
		if err != nil {
			logger.WithError(err).Warn("cannot determine fastq.gz sizes, skipping")
			return fs.SkipDir
		}
		projected := pipeline.EstimateUsage(size, ratio)
		if projected < budget {
			budget -= projected
			total += projected
			logger.WithFields(logrus.Fields{
				"projected":       humanize.IBytes(uint64(projected)),
				"remainingBudget": humanize.IBytes(uint64(budget)),
			}).Info("admitted for transfer")
			admitted = append(admitted, key)
		} else {
			logger.WithFields(logrus.Fields{
				"projected":       humanize.IBytes(uint64(projected)),
				"remainingBudget": humanize.IBytes(uint64(budget)),
			}).Debug("does not fit remote budget, skipping")
		}
		return fs.SkipDir
	})
	if err != nil {
		return nil, 0, err
	}
	return admitted, total, nil
}

// gsmDirPath reports whether dir looks like
// .../GSExxx/<species>/GSMxxx.
func gsmDirPath(dir string) bool {
	if !gsmRe.MatchString(filepath.Base(dir)) {
		return false
	}
	gsePath := filepath.Dir(filepath.Dir(dir))
	return gsePathRe.MatchString(filepath.Base(gsePath))
}
