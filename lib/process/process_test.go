// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"git.bcgsc.ca/rsempipeline.git/lib/config"
	"git.bcgsc.ca/rsempipeline.git/lib/pipeline"
	"git.bcgsc.ca/rsempipeline.git/lib/runlock"
	"github.com/sirupsen/logrus"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&ControllerSuite{})

type ControllerSuite struct{}

// fakeDF writes an executable script reporting the given free space
// (in KiB) in df -k -P format.
func fakeDF(c *check.C, freeKiB int64) string {
	path := filepath.Join(c.MkDir(), "df")
	script := fmt.Sprintf("#!/bin/sh\n"+
		"echo 'Filesystem 1024-blocks Used Available Capacity Mounted on'\n"+
		"echo '/dev/sda1 16106127360 12607690752 %d 79%% /'\n", freeKiB)
	c.Assert(os.WriteFile(path, []byte(script), 0755), check.IsNil)
	return path
}

func (s *ControllerSuite) controller(c *check.C, top string, freeKiB int64) (*Controller, *bytes.Buffer) {
	cfg := &config.Config{
		LocalTopOutdir:  top,
		LocalDFCommand:  fakeDF(c, freeKiB),
		LocalMaxUsage:   1 << 40,
		SRAToUsageRatio: 1.0,
	}
	var out bytes.Buffer
	logger := logrus.New()
	logger.Level = logrus.DebugLevel
	return &Controller{Config: cfg, Logger: logger, Output: &out}, &out
}

func stubSample(c *check.C, top, gse, gsm string, size int64) *pipeline.Sample {
	samp := &pipeline.Sample{Name: gsm, Series: gse, Species: "homo_sapiens"}
	samp.GenOutdir(pipeline.RSEMOutdir(top))
	c.Assert(os.MkdirAll(samp.Outdir, 0777), check.IsNil)
	info := fmt.Sprintf("- SRX1/SRR100/SRR100.sra:\n    size: %d\n    readable_size: %d B\n", size, size)
	c.Assert(os.WriteFile(filepath.Join(samp.Outdir, pipeline.SRAInfoBasename), []byte(info), 0666), check.IsNil)
	return samp
}

func (s *ControllerSuite) TestCycleAdmitsAndReportsSamples(c *check.C) {
	top := c.MkDir()
	samp1 := stubSample(c, top, "GSE10000", "GSM1", 100)
	samp2 := stubSample(c, top, "GSE10000", "GSM2", 200)
	c.Assert(os.WriteFile(filepath.Join(samp2.Outdir, "SRR100.sra.download.COMPLETE"), nil, 0666), check.IsNil)
	c.Assert(os.WriteFile(filepath.Join(samp2.Outdir, "SRR100.sra.sra2fastq.COMPLETE"), nil, 0666), check.IsNil)
	c.Assert(os.WriteFile(filepath.Join(samp2.Outdir, pipeline.SubmitScriptBasename), nil, 0666), check.IsNil)
	c.Assert(os.WriteFile(filepath.Join(samp2.Outdir, pipeline.AnalysisDoneBasename), nil, 0666), check.IsNil)

	ctrl, out := s.controller(c, top, 1048576) // 1 GiB free
	ctrl.Samples = []*pipeline.Sample{samp1, samp2}

	stats, err := ctrl.RunCycle(context.Background())
	c.Assert(err, check.IsNil)
	c.Check(stats.FreeSpace, check.Equals, int64(1048576)*1024)
	c.Check(stats.Admitted, check.Equals, 1)
	c.Check(stats.AdmittedBytes, check.Equals, int64(100))
	c.Check(out.String(), check.Equals, "GSE10000/GSM1\n")

	// lock was released
	_, err = os.Stat(filepath.Join(top, LockBasename))
	c.Check(os.IsNotExist(err), check.Equals, true)
}

func (s *ControllerSuite) TestCycleCreatesOutdirs(c *check.C) {
	top := c.MkDir()
	samp := &pipeline.Sample{Name: "GSM1", Series: "GSE10000", Species: "homo_sapiens"}

	ctrl, out := s.controller(c, top, 1048576)
	ctrl.Samples = []*pipeline.Sample{samp}

	stats, err := ctrl.RunCycle(context.Background())
	c.Assert(err, check.IsNil)
	fi, err := os.Stat(samp.Outdir)
	c.Assert(err, check.IsNil)
	c.Check(fi.IsDir(), check.Equals, true)

	// metadata still missing, so the sample is skipped
	c.Check(stats.Admitted, check.Equals, 0)
	c.Check(out.String(), check.Equals, "")
}

func (s *ControllerSuite) TestExhaustedBudgetAdmitsNothing(c *check.C) {
	top := c.MkDir()
	samp := stubSample(c, top, "GSE10000", "GSM1", 100)

	ctrl, out := s.controller(c, top, 1048576)
	ctrl.Config.LocalMaxUsage = 1 // budget <= 0 after measured usage
	ctrl.Samples = []*pipeline.Sample{samp}

	stats, err := ctrl.RunCycle(context.Background())
	c.Assert(err, check.IsNil)
	c.Check(stats.Admitted, check.Equals, 0)
	c.Check(out.String(), check.Equals, "")
}

func (s *ControllerSuite) TestIgnoreDiskUsageRule(c *check.C) {
	top := c.MkDir()
	samp := stubSample(c, top, "GSE10000", "GSM1", 100)

	ctrl, out := s.controller(c, top, 1048576)
	ctrl.Config.LocalMaxUsage = 1
	ctrl.IgnoreDiskUsageRule = true
	ctrl.Samples = []*pipeline.Sample{samp}

	stats, err := ctrl.RunCycle(context.Background())
	c.Assert(err, check.IsNil)
	c.Check(stats.Admitted, check.Equals, 1)
	c.Check(out.String(), check.Equals, "GSE10000/GSM1\n")
}

func (s *ControllerSuite) TestAlreadyLockedHasNoSideEffects(c *check.C) {
	top := c.MkDir()
	samp := &pipeline.Sample{Name: "GSM1", Series: "GSE10000", Species: "homo_sapiens"}

	ctrl, out := s.controller(c, top, 1048576)
	ctrl.Samples = []*pipeline.Sample{samp}

	lock, err := runlock.Acquire(filepath.Join(top, LockBasename))
	c.Assert(err, check.IsNil)
	defer lock.Release()

	_, err = ctrl.RunCycle(context.Background())
	c.Check(errors.Is(err, runlock.ErrAlreadyLocked), check.Equals, true)
	c.Check(out.String(), check.Equals, "")
	_, err = os.Stat(pipeline.RSEMOutdir(top))
	c.Check(os.IsNotExist(err), check.Equals, true)
}
