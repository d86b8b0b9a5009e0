// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&SelectorSuite{})

type SelectorSuite struct{}

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel
	return logger
}

// stubSamples creates one sample per raw size, in order, each with a
// single raw input of that size.
func stubSamples(c *check.C, top string, sizes []int64) []*Sample {
	var samples []*Sample
	for i, size := range sizes {
		gsm := fmt.Sprintf("GSM%07d", i+1)
		samples = append(samples, stubSample(c, top, "GSE10000", gsm, map[string]int64{
			fmt.Sprintf("SRX1/SRR%d/SRR%d.sra", i, i): size,
		}))
	}
	return samples
}

func names(samples []*Sample) []string {
	var out []string
	for _, s := range samples {
		out = append(out, s.Name)
	}
	return out
}

func (s *SelectorSuite) TestGreedyContinuesPastOversizedCandidate(c *check.C) {
	top := c.MkDir()
	samples := stubSamples(c, top, []int64{500, 50, 2000, 10})
	admitted, _ := SelectToProcess(testLogger(), samples, 600, 1.0, false)
	// 2000 does not fit, but the scan continues and 10 does
	c.Check(names(admitted), check.DeepEquals, []string{"GSM0000001", "GSM0000002", "GSM0000004"})
}

func (s *SelectorSuite) TestIdempotentWithoutStateChange(c *check.C) {
	top := c.MkDir()
	samples := stubSamples(c, top, []int64{500, 50, 2000, 10})
	first, _ := SelectToProcess(testLogger(), samples, 600, 1.0, false)
	second, _ := SelectToProcess(testLogger(), samples, 600, 1.0, false)
	c.Check(names(second), check.DeepEquals, names(first))
}

func (s *SelectorSuite) TestNegativeBudgetShortCircuits(c *check.C) {
	// Samples with no metadata at all: evaluating any candidate
	// would log spurious warnings, so a non-positive budget must
	// return before touching them.
	samples := []*Sample{{Name: "GSM1", Series: "GSE1", Outdir: "/nonexistent"}}
	admitted, total := SelectToProcess(testLogger(), samples, 0, 1.5, false)
	c.Check(admitted, check.HasLen, 0)
	c.Check(total, check.Equals, int64(0))
	admitted, _ = SelectToProcess(testLogger(), samples, -12345, 1.5, false)
	c.Check(admitted, check.HasLen, 0)
}

func (s *SelectorSuite) TestFullyProcessedExcluded(c *check.C) {
	top := c.MkDir()
	samples := stubSamples(c, top, []int64{100, 100})
	done := samples[0]
	touch(c, done.Outdir, "SRR0.sra.download.COMPLETE")
	touch(c, done.Outdir, "SRR0.sra.sra2fastq.COMPLETE")
	touch(c, done.Outdir, SubmitScriptBasename)
	touch(c, done.Outdir, AnalysisDoneBasename)
	admitted, _ := SelectToProcess(testLogger(), samples, 1000, 1.0, false)
	c.Check(names(admitted), check.DeepEquals, []string{"GSM0000002"})
}

func (s *SelectorSuite) TestMissingMetadataSkipsSampleOnly(c *check.C) {
	top := c.MkDir()
	samples := stubSamples(c, top, []int64{100})
	orphan := &Sample{Name: "GSM9999999", Series: "GSE10000", Species: "homo_sapiens"}
	orphan.GenOutdir(RSEMOutdir(top))
	admitted, _ := SelectToProcess(testLogger(), append([]*Sample{orphan}, samples...), 1000, 1.0, false)
	c.Check(names(admitted), check.DeepEquals, []string{"GSM0000001"})
}

func (s *SelectorSuite) TestIgnoreBudget(c *check.C) {
	top := c.MkDir()
	samples := stubSamples(c, top, []int64{500, 50, 2000, 10})
	admitted, _ := SelectToProcess(testLogger(), samples, -1, 1.0, true)
	c.Check(admitted, check.HasLen, 4)
}

func (s *SelectorSuite) TestEndToEndScenario(c *check.C) {
	top := c.MkDir()
	samples := stubSamples(c, top, []int64{1000000000, 2000000000, 500000000})
	admitted, total := SelectToProcess(testLogger(), samples, 3000000000, 1.5, false)
	// A projects 1.5e9 and C 0.75e9; B's 3.0e9 exceeds the
	// remaining 1.5e9 and is skipped.
	c.Check(names(admitted), check.DeepEquals, []string{"GSM0000001", "GSM0000003"})
	c.Check(total, check.Equals, int64(2250000000))
}
