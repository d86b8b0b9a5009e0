// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pipeline

import (
	"math"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&EstimatorSuite{})

type EstimatorSuite struct{}

func (s *EstimatorSuite) TestEstimateUsage(c *check.C) {
	c.Check(EstimateUsage(0, 1.5), check.Equals, int64(0))
	c.Check(EstimateUsage(1000, 1.5), check.Equals, int64(1500))
	c.Check(EstimateUsage(1000000000, 1.5), check.Equals, int64(1500000000))
	c.Check(EstimateUsage(500000000, 1.5), check.Equals, int64(750000000))
	c.Check(EstimateUsage(100, 0.5), check.Equals, int64(50))
}

func (s *EstimatorSuite) TestOverflowSaturates(c *check.C) {
	// A projection too big for int64 must stay a huge positive
	// number (so every finite budget rejects it), never wrap
	// negative.
	c.Check(EstimateUsage(math.MaxInt64, 2.5), check.Equals, int64(math.MaxInt64))
	c.Check(EstimateUsage(math.MaxInt64, 1.0), check.Equals, int64(math.MaxInt64))
}

func (s *EstimatorSuite) TestNegativeRawSizePanics(c *check.C) {
	c.Check(func() { EstimateUsage(-1, 1.5) }, check.PanicMatches, `EstimateUsage called with negative raw size -1`)
}

func (s *EstimatorSuite) TestRawTotal(c *check.C) {
	c.Check(RawTotal(nil), check.Equals, int64(0))
	c.Check(RawTotal([]RawInput{{Size: 3}, {Size: 4}}), check.Equals, int64(7))
}
