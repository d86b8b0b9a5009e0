// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package transfer

import (
	"os"
	"path/filepath"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&FastqSuite{})

type FastqSuite struct{}

func (s *FastqSuite) TestFastqSizesFromCache(c *check.C) {
	dir := c.MkDir()
	writeFastqInfo(c, dir, map[string]int64{
		"SRR628721_1.fastq.gz": 266348960,
		"SRR628721_2.fastq.gz": 241971266,
	})
	size, err := FastqSizes(testLogger(), dir)
	c.Assert(err, check.IsNil)
	c.Check(size, check.Equals, int64(266348960+241971266))
}

func (s *FastqSuite) TestFastqSizesCreatesCache(c *check.C) {
	dir := c.MkDir()
	c.Assert(os.WriteFile(filepath.Join(dir, "SRR1_1.fastq.gz"), make([]byte, 300), 0666), check.IsNil)
	c.Assert(os.WriteFile(filepath.Join(dir, "SRR1_2.fastq.gz"), make([]byte, 700), 0666), check.IsNil)
	c.Assert(os.WriteFile(filepath.Join(dir, "unrelated.txt"), make([]byte, 9), 0666), check.IsNil)

	size, err := FastqSizes(testLogger(), dir)
	c.Assert(err, check.IsNil)
	c.Check(size, check.Equals, int64(1000))

	// cache was created, and is preferred over re-globbing: the
	// answer stays stable after the fastq.gz files are cleaned up
	_, err = os.Stat(filepath.Join(dir, "fq_gzs_info.yaml"))
	c.Check(err, check.IsNil)
	c.Assert(os.Remove(filepath.Join(dir, "SRR1_1.fastq.gz")), check.IsNil)
	size, err = FastqSizes(testLogger(), dir)
	c.Assert(err, check.IsNil)
	c.Check(size, check.Equals, int64(1000))
}

func (s *FastqSuite) TestFastqSizesNoFiles(c *check.C) {
	dir := c.MkDir()
	size, err := FastqSizes(testLogger(), dir)
	c.Assert(err, check.IsNil)
	c.Check(size, check.Equals, int64(0))
}
