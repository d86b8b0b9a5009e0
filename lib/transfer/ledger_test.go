// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package transfer

import (
	"os"
	"path/filepath"
	"strings"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&LedgerSuite{})

type LedgerSuite struct{}

func (s *LedgerSuite) TestMissingFileIsEmptyLedger(c *check.C) {
	ledger := &Ledger{Path: filepath.Join(c.MkDir(), LedgerBasename)}
	keys, err := ledger.Transferred()
	c.Assert(err, check.IsNil)
	c.Check(keys, check.HasLen, 0)
}

func (s *LedgerSuite) TestAppendAndRead(c *check.C) {
	ledger := &Ledger{Path: filepath.Join(c.MkDir(), LedgerBasename)}
	batch1 := []string{
		"rsem_output/GSE1/homo_sapiens/GSM1",
		"rsem_output/GSE1/homo_sapiens/GSM2",
	}
	c.Assert(ledger.Append(batch1), check.IsNil)
	c.Assert(ledger.Append([]string{"rsem_output/GSE2/mus_musculus/GSM3"}), check.IsNil)

	keys, err := ledger.Transferred()
	c.Assert(err, check.IsNil)
	c.Check(keys, check.HasLen, 3)
	for _, key := range append(batch1, "rsem_output/GSE2/mus_musculus/GSM3") {
		c.Check(keys[key], check.Equals, true)
	}

	// append-only: earlier entries survive verbatim, each batch
	// preceded by a timestamp comment
	buf, err := os.ReadFile(ledger.Path)
	c.Assert(err, check.IsNil)
	lines := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	c.Assert(lines, check.HasLen, 5)
	c.Check(lines[0], check.Matches, `# \d\d-\d\d-\d\d \d\d:\d\d:\d\d`)
	c.Check(lines[1], check.Equals, batch1[0])
	c.Check(lines[2], check.Equals, batch1[1])
	c.Check(lines[3], check.Matches, `# .*`)
	c.Check(lines[4], check.Equals, "rsem_output/GSE2/mus_musculus/GSM3")
}
