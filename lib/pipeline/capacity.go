// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pipeline

import (
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/shlex"
)

// FreeSpace runs the configured df command (e.g. "df -k -P /data")
// and returns the filesystem's available space in bytes.
func FreeSpace(dfCommand string) (int64, error) {
	args, err := shlex.Split(dfCommand)
	if err != nil || len(args) == 0 {
		return 0, fmt.Errorf("unusable df command %q: %v", dfCommand, err)
	}
	out, err := exec.Command(args[0], args[1:]...).Output()
	if err != nil {
		return 0, fmt.Errorf("%q: %s", dfCommand, err)
	}
	free, err := ParseDFOutput(out)
	if err != nil {
		return 0, fmt.Errorf("%q: %s", dfCommand, err)
	}
	return free, nil
}

// ParseDFOutput extracts the "Available" column from POSIX df -k -P
// output:
//
//	Filesystem     1024-blocks      Used Available Capacity Mounted on
//	/dev/analysis  16106127360 126076907 349843660      79% /extscratch
func ParseDFOutput(out []byte) (int64, error) {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("df output too short: %q", string(out))
	}
	fields := strings.Fields(lines[1])
	if len(fields) < 4 {
		return 0, fmt.Errorf("cannot find Available column in df output line %q", lines[1])
	}
	kb, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse Available column %q: %s", fields[3], err)
	}
	return kb * 1024, nil
}

// DiskUsage walks dir and returns the total size of regular files
// under it. Local usage is measured, not estimated, because only one
// controller writes to the local output tree at a time.
func DiskUsage(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// AvailableToUse derives the budget available for new or incomplete
// local work: min(maxUsage, freeSpace) - currentUsage - minFree. The
// result may be negative; callers treat budget <= 0 as "admit
// nothing", not as an error.
func AvailableToUse(maxUsage, freeSpace, currentUsage, minFree int64) int64 {
	ceiling := maxUsage
	if freeSpace < ceiling {
		ceiling = freeSpace
	}
	return ceiling - currentUsage - minFree
}
