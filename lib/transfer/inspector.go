// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package transfer moves finished sample outputs to the remote
// analysis host, under that host's own disk budget. Admission mirrors
// the local processing side, except that remote usage is estimated
// from a snapshot listing rather than measured: other jobs write to
// the remote filesystem concurrently, and there is no cheap exact
// measurement primitive over the ssh transport.
package transfer

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"git.bcgsc.ca/rsempipeline.git/lib/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// A RemoteExecutor runs one shell command on the remote host and
// returns its stdout and stderr. lib/sshexecutor implements it.
type RemoteExecutor interface {
	Execute(cmd string) (stdout, stderr []byte, err error)
}

// A QueryError reports a remote command that failed or returned
// unparsable output. There is no safe partial answer to "how much
// remote space is there", so any QueryError aborts the whole
// admission cycle.
type QueryError struct {
	Cmd string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("remote query %q failed: %s", e.Cmd, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// An Inspector answers capacity questions about the remote host.
type Inspector struct {
	Exec   RemoteExecutor
	Logger logrus.FieldLogger
}

func (insp *Inspector) run(cmd string) ([]string, error) {
	stdout, stderr, err := insp.Exec.Execute(cmd)
	if err != nil {
		if len(stderr) > 0 {
			err = fmt.Errorf("%s (stderr: %q)", err, stderr)
		}
		return nil, &QueryError{Cmd: cmd, Err: err}
	}
	var lines []string
	for _, line := range strings.Split(string(stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// FreeSpace runs the configured df command (e.g. "df -k -P
// /extscratch") on the remote host and returns the available space in
// bytes.
func (insp *Inspector) FreeSpace(dfCommand string) (int64, error) {
	lines, err := insp.run(dfCommand)
	if err != nil {
		return 0, err
	}
	free, err := pipeline.ParseDFOutput([]byte(strings.Join(lines, "\n")))
	if err != nil {
		return 0, &QueryError{Cmd: dfCommand, Err: err}
	}
	return free, nil
}

// RealUsage returns the measured space consumed under dir on the
// remote host. It is reported for operator information only; the
// transfer budget uses EstimatedUsage, which also accounts for space
// that admitted-but-unfinished analyses are going to consume.
func (insp *Inspector) RealUsage(dir string) (int64, error) {
	cmd := "du -s " + dir
	lines, err := insp.run(cmd)
	if err != nil {
		return 0, err
	}
	if len(lines) == 0 {
		return 0, &QueryError{Cmd: cmd, Err: fmt.Errorf("empty du output")}
	}
	// e.g. "3096\t/extscratch/rsem_output"
	fields := strings.Fields(lines[0])
	if len(fields) < 1 {
		return 0, &QueryError{Cmd: cmd, Err: fmt.Errorf("unexpected du output %q", lines[0])}
	}
	kb, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, &QueryError{Cmd: cmd, Err: fmt.Errorf("cannot parse du output %q", lines[0])}
	}
	return kb * 1024, nil
}

// Listing returns every path under dir on the remote host.
func (insp *Inspector) Listing(dir string) ([]string, error) {
	return insp.run("find " + dir)
}

var gsmRe = regexp.MustCompile(`GSM\d+$`)

// EstimatedUsage estimates the space already committed on the remote
// host by sample directories under remoteTop that have started but
// not finished their analysis: directories with a rsem.COMPLETE
// marker are done (their space is about to be reclaimed by cleanup),
// and empty directory placeholders cost nothing. The projection for
// each remaining sample comes from the fastq.gz sizes recorded in the
// mirrored local sample directory, since the controller has no cheap
// remote size primitive.
func (insp *Inspector) EstimatedUsage(remoteTop, localTop string, ratio float64) (int64, error) {
	listing, err := insp.Listing(remoteTop)
	if err != nil {
		return 0, err
	}
	inListing := make(map[string]bool, len(listing))
	for _, p := range listing {
		inListing[p] = true
	}
	sorted := append([]string(nil), listing...)
	sort.Strings(sorted)

	var usage int64
	for _, dir := range sorted {
		if !gsmRe.MatchString(path.Base(dir)) {
			continue
		}
		if inListing[dir+"/"+pipeline.AnalysisDoneBasename] {
			continue
		}
		if !hasChild(dir, sorted) {
			// empty placeholder directory
			continue
		}
		localDir := strings.Replace(dir, remoteTop, localTop, 1)
		size, err := FastqSizes(insp.Logger, localDir)
		if err != nil {
			// Counting the sample as zero would inflate the
			// budget; a wrong usage figure is worse than a
			// skipped cycle.
			return 0, fmt.Errorf("sizing remote sample %s from %s: %s", dir, localDir, err)
		}
		usage += pipeline.EstimateUsage(size, ratio)
	}
	insp.Logger.WithField("estimatedUsage", humanize.IBytes(uint64(usage))).Info("estimated current remote usage (excluding completed samples)")
	return usage, nil
}

// hasChild reports whether the sorted listing contains an entry
// strictly under dir.
func hasChild(dir string, sorted []string) bool {
	prefix := dir + "/"
	i := sort.SearchStrings(sorted, prefix)
	return i < len(sorted) && strings.HasPrefix(sorted[i], prefix)
}
