// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pipeline

import (
	"os"
	"path/filepath"
)

// State classifies how far a sample has progressed through the local
// pipeline, based purely on the flag files present in its output
// directory.
type State int

const (
	// No raw input has finished downloading (or the sample's size
	// metadata is missing, making it indeterminate).
	NotStarted State = iota
	// Some, but not all, raw inputs have download flags.
	DownloadIncomplete
	// All downloads done; some sra2fastq conversion flags missing.
	ConvertIncomplete
	// All conversions done; 0_submit.sh has not been generated.
	SubmitScriptMissing
	// Submit script present; rsem.COMPLETE missing.
	AnalysisIncomplete
	// Everything done. The only state excluded from processing
	// admission.
	FullyProcessed
)

var stateName = map[State]string{
	NotStarted:          "NotStarted",
	DownloadIncomplete:  "DownloadIncomplete",
	ConvertIncomplete:   "ConvertIncomplete",
	SubmitScriptMissing: "SubmitScriptMissing",
	AnalysisIncomplete:  "AnalysisIncomplete",
	FullyProcessed:      "FullyProcessed",
}

func (st State) String() string {
	return stateName[st]
}

// Classify reads the sample's raw-input metadata and reports its
// pipeline state. A sample whose metadata file is missing reports
// NotStarted rather than an error.
func Classify(s *Sample) State {
	inputs, err := RawInputs(s.Outdir)
	if err != nil {
		return NotStarted
	}
	return classify(s.Outdir, inputs)
}

// classify checks the stages strictly in order: a later stage is only
// considered once every raw input has confirmed all earlier stages
// (all-of semantics, not any-of).
func classify(dir string, inputs []RawInput) State {
	if len(inputs) == 0 {
		return NotStarted
	}
	ndownload := countFlags(dir, inputs, downloadFlagSuffix)
	if ndownload == 0 {
		return NotStarted
	} else if ndownload < len(inputs) {
		return DownloadIncomplete
	}
	if countFlags(dir, inputs, convertFlagSuffix) < len(inputs) {
		return ConvertIncomplete
	}
	if !exists(filepath.Join(dir, SubmitScriptBasename)) {
		return SubmitScriptMissing
	}
	if !exists(filepath.Join(dir, AnalysisDoneBasename)) {
		return AnalysisIncomplete
	}
	return FullyProcessed
}

func countFlags(dir string, inputs []RawInput, suffix string) int {
	n := 0
	for _, in := range inputs {
		if exists(filepath.Join(dir, filepath.Base(in.Name)+suffix)) {
			n++
		}
	}
	return n
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ConvertDone reports whether every raw input of the sample directory
// has its sra2fastq flag -- the gate for transfer eligibility.
func ConvertDone(dir string, inputs []RawInput) bool {
	return len(inputs) > 0 && countFlags(dir, inputs, convertFlagSuffix) == len(inputs)
}
