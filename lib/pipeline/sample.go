// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package pipeline tracks per-sample progress of the RSEM processing
// pipeline and decides, under a disk-capacity budget, which samples
// are admitted into the current processing cycle.
//
// The pipeline stages themselves (download, sra2fastq, rsem) are run
// by external tools; they record progress by writing flag files under
// each sample's output directory, and this package only reads them.
package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/sirupsen/logrus"
)

// Filesystem artifacts written by the external pipeline tools. Flag
// files mean "this stage finished"; their contents are irrelevant.
const (
	RSEMOutputBasename   = "rsem_output"
	SRAInfoBasename      = "sras_info.yaml"
	FastqInfoBasename    = "fq_gzs_info.yaml"
	SubmitScriptBasename = "0_submit.sh"
	AnalysisDoneBasename = "rsem.COMPLETE"

	downloadFlagSuffix = ".download.COMPLETE"
	convertFlagSuffix  = ".sra2fastq.COMPLETE"
)

// A Sample is one GSM: the unit of admission. Its identity (Series,
// Name) never changes after creation.
type Sample struct {
	Name    string // GSM accession, e.g. "GSM1048945"
	Series  string // parent GSE accession, e.g. "GSE42735"
	Species string // e.g. "homo_sapiens"
	Outdir  string // absolute output directory, set by GenOutdir
}

func (s *Sample) String() string {
	return s.Series + "/" + s.Name
}

// GenOutdir computes and records the sample's output directory under
// the given rsem output directory.
func (s *Sample) GenOutdir(rsemOutdir string) {
	s.Outdir = filepath.Join(rsemOutdir, s.Series, s.Species, s.Name)
}

// RSEMOutdir returns the rsem output directory under the given top
// output directory.
func RSEMOutdir(topOutdir string) string {
	return filepath.Join(topOutdir, RSEMOutputBasename)
}

// A RawInput describes one raw input file (an .sra) of a sample: its
// path relative to the sample directory, and its size in bytes as
// reported by the upstream archive.
type RawInput struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ReadableSize string `json:"readable_size"`
}

// A MetadataMissingError reports that a sample's raw-input size
// metadata file is absent or unusable, which makes the sample's state
// indeterminate for this cycle.
type MetadataMissingError struct {
	Path string
	Err  error
}

func (e *MetadataMissingError) Error() string {
	return fmt.Sprintf("size metadata unavailable: %s: %s", e.Path, e.Err)
}

func (e *MetadataMissingError) Unwrap() error { return e.Err }

// RawInputs reads the raw-input descriptors of the sample whose
// output directory is dir, from its sras_info.yaml. The file is a
// list of single-key maps, written by the collaborator that queried
// the archive:
//
//	- SRX029242/SRR070177/SRR070177.sra:
//	    size: 1780076810
//	    readable_size: 1.7 GB
func RawInputs(dir string) ([]RawInput, error) {
	return readSizeInfo(filepath.Join(dir, SRAInfoBasename))
}

func readSizeInfo(path string) ([]RawInput, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, &MetadataMissingError{Path: path, Err: err}
	}
	var entries []map[string]struct {
		Size         int64  `json:"size"`
		ReadableSize string `json:"readable_size"`
	}
	if err := yaml.Unmarshal(buf, &entries); err != nil {
		return nil, &MetadataMissingError{Path: path, Err: err}
	}
	var inputs []RawInput
	for _, entry := range entries {
		for name, info := range entry {
			inputs = append(inputs, RawInput{
				Name:         name,
				Size:         info.Size,
				ReadableSize: info.ReadableSize,
			})
		}
	}
	return inputs, nil
}

// RawTotal returns the total size of the given raw inputs.
func RawTotal(inputs []RawInput) int64 {
	var total int64
	for _, in := range inputs {
		total += in.Size
	}
	return total
}

// LoadManifest reads a sample manifest: CSV rows of
// "GSE,species,GSM", with blank lines and #-comments ignored. This is
// the already-parsed product of the (out of scope) SOFT/isamp
// intersection step.
func LoadManifest(rdr io.Reader) ([]*Sample, error) {
	var samples []*Sample
	csvr := csv.NewReader(rdr)
	csvr.FieldsPerRecord = -1
	csvr.Comment = '#'
	for {
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) != 3 {
			return nil, fmt.Errorf("manifest row %q: want 3 fields (GSE,species,GSM), got %d", strings.Join(rec, ","), len(rec))
		}
		samples = append(samples, &Sample{
			Series:  strings.TrimSpace(rec[0]),
			Species: strings.TrimSpace(rec[1]),
			Name:    strings.TrimSpace(rec[2]),
		})
	}
	return samples, nil
}

// LoadManifestFile is LoadManifest on the named file.
func LoadManifestFile(path string) ([]*Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	samples, err := LoadManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", path, err)
	}
	return samples, nil
}

// InitOutdirs assigns each sample's output directory under topOutdir
// and creates any that do not exist yet.
func InitOutdirs(logger logrus.FieldLogger, topOutdir string, samples []*Sample) error {
	outdir := RSEMOutdir(topOutdir)
	for _, sample := range samples {
		sample.GenOutdir(outdir)
		if _, err := os.Stat(sample.Outdir); os.IsNotExist(err) {
			logger.WithField("dir", sample.Outdir).Info("creating directory")
			if err := os.MkdirAll(sample.Outdir, 0777); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}
