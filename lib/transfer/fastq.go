// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package transfer

import (
	"os"
	"path/filepath"

	"git.bcgsc.ca/rsempipeline.git/lib/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/ghodss/yaml"
	"github.com/sirupsen/logrus"
)

// FastqSizes returns the total size of the sample's fastq.gz files,
// from the fq_gzs_info.yaml cache in the sample directory. A missing
// cache is created by globbing *.fastq.gz, so the sizes stay
// available after the original files are cleaned up locally.
func FastqSizes(logger logrus.FieldLogger, gsmDir string) (int64, error) {
	infoFile := filepath.Join(gsmDir, pipeline.FastqInfoBasename)
	if _, err := os.Stat(infoFile); os.IsNotExist(err) {
		if err := createFastqInfo(logger, infoFile, gsmDir); err != nil {
			return 0, err
		}
	}
	inputs, err := readFastqInfo(infoFile)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, in := range inputs {
		total += in.Size
	}
	return total, nil
}

type sizeEntry map[string]struct {
	Size         int64  `json:"size"`
	ReadableSize string `json:"readable_size"`
}

func readFastqInfo(path string) ([]pipeline.RawInput, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []sizeEntry
	if err := yaml.Unmarshal(buf, &entries); err != nil {
		return nil, err
	}
	var inputs []pipeline.RawInput
	for _, entry := range entries {
		for name, info := range entry {
			inputs = append(inputs, pipeline.RawInput{Name: name, Size: info.Size, ReadableSize: info.ReadableSize})
		}
	}
	return inputs, nil
}

func createFastqInfo(logger logrus.FieldLogger, infoFile, gsmDir string) error {
	fqgzs, err := filepath.Glob(filepath.Join(gsmDir, "*.fastq.gz"))
	if err != nil {
		return err
	}
	var entries []sizeEntry
	for _, fqgz := range fqgzs {
		fi, err := os.Stat(fqgz)
		if err != nil {
			return err
		}
		entries = append(entries, sizeEntry{fqgz: {
			Size:         fi.Size(),
			ReadableSize: humanize.IBytes(uint64(fi.Size())),
		}})
	}
	buf, err := yaml.Marshal(entries)
	if err != nil {
		return err
	}
	if err := os.WriteFile(infoFile, buf, 0666); err != nil {
		return err
	}
	logger.WithField("path", infoFile).Info("written fastq.gz size cache")
	return nil
}
