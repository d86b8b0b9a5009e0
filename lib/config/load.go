// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package config loads the rsempipeline controller configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"time"

	"github.com/ghodss/yaml"
)

// ErrConfigurationInvalid is wrapped by every validation error, so
// callers can distinguish bad configuration from runtime failures.
var ErrConfigurationInvalid = errors.New("configuration invalid")

// Config is the complete controller configuration, as loaded from a
// YAML file. Capacity values accept human-friendly strings like
// "500 GiB" as well as plain byte counts.
type Config struct {
	Log struct {
		Level  string
		Format string
	}

	// Local processing side.
	LocalTopOutdir string
	LocalDFCommand string   // command whose output gives local free space, e.g. "df -k -P /path"
	LocalMaxUsage  ByteSize // ceiling on space used under LocalTopOutdir
	LocalMinFree   ByteSize // reserve that must stay free on the local filesystem

	// Projected peak working-set size of processing one sample,
	// as a multiple of its raw (.sra) input bytes.
	SRAToUsageRatio float64

	// Projected peak working-set size of the remote analysis of
	// one sample, as a multiple of its fastq.gz bytes.
	FastqToUsageRatio float64

	Remote struct {
		Host           string
		Port           string
		Username       string
		PrivateKeyFile string
		TopOutdir      string
		DFCommand      string
		MaxUsage       ByteSize
		MinFree        ByteSize
	}

	// Interval between cycles when running as a service (-once=false).
	RunPeriod Duration

	// Optional address for the prometheus metrics listener, e.g.
	// ":9294". Empty means no metrics server.
	ManagementAddr string

	// Path of an alternate rsync script template for transfer
	// jobs. Empty means the builtin template.
	RsyncTemplate string
}

var defaultYAML = []byte(`
Log:
  Level: info
  Format: text
SRAToUsageRatio: 2.5
FastqToUsageRatio: 5
RunPeriod: 10m
Remote:
  Port: "22"
  PrivateKeyFile: ~/.ssh/id_rsa
`)

// Load reads and decodes a YAML config from rdr, on top of builtin
// defaults.
func Load(rdr io.Reader) (*Config, error) {
	buf, err := ioutil.ReadAll(rdr)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		return nil, fmt.Errorf("loading builtin default config: %s", err)
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigurationInvalid, err)
	}
	return &cfg, nil
}

// LoadFile is Load on the named file.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", path, err)
	}
	return cfg, nil
}

// CheckLocal returns an ErrConfigurationInvalid-wrapped error unless
// every parameter needed by a local processing cycle is usable.
func (cfg *Config) CheckLocal() error {
	if cfg.LocalTopOutdir == "" {
		return badConfig("LocalTopOutdir must be given")
	}
	if cfg.LocalDFCommand == "" {
		return badConfig("LocalDFCommand must be given")
	}
	if cfg.LocalMaxUsage <= 0 {
		return badConfig("LocalMaxUsage must be a positive size, got %d", cfg.LocalMaxUsage)
	}
	if cfg.LocalMinFree < 0 {
		return badConfig("LocalMinFree must not be negative, got %d", cfg.LocalMinFree)
	}
	if cfg.SRAToUsageRatio <= 0 {
		return badConfig("SRAToUsageRatio must be positive, got %v", cfg.SRAToUsageRatio)
	}
	return nil
}

// CheckRemote returns an ErrConfigurationInvalid-wrapped error unless
// every parameter needed by a transfer cycle is usable.
func (cfg *Config) CheckRemote() error {
	if cfg.LocalTopOutdir == "" {
		return badConfig("LocalTopOutdir must be given")
	}
	if cfg.Remote.Host == "" {
		return badConfig("Remote.Host must be given")
	}
	if cfg.Remote.Username == "" {
		return badConfig("Remote.Username must be given")
	}
	if cfg.Remote.TopOutdir == "" {
		return badConfig("Remote.TopOutdir must be given")
	}
	if cfg.Remote.DFCommand == "" {
		return badConfig("Remote.DFCommand must be given")
	}
	if cfg.Remote.MaxUsage <= 0 {
		return badConfig("Remote.MaxUsage must be a positive size, got %d", cfg.Remote.MaxUsage)
	}
	if cfg.Remote.MinFree < 0 {
		return badConfig("Remote.MinFree must not be negative, got %d", cfg.Remote.MinFree)
	}
	if cfg.FastqToUsageRatio <= 0 {
		return badConfig("FastqToUsageRatio must be positive, got %v", cfg.FastqToUsageRatio)
	}
	return nil
}

func badConfig(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfigurationInvalid, fmt.Sprintf(format, args...))
}

// Period returns RunPeriod as a time.Duration, with a sane floor so a
// zero config value cannot make the service spin.
func (cfg *Config) Period() time.Duration {
	if cfg.RunPeriod <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(cfg.RunPeriod)
}
