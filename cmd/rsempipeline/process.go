// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"git.bcgsc.ca/rsempipeline.git/lib/cmd"
	"git.bcgsc.ca/rsempipeline.git/lib/config"
	"git.bcgsc.ca/rsempipeline.git/lib/pipeline"
	"git.bcgsc.ca/rsempipeline.git/lib/process"
	"git.bcgsc.ca/rsempipeline.git/lib/service"
	"git.bcgsc.ca/rsempipeline.git/sdk/go/ctxlog"
)

var processCommand cmd.RunFunc = runProcess

func runProcess(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := ctxlog.New(stderr, "text", "info")

	flags := flag.NewFlagSet(prog, flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(stderr, `
Usage: %s [options]

Reads the sample manifest, measures free space and current usage under
the local top output directory, and admits as many unprocessed samples
as fit the disk usage rule. Admitted samples are printed to stdout, one
GSE/GSM per line, for the pipeline executor.

Options:
`, prog)
		flags.PrintDefaults()
	}
	configPath := flags.String("config", "", "`path` of YAML configuration file (required)")
	manifestPath := flags.String("manifest", "", "`path` of CSV sample manifest (required)")
	once := flags.Bool("once", true, "run one admission cycle and exit (use -once=false to run every RunPeriod and on SIGUSR1)")
	ignore := flags.Bool("ignore-disk-usage-rule", false, "admit every unprocessed sample regardless of the disk budget")
	getVersion := flags.Bool("version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *getVersion {
		return cmd.Version(version)(prog, nil, stdin, stdout, stderr)
	}
	if *configPath == "" || *manifestPath == "" {
		flags.Usage()
		return 2
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		logger.Error(err)
		return 1
	}
	if err := cfg.CheckLocal(); err != nil {
		logger.Error(err)
		return 1
	}
	logger = ctxlog.New(stderr, cfg.Log.Format, cfg.Log.Level)

	samples, err := pipeline.LoadManifestFile(*manifestPath)
	if err != nil {
		logger.Error(err)
		return 1
	}
	logger.WithField("samples", len(samples)).Info("manifest loaded")

	ctrl := &process.Controller{
		Config:              cfg,
		Logger:              logger,
		Samples:             samples,
		IgnoreDiskUsageRule: *ignore,
		Output:              stdout,
	}
	runner := &service.Runner{Logger: logger, Cycle: ctrl.RunCycle, Period: cfg.Period()}
	if cfg.ManagementAddr != "" {
		runner.Metrics = service.NewMetrics("process")
		runner.Metrics.Serve(cfg.ManagementAddr, logger)
	}

	ctx := ctxlog.Context(context.Background(), logger)
	if *once {
		return exitCode(logger, runner.RunOnce(ctx))
	}
	return exitCode(logger, runner.RunForever(ctx, nil))
}
