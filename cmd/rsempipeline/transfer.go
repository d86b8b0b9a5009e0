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
	"git.bcgsc.ca/rsempipeline.git/lib/service"
	"git.bcgsc.ca/rsempipeline.git/lib/sshexecutor"
	"git.bcgsc.ca/rsempipeline.git/lib/transfer"
	"git.bcgsc.ca/rsempipeline.git/sdk/go/ctxlog"
)

var transferCommand cmd.RunFunc = runTransfer

func runTransfer(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := ctxlog.New(stderr, "text", "info")

	flags := flag.NewFlagSet(prog, flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(stderr, `
Usage: %s [options]

Measures free space and estimated usage on the remote analysis host,
admits as many finished samples as fit the remote disk usage rule, and
transfers them with a generated rsync script. Successful batches are
recorded in the transfer ledger so they are never transferred twice.

Options:
`, prog)
		flags.PrintDefaults()
	}
	configPath := flags.String("config", "", "`path` of YAML configuration file (required)")
	once := flags.Bool("once", true, "run one transfer cycle and exit (use -once=false to run every RunPeriod and on SIGUSR1)")
	getVersion := flags.Bool("version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *getVersion {
		return cmd.Version(version)(prog, nil, stdin, stdout, stderr)
	}
	if *configPath == "" {
		flags.Usage()
		return 2
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		logger.Error(err)
		return 1
	}
	if err := cfg.CheckRemote(); err != nil {
		logger.Error(err)
		return 1
	}
	logger = ctxlog.New(stderr, cfg.Log.Format, cfg.Log.Level)

	exec := &sshexecutor.Executor{
		Host:           cfg.Remote.Host,
		Port:           cfg.Remote.Port,
		User:           cfg.Remote.Username,
		PrivateKeyFile: cfg.Remote.PrivateKeyFile,
	}
	defer exec.Close()

	ctrl := &transfer.Controller{
		Config: cfg,
		Logger: logger,
		Exec:   exec,
		Runner: transfer.ExecRunner{Logger: logger},
	}
	runner := &service.Runner{Logger: logger, Cycle: ctrl.RunCycle, Period: cfg.Period()}
	if cfg.ManagementAddr != "" {
		runner.Metrics = service.NewMetrics("transfer")
		runner.Metrics.Serve(cfg.ManagementAddr, logger)
	}

	ctx := ctxlog.Context(context.Background(), logger)
	if *once {
		return exitCode(logger, runner.RunOnce(ctx))
	}
	return exitCode(logger, runner.RunForever(ctx, nil))
}
