// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// The rsempipeline command decides, under the configured disk usage
// rule, which samples may enter local processing ("process") and which
// finished samples may be transferred to the remote analysis host
// ("transfer").
package main

import (
	"errors"
	"os"

	"git.bcgsc.ca/rsempipeline.git/lib/cmd"
	"git.bcgsc.ca/rsempipeline.git/lib/runlock"
	"github.com/sirupsen/logrus"
)

var version = "dev"

var handler = cmd.Multi(map[string]cmd.RunFunc{
	"version":   cmd.Version(version),
	"-version":  cmd.Version(version),
	"--version": cmd.Version(version),

	"process":  processCommand,
	"transfer": transferCommand,
})

func main() {
	os.Exit(handler(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// Exit statuses: 0 after a cycle (even one that admitted nothing), 3
// when another cycle already holds the run lock, 1 when a cycle
// aborted.
func exitCode(logger logrus.FieldLogger, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, runlock.ErrAlreadyLocked):
		logger.WithError(err).Warn("declined to run")
		return 3
	default:
		logger.WithError(err).Error("aborted")
		return 1
	}
}
