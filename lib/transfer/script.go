// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package transfer

import (
	"os"
	"os/exec"
	"text/template"

	"github.com/sirupsen/logrus"
)

// Data available to rsync script templates.
type scriptParams struct {
	JobName         string
	Username        string
	Hostname        string
	LocalTopOutdir  string
	RemoteTopOutdir string
	Samples         []string // sample dirs relative to LocalTopOutdir
}

// The builtin rsync script. -R preserves the relative sample paths,
// mirroring the local tree layout on the remote side.
var defaultScript = template.Must(template.New("rsync").Parse(`#!/bin/bash
# {{.JobName}}
set -euo pipefail

cd {{.LocalTopOutdir}}
{{range .Samples}}rsync -rav -R {{.}} {{$.Username}}@{{$.Hostname}}:{{$.RemoteTopOutdir}}/
{{end}}`))

// writeScript renders the transfer script to path and marks it
// executable by its owner. templatePath overrides the builtin
// template when non-empty.
func writeScript(path, templatePath string, params scriptParams) error {
	tmpl := defaultScript
	if templatePath != "" {
		var err error
		tmpl, err = template.ParseFiles(templatePath)
		if err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0700)
	if err != nil {
		return err
	}
	defer f.Close()
	return tmpl.Execute(f, params)
}

// A ScriptRunner executes a rendered transfer script. Tests inject a
// fake; the default runs the script as a child process.
type ScriptRunner interface {
	Run(path string) error
}

// ExecRunner runs the script directly, forwarding its output to the
// logger.
type ExecRunner struct {
	Logger logrus.FieldLogger
}

func (r ExecRunner) Run(path string) error {
	cmd := exec.Command(path)
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		r.Logger.WithField("script", path).Info(string(out))
	}
	return err
}
