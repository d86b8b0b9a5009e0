// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package sshexecutor runs commands on the remote analysis host over
// a long-lived multiplexed SSH session, authenticating with the
// operator's private key.
package sshexecutor

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// An Executor executes shell commands on a remote host. It sets up
// its connection lazily, on first use, and reconnects automatically
// after errors.
//
// The remote host key is not verified: the transfer controller talks
// to a single operator-configured host, the same trust model as the
// rsync jobs it drives.
//
// An Executor must not be copied.
type Executor struct {
	Host           string
	Port           string // "" means "22"
	User           string
	PrivateKeyFile string // "~" prefix is expanded

	client      *ssh.Client
	clientErr   error
	clientOnce  sync.Once // initialized private state
	clientSetup chan bool // len>0 while client setup is in progress
}

// Execute runs cmd on the remote host and returns its stdout and
// stderr. If an existing connection is not usable, it sets up a new
// one.
func (exr *Executor) Execute(cmd string) ([]byte, []byte, error) {
	session, err := exr.newSession()
	if err != nil {
		return nil, nil, err
	}
	defer session.Close()
	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	err = session.Run(cmd)
	return stdout.Bytes(), stderr.Bytes(), err
}

// Close shuts down any active connection.
func (exr *Executor) Close() {
	// Ensure exr is initialized
	exr.sshClient(false)

	exr.clientSetup <- true
	if exr.client != nil {
		defer exr.client.Close()
	}
	exr.client, exr.clientErr = nil, errors.New("closed")
	<-exr.clientSetup
}

// Create a new SSH session. If session setup fails or the SSH client
// hasn't been setup yet, setup a new SSH client and try again.
func (exr *Executor) newSession() (*ssh.Session, error) {
	try := func(create bool) (*ssh.Session, error) {
		client, err := exr.sshClient(create)
		if err != nil {
			return nil, err
		}
		return client.NewSession()
	}
	session, err := try(false)
	if err != nil {
		session, err = try(true)
	}
	return session, err
}

// Get the latest SSH client. If another goroutine is in the process
// of setting one up, wait for it to finish and return its result (or
// the last successfully setup client, if it fails).
func (exr *Executor) sshClient(create bool) (*ssh.Client, error) {
	exr.clientOnce.Do(func() {
		exr.clientSetup = make(chan bool, 1)
		exr.clientErr = errors.New("client not yet created")
	})
	defer func() { <-exr.clientSetup }()
	select {
	case exr.clientSetup <- true:
		if create {
			client, err := exr.setupSSHClient()
			if err == nil || exr.client == nil {
				if exr.client != nil {
					// Hang up the previous
					// (non-working) client
					go exr.client.Close()
				}
				exr.client, exr.clientErr = client, err
			}
			if err != nil {
				return nil, err
			}
		}
	default:
		// Another goroutine is doing the above case. Wait
		// for it to finish and return whatever it leaves in
		// exr.client.
		exr.clientSetup <- true
	}
	return exr.client, exr.clientErr
}

// Create a new SSH client.
func (exr *Executor) setupSSHClient() (*ssh.Client, error) {
	signer, err := loadSigner(exr.PrivateKeyFile)
	if err != nil {
		return nil, err
	}
	port := exr.Port
	if port == "" {
		port = "22"
	}
	return ssh.Dial("tcp", net.JoinHostPort(exr.Host, port), &ssh.ClientConfig{
		User: exr.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         time.Minute,
	})
}

func loadSigner(keyfile string) (ssh.Signer, error) {
	if keyfile == "~" || len(keyfile) > 1 && keyfile[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		keyfile = filepath.Join(home, keyfile[1:])
	}
	buf, err := os.ReadFile(keyfile)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(buf)
}
