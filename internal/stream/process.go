// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package stream

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/rapidaai/streamhub/pkg/commons"
)

// process wraps one supervised child. The argument vector is passed to the
// OS directly; nothing is shell-interpolated.
type process struct {
	name string
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// startProcess launches bin with args, working in dir, and begins reaping
// it in the background.
func startProcess(logger commons.Logger, name, bin string, args []string, dir string) (*process, error) {
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start %s (%s): %w", name, bin, err)
	}
	logger.Debugw("child process started",
		"process", name, "bin", bin, "pid", cmd.Process.Pid)

	p := &process{
		name: name,
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// alive reports whether the child has not yet been reaped.
func (p *process) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// waitExit blocks until the child exits or the grace period elapses.
// Returns true when the child is still running after the wait.
func (p *process) waitExit(grace time.Duration) bool {
	select {
	case <-p.done:
		return false
	case <-time.After(grace):
		return true
	}
}

// stop terminates the child: graceful signal first, then a hard kill once
// the timeout passes. Idempotent for already-exited children.
func (p *process) stop(logger commons.Logger, timeout time.Duration) {
	if !p.alive() {
		return
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logger.Debugw("could not signal child, killing it",
			"process", p.name, "error", err.Error())
		_ = p.cmd.Process.Kill()
	}
	select {
	case <-p.done:
	case <-time.After(timeout):
		logger.Warnw("child ignored graceful termination, killing it",
			"process", p.name, "pid", p.cmd.Process.Pid)
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}

// pid returns the child's OS process id.
func (p *process) pid() int {
	return p.cmd.Process.Pid
}
