// Package procrunner exposes two subprocess primitives: a synchronous
// runCommand and a streaming spawnProcess, grounded
// on fentz26-Neona's internal/connectors/localexec/localexec.go
// (bytes.Buffer capture, *exec.ExitError code extraction) and on
// long-lived supervision patterns from 3leaps-gonimbus's
// pkg/jobregistry/executor.go.
package procrunner

import (
	"bytes"
	"context"
	"io"
	"os/exec"

	"github.com/Hey-Diga/imploid/internal/imploiderr"
)

// Options configures how a child process is spawned.
type Options struct {
	Cwd   string
	Env   []string
	Stdin io.Reader
}

// Result is the outcome of a synchronous runCommand invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// RunCommand synchronously runs argv to completion, fully capturing both
// streams. It fails with *imploiderr.SpawnError if the binary cannot be
// started at all; a non-zero exit is reported via ExitCode, not an error.
func RunCommand(ctx context.Context, argv []string, opts Options) (Result, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Cwd
	cmd.Env = opts.Env
	cmd.Stdin = opts.Stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return Result{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}, nil
		}
		return Result{}, &imploiderr.SpawnError{Argv: argv, Cause: err}
	}

	return Result{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// Handle supervises a long-lived child spawned by SpawnProcess.
type Handle struct {
	cmd    *exec.Cmd
	exited chan int
}

// SpawnProcess starts a long-lived child with streaming stdout/stderr
// readers. The caller must drain both readers concurrently: the runner
// itself never buffers them, to avoid pipe back-pressure deadlock (spec
// §4.1 "Guarantees").
func SpawnProcess(argv []string, opts Options) (*Handle, io.ReadCloser, io.ReadCloser, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Cwd
	cmd.Env = opts.Env
	cmd.Stdin = opts.Stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, &imploiderr.SpawnError{Argv: argv, Cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, &imploiderr.SpawnError{Argv: argv, Cause: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, &imploiderr.SpawnError{Argv: argv, Cause: err}
	}

	h := &Handle{cmd: cmd, exited: make(chan int, 1)}
	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		h.exited <- code
	}()

	return h, stdout, stderr, nil
}

// Exited yields the child's exit code once it has terminated. Safe to
// call from exactly one goroutine; the channel is closed-over, not
// re-sent.
func (h *Handle) Exited() <-chan int {
	return h.exited
}

// Kill sends a terminating signal to the child and returns promptly; it
// does not wait for the process to actually exit.
func (h *Handle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// PID returns the child's process id.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}
