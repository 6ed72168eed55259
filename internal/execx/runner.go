// Package execx provides the process execution capability used for all
// package, PKI, network and service-control side effects. Everything
// that shells out goes through a Runner so tests can substitute a fake.
package execx

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands. A non-zero exit returns a
// *errors.CommandError carrying the command, exit code and stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands via os/exec on the local host.
type ExecRunner struct {
	logger *logger.Logger

	// Dir, when set, is the working directory for every command.
	Dir string
	// Env, when set, is appended to the inherited environment.
	Env []string
}

// NewRunner creates a new ExecRunner.
func NewRunner(log *logger.Logger) *ExecRunner {
	return &ExecRunner{logger: log.WithComponent("execx")}
}

// Run executes the command and captures its output. The caller's context
// is passed through to os/exec; no additional timeout is applied.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.Command(ctx, name, args, time.Since(start))

	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		result.ExitCode = exitCode
		return result, apperrors.NewCommandError(append([]string{name}, args...), exitCode, result.Stderr, err)
	}

	return result, nil
}
