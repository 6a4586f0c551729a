// Package git runs git commands as child processes.
//
// The combined output of a command is forwarded line by line to a zap
// logger while the command runs. Commands run sequentially, a Runner does not
// start more than one process per method call.
package git

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jburel/snoopycrimecop/internal/logfields"
)

const loggerName = "git"

const defExecutable = "git"

// CommandError is returned when a git process terminated with a nonzero exit
// code.
type CommandError struct {
	Args     []string
	ExitCode int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s: exit code %d", strings.Join(e.Args, " "), e.ExitCode)
}

// Runner executes git commands.
type Runner struct {
	logger     *zap.Logger
	executable string
	env        []string
}

type Option func(*Runner)

// WithEnv sets additional environment variables for all executed
// commands, in the "KEY=value" form.
func WithEnv(env ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// WithExecutable overwrites the path of the git binary.
func WithExecutable(path string) Option {
	return func(r *Runner) {
		r.executable = path
	}
}

func NewRunner(opts ...Option) *Runner {
	r := Runner{
		logger:     zap.L().Named(loggerName),
		executable: defExecutable,
	}

	for _, o := range opts {
		o(&r)
	}

	return &r
}

func (r *Runner) command(ctx context.Context, dir string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, r.executable, args...)
	cmd.Dir = dir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	return cmd
}

// Run executes git with args in dir.
// Stdout and stderr of the process are logged with debug level. When the
// process terminates with a nonzero exit code a *CommandError is returned.
func (r *Runner) Run(ctx context.Context, dir string, args ...string) error {
	cmd := r.command(ctx, dir, args)
	return r.run(cmd, args, nil)
}

// Output executes git with args in dir and returns its stdout.
// Stderr is logged with debug level.
func (r *Runner) Output(ctx context.Context, dir string, args ...string) (string, error) {
	var stdout bytes.Buffer

	cmd := r.command(ctx, dir, args)
	if err := r.run(cmd, args, &stdout); err != nil {
		return "", err
	}

	return stdout.String(), nil
}

// run starts cmd and waits for its termination.
// If stdout is nil, stdout is logged together with stderr.
func (r *Runner) run(cmd *exec.Cmd, args []string, stdout io.Writer) error {
	logger := r.logger.With(logfields.GitCommand(args), logfields.Directory(cmd.Dir))

	pr, pw := io.Pipe()
	if stdout == nil {
		cmd.Stdout = pw
	} else {
		cmd.Stdout = stdout
	}
	cmd.Stderr = pw

	logger.Debug("running git command", logfields.Event("git_command_started"))

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		metrics.CommandFinished(args, "start_failed", time.Since(startTime))

		return fmt.Errorf("starting git %s failed: %w", strings.Join(args, " "), err)
	}

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		forwardLines(pr, logger)
	}()

	waitErr := cmd.Wait()
	// Wait() only returns after all output was copied to pw, closing it
	// makes the forwarder hit EOF
	_ = pw.Close()
	<-forwardDone

	duration := time.Since(startTime)

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) && exitErr.ExitCode() > 0 {
			metrics.CommandFinished(args, "failure", duration)
			logger.Debug(
				"git command failed",
				logfields.Event("git_command_failed"),
				zap.Int("exit_code", exitErr.ExitCode()),
				zap.Duration("duration", duration),
			)

			return &CommandError{Args: args, ExitCode: exitErr.ExitCode()}
		}

		metrics.CommandFinished(args, "error", duration)
		return fmt.Errorf("running git %s failed: %w", strings.Join(args, " "), waitErr)
	}

	metrics.CommandFinished(args, "success", duration)
	logger.Debug(
		"git command finished",
		logfields.Event("git_command_finished"),
		zap.Duration("duration", duration),
	)

	return nil
}

func forwardLines(r io.Reader, logger *zap.Logger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		logger.Debug(strings.TrimRight(sc.Text(), "\r"))
	}

	if err := sc.Err(); err != nil {
		logger.Warn(
			"forwarding git output failed, discarding remaining output",
			logfields.Event("git_output_forwarding_failed"),
			zap.Error(err),
		)
		// the writer blocks until everything was read
		_, _ = io.Copy(io.Discard, r)
	}
}
