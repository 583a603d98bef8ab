package installer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result holds the outcome of an executed command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes commands and writes files on the machine being installed
// from: the local live environment, or a remote one reached over SSH.
type Runner interface {
	// Run executes a command with arguments, without shell interpretation.
	Run(ctx context.Context, name string, args ...string) (*Result, error)

	// Shell executes a script through /bin/sh -c.
	Shell(ctx context.Context, script string) (*Result, error)

	// ShellInput executes a script with the given stdin. Used for piping
	// passwords and passphrases without putting them in argv.
	ShellInput(ctx context.Context, stdin, script string) (*Result, error)

	// Interactive executes a command attached to the operator's terminal.
	Interactive(ctx context.Context, name string, args ...string) error

	// WriteFile writes a file on the install host.
	WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error

	// MkdirAll creates a directory tree on the install host.
	MkdirAll(ctx context.Context, path string, perm os.FileMode) error
}

// CommandError is returned when a command exits non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if len(stderr) > 300 {
		stderr = stderr[:300] + "..."
	}
	if stderr == "" {
		return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command %q exited with code %d: %s", e.Command, e.ExitCode, stderr)
}

// LocalRunner executes commands on the local machine.
type LocalRunner struct{}

// NewLocalRunner creates a runner for the local live environment.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

// Run executes a command with arguments.
func (r *LocalRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	return r.exec(ctx, "", exec.CommandContext(ctx, name, args...))
}

// Shell executes a script through /bin/sh -c.
func (r *LocalRunner) Shell(ctx context.Context, script string) (*Result, error) {
	return r.exec(ctx, "", exec.CommandContext(ctx, "/bin/sh", "-c", script))
}

// ShellInput executes a script with the given stdin.
func (r *LocalRunner) ShellInput(ctx context.Context, stdin, script string) (*Result, error) {
	return r.exec(ctx, stdin, exec.CommandContext(ctx, "/bin/sh", "-c", script))
}

func (r *LocalRunner) exec(ctx context.Context, stdin string, cmd *exec.Cmd) (*Result, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("failed to execute command: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
		return result, &CommandError{
			Command:  strings.Join(cmd.Args, " "),
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
		}
	}

	return result, nil
}

// Interactive executes a command attached to the current terminal.
func (r *LocalRunner) Interactive(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// WriteFile writes a file on the local machine.
func (r *LocalRunner) WriteFile(_ context.Context, path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}

// MkdirAll creates a directory tree on the local machine.
func (r *LocalRunner) MkdirAll(_ context.Context, path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
