package remote

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/ironstrap/ironstrap/pkg/installer"
	"github.com/ironstrap/ironstrap/pkg/telemetry"
)

// Runner executes install commands on a remote machine over SSH. It
// implements installer.Runner.
type Runner struct {
	config *Config
	client *ssh.Client
	sftp   *sftp.Client
	logger *telemetry.Logger
}

// Connect validates the config, dials the remote host and opens an SFTP
// subsystem for file transfers.
func Connect(ctx context.Context, cfg *Config, logger *telemetry.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid remote config: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clientConfig, err := cfg.buildClientConfig()
	if err != nil {
		return nil, err
	}

	logger = logger.NewComponentLogger("remote")
	logger.WithTarget(cfg.Address()).Info("connecting")

	client, err := ssh.Dial("tcp", cfg.Address(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Address(), err)
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to open sftp subsystem: %w", err)
	}

	return &Runner{
		config: cfg,
		client: client,
		sftp:   sftpClient,
		logger: logger,
	}, nil
}

// Close closes the SFTP subsystem and the SSH connection.
func (r *Runner) Close() error {
	if r.sftp != nil {
		_ = r.sftp.Close()
	}
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Run executes a command with arguments on the remote host.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (*installer.Result, error) {
	return r.execute(ctx, "", quoteCommand(name, args))
}

// Shell executes a script through the remote shell.
func (r *Runner) Shell(ctx context.Context, script string) (*installer.Result, error) {
	return r.execute(ctx, "", script)
}

// ShellInput executes a script with the given stdin.
func (r *Runner) ShellInput(ctx context.Context, stdin, script string) (*installer.Result, error) {
	return r.execute(ctx, stdin, script)
}

func (r *Runner) execute(ctx context.Context, stdin, cmd string) (*installer.Result, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		execErr = ctx.Err()
	case execErr = <-done:
	}

	result := &installer.Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if execErr != nil {
		exitErr, ok := execErr.(*ssh.ExitError)
		if !ok {
			return nil, fmt.Errorf("failed to execute remote command: %w", execErr)
		}
		result.ExitCode = exitErr.ExitStatus()
		return result, &installer.CommandError{
			Command:  cmd,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
		}
	}
	return result, nil
}

// Interactive runs a command on the remote host attached to the local
// terminal, with a pseudo-terminal allocated for it.
func (r *Runner) Interactive(ctx context.Context, name string, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	session, err := r.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	session.Stdin = os.Stdin
	session.Stdout = os.Stdout
	session.Stderr = os.Stderr

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm", 40, 120, modes); err != nil {
		return fmt.Errorf("failed to request pseudo-terminal: %w", err)
	}

	return session.Run(quoteCommand(name, args))
}

// WriteFile writes a file on the remote host over SFTP.
func (r *Runner) WriteFile(ctx context.Context, filePath string, data []byte, perm os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.sftp.MkdirAll(path.Dir(filePath)); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", filePath, err)
	}

	f, err := r.sftp.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filePath, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filePath, err)
	}
	return r.sftp.Chmod(filePath, perm)
}

// MkdirAll creates a directory tree on the remote host over SFTP.
func (r *Runner) MkdirAll(ctx context.Context, dirPath string, perm os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.sftp.MkdirAll(dirPath); err != nil {
		return fmt.Errorf("failed to create %s: %w", dirPath, err)
	}
	return r.sftp.Chmod(dirPath, perm)
}

// quoteCommand joins a command and its arguments into a shell line, quoting
// every argument.
func quoteCommand(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, arg := range args {
		parts = append(parts, "'"+strings.ReplaceAll(arg, "'", `'\''`)+"'")
	}
	return strings.Join(parts, " ")
}
