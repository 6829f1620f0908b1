package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// LocalExecutor runs commands on the invoking machine. The artifact builder
// and precheck toolchain probes use it; it satisfies the same contract as
// the SSH executor so tests can swap one for the other.
type LocalExecutor struct {
	// Dir, when set, is the working directory for commands.
	Dir string
}

// Run executes a shell command locally.
func (e *LocalExecutor) Run(ctx context.Context, command string) (Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = e.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("command failed: %w", err)
	}
	return res, nil
}

// Copy writes src to a local path, staged through a temp file like the SSH
// implementation.
func (e *LocalExecutor) Copy(ctx context.Context, src io.Reader, destPath string, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	staging := destPath + ".partial"
	f, err := os.OpenFile(staging, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(staging)
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(staging)
		return err
	}
	return os.Rename(staging, destPath)
}

// Close is a no-op for local execution.
func (e *LocalExecutor) Close() error {
	return nil
}
