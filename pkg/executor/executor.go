package executor

import (
	"context"
	"io"
	"os"
)

// Result holds the outcome of a remote or local command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs commands and copies files on a deployment target. It is the
// only channel through which the orchestrator affects remote state; nothing
// above this interface assumes a particular remote OS beyond "can run the
// declared runtime descriptor".
type Executor interface {
	// Run executes a shell command and returns its output and exit code.
	// A non-zero exit code is returned in Result, not as an error; errors
	// are reserved for transport failures.
	Run(ctx context.Context, command string) (Result, error)

	// Copy streams src to remotePath, creating parent directories. The
	// write is staged to a temporary name and renamed into place only when
	// complete, so partial transfers never become visible.
	Copy(ctx context.Context, src io.Reader, remotePath string, mode os.FileMode) error

	// Close releases the underlying connection.
	Close() error
}
