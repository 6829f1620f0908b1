package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/shipway/shipway/pkg/log"
	"github.com/shipway/shipway/pkg/types"
)

// SSHExecutor runs commands on a target over SSH. The dial timeout is
// enforced separately from the per-command timeout: a reachable but hanging
// target cannot block the orchestrator past CommandTimeout.
type SSHExecutor struct {
	client         *ssh.Client
	commandTimeout time.Duration
	logger         zerolog.Logger
}

// SSHOptions configures the SSH channel.
type SSHOptions struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration

	// HostKeyCallback defaults to accepting any host key, matching the
	// deploy workflow this replaces (known-host pinning is handled by the
	// operator's ssh config when desired).
	HostKeyCallback ssh.HostKeyCallback
}

// DialSSH connects to the target using key-based authentication from its
// identity file.
func DialSSH(target types.DeploymentTarget, opts SSHOptions) (*SSHExecutor, error) {
	key, err := os.ReadFile(target.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity file: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback := opts.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey() // #nosec G106
	}

	cfg := &ssh.ClientConfig{
		User:            target.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.ConnectTimeout,
	}

	conn, err := net.DialTimeout("tcp", target.Addr(), opts.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", target.Addr(), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, target.Addr(), cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", target.Addr(), err)
	}

	return &SSHExecutor{
		client:         ssh.NewClient(sshConn, chans, reqs),
		commandTimeout: opts.CommandTimeout,
		logger:         log.WithComponent("executor"),
	}, nil
}

// Run executes a command on the target. The command is bounded by the
// configured command timeout in addition to ctx.
func (e *SSHExecutor) Run(ctx context.Context, command string) (Result, error) {
	if e.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.commandTimeout)
		defer cancel()
	}

	session, err := e.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	e.logger.Debug().Str("cmd", command).Msg("running remote command")

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		// Closing the session tears down the remote process; the target
		// may not honor signals, so this is the strongest cancel we have.
		session.Close()
		<-done
		return Result{}, fmt.Errorf("remote command interrupted: %w", ctx.Err())
	case err := <-done:
		res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				res.ExitCode = exitErr.ExitStatus()
				return res, nil
			}
			return res, fmt.Errorf("remote command failed: %w", err)
		}
		return res, nil
	}
}

// Copy streams src into remotePath. The content is piped through the SSH
// session's stdin into a staging file and renamed only after the stream
// completes, so an interrupted transfer leaves nothing at remotePath.
func (e *SSHExecutor) Copy(ctx context.Context, src io.Reader, remotePath string, mode os.FileMode) error {
	if e.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.commandTimeout)
		defer cancel()
	}

	session, err := e.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	session.Stdin = src

	dir := path.Dir(remotePath)
	staging := remotePath + ".partial"
	cmd := fmt.Sprintf(
		"mkdir -p %q && cat > %q && chmod %o %q && mv %q %q",
		dir, staging, mode.Perm(), staging, staging, remotePath,
	)

	e.logger.Debug().Str("path", remotePath).Msg("copying file to target")

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return fmt.Errorf("transfer interrupted: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to copy to %s: %w", remotePath, err)
		}
		return nil
	}
}

// Close closes the SSH connection.
func (e *SSHExecutor) Close() error {
	return e.client.Close()
}
