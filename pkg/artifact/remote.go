package artifact

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/shipway/shipway/pkg/executor"
	"github.com/shipway/shipway/pkg/types"
)

// RemoteStore is the artifact catalog on the deployment target, kept under
// <workdir>/.shipway/artifacts and driven entirely through the Remote
// Executor. Ordering is derived from file modification time on the target;
// local and remote stores may diverge and are pruned independently.
type RemoteStore struct {
	exec executor.Executor
	dir  string
}

// NewRemoteStore returns a store rooted at the target's artifact directory.
func NewRemoteStore(exec executor.Executor, workDir string) *RemoteStore {
	return &RemoteStore{
		exec: exec,
		dir:  path.Join(workDir, ".shipway", "artifacts"),
	}
}

// Path returns the remote file path for a ref.
func (s *RemoteStore) Path(ref types.ArtifactRef) string {
	return path.Join(s.dir, Filename(ref))
}

// Put streams an artifact to the target. The executor stages the upload and
// renames it into place, so a failed transfer leaves no catalog entry;
// retries re-send the whole artifact.
func (s *RemoteStore) Put(ctx context.Context, ref types.ArtifactRef, src io.Reader) error {
	if err := s.exec.Copy(ctx, src, s.Path(ref), 0644); err != nil {
		return fmt.Errorf("failed to push %s: %w", ref, err)
	}
	return nil
}

// List returns catalog entries for name, oldest first. CreatedAt is not
// populated: the remote side only guarantees ordering (ls -t), which is all
// retention needs.
func (s *RemoteStore) List(ctx context.Context, name string) ([]types.ArtifactCatalogEntry, error) {
	// Newest first from ls -t; reversed below to match Store ordering.
	res, err := s.exec.Run(ctx, fmt.Sprintf("ls -1t %q 2>/dev/null || true", s.dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list remote store: %w", err)
	}

	prefix := name + "_"
	var entries []types.ArtifactCatalogEntry
	for _, line := range strings.Split(res.Stdout, "\n") {
		fname := strings.TrimSpace(line)
		if !strings.HasPrefix(fname, prefix) || !strings.HasSuffix(fname, ".tar.gz") {
			continue
		}
		revision := strings.TrimSuffix(strings.TrimPrefix(fname, prefix), ".tar.gz")
		entries = append(entries, types.ArtifactCatalogEntry{
			Ref:      types.ArtifactRef{Name: name, Revision: revision},
			Location: path.Join(s.dir, fname),
		})
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Has reports whether the target holds the artifact.
func (s *RemoteStore) Has(ctx context.Context, ref types.ArtifactRef) (bool, error) {
	res, err := s.exec.Run(ctx, fmt.Sprintf("test -f %q", s.Path(ref)))
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

// Remove deletes an artifact version from the target.
func (s *RemoteStore) Remove(ctx context.Context, ref types.ArtifactRef) error {
	res, err := s.exec.Run(ctx, fmt.Sprintf("rm -f %q", s.Path(ref)))
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", ref, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to remove %s: %s", ref, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Description identifies the store in logs.
func (s *RemoteStore) Description() string {
	return "remote"
}
