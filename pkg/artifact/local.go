package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shipway/shipway/pkg/types"
)

// LocalStore keeps artifact tarballs in a directory on the invoking
// machine. The filesystem is the catalog: entries are derived from the
// files present and their modification times.
type LocalStore struct {
	dir string
}

// NewLocalStore opens (creating if needed) a local artifact store.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Path returns the file path an artifact is (or will be) stored at. The
// builder exports directly to this path.
func (s *LocalStore) Path(ref types.ArtifactRef) string {
	return filepath.Join(s.dir, Filename(ref))
}

// Open returns a reader over a stored artifact and its size.
func (s *LocalStore) Open(ref types.ArtifactRef) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.Path(ref))
	if err != nil {
		return nil, 0, fmt.Errorf("artifact %s not in local store: %w", ref, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// List returns catalog entries for name, oldest first.
func (s *LocalStore) List(ctx context.Context, name string) ([]types.ArtifactCatalogEntry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact store: %w", err)
	}

	prefix := name + "_"
	var entries []types.ArtifactCatalogEntry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasPrefix(de.Name(), prefix) || !strings.HasSuffix(de.Name(), ".tar.gz") {
			continue
		}
		revision := strings.TrimSuffix(strings.TrimPrefix(de.Name(), prefix), ".tar.gz")
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, types.ArtifactCatalogEntry{
			Ref:       types.ArtifactRef{Name: name, Revision: revision},
			CreatedAt: info.ModTime(),
			Location:  filepath.Join(s.dir, de.Name()),
			SizeBytes: info.Size(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// Has reports whether the artifact file exists.
func (s *LocalStore) Has(ctx context.Context, ref types.ArtifactRef) (bool, error) {
	_, err := os.Stat(s.Path(ref))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Remove deletes an artifact version.
func (s *LocalStore) Remove(ctx context.Context, ref types.ArtifactRef) error {
	if err := os.Remove(s.Path(ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", ref, err)
	}
	return nil
}

// Description identifies the store in logs.
func (s *LocalStore) Description() string {
	return "local"
}
