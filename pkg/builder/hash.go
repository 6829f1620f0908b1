package builder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// revisionLength is the length of the short revision hash, matching the
// git short-hash convention used in image tags.
const revisionLength = 12

// Ignored directories that never contribute to the revision. Build output
// and VCS metadata change without the source changing.
var hashIgnoreDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	".shipway":     true,
}

// TreeRevision computes a deterministic short hash of a source tree. Every
// regular file's relative path and contents feed a single sha256, with
// paths walked in sorted order so the result is stable across platforms
// and runs.
func TreeRevision(root string) (string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if hashIgnoreDirs[d.Name()] && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk source tree: %w", err)
	}

	sort.Strings(files)

	h := sha256.New()
	for _, rel := range files {
		// Path separator normalized so the hash agrees across OSes.
		fmt.Fprintf(h, "%s\x00", strings.ReplaceAll(rel, string(filepath.Separator), "/"))

		f, err := os.Open(filepath.Join(root, rel))
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", rel, err)
		}
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to hash %s: %w", rel, err)
		}
		f.Close()
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))[:revisionLength], nil
}
