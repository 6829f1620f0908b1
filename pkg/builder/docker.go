package builder

import (
	"context"
	"fmt"
	"strings"

	"github.com/shipway/shipway/pkg/executor"
	"github.com/shipway/shipway/pkg/log"
	"github.com/shipway/shipway/pkg/types"
)

// DockerBuilder builds container image artifacts with the docker CLI. Cross
// builds go through buildx so the target platform may differ from the
// invoking machine.
type DockerBuilder struct {
	exec      executor.Executor
	sourceDir string
}

// NewDockerBuilder creates a builder running against the given source tree.
func NewDockerBuilder(exec executor.Executor, sourceDir string) *DockerBuilder {
	return &DockerBuilder{
		exec:      exec,
		sourceDir: sourceDir,
	}
}

// Revision returns the content-addressed revision of the source tree. When
// the tree is a clean git checkout the short commit hash is used (stable
// and familiar in image tags); otherwise the tree hash is computed
// directly. Both are deterministic for identical source.
func (b *DockerBuilder) Revision(ctx context.Context) (string, error) {
	dirty, err := b.Dirty(ctx)
	if err == nil && !dirty {
		res, gitErr := b.run(ctx, "git rev-parse --short=12 HEAD")
		if gitErr == nil && res.ExitCode == 0 {
			return strings.TrimSpace(res.Stdout), nil
		}
	}
	return TreeRevision(b.sourceDir)
}

// Dirty reports whether the git working tree has uncommitted changes. A
// non-repository source tree is treated as clean; its revision is the tree
// hash, which already reflects any edit.
func (b *DockerBuilder) Dirty(ctx context.Context) (bool, error) {
	res, err := b.run(ctx, "git status --porcelain")
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		return false, nil
	}
	return strings.TrimSpace(res.Stdout) != "", nil
}

// CheckToolchain verifies docker and buildx are available locally.
func (b *DockerBuilder) CheckToolchain(ctx context.Context) error {
	res, err := b.run(ctx, "docker buildx version")
	if err != nil {
		return fmt.Errorf("docker toolchain check failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("docker buildx unavailable: %s", strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Build runs the cross-build and exports the image as a gzipped tarball at
// exportPath. The image is tagged name:revision so the artifact is
// addressable after docker load on the target.
func (b *DockerBuilder) Build(ctx context.Context, ref types.ArtifactRef, platform, exportPath string) error {
	logger := log.WithRef(ref.String())
	logger.Info().Str("platform", platform).Msg("building artifact")

	buildCmd := fmt.Sprintf("docker buildx build --platform %q -t %q --load .", platform, ref.String())
	res, err := b.run(ctx, buildCmd)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("build failed (exit %d): %s", res.ExitCode, tail(res.Stderr))
	}

	saveCmd := fmt.Sprintf("docker save %q | gzip > %q", ref.String(), exportPath)
	res, err = b.run(ctx, saveCmd)
	if err != nil {
		return fmt.Errorf("artifact export failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("artifact export failed (exit %d): %s", res.ExitCode, tail(res.Stderr))
	}

	logger.Info().Str("path", exportPath).Msg("artifact exported")
	return nil
}

func (b *DockerBuilder) run(ctx context.Context, command string) (executor.Result, error) {
	if b.sourceDir != "" {
		command = fmt.Sprintf("cd %q && %s", b.sourceDir, command)
	}
	return b.exec.Run(ctx, command)
}

// tail returns the last few lines of command output for error messages.
func tail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}
