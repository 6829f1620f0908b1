package builder

import (
	"context"

	"github.com/shipway/shipway/pkg/types"
)

// Builder turns a source tree into an immutable, content-addressed artifact.
// The orchestrator consumes it as a collaborator: what "build" means (docker
// buildx, nix, a make target) is an implementation detail behind Revision
// and Build.
type Builder interface {
	// Revision computes the content-addressed revision of the source tree.
	// Identical source must yield an identical revision.
	Revision(ctx context.Context) (string, error)

	// Build produces the artifact for the given platform and exports it to
	// exportPath as a compressed tarball. The platform may differ from the
	// local architecture (cross-build).
	Build(ctx context.Context, ref types.ArtifactRef, platform, exportPath string) error

	// Dirty reports whether the source tree has uncommitted changes.
	Dirty(ctx context.Context) (bool, error)

	// CheckToolchain verifies the local build toolchain is available.
	CheckToolchain(ctx context.Context) error
}
