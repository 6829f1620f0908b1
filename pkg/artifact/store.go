package artifact

import (
	"context"

	"github.com/shipway/shipway/pkg/types"
)

// Store is a catalog of artifact versions. The store itself is
// authoritative: the catalog is derived from its contents, not persisted
// separately. Entries are ordered oldest first; "latest" is whatever sorts
// last, never a stored pointer.
type Store interface {
	// List returns the catalog entries for an artifact name, oldest first.
	List(ctx context.Context, name string) ([]types.ArtifactCatalogEntry, error)

	// Has reports whether the store holds the given ref.
	Has(ctx context.Context, ref types.ArtifactRef) (bool, error)

	// Remove deletes one artifact version. Used only by retention.
	Remove(ctx context.Context, ref types.ArtifactRef) error

	// Description names the store in logs ("local", "remote").
	Description() string
}

// Filename is the canonical store filename for a ref. Name and revision are
// joined with an underscore so the revision survives shells that are
// unfriendly to colons.
func Filename(ref types.ArtifactRef) string {
	return ref.Name + "_" + ref.Revision + ".tar.gz"
}
