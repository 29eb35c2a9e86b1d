package catalog

import (
	"context"
	"time"
)

// Store describes persistence operations required by the catalog.
type Store interface {
	CreateProduct(ctx context.Context, p *Product) error
	Product(ctx context.Context, id string) (*Product, error)
	Products(ctx context.Context) ([]*Product, error)

	// InsertVersion marks the new row active and clears the active flag on
	// every earlier version of the same product in one transaction. A row
	// with the same (product, version) pair is replaced in place.
	InsertVersion(ctx context.Context, v *Version) (int64, error)
	LatestVersion(ctx context.Context, productID string) (*Version, error)
	VersionsByProduct(ctx context.Context, productID string) ([]*Version, error)
	VersionByNumber(ctx context.Context, productID, version string) (*Version, error)

	// SetStatus upserts the operator override row.
	SetStatus(ctx context.Context, rec *StatusRecord) error
	StatusByProduct(ctx context.Context, productID string) (*StatusRecord, error)

	Stats(ctx context.Context, now time.Time) (Stats, error)
}
