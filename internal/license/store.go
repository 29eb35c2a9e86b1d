package license

import (
	"context"
	"time"
)

// Store describes persistence operations required by the license ledger.
// Claim and ConsumeUnassigned must be atomic conditional writes so that
// concurrent redemption of one key yields exactly one winner.
type Store interface {
	Insert(ctx context.Context, lic *License) error
	FindByKey(ctx context.Context, key string) (*License, error)

	// Claim assigns an unassigned key to an account and reports whether the
	// row was still unassigned at write time.
	Claim(ctx context.Context, licenseID, accountID int64) (bool, error)

	// ConsumeUnassigned deletes a key only while it is still unassigned and
	// reports whether this caller won the row.
	ConsumeUnassigned(ctx context.Context, licenseID int64) (bool, error)

	ActiveByAccountProduct(ctx context.Context, accountID int64, productID string, now time.Time) (*License, error)
	LatestByAccountProduct(ctx context.Context, accountID int64, productID string) (*License, error)
	ActiveByAccount(ctx context.Context, accountID int64, now time.Time) ([]*License, error)
	ByAccount(ctx context.Context, accountID int64) ([]*License, error)

	UpdateExpiry(ctx context.Context, licenseID int64, expiresAt *time.Time) error
	DeleteByAccountProduct(ctx context.Context, accountID int64, productID string) (bool, error)
	DeleteByKey(ctx context.Context, key string) (bool, error)

	ListFiltered(ctx context.Context, f Filter, now time.Time, limit int) ([]*License, error)
}
