package license

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxBatchSize   = 100
	listLimit      = 100
	keygenAttempts = 3
)

// Service implements the license lifecycle on top of a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a license service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueUnassigned generates count inventory keys for a product. days <= 0
// issues lifetime keys. A generation collision is retried a bounded number of
// times and surfaced as ErrConflict, never silently overwritten.
func (s *Service) IssueUnassigned(ctx context.Context, productID string, days, count int, prefix string) ([]string, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if count < 1 || count > maxBatchSize {
		return nil, fmt.Errorf("%w: count must be 1-%d", ErrInvalidInput, maxBatchSize)
	}
	if prefix == "" {
		prefix = productID
	}

	var expiresAt *time.Time
	if days > 0 {
		t := s.now().UTC().Add(time.Duration(days) * 24 * time.Hour)
		expiresAt = &t
	}

	keys := make([]string, 0, count)
	for i := 0; i < count; i++ {
		key, err := s.insertFresh(ctx, productID, prefix, expiresAt)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Service) insertFresh(ctx context.Context, productID, prefix string, expiresAt *time.Time) (string, error) {
	for attempt := 0; attempt < keygenAttempts; attempt++ {
		key, err := NewKey(prefix)
		if err != nil {
			return "", err
		}
		err = s.store.Insert(ctx, &License{
			ProductID: productID,
			Key:       key,
			ExpiresAt: expiresAt,
		})
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrConflict) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: exhausted key generation attempts", ErrConflict)
}

// Redeem consumes an unassigned key for an account. When the account already
// holds an active license for the key's product, the key's remaining duration
// is merged into it (lifetime absorbs finite) and the key row disappears.
// Concurrent redeems of the same key yield exactly one success.
func (s *Service) Redeem(ctx context.Context, key string, accountID int64) (RedemptionResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return RedemptionResult{}, fmt.Errorf("%w: license key is required", ErrInvalidInput)
	}

	lic, err := s.store.FindByKey(ctx, key)
	if err != nil || lic.AccountID != nil {
		return RedemptionResult{}, ErrInvalidKey
	}

	now := s.now().UTC()
	existing, err := s.store.ActiveByAccountProduct(ctx, accountID, lic.ProductID, now)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return RedemptionResult{}, err
	}

	if existing != nil {
		// Merge path: the conditional delete decides the race winner.
		won, err := s.store.ConsumeUnassigned(ctx, lic.ID)
		if err != nil {
			return RedemptionResult{}, err
		}
		if !won {
			return RedemptionResult{}, ErrInvalidKey
		}
		merged, err := s.mergeInto(ctx, existing, lic, now)
		if err != nil {
			return RedemptionResult{}, err
		}
		return RedemptionResult{ProductID: lic.ProductID, ExpiresAt: merged, Merged: true}, nil
	}

	won, err := s.store.Claim(ctx, lic.ID, accountID)
	if err != nil {
		return RedemptionResult{}, err
	}
	if !won {
		return RedemptionResult{}, ErrInvalidKey
	}
	return RedemptionResult{ProductID: lic.ProductID, ExpiresAt: lic.ExpiresAt}, nil
}

func (s *Service) mergeInto(ctx context.Context, existing, redeemed *License, now time.Time) (*time.Time, error) {
	// Lifetime absorbs any finite duration.
	if existing.ExpiresAt == nil {
		return nil, nil
	}
	if redeemed.ExpiresAt == nil {
		if err := s.store.UpdateExpiry(ctx, existing.ID, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}
	remaining := redeemed.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	base := *existing.ExpiresAt
	if base.Before(now) {
		base = now
	}
	merged := base.Add(remaining)
	if err := s.store.UpdateExpiry(ctx, existing.ID, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// QueryActive returns the account's active license for a product, evaluated
// against the time of the query.
func (s *Service) QueryActive(ctx context.Context, accountID int64, productID string) (*License, error) {
	return s.store.ActiveByAccountProduct(ctx, accountID, productID, s.now().UTC())
}

// ActiveForAccount lists all currently active licenses of an account.
func (s *Service) ActiveForAccount(ctx context.Context, accountID int64) ([]*License, error) {
	return s.store.ActiveByAccount(ctx, accountID, s.now().UTC())
}

// AllForAccount lists every license of an account regardless of state.
func (s *Service) AllForAccount(ctx context.Context, accountID int64) ([]*License, error) {
	return s.store.ByAccount(ctx, accountID)
}

// Extend grants or extends an administrator-originated license. days == 0 is
// the sentinel for "grant/convert to lifetime". An existing lifetime license
// is preserved and reported as such.
func (s *Service) Extend(ctx context.Context, accountID int64, productID string, days int) (ExtendResult, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ExtendResult{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if days < 0 {
		return ExtendResult{}, fmt.Errorf("%w: days must be >= 0", ErrInvalidInput)
	}

	now := s.now().UTC()
	lifetime := days == 0

	existing, err := s.store.LatestByAccountProduct(ctx, accountID, productID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return ExtendResult{}, err
	}

	if existing == nil {
		key, err := NewAdminKey()
		if err != nil {
			return ExtendResult{}, err
		}
		var expiresAt *time.Time
		if !lifetime {
			t := now.Add(time.Duration(days) * 24 * time.Hour)
			expiresAt = &t
		}
		err = s.store.Insert(ctx, &License{
			AccountID: &accountID,
			ProductID: productID,
			Key:       key,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			return ExtendResult{}, err
		}
		return ExtendResult{Created: true, Lifetime: lifetime, NewExpiry: expiresAt}, nil
	}

	if lifetime {
		if err := s.store.UpdateExpiry(ctx, existing.ID, nil); err != nil {
			return ExtendResult{}, err
		}
		return ExtendResult{Lifetime: true}, nil
	}
	if existing.ExpiresAt == nil {
		return ExtendResult{Lifetime: true, AlreadyLifetime: true}, nil
	}

	base := *existing.ExpiresAt
	if base.Before(now) {
		base = now
	}
	newExpiry := base.Add(time.Duration(days) * 24 * time.Hour)
	if err := s.store.UpdateExpiry(ctx, existing.ID, &newExpiry); err != nil {
		return ExtendResult{}, err
	}
	return ExtendResult{NewExpiry: &newExpiry}, nil
}

// Revoke deletes the license of an (account, product) pair.
func (s *Service) Revoke(ctx context.Context, accountID int64, productID string) error {
	deleted, err := s.store.DeleteByAccountProduct(ctx, accountID, productID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// RevokeByKey deletes by key value regardless of assignment state.
func (s *Service) RevokeByKey(ctx context.Context, key string) error {
	deleted, err := s.store.DeleteByKey(ctx, strings.TrimSpace(key))
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// ListFiltered returns up to 100 licenses, newest first.
func (s *Service) ListFiltered(ctx context.Context, f Filter) ([]*License, error) {
	return s.store.ListFiltered(ctx, f, s.now().UTC(), listLimit)
}
