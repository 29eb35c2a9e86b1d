package license

import (
	"errors"
	"time"
)

// Status is derived from stored fields at query time and never persisted.
type Status string

const (
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusLifetime Status = "lifetime"
)

// License grants one account access to one product. A nil AccountID marks an
// unredeemed inventory key; a nil ExpiresAt marks a lifetime grant.
type License struct {
	ID        int64      `json:"id"`
	AccountID *int64     `json:"account_id,omitempty"`
	ProductID string     `json:"product_id"`
	Key       string     `json:"license_key"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`

	// Username is populated on admin listings joined against accounts.
	Username string `json:"username,omitempty"`
}

// ActiveAt reports whether the license grants access at the given instant.
func (l License) ActiveAt(now time.Time) bool {
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}

// StatusAt derives the closed status variant at the given instant.
func (l License) StatusAt(now time.Time) Status {
	switch {
	case l.ExpiresAt == nil:
		return StatusLifetime
	case l.ExpiresAt.After(now):
		return StatusActive
	default:
		return StatusExpired
	}
}

// DaysRemainingAt returns whole days until expiry, or -1 for lifetime.
func (l License) DaysRemainingAt(now time.Time) int {
	if l.ExpiresAt == nil {
		return -1
	}
	d := l.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// RedemptionResult reports how a key was consumed.
type RedemptionResult struct {
	ProductID string     `json:"product_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Merged    bool       `json:"merged"`
}

// ExtendResult reports the outcome of an administrative extension.
type ExtendResult struct {
	Created         bool       `json:"created"`
	Lifetime        bool       `json:"lifetime"`
	AlreadyLifetime bool       `json:"already_lifetime"`
	NewExpiry       *time.Time `json:"new_expiry,omitempty"`
}

// Filter narrows admin license listings. Expired is tri-state: nil means
// no expiry filtering.
type Filter struct {
	ProductID      string
	UnassignedOnly bool
	Expired        *bool
}

var (
	ErrNotFound     = errors.New("license: not found")
	ErrInvalidKey   = errors.New("license: invalid or already used key")
	ErrConflict     = errors.New("license: key collision")
	ErrInvalidInput = errors.New("license: invalid input")
)
