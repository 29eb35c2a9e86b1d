package account

import (
	"context"
	"fmt"
	"strings"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 6
)

// Service implements credential verification, hardware-identity binding and
// ban lifecycle on top of a Store.
type Service struct {
	store Store
}

// NewService constructs the credential service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create registers a new account. The plaintext password never reaches the
// store; usernames are matched case-sensitively.
func (s *Service) Create(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return 0, fmt.Errorf("%w: username must be %d-%d characters", ErrInvalidInput, minUsernameLen, maxUsernameLen)
	}
	if len(password) < minPasswordLen {
		return 0, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}
	return s.store.Create(ctx, username, hash)
}

// VerifyPassword checks credentials. Absent users and wrong passwords are not
// distinguished to the caller.
func (s *Service) VerifyPassword(ctx context.Context, username, password string) (*Account, error) {
	acc, err := s.store.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPasswordHash(acc.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return acc, nil
}

// Find loads an account by id.
func (s *Service) Find(ctx context.Context, id int64) (*Account, error) {
	return s.store.Find(ctx, id)
}

// List returns all accounts, newest first.
func (s *Service) List(ctx context.Context) ([]*Account, error) {
	return s.store.List(ctx)
}

// BindHWID attaches a hardware identity on first use. When a different
// identity is already bound the call fails with ErrHWIDMismatch and the
// stored value is left unchanged.
func (s *Service) BindHWID(ctx context.Context, id int64, hwid string) error {
	hwid = strings.TrimSpace(hwid)
	if hwid == "" {
		return fmt.Errorf("%w: hwid is required", ErrInvalidInput)
	}
	bound, err := s.store.BindHWID(ctx, id, hwid)
	if err != nil {
		return err
	}
	if bound {
		return nil
	}
	acc, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}
	if acc.HWID != hwid {
		return ErrHWIDMismatch
	}
	return nil
}

// ResetHWID clears the binding unconditionally. Administrative only.
func (s *Service) ResetHWID(ctx context.Context, id int64) error {
	return s.store.ResetHWID(ctx, id)
}

// SetBanState is idempotent; reason is cleared on unban.
func (s *Service) SetBanState(ctx context.Context, id int64, banned bool, reason string) error {
	if banned && strings.TrimSpace(reason) == "" {
		reason = "No reason specified"
	}
	if !banned {
		reason = ""
	}
	return s.store.SetBanState(ctx, id, banned, reason)
}

// TouchLastLogin records a successful login.
func (s *Service) TouchLastLogin(ctx context.Context, id int64) error {
	return s.store.TouchLastLogin(ctx, id)
}

// Delete removes an account and cascades to its licenses and access-log rows.
// The active principal may not delete itself.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	if id == actorID {
		return ErrSelfDelete
	}
	existed, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return ErrNotFound
	}
	return nil
}

// AppendAccessLog records a delivered download. Failures are returned so the
// caller can surface them to an operator channel without blocking delivery.
func (s *Service) AppendAccessLog(ctx context.Context, entry *AccessLogEntry) error {
	return s.store.AppendAccessLog(ctx, entry)
}

// RecentDownloads lists the newest access-log rows for an account.
func (s *Service) RecentDownloads(ctx context.Context, accountID int64, limit int) ([]*AccessLogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.AccessLogByAccount(ctx, accountID, limit)
}
