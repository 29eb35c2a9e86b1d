package account

import "context"

// Store describes persistence operations required by the credential subsystem.
type Store interface {
	Create(ctx context.Context, username, passwordHash string) (int64, error)
	Find(ctx context.Context, id int64) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	List(ctx context.Context) ([]*Account, error)

	// BindHWID sets the hardware identity only when none is bound yet and
	// reports whether a row was updated.
	BindHWID(ctx context.Context, id int64, hwid string) (bool, error)
	ResetHWID(ctx context.Context, id int64) error
	SetBanState(ctx context.Context, id int64, banned bool, reason string) error
	TouchLastLogin(ctx context.Context, id int64) error

	// Delete removes the account row together with owned licenses and
	// access-log rows. Reports whether the account existed.
	Delete(ctx context.Context, id int64) (bool, error)

	AppendAccessLog(ctx context.Context, entry *AccessLogEntry) error
	AccessLogByAccount(ctx context.Context, accountID int64, limit int) ([]*AccessLogEntry, error)
}
