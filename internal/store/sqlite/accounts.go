package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gavrikov2044-bot/cs-legit/internal/account"
)

// AccountStore implements account.Store.
type AccountStore struct {
	db *sql.DB
}

// NewAccountStore constructs an AccountStore.
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountColumns = `id, username, password_hash, hwid, is_admin, is_banned, ban_reason, created_at, last_login`

func scanAccount(row interface{ Scan(...any) error }) (*account.Account, error) {
	var (
		acc       account.Account
		lastLogin sql.NullTime
	)
	err := row.Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &acc.HWID,
		&acc.IsAdmin, &acc.IsBanned, &acc.BanReason, &acc.CreatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		acc.LastLogin = &t
	}
	acc.CreatedAt = acc.CreatedAt.UTC()
	return &acc, nil
}

func (s *AccountStore) Create(ctx context.Context, username, passwordHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`insert into users (username, password_hash, created_at) values (?, ?, ?)`,
		username, passwordHash, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, account.ErrUsernameTaken
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *AccountStore) Find(ctx context.Context, id int64) (*account.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from users where id = ?`, id)
	return scanAccount(row)
}

func (s *AccountStore) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from users where username = ?`, username)
	return scanAccount(row)
}

func (s *AccountStore) List(ctx context.Context) ([]*account.Account, error) {
	rows, err := s.db.QueryContext(ctx, `select `+accountColumns+` from users order by created_at desc, id desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *AccountStore) BindHWID(ctx context.Context, id int64, hwid string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update users set hwid = ? where id = ? and hwid = ''`, hwid, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *AccountStore) ResetHWID(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `update users set hwid = '' where id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (s *AccountStore) SetBanState(ctx context.Context, id int64, banned bool, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set is_banned = ?, ban_reason = ? where id = ?`, banned, reason, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (s *AccountStore) TouchLastLogin(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `update users set last_login = ? where id = ?`, time.Now().UTC(), id)
	return err
}

func (s *AccountStore) Delete(ctx context.Context, id int64) (bool, error) {
	// The licenses and download_logs rows go with the account via foreign
	// keys; delete them explicitly as well so the cascade does not depend on
	// the foreign_keys pragma being set on this connection.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from licenses where account_id = ?`, id); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `delete from download_logs where account_id = ?`, id); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `delete from users where id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *AccountStore) AppendAccessLog(ctx context.Context, entry *account.AccessLogEntry) error {
	at := entry.DownloadedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`insert into download_logs (account_id, product_id, version, ip_address, hwid, downloaded_at)
		 values (?, ?, ?, ?, ?, ?)`,
		entry.AccountID, entry.ProductID, entry.Version, entry.IPAddress, entry.HWID, at)
	if err != nil {
		return err
	}
	entry.ID, _ = res.LastInsertId()
	entry.DownloadedAt = at
	return nil
}

func (s *AccountStore) AccessLogByAccount(ctx context.Context, accountID int64, limit int) ([]*account.AccessLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, account_id, product_id, version, ip_address, hwid, downloaded_at
		 from download_logs where account_id = ?
		 order by downloaded_at desc, id desc limit ?`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*account.AccessLogEntry
	for rows.Next() {
		var e account.AccessLogEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.ProductID, &e.Version,
			&e.IPAddress, &e.HWID, &e.DownloadedAt); err != nil {
			return nil, err
		}
		e.DownloadedAt = e.DownloadedAt.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}
