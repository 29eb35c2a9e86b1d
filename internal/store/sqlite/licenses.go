package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gavrikov2044-bot/cs-legit/internal/license"
)

// LicenseStore implements license.Store.
type LicenseStore struct {
	db *sql.DB
}

// NewLicenseStore constructs a LicenseStore.
func NewLicenseStore(db *sql.DB) *LicenseStore {
	return &LicenseStore{db: db}
}

const licenseColumns = `l.id, l.account_id, l.product_id, l.license_key, l.expires_at, l.created_at`

func scanLicense(row interface{ Scan(...any) error }, withUsername bool) (*license.License, error) {
	var (
		lic       license.License
		accountID sql.NullInt64
		expiresAt sql.NullTime
		username  sql.NullString
	)
	dest := []any{&lic.ID, &accountID, &lic.ProductID, &lic.Key, &expiresAt, &lic.CreatedAt}
	if withUsername {
		dest = append(dest, &username)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, license.ErrNotFound
		}
		return nil, err
	}
	if accountID.Valid {
		id := accountID.Int64
		lic.AccountID = &id
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		lic.ExpiresAt = &t
	}
	lic.Username = username.String
	lic.CreatedAt = lic.CreatedAt.UTC()
	return &lic, nil
}

func (s *LicenseStore) Insert(ctx context.Context, lic *license.License) error {
	createdAt := lic.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var accountID any
	if lic.AccountID != nil {
		accountID = *lic.AccountID
	}
	var expiresAt any
	if lic.ExpiresAt != nil {
		expiresAt = lic.ExpiresAt.UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`insert into licenses (account_id, product_id, license_key, expires_at, created_at)
		 values (?, ?, ?, ?, ?)`,
		accountID, lic.ProductID, lic.Key, expiresAt, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return license.ErrConflict
		}
		return err
	}
	lic.ID, _ = res.LastInsertId()
	lic.CreatedAt = createdAt
	return nil
}

func (s *LicenseStore) FindByKey(ctx context.Context, key string) (*license.License, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+licenseColumns+` from licenses l where l.license_key = ?`, key)
	return scanLicense(row, false)
}

func (s *LicenseStore) Claim(ctx context.Context, licenseID, accountID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update licenses set account_id = ? where id = ? and account_id is null`,
		accountID, licenseID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *LicenseStore) ConsumeUnassigned(ctx context.Context, licenseID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from licenses where id = ? and account_id is null`, licenseID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *LicenseStore) ActiveByAccountProduct(ctx context.Context, accountID int64, productID string, now time.Time) (*license.License, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+licenseColumns+` from licenses l
		 where l.account_id = ? and l.product_id = ?
		   and (l.expires_at is null or l.expires_at > ?)
		 order by l.expires_at is null desc, l.expires_at desc limit 1`,
		accountID, productID, now.UTC())
	return scanLicense(row, false)
}

func (s *LicenseStore) LatestByAccountProduct(ctx context.Context, accountID int64, productID string) (*license.License, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+licenseColumns+` from licenses l
		 where l.account_id = ? and l.product_id = ?
		 order by l.expires_at is null desc, l.expires_at desc limit 1`,
		accountID, productID)
	return scanLicense(row, false)
}

func (s *LicenseStore) ActiveByAccount(ctx context.Context, accountID int64, now time.Time) ([]*license.License, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+licenseColumns+` from licenses l
		 where l.account_id = ? and (l.expires_at is null or l.expires_at > ?)
		 order by l.created_at desc, l.id desc`,
		accountID, now.UTC())
	if err != nil {
		return nil, err
	}
	return collectLicenses(rows, false)
}

func (s *LicenseStore) ByAccount(ctx context.Context, accountID int64) ([]*license.License, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+licenseColumns+` from licenses l
		 where l.account_id = ?
		 order by l.created_at desc, l.id desc`, accountID)
	if err != nil {
		return nil, err
	}
	return collectLicenses(rows, false)
}

func (s *LicenseStore) UpdateExpiry(ctx context.Context, licenseID int64, expiresAt *time.Time) error {
	var value any
	if expiresAt != nil {
		value = expiresAt.UTC()
	}
	res, err := s.db.ExecContext(ctx, `update licenses set expires_at = ? where id = ?`, value, licenseID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return license.ErrNotFound
	}
	return nil
}

func (s *LicenseStore) DeleteByAccountProduct(ctx context.Context, accountID int64, productID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from licenses where account_id = ? and product_id = ?`, accountID, productID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *LicenseStore) DeleteByKey(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `delete from licenses where license_key = ?`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *LicenseStore) ListFiltered(ctx context.Context, f license.Filter, now time.Time, limit int) ([]*license.License, error) {
	var (
		conds []string
		args  []any
	)
	if f.ProductID != "" {
		conds = append(conds, "l.product_id = ?")
		args = append(args, f.ProductID)
	}
	if f.UnassignedOnly {
		conds = append(conds, "l.account_id is null")
	}
	if f.Expired != nil {
		if *f.Expired {
			conds = append(conds, "l.expires_at is not null and l.expires_at <= ?")
		} else {
			conds = append(conds, "(l.expires_at is null or l.expires_at > ?)")
		}
		args = append(args, now.UTC())
	}
	query := `select ` + licenseColumns + `, u.username
		 from licenses l left join users u on u.id = l.account_id`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by l.created_at desc, l.id desc limit ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectLicenses(rows, true)
}

func collectLicenses(rows *sql.Rows, withUsername bool) ([]*license.License, error) {
	defer rows.Close()
	var out []*license.License
	for rows.Next() {
		lic, err := scanLicense(rows, withUsername)
		if err != nil {
			return nil, err
		}
		out = append(out, lic)
	}
	return out, rows.Err()
}
