package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gavrikov2044-bot/cs-legit/internal/catalog"
)

// CatalogStore implements catalog.Store.
type CatalogStore struct {
	db *sql.DB
}

// NewCatalogStore constructs a CatalogStore.
func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

func (s *CatalogStore) CreateProduct(ctx context.Context, p *catalog.Product) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into products (id, name, description, is_active, created_at) values (?, ?, ?, 1, ?)`,
		p.ID, p.Name, p.Description, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrConflict
		}
		return err
	}
	p.IsActive = true
	p.CreatedAt = createdAt
	return nil
}

func (s *CatalogStore) Product(ctx context.Context, id string) (*catalog.Product, error) {
	var p catalog.Product
	err := s.db.QueryRowContext(ctx,
		`select id, name, description, is_active, created_at from products where id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *CatalogStore) Products(ctx context.Context) ([]*catalog.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, is_active, created_at from products order by created_at asc, id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*catalog.Product
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *CatalogStore) InsertVersion(ctx context.Context, v *catalog.Version) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`update versions set is_active = 0 where product_id = ?`, v.ProductID); err != nil {
		return 0, err
	}
	// Re-uploading an existing version number replaces its file in place.
	_, err = tx.ExecContext(ctx,
		`insert into versions (product_id, version, changelog, file_name, file_path, file_hash, file_size, is_active, created_at)
		 values (?, ?, ?, ?, ?, ?, ?, 1, ?)
		 on conflict(product_id, version) do update set
		   changelog = excluded.changelog,
		   file_name = excluded.file_name,
		   file_path = excluded.file_path,
		   file_hash = excluded.file_hash,
		   file_size = excluded.file_size,
		   is_active = 1,
		   created_at = excluded.created_at`,
		v.ProductID, v.Version, v.Changelog, v.FileName, v.FilePath, v.FileHash, v.FileSize, v.CreatedAt.UTC())
	if err != nil {
		return 0, err
	}
	// LastInsertId is meaningless on the update arm of the upsert.
	var id int64
	if err := tx.QueryRowContext(ctx,
		`select id from versions where product_id = ? and version = ?`,
		v.ProductID, v.Version).Scan(&id); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

const versionColumns = `id, product_id, version, changelog, file_name, file_path, file_hash, file_size, is_active, created_at`

func scanVersion(row interface{ Scan(...any) error }) (*catalog.Version, error) {
	var v catalog.Version
	err := row.Scan(&v.ID, &v.ProductID, &v.Version, &v.Changelog, &v.FileName, &v.FilePath,
		&v.FileHash, &v.FileSize, &v.IsActive, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

func (s *CatalogStore) LatestVersion(ctx context.Context, productID string) (*catalog.Version, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+versionColumns+` from versions
		 where product_id = ? and is_active = 1
		 order by created_at desc, id desc limit 1`, productID)
	return scanVersion(row)
}

func (s *CatalogStore) VersionsByProduct(ctx context.Context, productID string) ([]*catalog.Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+versionColumns+` from versions
		 where product_id = ? order by created_at desc, id desc`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*catalog.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *CatalogStore) VersionByNumber(ctx context.Context, productID, version string) (*catalog.Version, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+versionColumns+` from versions
		 where product_id = ? and version = ?`, productID, version)
	return scanVersion(row)
}

func (s *CatalogStore) SetStatus(ctx context.Context, rec *catalog.StatusRecord) error {
	_, err := s.db.ExecContext(ctx,
		`insert into product_status (product_id, status, message, updated_at)
		 values (?, ?, ?, ?)
		 on conflict(product_id) do update set
		   status = excluded.status,
		   message = excluded.message,
		   updated_at = excluded.updated_at`,
		rec.ProductID, string(rec.Status), rec.Message, rec.UpdatedAt.UTC())
	return err
}

func (s *CatalogStore) StatusByProduct(ctx context.Context, productID string) (*catalog.StatusRecord, error) {
	var (
		rec    catalog.StatusRecord
		status string
	)
	err := s.db.QueryRowContext(ctx,
		`select product_id, status, message, updated_at from product_status where product_id = ?`,
		productID).Scan(&rec.ProductID, &status, &rec.Message, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	rec.Status = catalog.Status(status)
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func (s *CatalogStore) Stats(ctx context.Context, now time.Time) (catalog.Stats, error) {
	var stats catalog.Stats
	queries := []struct {
		dest  *int64
		query string
		args  []any
	}{
		{&stats.Accounts, `select count(*) from users`, nil},
		{&stats.BannedAccounts, `select count(*) from users where is_banned = 1`, nil},
		{&stats.Licenses, `select count(*) from licenses`, nil},
		{&stats.ActiveLicenses, `select count(*) from licenses where account_id is not null and (expires_at is null or expires_at > ?)`, []any{now.UTC()}},
		{&stats.Products, `select count(*) from products`, nil},
		{&stats.Downloads, `select count(*) from download_logs`, nil},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dest); err != nil {
			return catalog.Stats{}, err
		}
	}
	return stats, nil
}
