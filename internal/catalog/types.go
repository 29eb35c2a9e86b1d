// Package catalog tracks deliverable products, their uploaded versions and
// their operational status. Status reads are cached briefly because launcher
// fleets poll them aggressively.
package catalog

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the product or version does not exist.
	ErrNotFound = errors.New("catalog: not found")
	// ErrConflict indicates a duplicate product id or version string.
	ErrConflict = errors.New("catalog: already exists")
	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("catalog: invalid input")
)

// Status is the operational state advertised for a product.
type Status string

const (
	StatusOperational Status = "operational"
	StatusUpdating    Status = "updating"
	StatusMaintenance Status = "maintenance"
	StatusOffline     Status = "offline"
	StatusWarning     Status = "warning"
)

// ValidStatus reports whether s is one of the advertised states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOperational, StatusUpdating, StatusMaintenance, StatusOffline, StatusWarning:
		return true
	}
	return false
}

// Product is a deliverable the subsystem serves artifacts for.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Version is one uploaded build of a product.
type Version struct {
	ID        int64     `json:"id"`
	ProductID string    `json:"product_id"`
	Version   string    `json:"version"`
	Changelog string    `json:"changelog,omitempty"`
	FileName  string    `json:"file_name"`
	FilePath  string    `json:"-"`
	FileHash  string    `json:"file_hash"`
	FileSize  int64     `json:"file_size"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusRecord is the operator-set status row for a product. A missing row
// means no explicit override is in effect.
type StatusRecord struct {
	ProductID string    `json:"product_id"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductHealth is the derived, client-facing status of one product.
type ProductHealth struct {
	ProductID     string    `json:"product_id"`
	Name          string    `json:"name"`
	Status        Status    `json:"status"`
	Message       string    `json:"message,omitempty"`
	LatestVersion string    `json:"latest_version,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Overall rolls the per-product states up into one headline value.
type Overall struct {
	Status   Status          `json:"status"`
	Products []ProductHealth `json:"products"`
}

// Stats is the operator dashboard summary.
type Stats struct {
	Accounts       int64 `json:"accounts"`
	BannedAccounts int64 `json:"banned_accounts"`
	Licenses       int64 `json:"licenses"`
	ActiveLicenses int64 `json:"active_licenses"`
	Products       int64 `json:"products"`
	Downloads      int64 `json:"downloads"`
}
