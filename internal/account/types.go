package account

import "time"

// Account represents a registered user bound to at most one device.
type Account struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	HWID         string     `json:"hwid,omitempty"`
	IsAdmin      bool       `json:"is_admin"`
	IsBanned     bool       `json:"is_banned"`
	BanReason    string     `json:"ban_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// HWIDBound reports whether the account has a hardware identity attached.
func (a Account) HWIDBound() bool { return a.HWID != "" }

// AccessLogEntry is an append-only record of an artifact delivery.
type AccessLogEntry struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	ProductID    string    `json:"product_id"`
	Version      string    `json:"version"`
	IPAddress    string    `json:"ip_address"`
	HWID         string    `json:"hwid,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at"`
}
