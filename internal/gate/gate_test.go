package gate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gavrikov2044-bot/cs-legit/internal/account"
	"github.com/gavrikov2044-bot/cs-legit/internal/license"
	"github.com/gavrikov2044-bot/cs-legit/internal/session"
)

type fakeAccountStore struct {
	accounts map[int64]*account.Account
}

func (f *fakeAccountStore) Create(ctx context.Context, username, passwordHash string) (int64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeAccountStore) Find(ctx context.Context, id int64) (*account.Account, error) {
	acc, ok := f.accounts[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (f *fakeAccountStore) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	for _, acc := range f.accounts {
		if acc.Username == username {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, account.ErrNotFound
}

func (f *fakeAccountStore) List(ctx context.Context) ([]*account.Account, error) { return nil, nil }

func (f *fakeAccountStore) BindHWID(ctx context.Context, id int64, hwid string) (bool, error) {
	acc, ok := f.accounts[id]
	if !ok {
		return false, account.ErrNotFound
	}
	if acc.HWID != "" {
		return false, nil
	}
	acc.HWID = hwid
	return true, nil
}

func (f *fakeAccountStore) ResetHWID(ctx context.Context, id int64) error {
	if acc, ok := f.accounts[id]; ok {
		acc.HWID = ""
	}
	return nil
}

func (f *fakeAccountStore) SetBanState(ctx context.Context, id int64, banned bool, reason string) error {
	if acc, ok := f.accounts[id]; ok {
		acc.IsBanned = banned
		acc.BanReason = reason
	}
	return nil
}

func (f *fakeAccountStore) TouchLastLogin(ctx context.Context, id int64) error { return nil }

func (f *fakeAccountStore) Delete(ctx context.Context, id int64) (bool, error) {
	_, ok := f.accounts[id]
	delete(f.accounts, id)
	return ok, nil
}

func (f *fakeAccountStore) AppendAccessLog(ctx context.Context, entry *account.AccessLogEntry) error {
	return nil
}

func (f *fakeAccountStore) AccessLogByAccount(ctx context.Context, accountID int64, limit int) ([]*account.AccessLogEntry, error) {
	return nil, nil
}

type fakeLicenseStore struct {
	active map[string]*license.License // key: "accountID/productID"
}

func licKey(accountID int64, productID string) string {
	return fmt.Sprintf("%d/%s", accountID, productID)
}

func (f *fakeLicenseStore) Insert(ctx context.Context, lic *license.License) error {
	return errors.New("not implemented")
}

func (f *fakeLicenseStore) FindByKey(ctx context.Context, key string) (*license.License, error) {
	return nil, license.ErrNotFound
}

func (f *fakeLicenseStore) Claim(ctx context.Context, licenseID, accountID int64) (bool, error) {
	return false, nil
}

func (f *fakeLicenseStore) ConsumeUnassigned(ctx context.Context, licenseID int64) (bool, error) {
	return false, nil
}

func (f *fakeLicenseStore) ActiveByAccountProduct(ctx context.Context, accountID int64, productID string, now time.Time) (*license.License, error) {
	lic, ok := f.active[licKey(accountID, productID)]
	if !ok || !lic.ActiveAt(now) {
		return nil, license.ErrNotFound
	}
	return lic, nil
}

func (f *fakeLicenseStore) LatestByAccountProduct(ctx context.Context, accountID int64, productID string) (*license.License, error) {
	return nil, license.ErrNotFound
}

func (f *fakeLicenseStore) ActiveByAccount(ctx context.Context, accountID int64, now time.Time) ([]*license.License, error) {
	return nil, nil
}

func (f *fakeLicenseStore) ByAccount(ctx context.Context, accountID int64) ([]*license.License, error) {
	return nil, nil
}

func (f *fakeLicenseStore) UpdateExpiry(ctx context.Context, licenseID int64, expiresAt *time.Time) error {
	return nil
}

func (f *fakeLicenseStore) DeleteByAccountProduct(ctx context.Context, accountID int64, productID string) (bool, error) {
	return false, nil
}

func (f *fakeLicenseStore) DeleteByKey(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (f *fakeLicenseStore) ListFiltered(ctx context.Context, fl license.Filter, now time.Time, limit int) ([]*license.License, error) {
	return nil, nil
}

type fixture struct {
	gate     *Gate
	issuer   *session.Issuer
	accounts *fakeAccountStore
	licenses *fakeLicenseStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	issuer, err := session.NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	accounts := &fakeAccountStore{accounts: map[int64]*account.Account{}}
	licenses := &fakeLicenseStore{active: map[string]*license.License{}}
	return &fixture{
		gate:     New(issuer, account.NewService(accounts), license.NewService(licenses)),
		issuer:   issuer,
		accounts: accounts,
		licenses: licenses,
	}
}

func (f *fixture) addAccount(t *testing.T, id int64, username, hwid string, banned bool) string {
	t.Helper()
	f.accounts.accounts[id] = &account.Account{
		ID:        id,
		Username:  username,
		HWID:      hwid,
		IsBanned:  banned,
		CreatedAt: time.Now().UTC(),
	}
	token, _, err := f.issuer.Issue(id, username)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func (f *fixture) addActiveLicense(id int64, productID string) {
	f.licenses.active[licKey(id, productID)] = &license.License{
		ID:        1,
		AccountID: &id,
		ProductID: productID,
		Key:       "CS2-AAAA-BBBB-CCCC",
	}
}

func wantDenied(t *testing.T, err error, reason Reason) {
	t.Helper()
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Reason != reason {
		t.Fatalf("reason = %s, want %s", denied.Reason, reason)
	}
}

func TestAuthorizeHappyPath(t *testing.T) {
	f := newFixture(t)
	token := f.addAccount(t, 1, "alice", "HWID-1", false)
	f.addActiveLicense(1, "cs2")

	acc, lic, err := f.gate.Authorize(context.Background(), token, "HWID-1", "cs2")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if acc.ID != 1 || lic.ProductID != "cs2" {
		t.Fatalf("unexpected result: account %d, product %s", acc.ID, lic.ProductID)
	}
}

func TestAuthorizeRejectsBadToken(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, 1, "alice", "HWID-1", false)

	_, _, err := f.gate.Authorize(context.Background(), "not-a-token", "HWID-1", "cs2")
	wantDenied(t, err, ReasonInvalidToken)
}

func TestAuthorizeRejectsDeletedAccount(t *testing.T) {
	f := newFixture(t)
	token := f.addAccount(t, 1, "alice", "HWID-1", false)
	delete(f.accounts.accounts, 1)

	_, _, err := f.gate.Authorize(context.Background(), token, "HWID-1", "cs2")
	wantDenied(t, err, ReasonAccountNotFound)
}

func TestBanWinsOverValidLicense(t *testing.T) {
	f := newFixture(t)
	token := f.addAccount(t, 1, "alice", "HWID-1", true)
	f.addActiveLicense(1, "cs2")

	_, _, err := f.gate.Authorize(context.Background(), token, "HWID-1", "cs2")
	wantDenied(t, err, ReasonBanned)
}

func TestAuthorizeBindsHwidOnFirstUse(t *testing.T) {
	f := newFixture(t)
	token := f.addAccount(t, 1, "alice", "", false)
	f.addActiveLicense(1, "cs2")

	acc, _, err := f.gate.Authorize(context.Background(), token, "HWID-NEW", "cs2")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if acc.HWID != "HWID-NEW" {
		t.Fatalf("expected binding to stick, got %q", acc.HWID)
	}
	if got := f.accounts.accounts[1].HWID; got != "HWID-NEW" {
		t.Fatalf("stored hwid = %q, want HWID-NEW", got)
	}
}

func TestAuthorizeRejectsHwidMismatch(t *testing.T) {
	f := newFixture(t)
	token := f.addAccount(t, 1, "alice", "HWID-1", false)
	f.addActiveLicense(1, "cs2")

	_, _, err := f.gate.Authorize(context.Background(), token, "HWID-2", "cs2")
	wantDenied(t, err, ReasonHwidMismatch)
}

func TestAuthorizeRequiresHwid(t *testing.T) {
	f := newFixture(t)
	token := f.addAccount(t, 1, "alice", "HWID-1", false)
	f.addActiveLicense(1, "cs2")

	_, _, err := f.gate.Authorize(context.Background(), token, "  ", "cs2")
	wantDenied(t, err, ReasonHwidRequired)
}

func TestAuthorizeRejectsWithoutLicense(t *testing.T) {
	f := newFixture(t)
	token := f.addAccount(t, 1, "alice", "HWID-1", false)

	_, _, err := f.gate.Authorize(context.Background(), token, "HWID-1", "cs2")
	wantDenied(t, err, ReasonNoLicense)
}

func TestAuthorizeRejectsExpiredLicense(t *testing.T) {
	f := newFixture(t)
	token := f.addAccount(t, 1, "alice", "HWID-1", false)
	id := int64(1)
	past := time.Now().UTC().Add(-time.Hour)
	f.licenses.active[licKey(1, "cs2")] = &license.License{
		ID: 1, AccountID: &id, ProductID: "cs2", ExpiresAt: &past,
	}

	_, _, err := f.gate.Authorize(context.Background(), token, "HWID-1", "cs2")
	wantDenied(t, err, ReasonNoLicense)
}

func TestAuthenticateSkipsHardwareAndLicense(t *testing.T) {
	f := newFixture(t)
	token := f.addAccount(t, 1, "alice", "", false)

	acc, err := f.gate.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if acc.Username != "alice" {
		t.Fatalf("username = %q", acc.Username)
	}
}
