// Package gate decides, per request, whether a principal may fetch a given
// artifact. It composes the session issuer with the credential store and the
// license ledger: possession of a valid token is necessary but never
// sufficient, current ban and hardware-identity state always win.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gavrikov2044-bot/cs-legit/internal/account"
	"github.com/gavrikov2044-bot/cs-legit/internal/license"
	"github.com/gavrikov2044-bot/cs-legit/internal/session"
)

// Reason classifies a denial.
type Reason string

const (
	ReasonInvalidToken    Reason = "invalid_token"
	ReasonAccountNotFound Reason = "account_not_found"
	ReasonBanned          Reason = "banned"
	ReasonHwidRequired    Reason = "hwid_required"
	ReasonHwidMismatch    Reason = "hwid_mismatch"
	ReasonNoLicense       Reason = "no_license"
)

// DeniedError is the terminal state of a failed authorization chain.
type DeniedError struct {
	Reason Reason
	Detail string
}

func (e *DeniedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("gate: denied (%s)", e.Reason)
	}
	return fmt.Sprintf("gate: denied (%s): %s", e.Reason, e.Detail)
}

func deny(reason Reason, detail string) error {
	return &DeniedError{Reason: reason, Detail: detail}
}

// Gate evaluates the per-request authorization state machine.
type Gate struct {
	sessions *session.Issuer
	accounts *account.Service
	licenses *license.Service
}

// New wires the gate's collaborators.
func New(sessions *session.Issuer, accounts *account.Service, licenses *license.Service) *Gate {
	return &Gate{sessions: sessions, accounts: accounts, licenses: licenses}
}

// Authenticate runs the token, account-resolution and ban transitions and
// returns the resolved account. Used by routes that need identity but no
// license or hardware binding.
func (g *Gate) Authenticate(ctx context.Context, token string) (*account.Account, error) {
	id, err := g.sessions.Verify(token)
	if err != nil {
		return nil, deny(ReasonInvalidToken, "")
	}
	acc, err := g.accounts.Find(ctx, id.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, deny(ReasonAccountNotFound, "")
		}
		return nil, err
	}
	if acc.IsBanned {
		return nil, deny(ReasonBanned, banDetail(acc))
	}
	return acc, nil
}

// BindHardware runs the hardware-identity transition: the caller must supply
// an identity; an unbound account is bound on first use, a bound account must
// match exactly.
func (g *Gate) BindHardware(ctx context.Context, acc *account.Account, hwid string) error {
	hwid = strings.TrimSpace(hwid)
	if hwid == "" {
		return deny(ReasonHwidRequired, "")
	}
	if err := g.accounts.BindHWID(ctx, acc.ID, hwid); err != nil {
		if errors.Is(err, account.ErrHWIDMismatch) {
			return deny(ReasonHwidMismatch, "")
		}
		return err
	}
	if acc.HWID == "" {
		acc.HWID = hwid
	}
	return nil
}

// Authorize runs the full chain for an artifact request and returns the
// resolved account together with the active license that admits it.
func (g *Gate) Authorize(ctx context.Context, token, hwid, productID string) (*account.Account, *license.License, error) {
	acc, err := g.Authenticate(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if err := g.BindHardware(ctx, acc, hwid); err != nil {
		return nil, nil, err
	}
	lic, err := g.licenses.QueryActive(ctx, acc.ID, productID)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			return nil, nil, deny(ReasonNoLicense, "")
		}
		return nil, nil, err
	}
	return acc, lic, nil
}

func banDetail(acc *account.Account) string {
	if acc.BanReason != "" {
		return acc.BanReason
	}
	return "Contact support for details"
}
