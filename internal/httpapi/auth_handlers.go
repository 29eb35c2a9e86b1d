package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gavrikov2044-bot/cs-legit/internal/obs"
)

type registerRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	LicenseKey string `json:"license_key"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	HWID     string `json:"hwid"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      any       `json:"user"`
}

type activateRequest struct {
	Key string `json:"key"`
}

// handleRegister creates an account behind a closed door: a valid unassigned
// license key is the admission ticket, and it is consumed by the same call.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.LicenseKey) == "" {
		writeError(w, r, http.StatusBadRequest, "license key required for registration")
		return
	}
	id, err := a.deps.Accounts.Create(r.Context(), req.Username, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	res, err := a.deps.Licenses.Redeem(r.Context(), req.LicenseKey, id)
	if err != nil {
		// The key decides admission, so an account without one must not
		// survive the failed redemption.
		if delErr := a.deps.Accounts.Delete(r.Context(), id, 0); delErr != nil {
			obs.LogEvent("error", "registration rollback failed", map[string]any{
				"account": id, "error": delErr.Error(),
			})
		}
		handleDomainError(w, r, err)
		return
	}
	obs.RedemptionsTotal.Inc()
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         id,
		"username":   strings.TrimSpace(req.Username),
		"product_id": res.ProductID,
		"expires_at": res.ExpiresAt,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := a.deps.Accounts.VerifyPassword(r.Context(), req.Username, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if acc.IsBanned {
		reason := acc.BanReason
		if reason == "" {
			reason = "Contact support for details"
		}
		writeError(w, r, http.StatusForbidden, "account banned: "+reason)
		return
	}
	// Binding at login keeps a stolen password useless on other machines.
	if hwid := strings.TrimSpace(req.HWID); hwid != "" {
		if err := a.deps.Gate.BindHardware(r.Context(), acc, hwid); err != nil {
			handleDomainError(w, r, err)
			return
		}
	}
	if err := a.deps.Accounts.TouchLastLogin(r.Context(), acc.ID); err != nil {
		obs.LogEvent("warn", "last login update failed", map[string]any{
			"account": acc.ID, "error": err.Error(),
		})
	}
	token, expiresAt, err := a.deps.Sessions.Issue(acc.ID, acc.Username)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      acc,
	})
}

func (a *API) handleActivate(w http.ResponseWriter, r *http.Request) {
	acc, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	var req activateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.deps.Licenses.Redeem(r.Context(), req.Key, acc.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.RedemptionsTotal.Inc()
	writeJSON(w, http.StatusOK, res)
}

// handleVerify runs the full download authorization chain without moving any
// bytes, so launchers can fail fast before fetching.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	product := strings.TrimSpace(r.URL.Query().Get("game"))
	if product == "" {
		writeError(w, r, http.StatusBadRequest, "game query parameter is required")
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	_, lic, err := a.deps.Gate.Authorize(r.Context(), token, r.Header.Get(hwidHeader), product)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, map[string]any{
		"authorized":     true,
		"product_id":     lic.ProductID,
		"status":         lic.StatusAt(now),
		"expires_at":     lic.ExpiresAt,
		"days_remaining": lic.DaysRemainingAt(now),
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	acc, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	licenses, err := a.deps.Licenses.AllForAccount(r.Context(), acc.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	downloads, err := a.deps.Accounts.RecentDownloads(r.Context(), acc.ID, 20)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      acc,
		"licenses":  licenses,
		"downloads": downloads,
	})
}

func productParam(r *http.Request) string {
	return strings.ToLower(strings.TrimSpace(chi.URLParam(r, "product")))
}
