package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gavrikov2044-bot/cs-legit/internal/account"
	"github.com/gavrikov2044-bot/cs-legit/internal/artifact"
	"github.com/gavrikov2044-bot/cs-legit/internal/catalog"
	"github.com/gavrikov2044-bot/cs-legit/internal/gate"
	"github.com/gavrikov2044-bot/cs-legit/internal/license"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
	hwidHeader = "X-HWID"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// handleDomainError maps service errors onto the API's status taxonomy.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *gate.DeniedError
	if errors.As(err, &denied) {
		handleDenied(w, r, denied)
		return
	}
	switch {
	case errors.Is(err, account.ErrInvalidInput),
		errors.Is(err, license.ErrInvalidInput),
		errors.Is(err, catalog.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, license.ErrInvalidKey):
		writeError(w, r, http.StatusBadRequest, "invalid or already used license key")
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, account.ErrHWIDMismatch):
		writeError(w, r, http.StatusForbidden, "hardware id mismatch")
	case errors.Is(err, account.ErrSelfDelete):
		writeError(w, r, http.StatusBadRequest, "cannot delete your own account")
	case errors.Is(err, account.ErrNotFound),
		errors.Is(err, license.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, artifact.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, account.ErrUsernameTaken):
		writeError(w, r, http.StatusConflict, "username already taken")
	case errors.Is(err, license.ErrConflict), errors.Is(err, catalog.ErrConflict):
		writeError(w, r, http.StatusConflict, "already exists")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleDenied(w http.ResponseWriter, r *http.Request, denied *gate.DeniedError) {
	switch denied.Reason {
	case gate.ReasonInvalidToken, gate.ReasonAccountNotFound:
		writeError(w, r, http.StatusUnauthorized, "invalid or expired session")
	case gate.ReasonHwidRequired:
		writeError(w, r, http.StatusBadRequest, "hardware id is required")
	case gate.ReasonHwidMismatch:
		writeError(w, r, http.StatusForbidden, "hardware id mismatch")
	case gate.ReasonBanned:
		msg := "account banned"
		if denied.Detail != "" {
			msg = "account banned: " + denied.Detail
		}
		writeError(w, r, http.StatusForbidden, msg)
	case gate.ReasonNoLicense:
		writeError(w, r, http.StatusForbidden, "no active license for this product")
	default:
		writeError(w, r, http.StatusForbidden, "access denied")
	}
}

// authenticate resolves the bearer token into an account, enforcing ban
// state.
func (a *API) authenticate(w http.ResponseWriter, r *http.Request) (*account.Account, bool) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return nil, false
	}
	acc, err := a.deps.Gate.Authenticate(r.Context(), token)
	if err != nil {
		handleDomainError(w, r, err)
		return nil, false
	}
	return acc, true
}

// requireAdmin guards the operator console routes.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc, ok := a.authenticate(w, r)
		if !ok {
			return
		}
		if !acc.IsAdmin {
			writeError(w, r, http.StatusForbidden, "administrator access required")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithAccount(r.Context(), acc)))
	})
}
