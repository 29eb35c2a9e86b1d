// Package httpapi is the HTTP surface of the delivery service: launcher
// endpoints, the operator console API and the automation (CI) hooks.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gavrikov2044-bot/cs-legit/internal/account"
	"github.com/gavrikov2044-bot/cs-legit/internal/artifact"
	"github.com/gavrikov2044-bot/cs-legit/internal/broadcast"
	"github.com/gavrikov2044-bot/cs-legit/internal/catalog"
	"github.com/gavrikov2044-bot/cs-legit/internal/config"
	"github.com/gavrikov2044-bot/cs-legit/internal/gate"
	"github.com/gavrikov2044-bot/cs-legit/internal/license"
	"github.com/gavrikov2044-bot/cs-legit/internal/obs"
	"github.com/gavrikov2044-bot/cs-legit/internal/session"
	"github.com/gavrikov2044-bot/cs-legit/internal/updatecheck"
)

// ReadyProbe reports whether the service can take traffic.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps bundles the collaborators the API serves.
type Deps struct {
	Accounts  *account.Service
	Licenses  *license.Service
	Catalog   *catalog.Service
	Artifacts *artifact.Store
	Sessions  *session.Issuer
	Gate      *gate.Gate
	Hub       *broadcast.Hub
	Checker   *updatecheck.Checker
	CITokens  []config.CIToken
}

// API is the HTTP layer.
type API struct {
	deps       Deps
	readyProbe ReadyProbe
	server     config.ServerConfig
	version    string
}

// New constructs the API.
func New(deps Deps, rp ReadyProbe, server config.ServerConfig, version string) *API {
	return &API{deps: deps, readyProbe: rp, server: server, version: version}
}

// Handler builds the routed, instrumented handler tree.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logging)
	r.Use(SecurityHeaders)
	if a.server.RateLimitRPS > 0 {
		r.Use(RateLimit(a.server.RateLimitBurst, a.server.RateLimitRPS))
	}
	if a.server.MaxBodyBytes > 0 {
		r.Use(MaxBodyBytes(a.server.MaxBodyBytes))
	}

	r.Get("/healthz", a.handleHealthz)
	r.Get("/health", a.handleHealthz)
	r.Get("/readyz", a.handleReady)
	r.Handle("/metrics", obs.Handler())
	if a.deps.Hub != nil {
		r.Get("/ws", a.deps.Hub.ServeWS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", a.handleRegister)
			r.Post("/login", a.handleLogin)
			r.Post("/activate", a.handleActivate)
			r.Get("/verify", a.handleVerify)
			r.Get("/me", a.handleMe)
		})

		r.Route("/games", func(r chi.Router) {
			r.Get("/", a.handleGames)
			r.Get("/status", a.handleGamesStatus)
			r.Get("/{product}", a.handleGame)
			r.Get("/{product}/status", a.handleGameStatus)
			r.Get("/{product}/versions", a.handleGameVersions)
			r.Get("/{product}/update-check", a.handleUpdateCheck)
		})

		r.Route("/download", func(r chi.Router) {
			r.Get("/launcher", a.handleDownloadLauncher)
			r.Get("/{product}/latest", a.handleDownloadLatest)
			r.Get("/{product}/{version}", a.handleDownloadVersion)
		})

		r.Route("/offsets", func(r chi.Router) {
			r.Get("/{product}", a.handleOffsets)
			r.Get("/{product}/hash", a.handleOffsetsHash)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(a.requireAdmin)
			r.Get("/stats", a.handleAdminStats)

			r.Get("/users", a.handleAdminUsers)
			r.Get("/users/{id}", a.handleAdminUser)
			r.Post("/users/{id}/ban", a.handleAdminBan)
			r.Post("/users/{id}/unban", a.handleAdminUnban)
			r.Post("/users/{id}/hwid/reset", a.handleAdminResetHWID)
			r.Delete("/users/{id}", a.handleAdminDeleteUser)
			r.Post("/users/{id}/licenses", a.handleAdminExtendLicense)
			r.Delete("/users/{id}/licenses/{product}", a.handleAdminRevokeLicense)

			r.Post("/licenses", a.handleAdminIssueLicenses)
			r.Get("/licenses", a.handleAdminListLicenses)
			r.Delete("/licenses/{key}", a.handleAdminDeleteLicense)

			r.Post("/games", a.handleAdminCreateGame)
			r.Post("/games/{product}/versions", a.handleAdminUploadVersion)
			r.Post("/games/{product}/offsets", a.handleAdminUploadOffsets)
			r.Post("/games/{product}/status", a.handleAdminSetStatus)
			r.Post("/games/{product}/toggle", a.handleAdminToggleStatus)
		})

		r.Route("/ci", func(r chi.Router) {
			r.With(a.requireCIScope("upload")).Post("/{product}/versions", a.handleAdminUploadVersion)
			r.With(a.requireCIScope("offsets")).Post("/{product}/offsets", a.handleAdminUploadOffsets)
			r.With(a.requireCIScope("status")).Post("/{product}/status", a.handleAdminSetStatus)
		})
	})

	return obs.Instrument(r)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "cs-legit-api",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
