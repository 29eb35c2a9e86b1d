package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gavrikov2044-bot/cs-legit/internal/account"
	"github.com/gavrikov2044-bot/cs-legit/internal/artifact"
	"github.com/gavrikov2044-bot/cs-legit/internal/broadcast"
	"github.com/gavrikov2044-bot/cs-legit/internal/catalog"
	"github.com/gavrikov2044-bot/cs-legit/internal/codec"
	"github.com/gavrikov2044-bot/cs-legit/internal/config"
	"github.com/gavrikov2044-bot/cs-legit/internal/gate"
	"github.com/gavrikov2044-bot/cs-legit/internal/httpapi"
	"github.com/gavrikov2044-bot/cs-legit/internal/license"
	"github.com/gavrikov2044-bot/cs-legit/internal/obs"
	"github.com/gavrikov2044-bot/cs-legit/internal/session"
	"github.com/gavrikov2044-bot/cs-legit/internal/store/sqlite"
	"github.com/gavrikov2044-bot/cs-legit/internal/updatecheck"
)

var version = "1.4.0"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sqlite.Open(cfg.DB.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	// The schema is applied on boot; sqlite migrations are cheap and the
	// migrate binary stays available for downgrades and seeding.
	if err := sqlite.Migrate(context.Background(), db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	c, err := codec.New(cfg.Auth.EncryptionKey)
	if err != nil {
		log.Fatalf("codec: %v", err)
	}
	artifacts, err := artifact.NewStore(cfg.Storage.Root, c)
	if err != nil {
		log.Fatalf("artifact store: %v", err)
	}

	sessions, err := session.NewIssuer(cfg.Auth.SigningSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("session issuer: %v", err)
	}

	ciTokens, err := cfg.CI.ParseCITokens()
	if err != nil {
		log.Fatalf("ci tokens: %v", err)
	}

	accounts := account.NewService(sqlite.NewAccountStore(db))
	licenses := license.NewService(sqlite.NewLicenseStore(db))
	cat := catalog.NewService(sqlite.NewCatalogStore(db), artifacts,
		catalog.WithCacheTTL(cfg.Status.CacheTTL),
		catalog.WithStaleOffsetsAge(cfg.Status.OffsetsStaleAge),
	)
	checker := updatecheck.New(cfg.Steam.AppID, cfg.Steam.RequestTimeout, artifacts,
		updatecheck.WithCacheTTL(cfg.Steam.CacheTTL),
	)

	api := httpapi.New(httpapi.Deps{
		Accounts:  accounts,
		Licenses:  licenses,
		Catalog:   cat,
		Artifacts: artifacts,
		Sessions:  sessions,
		Gate:      gate.New(sessions, accounts, licenses),
		Hub:       broadcast.New(),
		Checker:   checker,
		CITokens:  ciTokens,
	}, httpapi.ReadyProbe{DB: db}, cfg.Server, version)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Printf("Starting launcher-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
