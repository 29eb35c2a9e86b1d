package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gavrikov2044-bot/cs-legit/internal/account"
	"github.com/gavrikov2044-bot/cs-legit/internal/catalog"
	"github.com/gavrikov2044-bot/cs-legit/internal/store/sqlite"
)

func main() {
	log.SetFlags(0)
	var (
		dbPath    = flag.String("db", envOr("LAUNCHER_DB_PATH", "data/launcher.db"), "Path to the sqlite database")
		adminUser = flag.String("admin-user", "admin", "Username for the bootstrap administrator")
		adminPass = flag.String("admin-pass", "", "Password for the bootstrap administrator")
	)
	flag.Parse()

	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status|bootstrap]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := sqlite.Migrator(db)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "bootstrap":
		err = bootstrap(ctx, db, *adminUser, *adminPass)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// bootstrap applies the schema and creates the first administrator account.
// Re-running it against a provisioned database leaves existing rows alone.
func bootstrap(ctx context.Context, db *sql.DB, user, pass string) error {
	if pass == "" {
		return errors.New("bootstrap requires -admin-pass")
	}
	if err := sqlite.Migrate(ctx, db); err != nil {
		return err
	}

	accounts := account.NewService(sqlite.NewAccountStore(db))
	id, err := accounts.Create(ctx, user, pass)
	switch {
	case errors.Is(err, account.ErrUsernameTaken):
		log.Printf("administrator %q already exists, skipping", user)
		return nil
	case err != nil:
		return err
	}
	if _, err := db.ExecContext(ctx, "update users set is_admin = 1 where id = ?", id); err != nil {
		return fmt.Errorf("promote administrator: %w", err)
	}
	log.Printf("created administrator %q (id %d)", user, id)

	store := sqlite.NewCatalogStore(db)
	for _, p := range []catalog.Product{
		{ID: "cs2-external", Name: "CS2 External", Description: "External overlay build"},
		{ID: "cs2-internal", Name: "CS2 Internal", Description: "Injected build"},
	} {
		p := p
		p.CreatedAt = time.Now().UTC()
		if err := store.CreateProduct(ctx, &p); err != nil {
			if errors.Is(err, catalog.ErrConflict) {
				continue
			}
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
		log.Printf("seeded product %q", p.ID)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
