// Command seed-db applies the schema, loads the jewelry catalog and
// provisions an admin account.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/gemstore/internal/domain/auth"
	"github.com/xenking/gemstore/internal/storage/postgres"
)

type options struct {
	databaseURL   string
	catalogFile   string
	workers       int
	adminUsername string
	adminEmail    string
	adminPassword string
	bcryptCost    int
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file, optionally gzip-compressed (.gz)")
	flag.IntVar(&opts.workers, "workers", 4, "parallel catalog upserts")
	flag.StringVar(&opts.adminUsername, "admin-username", "admin", "admin account username")
	flag.StringVar(&opts.adminEmail, "admin-email", "admin@gemstore.local", "admin account email")
	flag.StringVar(&opts.adminPassword, "admin-password", "", "admin account password (or GEMSTORE_SEED_ADMIN_PASSWORD env); empty skips the admin")
	flag.IntVar(&opts.bcryptCost, "bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost for the admin password")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.adminPassword == "" {
		opts.adminPassword = os.Getenv("GEMSTORE_SEED_ADMIN_PASSWORD")
	}
	if opts.workers < 1 {
		opts.workers = 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL, postgres.PoolConfig{MaxConns: int32(opts.workers) + 1})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, postgres.NewCatalogRepository(pool), opts); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	if opts.adminPassword == "" {
		slog.Warn("admin password not set, skipping admin account")
		return nil
	}
	if err := seedAdmin(ctx, postgres.NewAdminRepository(pool), opts); err != nil {
		return errors.Wrap(err, "seed admin")
	}

	return nil
}

func seedCatalog(ctx context.Context, repo itemUpserter, opts options) error {
	slog.Info("reading catalog file", slog.String("path", opts.catalogFile))

	rc, err := openCatalog(opts.catalogFile)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	items, err := readCatalog(rc)
	if err != nil {
		return errors.Wrapf(err, "read %s", opts.catalogFile)
	}

	return upsertItems(ctx, repo, items, opts.workers)
}

func seedAdmin(ctx context.Context, repo auth.Repository, opts options) error {
	slog.Info("seeding admin account", slog.String("username", opts.adminUsername))

	hash, err := auth.HashPassword(opts.adminPassword, opts.bcryptCost)
	if err != nil {
		return err
	}

	p := &auth.Principal{
		Username:     opts.adminUsername,
		Email:        opts.adminEmail,
		PasswordHash: hash,
	}
	if err := repo.Upsert(ctx, p); err != nil {
		return errors.Wrapf(err, "upsert admin %s", opts.adminUsername)
	}

	slog.Info("upserted admin", slog.Int64("id", p.ID), slog.String("username", p.Username))
	return nil
}
