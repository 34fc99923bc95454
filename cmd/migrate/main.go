package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"taskhub.io/internal/auth"
	"taskhub.io/internal/migrate"
	"taskhub.io/internal/obs"
	"taskhub.io/internal/store/pg"
	"taskhub.io/internal/tenant"
	"taskhub.io/migrations"
)

func main() {
	log.SetFlags(0)
	var (
		dsn      = flag.String("dsn", os.Getenv("TASKHUB_PG_DSN"), "PostgreSQL DSN")
		email    = flag.String("email", os.Getenv("TASKHUB_BOOTSTRAP_EMAIL"), "super admin email (bootstrap-admin)")
		password = flag.String("password", os.Getenv("TASKHUB_BOOTSTRAP_PASSWORD"), "super admin password (bootstrap-admin)")
		name     = flag.String("name", "Platform Admin", "super admin full name (bootstrap-admin)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or TASKHUB_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status|bootstrap-admin]")
	}

	logger, err := obs.InitLogger("info", "development", "taskhub-migrate")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := pg.Open(*dsn, pg.Pool{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	mgr := migrate.NewManager(st.DB(), migrations.FS, migrate.WithLogger(logger))

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		if err == nil && len(applied) == 0 {
			fmt.Println("already up to date")
		}
	case "down":
		_, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			fmt.Println("nothing to roll back")
			err = nil
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "bootstrap-admin":
		err = bootstrap(ctx, st, logger, *email, *password, *name)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

func bootstrap(ctx context.Context, st *pg.Store, logger *zap.Logger, email, password, name string) error {
	tokens, err := auth.NewJWTTokens("bootstrap-only", "taskhub", time.Now)
	if err != nil {
		return err
	}
	svc, err := auth.NewService(st, tenant.NewDirectory(st), tokens, auth.WithLogger(logger))
	if err != nil {
		return err
	}
	u, created, err := svc.BootstrapSuperAdmin(ctx, email, password, name)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("created super admin %s (%s)\n", u.Email, u.ID)
	} else {
		fmt.Printf("super admin %s already exists\n", u.Email)
	}
	return nil
}
