// seed loads the built-in policy templates into the database. Idempotent:
// existing templates are replaced with the current built-in version.
package main

import (
	"context"
	"log"

	"temp-access-vendor/internal/config"
	"temp-access-vendor/internal/db"
	policydomain "temp-access-vendor/internal/policy/domain"
	policyrepo "temp-access-vendor/internal/policy/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	repo := policyrepo.NewPostgresRepository(conn)
	ctx := context.Background()
	for _, tmpl := range policydomain.Builtins() {
		t := tmpl
		if err := repo.Upsert(ctx, &t); err != nil {
			log.Fatalf("seed template %s: %v", t.Tier, err)
		}
		log.Printf("seeded policy template %s (version %d)", t.Tier, t.Version)
	}
}
