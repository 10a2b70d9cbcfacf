// Command db_migrations applies pending schema migrations from the
// migrations/ directory and reports the version transition.
package main

import (
	"database/sql"
	"errors"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/trackit-official/sync-service/internal/config"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=migrations msg=\"config load failed\" err=%v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatalf("level=fatal component=migrations msg=\"database url must be configured\" env=DATABASE_URL")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=migrations msg=\"database open failed\" err=%v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("level=fatal component=migrations msg=\"migration driver init failed\" err=%v", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		log.Fatalf("level=fatal component=migrations msg=\"migrator init failed\" err=%v", err)
	}

	preVersion, _, err := m.Version()
	if err != nil {
		if !errors.Is(err, migrate.ErrNilVersion) {
			log.Fatalf("level=fatal component=migrations msg=\"version read failed\" err=%v", err)
		}
		preVersion = 0
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("level=fatal component=migrations msg=\"migration failed\" err=%v", err)
	}

	postVersion, _, err := m.Version()
	if err != nil {
		log.Fatalf("level=fatal component=migrations msg=\"version read failed\" err=%v", err)
	}

	log.Printf("level=info component=migrations msg=\"migrations applied\" from=%d to=%d", preVersion, postVersion)
}
