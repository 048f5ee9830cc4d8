package main

import (
	"flag"
	"log"

	"github.com/openboard/openboard/api"
	"github.com/openboard/openboard/auth"
	"github.com/openboard/openboard/auth/db"
	"github.com/openboard/openboard/internal/config"
)

// migrate brings the PostgreSQL schema up to date with the current models.
// The server runs the same migration at startup; this tool exists so schema
// changes can be applied ahead of a rolling deploy.
func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	dbManager := db.NewManager()
	log.Printf("Connecting to PostgreSQL at %s:%s/%s",
		cfg.Database.Postgres.Host, cfg.Database.Postgres.Port, cfg.Database.Postgres.Database)
	if err := dbManager.InitPostgres(db.PostgresConfig{
		Host:     cfg.Database.Postgres.Host,
		Port:     cfg.Database.Postgres.Port,
		User:     cfg.Database.Postgres.User,
		Password: cfg.Database.Postgres.Password,
		Database: cfg.Database.Postgres.Database,
		SSLMode:  cfg.Database.Postgres.SSLMode,
	}); err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Printf("Error closing database manager: %v", err)
		}
	}()

	log.Println("Running migrations...")
	if err := dbManager.Postgres().Gorm().AutoMigrate(
		&auth.User{},
		&api.Room{},
		&api.Operation{},
		&api.Message{},
		&api.Snapshot{},
	); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations completed successfully")
}
