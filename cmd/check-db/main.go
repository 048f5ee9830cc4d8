package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/openboard/openboard/auth/db"
	"github.com/openboard/openboard/internal/config"
)

// check-db verifies that the configured PostgreSQL and Redis instances are
// reachable and that the expected schema is in place.
func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	dbManager := db.NewManager()
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
	defer func() { _ = dbManager.Close() }()

	ctx := context.Background()
	sqlDB := dbManager.Postgres().DB()

	if err := sqlDB.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping PostgreSQL: %v", err)
	}
	fmt.Printf("✓ Connected to database '%s'\n\n", cfg.Database.Postgres.Database)

	tables := []string{"users", "rooms", "operations", "messages", "snapshots"}

	fmt.Println("Checking tables:")
	allTablesExist := true
	for _, table := range tables {
		var exists bool
		query := `SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)`
		if err := sqlDB.QueryRowContext(ctx, query, table).Scan(&exists); err != nil {
			fmt.Printf("  ✗ Error checking table '%s': %v\n", table, err)
			allTablesExist = false
		} else if exists {
			var count int
			countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
			_ = sqlDB.QueryRowContext(ctx, countQuery).Scan(&count)
			fmt.Printf("  ✓ Table '%s' exists (rows: %d)\n", table, count)
		} else {
			fmt.Printf("  ✗ Table '%s' does not exist\n", table)
			allTablesExist = false
		}
	}

	fmt.Println("\nChecking indexes:")
	indexes := []string{"idx_room_sequence"}
	for _, index := range indexes {
		var exists bool
		query := `SELECT EXISTS (
			SELECT FROM pg_indexes
			WHERE schemaname = 'public'
			AND indexname = $1
		)`
		if err := sqlDB.QueryRowContext(ctx, query, index).Scan(&exists); err != nil {
			fmt.Printf("  ✗ Error checking index '%s': %v\n", index, err)
		} else if exists {
			fmt.Printf("  ✓ Index '%s' exists\n", index)
		} else {
			fmt.Printf("  ✗ Index '%s' does not exist\n", index)
		}
	}

	fmt.Println("\nChecking Redis:")
	if err := dbManager.InitRedis(db.RedisConfig{
		Host:     cfg.Database.Redis.Host,
		Port:     cfg.Database.Redis.Port,
		Password: cfg.Database.Redis.Password,
		DB:       cfg.Database.Redis.DB,
	}); err != nil {
		fmt.Printf("  ✗ Failed to connect to Redis: %v\n", err)
	} else if err := dbManager.Redis().Ping(ctx); err != nil {
		fmt.Printf("  ✗ Failed to ping Redis: %v\n", err)
	} else {
		fmt.Printf("  ✓ Redis reachable at %s:%s\n", cfg.Database.Redis.Host, cfg.Database.Redis.Port)
	}

	if allTablesExist {
		fmt.Println("\n✅ Database schema is properly set up!")
	} else {
		fmt.Println("\n❌ Database schema is incomplete. Run the migrate tool first.")
	}
}
