package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openboard/openboard/api"
	"github.com/openboard/openboard/auth"
	authdb "github.com/openboard/openboard/auth/db"
	"github.com/openboard/openboard/internal/config"
	"github.com/openboard/openboard/internal/slogging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	if err := slogging.Initialize(slogging.Config{
		Level:            slogging.ParseLogLevel(cfg.Logging.Level),
		IsDev:            cfg.Logging.IsDev,
		LogDir:           cfg.Logging.LogDir,
		MaxAgeDays:       cfg.Logging.MaxAgeDays,
		MaxSizeMB:        cfg.Logging.MaxSizeMB,
		MaxBackups:       cfg.Logging.MaxBackups,
		AlsoLogToConsole: cfg.Logging.Console,
	}); err != nil {
		panic(err)
	}
	logger := slogging.Get()
	defer logger.Close()

	dbManager := authdb.NewManager()
	if err := dbManager.InitPostgres(authdb.PostgresConfig{
		Host:     cfg.Database.Postgres.Host,
		Port:     cfg.Database.Postgres.Port,
		User:     cfg.Database.Postgres.User,
		Password: cfg.Database.Postgres.Password,
		Database: cfg.Database.Postgres.Database,
		SSLMode:  cfg.Database.Postgres.SSLMode,
	}); err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		os.Exit(1)
	}
	if err := dbManager.InitRedis(authdb.RedisConfig{
		Host:     cfg.Database.Redis.Host,
		Port:     cfg.Database.Redis.Port,
		Password: cfg.Database.Redis.Password,
		DB:       cfg.Database.Redis.DB,
	}); err != nil {
		logger.Error("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			logger.Error("Error closing database connections: %v", err)
		}
	}()

	gormDB := dbManager.Postgres().Gorm()
	if err := gormDB.AutoMigrate(&auth.User{}, &api.Room{}, &api.Operation{}, &api.Message{}, &api.Snapshot{}); err != nil {
		logger.Error("Database migration failed: %v", err)
		os.Exit(1)
	}

	stores := &api.Stores{
		Rooms:      api.NewGormRoomStore(gormDB),
		Operations: api.NewGormOperationStore(gormDB),
		Messages:   api.NewGormMessageStore(gormDB),
		Snapshots:  api.NewGormSnapshotStore(gormDB),
	}

	authService := auth.NewService(cfg, auth.NewGormUserStore(gormDB), dbManager.Redis())

	server := api.NewServer(api.ServerDeps{
		Config:      cfg,
		AuthService: authService,
		Stores:      stores,
		Sequencer:   api.NewOperationSequencer(stores.Operations),
		Presence:    api.NewPresenceRegistry(),
		Cache:       dbManager.Redis(),
		DBManager:   dbManager,
	})
	server.Start()
	defer server.Stop()

	srv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server on %s", cfg.ListenAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	logger.Info("Server gracefully stopped")
}
