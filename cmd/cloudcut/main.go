package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cloudcut/cloudcut-engine/internal/api"
	"github.com/cloudcut/cloudcut-engine/internal/assets"
	"github.com/cloudcut/cloudcut-engine/internal/config"
	"github.com/cloudcut/cloudcut-engine/internal/db"
	"github.com/cloudcut/cloudcut-engine/internal/engine"
	"github.com/cloudcut/cloudcut-engine/internal/export"
	"github.com/cloudcut/cloudcut-engine/internal/logging"
	"github.com/cloudcut/cloudcut-engine/internal/media"
	"github.com/cloudcut/cloudcut-engine/internal/timeline"
)

// demoClipDuration seeds the timeline with one simulated clip so the
// control surface is usable immediately.
const demoClipDuration = 12.0

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting cloudcut engine",
		"version", config.Version,
		"data_dir", cfg.DataDir(),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	signingSecret := cfg.SigningSecret()
	if signingSecret == "" {
		signingSecret, err = ensureSigningSecret(database.Conn())
		if err != nil {
			return fmt.Errorf("failed to ensure signing secret: %w", err)
		}
	}
	signer := assets.NewSigner(signingSecret, cfg.APIKey(), cfg.CloudName())

	var store assets.Store
	if cfg.UploadBaseURL() != "" {
		store = assets.NewHTTPStore(cfg.UploadBaseURL(), cfg.UploadToken(), logger)
		logger.Info("using remote asset store", "base_url", cfg.UploadBaseURL())
	} else {
		local, err := assets.NewLocalStore(database, cfg.BlobDir(), signer, logger)
		if err != nil {
			return fmt.Errorf("failed to create local asset store: %w", err)
		}
		store = local
		logger.Info("using local asset store", "blob_dir", cfg.BlobDir())
	}

	eng, err := engine.New(engine.Config{
		Logger:          logger,
		Store:           store,
		Signer:          signer,
		SourceFactory:   simSourceFactory(),
		RecorderFactory: &export.SimRecorderFactory{},
	})
	if err != nil {
		return fmt.Errorf("failed to construct engine: %w", err)
	}
	defer eng.Teardown()

	if _, err := eng.AddClip("sim://demo", "Demo Clip", demoClipDuration); err != nil {
		logger.Warn("failed to seed demo clip", "error", err)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Engine:    eng,
		Store:     store,
		Signer:    signer,
		AuthToken: cfg.AuthToken(),
		Logger:    logger,
		StartTime: startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()
	logger.Info("control API listening", "addr", apiServer.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// simSourceFactory opens simulated clip sources. Real frame decoding lives
// in the host environment; the engine only needs the Source contract.
func simSourceFactory() timeline.SourceFactory {
	return func(ref string) (media.Source, error) {
		return media.NewSimSource(media.SimConfig{
			AssetRef: ref,
			Width:    640,
			Height:   360,
			Duration: demoClipDuration,
		}), nil
	}
}

// ensureSigningSecret loads the persistent signing secret, generating one on
// first run.
func ensureSigningSecret(conn *sql.DB) (string, error) {
	var existing string
	err := conn.QueryRow("SELECT value FROM config WHERE key = 'signing_secret'").Scan(&existing)
	if err == nil && existing != "" {
		return existing, nil
	}
	if err != nil && err != sql.ErrNoRows {
		return "", err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(raw)

	if _, err := conn.Exec("INSERT INTO config (key, value) VALUES ('signing_secret', ?)", secret); err != nil {
		return "", err
	}
	return secret, nil
}
