package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"linkreview/api/internal/app"
	"linkreview/api/internal/config"
	"linkreview/api/internal/dupindex"
	"linkreview/api/internal/preview"
	"linkreview/api/internal/search"
	"linkreview/api/internal/session"
	"linkreview/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	persister, err := buildPersister(ctx, cfg)
	if err != nil {
		log.Fatalf("persistence setup failed: %v", err)
	}

	var dups dupindex.Index
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for the duplicate index")
		redisIndex, err := dupindex.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisIndex.Close()
		dups = redisIndex
	} else {
		log.Printf("Using in-memory duplicate index")
		dups = dupindex.NewMemory()
	}

	artifacts, artifactsDir, err := buildArtifactStore(ctx, cfg)
	if err != nil {
		log.Fatalf("artifact storage setup failed: %v", err)
	}

	fetcher, err := buildFetcher(cfg)
	if err != nil {
		log.Fatalf("preview fetcher setup failed: %v", err)
	}
	pipeline := preview.NewPipeline(fetcher, artifacts, cfg.PrepareWorkers)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewLocal())

	sessions := session.NewStore(cfg.SessionTTL)
	service := app.NewService(sessions, dups, pipeline, searchService, persister)

	sessions.OnInvalidate(func(token string) {
		deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := persister.Delete(deleteCtx, token); err != nil {
			log.Printf("delete persisted session %s: %v", token, err)
		}
		pipeline.PurgeSession(token)
		searchService.DeleteSession(token)
	})

	if restored, err := service.RestoreSessions(ctx); err != nil {
		log.Printf("WARNING: session restore failed (starting empty): %v", err)
	} else if restored > 0 {
		log.Printf("Restored %d sessions", restored)
	}

	stop := make(chan struct{})
	go maintenanceLoop(service, cfg.SnapshotInterval, stop)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.AdminToken, artifactsDir)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Link review API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	close(stop)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := service.PersistAll(shutdownCtx); err != nil {
		log.Printf("final snapshot failed: %v", err)
	}
}

// buildPersister prefers Postgres and falls back to a JSON snapshot file
// when no database is configured.
func buildPersister(ctx context.Context, cfg config.Config) (app.SessionPersister, error) {
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		log.Printf("Using PostgreSQL for session persistence")
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			return nil, err
		}
		return store.NewPostgresStore(db), nil
	}
	log.Printf("Using snapshot file %s for session persistence", cfg.SnapshotFile)
	return store.NewFileStore(cfg.SnapshotFile)
}

// buildArtifactStore prefers MinIO and falls back to a local directory
// served under /artifacts/. The returned dir is empty in MinIO mode.
func buildArtifactStore(ctx context.Context, cfg config.Config) (preview.ArtifactStore, string, error) {
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		log.Printf("Using MinIO at %s for preview artifacts", cfg.MinioEndpoint)
		minioStore, err := preview.NewMinioStore(ctx, preview.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, "", err
		}
		return minioStore, "", nil
	}
	log.Printf("Using local directory %s for preview artifacts", cfg.ArtifactsDir)
	local, err := preview.NewLocalStore(cfg.ArtifactsDir)
	if err != nil {
		return nil, "", err
	}
	return local, local.Dir(), nil
}

func buildFetcher(cfg config.Config) (preview.Fetcher, error) {
	if cfg.RenderPreviews {
		log.Printf("Rendering previews with headless Chrome")
		return preview.NewChromeFetcher(cfg.FetchTimeout)
	}
	return preview.NewHTTPFetcher(cfg.FetchTimeout, cfg.MaxFetchBytes), nil
}

// maintenanceLoop sweeps expired sessions and snapshots the rest.
func maintenanceLoop(service *app.Service, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if swept := service.SweepExpired(); swept > 0 {
				log.Printf("Swept %d expired sessions", swept)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := service.PersistAll(ctx); err != nil {
				log.Printf("periodic snapshot failed: %v", err)
			}
			cancel()
		}
	}
}
