package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/defect-tracker/internal/application"
	appdefects "github.com/bryanwahyu/defect-tracker/internal/application/defects"
	appuploads "github.com/bryanwahyu/defect-tracker/internal/application/uploads"
	"github.com/bryanwahyu/defect-tracker/internal/config"
	domai "github.com/bryanwahyu/defect-tracker/internal/domain/ai"
	"github.com/bryanwahyu/defect-tracker/internal/domain/defects"
	"github.com/bryanwahyu/defect-tracker/internal/domain/uploads"
	"github.com/bryanwahyu/defect-tracker/internal/infra/ai/openai"
	"github.com/bryanwahyu/defect-tracker/internal/infra/db/migrations"
	mysqlp "github.com/bryanwahyu/defect-tracker/internal/infra/db/mysql"
	"github.com/bryanwahyu/defect-tracker/internal/infra/db/postgres"
	"github.com/bryanwahyu/defect-tracker/internal/infra/gltf"
	"github.com/bryanwahyu/defect-tracker/internal/infra/httpserver"
	"github.com/bryanwahyu/defect-tracker/internal/infra/metadata"
	minioStore "github.com/bryanwahyu/defect-tracker/internal/infra/storage"
	"github.com/bryanwahyu/defect-tracker/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("config load error", "err", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	layout := application.NewLayout(cfg.InstancePath)
	for _, dir := range []string{layout.ProcessedRoot(), layout.UploadRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	checkers := map[string]middleware.HealthChecker{
		"instance": &middleware.DirHealthChecker{Path: cfg.InstancePath},
	}

	// optional database
	var repo defects.Repository
	if cfg.DatabaseEnabled() {
		db, err := connect(ctx, cfg)
		if err != nil {
			return fmt.Errorf("%s connect error: %w", cfg.Database.Driver, err)
		}
		defer db.Close()

		if cfg.Database.AutoMigrate {
			if err := migrations.Run(cfg.Database.Driver, cfg.MigrateURL(), "up", 0); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("database migrated", "driver", cfg.Database.Driver)
		}
		if cfg.Database.Driver == "mysql" {
			repo = mysqlp.NewDefectRepository(db)
		} else {
			repo = postgres.NewDefectRepository(db)
		}
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	// optional artifact mirror
	var artifacts uploads.ArtifactStore
	if cfg.MinioEnabled() {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init error: %w", err)
		}
		artifacts = store
	}

	// optional classifier
	var classifier domai.Classifier
	if cfg.OpenAIEnabled() {
		oc := goopenai.DefaultConfig(cfg.OpenAI.APIKey)
		if cfg.OpenAI.BaseURL != "" {
			oc.BaseURL = cfg.OpenAI.BaseURL
		}
		classifier = openai.NewClientWithConfig(oc, cfg.OpenAI.Model)
	}

	metaStore := metadata.NewFileStore(layout.MetadataFile())
	defectsSvc := &appdefects.Service{
		Snapshots:  gltf.NewExtractor(logger),
		Metadata:   metaStore,
		Repo:       repo,
		Classifier: classifier,
		Layout:     layout,
		Logger:     logger,
	}
	uploadsSvc := &appuploads.Service{
		Store:     metaStore,
		Artifacts: artifacts,
		Layout:    layout,
		Clock:     application.SystemClock{},
		Logger:    logger,
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond)
	defer limiter.Stop()

	handler := httpserver.NewRouter(defectsSvc, uploadsSvc, httpserver.Options{
		Logger:         logger,
		Metrics:        middleware.NewMetrics(),
		RateLimiter:    limiter,
		HealthCheckers: checkers,
		APIKeys:        cfg.Auth.APIKeys,
		CORSOrigins:    cfg.CORS.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr,
			"database", cfg.Database.Driver, "minio", cfg.MinioEnabled(), "classifier", cfg.OpenAIEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case <-stop:
	}
	logger.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx2)
}

func connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.Database.Driver == "mysql" {
		return mysqlp.Connect(ctx, cfg.MySQLDSN())
	}
	return postgres.Connect(ctx, cfg.PostgresDSN())
}
