package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/yumyai/varenrich/internal/config"
	"github.com/yumyai/varenrich/logger"
	"github.com/yumyai/varenrich/pkg/db"
	"github.com/yumyai/varenrich/pkg/dispatch"
	"github.com/yumyai/varenrich/pkg/export"
	"github.com/yumyai/varenrich/pkg/handler"
	"github.com/yumyai/varenrich/pkg/model"
	"github.com/yumyai/varenrich/pkg/pipeline"
	"github.com/yumyai/varenrich/pkg/scoring"
	"github.com/yumyai/varenrich/pkg/tools"
)

const VERSION = "0.1.0"

func main() {
	cfg, dotenv := config.Load()

	// Establish logger
	if err := logger.InitLogger(logger.ParseLevel(cfg.LogLevel)); err != nil {
		panic(err)
	}
	defer logger.Sync() // Make sure that the buffered is flushed.

	if !dotenv {
		logger.Warn("No .env found, using local environment")
	}
	logger.Info("Start:", zap.String("Version", VERSION))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.CheckAnnotationRefs(); err != nil {
		// projects can still be created and configured
		logger.Warn("Assemble stage unavailable", zap.Error(err))
	}

	store, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Open database on", zap.String("driver", cfg.DBDriver))

	if n, err := store.AbandonRunningJobs(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Warn("Jobs interrupted by restart", zap.Int("jobs", n))
	}

	if cfg.IGSRVCF != "" && cfg.IGSRPanel != "" {
		err := store.PutBackgroundSet(ctx, model.BackgroundSet{
			Name:       model.DefaultBackground,
			File:       cfg.IGSRVCF,
			Population: cfg.IGSRPanel,
		})
		if err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	local := dispatch.NewLocal()
	defer local.Close()

	orch := pipeline.New(store,
		tools.NewExec(cfg.Jannovar),
		scoring.NewHTTPClient(cfg.CaddURL, cfg.CaddVersion),
		local,
		pipeline.Options{
			ProjectsDir: cfg.ProjectsDir(),
			Refs: tools.AnnotationRefs{
				ReferenceFasta: cfg.ReferenceFasta,
				GnomadVCF:      cfg.GnomadVCF,
				TranscriptDB:   cfg.TranscriptDB,
			},
			ScoreRetry: cfg.CaddRetry,
		})
	orch.SetMetrics(pipeline.NewMetrics(reg))
	local.SetRunner(orch)

	if cfg.S3Bucket != "" {
		exp, err := export.New(ctx, export.Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			PathStyle:       cfg.S3PathStyle,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		})
		if err != nil {
			return err
		}
		orch.SetExporter(exp)
		logger.Info("Result export enabled", zap.String("bucket", cfg.S3Bucket))
	}

	if n, err := orch.ResumeWaiting(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Info("Resumed scoring checks", zap.Int("projects", n))
	}

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: handler.NewRouter(&handler.AppContext{
			Store:       store,
			Pipeline:    orch,
			ProjectsDir: cfg.ProjectsDir(),
			Gatherer:    reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("listen", cfg.Listen))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
