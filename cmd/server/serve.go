package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/library-engine/access"
	"github.com/warp/library-engine/api"
	"github.com/warp/library-engine/config"
	"github.com/warp/library-engine/library"
	"github.com/warp/library-engine/store/sqlite"
	"github.com/warp/library-engine/upload"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

// app is everything the commands share: configuration, storage and the
// domain services built on it.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	store    *sqlite.Store
	local    *upload.Local // nil unless storage.backend is local
	services api.Services
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	log := cfg.NewLogger()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &app{cfg: cfg, log: log, store: store}
	var files upload.Provider
	switch cfg.Storage.Backend {
	case config.BackendS3:
		files, err = upload.NewS3(ctx, upload.S3Options{
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			URLTTL:          cfg.Storage.URLTTL,
		})
	default:
		a.local, err = upload.NewLocal(upload.LocalOptions{
			Dir:        cfg.Storage.Local.Dir,
			BaseURL:    cfg.Storage.Local.BaseURL,
			SigningKey: cfg.Storage.Local.SigningKey,
			URLTTL:     cfg.Storage.URLTTL,
		})
		files = a.local
	}
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize file storage: %w", err)
	}

	a.services = api.Services{
		Issuance: library.NewIssuance(store, library.NewInventory(store), log),
		Catalog:  library.NewCatalog(store),
		Readers:  library.NewReaders(store, files, log),
		Admins:   library.NewAdmins(store, access.NewBcryptHasher(bcrypt.DefaultCost), files, log),
		Payments: library.NewPayments(store),
	}
	return a, nil
}

func serve(ctx context.Context) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()
	cfg := a.cfg

	tokens, err := access.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	opts := api.Options{
		CookieName:   cfg.Auth.CookieName,
		CookieSecure: cfg.Auth.CookieSecure,
		MaxFileSize:  cfg.Storage.MaxFileSize,
		CORSOrigins:  cfg.Server.CORSOrigins,
		RateLimit: api.RateLimit{
			Enabled: cfg.RateLimit.Enabled,
			RPS:     cfg.RateLimit.RPS,
			Burst:   cfg.RateLimit.Burst,
		},
		Ping: a.store.Ping,
	}
	if a.local != nil {
		opts.Files = a.local.Handler()
	}
	router := api.NewRouter(api.NewHandler(a.services, tokens, a.log, opts))

	scheduler := api.NewOverdueScheduler(a.services.Issuance, a.log)
	scheduler.Enabled = cfg.Overdue.Enabled
	scheduler.CheckInterval = cfg.Overdue.Interval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.WithFields(logrus.Fields{
			"port":    cfg.Server.Port,
			"storage": cfg.Storage.Backend,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}
