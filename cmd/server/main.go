package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/DoyleJ11/roulette-backend/internal/config"
	"github.com/DoyleJ11/roulette-backend/internal/game"
	"github.com/DoyleJ11/roulette-backend/internal/httpapi"
	"github.com/DoyleJ11/roulette-backend/internal/hub"
	"github.com/DoyleJ11/roulette-backend/internal/ledger"
	"github.com/DoyleJ11/roulette-backend/internal/logging"
	"github.com/DoyleJ11/roulette-backend/internal/settlement"
	"github.com/DoyleJ11/roulette-backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, l, db, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, st.Close())
		if db != nil {
			err = multierr.Append(err, store.CloseDB(db))
		}
	}()

	settler := settlement.New(l, settlement.Config{
		Attempts:   cfg.PayoutAttempts,
		MinBackoff: cfg.PayoutBackoffMin,
		MaxBackoff: cfg.PayoutBackoffMax,
	}, logger)

	h := hub.NewHub(ctx)
	svc := game.New(st, l, settler, game.Config{
		MinPlayers:     cfg.MinPlayers,
		Chambers:       cfg.Chambers,
		Bullets:        cfg.Bullets,
		IdleTimeout:    cfg.IdleTimeout,
		RefundOnCancel: cfg.RefundOnCancel,
	}, logger, game.WithNotifier(h))
	defer svc.Close()

	// Build the router *with* the service and hub injected
	handler := httpapi.SetupRoutes(svc, h, httpapi.Defaults{
		EntryFee:   cfg.DefaultEntryFee,
		MaxPlayers: cfg.DefaultMaxPlayers,
	}, logger)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStorage returns the session store and ledger for the configured
// driver. db is nil for the in-memory driver.
func openStorage(cfg config.Config) (store.Store, ledger.Ledger, *gorm.DB, error) {
	if cfg.DBDriver == "memory" {
		return store.NewMemory(), ledger.NewMemory(), nil, nil
	}
	if cfg.DBDriver == store.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabaseURL), 0o755); err != nil {
			return nil, nil, nil, err
		}
	}

	db, err := store.OpenDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := store.NewGorm(db)
	if err != nil {
		return nil, nil, nil, multierr.Append(err, store.CloseDB(db))
	}
	l, err := ledger.NewGorm(db)
	if err != nil {
		return nil, nil, nil, multierr.Append(err, store.CloseDB(db))
	}
	return st, l, db, nil
}
