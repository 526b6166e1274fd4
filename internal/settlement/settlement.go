// Package settlement credits prizes and refunds entry fees through the ledger.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/roulette-backend/internal/engine"
	"github.com/DoyleJ11/roulette-backend/internal/ledger"
)

type Config struct {
	Attempts   int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{Attempts: 5, MinBackoff: 50 * time.Millisecond, MaxBackoff: 2 * time.Second}
}

type Settler struct {
	ledger ledger.Ledger
	cfg    Config
	logger *zap.Logger
}

func New(l ledger.Ledger, cfg Config, logger *zap.Logger) *Settler {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Settler{ledger: l, cfg: cfg, logger: logger.Named("settlement")}
}

// Settle credits the pending payout of st to its winner. It refuses payouts
// that do not match the session: a practice session, a pot other than
// entry fee times joiners, or anything but exactly one alive winner.
//
// A ledger entry already recorded under the payout reference counts as paid.
func (s *Settler) Settle(ctx context.Context, st engine.State) error {
	payout, ok := st.PendingPayout()
	if !ok {
		return engine.ErrNoPendingPayout
	}
	if err := verify(st, payout); err != nil {
		return err
	}

	log := s.logger.With(
		zap.String("session_id", st.Session.ID),
		zap.String("account_id", payout.WinnerID),
		zap.Int64("prize", payout.Prize),
	)
	err := s.retry(ctx, log, func() error {
		_, err := s.ledger.ChangeBalance(ctx, payout.WinnerID, payout.Prize, ledger.PayoutRef(st.Session.ID))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrSettlementPending, err)
	}
	log.Info("payout credited")
	return nil
}

func verify(st engine.State, payout engine.Payout) error {
	if len(st.Players) < 2 {
		return fmt.Errorf("%w: practice session", engine.ErrInvalidPayout)
	}
	if want := engine.PrizeFor(st.Session, st.Players); payout.Prize != want {
		return fmt.Errorf("%w: prize %d, want %d", engine.ErrInvalidPayout, payout.Prize, want)
	}
	if st.AliveCount() != 1 {
		return fmt.Errorf("%w: %d alive", engine.ErrInvalidPayout, st.AliveCount())
	}
	winner, ok := st.Player(payout.WinnerID)
	if !ok || !winner.Alive {
		return fmt.Errorf("%w: winner %s is not the survivor", engine.ErrInvalidPayout, payout.WinnerID)
	}
	return nil
}

// Refund returns every joined player's entry fee. Each refund is attempted
// independently; failures are combined.
func (s *Settler) Refund(ctx context.Context, st engine.State) error {
	var errs error
	for _, p := range st.Players {
		log := s.logger.With(zap.String("session_id", st.Session.ID), zap.String("account_id", p.AccountID))
		err := s.retry(ctx, log, func() error {
			_, err := s.ledger.ChangeBalance(ctx, p.AccountID, st.Session.EntryFee, ledger.RefundRef(st.Session.ID, p.AccountID))
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: refund %s: %w", engine.ErrExternal, p.AccountID, err))
		}
	}
	return errs
}

// retry runs op until it succeeds, reports ErrDuplicateEntry, fails with a
// non-retryable ledger error, or runs out of attempts.
func (s *Settler) retry(ctx context.Context, log *zap.Logger, op func() error) error {
	b := &backoff.Backoff{Min: s.cfg.MinBackoff, Max: s.cfg.MaxBackoff, Factor: 2, Jitter: true}

	var err error
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		err = op()
		if err == nil || errors.Is(err, ledger.ErrDuplicateEntry) {
			return nil
		}
		if errors.Is(err, ledger.ErrInvalidAccount) || errors.Is(err, ledger.ErrInsufficientFunds) {
			return err
		}
		if attempt == s.cfg.Attempts {
			break
		}

		wait := b.Duration()
		log.Warn("ledger call failed, retrying", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return multierr.Append(err, ctx.Err())
		case <-t.C:
		}
	}
	return err
}
