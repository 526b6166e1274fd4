// Package ledger is the custodial balance store the game escrows entry fees
// from and pays prizes into.
package ledger

import (
	"context"
	"errors"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateEntry    = errors.New("duplicate ledger entry")
	ErrInvalidAccount    = errors.New("invalid account")
)

// Ledger mutates balances atomically. A non-empty ref makes ChangeBalance
// idempotent: a second call with the same ref fails with ErrDuplicateEntry
// and changes nothing.
type Ledger interface {
	GetBalance(ctx context.Context, account string) (int64, error)
	ChangeBalance(ctx context.Context, account string, delta int64, ref string) (int64, error)
}

// References for entries that must land at most once per session.
func RefundRef(sessionID, account string) string { return "refund:" + sessionID + ":" + account }
func PayoutRef(sessionID string) string { return "payout:" + sessionID }
