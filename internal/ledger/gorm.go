package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Account struct {
	AccountID string `gorm:"primaryKey;size:64"`
	Balance   int64  `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Account) TableName() string { return "accounts" }

// Entry is one balance mutation, kept as an audit log.
type Entry struct {
	ID           uint    `gorm:"primaryKey"`
	AccountID    string  `gorm:"not null;size:64;index"`
	Delta        int64   `gorm:"not null"`
	BalanceAfter int64   `gorm:"not null"`
	Reference    *string `gorm:"size:160;uniqueIndex"`
	CreatedAt    time.Time
}

func (Entry) TableName() string { return "ledger_entries" }

type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&Account{}, &Entry{}); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) GetBalance(ctx context.Context, account string) (int64, error) {
	var accts []Account
	if err := g.db.WithContext(ctx).Where("account_id = ?", account).Limit(1).Find(&accts).Error; err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	if len(accts) == 0 {
		return 0, nil
	}
	return accts[0].Balance, nil
}

func (g *Gorm) ChangeBalance(ctx context.Context, account string, delta int64, ref string) (int64, error) {
	if account == "" {
		return 0, ErrInvalidAccount
	}

	var balance int64
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ref != "" {
			var n int64
			if err := tx.Model(&Entry{}).Where("reference = ?", ref).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrDuplicateEntry
			}
		}

		acct := Account{AccountID: account}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&acct).Error; err != nil {
			return err
		}

		res := tx.Model(&Account{}).
			Where("account_id = ? AND balance + ? >= 0", account, delta).
			Update("balance", gorm.Expr("balance + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientFunds
		}

		if err := tx.First(&acct, "account_id = ?", account).Error; err != nil {
			return err
		}
		balance = acct.Balance

		entry := Entry{AccountID: account, Delta: delta, BalanceAfter: balance}
		if ref != "" {
			entry.Reference = &ref
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return 0, g.classify(ctx, ref, err)
	}
	return balance, nil
}

// classify maps a failed ChangeBalance transaction to the ledger's errors.
// A unique-key violation only counts as a duplicate when an entry with ref
// is actually committed; any other collision is reported as a plain
// failure so callers retry it.
func (g *Gorm) classify(ctx context.Context, ref string, err error) error {
	switch {
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrDuplicateEntry):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey) && ref != "":
		var n int64
		if cerr := g.db.WithContext(ctx).Model(&Entry{}).Where("reference = ?", ref).Count(&n).Error; cerr == nil && n > 0 {
			return ErrDuplicateEntry
		}
	}
	return fmt.Errorf("change balance: %w", err)
}

// Entries returns an account's ledger history, oldest first.
func (g *Gorm) Entries(ctx context.Context, account string) ([]Entry, error) {
	var out []Entry
	err := g.db.WithContext(ctx).Where("account_id = ?", account).Order("id ASC").Find(&out).Error
	return out, err
}
