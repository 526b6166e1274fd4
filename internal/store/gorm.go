package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/roulette-backend/internal/engine"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// OpenDB opens the shared database handle. The caller owns it and closes it
// with CloseDB at shutdown.
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// sqlite allows one writer; keep every statement on one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type Gorm struct {
	db *gorm.DB
}

// NewGorm migrates the session tables and returns a Store backed by db.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&SessionRecord{}, &PlayerRecord{}, &RoundRecord{}); err != nil {
		return nil, fmt.Errorf("migrate sessions: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Create(ctx context.Context, s engine.State) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := toSessionRecord(s.Session)
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("%w: create session: %w", engine.ErrExternal, err)
		}
		return writeChildren(tx, s)
	})
}

func (g *Gorm) Load(ctx context.Context, sessionID string) (engine.State, error) {
	var st engine.State
	db := g.db.WithContext(ctx)

	var rec SessionRecord
	if err := db.First(&rec, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return st, engine.ErrSessionNotFound
		}
		return st, fmt.Errorf("%w: load session: %w", engine.ErrExternal, err)
	}
	st.Session = rec.toSession()

	var players []PlayerRecord
	if err := db.Where("session_id = ?", sessionID).Order("turn_index ASC").Find(&players).Error; err != nil {
		return st, fmt.Errorf("%w: load players: %w", engine.ErrExternal, err)
	}
	for _, p := range players {
		st.Players = append(st.Players, p.toPlayer())
	}

	var rounds []RoundRecord
	if err := db.Where("session_id = ?", sessionID).Limit(1).Find(&rounds).Error; err != nil {
		return st, fmt.Errorf("%w: load round: %w", engine.ErrExternal, err)
	}
	if len(rounds) == 1 {
		r := rounds[0].toRound()
		st.Round = &r
	}
	return st, nil
}

func (g *Gorm) Save(ctx context.Context, s engine.State) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := toSessionRecord(s.Session)
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
			return fmt.Errorf("%w: save session: %w", engine.ErrExternal, err)
		}
		return writeChildren(tx, s)
	})
}

func writeChildren(tx *gorm.DB, s engine.State) error {
	if len(s.Players) > 0 {
		players := toPlayerRecords(s.Session.ID, s.Players)
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"alive"}),
		}).Create(&players).Error
		if err != nil {
			return fmt.Errorf("%w: save players: %w", engine.ErrExternal, err)
		}
	}
	if s.Round != nil {
		round := toRoundRecord(s.Session.ID, *s.Round)
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&round).Error; err != nil {
			return fmt.Errorf("%w: save round: %w", engine.ErrExternal, err)
		}
	}
	return nil
}

func (g *Gorm) ListByRoom(ctx context.Context, roomID string, statuses ...engine.Status) ([]engine.Session, error) {
	q := g.db.WithContext(ctx).Where("room_id = ?", roomID)
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		q = q.Where("status IN ?", names)
	}

	var recs []SessionRecord
	if err := q.Order("created_at ASC").Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", engine.ErrExternal, err)
	}
	out := make([]engine.Session, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toSession())
	}
	return out, nil
}

// Close is a no-op; the handle belongs to whoever called OpenDB.
func (g *Gorm) Close() error { return nil }
