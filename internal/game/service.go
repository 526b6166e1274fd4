// Package game runs wagered elimination sessions: it validates every action
// through the engine under the room's gate, persists the result, moves
// money through the ledger and tells the room what happened.
package game

import (
	crand "crypto/rand"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/roulette-backend/internal/engine"
	"github.com/DoyleJ11/roulette-backend/internal/gate"
	"github.com/DoyleJ11/roulette-backend/internal/ledger"
	"github.com/DoyleJ11/roulette-backend/internal/registry"
	"github.com/DoyleJ11/roulette-backend/internal/settlement"
	"github.com/DoyleJ11/roulette-backend/internal/store"
	"github.com/DoyleJ11/roulette-backend/internal/watchdog"
	"github.com/DoyleJ11/roulette-backend/pkg/types"
)

type Config struct {
	MinPlayers     int
	Chambers       int
	Bullets        int
	IdleTimeout    time.Duration
	RefundOnCancel bool
}

func DefaultConfig() Config {
	return Config{
		MinPlayers:     2,
		Chambers:       engine.DefaultChambers,
		Bullets:        engine.DefaultBullets,
		IdleTimeout:    watchdog.DefaultWindow,
		RefundOnCancel: true,
	}
}

// ReasonConsistency marks a session cancelled because its stored state
// broke an invariant.
const ReasonConsistency = "consistency"

// Notifier receives every room event. The hub is the production one.
type Notifier interface {
	Publish(ev types.RoomEvent)
}

type nopNotifier struct{}

func (nopNotifier) Publish(types.RoomEvent) {}

type Service struct {
	store    store.Store
	ledger   ledger.Ledger
	registry *registry.Registry
	gate     *gate.Gate
	settler  *settlement.Settler
	watchdog *watchdog.Watchdog
	notifier Notifier
	clock    watchdog.Clock
	load     func(chambers, bullets int) []bool
	newID    func() string
	cfg      Config
	logger   *zap.Logger
}

type Option func(*Service)

func WithClock(c watchdog.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithChamberLoader replaces the random chamber draw.
func WithChamberLoader(load func(chambers, bullets int) []bool) Option {
	return func(s *Service) { s.load = load }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

func New(st store.Store, l ledger.Ledger, settler *settlement.Settler, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:    st,
		ledger:   l,
		registry: registry.New(st),
		gate:     gate.New(),
		settler:  settler,
		notifier: nopNotifier{},
		clock:    watchdog.Real(),
		load:     secureLoader(),
		newID:    uuid.NewString,
		cfg:      cfg,
		logger:   logger.Named("game"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.watchdog = watchdog.New(s.clock, cfg.IdleTimeout, s.expire, logger)
	return s
}

// Close stops every idle timer. Sessions stay in the store as they are.
func (s *Service) Close() {
	s.watchdog.Stop()
}

func (s *Service) env() engine.Env {
	return engine.Env{Now: s.clock.Now(), Load: s.load}
}

func (s *Service) rules() engine.Rules {
	return engine.Rules{MinPlayers: s.cfg.MinPlayers}
}

// secureLoader draws chambers from a ChaCha8 stream seeded by crypto/rand.
func secureLoader() func(chambers, bullets int) []bool {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic(err)
	}
	var mu sync.Mutex
	r := rand.New(rand.NewChaCha8(seed))
	return func(chambers, bullets int) []bool {
		mu.Lock()
		defer mu.Unlock()
		return engine.LoadChambers(r, chambers, bullets)
	}
}
