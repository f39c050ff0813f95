package api

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"fleetads/internal/auth"
	"fleetads/internal/config"
	"fleetads/internal/events"
	"fleetads/internal/playlist"
	"fleetads/internal/scheduler"
	"fleetads/internal/slots"
	"fleetads/internal/store"
)

type Server struct {
	Store       store.Store
	Ledger      *slots.Ledger
	Gen         *playlist.Generator
	Sched       *scheduler.Scheduler
	Broker      events.Broker
	Auth        *auth.Verifier
	Log         *logrus.Logger
	HardwareKey string

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
	hwRate   rate.Limit
	hwBurst  int
}

// NewServer wires the store, event broker, playlist generator and scheduler
// from config. If DatabaseURL is unset, uses the in-memory store.
func NewServer(cfg *config.Config, log *logrus.Logger) (*Server, error) {
	if log == nil {
		log = logrus.New()
	}
	var st store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		st = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.DBMigrate {
			if err := sp.MigrateDir(cfg.MigrationsDir); err != nil {
				return nil, err
			}
		}
		st = sp
	}

	var broker events.Broker
	if cfg.RedisURL != "" {
		rb, err := events.NewRedis(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis broker unavailable, using in-memory broker")
			broker = events.NewMemory()
		} else {
			broker = rb
		}
	} else {
		broker = events.NewMemory()
	}

	gen := playlist.New(st, broker, log)
	sched := scheduler.New(gen, st, log, scheduler.Options{
		Enabled:         cfg.Scheduler.Enabled,
		RefreshInterval: cfg.Scheduler.RefreshInterval(),
		PregenHour:      &cfg.Scheduler.PregenHour,
		MorningHour:     &cfg.Scheduler.MorningHour,
		TaskTimeout:     cfg.Scheduler.TaskTimeout(),
	})

	hwRate := rate.Limit(cfg.Hardware.RatePerSec)
	if hwRate <= 0 {
		hwRate = 2
	}
	hwBurst := cfg.Hardware.RateBurst
	if hwBurst <= 0 {
		hwBurst = 5
	}

	return &Server{
		Store:       st,
		Ledger:      slots.NewLedger(st),
		Gen:         gen,
		Sched:       sched,
		Broker:      broker,
		Auth:        auth.NewVerifier(cfg.Auth.HMACSecret),
		Log:         log,
		HardwareKey: cfg.Hardware.APIKey,
		limiters:    map[string]*rate.Limiter{},
		hwRate:      hwRate,
		hwBurst:     hwBurst,
	}, nil
}

// hardwareAllow rate-limits hardware calls per device.
func (s *Server) hardwareAllow(deviceID string) bool {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	lim, ok := s.limiters[deviceID]
	if !ok {
		lim = rate.NewLimiter(s.hwRate, s.hwBurst)
		s.limiters[deviceID] = lim
	}
	return lim.Allow()
}

// Close stops the scheduler and releases broker resources.
func (s *Server) Close(ctx context.Context) {
	if s.Sched != nil {
		s.Sched.Stop()
	}
	_ = ctx
}
