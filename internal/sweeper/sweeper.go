// Package sweeper expires sessions that outlived the configured timeout.
package sweeper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/p-blackswan/santa-bot/internal/coordinator"
	"github.com/p-blackswan/santa-bot/internal/notify"
	"github.com/p-blackswan/santa-bot/internal/santa"
)

// Coordinator is the part of the coordinator the sweeper drives.
type Coordinator interface {
	List(ctx context.Context) ([]*santa.Session, error)
	Expired(s *santa.Session) bool
	Expire(ctx context.Context, room string) (coordinator.Result, error)
	PurgeArchive(ctx context.Context) (int64, error)
}

// Runner executes notification plans.
type Runner interface {
	Run(ctx context.Context, plan []coordinator.Notification) notify.Report
}

// Recorder observes sweeps.
type Recorder interface {
	SweepCompleted(scanned, expired int, took time.Duration)
	SetActiveSessions(byState map[string]int)
}

// Config controls the sweep schedule.
type Config struct {
	Interval    time.Duration
	FirstDelay  time.Duration
	Concurrency int // rooms expired in parallel
}

// DefaultConfig returns the production schedule.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Minute, FirstDelay: time.Minute, Concurrency: 8}
}

// Report summarizes one sweep.
type Report struct {
	Scanned int
	Expired int
	Missing int // sessions gone between scan and expire
	Failed  int
	Purged  int64
}

// Sweeper periodically expires stale sessions.
type Sweeper struct {
	cfg      Config
	coord    Coordinator
	runner   Runner
	recorder Recorder
	logger   zerolog.Logger
	sweeps   atomic.Int64
}

// New creates a Sweeper. recorder may be nil.
func New(cfg Config, coord Coordinator, runner Runner, recorder Recorder, logger zerolog.Logger) *Sweeper {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Sweeper{
		cfg:      cfg,
		coord:    coord,
		runner:   runner,
		recorder: recorder,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run sweeps after FirstDelay and then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.cfg.Interval).Dur("first_delay", s.cfg.FirstDelay).Msg("sweeper started")
	defer s.logger.Info().Msg("sweeper stopped")

	first := time.NewTimer(s.cfg.FirstDelay)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-first.C:
	}
	s.Sweep(ctx)

	if s.cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweeps returns how many sweeps completed.
func (s *Sweeper) Sweeps() int64 { return s.sweeps.Load() }

// Sweep scans every session once and expires the stale ones. Each room is
// expired independently; one failure never blocks the others.
func (s *Sweeper) Sweep(ctx context.Context) Report {
	start := time.Now()
	defer s.sweeps.Add(1)

	var report Report
	sessions, err := s.coord.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing sessions failed")
		report.Failed++
		return report
	}
	report.Scanned = len(sessions)

	var expired, missing, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	byState := make(map[string]int)
	for _, sess := range sessions {
		if !s.coord.Expired(sess) {
			byState[string(sess.State)]++
			continue
		}
		room := sess.RoomID
		g.Go(func() error {
			switch s.expire(ctx, room) {
			case coordinator.StatusOK:
				expired.Add(1)
			case coordinator.StatusNotFound, coordinator.StatusGuardFailed:
				missing.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Expired = int(expired.Load())
	report.Missing = int(missing.Load())
	report.Failed += int(failed.Load())

	if purged, err := s.coord.PurgeArchive(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("purging archive failed")
	} else {
		report.Purged = purged
	}

	took := time.Since(start)
	if s.recorder != nil {
		s.recorder.SweepCompleted(report.Scanned, report.Expired, took)
		s.recorder.SetActiveSessions(byState)
	}
	if report.Expired > 0 || report.Failed > 0 {
		s.logger.Info().Int("scanned", report.Scanned).Int("expired", report.Expired).
			Int("missing", report.Missing).Int("failed", report.Failed).Dur("took", took).Msg("sweep completed")
	} else {
		s.logger.Debug().Int("scanned", report.Scanned).Dur("took", took).Msg("sweep completed")
	}
	return report
}

func (s *Sweeper) expire(ctx context.Context, room string) coordinator.Status {
	res, err := s.coord.Expire(ctx, room)
	if err != nil {
		s.logger.Error().Err(err).Str("room", room).Msg("expiring session failed")
		return coordinator.StatusUnavailable
	}
	if res.Status != coordinator.StatusOK {
		s.logger.Debug().Str("room", room).Str("status", string(res.Status)).Msg("session no longer expirable")
		return res.Status
	}
	if report := s.runner.Run(ctx, res.Plan); !report.OK() {
		s.logger.Warn().Str("room", room).Int("failures", len(report.Failures)).Msg("expiry notice not fully delivered")
	}
	return coordinator.StatusOK
}
