// Package scheduler runs the stock scan on a fixed interval. Each cycle
// takes a cluster-wide lock so only one replica scans at a time.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/cache"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/andresuchdata/autopo-replenish/internal/tracing"
	"github.com/rs/zerolog/log"
)

var (
	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("scheduler already running")
	// ErrSkipped is returned by RunOnce when another holder owns the lock.
	ErrSkipped = errors.New("scan skipped, lock held elsewhere")
)

const (
	DefaultInterval = time.Hour
	DefaultLockTTL  = 10 * time.Minute

	scanLockKey = "scheduled-scan"
)

// Scanner is the job a cycle runs.
type Scanner interface {
	RunScheduledScan(ctx context.Context) (*service.ScanResult, error)
}

// Scheduler polls the scanner on a ticker.
type Scheduler struct {
	scanner Scanner
	locker  cache.Locker
	cfg     config.SchedulerConfig

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

func New(scanner Scanner, locker cache.Locker, cfg config.SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	return &Scheduler{
		scanner: scanner,
		locker:  locker,
		cfg:     cfg,
	}
}

// Start launches the polling loop. The first cycle runs immediately. A
// stopped scheduler may be started again.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	stopCh, stoppedC := make(chan struct{}), make(chan struct{})
	s.stopCh, s.stoppedC = stopCh, stoppedC
	s.mu.Unlock()

	log.Info().Dur("interval", s.cfg.Interval).Msg("starting scan scheduler")
	go s.pollLoop(ctx, stopCh, stoppedC)
	return nil
}

// Stop waits for the in-flight cycle, if any, to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh, stoppedC := s.stopCh, s.stoppedC
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-stoppedC:
		log.Info().Msg("scan scheduler stopped")
	case <-ctx.Done():
		log.Warn().Msg("scan scheduler shutdown timed out")
		return ctx.Err()
	}
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) pollLoop(ctx context.Context, stopCh <-chan struct{}, stoppedC chan<- struct{}) {
	defer close(stoppedC)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.cycle(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrSkipped):
		log.Info().Msg("scan lock held by another instance, skipping cycle")
	case err != nil:
		log.Error().Err(err).Msg("scheduled scan failed")
	default:
		log.Info().
			Str("run_id", res.RunID).
			Int("scanned", res.Scanned).
			Int("created", res.Created).
			Int("errors", len(res.Errors)).
			Msg("scheduled scan finished")
	}
}

// RunOnce runs a single scan under the scan lock.
func (s *Scheduler) RunOnce(ctx context.Context) (*service.ScanResult, error) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.RunOnce")

	var res *service.ScanResult
	err := cache.WithLock(ctx, s.locker, scanLockKey, s.cfg.LockTTL, func() error {
		var err error
		res, err = s.scanner.RunScheduledScan(ctx)
		return err
	})
	if errors.Is(err, cache.ErrLockNotAcquired) {
		err = ErrSkipped
	}
	tracing.EndSpan(span, err)
	return res, err
}
