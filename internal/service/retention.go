package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solverlab/bellman/internal/domain"
)

const (
	defaultRetentionInterval = 1 * time.Hour
	defaultRetentionMaxAge   = 30 * 24 * time.Hour
)

// RetentionService prunes persisted runs older than the retention
// window on a periodic schedule.
type RetentionService struct {
	runs   domain.RunStore
	logger *zap.Logger

	maxAge   time.Duration
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewRetentionService(runs domain.RunStore, logger *zap.Logger) *RetentionService {
	return &RetentionService{
		runs:     runs,
		logger:   logger,
		maxAge:   defaultRetentionMaxAge,
		interval: defaultRetentionInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *RetentionService) SetMaxAge(d time.Duration) {
	s.maxAge = d
}

func (s *RetentionService) SetInterval(d time.Duration) {
	s.interval = d
}

// Start runs the pruner in a background goroutine.
func (s *RetentionService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("run retention started",
			zap.Duration("interval", s.interval),
			zap.Duration("max_age", s.maxAge))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.prune(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("run retention stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the pruner.
func (s *RetentionService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *RetentionService) prune(ctx context.Context) {
	cutoff := time.Now().Add(-s.maxAge)
	deleted, err := s.runs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to prune old runs", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("pruned old runs",
			zap.Int64("count", deleted),
			zap.Time("cutoff", cutoff))
	}
}
