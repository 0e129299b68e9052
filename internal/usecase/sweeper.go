package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/config"
	"github.com/casefunnel/lead-intake/internal/events"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/internal/storage"
	"github.com/casefunnel/lead-intake/pkg/logger"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

// Sweeper expires stale pending matches and unclaimed leads on a fixed
// interval. Sweeps are idempotent: every statement only touches rows still in
// a sweepable state, so overlapping runs and restarts are harmless.
type Sweeper struct {
	matches   storage.MatchRepo
	leads     storage.LeadRepo
	publisher EventPublisher
	interval  time.Duration
	matchTTL  time.Duration
	batchSize int
	stop      chan struct{}
	done      chan struct{}
}

// NewSweeper creates a sweeper from config.
func NewSweeper(cfg config.SweeperConfig, matches storage.MatchRepo, leads storage.LeadRepo, publisher EventPublisher) *Sweeper {
	return &Sweeper{
		matches:   matches,
		leads:     leads,
		publisher: publisher,
		interval:  cfg.Interval,
		matchTTL:  cfg.MatchTTL,
		batchSize: cfg.BatchSize,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine. The first sweep runs after one
// full interval, not at startup, so deploys don't stampede the database.
func (s *Sweeper) Start() {
	logger.Log.Info("Sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("match_ttl", s.matchTTL),
		zap.Int("batch_size", s.batchSize))

	utils.SafeGo(func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.interval)
				s.sweepSafely(ctx)
				cancel()
			case <-s.stop:
				return
			}
		}
	}, func(rec interface{}, stack []byte) {
		logger.Log.Error("Panic in sweeper loop",
			zap.Any("panic", rec), zap.ByteString("stack", stack))
	})
}

// Stop signals the loop and waits for the in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
	logger.Log.Info("Sweeper stopped")
}

// sweepSafely keeps the loop alive when a single sweep panics.
func (s *Sweeper) sweepSafely(ctx context.Context) {
	defer utils.RecoverWithLog(ctx, "expiry sweep")
	s.RunOnce(ctx)
}

// RunOnce performs one sweep: expire pending matches older than the TTL, then
// expire leads whose every match has expired.
func (s *Sweeper) RunOnce(ctx context.Context) {
	log := logger.FromContext(ctx)
	cutoff := utils.Now().Add(-s.matchTTL)

	expiredMatches, err := s.matches.ExpireOlderThan(ctx, cutoff, s.batchSize)
	if err != nil {
		log.Error("Match expiry sweep failed", zap.Error(err))
	} else if len(expiredMatches) > 0 {
		observer.AddMatchesExpired(len(expiredMatches))
		log.Info("Expired stale matches", zap.Int("count", len(expiredMatches)))
		for _, match := range expiredMatches {
			s.publisher.Publish(ctx, events.EventMatchExpired, map[string]interface{}{
				"match_id": match.ID,
				"lead_id":  match.LeadID,
				"firm_id":  match.FirmID,
			})
		}
	}

	expiredLeads, err := s.leads.ExpireUnclaimed(ctx, cutoff, s.batchSize)
	if err != nil {
		log.Error("Lead expiry sweep failed", zap.Error(err))
	} else if len(expiredLeads) > 0 {
		observer.AddLeadsExpired(len(expiredLeads))
		log.Info("Expired unclaimed leads", zap.Int("count", len(expiredLeads)))
	}
}
