package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hosteldesk/desk-relay-go/internal/repository"
	"github.com/hosteldesk/desk-relay-go/internal/session"
)

// CleanupJob periodically evicts expired desk sessions and prunes old scan
// journal entries, bounding memory growth from abandoned pairings.
type CleanupJob struct {
	registry  session.Registry
	journal   repository.ScanJournal // nil when no database is configured
	retention time.Duration
	interval  time.Duration
	done      chan struct{}
}

func NewCleanupJob(
	registry session.Registry,
	journal repository.ScanJournal,
	retention time.Duration,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		registry:  registry,
		journal:   journal,
		retention: retention,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "desk sessions", j.registry.DeleteExpired)

	if j.journal != nil {
		cutoff := time.Now().Add(-j.retention)
		j.runCleanup(ctx, "scan records", func(ctx context.Context) (int64, error) {
			return j.journal.PruneOlderThan(ctx, cutoff)
		})
	}
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
