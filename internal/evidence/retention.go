package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultPurgeSchedule runs retention daily at 03:00.
const DefaultPurgeSchedule = "0 3 * * *"

// Retention purges records older than a fixed age on a cron schedule.
type Retention struct {
	store  *Store
	maxAge time.Duration
	cron   *cron.Cron
	now    func() time.Time
}

// NewRetention keeps records for days days. Schedules use the standard
// 5-field cron format.
func NewRetention(store *Store, days int) (*Retention, error) {
	if days <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", days)
	}
	return &Retention{
		store:  store,
		maxAge: time.Duration(days) * 24 * time.Hour,
		cron:   cron.New(),
		now:    time.Now,
	}, nil
}

// Schedule registers a purge at spec.
func (r *Retention) Schedule(spec string) error {
	if spec == "" {
		spec = DefaultPurgeSchedule
	}
	_, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("audit_purge_failed")
		}
	})
	if err != nil {
		return fmt.Errorf("registering purge schedule %q: %w", spec, err)
	}
	return nil
}

// RunOnce purges expired records now.
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.maxAge)
	n, err := r.store.Purge(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	log.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("audit_purged")
	return n, nil
}

// Start begins running scheduled purges.
func (r *Retention) Start() {
	r.cron.Start()
}

// Stop halts the scheduler and waits for a running purge to finish.
func (r *Retention) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered schedules.
func (r *Retention) Entries() int {
	return len(r.cron.Entries())
}
