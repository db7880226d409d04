package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/noesis-labs/noesis/pkg/schema"
)

// Purger deletes ledger entries older than a cutoff. Satisfied by
// LibSQLLedger; the other backends own their retention elsewhere.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper prunes old ledger entries on a cron schedule.
type Sweeper struct {
	cron   *cron.Cron
	purger Purger
	days   int
	logger *slog.Logger
}

// NewSweeper validates the schedule and prepares the sweep job. Returns nil
// without error when retention is disabled (days <= 0).
func NewSweeper(purger Purger, schedule string, days int, logger *slog.Logger) (*Sweeper, error) {
	if days <= 0 {
		return nil, nil
	}
	s := &Sweeper{cron: cron.New(), purger: purger, days: days, logger: logger}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig,
			"invalid retention schedule %q: %s", schedule, err.Error()).WithCause(err)
	}
	return s, nil
}

// Start launches the cron loop.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("retention sweeper started", slog.Int("retention_days", s.days))
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -s.days)
	removed, err := s.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("retention sweep complete",
		slog.Int64("removed", removed),
		slog.Time("cutoff", cutoff))
}
