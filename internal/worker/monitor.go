package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joshu-sajeev/catalogjobs/common"
)

// LeaseMonitor returns PROCESSING jobs whose heartbeat went silent to the
// retry policy, so a crashed worker never strands a job.
type LeaseMonitor struct {
	store    StalledStore
	timeout  time.Duration
	interval time.Duration
	batch    int
	logger   *slog.Logger
	now      func() time.Time
}

type MonitorOption func(*LeaseMonitor)

func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *LeaseMonitor) { m.now = now }
}

func WithMonitorBatch(n int) MonitorOption {
	return func(m *LeaseMonitor) { m.batch = n }
}

func NewLeaseMonitor(store StalledStore, timeout, interval time.Duration, logger *slog.Logger, opts ...MonitorOption) *LeaseMonitor {
	m := &LeaseMonitor{
		store:    store,
		timeout:  timeout,
		interval: interval,
		batch:    100,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *LeaseMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("lease sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep reaps one batch of stalled jobs and returns how many it moved.
func (m *LeaseMonitor) Sweep(ctx context.Context) (int, error) {
	cutoff := m.now().UTC().Add(-m.timeout)

	stalled, err := m.store.ListStalled(ctx, cutoff, m.batch)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, j := range stalled {
		next, err := m.store.ReapStalled(ctx, j, cutoff)
		if errors.Is(err, common.ErrLeaseLost) {
			// renewed or finished since it was listed
			continue
		}
		if err != nil {
			return reaped, err
		}

		reaped++
		m.logger.Warn("reaped stalled job",
			slog.Uint64("job_id", uint64(j.ID)),
			slog.String("tipo", string(j.Tipo)),
			slog.Int("attempt", j.Attempts),
			slog.String("next_status", string(next)),
		)
	}
	return reaped, nil
}
