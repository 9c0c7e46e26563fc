// Package worker runs the reconciliation loops: one long-lived worker
// per series plus a global expiry sweeper, all owned by a single
// Supervisor started at process init. Series are fully independent -
// one calendar's failure never starves another.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridline/gridline/internal/model"
	"github.com/gridline/gridline/internal/reconcile"
	"github.com/gridline/gridline/internal/scheduler"
)

// SeriesConfig binds one series to its destination channel and the
// role mentioned in notifications.
type SeriesConfig struct {
	Series    model.Series
	ChannelID string
	RoleID    string
}

// Defaults for the loop cadence. The poll interval is the only
// throttle on the latency-sensitive notification path; the calendar
// refresh is deliberately decoupled because it is O(weekends) network
// calls.
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultCalendarRefresh = 5 * time.Minute
)

// Supervisor owns all workers. It is the only component that starts
// them, so no "is running" flag is needed: construct once, Run once.
type Supervisor struct {
	repo   reconcile.Repository
	rec    *reconcile.Reconciler
	series []SeriesConfig

	pollInterval    time.Duration
	calendarRefresh time.Duration
	clock           reconcile.Clock
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithPollInterval overrides the per-iteration sleep.
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.pollInterval = d }
}

// WithCalendarRefresh overrides the calendar reconciliation period.
func WithCalendarRefresh(d time.Duration) Option {
	return func(s *Supervisor) { s.calendarRefresh = d }
}

// WithClock overrides the time source. Used by tests.
func WithClock(c reconcile.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// New creates a Supervisor for the given series set.
func New(repo reconcile.Repository, rec *reconcile.Reconciler, series []SeriesConfig, opts ...Option) *Supervisor {
	s := &Supervisor{
		repo:            repo,
		rec:             rec,
		series:          series,
		pollInterval:    DefaultPollInterval,
		calendarRefresh: DefaultCalendarRefresh,
		clock:           reconcile.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts one worker goroutine per series plus the expiry sweeper
// and blocks until the context is cancelled. A worker finishes its
// current iteration before stopping; no partial state is corrupt, the
// hash-diff design makes every step resumable from scratch.
func (s *Supervisor) Run(ctx context.Context) error {
	slog.Info("supervisor starting",
		"series", len(s.series), "poll_interval", s.pollInterval)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runSweeper(ctx)
	}()

	for _, sc := range s.series {
		wg.Add(1)
		go func(sc SeriesConfig) {
			defer wg.Done()
			s.runSeries(ctx, sc)
		}(sc)
	}

	wg.Wait()
	slog.Info("supervisor stopped")
	return ctx.Err()
}

// runSweeper deletes expired notification artifacts once per round,
// globally rather than per series.
func (s *Supervisor) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.rec.SweepExpired(ctx); err != nil {
				slog.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

// runSeries is the per-series reconciliation loop. Every step's error
// is logged and the loop proceeds after the normal sleep; the loop
// itself never exits on a transient failure.
func (s *Supervisor) runSeries(ctx context.Context, sc SeriesConfig) {
	slog.Info("series worker starting", "series", sc.Series, "channel", sc.ChannelID)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var lastCalendar time.Time
	for {
		select {
		case <-ctx.Done():
			slog.Info("series worker stopping", "series", sc.Series)
			return
		case <-ticker.C:
			s.iterate(ctx, sc, &lastCalendar)
		}
	}
}

// iterate runs one full reconciliation pass for a series. Steps are
// strictly sequential within the pass - that ordering is what prevents
// a session being notified twice or a weekend being marked done before
// its notification went out.
func (s *Supervisor) iterate(ctx context.Context, sc SeriesConfig, lastCalendar *time.Time) {
	log := slog.With("series", sc.Series, "pass", uuid.Must(uuid.NewV7()).String())
	now := s.clock.Now()

	// Load the next non-terminal weekend plus its sessions. No weekend
	// is a representable state: the persistent artifact gets cleared.
	// A failed load is not - the persistent and scheduler steps are
	// skipped rather than fed a view that looks like "no weekend", but
	// the calendar refresh below runs regardless; it has its own reads.
	var (
		weekend  *model.Weekend
		sessions []model.Session
		loaded   = true
	)
	w, err := s.repo.NextOpenWeekend(ctx, sc.Series, now)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		log.Error("load next weekend failed", "error", err)
		loaded = false
	default:
		weekend = &w
		if sessions, err = s.repo.Sessions(ctx, w.ID); err != nil {
			log.Error("load sessions failed", "error", err)
			loaded = false
		}
	}

	if loaded {
		if err := s.rec.SyncPersistent(ctx, sc.Series, sc.ChannelID, weekend, sessions); err != nil {
			log.Error("persistent sync failed", "error", err)
		}
		if weekend != nil {
			s.runScheduler(ctx, log, sc, *weekend, sessions, now)
		}
	}

	if now.Sub(*lastCalendar) >= s.calendarRefresh {
		*lastCalendar = now
		if err := s.rec.SyncCalendar(ctx, sc.Series, sc.ChannelID); err != nil {
			log.Error("calendar sync failed", "error", err)
		}
	}
}

// runScheduler applies the scheduler's decision for one pass: advance
// Ignore-preference sessions, notify the actionable one, and close out
// the weekend once every session is terminal.
func (s *Supervisor) runScheduler(ctx context.Context, log *slog.Logger, sc SeriesConfig, w model.Weekend, sessions []model.Session, now time.Time) {
	actionable, autoFinish := scheduler.NextActionable(sessions, now)

	for _, sess := range autoFinish {
		if err := s.repo.SetSessionStatus(ctx, sess.ID, model.SessionFinished); err != nil {
			log.Error("auto-finish failed", "session", sess.ID, "error", err)
		} else {
			log.Info("session auto-finished", "session", sess.PrettyName())
		}
	}

	if actionable != nil {
		if err := s.rec.NotifySession(ctx, sc.ChannelID, sc.RoleID, w, *actionable); err != nil {
			// Send failures leave the session Open/Delayed so the next
			// iteration retries, a few seconds late at worst.
			log.Error("notification failed", "session", actionable.ID, "error", err)
			return
		}
	}

	// Re-read before the terminal check: the status writes above are
	// the only mutations, and the repository is the arbiter.
	sessions, err := s.repo.Sessions(ctx, w.ID)
	if err != nil {
		log.Error("reload sessions failed", "error", err)
		return
	}
	if !scheduler.IsWeekendTerminal(w, sessions) {
		return
	}

	if err := s.repo.SetWeekendStatus(ctx, w.ID, model.WeekendDone); err != nil {
		log.Error("mark weekend done failed", "weekend", w.ID, "error", err)
		return
	}
	log.Info("weekend done", "weekend", w.Name)

	// Stale hashes would keep the old weekend's content pinned; clear
	// them so the next pass rebuilds against the new upcoming weekend.
	if err := s.rec.InvalidateArtifacts(ctx, sc.Series); err != nil {
		log.Error("artifact invalidation failed", "error", err)
	}
}
