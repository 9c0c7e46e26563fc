// Package scheduler holds the pure decision core: given a weekend and
// its freshly loaded sessions, what should happen right now. No I/O -
// callers supply the current time and perform the resulting writes.
package scheduler

import (
	"time"

	"github.com/gridline/gridline/internal/model"
)

// NotifyWindow is the span before a session's start during which it is
// actionable. Lower bound inclusive, upper bound exclusive: a session
// is in its window when 0 <= start-now < 5m.
const NotifyWindow = 5 * time.Minute

// InWindow reports whether a session starting at start is inside the
// notify window at now.
func InWindow(start, now time.Time) bool {
	d := start.Sub(now)
	return d >= 0 && d < NotifyWindow
}

// eligible reports whether a session can still become actionable:
// Open or Delayed, nothing else.
func eligible(s model.Session) bool {
	return s.Status == model.SessionOpen || s.Status == model.SessionDelayed
}

// NextActionable picks the single session that should be notified now,
// if any, and collects the Ignore-preference sessions that entered
// their window and must be silently advanced to Finished.
//
// When several Notify sessions qualify at once (abnormal data, but
// handled) the earliest start wins, ties broken by lowest id. The
// caller must mark the returned session Finished immediately after a
// successful send; that transition is what prevents duplicates.
func NextActionable(sessions []model.Session, now time.Time) (actionable *model.Session, autoFinish []model.Session) {
	for i := range sessions {
		s := sessions[i]
		if !eligible(s) || !InWindow(s.Start, now) {
			continue
		}
		if s.Notify == model.PreferIgnore {
			autoFinish = append(autoFinish, s)
			continue
		}
		if actionable == nil || earlier(s, *actionable) {
			actionable = &sessions[i]
		}
	}
	return actionable, autoFinish
}

func earlier(a, b model.Session) bool {
	if !a.Start.Equal(b.Start) {
		return a.Start.Before(b.Start)
	}
	return a.ID < b.ID
}

// IsWeekendTerminal reports whether a weekend is over: either its
// status already says so, or every one of its (non-zero) sessions has
// reached a terminal state. A weekend with no sessions is never
// auto-terminal - it may simply not be populated yet.
func IsWeekendTerminal(w model.Weekend, sessions []model.Session) bool {
	if w.Status == model.WeekendDone {
		return true
	}
	if len(sessions) == 0 {
		return false
	}
	for _, s := range sessions {
		if !s.Status.Terminal() {
			return false
		}
	}
	return true
}
