package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gridline/gridline/internal/model"
	"github.com/gridline/gridline/internal/render"
)

// SyncCalendar makes the schedule board for a series match its open
// weekends: one message per weekend, in chronological post order.
//
// Counts are reconciled first - placeholders are created one at a time
// with a small delay to preserve post order, surplus messages are
// deleted newest-first - and only then are the positional pairs
// hash-diffed and edited. Pair edits are independent messages and run
// concurrently; one pair's failure never aborts the others.
func (r *Reconciler) SyncCalendar(ctx context.Context, series model.Series, channelID string) error {
	weekends, err := r.repo.OpenWeekends(ctx, series)
	if err != nil {
		return fmt.Errorf("load open weekends: %w", err)
	}
	msgs, err := r.repo.TrackedMessages(ctx, model.MessageCalendar, series)
	if err != nil {
		return fmt.Errorf("load calendar artifacts: %w", err)
	}

	changed, err := r.reconcileCalendarCount(ctx, series, channelID, len(weekends), msgs)
	if err != nil {
		return err
	}
	if changed {
		msgs, err = r.repo.TrackedMessages(ctx, model.MessageCalendar, series)
		if err != nil {
			return fmt.Errorf("reload calendar artifacts: %w", err)
		}
	}

	if len(msgs) != len(weekends) {
		// A create or delete failed mid-pass. Recovered incrementally:
		// the next pass picks up where this one stopped.
		return fmt.Errorf("calendar count mismatch for %s: %d weekends, %d messages",
			series, len(weekends), len(msgs))
	}

	return r.editCalendarPairs(ctx, weekends, msgs)
}

// reconcileCalendarCount creates or deletes calendar messages until
// their count matches the open-weekend count. Returns whether any
// record changed.
func (r *Reconciler) reconcileCalendarCount(ctx context.Context, series model.Series, channelID string, want int, msgs []model.TrackedMessage) (bool, error) {
	changed := false

	for i := len(msgs); i < want; i++ {
		if changed {
			// Space consecutive creates so the channel keeps them in
			// post order.
			r.sleep(r.placeholderDelay)
		}
		messageID, err := r.ch.Send(ctx, channelID, render.ReservedPlaceholder, nil)
		if err != nil {
			// Partial progress is fine; the next pass continues.
			return changed, fmt.Errorf("reserve calendar message: %w", err)
		}
		_, err = r.repo.InsertTrackedMessage(ctx, model.TrackedMessage{
			Kind:      model.MessageCalendar,
			Series:    series,
			ChannelID: channelID,
			MessageID: messageID,
			Posted:    r.clock.Now(),
		})
		if err != nil {
			return changed, fmt.Errorf("track calendar message: %w", err)
		}
		changed = true
		slog.Info("calendar message reserved", "series", series, "message", messageID)
	}

	// Surplus messages go newest-first so the surviving prefix keeps
	// its positional mapping.
	for i := len(msgs) - 1; i >= want; i-- {
		if err := r.dropArtifact(ctx, msgs[i], "fewer open weekends"); err != nil {
			return changed, err
		}
		changed = true
	}

	return changed, nil
}

// editCalendarPairs zips weekends against messages positionally and
// edits every pair whose content hash changed. Edits fan out
// concurrently; errors are collected per pair.
func (r *Reconciler) editCalendarPairs(ctx context.Context, weekends []model.Weekend, msgs []model.TrackedMessage) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	now := r.clock.Now()
	for i := range weekends {
		w, m := weekends[i], msgs[i]
		hash := model.Fingerprint(w, nil, now)
		if m.Hash == hash {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.editCalendarPair(ctx, w, m, hash); err != nil {
				slog.Error("calendar pair edit failed",
					"series", w.Series, "weekend", w.Name, "message", m.MessageID, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (r *Reconciler) editCalendarPair(ctx context.Context, w model.Weekend, m model.TrackedMessage, hash string) error {
	err := r.ch.Edit(ctx, m.ChannelID, m.MessageID, render.Calendar(w))
	if errors.Is(err, model.ErrNotFound) {
		// Message gone: forget the record, the next pass recreates it
		// through count reconciliation.
		if err := r.repo.DeleteTrackedMessage(ctx, m.ID); err != nil {
			return fmt.Errorf("forget stale calendar artifact: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("edit calendar message: %w", err)
	}
	if err := r.repo.UpdateMessageHash(ctx, m.ID, hash); err != nil {
		return fmt.Errorf("record calendar hash: %w", err)
	}
	return nil
}
