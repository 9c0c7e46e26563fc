package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gridline/gridline/internal/model"
	"github.com/gridline/gridline/internal/render"
)

// NotifySession posts the one-shot "session is starting" ping, marks
// the session Finished, and records the artifact with an explicit
// expiry so the sweep can dispose of it later.
//
// Ordering is the duplicate-prevention mechanism: the session is only
// flipped to Finished after a successful send, so a send failure
// leaves it Open/Delayed and the next iteration retries.
func (r *Reconciler) NotifySession(ctx context.Context, channelID, roleID string, w model.Weekend, s model.Session) error {
	content := render.Notification(w, s, roleID)
	messageID, err := r.ch.Send(ctx, channelID, content, r.attachment)
	if err != nil {
		return fmt.Errorf("send notification for session %d: %w", s.ID, err)
	}

	if err := r.repo.SetSessionStatus(ctx, s.ID, model.SessionFinished); err != nil {
		// The ping is out but the status write failed: the next pass
		// may notify again. Surface loudly; nothing to roll back.
		return fmt.Errorf("mark session %d finished after send: %w", s.ID, err)
	}

	now := r.clock.Now()
	ttl := s.EffectiveDuration()
	if ttl <= 0 {
		ttl = notificationFallbackTTL
	}
	_, err = r.repo.InsertTrackedMessage(ctx, model.TrackedMessage{
		Kind:      model.MessageNotification,
		Series:    w.Series,
		ChannelID: channelID,
		MessageID: messageID,
		Posted:    now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("track notification for session %d: %w", s.ID, err)
	}

	slog.Info("session notification sent",
		"series", w.Series, "weekend", w.Name, "session", s.PrettyName(),
		"message", messageID, "expires_in", ttl)
	return nil
}

// SweepExpired deletes every tracked artifact whose expiry has passed,
// across all series. "Already gone" counts as success; a transient
// delete failure keeps the record so the next sweep retries instead of
// leaking the external message.
func (r *Reconciler) SweepExpired(ctx context.Context) error {
	now := r.clock.Now()
	expired, err := r.repo.ExpiredMessages(ctx, now)
	if err != nil {
		return fmt.Errorf("load expired artifacts: %w", err)
	}

	var errs []error
	for _, m := range expired {
		if err := r.dropArtifact(ctx, m, "expired"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InvalidateArtifacts clears the stored hashes of a series' persistent
// and calendar artifacts. Called after a weekend is marked Done so the
// next pass re-renders everything against the new upcoming weekend
// instead of trusting hashes computed against the old one.
func (r *Reconciler) InvalidateArtifacts(ctx context.Context, series model.Series) error {
	var errs []error
	for _, kind := range []model.MessageKind{model.MessagePersistent, model.MessageCalendar} {
		msgs, err := r.repo.TrackedMessages(ctx, kind, series)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s artifacts: %w", kind, err))
			continue
		}
		for _, m := range msgs {
			if m.Hash == "" {
				continue
			}
			if err := r.repo.UpdateMessageHash(ctx, m.ID, ""); err != nil {
				errs = append(errs, fmt.Errorf("invalidate %s artifact %d: %w", kind, m.ID, err))
			}
		}
	}
	if len(errs) == 0 {
		slog.Debug("artifacts invalidated", "series", series)
	}
	return errors.Join(errs...)
}
