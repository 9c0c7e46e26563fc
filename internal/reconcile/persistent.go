package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gridline/gridline/internal/model"
	"github.com/gridline/gridline/internal/render"
)

// SyncPersistent makes the single running "what's next" message for a
// series match the given weekend view. A nil weekend means there is no
// upcoming weekend, in which case any existing persistent artifact is
// torn down rather than left pointing at a stale event.
//
// The stored content hash is the cost control: the loop calls this
// every few seconds, and an unchanged weekend must produce zero
// network operations.
func (r *Reconciler) SyncPersistent(ctx context.Context, series model.Series, channelID string, w *model.Weekend, sessions []model.Session) error {
	tracked, err := r.repo.TrackedMessages(ctx, model.MessagePersistent, series)
	if err != nil {
		return fmt.Errorf("load persistent artifact: %w", err)
	}

	if w == nil {
		return r.clearPersistent(ctx, series, tracked)
	}

	now := r.clock.Now()
	hash := model.Fingerprint(*w, sessions, now)

	if len(tracked) == 0 {
		content := render.Persistent(*w, sessions, now)
		messageID, err := r.ch.Send(ctx, channelID, content, nil)
		if err != nil {
			return fmt.Errorf("create persistent message: %w", err)
		}
		id, err := r.repo.InsertTrackedMessage(ctx, model.TrackedMessage{
			Kind:      model.MessagePersistent,
			Series:    series,
			ChannelID: channelID,
			MessageID: messageID,
			Posted:    now,
			Hash:      hash,
		})
		if err != nil {
			return fmt.Errorf("track persistent message: %w", err)
		}
		slog.Info("persistent message created",
			"series", series, "tracked_id", id, "weekend", w.Name)
		return nil
	}

	// At most one non-expired persistent artifact per series; extras
	// are leftovers from an interrupted pass and get cleaned up here.
	primary := tracked[0]
	for _, extra := range tracked[1:] {
		r.dropArtifact(ctx, extra, "duplicate persistent artifact")
	}

	if primary.Hash == hash {
		slog.Debug("persistent message unchanged", "series", series, "hash", hash)
		return nil
	}

	content := render.Persistent(*w, sessions, now)
	err = r.ch.Edit(ctx, primary.ChannelID, primary.MessageID, content)
	if errors.Is(err, model.ErrNotFound) {
		// The external message was deleted out from under us.
		// Forget the stale reference and recreate.
		slog.Warn("persistent message vanished, recreating",
			"series", series, "message", primary.MessageID)
		if err := r.repo.DeleteTrackedMessage(ctx, primary.ID); err != nil {
			return fmt.Errorf("forget stale persistent artifact: %w", err)
		}
		return r.SyncPersistent(ctx, series, channelID, w, sessions)
	}
	if err != nil {
		return fmt.Errorf("edit persistent message: %w", err)
	}

	if err := r.repo.UpdateMessageHash(ctx, primary.ID, hash); err != nil {
		return fmt.Errorf("record persistent hash: %w", err)
	}
	slog.Info("persistent message updated", "series", series, "weekend", w.Name)
	return nil
}

// clearPersistent removes the persistent artifact(s) for a series once
// no upcoming weekend exists to describe.
func (r *Reconciler) clearPersistent(ctx context.Context, series model.Series, tracked []model.TrackedMessage) error {
	var errs []error
	for _, m := range tracked {
		if err := r.dropArtifact(ctx, m, "no upcoming weekend"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dropArtifact deletes an external message (tolerating "already gone")
// and then its tracked record. On a transient delete failure the
// record is kept so a later pass retries.
func (r *Reconciler) dropArtifact(ctx context.Context, m model.TrackedMessage, reason string) error {
	err := r.ch.Delete(ctx, m.ChannelID, m.MessageID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		slog.Warn("artifact delete failed, will retry",
			"kind", m.Kind, "series", m.Series, "message", m.MessageID, "error", err)
		return fmt.Errorf("delete %s message %s: %w", m.Kind, m.MessageID, err)
	}
	if err := r.repo.DeleteTrackedMessage(ctx, m.ID); err != nil {
		return fmt.Errorf("forget %s artifact %d: %w", m.Kind, m.ID, err)
	}
	slog.Info("artifact removed",
		"kind", m.Kind, "series", m.Series, "message", m.MessageID, "reason", reason)
	return nil
}
