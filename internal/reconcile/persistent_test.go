package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridline/gridline/internal/model"
	"github.com/gridline/gridline/internal/testutil"
)

var testNow = time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

func newTestReconciler(repo Repository, ch Channel, clk Clock) *Reconciler {
	return New(repo, ch, WithClock(clk), WithPlaceholderDelay(0))
}

func testWeekend(repo *testutil.MemRepo, name string, start time.Time) (model.Weekend, []model.Session) {
	w := repo.AddWeekend(model.Weekend{
		Series: model.SeriesF1, Name: name, Icon: "🏁", Year: 2026,
		Start: start, Status: model.WeekendOpen,
	})
	s := repo.AddSession(model.Session{
		WeekendID: w.ID, Kind: model.KindRace,
		Status: model.SessionOpen, Notify: model.PreferNotify,
		Start: start,
	})
	return w, []model.Session{s}
}

func TestSyncPersistentCreatesWhenMissing(t *testing.T) {
	repo := testutil.NewMemRepo()
	ch := testutil.NewFakeChannel()
	clk := testutil.NewManualClock(testNow)
	rec := newTestReconciler(repo, ch, clk)

	w, sessions := testWeekend(repo, "Example GP", testNow.Add(48*time.Hour))

	require.NoError(t, rec.SyncPersistent(context.Background(), model.SeriesF1, "chan-1", &w, sessions))

	require.Len(t, ch.Sends, 1)
	assert.Contains(t, ch.Sends[0].Content, "Example GP")

	tracked, err := repo.TrackedMessages(context.Background(), model.MessagePersistent, model.SeriesF1)
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, model.Fingerprint(w, sessions, testNow), tracked[0].Hash)
}

func TestSyncPersistentIdempotent(t *testing.T) {
	repo := testutil.NewMemRepo()
	ch := testutil.NewFakeChannel()
	clk := testutil.NewManualClock(testNow)
	rec := newTestReconciler(repo, ch, clk)

	w, sessions := testWeekend(repo, "Example GP", testNow.Add(48*time.Hour))
	ctx := context.Background()

	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", &w, sessions))
	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", &w, sessions))

	// Second pass with unchanged content: zero network operations.
	assert.Len(t, ch.Sends, 1)
	assert.Empty(t, ch.Edits)
}

func TestSyncPersistentEditsOnChange(t *testing.T) {
	repo := testutil.NewMemRepo()
	ch := testutil.NewFakeChannel()
	clk := testutil.NewManualClock(testNow)
	rec := newTestReconciler(repo, ch, clk)

	w, sessions := testWeekend(repo, "Example GP", testNow.Add(48*time.Hour))
	ctx := context.Background()

	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", &w, sessions))

	sessions[0].Status = model.SessionCancelled
	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", &w, sessions))

	assert.Len(t, ch.Sends, 1)
	require.Len(t, ch.Edits, 1)

	tracked, err := repo.TrackedMessages(ctx, model.MessagePersistent, model.SeriesF1)
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, model.Fingerprint(w, sessions, testNow), tracked[0].Hash)
}

func TestSyncPersistentRestrikesAfterSlotPasses(t *testing.T) {
	repo := testutil.NewMemRepo()
	ch := testutil.NewFakeChannel()
	clk := testutil.NewManualClock(testNow)
	rec := newTestReconciler(repo, ch, clk)

	w := repo.AddWeekend(model.Weekend{
		Series: model.SeriesF1, Name: "Example GP", Icon: "🏁", Year: 2026,
		Start: testNow.Add(-time.Hour), Status: model.WeekendOpen,
	})
	quali := repo.AddSession(model.Session{
		WeekendID: w.ID, Kind: model.KindQualifying,
		Status: model.SessionOpen, Notify: model.PreferNotify,
		Start: testNow.Add(-30 * time.Minute),
	})
	race := repo.AddSession(model.Session{
		WeekendID: w.ID, Kind: model.KindRace,
		Status: model.SessionOpen, Notify: model.PreferNotify,
		Start: testNow.Add(24 * time.Hour),
	})
	sessions := []model.Session{quali, race}
	ctx := context.Background()

	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", &w, sessions))
	require.Len(t, ch.Sends, 1)
	assert.NotContains(t, ch.Sends[0].Content, "~~", "qualifying is still running")

	// Nothing in the rows changes, but the qualifying slot ends. The
	// posted content must pick up the strikethrough.
	clk.Advance(3 * time.Hour)
	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", &w, sessions))
	require.Len(t, ch.Edits, 1)
	assert.Contains(t, ch.Edits[0].Content, "~~")

	// And once re-synced it settles again.
	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", &w, sessions))
	assert.Len(t, ch.Edits, 1)
}

func TestSyncPersistentRecreatesAfterVanish(t *testing.T) {
	repo := testutil.NewMemRepo()
	ch := testutil.NewFakeChannel()
	clk := testutil.NewManualClock(testNow)
	rec := newTestReconciler(repo, ch, clk)

	w, sessions := testWeekend(repo, "Example GP", testNow.Add(48*time.Hour))
	ctx := context.Background()

	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", &w, sessions))

	// Someone deleted the message out-of-band: edits now 404.
	ch.EditErr["msg-1"] = fmt.Errorf("http 404: %w", model.ErrNotFound)
	sessions[0].Status = model.SessionDelayed

	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", &w, sessions))

	require.Len(t, ch.Sends, 2, "a fresh message replaces the vanished one")
	tracked, err := repo.TrackedMessages(ctx, model.MessagePersistent, model.SeriesF1)
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, "msg-2", tracked[0].MessageID)
}

func TestSyncPersistentClearsWithoutWeekend(t *testing.T) {
	repo := testutil.NewMemRepo()
	ch := testutil.NewFakeChannel()
	clk := testutil.NewManualClock(testNow)
	rec := newTestReconciler(repo, ch, clk)

	w, sessions := testWeekend(repo, "Example GP", testNow.Add(48*time.Hour))
	ctx := context.Background()

	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", &w, sessions))
	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", nil, nil))

	assert.Len(t, ch.Deletes, 1)
	assert.Equal(t, 0, repo.MessageCount())

	// Clearing an already-clear state is a no-op.
	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", nil, nil))
	assert.Len(t, ch.Deletes, 1)
}

func TestSyncPersistentClearToleratesGoneMessage(t *testing.T) {
	repo := testutil.NewMemRepo()
	ch := testutil.NewFakeChannel()
	clk := testutil.NewManualClock(testNow)
	rec := newTestReconciler(repo, ch, clk)

	w, sessions := testWeekend(repo, "Example GP", testNow.Add(48*time.Hour))
	ctx := context.Background()

	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", &w, sessions))
	ch.DeleteErr["msg-1"] = fmt.Errorf("http 404: %w", model.ErrNotFound)

	require.NoError(t, rec.SyncPersistent(ctx, model.SeriesF1, "chan-1", nil, nil))
	assert.Equal(t, 0, repo.MessageCount(), "already-gone counts as deleted")
}
