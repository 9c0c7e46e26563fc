package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridline/gridline/internal/model"
	"github.com/gridline/gridline/internal/reconcile"
	"github.com/gridline/gridline/internal/testutil"
)

var workerNow = time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo *testutil.MemRepo
	ch   *testutil.FakeChannel
	clk  *testutil.ManualClock
	sup  *Supervisor
	sc   SeriesConfig
}

func newFixture() *fixture {
	repo := testutil.NewMemRepo()
	ch := testutil.NewFakeChannel()
	clk := testutil.NewManualClock(workerNow)
	rec := reconcile.New(repo, ch,
		reconcile.WithClock(clk),
		reconcile.WithPlaceholderDelay(0),
	)
	sc := SeriesConfig{Series: model.SeriesF1, ChannelID: "chan-1", RoleID: "role-1"}
	sup := New(repo, rec, []SeriesConfig{sc}, WithClock(clk))
	return &fixture{repo: repo, ch: ch, clk: clk, sup: sup, sc: sc}
}

func (f *fixture) iterate() {
	var lastCalendar time.Time
	f.sup.iterate(context.Background(), f.sc, &lastCalendar)
}

func TestIterateNotifiesAndClosesWeekend(t *testing.T) {
	f := newFixture()

	// A race about to start and a qualifying that already happened; the
	// persistent message is the only other artifact in play.
	w := f.repo.AddWeekend(model.Weekend{
		Series: model.SeriesF1, Name: "Example GP", Icon: "🏁", Year: 2026,
		Start: workerNow.Add(-48 * time.Hour), Status: model.WeekendOpen,
	})
	quali := f.repo.AddSession(model.Session{
		WeekendID: w.ID, Kind: model.KindQualifying,
		Status: model.SessionFinished, Notify: model.PreferNotify,
		Start: workerNow.Add(-2 * time.Hour),
	})
	race := f.repo.AddSession(model.Session{
		WeekendID: w.ID, Kind: model.KindRace,
		Status: model.SessionOpen, Notify: model.PreferNotify,
		Start: workerNow.Add(3 * time.Minute),
	})

	f.iterate()

	// One persistent create, one notification ping.
	require.Len(t, f.ch.Sends, 2)
	assert.Contains(t, f.ch.Sends[0].Content, "Example GP")
	assert.Contains(t, f.ch.Sends[1].Content, "<@&role-1>")

	assert.Equal(t, model.SessionFinished, f.repo.Session(race.ID).Status)
	assert.Equal(t, model.SessionFinished, f.repo.Session(quali.ID).Status)
	assert.Equal(t, model.WeekendDone, f.repo.Weekend(w.ID).Status)

	// All sessions terminal: the weekend closed in the same pass, and
	// the persistent artifact's hash was invalidated for the next one.
	persistent, err := f.repo.TrackedMessages(context.Background(), model.MessagePersistent, model.SeriesF1)
	require.NoError(t, err)
	require.Len(t, persistent, 1)
	assert.Empty(t, persistent[0].Hash)

	// The next pass finds no open weekend and clears the board.
	f.iterate()
	require.Len(t, f.ch.Deletes, 1)
	assert.Equal(t, persistent[0].MessageID, f.ch.Deletes[0].MessageID)
}

func TestIterateNeverNotifiesTwice(t *testing.T) {
	f := newFixture()

	w := f.repo.AddWeekend(model.Weekend{
		Series: model.SeriesF1, Name: "Example GP", Icon: "🏁", Year: 2026,
		Start: workerNow, Status: model.WeekendOpen,
	})
	f.repo.AddSession(model.Session{
		WeekendID: w.ID, Kind: model.KindRace,
		Status: model.SessionOpen, Notify: model.PreferNotify,
		Start: workerNow.Add(2 * time.Minute),
	})

	// Repeated passes inside the window: exactly one ping.
	for i := 0; i < 5; i++ {
		f.iterate()
		f.clk.Advance(30 * time.Second)
	}

	pings := 0
	for _, s := range f.ch.Sends {
		if strings.Contains(s.Content, "<@&role-1>") {
			pings++
		}
	}
	assert.Equal(t, 1, pings)
}

func TestIterateRetriesAfterSendFailure(t *testing.T) {
	f := newFixture()

	w := f.repo.AddWeekend(model.Weekend{
		Series: model.SeriesF1, Name: "Example GP", Icon: "🏁", Year: 2026,
		Start: workerNow, Status: model.WeekendOpen,
	})
	race := f.repo.AddSession(model.Session{
		WeekendID: w.ID, Kind: model.KindRace,
		Status: model.SessionOpen, Notify: model.PreferNotify,
		Start: workerNow.Add(2 * time.Minute),
	})

	f.ch.SendErr = assert.AnError
	f.iterate()

	// Send failed: session stays Open, weekend stays Open.
	assert.Equal(t, model.SessionOpen, f.repo.Session(race.ID).Status)
	assert.Equal(t, model.WeekendOpen, f.repo.Weekend(w.ID).Status)

	f.ch.SendErr = nil
	f.iterate()
	assert.Equal(t, model.SessionFinished, f.repo.Session(race.ID).Status)
}

func TestIterateAutoFinishesIgnoredSessions(t *testing.T) {
	f := newFixture()

	w := f.repo.AddWeekend(model.Weekend{
		Series: model.SeriesF1, Name: "Example GP", Icon: "🏁", Year: 2026,
		Start: workerNow, Status: model.WeekendOpen,
	})
	ignored := f.repo.AddSession(model.Session{
		WeekendID: w.ID, Kind: model.KindPractice, Number: 1,
		Status: model.SessionOpen, Notify: model.PreferIgnore,
		Start: workerNow.Add(2 * time.Minute),
	})
	race := f.repo.AddSession(model.Session{
		WeekendID: w.ID, Kind: model.KindRace,
		Status: model.SessionOpen, Notify: model.PreferNotify,
		Start: workerNow.Add(48 * time.Hour),
	})

	f.iterate()

	assert.Equal(t, model.SessionFinished, f.repo.Session(ignored.ID).Status)
	assert.Equal(t, model.SessionOpen, f.repo.Session(race.ID).Status)
	assert.Equal(t, model.WeekendOpen, f.repo.Weekend(w.ID).Status)

	// No ping went out for the ignored session.
	for _, s := range f.ch.Sends {
		assert.NotContains(t, s.Content, "<@&role-1>")
	}
}

func TestIterateRefreshesCalendarOnSchedule(t *testing.T) {
	f := newFixture()

	f.repo.AddWeekend(model.Weekend{
		Series: model.SeriesF1, Name: "Round 1", Icon: "🏁", Year: 2026,
		Start: workerNow.Add(7 * 24 * time.Hour), Status: model.WeekendOpen,
	})
	f.repo.AddWeekend(model.Weekend{
		Series: model.SeriesF1, Name: "Round 2", Icon: "🏁", Year: 2026,
		Start: workerNow.Add(14 * 24 * time.Hour), Status: model.WeekendOpen,
	})

	var lastCalendar time.Time
	ctx := context.Background()

	// First pass: refresh is due (zero lastCalendar), two placeholders.
	f.sup.iterate(ctx, f.sc, &lastCalendar)
	calendar, err := f.repo.TrackedMessages(ctx, model.MessageCalendar, model.SeriesF1)
	require.NoError(t, err)
	assert.Len(t, calendar, 2)

	// Within the refresh period the calendar is left alone even though
	// a third weekend appeared.
	f.repo.AddWeekend(model.Weekend{
		Series: model.SeriesF1, Name: "Round 3", Icon: "🏁", Year: 2026,
		Start: workerNow.Add(21 * 24 * time.Hour), Status: model.WeekendOpen,
	})
	f.clk.Advance(time.Minute)
	f.sup.iterate(ctx, f.sc, &lastCalendar)
	calendar, err = f.repo.TrackedMessages(ctx, model.MessageCalendar, model.SeriesF1)
	require.NoError(t, err)
	assert.Len(t, calendar, 2)

	// Past the refresh period it catches up.
	f.clk.Advance(DefaultCalendarRefresh)
	f.sup.iterate(ctx, f.sc, &lastCalendar)
	calendar, err = f.repo.TrackedMessages(ctx, model.MessageCalendar, model.SeriesF1)
	require.NoError(t, err)
	assert.Len(t, calendar, 3)
}

func TestIterateLoadFailureStillRefreshesCalendar(t *testing.T) {
	f := newFixture()

	f.repo.AddWeekend(model.Weekend{
		Series: model.SeriesF1, Name: "Round 1", Icon: "🏁", Year: 2026,
		Start: workerNow.Add(7 * 24 * time.Hour), Status: model.WeekendOpen,
	})

	var lastCalendar time.Time
	ctx := context.Background()

	f.sup.iterate(ctx, f.sc, &lastCalendar)
	persistent, err := f.repo.TrackedMessages(ctx, model.MessagePersistent, model.SeriesF1)
	require.NoError(t, err)
	require.Len(t, persistent, 1)

	// The weekend read starts failing. The persistent artifact must not
	// be torn down - a load failure is not "no weekend" - but the
	// calendar refresh has its own reads and proceeds.
	f.repo.NextWeekendErr = assert.AnError
	f.repo.AddWeekend(model.Weekend{
		Series: model.SeriesF1, Name: "Round 2", Icon: "🏁", Year: 2026,
		Start: workerNow.Add(14 * 24 * time.Hour), Status: model.WeekendOpen,
	})
	f.clk.Advance(DefaultCalendarRefresh)
	f.sup.iterate(ctx, f.sc, &lastCalendar)

	assert.Empty(t, f.ch.Deletes)
	persistent, err = f.repo.TrackedMessages(ctx, model.MessagePersistent, model.SeriesF1)
	require.NoError(t, err)
	assert.Len(t, persistent, 1)

	calendar, err := f.repo.TrackedMessages(ctx, model.MessageCalendar, model.SeriesF1)
	require.NoError(t, err)
	assert.Len(t, calendar, 2)

	// A sessions-read failure behaves the same way.
	f.repo.NextWeekendErr = nil
	f.repo.SessionsErr = assert.AnError
	f.repo.AddWeekend(model.Weekend{
		Series: model.SeriesF1, Name: "Round 3", Icon: "🏁", Year: 2026,
		Start: workerNow.Add(21 * 24 * time.Hour), Status: model.WeekendOpen,
	})
	f.clk.Advance(DefaultCalendarRefresh)
	f.sup.iterate(ctx, f.sc, &lastCalendar)

	assert.Empty(t, f.ch.Deletes)
	calendar, err = f.repo.TrackedMessages(ctx, model.MessageCalendar, model.SeriesF1)
	require.NoError(t, err)
	assert.Len(t, calendar, 3)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture()
	sup := New(f.repo, reconcile.New(f.repo, f.ch, reconcile.WithClock(f.clk)),
		[]SeriesConfig{f.sc},
		WithClock(f.clk),
		WithPollInterval(10*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
}
