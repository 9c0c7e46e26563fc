// Package reconcile implements the message reconciliation core: for
// each artifact kind it compares the desired state (what the calendar
// says) against the actual state (what was last posted) and issues the
// minimal set of create/edit/delete operations, recording what was
// done so the next pass can diff against it.
package reconcile

import (
	"context"
	"time"

	"github.com/gridline/gridline/internal/model"
)

// Repository is the durable state the reconciler reads and writes.
// Implementations must distinguish the not-found class (wrap
// model.ErrNotFound) from transient I/O failures.
type Repository interface {
	OpenWeekends(ctx context.Context, series model.Series) ([]model.Weekend, error)
	NextOpenWeekend(ctx context.Context, series model.Series, now time.Time) (model.Weekend, error)
	Sessions(ctx context.Context, weekendID int64) ([]model.Session, error)
	SetWeekendStatus(ctx context.Context, id int64, status model.WeekendStatus) error
	SetSessionStatus(ctx context.Context, id int64, status model.SessionStatus) error

	TrackedMessages(ctx context.Context, kind model.MessageKind, series model.Series) ([]model.TrackedMessage, error)
	InsertTrackedMessage(ctx context.Context, m model.TrackedMessage) (int64, error)
	UpdateMessageHash(ctx context.Context, id int64, hash string) error
	SetMessageExpiry(ctx context.Context, id int64, at time.Time) error
	DeleteTrackedMessage(ctx context.Context, id int64) error
	ExpiredMessages(ctx context.Context, now time.Time) ([]model.TrackedMessage, error)
}

// Channel is the outbound notification transport.
// Edit and Delete must surface a missing message as the not-found
// class (wrap model.ErrNotFound); anything else is treated as
// transient and retried on a later pass.
type Channel interface {
	Send(ctx context.Context, channelID, content string, attachment *model.Attachment) (string, error)
	Edit(ctx context.Context, channelID, messageID, content string) error
	Delete(ctx context.Context, channelID, messageID string) error
}

// Clock supplies the current time for windowing and expiry decisions.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// defaultPlaceholderDelay spaces out calendar placeholder creates so
// the channel receives them in chronological post order. The API gives
// no ordering guarantee across rapid concurrent sends.
const defaultPlaceholderDelay = 250 * time.Millisecond

// notificationFallbackTTL bounds the lifetime of a notification whose
// session has no known duration.
const notificationFallbackTTL = 30 * time.Minute

// Reconciler drives the three artifact protocols against one
// Repository and one Channel. Safe for use from multiple series
// workers: it holds no per-series state.
type Reconciler struct {
	repo Repository
	ch   Channel

	clock            Clock
	attachment       *model.Attachment
	placeholderDelay time.Duration
	sleep            func(time.Duration)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source. Used by tests.
func WithClock(c Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

// WithAttachment sets a binary payload posted with every notification.
func WithAttachment(a *model.Attachment) Option {
	return func(r *Reconciler) { r.attachment = a }
}

// WithPlaceholderDelay overrides the inter-create delay for calendar
// placeholders. Tests set it to zero.
func WithPlaceholderDelay(d time.Duration) Option {
	return func(r *Reconciler) { r.placeholderDelay = d }
}

// New creates a Reconciler.
func New(repo Repository, ch Channel, opts ...Option) *Reconciler {
	r := &Reconciler{
		repo:             repo,
		ch:               ch,
		clock:            SystemClock{},
		placeholderDelay: defaultPlaceholderDelay,
		sleep:            time.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
