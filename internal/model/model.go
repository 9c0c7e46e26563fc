// Package model defines the domain types shared by the store, the
// scheduler and the reconciler: race weekends, their sessions, and the
// durable records of messages the bot has posted.
package model

import (
	"fmt"
	"time"
)

// Series identifies one independently scheduled championship calendar.
type Series string

const (
	SeriesF1        Series = "F1"
	SeriesF2        Series = "F2"
	SeriesF3        Series = "F3"
	SeriesF1Academy Series = "F1Academy"

	// SeriesUnsupported is the parse fallback for unknown values.
	SeriesUnsupported Series = "Unsupported"
)

// AllSeries lists the supported series in calendar-board order.
var AllSeries = []Series{SeriesF1, SeriesF2, SeriesF3, SeriesF1Academy}

// ParseSeries maps a stored string onto a Series.
// Unknown values parse to SeriesUnsupported rather than failing, so a
// row written by a newer schema never poisons a read path.
func ParseSeries(s string) Series {
	switch Series(s) {
	case SeriesF1, SeriesF2, SeriesF3, SeriesF1Academy:
		return Series(s)
	default:
		return SeriesUnsupported
	}
}

func (s Series) String() string { return string(s) }

// WeekendStatus is the lifecycle state of a Weekend.
type WeekendStatus string

const (
	WeekendOpen      WeekendStatus = "Open"
	WeekendCancelled WeekendStatus = "Cancelled"
	WeekendDone      WeekendStatus = "Done"
)

// Terminal reports whether the status has no outgoing transitions.
func (s WeekendStatus) Terminal() bool {
	return s == WeekendDone || s == WeekendCancelled
}

// CanTransitionTo enforces the monotone weekend state machine:
// Open may move to Cancelled or Done; terminal states never move.
func (s WeekendStatus) CanTransitionTo(next WeekendStatus) bool {
	if s.Terminal() {
		return false
	}
	return next == WeekendCancelled || next == WeekendDone
}

// ParseWeekendStatus maps a stored string onto a WeekendStatus.
func ParseWeekendStatus(s string) WeekendStatus {
	switch WeekendStatus(s) {
	case WeekendOpen, WeekendCancelled, WeekendDone:
		return WeekendStatus(s)
	default:
		return WeekendDone
	}
}

// SessionKind is the type of a timed sub-event within a weekend.
type SessionKind string

const (
	KindCustom        SessionKind = "Custom"
	KindPractice      SessionKind = "Practice"
	KindQualifying    SessionKind = "Qualifying"
	KindRace          SessionKind = "Race"
	KindSprintRace    SessionKind = "SprintRace"
	KindSprintQuali   SessionKind = "SprintQuali"
	KindPreSeasonTest SessionKind = "PreSeasonTest"
	KindFeatureRace   SessionKind = "FeatureRace"
	KindUnsupported   SessionKind = "Unsupported"
)

// ParseSessionKind maps a stored string onto a SessionKind.
func ParseSessionKind(s string) SessionKind {
	switch SessionKind(s) {
	case KindCustom, KindPractice, KindQualifying, KindRace,
		KindSprintRace, KindSprintQuali, KindPreSeasonTest, KindFeatureRace:
		return SessionKind(s)
	default:
		return KindUnsupported
	}
}

// DefaultDuration returns the assumed running time for sessions whose
// duration was not supplied by the ingestion path. Zero means unknown.
func (k SessionKind) DefaultDuration() time.Duration {
	switch k {
	case KindRace, KindSprintRace, KindFeatureRace:
		return 2 * time.Hour
	case KindQualifying, KindSprintQuali:
		return time.Hour
	case KindPractice, KindPreSeasonTest:
		return 90 * time.Minute
	default:
		return 0
	}
}

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionOpen        SessionStatus = "Open"
	SessionDelayed     SessionStatus = "Delayed"
	SessionCancelled   SessionStatus = "Cancelled"
	SessionFinished    SessionStatus = "Finished"
	SessionUnsupported SessionStatus = "Unsupported"
)

// Terminal reports whether the status has no outgoing transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionFinished || s == SessionCancelled
}

// CanTransitionTo enforces the monotone session state machine:
//
//	Open    -> Delayed | Finished | Cancelled
//	Delayed -> Finished | Cancelled
//
// Finished and Cancelled never move.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionOpen:
		return next == SessionDelayed || next == SessionFinished || next == SessionCancelled
	case SessionDelayed:
		return next == SessionFinished || next == SessionCancelled
	default:
		return false
	}
}

// ParseSessionStatus maps a stored string onto a SessionStatus.
func ParseSessionStatus(s string) SessionStatus {
	switch SessionStatus(s) {
	case SessionOpen, SessionDelayed, SessionCancelled, SessionFinished:
		return SessionStatus(s)
	default:
		return SessionUnsupported
	}
}

// NotifyPreference controls whether a session produces a ping when it
// enters its notify window.
type NotifyPreference string

const (
	// PreferNotify posts a one-shot notification message.
	PreferNotify NotifyPreference = "Notify"
	// PreferIgnore silently advances the session to Finished the first
	// time it is observed inside the window.
	PreferIgnore NotifyPreference = "Ignore"
)

// ParseNotifyPreference maps a stored string onto a NotifyPreference.
// Unknown values fall back to Notify: a spurious ping is recoverable,
// a session silently advanced to Finished is not.
func ParseNotifyPreference(s string) NotifyPreference {
	if NotifyPreference(s) == PreferIgnore {
		return PreferIgnore
	}
	return PreferNotify
}

// MessageKind tags a TrackedMessage with its reconciliation protocol.
type MessageKind string

const (
	// MessagePersistent is the single running "what's next" message per
	// series. Edited in place, hash-diffed.
	MessagePersistent MessageKind = "Persistent"
	// MessageCalendar is one schedule-board line per open weekend.
	MessageCalendar MessageKind = "Calendar"
	// MessageNotification is a disposable one-shot session ping.
	// Never edited, deleted after expiry.
	MessageNotification MessageKind = "Notification"
)

// ParseMessageKind maps a stored string onto a MessageKind.
func ParseMessageKind(s string) (MessageKind, error) {
	switch MessageKind(s) {
	case MessagePersistent, MessageCalendar, MessageNotification:
		return MessageKind(s), nil
	default:
		return "", fmt.Errorf("unknown message kind %q", s)
	}
}

// Weekend is one calendar event: a named, dated container of sessions.
type Weekend struct {
	ID     int64
	Series Series
	Name   string
	Icon   string
	Year   int
	Start  time.Time
	Status WeekendStatus
}

// Session is one timed sub-event of a weekend.
// Number and Title are optional; zero values mean "not supplied".
type Session struct {
	ID        int64
	WeekendID int64
	Kind      SessionKind
	Status    SessionStatus
	Notify    NotifyPreference
	Start     time.Time
	Duration  time.Duration
	Number    int
	Title     string
}

// PrettyName returns the human-facing session label. An explicit title
// always wins; otherwise the label derives from the kind.
func (s Session) PrettyName() string {
	if s.Title != "" {
		return s.Title
	}
	switch s.Kind {
	case KindCustom:
		return "Unnamed Session"
	case KindPractice:
		if s.Number > 0 {
			return fmt.Sprintf("FP%d", s.Number)
		}
		return "Practice"
	case KindQualifying:
		return "Qualifying"
	case KindRace:
		return "Race"
	case KindSprintRace:
		return "Sprint Race"
	case KindSprintQuali:
		return "Sprint Shootout"
	case KindPreSeasonTest:
		return "Pre-Season Test"
	case KindFeatureRace:
		return "Feature Race"
	default:
		return "Unknown Session"
	}
}

// EffectiveDuration is the session's duration, falling back to the
// kind's default when the ingestion path supplied none.
func (s Session) EffectiveDuration() time.Duration {
	if s.Duration > 0 {
		return s.Duration
	}
	return s.Kind.DefaultDuration()
}

// SlotPassed reports whether the session's time slot (start plus
// effective duration) is fully in the past at now.
func (s Session) SlotPassed(now time.Time) bool {
	return now.After(s.Start.Add(s.EffectiveDuration()))
}

// TrackedMessage is the durable record of one externally posted
// artifact: where it lives, what kind of artifact it is, and the hash
// of the content it last reflected.
type TrackedMessage struct {
	ID        int64
	Kind      MessageKind
	Series    Series
	ChannelID string
	MessageID string
	Posted    time.Time
	// ExpiresAt is zero for artifacts without an expiry.
	ExpiresAt time.Time
	// Hash is empty for kinds that are never hash-diffed (notifications).
	Hash string
}

// Expired reports whether the artifact's expiry has passed.
// Artifacts without an expiry never expire.
func (m TrackedMessage) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !m.ExpiresAt.After(now)
}

// Attachment is an optional binary payload posted with a notification.
type Attachment struct {
	Name string
	Data []byte
}
