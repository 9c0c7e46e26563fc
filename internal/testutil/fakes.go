package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gridline/gridline/internal/model"
)

// MemRepo is an in-memory repository implementation with the same
// observable semantics as the SQLite store: start-ordered reads,
// post-ordered tracked messages, and the not-found error class.
type MemRepo struct {
	mu       sync.Mutex
	weekends map[int64]*model.Weekend
	sessions map[int64]*model.Session
	messages map[int64]*model.TrackedMessage
	nextID   int64

	// Error injection: when non-nil the corresponding method fails.
	NextWeekendErr   error
	SessionsErr      error
	SessionStatusErr error
	InsertMessageErr error
}

// NewMemRepo creates an empty in-memory repository.
func NewMemRepo() *MemRepo {
	return &MemRepo{
		weekends: make(map[int64]*model.Weekend),
		sessions: make(map[int64]*model.Session),
		messages: make(map[int64]*model.TrackedMessage),
	}
}

// AddWeekend stores a weekend, assigning an id if it has none.
func (r *MemRepo) AddWeekend(w model.Weekend) model.Weekend {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.ID == 0 {
		r.nextID++
		w.ID = r.nextID
	}
	r.weekends[w.ID] = &w
	return w
}

// AddSession stores a session, assigning an id if it has none.
func (r *MemRepo) AddSession(s model.Session) model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == 0 {
		r.nextID++
		s.ID = r.nextID
	}
	r.sessions[s.ID] = &s
	return s
}

// Weekend returns a stored weekend by id for assertions.
func (r *MemRepo) Weekend(id int64) model.Weekend {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.weekends[id]
}

// Session returns a stored session by id for assertions.
func (r *MemRepo) Session(id int64) model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.sessions[id]
}

// MessageCount returns the number of tracked message records.
func (r *MemRepo) MessageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *MemRepo) OpenWeekends(_ context.Context, series model.Series) ([]model.Weekend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Weekend
	for _, w := range r.weekends {
		if w.Series == series && w.Status == model.WeekendOpen {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemRepo) NextOpenWeekend(ctx context.Context, series model.Series, now time.Time) (model.Weekend, error) {
	if r.NextWeekendErr != nil {
		return model.Weekend{}, r.NextWeekendErr
	}
	open, _ := r.OpenWeekends(ctx, series)
	cutoff := now.Add(-4 * 24 * time.Hour)
	for _, w := range open {
		if w.Start.After(cutoff) {
			return w, nil
		}
	}
	return model.Weekend{}, fmt.Errorf("next open weekend for %s: %w", series, model.ErrNotFound)
}

func (r *MemRepo) Sessions(_ context.Context, weekendID int64) ([]model.Session, error) {
	if r.SessionsErr != nil {
		return nil, r.SessionsErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Session
	for _, s := range r.sessions {
		if s.WeekendID == weekendID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemRepo) SetWeekendStatus(_ context.Context, id int64, status model.WeekendStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.weekends[id]
	if !ok {
		return fmt.Errorf("weekend %d: %w", id, model.ErrNotFound)
	}
	w.Status = status
	return nil
}

func (r *MemRepo) SetSessionStatus(_ context.Context, id int64, status model.SessionStatus) error {
	if r.SessionStatusErr != nil {
		return r.SessionStatusErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %d: %w", id, model.ErrNotFound)
	}
	s.Status = status
	return nil
}

func (r *MemRepo) TrackedMessages(_ context.Context, kind model.MessageKind, series model.Series) ([]model.TrackedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TrackedMessage
	for _, m := range r.messages {
		if m.Kind == kind && m.Series == series {
			out = append(out, *m)
		}
	}
	sortMessages(out)
	return out, nil
}

func (r *MemRepo) InsertTrackedMessage(_ context.Context, m model.TrackedMessage) (int64, error) {
	if r.InsertMessageErr != nil {
		return 0, r.InsertMessageErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m.ID = r.nextID
	r.messages[m.ID] = &m
	return m.ID, nil
}

func (r *MemRepo) UpdateMessageHash(_ context.Context, id int64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("tracked message %d: %w", id, model.ErrNotFound)
	}
	m.Hash = hash
	return nil
}

func (r *MemRepo) SetMessageExpiry(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("tracked message %d: %w", id, model.ErrNotFound)
	}
	m.ExpiresAt = at
	return nil
}

func (r *MemRepo) DeleteTrackedMessage(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, id)
	return nil
}

func (r *MemRepo) ExpiredMessages(_ context.Context, now time.Time) ([]model.TrackedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TrackedMessage
	for _, m := range r.messages {
		if m.Expired(now) {
			out = append(out, *m)
		}
	}
	sortMessages(out)
	return out, nil
}

func sortMessages(msgs []model.TrackedMessage) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].Posted.Equal(msgs[j].Posted) {
			return msgs[i].Posted.Before(msgs[j].Posted)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// SendCall records one FakeChannel.Send invocation.
type SendCall struct {
	ChannelID  string
	Content    string
	Attachment *model.Attachment
	MessageID  string
}

// EditCall records one FakeChannel.Edit invocation.
type EditCall struct {
	ChannelID string
	MessageID string
	Content   string
}

// DeleteCall records one FakeChannel.Delete invocation.
type DeleteCall struct {
	ChannelID string
	MessageID string
}

// FakeChannel records every channel operation and returns scripted
// errors. Message handles are "msg-1", "msg-2", ... in send order.
type FakeChannel struct {
	mu      sync.Mutex
	nextMsg int

	Sends   []SendCall
	Edits   []EditCall
	Deletes []DeleteCall

	// Error injection. The per-message maps win over the blanket error.
	SendErr   error
	EditErr   map[string]error
	DeleteErr map[string]error
}

// NewFakeChannel creates an empty FakeChannel.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{
		EditErr:   make(map[string]error),
		DeleteErr: make(map[string]error),
	}
}

func (c *FakeChannel) Send(_ context.Context, channelID, content string, attachment *model.Attachment) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.nextMsg++
	id := fmt.Sprintf("msg-%d", c.nextMsg)
	c.Sends = append(c.Sends, SendCall{
		ChannelID: channelID, Content: content, Attachment: attachment, MessageID: id,
	})
	return id, nil
}

func (c *FakeChannel) Edit(_ context.Context, channelID, messageID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.EditErr[messageID]; ok {
		return err
	}
	c.Edits = append(c.Edits, EditCall{ChannelID: channelID, MessageID: messageID, Content: content})
	return nil
}

func (c *FakeChannel) Delete(_ context.Context, channelID, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.DeleteErr[messageID]; ok {
		return err
	}
	c.Deletes = append(c.Deletes, DeleteCall{ChannelID: channelID, MessageID: messageID})
	return nil
}
