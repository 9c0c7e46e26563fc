// Package render produces the chat-markdown content for each artifact
// kind. Content is plain text with Discord timestamp tokens; all
// layout decisions live here so the reconciler can treat content as an
// opaque string.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gridline/gridline/internal/model"
)

// ReservedPlaceholder is the content of a freshly created calendar
// message before its first positional edit.
const ReservedPlaceholder = "*Reserved*"

// Persistent renders the running "what's next" message: the weekend
// header followed by one quoted line per session. Sessions whose slot
// has fully passed are struck through.
func Persistent(w model.Weekend, sessions []model.Session, now time.Time) string {
	sorted := make([]model.Session, len(sessions))
	copy(sorted, sessions)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%s **%s**", w.Icon, w.Name)
	for _, s := range sorted {
		strike := ""
		if s.SlotPassed(now) {
			strike = "~~"
		}
		ts := s.Start.Unix()
		fmt.Fprintf(&b, "\n> %s%s: <t:%d:F>%s (<t:%d:R>)",
			strike, sessionLabel(s), ts, strike, ts)
	}
	return b.String()
}

// Calendar renders one schedule-board line for a weekend.
func Calendar(w model.Weekend) string {
	return fmt.Sprintf("%s %s", w.Icon, w.Name)
}

// Notification renders the one-shot "session is starting" ping,
// mentioning the configured role.
func Notification(w model.Weekend, s model.Session, roleID string) string {
	return fmt.Sprintf("**%s %s - %s starting <t:%d:R>**\n<@&%s>",
		w.Icon, w.Name, s.PrettyName(), s.Start.Unix(), roleID)
}

// sessionLabel is the monospace-aligned label used in the persistent
// message body. Custom sessions use their title verbatim.
func sessionLabel(s model.Session) string {
	if s.Kind == model.KindCustom {
		return s.PrettyName()
	}
	return fmt.Sprintf("`%12s`", s.PrettyName())
}
