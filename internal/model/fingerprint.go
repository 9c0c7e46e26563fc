package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Domain prefix for content fingerprints.
// Version suffix enables future algorithm migration.
const fingerprintDomain = "gridline/weekend/v1"

// Fingerprint computes a stable hash of the observable display content
// of a weekend and its sessions at a given instant.
//
// The hash covers name, icon and the per-session title, start,
// duration, status and whether the session's slot has passed at now -
// nothing else. Slot passage is part of the rendering (passed sessions
// are struck through), so it must be part of the hash or the posted
// content would go stale once a slot ends with no other change. It
// still flips exactly once per session, so the steady state stays
// edit-free. Row ids, posted timestamps and other ephemeral fields are
// excluded so that two logically identical views always hash
// identically. Sessions are normalized by start time (ties by id)
// before hashing, so row order never causes a spurious diff.
//
// Not cryptographic: a collision costs one skipped edit, which the
// next content change heals.
func Fingerprint(w Weekend, sessions []Session, now time.Time) string {
	sorted := make([]Session, len(sessions))
	copy(sorted, sessions)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%s\x1f%s\x1f%d\n", w.Name, w.Icon, w.Year)
	for _, s := range sorted {
		fmt.Fprintf(&b, "%s\x1f%d\x1f%d\x1f%s\x1f%t\n",
			s.PrettyName(),
			s.Start.Unix(),
			int64(s.EffectiveDuration().Seconds()),
			s.Status,
			s.SlotPassed(now),
		)
	}

	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0x00}) // null separator between domain and payload
	h.Write([]byte(b.String()))
	return hex.EncodeToString(h.Sum(nil))
}
