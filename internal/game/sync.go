package game

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

const (
	syncCheckInterval  = 5 * time.Second
	syncErrorThreshold = 2
	syncErrorCeiling   = 10
	toastMaxAge        = 5 * time.Minute
	defaultToastTTL    = 3 * time.Second
)

// TypeSyncRequest asks the server for a fresh authoritative snapshot after
// drift has been detected.
const TypeSyncRequest = "REQUEST_STATE_SYNC"

func destStateSync(gameID string) string { return fmt.Sprintf("/app/game/%s/state-sync", gameID) }

type SyncRequest struct {
	Nickname string `json:"nickname"`
	Reason   string `json:"reason"`
}

// recencyRing remembers the last N message fingerprints. A replayed server
// announcement inside the window is a duplicate and must be ignored.
type recencyRing struct {
	keys []string
	next int
}

func newRecencyRing(size int) *recencyRing {
	return &recencyRing{keys: make([]string, size)}
}

// Seen records the fingerprint and reports whether it was already present.
func (r *recencyRing) Seen(key string) bool {
	for _, k := range r.keys {
		if k != "" && k == key {
			return true
		}
	}
	r.keys[r.next] = key
	r.next = (r.next + 1) % len(r.keys)
	return false
}

// checkDrift audits player positions against the roster mean. Rate-limited to
// one audit per syncCheckInterval; runs inside the store lock.
//
// A single outlier is normal (someone mid-move). More than one deviating by
// over a quarter of the board suggests the client missed updates: bump the
// error counter and, past the threshold, request one full resync. Healthy
// audits decay the counter instead.
func (s *Store) checkDrift(st *State, eff *Effects) {
	now := s.now()
	if now.Sub(st.LastSyncCheck) < syncCheckInterval {
		return
	}
	st.LastSyncCheck = now

	if len(st.Players) == 0 || len(st.Board) == 0 {
		return
	}

	sum := 0
	for i := range st.Players {
		sum += st.Players[i].Position.Value()
	}
	mean := float64(sum) / float64(len(st.Players))
	expectedRange := len(st.Board) / 4

	suspicious := 0
	for i := range st.Players {
		deviation := float64(st.Players[i].Position.Value()) - mean
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation > float64(expectedRange) {
			suspicious++
		}
	}

	if suspicious > 1 {
		st.SyncErrorCount++
		log.Printf("Position drift suspected: %d players outside expected range (errors=%d)",
			suspicious, st.SyncErrorCount)
		if st.SyncErrorCount >= syncErrorThreshold {
			s.requestFullSync(st, eff)
		}
		return
	}
	if st.SyncErrorCount > 0 {
		st.SyncErrorCount--
	}
}

// requestFullSync emits a single resync directive and resets the error
// counter so one drift episode produces one request.
func (s *Store) requestFullSync(st *State, eff *Effects) {
	log.Printf("Requesting full state sync for game %s", st.GameID)
	st.SyncErrorCount = 0

	syncToastID := s.pushToast(st, eff, ToastWarning, "Syncing",
		"Re-synchronizing game state with the server...")

	if st.GameID == "" {
		return
	}
	eff.Send(destStateSync(st.GameID), TypeSyncRequest, SyncRequest{
		Nickname: s.viewer,
		Reason:   "position-drift",
	})

	eff.After(2*time.Second, guardAlways, func(st *State, eff *Effects) {
		s.removeToast(st, syncToastID)
		s.pushToast(st, eff, ToastSuccess, "Synced", "Game state synchronized.")
	})
}

// cleanupMemory drops stale toasts and unsticks a runaway error counter.
func (s *Store) cleanupMemory(st *State, eff *Effects) {
	now := s.now()
	kept := st.Toasts[:0]
	for _, t := range st.Toasts {
		if now.Sub(t.Created) < toastMaxAge {
			kept = append(kept, t)
		}
	}
	if removed := len(st.Toasts) - len(kept); removed > 0 {
		log.Printf("Pruned %d stale toasts", removed)
	}
	st.Toasts = kept

	if st.SyncErrorCount >= syncErrorCeiling {
		log.Printf("Resetting stuck sync error counter (was %d)", st.SyncErrorCount)
		st.SyncErrorCount = 0
	}
}

// pushToast appends a toast and schedules its expiry. Returns the toast id.
func (s *Store) pushToast(st *State, eff *Effects, severity ToastSeverity, title, message string) string {
	id := uuid.New().String()
	st.Toasts = append(st.Toasts, Toast{
		ID:       id,
		Severity: severity,
		Title:    title,
		Message:  message,
		Duration: defaultToastTTL,
		Created:  s.now(),
	})
	eff.After(defaultToastTTL, guardAlways, func(st *State, eff *Effects) {
		s.removeToast(st, id)
	})
	return id
}

func (s *Store) removeToast(st *State, id string) {
	for i := range st.Toasts {
		if st.Toasts[i].ID == id {
			st.Toasts = append(st.Toasts[:i], st.Toasts[i+1:]...)
			return
		}
	}
}
