// Package presence tracks the process-wide status label of every connected
// user, independent of the rooms the user occupies.
package presence

import "sync"

// Well-known status labels. Any other non-empty label is accepted as-is.
const (
	StatusOnline  = "Online"
	StatusAway    = "Away"
	StatusUnknown = "unknown"
)

// Tracker maps usernames to status labels. It is safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]string
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{statuses: make(map[string]string)}
}

// SetStatus records status for username and returns the previous label, if
// there was one.
func (t *Tracker) SetStatus(username, status string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prior, existed := t.statuses[username]
	t.statuses[username] = status
	return prior, existed
}

// ClearStatus forgets username. Clearing an unknown user is a no-op.
func (t *Tracker) ClearStatus(username string) {
	t.mu.Lock()
	delete(t.statuses, username)
	t.mu.Unlock()
}

// StatusOf returns the status of username, or StatusUnknown.
func (t *Tracker) StatusOf(username string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if status, ok := t.statuses[username]; ok {
		return status
	}
	return StatusUnknown
}

// StatusesOf returns the status of each username in one consistent read.
func (t *Tracker) StatusesOf(usernames []string) map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]string, len(usernames))
	for _, name := range usernames {
		if status, ok := t.statuses[name]; ok {
			out[name] = status
		} else {
			out[name] = StatusUnknown
		}
	}
	return out
}

// Len reports how many users currently have a status.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.statuses)
}
