package model

import "time"

// Snapshot is the persisted unit of incremental sync state.
// From is the completion time of the last successful sync and anchors the
// next query window.
type Snapshot struct {
	ChangeRequests []ChangeRequest `json:"change_requests"`
	From           time.Time       `json:"from"`
}

// FreshAt reports whether the snapshot is still within ttl at now.
func (s Snapshot) FreshAt(now time.Time, ttl time.Duration) bool {
	return now.Before(s.From.Add(ttl))
}
