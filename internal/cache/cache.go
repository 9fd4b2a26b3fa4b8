// Package cache persists the single change-request snapshot.
// Stores only move bytes: freshness is decided by the sync engine.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"basegraph.app/tally/internal/model"
)

// DefaultKey is the key the snapshot lives under in every backend.
const DefaultKey = "change_requests"

// ErrCorrupt is returned by Get when the stored payload cannot be decoded.
var ErrCorrupt = errors.New("cache: corrupt snapshot")

// Store is a single-key, last-write-wins snapshot store.
// Get returns (nil, nil) when nothing has been stored yet.
type Store interface {
	Get(ctx context.Context) (*model.Snapshot, error)
	Set(ctx context.Context, snapshot model.Snapshot) error
}

func encode(snapshot model.Snapshot) ([]byte, error) {
	if snapshot.ChangeRequests == nil {
		snapshot.ChangeRequests = []model.ChangeRequest{}
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// decode accepts any JSON object carrying a "from" timestamp; unknown fields
// are ignored so older binaries can read snapshots written by newer ones.
func decode(data []byte) (*model.Snapshot, error) {
	var raw struct {
		ChangeRequests []model.ChangeRequest `json:"change_requests"`
		From           *json.RawMessage      `json:"from"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if raw.From == nil {
		return nil, fmt.Errorf("%w: missing from", ErrCorrupt)
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal(*raw.From, &snapshot.From); err != nil {
		return nil, fmt.Errorf("%w: from: %v", ErrCorrupt, err)
	}
	snapshot.ChangeRequests = raw.ChangeRequests
	if snapshot.ChangeRequests == nil {
		snapshot.ChangeRequests = []model.ChangeRequest{}
	}
	return &snapshot, nil
}
