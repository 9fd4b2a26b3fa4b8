// Package source reads merge requests and their discussions from the code
// host and writes classified note bodies back to it.
package source

import (
	"context"
	"errors"
	"time"
)

// ErrRemote marks failures talking to the code host.
var ErrRemote = errors.New("source: remote query failed")

type MergeRequest struct {
	IID    int64
	Author string // username of the merge request author
	WebURL string
}

type Discussion struct {
	ID    string
	Notes []Note
}

type Note struct {
	ID             int64
	Body           string
	System         bool
	AuthorID       int64
	AuthorUsername string
}

// Source lists merge requests and discussions for one project.
// Both calls must be safe for concurrent use.
type Source interface {
	ListMergeRequests(ctx context.Context, updatedAfter time.Time) ([]MergeRequest, error)
	ListDiscussions(ctx context.Context, mr MergeRequest) ([]Discussion, error)
}

// NoteWriter replaces the body of an existing merge request note.
type NoteWriter interface {
	UpdateNote(ctx context.Context, mrIID, noteID int64, body string) error
}
