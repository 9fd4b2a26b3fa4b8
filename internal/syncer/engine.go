// Package syncer keeps the change-request snapshot up to date by pulling
// merge request discussions updated since the last successful run.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"basegraph.app/tally/common/id"
	"basegraph.app/tally/common/logger"
	"basegraph.app/tally/internal/cache"
	"basegraph.app/tally/internal/model"
	"basegraph.app/tally/internal/note"
	"basegraph.app/tally/internal/source"
)

var (
	// ErrRemoteQuery is returned when the code host could not be queried.
	// Nothing is written to the cache in that case.
	ErrRemoteQuery = errors.New("syncer: remote query failed")

	// ErrCacheWrite accompanies a valid result that could not be persisted.
	ErrCacheWrite = errors.New("syncer: cache write failed")
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultConcurrency = 8
)

// DefaultEpoch anchors the first window when no snapshot exists.
var DefaultEpoch = time.Date(2024, time.October, 28, 12, 0, 0, 0, time.UTC)

type Config struct {
	ReviewerID  int64
	Epoch       time.Time
	TTL         time.Duration
	Concurrency int
	Now         func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Epoch.IsZero() {
		c.Epoch = DefaultEpoch
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Engine is safe for concurrent use, but concurrent Fetch calls each run
// their own sync and the last write wins.
type Engine struct {
	source source.Source
	store  cache.Store
	cfg    Config
}

func NewEngine(src source.Source, store cache.Store, cfg Config) *Engine {
	return &Engine{
		source: src,
		store:  store,
		cfg:    cfg.withDefaults(),
	}
}

// Fetch returns the current change requests. A fresh snapshot is served
// from the cache without contacting the code host; otherwise the window
// since the snapshot's From is pulled, merged and persisted.
//
// On ErrCacheWrite the returned slice is still the complete merged result.
func (e *Engine) Fetch(ctx context.Context) ([]model.ChangeRequest, error) {
	previous := e.readSnapshot(ctx)

	if previous != nil && previous.FreshAt(e.cfg.Now(), e.cfg.TTL) {
		slog.DebugContext(ctx, "serving change requests from cache",
			"count", len(previous.ChangeRequests),
			"from", previous.From)
		return previous.ChangeRequests, nil
	}

	runID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SyncRunID: &runID,
		Component: "tally.syncer.engine",
	})
	sc := logger.StartSpan(ctx, "syncer.fetch")
	defer sc.End()
	ctx = sc.Context()

	updatedAfter := e.cfg.Epoch
	var existing []model.ChangeRequest
	if previous != nil {
		updatedAfter = previous.From
		existing = previous.ChangeRequests
	}

	start := time.Now()
	slog.InfoContext(ctx, "sync started",
		"updated_after", updatedAfter,
		"cold_start", previous == nil,
		"cached", len(existing))

	fetched, err := e.pull(ctx, updatedAfter)
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "sync failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRemoteQuery, err)
	}

	from := e.cfg.Now()
	if previous != nil && from.Before(previous.From) {
		from = previous.From
	}

	merged := Merge(existing, fetched)

	slog.InfoContext(ctx, "sync completed",
		"fetched", len(fetched),
		"total", len(merged),
		"from", from,
		"duration_ms", time.Since(start).Milliseconds())

	if err := e.store.Set(ctx, model.Snapshot{ChangeRequests: merged, From: from}); err != nil {
		sc.RecordError(err)
		slog.WarnContext(ctx, "failed to persist snapshot", "error", err)
		return merged, fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}

	return merged, nil
}

// readSnapshot never fails: any read error means a cold start.
func (e *Engine) readSnapshot(ctx context.Context) *model.Snapshot {
	snapshot, err := e.store.Get(ctx)
	if err != nil {
		if errors.Is(err, cache.ErrCorrupt) {
			slog.WarnContext(ctx, "discarding corrupt snapshot", "error", err)
		} else {
			slog.WarnContext(ctx, "snapshot unreadable, starting cold", "error", err)
		}
		return nil
	}
	return snapshot
}

// pull fetches discussions for every merge request updated after the given
// instant. Results are returned in merge request list order regardless of
// which request finished first.
func (e *Engine) pull(ctx context.Context, updatedAfter time.Time) ([]model.ChangeRequest, error) {
	mrs, err := e.source.ListMergeRequests(ctx, updatedAfter)
	if err != nil {
		return nil, err
	}

	perMR := make([][]model.ChangeRequest, len(mrs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for i, mr := range mrs {
		g.Go(func() error {
			mrCtx := logger.WithLogFields(gctx, logger.LogFields{MergeRequestIID: logger.Ptr(mr.IID)})

			discussions, err := e.source.ListDiscussions(mrCtx, mr)
			if err != nil {
				return err
			}
			perMR[i] = e.extract(mr, discussions)

			if len(perMR[i]) > 0 {
				slog.DebugContext(mrCtx, "change requests found",
					"discussions", len(discussions),
					"change_requests", len(perMR[i]))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []model.ChangeRequest
	for _, crs := range perMR {
		out = append(out, crs...)
	}
	return out, nil
}

func (e *Engine) extract(mr source.MergeRequest, discussions []source.Discussion) []model.ChangeRequest {
	var out []model.ChangeRequest
	for _, d := range discussions {
		if len(d.Notes) == 0 {
			continue
		}
		first := d.Notes[0]
		if first.System || first.AuthorID != e.cfg.ReviewerID {
			continue
		}

		parsed := note.Parse(first.Body)
		out = append(out, model.ChangeRequest{
			ID:             first.ID,
			MergeRequestID: mr.IID,
			Author:         mr.Author,
			Description:    parsed.Description,
			Category:       parsed.Category,
			SubCategory:    parsed.SubCategory,
			URL:            NoteURL(mr.WebURL, first.ID),
		})
	}
	return out
}

// NoteURL links directly to a note on its merge request page.
func NoteURL(mrWebURL string, noteID int64) string {
	return mrWebURL + "/#note_" + strconv.FormatInt(noteID, 10)
}

// Merge overlays fetched onto existing by ID. A known ID is replaced where
// it stands; unknown IDs are appended in the order given. Neither input is
// modified.
//
// An untagged incoming record keeps the labels already held for its ID, so a
// classification stored only in the cache survives the note being fetched
// again. A tag parsed from the note always wins.
func Merge(existing, fetched []model.ChangeRequest) []model.ChangeRequest {
	merged := make([]model.ChangeRequest, 0, len(existing)+len(fetched))
	index := make(map[int64]int, len(existing)+len(fetched))

	for _, batch := range [][]model.ChangeRequest{existing, fetched} {
		for _, cr := range batch {
			if i, ok := index[cr.ID]; ok {
				merged[i] = overlay(merged[i], cr)
				continue
			}
			index[cr.ID] = len(merged)
			merged = append(merged, cr)
		}
	}
	return merged
}

func overlay(current, incoming model.ChangeRequest) model.ChangeRequest {
	if incoming.Uncategorized() && !current.Uncategorized() {
		incoming.Category = current.Category
		incoming.SubCategory = current.SubCategory
	}
	return incoming
}
