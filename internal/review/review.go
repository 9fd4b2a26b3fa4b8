// Package review labels uncategorized change requests and persists the
// labels, optionally writing them back into the reviewer's note.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/tally/common/logger"
	"basegraph.app/tally/internal/cache"
	"basegraph.app/tally/internal/classify"
	"basegraph.app/tally/internal/model"
	"basegraph.app/tally/internal/note"
	"basegraph.app/tally/internal/source"
	"basegraph.app/tally/internal/syncer"
)

// ErrNoSnapshot is returned when the labels cannot be persisted because the
// sync left no snapshot behind to update.
var ErrNoSnapshot = errors.New("review: no snapshot to update")

type Fetcher interface {
	Fetch(ctx context.Context) ([]model.ChangeRequest, error)
}

type Report struct {
	Examined        int // records returned by the sync
	Classified      int
	Failed          int // classification failures; records stay uncategorized
	WrittenBack     int
	WriteBackFailed int
	Updated         []model.ChangeRequest
}

type Reviewer struct {
	fetcher    Fetcher
	store      cache.Store
	classifier classify.Classifier
	writer     source.NoteWriter // nil disables write-back
}

func New(fetcher Fetcher, store cache.Store, classifier classify.Classifier, writer source.NoteWriter) *Reviewer {
	return &Reviewer{
		fetcher:    fetcher,
		store:      store,
		classifier: classifier,
		writer:     writer,
	}
}

// Review syncs, then classifies every record with neither label set. Per
// record failures are counted in the report. A failed sync or a failed
// persist is returned as an error.
func (r *Reviewer) Review(ctx context.Context) (Report, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tally.review"})
	sc := logger.StartSpan(ctx, "review.run")
	defer sc.End()
	ctx = sc.Context()

	var report Report

	crs, err := r.fetcher.Fetch(ctx)
	if err != nil {
		sc.RecordError(err)
		return report, fmt.Errorf("fetching change requests: %w", err)
	}
	report.Examined = len(crs)
	syncedFrom := r.snapshotFrom(ctx)

	for _, cr := range crs {
		if !cr.Uncategorized() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		crCtx := logger.WithLogFields(ctx, logger.LogFields{
			MergeRequestIID: logger.Ptr(cr.MergeRequestID),
			NoteID:          logger.Ptr(cr.ID),
		})

		result, err := r.classifier.Classify(crCtx, cr.Description)
		if err != nil {
			report.Failed++
			slog.WarnContext(crCtx, "classification failed, leaving uncategorized",
				"error", err,
				"description", logger.Truncate(cr.Description, 80))
			continue
		}

		cr.Category = &result.Category
		cr.SubCategory = &result.SubCategory
		report.Classified++
		report.Updated = append(report.Updated, cr)

		slog.InfoContext(crCtx, "change request classified",
			"category", result.Category,
			"sub_category", result.SubCategory)

		r.writeBack(crCtx, cr, &report)
	}

	if len(report.Updated) == 0 {
		return report, nil
	}

	if err := r.persist(ctx, report.Updated, syncedFrom); err != nil {
		sc.RecordError(err)
		return report, err
	}

	slog.InfoContext(ctx, "review completed",
		"examined", report.Examined,
		"classified", report.Classified,
		"failed", report.Failed,
		"written_back", report.WrittenBack)
	return report, nil
}

func (r *Reviewer) writeBack(ctx context.Context, cr model.ChangeRequest, report *Report) {
	if r.writer == nil {
		return
	}
	body := note.Format(note.FromChangeRequest(cr))
	if err := r.writer.UpdateNote(ctx, cr.MergeRequestID, cr.ID, body); err != nil {
		report.WriteBackFailed++
		slog.WarnContext(ctx, "failed to write labels back to note", "error", err)
		return
	}
	report.WrittenBack++
}

// snapshotFrom reads the From the sync just left behind; zero if unreadable.
func (r *Reviewer) snapshotFrom(ctx context.Context) time.Time {
	snapshot, err := r.store.Get(ctx)
	if err != nil || snapshot == nil {
		return time.Time{}
	}
	return snapshot.From
}

// persist overlays the labelled records on the current snapshot and keeps
// its From, so the next incremental window is unchanged. A sync that wrote
// while the classifier ran is kept; the labels land on top of it.
func (r *Reviewer) persist(ctx context.Context, updated []model.ChangeRequest, syncedFrom time.Time) error {
	snapshot, err := r.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if snapshot == nil {
		return ErrNoSnapshot
	}

	slog.DebugContext(ctx, "persisting labels",
		"labelled", len(updated),
		"synced_from", syncedFrom,
		"snapshot_from", snapshot.From,
		"overlapping_write", !snapshot.From.Equal(syncedFrom))

	snapshot.ChangeRequests = syncer.Merge(snapshot.ChangeRequests, updated)
	if err := r.store.Set(ctx, *snapshot); err != nil {
		return fmt.Errorf("%w: %w", syncer.ErrCacheWrite, err)
	}
	return nil
}
