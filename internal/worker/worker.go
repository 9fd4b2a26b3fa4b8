package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"basegraph.app/tally/common/logger"
	"basegraph.app/tally/internal/queue"
	"basegraph.app/tally/internal/syncer"
)

type Config struct {
	MaxAttempts int

	// SyncInterval runs a background sync on a timer; zero disables it.
	SyncInterval time.Duration
}

// Worker consumes review and sync tasks. Syncs and reviews are serialized
// because the snapshot has a single writer.
type Worker struct {
	consumer Consumer
	fetcher  Fetcher
	reviewer Reviewer
	cfg      Config

	runMu sync.Mutex

	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
}

func New(consumer Consumer, fetcher Fetcher, reviewer Reviewer, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Worker{
		consumer:  consumer,
		fetcher:   fetcher,
		reviewer:  reviewer,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tally.worker"})
	slog.InfoContext(ctx, "worker started", "sync_interval", w.cfg.SyncInterval)

	var wg sync.WaitGroup
	if w.cfg.SyncInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runTicker(ctx)
		}()
	}
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
				case <-w.stopCh:
				}
			}
		}
	}
}

// Stop signals Run to return and waits for it.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.stoppedCh
}

func (w *Worker) runTicker(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.sync(ctx); err != nil {
				slog.ErrorContext(ctx, "periodic sync failed", "error", err)
			}
		}
	}
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		msgCtx := logger.WithLogFields(ctx, logger.LogFields{
			TaskID:    logger.Ptr(msg.Task.ID),
			MessageID: logger.Ptr(msg.ID),
		})
		if err := w.ProcessMessage(msgCtx, msg); err != nil {
			slog.ErrorContext(msgCtx, "message processing failed",
				"error", err,
				"task_type", msg.TaskType)
			w.handleFailedMessage(msgCtx, msg, err)
		}
	}

	return nil
}

// ProcessMessage runs one task and acks it on success. Exported so the
// reclaimer can reuse it.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	sc := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.task."+string(msg.TaskType))
	defer sc.End()
	ctx = sc.Context()

	slog.InfoContext(ctx, "processing task",
		"task_type", msg.TaskType,
		"requested_by", msg.RequestedBy,
		"attempt", msg.Attempt)

	start := time.Now()
	switch msg.TaskType {
	case queue.TaskTypeSync:
		err = w.sync(ctx)
	case queue.TaskTypeReview:
		err = w.review(ctx)
	default:
		err = fmt.Errorf("unknown task_type %q", msg.TaskType)
	}
	if err != nil {
		sc.RecordError(err)
		return err
	}

	if ackErr := w.consumer.Ack(ctx, msg); ackErr != nil {
		// the reclaimer will redeliver, and both tasks are safe to repeat
		slog.WarnContext(ctx, "failed to ACK message", "error", ackErr)
	}

	slog.InfoContext(ctx, "task completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) sync(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	crs, err := w.fetcher.Fetch(ctx)
	if err != nil {
		if errors.Is(err, syncer.ErrCacheWrite) {
			slog.WarnContext(ctx, "sync result not persisted", "error", err, "count", len(crs))
		}
		return err
	}
	slog.DebugContext(ctx, "sync done", "count", len(crs))
	return nil
}

func (w *Worker) review(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	report, err := w.reviewer.Review(ctx)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "review done",
		"examined", report.Examined,
		"classified", report.Classified,
		"failed", report.Failed,
		"written_back", report.WrittenBack,
		"write_back_failed", report.WriteBackFailed)
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ", "attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message", "attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
