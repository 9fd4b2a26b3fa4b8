package worker

import (
	"context"

	"basegraph.app/tally/internal/model"
	"basegraph.app/tally/internal/queue"
	"basegraph.app/tally/internal/review"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// Fetcher is satisfied by *syncer.Engine.
type Fetcher interface {
	Fetch(ctx context.Context) ([]model.ChangeRequest, error)
}

// Reviewer is satisfied by *review.Reviewer.
type Reviewer interface {
	Review(ctx context.Context) (review.Report, error)
}
