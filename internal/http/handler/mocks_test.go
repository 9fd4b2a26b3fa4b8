package handler_test

import (
	"context"

	"basegraph.app/tally/internal/model"
	"basegraph.app/tally/internal/queue"
)

type mockFetcher struct {
	fetchFn func(ctx context.Context) ([]model.ChangeRequest, error)
}

func (m *mockFetcher) Fetch(ctx context.Context) ([]model.ChangeRequest, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx)
	}
	return []model.ChangeRequest{}, nil
}

type mockProducer struct {
	enqueueFn func(ctx context.Context, task queue.Task) (int64, error)
	tasks     []queue.Task
}

func (m *mockProducer) Enqueue(ctx context.Context, task queue.Task) (int64, error) {
	m.tasks = append(m.tasks, task)
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, task)
	}
	return 1790000000000000001, nil
}

func (m *mockProducer) Close() error { return nil }

func ptr(s string) *string { return &s }
