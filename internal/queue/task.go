package queue

type TaskType string

const (
	// TaskTypeReview runs a sync followed by a classification pass.
	TaskTypeReview TaskType = "review"
	// TaskTypeSync only refreshes the snapshot.
	TaskTypeSync TaskType = "sync"
)

func (t TaskType) Valid() bool {
	return t == TaskTypeReview || t == TaskTypeSync
}

type Task struct {
	ID          int64
	TaskType    TaskType
	RequestedBy string // free-form caller identity, e.g. "api" or a username
	TraceID     string
	Attempt     int
}
