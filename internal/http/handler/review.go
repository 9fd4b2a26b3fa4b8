package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"basegraph.app/tally/common/logger"
	"basegraph.app/tally/internal/http/dto"
	"basegraph.app/tally/internal/queue"
)

type ReviewHandler struct {
	producer queue.Producer
}

func NewReviewHandler(producer queue.Producer) *ReviewHandler {
	return &ReviewHandler{producer: producer}
}

// Create queues a review (or sync) task for the worker.
func (h *ReviewHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taskType := queue.TaskTypeReview
	if req.Type != "" {
		taskType = queue.TaskType(req.Type)
	}
	requestedBy := req.RequestedBy
	if requestedBy == "" {
		requestedBy = "api"
	}

	taskID, err := h.producer.Enqueue(ctx, queue.Task{
		TaskType:    taskType,
		RequestedBy: requestedBy,
		TraceID:     logger.TraceIDFromContext(ctx),
	})
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue task"})
		return
	}

	c.JSON(http.StatusAccepted, dto.CreateReviewResponse{
		TaskID:   strconv.FormatInt(taskID, 10),
		TaskType: string(taskType),
	})
}
