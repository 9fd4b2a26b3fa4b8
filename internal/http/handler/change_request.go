package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/tally/internal/http/dto"
	"basegraph.app/tally/internal/model"
	"basegraph.app/tally/internal/syncer"
)

// Fetcher is satisfied by *syncer.Engine.
type Fetcher interface {
	Fetch(ctx context.Context) ([]model.ChangeRequest, error)
}

type ChangeRequestHandler struct {
	fetcher Fetcher
}

func NewChangeRequestHandler(fetcher Fetcher) *ChangeRequestHandler {
	return &ChangeRequestHandler{fetcher: fetcher}
}

func (h *ChangeRequestHandler) List(c *gin.Context) {
	var query dto.ListChangeRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	crs, ok := h.fetch(c)
	if !ok {
		return
	}

	resp := dto.ListChangeRequestsResponse{ChangeRequests: []dto.ChangeRequestResponse{}}
	for _, cr := range crs {
		if query.Matches(cr) {
			resp.ChangeRequests = append(resp.ChangeRequests, dto.ToChangeRequestResponse(cr))
		}
	}
	resp.Count = len(resp.ChangeRequests)

	c.JSON(http.StatusOK, resp)
}

func (h *ChangeRequestHandler) Summary(c *gin.Context) {
	crs, ok := h.fetch(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.Summarize(crs))
}

// fetch writes the error response itself and reports whether to continue.
// An unpersisted but complete result is still served.
func (h *ChangeRequestHandler) fetch(c *gin.Context) ([]model.ChangeRequest, bool) {
	ctx := c.Request.Context()

	crs, err := h.fetcher.Fetch(ctx)
	switch {
	case err == nil:
		return crs, true
	case errors.Is(err, syncer.ErrCacheWrite):
		slog.WarnContext(ctx, "serving change requests that were not cached", "error", err)
		return crs, true
	case errors.Is(err, syncer.ErrRemoteQuery):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to query gitlab"})
		return nil, false
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return nil, false
	}
}
