package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/tally/internal/http/handler"
	"basegraph.app/tally/internal/queue"
)

type Dependencies struct {
	Fetcher  handler.Fetcher
	Producer queue.Producer // nil disables POST /api/v1/reviews
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		crHandler := handler.NewChangeRequestHandler(deps.Fetcher)
		ChangeRequestRouter(v1.Group("/change-requests"), crHandler)

		if deps.Producer != nil {
			reviewHandler := handler.NewReviewHandler(deps.Producer)
			ReviewRouter(v1.Group("/reviews"), reviewHandler)
		}
	}
}

func ChangeRequestRouter(router *gin.RouterGroup, h *handler.ChangeRequestHandler) {
	router.GET("", h.List)
	router.GET("/summary", h.Summary)
}

func ReviewRouter(router *gin.RouterGroup, h *handler.ReviewHandler) {
	router.POST("", h.Create)
}
