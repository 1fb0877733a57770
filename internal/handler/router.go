package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/redpen/internal/middleware"
)

type RouterDeps struct {
	Documents *DocumentHandler
	State     *StateHandler
	Review    *ReviewHandler
	Chat      *ChatHandler
	JWTSecret []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authGroup := api.Group("")
	authGroup.Use(middleware.ReviewerAuth(deps.JWTSecret))

	authGroup.GET("/documents", deps.Documents.Tracked)
	authGroup.GET("/documents/:id", deps.Documents.Get)
	authGroup.GET("/documents/:id/score", deps.Documents.Score)
	authGroup.GET("/documents/:id/pages/:num", deps.Documents.Page)
	authGroup.PUT("/documents/:id/similarity-visible", deps.Documents.SetSimilarityVisible)
	authGroup.PUT("/documents/:id/match-cards/:cardId/excluded", deps.Documents.SetMatchCardExcluded)
	authGroup.POST("/documents/:id/save", deps.Documents.Save)

	authGroup.GET("/documents/:id/state", deps.State.Get)
	authGroup.POST("/documents/:id/state/reset", deps.State.Reset)
	authGroup.GET("/documents/:id/state/export", deps.State.Export)
	authGroup.POST("/documents/:id/state/import", deps.State.Import)

	authGroup.POST("/documents/:id/selection", deps.Review.ResolveSelection)

	authGroup.POST("/documents/:id/comments", deps.Review.AddComment)
	authGroup.PUT("/documents/:id/comments/:commentId", deps.Review.UpdateComment)
	authGroup.DELETE("/documents/:id/comments/:commentId", deps.Review.DeleteComment)

	authGroup.POST("/documents/:id/annotations", deps.Review.AddAnnotation)
	authGroup.PUT("/documents/:id/annotations/:annotationId", deps.Review.UpdateAnnotation)
	authGroup.DELETE("/documents/:id/annotations/:annotationId", deps.Review.DeleteAnnotation)

	authGroup.POST("/documents/:id/highlights", deps.Review.AddHighlight)
	authGroup.DELETE("/documents/:id/highlights/:highlightId", deps.Review.DeleteHighlight)
	authGroup.PUT("/documents/:id/highlights/:highlightId/emphasize", deps.Review.Emphasize)

	authGroup.GET("/documents/:id/grading", deps.Review.GetGrading)
	authGroup.PUT("/documents/:id/grading/scores", deps.Review.SetRubricScore)
	authGroup.PUT("/documents/:id/grading/criteria", deps.Review.SetGradingCriteria)
	authGroup.PUT("/documents/:id/note", deps.Review.SetNote)

	authGroup.POST("/documents/:id/issues/next", deps.Review.NextIssue)
	authGroup.POST("/documents/:id/issues/prev", deps.Review.PrevIssue)

	chatGroup := authGroup.Group("")
	chatGroup.Use(middleware.RateLimit(500 * time.Millisecond))
	chatGroup.POST("/documents/:id/chat", deps.Chat.Ask)
	chatGroup.POST("/documents/:id/chat/stream", deps.Chat.AskStream)
}
