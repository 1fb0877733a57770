package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/redpen/internal/model"
	"github.com/xxxsen/redpen/internal/pkg/errcode"
	"github.com/xxxsen/redpen/internal/pkg/response"
	"github.com/xxxsen/redpen/internal/service"
)

// ReviewHandler exposes the per-document mutation surface: selections,
// comments, point annotations, custom highlights, grading and the summary
// note.
type ReviewHandler struct {
	reviews *service.ReviewService
}

func NewReviewHandler(reviews *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

func (h *ReviewHandler) ResolveSelection(c *gin.Context) {
	var req service.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.reviews.ResolveSelection(c.Request.Context(), getReviewerID(c), c.Param("id"), req)
	if err != nil {
		handleError(c, err)
		return
	}
	if result == nil {
		response.Success(c, gin.H{"dismissed": true})
		return
	}
	response.Success(c, result)
}

func (h *ReviewHandler) AddComment(c *gin.Context) {
	var req service.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	comment, err := h.reviews.AddComment(c.Request.Context(), getReviewerID(c), c.Param("id"), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, comment)
}

type updateContentRequest struct {
	Content string `json:"content"`
}

func (h *ReviewHandler) UpdateComment(c *gin.Context) {
	var req updateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	comment, err := h.reviews.UpdateComment(c.Request.Context(), getReviewerID(c), c.Param("id"), c.Param("commentId"), req.Content)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, comment)
}

func (h *ReviewHandler) DeleteComment(c *gin.Context) {
	if err := h.reviews.DeleteComment(c.Request.Context(), getReviewerID(c), c.Param("id"), c.Param("commentId")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func (h *ReviewHandler) AddAnnotation(c *gin.Context) {
	var req service.PointAnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	ann, err := h.reviews.AddPointAnnotation(c.Request.Context(), getReviewerID(c), c.Param("id"), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ann)
}

func (h *ReviewHandler) UpdateAnnotation(c *gin.Context) {
	var req updateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	ann, err := h.reviews.UpdatePointAnnotation(c.Request.Context(), getReviewerID(c), c.Param("id"), c.Param("annotationId"), req.Content)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ann)
}

func (h *ReviewHandler) DeleteAnnotation(c *gin.Context) {
	if err := h.reviews.DeletePointAnnotation(c.Request.Context(), getReviewerID(c), c.Param("id"), c.Param("annotationId")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func (h *ReviewHandler) AddHighlight(c *gin.Context) {
	var req service.CustomHighlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	ch, err := h.reviews.AddCustomHighlight(c.Request.Context(), getReviewerID(c), c.Param("id"), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ch)
}

func (h *ReviewHandler) DeleteHighlight(c *gin.Context) {
	if err := h.reviews.DeleteCustomHighlight(c.Request.Context(), getReviewerID(c), c.Param("id"), c.Param("highlightId")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func (h *ReviewHandler) GetGrading(c *gin.Context) {
	scores, criteria, err := h.reviews.WorkingGrading(c.Request.Context(), getReviewerID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"rubricScores": scores, "gradingCriteria": criteria})
}

func (h *ReviewHandler) SetRubricScore(c *gin.Context) {
	var req service.WorkingRubricScore
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.reviews.SetRubricScore(c.Request.Context(), getReviewerID(c), c.Param("id"), req); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, req)
}

type gradingCriteriaRequest struct {
	Criteria []model.GradingCriterion `json:"criteria"`
}

func (h *ReviewHandler) SetGradingCriteria(c *gin.Context) {
	var req gradingCriteriaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.reviews.SetGradingCriteria(c.Request.Context(), getReviewerID(c), c.Param("id"), req.Criteria); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"gradingCriteria": req.Criteria})
}

func (h *ReviewHandler) SetNote(c *gin.Context) {
	var req updateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	note, err := h.reviews.SetSummaryNote(c.Request.Context(), getReviewerID(c), c.Param("id"), req.Content)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, note)
}

func (h *ReviewHandler) NextIssue(c *gin.Context) {
	issue, err := h.reviews.NextIssue(c.Request.Context(), getReviewerID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, issue)
}

func (h *ReviewHandler) PrevIssue(c *gin.Context) {
	issue, err := h.reviews.PrevIssue(c.Request.Context(), getReviewerID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, issue)
}

func (h *ReviewHandler) Emphasize(c *gin.Context) {
	if err := h.reviews.EmphasizeHighlight(c.Request.Context(), getReviewerID(c), c.Param("id"), c.Param("highlightId")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"emphasized": true})
}
