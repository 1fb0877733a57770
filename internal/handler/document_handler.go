package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xxxsen/redpen/internal/pkg/errcode"
	"github.com/xxxsen/redpen/internal/pkg/response"
	"github.com/xxxsen/redpen/internal/render"
	"github.com/xxxsen/redpen/internal/service"
)

type DocumentHandler struct {
	reviews *service.ReviewService
}

func NewDocumentHandler(reviews *service.ReviewService) *DocumentHandler {
	return &DocumentHandler{reviews: reviews}
}

// Get opens (or resumes) the review and returns the base document plus the
// reviewer's overlay and derived score.
func (h *DocumentHandler) Get(c *gin.Context) {
	overview, err := h.reviews.Open(c.Request.Context(), getReviewerID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, overview)
}

func (h *DocumentHandler) Score(c *gin.Context) {
	score, err := h.reviews.Score(c.Request.Context(), getReviewerID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, score)
}

type pageComment struct {
	ID          string `json:"id"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
	ContentHTML string `json:"contentHtml"`
}

// Page returns the rendered page markup plus the page's comment bodies
// rendered from markdown, so clients never run their own markdown pass.
func (h *DocumentHandler) Page(c *gin.Context) {
	num, err := strconv.Atoi(c.Param("num"))
	if err != nil || num <= 0 {
		response.Error(c, errcode.ErrInvalid, "invalid page number")
		return
	}
	reviewer := getReviewerID(c)
	docID := c.Param("id")
	markup, err := h.reviews.RenderedPage(c.Request.Context(), reviewer, docID, num)
	if err != nil {
		handleError(c, err)
		return
	}
	state, err := h.reviews.GetState(c.Request.Context(), reviewer, docID)
	if err != nil {
		handleError(c, err)
		return
	}
	comments := []pageComment{}
	for _, cm := range state.Comments {
		if cm.Page != num {
			continue
		}
		body, err := render.MarkdownHTML(cm.Content)
		if err != nil {
			logutil.GetLogger(c.Request.Context()).Warn("render comment markdown failed",
				zap.String("comment_id", cm.ID), zap.Error(err))
			body = html.EscapeString(cm.Content)
		}
		comments = append(comments, pageComment{
			ID:          cm.ID,
			StartOffset: cm.StartOffset,
			EndOffset:   cm.EndOffset,
			ContentHTML: body,
		})
	}
	response.Success(c, gin.H{"page": num, "html": markup, "comments": comments})
}

type similarityVisibleRequest struct {
	Visible *bool `json:"visible"`
}

func (h *DocumentHandler) SetSimilarityVisible(c *gin.Context) {
	var req similarityVisibleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Visible == nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.reviews.SetSimilarityVisible(c.Request.Context(), getReviewerID(c), c.Param("id"), *req.Visible); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"visible": *req.Visible})
}

type excludeCardRequest struct {
	Excluded *bool `json:"excluded"`
}

func (h *DocumentHandler) SetMatchCardExcluded(c *gin.Context) {
	var req excludeCardRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Excluded == nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	score, err := h.reviews.SetMatchCardExcluded(c.Request.Context(), getReviewerID(c), c.Param("id"), c.Param("cardId"), *req.Excluded)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"score": score, "excluded": *req.Excluded})
}

func (h *DocumentHandler) Save(c *gin.Context) {
	if err := h.reviews.SaveNow(c.Request.Context(), getReviewerID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"saved": true})
}

func (h *DocumentHandler) Tracked(c *gin.Context) {
	ids, err := h.reviews.TrackedDocuments(c.Request.Context(), getReviewerID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"documents": ids})
}
