package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/redpen/internal/chataction"
	"github.com/xxxsen/redpen/internal/pkg/errcode"
	"github.com/xxxsen/redpen/internal/pkg/response"
	"github.com/xxxsen/redpen/internal/service"
)

type ChatHandler struct {
	chat    *service.ChatService
	reviews *service.ReviewService
}

func NewChatHandler(chat *service.ChatService, reviews *service.ReviewService) *ChatHandler {
	return &ChatHandler{chat: chat, reviews: reviews}
}

type chatRequest struct {
	Message string `json:"message"`
	Screen  string `json:"screen"`
}

type chatResponse struct {
	Text           string              `json:"text"`
	Actions        []chataction.Action `json:"actions"`
	SystemMessages []string            `json:"systemMessages"`
}

func (h *ChatHandler) buildRequest(c *gin.Context, req chatRequest) (service.ChatRequest, error) {
	reviewer := getReviewerID(c)
	docID := c.Param("id")
	title, score, uncited, hasFlagged, err := h.reviews.ChatContext(c.Request.Context(), reviewer, docID)
	if err != nil {
		return service.ChatRequest{}, err
	}
	screen := chataction.Screen(req.Screen)
	if screen == "" {
		screen = chataction.ScreenDocument
	}
	return service.ChatRequest{
		Message:          req.Message,
		Screen:           screen,
		DocumentTitle:    title,
		SimilarityScore:  score,
		UncitedSources:   uncited,
		HasFlaggedIssues: hasFlagged,
	}, nil
}

func (h *ChatHandler) Ask(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	chatReq, err := h.buildRequest(c, req)
	if err != nil {
		handleError(c, err)
		return
	}
	result, err := h.chat.Ask(c.Request.Context(), chatReq)
	if err != nil {
		handleError(c, err)
		return
	}
	dispatcher := h.reviews.NewActionDispatcher(getReviewerID(c), c.Param("id"))
	messages := dispatcher.DispatchAll(c.Request.Context(), result.Actions)
	if messages == nil {
		messages = []string{}
	}
	response.Success(c, chatResponse{Text: result.Text, Actions: result.Actions, SystemMessages: messages})
}

// AskStream streams raw text deltas over SSE and ends with a "done" event
// carrying the clean text, the parsed actions and any dispatch failures.
// Action tags appear in the deltas and are only stripped in the final event;
// clients hide them the same way the non-streaming path does.
func (h *ChatHandler) AskStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	chatReq, err := h.buildRequest(c, req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	send := func(chunk string) error {
		payload, err := json.Marshal(gin.H{"delta": chunk})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	result, err := h.chat.AskStream(c.Request.Context(), chatReq, send)
	if err != nil {
		payload, _ := json.Marshal(gin.H{"error": "chat stream failed"})
		fmt.Fprintf(c.Writer, "event: error\ndata: %s\n\n", payload)
		if flusher != nil {
			flusher.Flush()
		}
		return
	}
	dispatcher := h.reviews.NewActionDispatcher(getReviewerID(c), c.Param("id"))
	messages := dispatcher.DispatchAll(c.Request.Context(), result.Actions)
	if messages == nil {
		messages = []string{}
	}
	payload, _ := json.Marshal(chatResponse{Text: result.Text, Actions: result.Actions, SystemMessages: messages})
	fmt.Fprintf(c.Writer, "event: done\ndata: %s\n\n", payload)
	if flusher != nil {
		flusher.Flush()
	}
}
