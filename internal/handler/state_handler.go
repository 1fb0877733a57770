package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/redpen/internal/filestore"
	"github.com/xxxsen/redpen/internal/pkg/errcode"
	appErr "github.com/xxxsen/redpen/internal/pkg/errors"
	"github.com/xxxsen/redpen/internal/pkg/response"
	"github.com/xxxsen/redpen/internal/service"
)

// maxImportBytes bounds the import payload; overlays are small JSON blobs.
const maxImportBytes = 4 << 20

type StateHandler struct {
	reviews *service.ReviewService
	archive filestore.Store
}

func NewStateHandler(reviews *service.ReviewService, archive filestore.Store) *StateHandler {
	return &StateHandler{reviews: reviews, archive: archive}
}

func (h *StateHandler) Get(c *gin.Context) {
	state, err := h.reviews.GetState(c.Request.Context(), getReviewerID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, state)
}

func (h *StateHandler) Reset(c *gin.Context) {
	state, err := h.reviews.ResetState(c.Request.Context(), getReviewerID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, state)
}

// Export streams the overlay as a downloadable pretty-printed JSON document.
// With ?archive=1 a snapshot also goes to the file store; archival is best
// effort and never fails the download.
func (h *StateHandler) Export(c *gin.Context) {
	docID := c.Param("id")
	payload, err := h.reviews.ExportState(c.Request.Context(), getReviewerID(c), docID)
	if err != nil {
		handleError(c, err)
		return
	}
	if c.Query("archive") == "1" && h.archive != nil {
		key := fmt.Sprintf("%s-state-%d.json", docID, time.Now().Unix())
		body := nopSeekCloser{bytes.NewReader([]byte(payload))}
		if err := h.archive.Save(c.Request.Context(), key, body, int64(len(payload))); err != nil {
			logutil.GetLogger(c.Request.Context()).Warn("archive export snapshot failed",
				zap.String("doc_id", docID), zap.String("key", key), zap.Error(err))
		}
	}
	c.Header("Content-Disposition", `attachment; filename="`+docID+`-state.json"`)
	c.Data(http.StatusOK, "application/json", []byte(payload))
}

type nopSeekCloser struct {
	*bytes.Reader
}

func (nopSeekCloser) Close() error { return nil }

func (h *StateHandler) Import(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes+1))
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "unreadable payload")
		return
	}
	if len(payload) > maxImportBytes {
		response.Error(c, errcode.ErrInvalid, "payload too large")
		return
	}
	state, err := h.reviews.ImportState(c.Request.Context(), getReviewerID(c), c.Param("id"), payload)
	if err != nil {
		if appErr.IsMalformedJSON(err) {
			response.Error(c, errcode.ErrInvalidUserState, "malformed user state json")
			return
		}
		if fe, ok := appErr.AsFieldError(err); ok {
			response.Error(c, errcode.ErrInvalidUserState, fe.Error())
			return
		}
		handleError(c, err)
		return
	}
	response.Success(c, state)
}
