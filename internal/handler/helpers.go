package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/redpen/internal/middleware"
	"github.com/xxxsen/redpen/internal/pkg/errcode"
	appErr "github.com/xxxsen/redpen/internal/pkg/errors"
	"github.com/xxxsen/redpen/internal/pkg/response"
	"github.com/xxxsen/redpen/internal/service"
)

func getReviewerID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextReviewerIDKey)
	reviewer, _ := value.(string)
	if reviewer == "" {
		return middleware.LocalReviewer
	}
	return reviewer
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	if fe, ok := appErr.AsFieldError(err); ok {
		response.Error(c, errcode.ErrInvalid, fe.Error())
		return
	}
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrMalformedJSON):
		response.Error(c, errcode.ErrMalformedDocument, err.Error())
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrStorage):
		response.Error(c, errcode.ErrStorage, "storage unavailable")
	case errors.Is(err, service.ErrAIUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai not configured")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
