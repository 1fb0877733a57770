package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/redpen/internal/pkg/errcode"
	"github.com/xxxsen/redpen/internal/pkg/jwt"
	"github.com/xxxsen/redpen/internal/pkg/response"
)

const ContextReviewerIDKey = "reviewer_id"

// LocalReviewer is the reviewer id used when authentication is disabled:
// single-reviewer deployments keep one overlay namespace without tokens.
const LocalReviewer = "local"

// ReviewerAuth resolves the reviewer id for the request. With no secret
// configured every request runs as the local reviewer; with a secret a valid
// bearer token is required.
func ReviewerAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.Set(ContextReviewerIDKey, LocalReviewer)
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errcode.ErrUnauthorized, "invalid authorization")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(parts[1], secret)
		if err != nil {
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			c.Abort()
			return
		}
		c.Set(ContextReviewerIDKey, claims.ReviewerID)
		c.Next()
	}
}
