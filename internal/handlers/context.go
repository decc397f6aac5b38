package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/lombeo/sep490-backend-sub003/internal/middleware"
	appErrors "github.com/lombeo/sep490-backend-sub003/pkg/errors"
	"github.com/lombeo/sep490-backend-sub003/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated caller, writing 401 when absent.
func currentUserID(c *gin.Context) (uint, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return 0, false
	}
	return id, true
}
