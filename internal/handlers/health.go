package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	appErrors "github.com/lombeo/sep490-backend-sub003/pkg/errors"
	"github.com/lombeo/sep490-backend-sub003/pkg/response"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health returns a readiness payload. The database is always checked; the
// cache only when a pinger is supplied.
func Health(db *gorm.DB, cache Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
		defer cancel()

		checks := gin.H{}
		healthy := true

		if db != nil {
			checks["database"] = "ok"
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				checks["database"] = "unavailable"
				healthy = false
			}
		}
		if cache != nil {
			checks["cache"] = "ok"
			if err := cache.Ping(ctx); err != nil {
				checks["cache"] = "unavailable"
				healthy = false
			}
		}

		if !healthy {
			c.JSON(http.StatusServiceUnavailable, response.Response{
				Success: false,
				Data:    gin.H{"status": "degraded", "checks": checks},
				Error: &response.ErrorInfo{
					Code:    appErrors.ErrServiceUnavailable.Code,
					Message: appErrors.ErrServiceUnavailable.Message,
				},
			})
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok", "checks": checks})
	}
}
