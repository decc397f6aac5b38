package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/lombeo/sep490-backend-sub003/internal/models"
	"github.com/lombeo/sep490-backend-sub003/pkg/errors"
	"github.com/lombeo/sep490-backend-sub003/pkg/metrics"
	"github.com/lombeo/sep490-backend-sub003/pkg/response"
)

// UserLookup resolves the current state of an account.
type UserLookup interface {
	Get(userID uint) (models.User, bool)
}

// RequireRole admits authenticated callers whose current role is one of
// roles. The role is read from users rather than the token so demotions
// apply before the token expires. Must run after Auth.
func RequireRole(users UserLookup, roles ...string) gin.HandlerFunc {
	label := "any"
	if len(roles) == 1 {
		label = roles[0]
	}

	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		user, found := users.Get(userID)
		if !found || !slices.Contains(roles, user.Role) {
			metrics.RoleChecks.WithLabelValues(label, "denied").Inc()
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}

		metrics.RoleChecks.WithLabelValues(label, "allowed").Inc()
		c.Next()
	}
}
