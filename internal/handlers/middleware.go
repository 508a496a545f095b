package handlers

import (
	"net/http"
	"strconv"

	contextutils "aprenda/internal/utils"

	"github.com/gin-gonic/gin"
)

// UserIDHeader identifies the calling learner on API requests
const UserIDHeader = "X-User-ID"

// RequireUser reads the user id from the request header and stores it on the
// gin context and the request context. Requests without a valid id are rejected.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(UserIDHeader)
		if raw == "" {
			StandardizeHTTPError(c, http.StatusBadRequest, "Missing user header", UserIDHeader+" is required")
			c.Abort()
			return
		}

		userID, err := strconv.Atoi(raw)
		if err != nil || userID <= 0 {
			HandleValidationError(c, UserIDHeader, raw, "must be a positive integer")
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Request = c.Request.WithContext(contextutils.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// currentUserID returns the user id set by RequireUser
func currentUserID(c *gin.Context) int {
	return c.GetInt("user_id")
}

// requestLocale resolves the response language from the Accept-Language header
func requestLocale(c *gin.Context) contextutils.Locale {
	return contextutils.ParseLocale(c.GetHeader("Accept-Language"))
}
