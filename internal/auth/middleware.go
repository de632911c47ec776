package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ctxIdentity is the Gin context key holding the validated *Identity.
	ctxIdentity = "identity"
	// ctxUserID is the Gin context key holding the subject id string.
	ctxUserID = "userID"
)

// Require returns Gin middleware that enforces a valid bearer token on every
// route in the group. Missing or invalid credentials yield a generic 401;
// the rejection never reveals which check failed. Public routes simply do
// not mount this middleware.
func Require(v *Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerFromHeader(c.GetHeader("Authorization"))
		if token == "" {
			unauthorized(c)
			return
		}
		id, err := v.Validate(c.Request.Context(), token)
		if err != nil {
			unauthorized(c)
			return
		}
		c.Set(ctxIdentity, id)
		c.Set(ctxUserID, id.SubjectID)
		c.Next()
	}
}

// BearerFromHeader extracts the token from an "Authorization: Bearer x"
// header value, tolerating case variations of the scheme.
func BearerFromHeader(h string) string {
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// IdentityFrom returns the validated identity stored by Require, or nil.
func IdentityFrom(c *gin.Context) *Identity {
	if v, ok := c.Get(ctxIdentity); ok {
		if id, ok := v.(*Identity); ok {
			return id
		}
	}
	return nil
}

// UserIDFrom returns the authenticated subject id, or "".
func UserIDFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "unauthorized",
		"message":    "invalid or missing credentials",
	})
}
