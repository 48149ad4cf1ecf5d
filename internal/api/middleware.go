package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/pkg/types"
)

const identityKey = "identity"

// Authenticate extracts the bearer token, decodes it, and stores the
// resulting identity on the request context. Requests without a valid
// token never reach the handler.
func (s *Server) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := ""
		if strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}

		identity, err := s.codec.DecodeToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Unauthorized, token missing or invalid",
			})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// TeacherOnly gates routes that mutate classes or attendance.
func TeacherOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if identityFrom(c).Role != types.RoleTeacher {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Forbidden, teacher access required",
			})
			return
		}
		c.Next()
	}
}

// StudentOnly gates routes that expose a student's own records.
func StudentOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if identityFrom(c).Role != types.RoleStudent {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Forbidden, student access required",
			})
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) types.Identity {
	if v, ok := c.Get(identityKey); ok {
		if identity, ok := v.(types.Identity); ok {
			return identity
		}
	}
	return types.Identity{}
}
