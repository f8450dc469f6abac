package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"khata-ledger-go/internal/auth"
)

func AuthMiddleware(flow *auth.Flow) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "authorization_header_missing"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(401, gin.H{"error": "authorization_header_invalid"})
			return
		}

		session, err := flow.Resolve(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(401, gin.H{"error": "invalid_token"})
			return
		}

		// Store session in context
		c.Set("session", session)
		c.Set("userID", session.UserID())

		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString("userID")
}

func session(c *gin.Context) *auth.Session {
	s, _ := c.MustGet("session").(*auth.Session)
	return s
}
