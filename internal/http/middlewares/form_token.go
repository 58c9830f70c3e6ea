package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const FormTokenField = "_token"

type FormTokens interface {
	FormToken(sessionID string) string
	VerifyFormToken(sessionID, token string) bool
}

// RequireFormToken guards html form posts: the form must echo the token the
// page was rendered with.
func RequireFormToken(tokens FormTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		sid, _ := SessionIDFromContext(c)
		tok := c.PostForm(FormTokenField)
		if tok == "" {
			tok = c.GetHeader("X-Form-Token")
		}

		if !tokens.VerifyFormToken(sid, tok) {
			c.Data(http.StatusForbidden, "text/plain; charset=utf-8", []byte("Invalid or missing form token"))
			c.Abort()
			return
		}
		c.Next()
	}
}
