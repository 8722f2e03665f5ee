package middleware

import (
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
)

const (
	CtxFirebaseUID = "firebase_uid"
)

// SessionContext supplies the UID of the facade's signed-in session.
type SessionContext interface {
	UID() string
}

// FirebaseAuthMiddleware validates Firebase ID tokens, extracts the
// caller's UID and requires it to match the facade's session: board
// routes are scoped to the signed-in user and nobody else.
func FirebaseAuthMiddleware(authClient *auth.Client, session SessionContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
			c.Abort()
			return
		}

		decodedToken, err := authClient.VerifyIDToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		if session.UID() == "" || decodedToken.UID != session.UID() {
			c.JSON(http.StatusForbidden, gin.H{"error": "token does not match the signed-in session"})
			c.Abort()
			return
		}

		c.Set(CtxFirebaseUID, decodedToken.UID)

		if email, ok := decodedToken.Claims["email"].(string); ok {
			c.Set("email", email)
		}

		c.Next()
	}
}

// UserFirebaseUID extracts the Firebase UID set by FirebaseAuthMiddleware.
func UserFirebaseUID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(CtxFirebaseUID))
}

// extractToken extracts the Bearer token from the Authorization header
func extractToken(c *gin.Context) string {
	bearerToken := c.GetHeader("Authorization")
	if len(bearerToken) > 7 && strings.HasPrefix(bearerToken, "Bearer ") {
		return bearerToken[7:]
	}
	return ""
}
