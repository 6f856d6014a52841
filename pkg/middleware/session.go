package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/webaffe/webaffe/backend/console/internal/authstate"
)

// Context keys set by the session gates.
const (
	SessionKey = "session"
	UIDKey     = "uid"
)

// StateReader is the read side of the session store.
type StateReader interface {
	Snapshot() authstate.State
}

// TokenValidator checks a bearer token against the current session.
type TokenValidator interface {
	ValidToken(ctx context.Context, token string) (bool, error)
}

// RequireApproved admits requests carrying the current session's bearer
// token, and only once the session has an approved profile. The snapshot is
// stored under SessionKey for the handler.
func RequireApproved(store StateReader, tokens TokenValidator) gin.HandlerFunc {
	return gate(store, tokens, false)
}

// RequireAdmin additionally requires the admin role.
func RequireAdmin(store StateReader, tokens TokenValidator) gin.HandlerFunc {
	return gate(store, tokens, true)
}

func bearer(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return "", false
	}
	var token string
	if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n != 1 {
		return "", false
	}
	return token, true
}

func gate(store StateReader, tokens TokenValidator, admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		valid, err := tokens.ValidToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}
		if !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}

		st := store.Snapshot()
		switch {
		case st.Loading:
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session is loading", "phase": st.Phase()})
			return
		case !st.IsAuthenticated():
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "sign in required", "phase": st.Phase()})
			return
		case !st.IsApproved():
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "pending_approval", "phase": st.Phase()})
			return
		case admin && !st.IsAdmin():
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin_required", "phase": st.Phase()})
			return
		}
		c.Set(SessionKey, st)
		c.Set(UIDKey, st.Identity.UID)
		c.Next()
	}
}

// SessionFrom returns the snapshot a gate admitted the request with.
func SessionFrom(c *gin.Context) (authstate.State, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return authstate.State{}, false
	}
	st, ok := v.(authstate.State)
	return st, ok
}
