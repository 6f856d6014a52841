package sessions

import (
	"time"

	"github.com/webaffe/webaffe/backend/console/internal/models"
)

// Session is a persisted sign-in. It lets the console restore the signed-in
// identity after a restart.
type Session struct {
	Token       string    `bson:"_id" json:"token"`
	UID         string    `bson:"uid" json:"uid"`
	Email       string    `bson:"email" json:"email"`
	DisplayName string    `bson:"displayName,omitempty" json:"displayName,omitempty"`
	PhotoURL    string    `bson:"photoURL,omitempty" json:"photoURL,omitempty"`
	Provider    string    `bson:"provider" json:"provider"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	ExpiresAt   time.Time `bson:"expiresAt" json:"expiresAt"`
}

// Identity returns the identity the session was opened for.
func (s *Session) Identity() *models.Identity {
	return &models.Identity{
		UID:         s.UID,
		Email:       s.Email,
		DisplayName: s.DisplayName,
		PhotoURL:    s.PhotoURL,
		Provider:    s.Provider,
	}
}

func (s *Session) expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
