package sessions

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/webaffe/webaffe/backend/console/internal/models"
)

// Service wraps repository operations with business logic. The token of the
// current sign-in is kept in the local store so a restart can pick it up.
type Service struct {
	repo  Repository
	local LocalStore
	ttl   time.Duration
}

func NewService(r Repository, local LocalStore, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Service{repo: r, local: local, ttl: ttl}
}

// Start persists a session for id and makes it the current one. The
// previous session, if any, is deleted first.
func (s *Service) Start(ctx context.Context, id *models.Identity) (*Session, error) {
	if err := s.End(ctx); err != nil {
		return nil, fmt.Errorf("end previous session: %w", err)
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &Session{
		Token:       hex.EncodeToString(b),
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		PhotoURL:    id.PhotoURL,
		Provider:    id.Provider,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	if err := s.local.Set(ctx, KeyCurrentSession, sess.Token); err != nil {
		_ = s.repo.DeleteByToken(ctx, sess.Token)
		return nil, fmt.Errorf("store session token: %w", err)
	}
	return sess, nil
}

// Current returns the persisted session, or nil when none is valid.
func (s *Service) Current(ctx context.Context) (*Session, error) {
	token, ok, err := s.local.Get(ctx, KeyCurrentSession)
	if err != nil || !ok {
		return nil, err
	}
	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.expired(time.Now().UTC()) {
		_ = s.repo.DeleteByToken(ctx, token)
		_ = s.local.Delete(ctx, KeyCurrentSession)
		return nil, nil
	}
	return sess, nil
}

// End drops the current session. Ending when nothing is persisted is not an error.
func (s *Service) End(ctx context.Context) error {
	token, ok, err := s.local.Get(ctx, KeyCurrentSession)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := s.repo.DeleteByToken(ctx, token); err != nil {
		return err
	}
	return s.local.Delete(ctx, KeyCurrentSession)
}

// Token returns the bearer token of the current session, or "" when there is none.
func (s *Service) Token(ctx context.Context) (string, error) {
	sess, err := s.Current(ctx)
	if err != nil || sess == nil {
		return "", err
	}
	return sess.Token, nil
}

// ValidToken reports whether token belongs to the current session.
func (s *Service) ValidToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	cur, err := s.Token(ctx)
	if err != nil || cur == "" {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(cur), []byte(token)) == 1, nil
}
