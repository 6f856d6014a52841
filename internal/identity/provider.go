package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webaffe/webaffe/backend/console/internal/models"
	"github.com/webaffe/webaffe/backend/console/internal/oidc"
	"github.com/webaffe/webaffe/backend/console/internal/sessions"
	"github.com/webaffe/webaffe/backend/console/internal/tokens"
	"github.com/webaffe/webaffe/backend/console/pkg/logger"
	"github.com/webaffe/webaffe/backend/console/pkg/metrics"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const popupStateTTL = 10 * time.Minute

// Options configures a Provider.
type Options struct {
	MinPasswordLength int
	SignInRPS         float64
	SignInBurst       int

	LinkSecret  string
	LinkTTL     time.Duration
	LinkBaseURL string

	// Google is nil when Google sign-in is not configured.
	Google *GoogleOptions
}

type GoogleOptions struct {
	OAuth2   oauth2.Config
	Verifier oidc.IDTokenVerifier
	// HTTPClient is used for the code exchange when set.
	HTTPClient *http.Client
}

// Provider authenticates the console operator and reports identity changes.
type Provider struct {
	creds    CredentialRepository
	sessions *sessions.Service
	local    sessions.LocalStore
	ledger   *sessions.LinkLedger
	mailer   Mailer
	opts     Options
	limiter  *attemptLimiter

	mu         sync.Mutex
	listener   func(*models.Identity)
	registered bool
	states     map[string]time.Time
	now        func() time.Time
}

func NewProvider(creds CredentialRepository, sess *sessions.Service, local sessions.LocalStore, ledger *sessions.LinkLedger, mailer Mailer, opts Options) *Provider {
	if opts.MinPasswordLength < 1 {
		opts.MinPasswordLength = 6
	}
	if opts.LinkTTL <= 0 {
		opts.LinkTTL = time.Hour
	}
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Provider{
		creds:    creds,
		sessions: sess,
		local:    local,
		ledger:   ledger,
		mailer:   mailer,
		opts:     opts,
		limiter:  newAttemptLimiter(opts.SignInRPS, opts.SignInBurst),
		states:   map[string]time.Time{},
		now:      time.Now,
	}
}

// GoogleEnabled reports whether popup sign-in is configured.
func (p *Provider) GoogleEnabled() bool { return p.opts.Google != nil }

// OnIdentityChange registers the single identity listener. It fires once
// right away with the persisted identity (or nil), then after every sign-in
// and sign-out. A second registration is ignored and returns false.
func (p *Provider) OnIdentityChange(ctx context.Context, fn func(*models.Identity)) bool {
	p.mu.Lock()
	if p.registered {
		p.mu.Unlock()
		logger.Warnf("identity listener already registered; ignoring")
		return false
	}
	p.registered = true
	p.listener = fn
	p.mu.Unlock()

	id, err := p.Current(ctx)
	if err != nil {
		logger.Warnf("restore persisted session: %v", err)
		id = nil
	}
	fn(id)
	return true
}

// Current returns the identity of the persisted session, if any.
func (p *Provider) Current(ctx context.Context) (*models.Identity, error) {
	s, err := p.sessions.Current(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	return s.Identity(), nil
}

func (p *Provider) emit(id *models.Identity) {
	p.mu.Lock()
	fn := p.listener
	p.mu.Unlock()
	if fn != nil {
		fn(id)
	}
}

func (p *Provider) establish(ctx context.Context, id *models.Identity) error {
	if _, err := p.sessions.Start(ctx, id); err != nil {
		return providerErr(CodeNetwork, err)
	}
	p.emit(id)
	return nil
}

func record(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(ErrorCode(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	metrics.SignInAttempts.WithLabelValues(method, outcome).Inc()
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (id *models.Identity, err error) {
	defer func() { record(models.ProviderPassword, err) }()
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !p.limiter.allow(email) {
		return nil, ErrTooManyRequests
	}
	c, err := p.creds.FindByEmail(ctx, email)
	if err != nil {
		return nil, providerErr(CodeNetwork, err)
	}
	if c == nil {
		return nil, ErrUserNotFound
	}
	if c.PasswordHash == "" {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, credErr(CodeInvalidCredential, err)
	}
	id = c.identity(models.ProviderPassword)
	if err := p.establish(ctx, id); err != nil {
		return nil, err
	}
	return id, nil
}

func (p *Provider) SignUpWithPassword(ctx context.Context, email, password string) (id *models.Identity, err error) {
	defer func() { record("signup", err) }()
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < p.opts.MinPasswordLength {
		return nil, ErrWeakPassword
	}
	existing, err := p.creds.FindByEmail(ctx, email)
	if err != nil {
		return nil, providerErr(CodeNetwork, err)
	}
	if existing != nil {
		return nil, ErrEmailInUse
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, credErr(CodeWeakPassword, err)
	}
	c := &Credential{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    p.now().UTC(),
	}
	if err := p.creds.Create(ctx, c); err != nil {
		if errors.Is(err, ErrCredentialExists) {
			return nil, ErrEmailInUse
		}
		return nil, providerErr(CodeNetwork, err)
	}
	id = c.identity(models.ProviderPassword)
	if err := p.establish(ctx, id); err != nil {
		return nil, err
	}
	return id, nil
}

// BeginPopupSignIn returns the Google consent URL to open.
func (p *Provider) BeginPopupSignIn(ctx context.Context) (string, error) {
	if p.opts.Google == nil {
		return "", ErrOperationNotAllowed
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := hex.EncodeToString(b)
	p.mu.Lock()
	now := p.now()
	for s, exp := range p.states {
		if now.After(exp) {
			delete(p.states, s)
		}
	}
	p.states[state] = now.Add(popupStateTTL)
	p.mu.Unlock()
	return p.opts.Google.OAuth2.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

func (p *Provider) takeState(state string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	exp, ok := p.states[state]
	delete(p.states, state)
	return ok && !p.now().After(exp)
}

// CompletePopupSignIn finishes the Google flow from the redirect parameters.
// errParam is the provider's "error" query value.
func (p *Provider) CompletePopupSignIn(ctx context.Context, state, code, errParam string) (id *models.Identity, err error) {
	defer func() { record(models.ProviderGoogle, err) }()
	g := p.opts.Google
	if g == nil {
		return nil, ErrOperationNotAllowed
	}
	if !p.takeState(state) {
		return nil, providerErr(CodePopupClosed, errors.New("unknown or expired state"))
	}
	if errParam != "" {
		return nil, providerErr(CodePopupClosed, errors.New(errParam))
	}
	if code == "" {
		return nil, providerErr(CodePopupClosed, errors.New("missing authorization code"))
	}

	xctx := ctx
	if g.HTTPClient != nil {
		xctx = context.WithValue(ctx, oauth2.HTTPClient, g.HTTPClient)
	}
	tok, err := g.OAuth2.Exchange(xctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, credErr(CodeInvalidCredential, err)
		}
		return nil, providerErr(CodeNetwork, err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, providerErr(CodeNetwork, errors.New("token response has no id_token"))
	}
	claims, err := g.Verifier.Verify(ctx, raw)
	if err != nil {
		return nil, credErr(CodeInvalidCredential, err)
	}

	c, err := p.linkGoogle(ctx, claims)
	if err != nil {
		return nil, err
	}
	id = c.identity(models.ProviderGoogle)
	if claims.Name != "" {
		id.DisplayName = claims.Name
	}
	if claims.Picture != "" {
		id.PhotoURL = claims.Picture
	}
	if err := p.establish(ctx, id); err != nil {
		return nil, err
	}
	return id, nil
}

func (p *Provider) linkGoogle(ctx context.Context, claims *oidc.Claims) (*Credential, error) {
	c, err := p.creds.FindByGoogleSubject(ctx, claims.Subject)
	if err != nil {
		return nil, providerErr(CodeNetwork, err)
	}
	if c != nil {
		return c, nil
	}
	if claims.Email == "" {
		return nil, credErr(CodeInvalidCredential, errors.New("id token has no email"))
	}
	c, err = p.creds.FindByEmail(ctx, claims.Email)
	if err != nil {
		return nil, providerErr(CodeNetwork, err)
	}
	if c != nil {
		if !claims.EmailVerified {
			return nil, ErrEmailInUse
		}
		if err := p.creds.LinkGoogle(ctx, c.UID, claims.Subject); err != nil {
			return nil, providerErr(CodeNetwork, err)
		}
		c.GoogleSubject = claims.Subject
		return c, nil
	}
	if !claims.EmailVerified {
		return nil, credErr(CodeInvalidCredential, errors.New("google email is not verified"))
	}
	c = &Credential{
		UID:           uuid.NewString(),
		Email:         claims.Email,
		GoogleSubject: claims.Subject,
		DisplayName:   claims.Name,
		PhotoURL:      claims.Picture,
		CreatedAt:     p.now().UTC(),
	}
	if err := p.creds.Create(ctx, c); err != nil {
		if errors.Is(err, ErrCredentialExists) {
			return nil, ErrEmailInUse
		}
		return nil, providerErr(CodeNetwork, err)
	}
	return c, nil
}

// SendPasswordlessLink mails a one-time sign-in link and remembers the
// address under the emailForSignIn local key.
func (p *Provider) SendPasswordlessLink(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		return ErrInvalidEmail
	}
	tok, _, err := tokens.IssueLinkToken(p.opts.LinkSecret, email, p.opts.LinkTTL)
	if err != nil {
		return ErrOperationNotAllowed
	}
	link := fmt.Sprintf("%s/auth/magic-link/complete?token=%s", strings.TrimRight(p.opts.LinkBaseURL, "/"), url.QueryEscape(tok))
	if err := p.mailer.SendSignInLink(ctx, email, link); err != nil {
		return providerErr(CodeNetwork, err)
	}
	if err := p.local.Set(ctx, sessions.KeyEmailForSignIn, email); err != nil {
		return providerErr(CodeNetwork, err)
	}
	return nil
}

// CompleteLinkSignIn redeems a sign-in link. An empty email falls back to the
// address remembered by SendPasswordlessLink.
func (p *Provider) CompleteLinkSignIn(ctx context.Context, token, email string) (id *models.Identity, err error) {
	defer func() { record(models.ProviderEmailLink, err) }()
	claims, err := tokens.ParseLinkToken(p.opts.LinkSecret, token)
	if err != nil {
		return nil, credErr(CodeInvalidLink, err)
	}
	email = strings.TrimSpace(email)
	if email == "" {
		stored, ok, err := p.local.Get(ctx, sessions.KeyEmailForSignIn)
		if err != nil {
			return nil, providerErr(CodeNetwork, err)
		}
		if !ok {
			return nil, ErrMissingEmail
		}
		email = stored
	}
	if !models.SameAddress(email, claims.Email) {
		return nil, ErrInvalidEmail
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	first, err := p.ledger.Consume(ctx, claims.ID, ttl)
	if err != nil {
		return nil, providerErr(CodeNetwork, err)
	}
	if !first {
		return nil, credErr(CodeInvalidLink, errors.New("link already used"))
	}

	// A failure past this point hands the link back so it can be retried.
	release := func() {
		if err := p.ledger.Release(ctx, claims.ID); err != nil {
			logger.Warnf("release sign-in link %s: %v", claims.ID, err)
		}
	}
	c, err := p.creds.FindByEmail(ctx, claims.Email)
	if err != nil {
		release()
		return nil, providerErr(CodeNetwork, err)
	}
	if c == nil {
		c = &Credential{UID: uuid.NewString(), Email: claims.Email, CreatedAt: p.now().UTC()}
		if err := p.creds.Create(ctx, c); err != nil {
			release()
			return nil, providerErr(CodeNetwork, err)
		}
	}
	id = c.identity(models.ProviderEmailLink)
	if err := p.establish(ctx, id); err != nil {
		release()
		return nil, err
	}
	if err := p.local.Delete(ctx, sessions.KeyEmailForSignIn); err != nil {
		logger.Warnf("clear %s: %v", sessions.KeyEmailForSignIn, err)
	}
	return id, nil
}

// SessionToken returns the bearer token of the current session.
func (p *Provider) SessionToken(ctx context.Context) (string, error) {
	tok, err := p.sessions.Token(ctx)
	if err != nil {
		return "", providerErr(CodeNetwork, err)
	}
	return tok, nil
}

// SignOut ends the persisted session and reports the signed-out state.
func (p *Provider) SignOut(ctx context.Context) error {
	err := p.sessions.End(ctx)
	p.emit(nil)
	if err != nil {
		return providerErr(CodeNetwork, err)
	}
	return nil
}
