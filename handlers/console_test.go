package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/webaffe/webaffe/backend/console/internal/authstate"
	boardhandler "github.com/webaffe/webaffe/backend/console/internal/board/handler"
	"github.com/webaffe/webaffe/backend/console/internal/board/service"
	"github.com/webaffe/webaffe/backend/console/internal/identity"
	"github.com/webaffe/webaffe/backend/console/internal/sessions"
	"github.com/webaffe/webaffe/backend/console/internal/users"
	"github.com/webaffe/webaffe/backend/console/pkg/middleware"
)

const (
	bootstrapEmail = "boss@webaffe.dev"
	timeout        = 2 * time.Second
	tick           = 5 * time.Millisecond
)

type linkMailer struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *linkMailer) SendSignInLink(ctx context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = map[string]string{}
	}
	m.links[to] = link
	return nil
}

func (m *linkMailer) token(t *testing.T, to string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := url.Parse(m.links[to])
	require.NoError(t, err)
	return u.Query().Get("token")
}

// console is the full HTTP surface over in-memory stores.
type console struct {
	g        *gin.Engine
	provider *identity.Provider
	users    *users.Service
	store    *authstate.Store
	listener *authstate.Listener
	mailer   *linkMailer
	sessions *sessions.Service

	// token is the bearer token from the latest sign-in response.
	token string
}

func newConsole(t *testing.T) *console {
	t.Helper()
	gin.SetMode(gin.TestMode)

	local := sessions.NewMemoryLocalStore()
	sess := sessions.NewService(sessions.NewMemoryRepository(), local, time.Hour)
	mailer := &linkMailer{}
	p := identity.NewProvider(identity.NewMemoryCredentialRepository(), sess, local, sessions.NewLinkLedger(nil), mailer, identity.Options{
		LinkSecret:  "handlers-test-secret-xxxxxxxxxxxxxxxx",
		LinkBaseURL: "http://console.test",
	})
	repo := users.NewMemoryRepository()
	svc := users.NewService(repo, repo, bootstrapEmail)
	store := authstate.NewStore()
	l := authstate.NewListener(p, svc, store, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		l.Wait()
		cancel()
	})
	require.True(t, l.Start(ctx))

	g := gin.New()
	g.Use(middleware.CORS([]string{"http://console.test"}))
	NewAuthHandler(p, store).Register(g)
	admin := g.Group("/api/admin", middleware.RequireAdmin(store, sess))
	NewAdminHandler(svc, l).Register(admin)
	boardhandler.RegisterBoardRoutes(admin, service.NewMemoryService())
	RegisterAppRoutes(g.Group("/api/app", middleware.RequireApproved(store, sess)))

	c := &console{g: g, provider: p, users: svc, store: store, listener: l, mailer: mailer, sessions: sess}
	c.waitPhase(t, authstate.PhaseAnonymous)
	return c
}

// do sends the request with the current bearer token, and keeps the token
// from any sign-in response.
func (c *console) do(method, path, body string) *httptest.ResponseRecorder {
	req := newRequest(method, path, body)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := c.send(req)
	if strings.HasPrefix(path, "/auth/") && w.Code < 300 {
		var out struct {
			Token string `json:"token"`
		}
		if json.Unmarshal(w.Body.Bytes(), &out) == nil && out.Token != "" {
			c.token = out.Token
		}
	}
	return w
}

func (c *console) send(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c.g.ServeHTTP(w, req)
	return w
}

func newRequest(method, path, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, path, nil)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (c *console) waitPhase(t *testing.T, want authstate.Phase) authstate.State {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.store.Snapshot().Phase() == want
	}, timeout, tick, "phase never reached %s (at %s)", want, c.store.Snapshot().Phase())
	return c.store.Snapshot()
}

// signUp creates an account through the API and waits for the session to
// settle on want.
func (c *console) signUp(t *testing.T, email string, want authstate.Phase) authstate.State {
	t.Helper()
	w := c.do(http.MethodPost, "/auth/signup", `{"email":"`+email+`","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return c.waitPhase(t, want)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
