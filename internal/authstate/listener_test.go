package authstate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/webaffe/webaffe/backend/console/internal/identity"
	"github.com/webaffe/webaffe/backend/console/internal/models"
	"github.com/webaffe/webaffe/backend/console/internal/sessions"
	"github.com/webaffe/webaffe/backend/console/internal/users"
	"github.com/webaffe/webaffe/backend/console/pkg/metrics"
)

const bootstrap = "boss@webaffe.dev"

type fakeSource struct {
	mu      sync.Mutex
	fn      func(*models.Identity)
	initial *models.Identity
}

func (s *fakeSource) OnIdentityChange(ctx context.Context, fn func(*models.Identity)) bool {
	s.mu.Lock()
	if s.fn != nil {
		s.mu.Unlock()
		return false
	}
	s.fn = fn
	s.mu.Unlock()
	fn(s.initial)
	return true
}

func (s *fakeSource) emit(id *models.Identity) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	fn(id)
}

// flakyProfiles wraps the real service with injectable failures and a gate
// that holds GetProfile for one uid.
type flakyProfiles struct {
	*users.Service

	mu       sync.Mutex
	getErr   error
	cfgErr   error
	blockUID string
	entered  chan struct{}
	release  chan struct{}
}

func (f *flakyProfiles) set(fn func(f *flakyProfiles)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *flakyProfiles) GetProfile(ctx context.Context, uid string) (*models.Profile, error) {
	f.mu.Lock()
	err, block := f.getErr, uid == f.blockUID
	entered, release := f.entered, f.release
	f.mu.Unlock()
	if block {
		close(entered)
		<-release
	}
	if err != nil {
		return nil, err
	}
	return f.Service.GetProfile(ctx, uid)
}

func (f *flakyProfiles) GetGlobalConfig(ctx context.Context) (models.GlobalConfig, error) {
	f.mu.Lock()
	err := f.cfgErr
	f.mu.Unlock()
	if err != nil {
		return models.GlobalConfig{}, err
	}
	return f.Service.GetGlobalConfig(ctx)
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) add(st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *recorder) at(i int) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[i]
}

type harness struct {
	src      *fakeSource
	repo     *users.MemoryRepository
	svc      *users.Service
	profiles *flakyProfiles
	store    *Store
	l        *Listener
	rec      *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := users.NewMemoryRepository()
	svc := users.NewService(repo, repo, bootstrap)
	h := &harness{
		src:      &fakeSource{},
		repo:     repo,
		svc:      svc,
		profiles: &flakyProfiles{Service: svc},
		store:    NewStore(),
		rec:      &recorder{},
	}
	h.l = NewListener(h.src, h.profiles, h.store, time.Second)
	h.store.Subscribe(h.rec.add)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.True(t, h.l.Start(ctx))
	h.waitPublished(t, 1)
	return h
}

func (h *harness) waitPublished(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.rec.count() >= n }, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) signIn(t *testing.T, id *models.Identity) State {
	t.Helper()
	n := h.rec.count()
	h.src.emit(id)
	h.waitPublished(t, n+1)
	return h.store.Snapshot()
}

func TestListener_StartOnceAndColdStart(t *testing.T) {
	h := newHarness(t)
	require.False(t, h.l.Start(context.Background()))

	st := h.store.Snapshot()
	require.False(t, st.Loading)
	require.Nil(t, st.Identity)
	require.Nil(t, st.Profile)
	require.Equal(t, PhaseAnonymous, st.Phase())
}

func TestListener_BootstrapAdmin(t *testing.T) {
	h := newHarness(t)
	st := h.signIn(t, &models.Identity{UID: "boss", Email: " BOSS@webaffe.dev "})

	require.False(t, st.Loading)
	require.True(t, st.IsAdmin())
	require.True(t, st.IsApproved())
	require.Equal(t, PhaseApprovedAdmin, st.Phase())

	stored, err := h.svc.GetProfile(context.Background(), "boss")
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, stored.Role)
	require.True(t, stored.IsApproved)
}

func TestListener_NewUserIsPending(t *testing.T) {
	h := newHarness(t)
	st := h.signIn(t, &models.Identity{UID: "u1", Email: "someone@x.com"})

	require.True(t, st.IsAuthenticated())
	require.False(t, st.IsApproved())
	require.False(t, st.IsAdmin())
	require.Equal(t, "someone", st.Profile.DisplayName)

	stored, _ := h.svc.GetProfile(context.Background(), "u1")
	require.Equal(t, models.RoleUser, stored.Role)
	require.False(t, stored.IsApproved)
}

func TestListener_ExistingProfileKeepsRoleAndTouchesLastLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, h.repo.Create(ctx, &models.Profile{
		UID: "u1", Email: "boss@webaffe.dev", DisplayName: "Stored", Role: models.RoleUser, IsApproved: false, CreatedAt: old, LastLogin: old,
	}))

	st := h.signIn(t, &models.Identity{UID: "u1", Email: "boss@webaffe.dev", PhotoURL: "https://p/1.png"})
	h.l.Wait()

	require.False(t, st.IsAdmin(), "bootstrap only applies to new profiles")
	require.False(t, st.IsApproved())
	require.Equal(t, "Stored", st.Profile.DisplayName)
	require.Equal(t, "https://p/1.png", st.Profile.PhotoURL)

	stored, _ := h.svc.GetProfile(ctx, "u1")
	require.Equal(t, models.RoleUser, stored.Role)
	require.False(t, stored.IsApproved)
	require.True(t, stored.LastLogin.After(old))
	require.Empty(t, stored.PhotoURL, "contact fields are not written back")
}

func TestListener_ProfileFailureFailsClosed(t *testing.T) {
	h := newHarness(t)
	before := testutil.ToFloat64(metrics.ProfileStoreFailures.WithLabelValues("get_profile"))
	h.profiles.set(func(f *flakyProfiles) { f.getErr = errors.New("permission denied") })

	st := h.signIn(t, &models.Identity{UID: "boss", Email: bootstrap})
	require.False(t, st.Loading)
	require.True(t, st.IsAuthenticated())
	require.Nil(t, st.Profile)
	require.False(t, st.IsApproved())
	require.False(t, st.IsAdmin())
	require.Equal(t, before+1, testutil.ToFloat64(metrics.ProfileStoreFailures.WithLabelValues("get_profile")))
}

func TestListener_ConfigFailureKeepsPrevious(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider, model := "anthropic", "claude"
	require.NoError(t, h.svc.SetGlobalConfig(ctx, models.ConfigUpdate{DefaultProvider: &provider, DefaultModel: &model}))

	st := h.signIn(t, &models.Identity{UID: "u1", Email: "a@x.com"})
	require.Equal(t, "claude", st.Config.DefaultModel)

	h.profiles.set(func(f *flakyProfiles) { f.cfgErr = errors.New("unavailable") })
	st = h.signIn(t, &models.Identity{UID: "u2", Email: "b@x.com"})
	require.False(t, st.Loading)
	require.Equal(t, "u2", st.Identity.UID)
	require.Equal(t, "anthropic", st.Config.DefaultProvider)
	require.Equal(t, "claude", st.Config.DefaultModel)
}

func TestListener_SignOutClearsProfile(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, &models.Identity{UID: "u1", Email: "a@x.com"})
	before := testutil.ToFloat64(metrics.SessionTransitions.WithLabelValues(string(PhaseAnonymous)))

	st := h.signIn(t, nil)
	require.False(t, st.Loading)
	require.Nil(t, st.Identity)
	require.Nil(t, st.Profile)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.SessionTransitions.WithLabelValues(string(PhaseAnonymous))))
}

// A second event arriving while the first is still resolving must win.
func TestListener_LaterEventLandsLast(t *testing.T) {
	h := newHarness(t)
	entered, release := make(chan struct{}), make(chan struct{})
	h.profiles.set(func(f *flakyProfiles) {
		f.blockUID, f.entered, f.release = "x", entered, release
	})

	h.src.emit(&models.Identity{UID: "x", Email: "x@x.com"})
	<-entered
	h.src.emit(&models.Identity{UID: "y", Email: "y@x.com"})
	close(release)

	h.waitPublished(t, 3)
	require.Equal(t, "x", h.rec.at(1).Identity.UID)
	require.Equal(t, "y", h.rec.at(2).Identity.UID)

	st := h.store.Snapshot()
	require.False(t, st.Loading)
	require.Equal(t, "y", st.Identity.UID)
	require.Equal(t, "y", st.Profile.UID)
}

// A refresh queued behind a sign-out must not bring the old identity back.
func TestListener_RefreshAfterSignOutStaysSignedOut(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, &models.Identity{UID: "x", Email: "x@x.com"})

	entered, release := make(chan struct{}), make(chan struct{})
	h.profiles.set(func(f *flakyProfiles) {
		f.blockUID, f.entered, f.release = "x", entered, release
	})
	h.l.Refresh()
	<-entered
	h.src.emit(nil)
	h.l.Refresh()
	close(release)

	h.waitPublished(t, 5)
	require.Equal(t, "x", h.rec.at(2).Identity.UID)
	require.Nil(t, h.rec.at(3).Identity)
	require.Nil(t, h.rec.at(4).Identity)

	st := h.store.Snapshot()
	require.False(t, st.Loading)
	require.Nil(t, st.Identity)
	require.Nil(t, st.Profile)
}

func TestListener_EveryEventEndsNotLoading(t *testing.T) {
	h := newHarness(t)
	seq := []*models.Identity{
		{UID: "a", Email: "a@x.com"}, nil, {UID: "b", Email: "b@x.com"}, {UID: "a", Email: "a@x.com"}, nil, {UID: "c", Email: bootstrap},
	}
	for _, id := range seq {
		h.src.emit(id)
	}
	h.waitPublished(t, 1+len(seq))
	st := h.store.Snapshot()
	require.False(t, st.Loading)
	require.Equal(t, "c", st.Identity.UID)
	require.True(t, st.IsAdmin())
}

// Full path: sign up through the provider, get approved by an admin, and
// see the approval after a refresh.
func TestListener_SignUpThenApproval(t *testing.T) {
	repo := users.NewMemoryRepository()
	svc := users.NewService(repo, repo, bootstrap)
	local := sessions.NewMemoryLocalStore()
	prov := identity.NewProvider(
		identity.NewMemoryCredentialRepository(),
		sessions.NewService(sessions.NewMemoryRepository(), local, time.Hour),
		local, sessions.NewLinkLedger(nil), identity.LogMailer{},
		identity.Options{LinkSecret: "secret-secret-secret-secret-secret"},
	)
	store := NewStore()
	l := NewListener(prov, svc, store, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.True(t, l.Start(ctx))

	id, err := prov.SignUpWithPassword(ctx, "new@x.com", "secret1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st := store.Snapshot()
		return st.Identity != nil && st.Profile != nil && !st.Loading
	}, 2*time.Second, 5*time.Millisecond)

	st := store.Snapshot()
	require.True(t, st.IsAuthenticated())
	require.False(t, st.IsApproved())
	require.False(t, st.IsAdmin())
	require.Equal(t, models.RoleUser, st.Profile.Role)

	approved := true
	require.NoError(t, svc.UpdateProfile(ctx, id.UID, models.ProfileUpdate{IsApproved: &approved}))
	p, err := svc.GetProfile(ctx, id.UID)
	require.NoError(t, err)
	require.True(t, p.IsApproved)

	l.Refresh()
	require.Eventually(t, func() bool { return store.Snapshot().IsApproved() }, 2*time.Second, 5*time.Millisecond)
}
