package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/webaffe/webaffe/backend/console/internal/models"
)

const bootstrap = "boss@webaffe.dev"

func seed(t *testing.T, repo *MemoryRepository, p *models.Profile) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), p))
}

func newTestService() (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	return NewService(repo, repo, bootstrap), repo
}

func TestCreateProfile_DoesNotOverwrite(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	seed(t, repo, &models.Profile{UID: "u1", Email: "a@x.com", Role: models.RoleAdmin, IsApproved: true})

	err := svc.CreateProfile(ctx, &models.Profile{UID: "u1", Email: "a@x.com", Role: models.RoleUser})
	require.ErrorIs(t, err, ErrProfileExists)

	got, err := svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, got.Role)
	require.True(t, got.IsApproved)
}

func TestGetProfile_AbsentIsNil(t *testing.T) {
	svc, _ := newTestService()
	got, err := svc.GetProfile(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestUpdateProfile_MergesAndStamps(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return stamp }
	seed(t, repo, &models.Profile{UID: "u1", Email: "a@x.com", DisplayName: "Ann", Role: models.RoleUser})

	approved := true
	require.NoError(t, svc.UpdateProfile(ctx, "u1", models.ProfileUpdate{IsApproved: &approved}))

	got, err := svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.True(t, got.IsApproved)
	require.Equal(t, models.RoleUser, got.Role)
	require.Equal(t, "Ann", got.DisplayName)
	require.Equal(t, stamp, got.UpdatedAt)
}

func TestUpdateProfile_RejectsUnknownRole(t *testing.T) {
	svc, repo := newTestService()
	seed(t, repo, &models.Profile{UID: "u1"})
	role := models.Role("owner")
	err := svc.UpdateProfile(context.Background(), "u1", models.ProfileUpdate{Role: &role})
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestGlobalConfig_DefaultsAndMerge(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cfg, err := svc.GetGlobalConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, "", cfg.DefaultModel)
	require.Equal(t, "", cfg.DefaultProvider)

	provider, model := "anthropic", "claude"
	require.NoError(t, svc.SetGlobalConfig(ctx, models.ConfigUpdate{DefaultProvider: &provider}))
	require.NoError(t, svc.SetGlobalConfig(ctx, models.ConfigUpdate{DefaultModel: &model}))

	cfg, err = svc.GetGlobalConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.DefaultProvider)
	require.Equal(t, "claude", cfg.DefaultModel)
}

func TestAdminActions_BootstrapGuard(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	seed(t, repo, &models.Profile{UID: "boss", Email: "Boss@WebAffe.dev", Role: models.RoleAdmin, IsApproved: true})

	require.ErrorIs(t, svc.Demote(ctx, "boss"), ErrProtectedAccount)
	require.ErrorIs(t, svc.Revoke(ctx, "boss"), ErrProtectedAccount)

	got, _ := svc.GetProfile(ctx, "boss")
	require.Equal(t, models.RoleAdmin, got.Role)
	require.True(t, got.IsApproved)
}

func TestUpdateProfile_GuardsRoleAndApproval(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	seed(t, repo, &models.Profile{UID: "boss", Email: bootstrap, Role: models.RoleAdmin, IsApproved: true})
	seed(t, repo, &models.Profile{UID: "u1", Email: "new@x.com", Role: models.RoleUser})

	user, admin := models.RoleUser, models.RoleAdmin
	yes, no := true, false
	name := "Big Boss"

	require.ErrorIs(t, svc.UpdateProfile(ctx, "boss", models.ProfileUpdate{Role: &user, IsApproved: &no}), ErrProtectedAccount)
	require.ErrorIs(t, svc.UpdateProfile(ctx, "boss", models.ProfileUpdate{IsApproved: &no}), ErrProtectedAccount)
	require.NoError(t, svc.UpdateProfile(ctx, "boss", models.ProfileUpdate{DisplayName: &name}))
	got, _ := svc.GetProfile(ctx, "boss")
	require.Equal(t, models.RoleAdmin, got.Role)
	require.True(t, got.IsApproved)
	require.Equal(t, "Big Boss", got.DisplayName)

	require.ErrorIs(t, svc.UpdateProfile(ctx, "u1", models.ProfileUpdate{Role: &admin}), ErrNotApproved)
	require.ErrorIs(t, svc.UpdateProfile(ctx, "u1", models.ProfileUpdate{Role: &admin, IsApproved: &no}), ErrNotApproved)
	require.NoError(t, svc.UpdateProfile(ctx, "u1", models.ProfileUpdate{Role: &admin, IsApproved: &yes}))
	got, _ = svc.GetProfile(ctx, "u1")
	require.Equal(t, models.RoleAdmin, got.Role)
	require.True(t, got.IsApproved)

	require.ErrorIs(t, svc.UpdateProfile(ctx, "ghost", models.ProfileUpdate{Role: &user}), ErrProfileNotFound)
}

func TestAdminActions_Lifecycle(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	seed(t, repo, &models.Profile{UID: "u1", Email: "new@x.com", Role: models.RoleUser})

	require.ErrorIs(t, svc.Promote(ctx, "u1"), ErrNotApproved)
	require.NoError(t, svc.Approve(ctx, "u1"))
	require.NoError(t, svc.Promote(ctx, "u1"))

	got, _ := svc.GetProfile(ctx, "u1")
	require.Equal(t, models.RoleAdmin, got.Role)

	require.NoError(t, svc.Demote(ctx, "u1"))
	require.NoError(t, svc.Revoke(ctx, "u1"))
	got, _ = svc.GetProfile(ctx, "u1")
	require.Equal(t, models.RoleUser, got.Role)
	require.False(t, got.IsApproved)

	require.ErrorIs(t, svc.Demote(ctx, "ghost"), ErrProfileNotFound)
}

func TestListProfiles_FilterSearchAndStats(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	seed(t, repo, &models.Profile{UID: "a", Email: "admin@x.com", DisplayName: "Root", Role: models.RoleAdmin, IsApproved: true, CreatedAt: base})
	seed(t, repo, &models.Profile{UID: "b", Email: "bob@x.com", DisplayName: "Bob", Role: models.RoleUser, IsApproved: true, CreatedAt: base.Add(time.Hour)})
	seed(t, repo, &models.Profile{UID: "c", Email: "carol@y.com", DisplayName: "Carol", Role: models.RoleUser, CreatedAt: base.Add(2 * time.Hour)})

	all, err := svc.ListProfiles(ctx, FilterAll, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "c", all[0].UID, "newest first")

	pending, _ := svc.ListProfiles(ctx, FilterPending, "")
	require.Len(t, pending, 1)
	require.Equal(t, "c", pending[0].UID)

	approved, _ := svc.ListProfiles(ctx, FilterApproved, "")
	require.Len(t, approved, 1)
	require.Equal(t, "b", approved[0].UID)

	admins, _ := svc.ListProfiles(ctx, FilterAdmin, "")
	require.Len(t, admins, 1)

	found, _ := svc.ListProfiles(ctx, FilterAll, "CAROL")
	require.Len(t, found, 1)
	found, _ = svc.ListProfiles(ctx, FilterAll, "x.com")
	require.Len(t, found, 2)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{Total: 3, Pending: 1, Approved: 2, Admins: 1}, st)
}

func TestParseFilter(t *testing.T) {
	f, ok := ParseFilter("Pending")
	require.True(t, ok)
	require.Equal(t, FilterPending, f)
	f, ok = ParseFilter("")
	require.True(t, ok)
	require.Equal(t, FilterAll, f)
	_, ok = ParseFilter("banned")
	require.False(t, ok)
}

type failingRepo struct{ *MemoryRepository }

func (failingRepo) GetConfig(ctx context.Context) (*models.GlobalConfig, error) {
	return nil, errors.New("unavailable")
}

func TestGetGlobalConfig_PropagatesStoreError(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, failingRepo{repo}, "")
	_, err := svc.GetGlobalConfig(context.Background())
	require.Error(t, err)
}
