package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/webaffe/webaffe/backend/console/internal/models"
)

var (
	// ErrProtectedAccount is returned when an admin action would demote or
	// revoke the bootstrap administrator.
	ErrProtectedAccount = errors.New("bootstrap administrator cannot be demoted or revoked")
	ErrNotApproved      = errors.New("user must be approved before promotion")
	ErrInvalidRole      = errors.New("invalid role")
)

// Filter selects profiles on the user management screen.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterPending  Filter = "pending"
	FilterApproved Filter = "approved"
	FilterAdmin    Filter = "admin"
)

// ParseFilter maps a query value to a Filter, defaulting to FilterAll.
func ParseFilter(s string) (Filter, bool) {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, true
	case FilterPending:
		return FilterPending, true
	case FilterApproved:
		return FilterApproved, true
	case FilterAdmin:
		return FilterAdmin, true
	}
	return FilterAll, false
}

func (f Filter) match(p *models.Profile) bool {
	switch f {
	case FilterPending:
		return !p.IsApproved
	case FilterApproved:
		return p.IsApproved && p.Role != models.RoleAdmin
	case FilterAdmin:
		return p.Role == models.RoleAdmin
	}
	return true
}

// Stats are the counters shown above the user list.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Admins   int `json:"admins"`
}

// Service encapsulates profile and global-config business logic
type Service struct {
	profiles       ProfileRepository
	configs        ConfigRepository
	bootstrapEmail string
	now            func() time.Time
}

func NewService(p ProfileRepository, c ConfigRepository, bootstrapEmail string) *Service {
	return &Service{
		profiles:       p,
		configs:        c,
		bootstrapEmail: strings.TrimSpace(bootstrapEmail),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// IsBootstrapAdmin reports whether email is the configured bootstrap address.
func (s *Service) IsBootstrapAdmin(email string) bool {
	return models.SameAddress(email, s.bootstrapEmail)
}

// Now is the clock used to stamp records.
func (s *Service) Now() time.Time { return s.now() }

// GetProfile returns (nil, nil) when the identity has no profile yet.
func (s *Service) GetProfile(ctx context.Context, uid string) (*models.Profile, error) {
	return s.profiles.Get(ctx, uid)
}

func (s *Service) CreateProfile(ctx context.Context, p *models.Profile) error {
	if p.UID == "" {
		return fmt.Errorf("create profile: empty uid")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	return s.profiles.Create(ctx, p)
}

// UpdateProfile merges the named fields and stamps updatedAt. An update that
// would demote or revoke the bootstrap administrator fails with
// ErrProtectedAccount, and granting admin to an unapproved profile fails with
// ErrNotApproved unless the same update approves it.
func (s *Service) UpdateProfile(ctx context.Context, uid string, upd models.ProfileUpdate) error {
	if upd.Role != nil && !upd.Role.Valid() {
		return ErrInvalidRole
	}
	demotes := upd.Role != nil && *upd.Role != models.RoleAdmin
	revokes := upd.IsApproved != nil && !*upd.IsApproved
	promotes := upd.Role != nil && *upd.Role == models.RoleAdmin
	if demotes || revokes || promotes {
		p, err := s.mustGet(ctx, uid)
		if err != nil {
			return err
		}
		if (demotes || revokes) && s.IsBootstrapAdmin(p.Email) {
			return ErrProtectedAccount
		}
		approving := upd.IsApproved != nil && *upd.IsApproved
		if promotes && (revokes || (!p.IsApproved && !approving)) {
			return ErrNotApproved
		}
	}
	return s.profiles.Update(ctx, uid, upd, s.now())
}

func (s *Service) TouchLastLogin(ctx context.Context, uid string) error {
	return s.profiles.TouchLastLogin(ctx, uid, s.now())
}

// GetGlobalConfig returns the stored config, or empty defaults when absent.
func (s *Service) GetGlobalConfig(ctx context.Context) (models.GlobalConfig, error) {
	c, err := s.configs.GetConfig(ctx)
	if err != nil {
		return models.GlobalConfig{}, err
	}
	if c == nil {
		return models.GlobalConfig{}, nil
	}
	return *c, nil
}

// SetGlobalConfig merges into the singleton record. Callers are expected to
// have checked the admin role already.
func (s *Service) SetGlobalConfig(ctx context.Context, upd models.ConfigUpdate) error {
	return s.configs.SetConfig(ctx, upd, s.now())
}

// ListProfiles applies the management-screen filter and a case-insensitive
// search over email and display name.
func (s *Service) ListProfiles(ctx context.Context, f Filter, search string) ([]*models.Profile, error) {
	all, err := s.profiles.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]*models.Profile, 0, len(all))
	for _, p := range all {
		if !f.match(p) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Email), needle) &&
			!strings.Contains(strings.ToLower(p.DisplayName), needle) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	all, err := s.profiles.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(all)}
	for _, p := range all {
		if p.IsApproved {
			st.Approved++
		} else {
			st.Pending++
		}
		if p.Role == models.RoleAdmin {
			st.Admins++
		}
	}
	return st, nil
}

func (s *Service) Approve(ctx context.Context, uid string) error {
	approved := true
	return s.UpdateProfile(ctx, uid, models.ProfileUpdate{IsApproved: &approved})
}

func (s *Service) Promote(ctx context.Context, uid string) error {
	role := models.RoleAdmin
	return s.UpdateProfile(ctx, uid, models.ProfileUpdate{Role: &role})
}

func (s *Service) Demote(ctx context.Context, uid string) error {
	role := models.RoleUser
	return s.UpdateProfile(ctx, uid, models.ProfileUpdate{Role: &role})
}

func (s *Service) Revoke(ctx context.Context, uid string) error {
	approved := false
	return s.UpdateProfile(ctx, uid, models.ProfileUpdate{IsApproved: &approved})
}

func (s *Service) mustGet(ctx context.Context, uid string) (*models.Profile, error) {
	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}
