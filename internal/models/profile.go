package models

import (
	"strings"
	"time"
)

// Role is the authorization role stored on a profile.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the persisted role values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Profile is the console's record of role and approval for an Identity,
// stored in the "users" collection keyed by the identity uid.
// Field names are the persisted contract shared with existing data.
type Profile struct {
	UID         string    `bson:"_id" json:"uid"`
	Email       string    `bson:"email" json:"email"`
	DisplayName string    `bson:"displayName" json:"displayName"`
	PhotoURL    string    `bson:"photoURL" json:"photoURL"`
	Role        Role      `bson:"role" json:"role"`
	IsApproved  bool      `bson:"isApproved" json:"isApproved"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	LastLogin   time.Time `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	UpdatedAt   time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// NewProfile builds the initial profile for a first sign-in. The bootstrap
// administrator is created approved with the admin role; everyone else waits
// for approval.
func NewProfile(id *Identity, isFirstAdmin bool, now time.Time) *Profile {
	p := &Profile{
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: DefaultDisplayName(id),
		PhotoURL:    id.PhotoURL,
		Role:        RoleUser,
		IsApproved:  isFirstAdmin,
		CreatedAt:   now,
		LastLogin:   now,
	}
	if isFirstAdmin {
		p.Role = RoleAdmin
	}
	return p
}

// DefaultDisplayName falls back to the email local part, then to "User".
func DefaultDisplayName(id *Identity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	if local, _, ok := strings.Cut(id.Email, "@"); ok && local != "" {
		return local
	}
	return "User"
}

// ProfileUpdate names the fields an update touches; nil fields keep their
// stored value.
type ProfileUpdate struct {
	Role        *Role   `json:"role,omitempty"`
	IsApproved  *bool   `json:"isApproved,omitempty"`
	DisplayName *string `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
}

// Empty reports whether the update names no field.
func (u ProfileUpdate) Empty() bool {
	return u.Role == nil && u.IsApproved == nil && u.DisplayName == nil && u.PhotoURL == nil
}

// Apply merges the named fields into p.
func (u ProfileUpdate) Apply(p *Profile) {
	if u.Role != nil {
		p.Role = *u.Role
	}
	if u.IsApproved != nil {
		p.IsApproved = *u.IsApproved
	}
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.PhotoURL != nil {
		p.PhotoURL = *u.PhotoURL
	}
}

// SameAddress compares two email addresses the way the bootstrap check does.
func SameAddress(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
