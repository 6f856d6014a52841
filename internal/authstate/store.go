// Package authstate holds the console's session state and keeps it in step
// with identity changes.
package authstate

import (
	"sync"

	"github.com/webaffe/webaffe/backend/console/internal/models"
)

// Phase is the derived position in the sign-in lifecycle.
type Phase string

const (
	PhaseLoading       Phase = "loading"
	PhaseAnonymous     Phase = "anonymous"
	PhasePending       Phase = "pending_approval"
	PhaseApprovedUser  Phase = "approved_user"
	PhaseApprovedAdmin Phase = "approved_admin"
)

// State is one immutable value of the session. Identity and Profile are
// replaced wholesale, never edited in place.
type State struct {
	Loading  bool                `json:"loading"`
	Identity *models.Identity    `json:"identity"`
	Profile  *models.Profile     `json:"profile"`
	Config   models.GlobalConfig `json:"config"`
}

func (s State) IsAuthenticated() bool { return s.Identity != nil }

func (s State) IsApproved() bool { return s.Profile != nil && s.Profile.IsApproved }

func (s State) IsAdmin() bool { return s.Profile != nil && s.Profile.Role == models.RoleAdmin }

func (s State) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseLoading
	case !s.IsAuthenticated():
		return PhaseAnonymous
	case !s.IsApproved():
		return PhasePending
	case s.IsAdmin():
		return PhaseApprovedAdmin
	}
	return PhaseApprovedUser
}

// View is State plus its derived fields, as served to the UI.
type View struct {
	State
	IsAuthenticated bool  `json:"isAuthenticated"`
	IsApproved      bool  `json:"isApproved"`
	IsAdmin         bool  `json:"isAdmin"`
	Phase           Phase `json:"phase"`
}

func (s State) View() View {
	return View{
		State:           s,
		IsAuthenticated: s.IsAuthenticated(),
		IsApproved:      s.IsApproved(),
		IsAdmin:         s.IsAdmin(),
		Phase:           s.Phase(),
	}
}

func (s State) clone() State {
	out := s
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	return out
}

// Store is the single holder of the session State. Anyone may read or
// subscribe; only the Listener writes.
type Store struct {
	mu    sync.RWMutex
	state State
	subs  []subscriber
	next  int
}

type subscriber struct {
	id int
	fn func(State)
}

func NewStore() *Store {
	return &Store{state: State{Loading: true}}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn for every later replacement, in order. fn runs on
// the writer's goroutine and must not block. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) replace(st State) {
	s.mu.Lock()
	s.state = st.clone()
	subs := s.subs
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fn(st.clone())
	}
}
