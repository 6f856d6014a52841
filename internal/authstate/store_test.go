package authstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webaffe/webaffe/backend/console/internal/models"
)

func TestStore_StartsLoading(t *testing.T) {
	s := NewStore()
	st := s.Snapshot()
	require.True(t, st.Loading)
	require.Equal(t, PhaseLoading, st.Phase())
	require.False(t, st.IsAuthenticated())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.replace(State{Identity: &models.Identity{UID: "u1"}, Profile: &models.Profile{UID: "u1", Role: models.RoleUser}})

	snap := s.Snapshot()
	snap.Profile.Role = models.RoleAdmin
	snap.Identity.UID = "evil"

	again := s.Snapshot()
	require.Equal(t, models.RoleUser, again.Profile.Role)
	require.Equal(t, "u1", again.Identity.UID)
}

func TestStore_SubscribeOrderAndUnsubscribe(t *testing.T) {
	s := NewStore()
	var got []string
	unsub := s.Subscribe(func(st State) { got = append(got, string(st.Phase())) })

	s.replace(State{})
	s.replace(State{Identity: &models.Identity{UID: "u"}})
	unsub()
	s.replace(State{Loading: true})

	require.Equal(t, []string{"anonymous", "pending_approval"}, got)
}

func TestStore_ChurnKeepsLiveSubscribersInOrder(t *testing.T) {
	s := NewStore()
	var got []int
	var unsubs []func()
	for i := 0; i < 100; i++ {
		i := i
		unsubs = append(unsubs, s.Subscribe(func(State) { got = append(got, i) }))
	}
	for i, unsub := range unsubs {
		if i%10 != 0 {
			unsub()
		}
	}
	unsubs[0]()
	unsubs[0]()

	s.replace(State{})
	require.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90}, got)
	require.Len(t, s.subs, 9)
}

func TestState_Derived(t *testing.T) {
	id := &models.Identity{UID: "u"}
	cases := []struct {
		name  string
		st    State
		phase Phase
		appr  bool
		admin bool
	}{
		{"anonymous", State{}, PhaseAnonymous, false, false},
		{"no profile", State{Identity: id}, PhasePending, false, false},
		{"pending", State{Identity: id, Profile: &models.Profile{Role: models.RoleUser}}, PhasePending, false, false},
		{"approved user", State{Identity: id, Profile: &models.Profile{Role: models.RoleUser, IsApproved: true}}, PhaseApprovedUser, true, false},
		{"approved admin", State{Identity: id, Profile: &models.Profile{Role: models.RoleAdmin, IsApproved: true}}, PhaseApprovedAdmin, true, true},
		{"unapproved admin", State{Identity: id, Profile: &models.Profile{Role: models.RoleAdmin}}, PhasePending, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.phase, tc.st.Phase())
			assert.Equal(t, tc.appr, tc.st.IsApproved())
			assert.Equal(t, tc.admin, tc.st.IsAdmin())
			v := tc.st.View()
			assert.Equal(t, tc.phase, v.Phase)
			assert.Equal(t, tc.st.Identity != nil, v.IsAuthenticated)
		})
	}
}
