package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/webaffe/webaffe/backend/console/internal/authstate"
	"github.com/webaffe/webaffe/backend/console/internal/models"
)

func TestApp_RequiresApproval(t *testing.T) {
	c := newConsole(t)
	require.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/app/me", "").Code)

	st := c.signUp(t, "ann@x.com", authstate.PhasePending)
	w := c.do(http.MethodGet, "/api/app/me", "")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "pending_approval", decode(t, w)["phase"])

	require.NoError(t, c.users.Approve(context.Background(), st.Identity.UID))
	c.listener.Refresh()
	c.waitPhase(t, authstate.PhaseApprovedUser)

	w = c.do(http.MethodGet, "/api/app/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "ann@x.com", body["profile"].(map[string]interface{})["email"])

	// approved users are not admins
	require.Equal(t, http.StatusForbidden, c.do(http.MethodGet, "/api/admin/settings", "").Code)
}

func TestApp_Config(t *testing.T) {
	c := newConsole(t)
	provider := "openai"
	require.NoError(t, c.users.SetGlobalConfig(context.Background(), models.ConfigUpdate{DefaultProvider: &provider}))
	c.signUp(t, bootstrapEmail, authstate.PhaseApprovedAdmin)

	w := c.do(http.MethodGet, "/api/app/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "openai", decode(t, w)["defaultProvider"])
}
