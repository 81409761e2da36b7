package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/competency-hub/pkg/authz"
	"github.com/iota-uz/competency-hub/pkg/composables"
	"github.com/iota-uz/competency-hub/pkg/httpapi"
	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

type failingAuthorizer struct{}

func (failingAuthorizer) Authorize(context.Context, authz.Request) error {
	return errors.New("enforcer unavailable")
}

func enforcingService(t *testing.T) *authz.Service {
	t.Helper()
	svc, err := authz.NewService(authz.Config{FlagProvider: authz.StaticFlagProvider(authz.ModeEnforce)})
	require.NoError(t, err)
	return svc
}

func TestEnsureHRMAuthz_ForbiddenJSONContract(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/hrm/api/employee-forms", nil)
	req = req.WithContext(composables.WithRequestID(req.Context(), "req-hrm-json"))
	rc := rolescope.New(rolescope.RoleTeamMember, rolescope.Scope{})

	rr := httptest.NewRecorder()
	allowed := ensureHRMAuthz(rr, req, enforcingService(t), rc, authz.ObjectEmployees, "create")

	require.False(t, allowed)
	require.Equal(t, http.StatusForbidden, rr.Code)

	var payload httpapi.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, authz.ErrorCodeForbidden, payload.Code)
	require.Equal(t, "hrm.employees", payload.Meta["object"])
	require.Equal(t, "create", payload.Meta["action"])
	require.Equal(t, "role:team_member", payload.Meta["subject"])
	require.Equal(t, "req-hrm-json", payload.Meta["request_id"])
}

func TestEnsureHRMAuthz_Allowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/hrm/api/employee-forms/x", nil)
	rc := rolescope.New(rolescope.RoleTeamMember, rolescope.Scope{})
	rr := httptest.NewRecorder()

	require.True(t, ensureHRMAuthz(rr, req, enforcingService(t), rc, authz.ObjectEmployees, "view"))
	require.True(t, ensureHRMAuthz(rr, req, nil, rc, authz.ObjectEmployees, "create"))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestEnsureHRMAuthz_BackendError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	rc := rolescope.New(rolescope.RoleSuperAdmin, rolescope.Scope{})

	require.False(t, ensureHRMAuthz(rr, req, failingAuthorizer{}, rc, authz.ObjectEmployees, "view"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
