package rolescope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoleLocks(t *testing.T) {
	cases := []struct {
		role Role
		want [4]bool
	}{
		{RoleSuperAdmin, [4]bool{false, false, false, false}},
		{RoleSegmentHead, [4]bool{true, false, false, false}},
		{RoleSubSegmentHead, [4]bool{true, true, false, false}},
		{RoleProjectManager, [4]bool{true, true, true, false}},
		{RoleTeamLead, [4]bool{true, true, true, true}},
		{RoleTeamMember, [4]bool{true, true, true, true}},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			require.Equal(t, tc.want, tc.role.Locks())
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("  project_manager ")
	require.NoError(t, err)
	require.Equal(t, RoleProjectManager, r)

	_, err = ParseRole("owner")
	require.Error(t, err)
}

func TestScopeValueIsCopied(t *testing.T) {
	seg := int64(5)
	rc := New(RoleSegmentHead, Scope{SegmentID: &seg})
	seg = 6

	got := rc.ScopeValue(0)
	require.NotNil(t, got)
	require.Equal(t, int64(5), *got)

	*got = 9
	require.Equal(t, int64(5), *rc.ScopeValue(0))
	require.Nil(t, rc.ScopeValue(3))
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithContext(context.Background(), New(RoleTeamLead, Scope{}))
	rc, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, RoleTeamLead, rc.Role)
}

func TestContextEqual(t *testing.T) {
	a, b := int64(1), int64(1)
	other := int64(2)
	rc := New(RoleSegmentHead, Scope{SegmentID: &a})

	require.True(t, rc.Equal(New(RoleSegmentHead, Scope{SegmentID: &b})))
	require.False(t, rc.Equal(New(RoleSegmentHead, Scope{SegmentID: &other})))
	require.False(t, rc.Equal(New(RoleSegmentHead, Scope{})))
	require.False(t, rc.Equal(New(RoleSubSegmentHead, Scope{SegmentID: &a})))
	require.True(t, New(RoleSuperAdmin, Scope{}).Equal(New(RoleSuperAdmin, Scope{})))
}
