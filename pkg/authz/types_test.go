package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

func TestSubjectForRole(t *testing.T) {
	assert.Equal(t, "role:segment_head", SubjectForRole("SEGMENT_HEAD"))
	assert.Equal(t, "role:team_lead", SubjectForRole("role:team_lead"))
	assert.Equal(t, "role:unnamed", SubjectForRole("  "))
}

func TestNormalizeAction(t *testing.T) {
	assert.Equal(t, "create", NormalizeAction(" Create "))
	assert.Equal(t, "*", NormalizeAction(""))
}

func TestNewRoleRequest(t *testing.T) {
	seg := int64(3)
	rc := rolescope.New(rolescope.RoleSegmentHead, rolescope.Scope{SegmentID: &seg})

	req := NewRoleRequest(rc, ObjectEmployees, "Update")
	assert.Equal(t, "role:segment_head", req.Subject)
	assert.Equal(t, DomainHRM, req.Domain)
	assert.Equal(t, "update", req.Action)
	assert.Equal(t, Attributes{"segment_id": int64(3)}, req.Attributes)
}
