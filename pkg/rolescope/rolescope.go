// Package rolescope describes the acting user's role and the organizational
// scope that role is confined to.
package rolescope

import (
	"context"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSuperAdmin     Role = "SUPER_ADMIN"
	RoleSegmentHead    Role = "SEGMENT_HEAD"
	RoleSubSegmentHead Role = "SUBSEGMENT_HEAD"
	RoleProjectManager Role = "PROJECT_MANAGER"
	RoleTeamLead       Role = "TEAM_LEAD"
	RoleTeamMember     Role = "TEAM_MEMBER"
)

// Roles lists every role from the widest to the narrowest scope.
var Roles = []Role{
	RoleSuperAdmin,
	RoleSegmentHead,
	RoleSubSegmentHead,
	RoleProjectManager,
	RoleTeamLead,
	RoleTeamMember,
}

// depth is the number of leading hierarchy levels a role is pinned to.
var depth = map[Role]int{
	RoleSuperAdmin:     0,
	RoleSegmentHead:    1,
	RoleSubSegmentHead: 2,
	RoleProjectManager: 3,
	RoleTeamLead:       4,
	RoleTeamMember:     4,
}

func ParseRole(raw string) (Role, error) {
	normalized := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := depth[normalized]; !ok {
		return "", fmt.Errorf("rolescope: unknown role %q", raw)
	}
	return normalized, nil
}

func (r Role) Valid() bool {
	_, ok := depth[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// Locks returns, per hierarchy level (segment, sub-segment, project, team),
// whether the role pins that level to its own scope. Unknown roles lock nothing.
func (r Role) Locks() [4]bool {
	var locked [4]bool
	for i := 0; i < depth[r]; i++ {
		locked[i] = true
	}
	return locked
}

type Scope struct {
	SegmentID    *int64 `json:"segment_id"`
	SubSegmentID *int64 `json:"sub_segment_id"`
	ProjectID    *int64 `json:"project_id"`
	TeamID       *int64 `json:"team_id"`
	EmployeeID   *int64 `json:"employee_id"`
}

// Context is the read-only role/scope pair injected into consumers.
type Context struct {
	Role  Role  `json:"role"`
	Scope Scope `json:"scope"`
}

func New(role Role, scope Scope) Context {
	return Context{Role: role, Scope: scope.clone()}
}

// ScopeValue returns the scope id for a hierarchy level index (0 = segment .. 3 = team).
func (c Context) ScopeValue(level int) *int64 {
	var v *int64
	switch level {
	case 0:
		v = c.Scope.SegmentID
	case 1:
		v = c.Scope.SubSegmentID
	case 2:
		v = c.Scope.ProjectID
	case 3:
		v = c.Scope.TeamID
	}
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func (c Context) Locks() [4]bool {
	return c.Role.Locks()
}

// Equal reports whether both contexts carry the same role and scope ids.
func (c Context) Equal(other Context) bool {
	return c.Role == other.Role &&
		sameID(c.Scope.SegmentID, other.Scope.SegmentID) &&
		sameID(c.Scope.SubSegmentID, other.Scope.SubSegmentID) &&
		sameID(c.Scope.ProjectID, other.Scope.ProjectID) &&
		sameID(c.Scope.TeamID, other.Scope.TeamID) &&
		sameID(c.Scope.EmployeeID, other.Scope.EmployeeID)
}

func (s Scope) clone() Scope {
	return Scope{
		SegmentID:    copyID(s.SegmentID),
		SubSegmentID: copyID(s.SubSegmentID),
		ProjectID:    copyID(s.ProjectID),
		TeamID:       copyID(s.TeamID),
		EmployeeID:   copyID(s.EmployeeID),
	}
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyID(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

type ctxKey struct{}

func WithContext(ctx context.Context, rc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the role/scope stored in ctx, if any.
func FromContext(ctx context.Context) (Context, bool) {
	rc, ok := ctx.Value(ctxKey{}).(Context)
	return rc, ok
}
