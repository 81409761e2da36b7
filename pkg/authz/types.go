package authz

import (
	"strings"

	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

// Attributes carry the acting scope ids with a request. The model matcher
// ignores them; they exist for audit logs.
type Attributes map[string]any

// Request is one casbin enforcement tuple.
type Request struct {
	Subject    string
	Domain     string
	Object     string
	Action     string
	Attributes Attributes
}

var scopeAttributeKeys = [...]string{"segment_id", "sub_segment_id", "project_id", "team_id"}

// NewRoleRequest builds an HRM request for the acting role.
func NewRoleRequest(rc rolescope.Context, object, action string) Request {
	attrs := Attributes{}
	for i, key := range scopeAttributeKeys {
		if v := rc.ScopeValue(i); v != nil {
			attrs[key] = *v
		}
	}
	return Request{
		Subject:    SubjectForRole(rc.Role.String()),
		Domain:     DomainHRM,
		Object:     object,
		Action:     NormalizeAction(action),
		Attributes: attrs,
	}
}

// SubjectForRole maps a role to its policy subject, e.g. "role:team_lead".
// Already prefixed subjects pass through.
func SubjectForRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = "unnamed"
	}
	if strings.HasPrefix(role, "role:") {
		return role
	}
	return "role:" + role
}

// NormalizeAction lowercases action; an empty action matches any rule.
func NormalizeAction(action string) string {
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		return "*"
	}
	return action
}
