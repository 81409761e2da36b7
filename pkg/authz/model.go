package authz

import (
	"github.com/casbin/casbin/v2/model"

	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

const (
	// DomainHRM is the casbin domain of every HRM object.
	DomainHRM = "hrm"
	// ObjectEmployees guards employee reads and writes.
	ObjectEmployees = "hrm.employees"
	// ObjectImportTemplate guards the bulk import workbook export.
	ObjectImportTemplate = "hrm.import_template"
)

const modelText = `
[request_definition]
r = sub, dom, obj, act, attrs

[policy_definition]
p = sub, dom, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.dom == "*" || r.dom == p.dom) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

func newModel() (model.Model, error) {
	return model.NewModelFromString(modelText)
}

// DefaultPolicy grants every role except TEAM_MEMBER full employee access.
// TEAM_MEMBER may only view.
func DefaultPolicy() [][]string {
	rules := make([][]string, 0, len(rolescope.Roles)*3)
	for _, role := range rolescope.Roles {
		sub := SubjectForRole(role.String())
		rules = append(rules, []string{sub, DomainHRM, ObjectEmployees, "view"})
		if role == rolescope.RoleTeamMember {
			continue
		}
		rules = append(rules,
			[]string{sub, DomainHRM, ObjectEmployees, "create"},
			[]string{sub, DomainHRM, ObjectEmployees, "update"},
			[]string{sub, DomainHRM, ObjectImportTemplate, "export"},
		)
	}
	return rules
}
