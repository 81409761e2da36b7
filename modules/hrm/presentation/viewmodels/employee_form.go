package viewmodels

import (
	"github.com/iota-uz/competency-hub/modules/hrm/domain/aggregates/employee"
	"github.com/iota-uz/competency-hub/modules/hrm/services/cascade"
)

// EmployeeForm is the JSON shape of an open form session.
type EmployeeForm struct {
	SessionID  string            `json:"session_id"`
	Mode       string            `json:"mode"`
	EmployeeID *int64            `json:"employee_id,omitempty"`
	Phase      string            `json:"phase"`
	Version    uint64            `json:"version"`
	Details    employee.Details  `json:"details"`
	Org        []OrgSelect       `json:"org"`
	Errors     map[string]string `json:"errors,omitempty"`
}

func NewEmployeeForm(sessionID string, employeeID *int64, details employee.Details, s cascade.Snapshot) EmployeeForm {
	mode := "create"
	if employeeID != nil {
		mode = "edit"
	}
	return EmployeeForm{
		SessionID:  sessionID,
		Mode:       mode,
		EmployeeID: employeeID,
		Phase:      s.Phase.String(),
		Version:    s.Version,
		Details:    details,
		Org:        OrgSelects(s),
	}
}
