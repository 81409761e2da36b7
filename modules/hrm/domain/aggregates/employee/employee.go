package employee

// Details are the personal fields of an employee record.
type Details struct {
	EmployeeCode string `json:"employee_code"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Designation  string `json:"designation,omitempty"`
}

// Assignment places an employee in the organizational hierarchy. TeamID may
// be nil on legacy records but is required on every new submission.
type Assignment struct {
	SegmentID    *int64 `json:"segment_id"`
	SubSegmentID *int64 `json:"sub_segment_id"`
	ProjectID    *int64 `json:"project_id"`
	TeamID       *int64 `json:"team_id"`
}

// Record is an employee as returned by the remote API.
type Record struct {
	ID int64 `json:"id"`
	Details
	Assignment
}

// Input is the body of a create or update request.
type Input struct {
	Details
	Assignment
}

// IDs returns the assignment segment first.
func (a Assignment) IDs() [4]*int64 {
	return [4]*int64{a.SegmentID, a.SubSegmentID, a.ProjectID, a.TeamID}
}

func AssignmentFromIDs(ids [4]*int64) Assignment {
	return Assignment{
		SegmentID:    ids[0],
		SubSegmentID: ids[1],
		ProjectID:    ids[2],
		TeamID:       ids[3],
	}
}
