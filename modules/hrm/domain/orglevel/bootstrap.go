package orglevel

// BootstrapEmployee carries the hierarchy ids of the employee being edited.
type BootstrapEmployee struct {
	ID           int64  `json:"id"`
	SegmentID    *int64 `json:"segment_id"`
	SubSegmentID *int64 `json:"sub_segment_id"`
	ProjectID    *int64 `json:"project_id"`
	TeamID       *int64 `json:"team_id"`
}

type BootstrapOptions struct {
	Segments    []RawRecord `json:"segments"`
	SubSegments []RawRecord `json:"sub_segments"`
	Projects    []RawRecord `json:"projects"`
	Teams       []RawRecord `json:"teams"`
}

// BootstrapPayload is the edit-mode response that carries every level's
// options and the employee's selections in one read.
type BootstrapPayload struct {
	Employee BootstrapEmployee `json:"employee"`
	Options  BootstrapOptions  `json:"options"`
}

func (e BootstrapEmployee) Selections() [Count]*int64 {
	return [Count]*int64{
		CloneID(e.SegmentID),
		CloneID(e.SubSegmentID),
		CloneID(e.ProjectID),
		CloneID(e.TeamID),
	}
}

func (o BootstrapOptions) ByLevel() [Count][]RawRecord {
	return [Count][]RawRecord{o.Segments, o.SubSegments, o.Projects, o.Teams}
}

// Normalize converts every level's raw records into OptionRecords.
func (o BootstrapOptions) Normalize() ([Count][]OptionRecord, error) {
	var out [Count][]OptionRecord
	raw := o.ByLevel()
	for _, l := range All {
		opts, err := NormalizeOptions(l, raw[l])
		if err != nil {
			return out, err
		}
		out[l] = opts
	}
	return out, nil
}
