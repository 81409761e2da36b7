package orglevel

// OptionRecord is one selectable entry at a hierarchy level. ParentID is
// provenance only; the hierarchy is always derived from the parent selection.
type OptionRecord struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// ContainsID reports whether id is among options.
func ContainsID(options []OptionRecord, id int64) bool {
	for _, o := range options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// CloneOptions returns a deep copy so snapshots never alias live state.
func CloneOptions(options []OptionRecord) []OptionRecord {
	if options == nil {
		return nil
	}
	out := make([]OptionRecord, len(options))
	for i, o := range options {
		out[i] = OptionRecord{ID: o.ID, Name: o.Name, ParentID: CloneID(o.ParentID)}
	}
	return out
}

func CloneID(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// SameID compares two nullable ids by value.
func SameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func IDPtr(v int64) *int64 {
	return &v
}
