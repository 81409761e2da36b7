package cascade

import (
	"github.com/iota-uz/competency-hub/modules/hrm/domain/orglevel"
)

type Phase int

const (
	PhaseIdle Phase = iota
	// PhaseFetchingChild means at least one reactive option fetch is outstanding.
	PhaseFetchingChild
	// PhaseBootstrapping covers the single edit-mode bootstrap read.
	PhaseBootstrapping
	// PhaseSequentialLoading covers LoadForEdit.
	PhaseSequentialLoading
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetchingChild:
		return "fetching_child"
	case PhaseBootstrapping:
		return "bootstrapping"
	case PhaseSequentialLoading:
		return "sequential_loading"
	default:
		return "unknown"
	}
}

// Mode selects the entry flow of a form session.
type Mode int

const (
	// ModeCreate mounts with segment options and role preselection.
	ModeCreate Mode = iota
	// ModeEdit mounts empty; LoadForEdit or a bootstrap fills it.
	ModeEdit
)

type state struct {
	selected  [orglevel.Count]*int64
	options   [orglevel.Count][]orglevel.OptionRecord
	loading   [orglevel.Count]bool
	loadedFor [orglevel.Count]*int64
	// observed[l] is the parent selection last seen by level l's reaction.
	observed [orglevel.Count]*int64
	tokens   [orglevel.Count]uint64
	suppress bool
	phase    Phase
}

func (st *state) busy() bool {
	return st.phase == PhaseBootstrapping || st.phase == PhaseSequentialLoading
}

func (st *state) anyLoading() bool {
	for _, l := range st.loading {
		if l {
			return true
		}
	}
	return false
}

// Snapshot is an immutable copy of the resolver state.
type Snapshot struct {
	Version          uint64
	Phase            Phase
	Selected         [orglevel.Count]*int64
	Options          [orglevel.Count][]orglevel.OptionRecord
	Loading          [orglevel.Count]bool
	OptionsLoadedFor [orglevel.Count]*int64
	SuppressCascade  bool
	Locked           [orglevel.Count]bool
}

// Disabled reports whether a level accepts interaction: it is locked, or its
// parent has no selection yet. Segment is never parent-gated.
func (s Snapshot) Disabled(level orglevel.Level) bool {
	if s.Locked[level] {
		return true
	}
	parent, ok := level.Parent()
	return ok && s.Selected[parent] == nil
}

// SelectedIDs returns a copy of the four selections, segment first.
func (s Snapshot) SelectedIDs() [orglevel.Count]*int64 {
	var out [orglevel.Count]*int64
	for i, v := range s.Selected {
		out[i] = orglevel.CloneID(v)
	}
	return out
}

// ChangedEvent is published on the event bus after every applied update.
type ChangedEvent struct {
	Cause    string
	Snapshot Snapshot
}
