package viewmodels

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/iota-uz/competency-hub/modules/hrm/domain/orglevel"
	"github.com/iota-uz/competency-hub/modules/hrm/services/cascade"
)

type Option struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

// OrgSelect is one hierarchy dropdown.
type OrgSelect struct {
	Level       string   `json:"level"`
	Label       string   `json:"label"`
	Placeholder string   `json:"placeholder"`
	Options     []Option `json:"options"`
	Disabled    bool     `json:"disabled"`
	Locked      bool     `json:"locked"`
	Loading     bool     `json:"loading"`
	SelectedID  *int64   `json:"selected_id"`
	// UnknownSelection is set when SelectedID is not among Options, for
	// example a role scope pointing at a deleted team. No option is marked
	// selected in that case.
	UnknownSelection bool `json:"unknown_selection"`
}

// OrgSelects renders the four dropdowns from a resolver snapshot.
func OrgSelects(s cascade.Snapshot) []OrgSelect {
	out := make([]OrgSelect, 0, orglevel.Count)
	for _, l := range orglevel.All {
		out = append(out, NewOrgSelect(s, l))
	}
	return out
}

func NewOrgSelect(s cascade.Snapshot, level orglevel.Level) OrgSelect {
	sel := OrgSelect{
		Level:       level.Key(),
		Label:       level.Label(),
		Placeholder: placeholder(s, level),
		Options:     make([]Option, 0, len(s.Options[level])),
		Disabled:    s.Disabled(level),
		Locked:      s.Locked[level],
		Loading:     s.Loading[level],
		SelectedID:  orglevel.CloneID(s.Selected[level]),
	}
	found := false
	for _, o := range s.Options[level] {
		selected := sel.SelectedID != nil && *sel.SelectedID == o.ID
		found = found || selected
		sel.Options = append(sel.Options, Option{ID: o.ID, Name: o.Name, Selected: selected})
	}
	sel.UnknownSelection = sel.SelectedID != nil && !found && !sel.Loading
	return sel
}

func placeholder(s cascade.Snapshot, level orglevel.Level) string {
	if s.Loading[level] {
		return "Loading..."
	}
	if parent, ok := level.Parent(); ok && s.Selected[parent] == nil {
		return "Select " + parent.Label() + " first"
	}
	return "Select " + level.Label()
}

// FilterOptions keeps the options whose name fuzzily matches query, in their
// original order. An empty query keeps everything.
func FilterOptions(options []orglevel.OptionRecord, query string) []orglevel.OptionRecord {
	query = strings.TrimSpace(query)
	if query == "" {
		return orglevel.CloneOptions(options)
	}
	out := make([]orglevel.OptionRecord, 0, len(options))
	for _, o := range options {
		if fuzzy.MatchNormalizedFold(query, o.Name) {
			out = append(out, o)
		}
	}
	return out
}
