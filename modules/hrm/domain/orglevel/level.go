// Package orglevel models the four-level organizational hierarchy
// (segment, sub-segment, project, team) used by employee assignment.
package orglevel

import "fmt"

type Level int

const (
	Segment Level = iota
	SubSegment
	Project
	Team
)

// Count is the number of hierarchy levels.
const Count = 4

var All = [Count]Level{Segment, SubSegment, Project, Team}

var (
	keys   = [Count]string{"segment", "sub_segment", "project", "team"}
	labels = [Count]string{"Segment", "Sub-Segment", "Project", "Team"}
	names  = [Count]string{"Segment", "SubSegment", "Project", "Team"}
)

func (l Level) Valid() bool {
	return l >= Segment && l <= Team
}

// Parent returns the parent level. The second value is false for Segment.
func (l Level) Parent() (Level, bool) {
	if l <= Segment || !l.Valid() {
		return l, false
	}
	return l - 1, true
}

// Child returns the child level. The second value is false for Team.
func (l Level) Child() (Level, bool) {
	if l >= Team || !l.Valid() {
		return l, false
	}
	return l + 1, true
}

// Descendants returns every level below l, nearest first.
func (l Level) Descendants() []Level {
	if !l.Valid() {
		return nil
	}
	out := make([]Level, 0, Count)
	for d := l + 1; d <= Team; d++ {
		out = append(out, d)
	}
	return out
}

// Key is the snake_case wire name ("sub_segment").
func (l Level) Key() string {
	if !l.Valid() {
		return ""
	}
	return keys[l]
}

// Label is the human readable name ("Sub-Segment").
func (l Level) Label() string {
	if !l.Valid() {
		return ""
	}
	return labels[l]
}

func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return names[l]
}

// ParseKey accepts a wire key ("sub_segment"), a Go name ("SubSegment") or
// a kebab-case form ("sub-segment").
func ParseKey(raw string) (Level, error) {
	for _, l := range All {
		if raw == keys[l] || raw == names[l] || raw == kebab(keys[l]) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("orglevel: unknown level %q", raw)
}

func kebab(key string) string {
	b := []byte(key)
	for i := range b {
		if b[i] == '_' {
			b[i] = '-'
		}
	}
	return string(b)
}
