// Package xlsx builds the bulk employee import workbook.
package xlsx

import (
	"context"
	"io"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/competency-hub/modules/hrm/domain/orglevel"
	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

const EmployeesSheet = "Employees"

// EmployeeHeaders is the header row of the input sheet, in column order.
var EmployeeHeaders = []string{
	"employee_code",
	"full_name",
	"email",
	"phone",
	"designation",
	"segment_id",
	"sub_segment_id",
	"project_id",
	"team_id",
}

var lookupHeaders = []any{"id", "name", "parent_id"}

var lookupSheets = [orglevel.Count]string{"Segments", "SubSegments", "Projects", "Teams"}

// LookupSheet returns the name of the lookup sheet for level.
func LookupSheet(level orglevel.Level) string {
	return lookupSheets[level]
}

// Source is the set of scope directory reads the template walks.
type Source interface {
	Segments(ctx context.Context) ([]orglevel.OptionRecord, error)
	SubSegments(ctx context.Context, segmentID int64) ([]orglevel.OptionRecord, error)
	Projects(ctx context.Context, subSegmentID int64) ([]orglevel.OptionRecord, error)
	Teams(ctx context.Context, projectID int64) ([]orglevel.OptionRecord, error)
}

// Hierarchy is every option visible to a role, grouped by level.
type Hierarchy [orglevel.Count][]orglevel.OptionRecord

// WalkHierarchy collects the options the role can assign. A locked level with
// a scope value is narrowed to that single option; its siblings and their
// subtrees are skipped.
func WalkHierarchy(ctx context.Context, src Source, rc rolescope.Context) (Hierarchy, error) {
	var h Hierarchy
	locks := rc.Locks()

	segments, err := src.Segments(ctx)
	if err != nil {
		return h, errors.Wrap(err, "list segments")
	}
	parents := narrow(segments, locks[orglevel.Segment], rc.ScopeValue(int(orglevel.Segment)))
	h[orglevel.Segment] = parents

	for _, level := range orglevel.Segment.Descendants() {
		var next []orglevel.OptionRecord
		for _, parent := range parents {
			children, err := listChildren(ctx, src, level, parent.ID)
			if err != nil {
				return h, errors.Wrapf(err, "list %s options for %d", level.Key(), parent.ID)
			}
			children = orglevel.CloneOptions(children)
			for i := range children {
				if children[i].ParentID == nil {
					children[i].ParentID = orglevel.IDPtr(parent.ID)
				}
			}
			next = append(next, children...)
		}
		next = narrow(next, locks[level], rc.ScopeValue(int(level)))
		h[level] = next
		parents = next
	}
	return h, nil
}

func narrow(options []orglevel.OptionRecord, locked bool, scope *int64) []orglevel.OptionRecord {
	if !locked || scope == nil {
		return options
	}
	out := make([]orglevel.OptionRecord, 0, 1)
	for _, o := range options {
		if o.ID == *scope {
			out = append(out, o)
		}
	}
	return out
}

func listChildren(ctx context.Context, src Source, level orglevel.Level, parentID int64) ([]orglevel.OptionRecord, error) {
	switch level {
	case orglevel.SubSegment:
		return src.SubSegments(ctx, parentID)
	case orglevel.Project:
		return src.Projects(ctx, parentID)
	case orglevel.Team:
		return src.Teams(ctx, parentID)
	default:
		return nil, errors.Errorf("no child listing for %s", level.Key())
	}
}

type TemplateOptions struct {
	Source    Source
	RoleScope rolescope.Context
	Logger    *logrus.Logger
}

// ImportTemplate writes the import workbook for one acting role.
type ImportTemplate struct {
	src Source
	rc  rolescope.Context
	log *logrus.Entry
}

func NewImportTemplate(opts TemplateOptions) *ImportTemplate {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ImportTemplate{
		src: opts.Source,
		rc:  opts.RoleScope,
		log: logger.WithField("component", "import_template"),
	}
}

// Build walks the hierarchy and returns the workbook. The caller closes it.
func (t *ImportTemplate) Build(ctx context.Context) (*excelize.File, error) {
	h, err := WalkHierarchy(ctx, t.src, t.rc)
	if err != nil {
		return nil, err
	}
	f, err := newWorkbook(h, t.prefill(h))
	if err != nil {
		return nil, err
	}
	t.log.WithFields(logrus.Fields{
		"role":         t.rc.Role.String(),
		"segments":     len(h[orglevel.Segment]),
		"sub_segments": len(h[orglevel.SubSegment]),
		"projects":     len(h[orglevel.Project]),
		"teams":        len(h[orglevel.Team]),
	}).Info("import template built")
	return f, nil
}

// WriteTo streams the workbook to w.
func (t *ImportTemplate) WriteTo(ctx context.Context, w io.Writer) error {
	f, err := t.Build(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

// SaveAs writes the workbook to path.
func (t *ImportTemplate) SaveAs(ctx context.Context, path string) error {
	f, err := t.Build(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "save workbook %s", path)
	}
	return nil
}

// prefill returns the locked assignment columns for the first input row.
func (t *ImportTemplate) prefill(h Hierarchy) [orglevel.Count]*int64 {
	var out [orglevel.Count]*int64
	locks := t.rc.Locks()
	for _, level := range orglevel.All {
		if locks[level] && len(h[level]) == 1 {
			out[level] = orglevel.IDPtr(h[level][0].ID)
		}
	}
	return out
}

func newWorkbook(h Hierarchy, prefill [orglevel.Count]*int64) (*excelize.File, error) {
	f := excelize.NewFile()
	fail := func(err error, msg string) (*excelize.File, error) {
		_ = f.Close()
		return nil, errors.Wrap(err, msg)
	}

	if err := f.SetSheetName("Sheet1", EmployeesSheet); err != nil {
		return fail(err, "rename input sheet")
	}
	header := make([]any, len(EmployeeHeaders))
	for i, v := range EmployeeHeaders {
		header[i] = v
	}
	if err := f.SetSheetRow(EmployeesSheet, "A1", &header); err != nil {
		return fail(err, "write input header")
	}
	if err := f.SetPanes(EmployeesSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return fail(err, "freeze input header")
	}
	for _, level := range orglevel.All {
		if prefill[level] == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(assignmentColumn(level), 2)
		if err != nil {
			return fail(err, "prefill cell")
		}
		if err := f.SetCellValue(EmployeesSheet, cell, *prefill[level]); err != nil {
			return fail(err, "prefill "+level.Key())
		}
	}

	for _, level := range orglevel.All {
		name := lookupSheets[level]
		if _, err := f.NewSheet(name); err != nil {
			return fail(err, "create sheet "+name)
		}
		if err := f.SetSheetRow(name, "A1", &lookupHeaders); err != nil {
			return fail(err, "write "+name+" header")
		}
		for i, o := range h[level] {
			row := []any{o.ID, o.Name}
			if o.ParentID != nil {
				row = append(row, *o.ParentID)
			}
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return fail(err, "lookup cell")
			}
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				return fail(err, "write "+name+" row")
			}
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// assignmentColumn is the 1-based column of level's id in the input sheet.
func assignmentColumn(level orglevel.Level) int {
	return len(EmployeeHeaders) - orglevel.Count + int(level) + 1
}
