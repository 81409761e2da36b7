package cascade

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/iota-uz/competency-hub/modules/hrm/domain/aggregates/employee"
	"github.com/iota-uz/competency-hub/modules/hrm/domain/orglevel"
)

// BootstrapSource serves the single-read edit payload.
type BootstrapSource interface {
	Bootstrap(ctx context.Context, employeeID int64) (orglevel.BootstrapPayload, error)
}

// SetFromBootstrap installs every level's options and selections in one
// update. Raw records are normalized first; a normalization error leaves the
// state untouched. Cascading stays suppressed afterwards until the user
// interacts with a level or calls Reset.
func (r *Resolver) SetFromBootstrap(opts orglevel.BootstrapOptions, selections [orglevel.Count]*int64) error {
	normalized, err := opts.Normalize()
	if err != nil {
		return errors.Wrap(err, "normalize bootstrap options")
	}
	return r.update("bootstrap", func(st *state) error {
		if st.phase == PhaseSequentialLoading {
			return ErrBusy
		}
		installBootstrap(st, normalized, selections)
		return nil
	})
}

func installBootstrap(st *state, options [orglevel.Count][]orglevel.OptionRecord, selections [orglevel.Count]*int64) {
	st.suppress = true
	for _, l := range orglevel.All {
		st.tokens[l]++
		st.loading[l] = false
		st.options[l] = options[l]
		st.selected[l] = orglevel.CloneID(selections[l])
		st.loadedFor[l] = nil
		if parent, ok := l.Parent(); ok {
			st.loadedFor[l] = orglevel.CloneID(selections[parent])
		}
	}
	st.phase = PhaseIdle
}

// LoadFromBootstrap suppresses cascading, reads the bootstrap payload for the
// employee and installs it. On failure the suppression is lifted and the
// resolver returns to Idle so the caller can fall back to LoadForEdit.
func (r *Resolver) LoadFromBootstrap(ctx context.Context, src BootstrapSource, employeeID int64) (orglevel.BootstrapEmployee, error) {
	if err := r.update("bootstrap:start", func(st *state) error {
		if st.busy() {
			return ErrBusy
		}
		st.phase = PhaseBootstrapping
		st.suppress = true
		for _, l := range orglevel.All {
			st.tokens[l]++
			st.loading[l] = false
		}
		return nil
	}); err != nil {
		return orglevel.BootstrapEmployee{}, err
	}

	payload, err := src.Bootstrap(ctx, employeeID)
	var normalized [orglevel.Count][]orglevel.OptionRecord
	if err == nil {
		normalized, err = payload.Options.Normalize()
	}
	if err != nil {
		r.log.WithField("employee_id", employeeID).WithError(err).Warn("assignment bootstrap failed")
		_ = r.update("bootstrap:failed", func(st *state) error {
			st.phase = PhaseIdle
			st.suppress = false
			return nil
		})
		return orglevel.BootstrapEmployee{}, errors.Wrapf(err, "bootstrap employee %d", employeeID)
	}

	selections := payload.Employee.Selections()
	if err := r.update("bootstrap", func(st *state) error {
		installBootstrap(st, normalized, selections)
		return nil
	}); err != nil {
		return orglevel.BootstrapEmployee{}, err
	}
	return payload.Employee, nil
}

// LoadForEdit applies an existing assignment level by level. Each child
// fetch starts only after its parent's options and selection are applied.
// Loading stops at the first nil target; the level below it keeps its
// fetched options with nothing selected. Cascading is suppressed for the
// duration and re-enabled when the load ends, including on failure.
func (r *Resolver) LoadForEdit(ctx context.Context, target employee.Assignment) (err error) {
	ids := target.IDs()
	fetchSegments := false
	if err := r.update("load_for_edit:start", func(st *state) error {
		if st.busy() {
			return ErrBusy
		}
		st.phase = PhaseSequentialLoading
		st.suppress = true
		for _, l := range orglevel.All {
			st.tokens[l]++
			st.loading[l] = false
			st.selected[l] = nil
			if l == orglevel.Segment {
				continue
			}
			st.options[l] = nil
			st.loadedFor[l] = nil
		}
		if len(st.options[orglevel.Segment]) == 0 {
			fetchSegments = true
			st.loading[orglevel.Segment] = true
		}
		return nil
	}); err != nil {
		return err
	}
	defer func() {
		finishErr := r.update("load_for_edit:done", func(st *state) error {
			st.phase = PhaseIdle
			st.suppress = false
			return nil
		})
		if err == nil {
			err = finishErr
		}
	}()

	if fetchSegments {
		if err := r.loadLevel(ctx, orglevel.Segment, nil, nil); err != nil {
			return err
		}
	}
	if err := r.update("load_for_edit:select:segment", func(st *state) error {
		st.selected[orglevel.Segment] = orglevel.CloneID(ids[orglevel.Segment])
		return nil
	}); err != nil {
		return err
	}

	for _, l := range orglevel.All[1:] {
		parent, _ := l.Parent()
		if ids[parent] == nil {
			break
		}
		if err := r.update("load_for_edit:fetch:"+l.Key(), func(st *state) error {
			st.loading[l] = true
			return nil
		}); err != nil {
			return err
		}
		if err := r.loadLevel(ctx, l, ids[parent], ids[l]); err != nil {
			return err
		}
	}
	return nil
}

// loadLevel fetches one level on the caller's goroutine and applies the
// options and the target selection together.
func (r *Resolver) loadLevel(ctx context.Context, level orglevel.Level, parent, selection *int64) error {
	opts, fetchErr := listOptions(ctx, r.dir, level, parent)
	if fetchErr != nil {
		fetchErr = &FetchError{Level: level, ParentID: orglevel.CloneID(parent), Err: fetchErr}
	}
	err := r.update("load_for_edit:loaded:"+level.Key(), func(st *state) error {
		r.applyFetchResult(st, level, parent, opts, fetchErr)
		if fetchErr == nil && level != orglevel.Segment {
			st.selected[level] = orglevel.CloneID(selection)
		}
		return nil
	})
	if fetchErr != nil {
		return fetchErr
	}
	return err
}
