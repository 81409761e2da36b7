// Package cascade resolves the Segment -> Sub-Segment -> Project -> Team
// dropdown chain of the employee form: dependent option fetches, clearing of
// invalidated descendants, role locks and preselection, and the two edit-mode
// fast paths.
package cascade

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/competency-hub/modules/hrm/domain/orglevel"
	"github.com/iota-uz/competency-hub/pkg/eventbus"
	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

// Directory is the scope directory the resolver reads options from.
type Directory interface {
	Segments(ctx context.Context) ([]orglevel.OptionRecord, error)
	SubSegments(ctx context.Context, segmentID int64) ([]orglevel.OptionRecord, error)
	Projects(ctx context.Context, subSegmentID int64) ([]orglevel.OptionRecord, error)
	Teams(ctx context.Context, projectID int64) ([]orglevel.OptionRecord, error)
}

type Options struct {
	Directory Directory
	RoleScope rolescope.Context
	Mode      Mode
	// Events receives a *ChangedEvent after every applied update. Handlers
	// run synchronously and must not call mutating resolver methods.
	Events eventbus.EventBus
	Logger *logrus.Logger
}

type fetchCmd struct {
	level  orglevel.Level
	parent *int64
	token  uint64
}

// Resolver owns the cascade state of one form session. All state changes go
// through update, which applies one reducer under the lock, runs the
// parent-changed reaction, and publishes the resulting snapshot in order.
type Resolver struct {
	dir   Directory
	rc    rolescope.Context
	locks [orglevel.Count]bool
	bus   eventbus.EventBus
	log   *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	settled  *sync.Cond
	pubMu    sync.Mutex
	st       state
	pending  []fetchCmd
	inflight int
	version  uint64
	closed   bool
}

func New(opts Options) (*Resolver, error) {
	if opts.Directory == nil {
		return nil, errors.New("cascade: directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Resolver{
		dir:    opts.Directory,
		rc:     opts.RoleScope,
		locks:  opts.RoleScope.Locks(),
		bus:    opts.Events,
		log:    logger.WithFields(logrus.Fields{"component": "cascade", "role": opts.RoleScope.Role}),
		ctx:    ctx,
		cancel: cancel,
	}
	r.settled = sync.NewCond(&r.mu)
	if opts.Mode == ModeCreate {
		if err := r.update("mount", func(st *state) error {
			r.applyPreselection(st)
			r.requestFetch(st, orglevel.Segment, nil)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Locked reports the role lock of each level.
func (r *Resolver) Locked() [orglevel.Count]bool {
	return r.locks
}

func (r *Resolver) RoleScope() rolescope.Context {
	return r.rc
}

func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Wait blocks until no fetch is in flight. Fetches issued by other callers
// while waiting extend the wait. Safe for concurrent use.
func (r *Resolver) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waitSettledLocked()
}

func (r *Resolver) waitSettledLocked() {
	for r.inflight > 0 {
		r.settled.Wait()
	}
}

// Close cancels outstanding fetches, waits for them to drain and stops
// publishing. Later calls return immediately.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cancel()
	r.waitSettledLocked()
}

func (r *Resolver) SelectSegment(id *int64) error    { return r.Select(orglevel.Segment, id) }
func (r *Resolver) SelectSubSegment(id *int64) error { return r.Select(orglevel.SubSegment, id) }
func (r *Resolver) SelectProject(id *int64) error    { return r.Select(orglevel.Project, id) }
func (r *Resolver) SelectTeam(id *int64) error       { return r.Select(orglevel.Team, id) }

// Select is the user-driven mutator. A locked level returns ErrLevelLocked
// and leaves the state untouched. While a bootstrap or sequential edit load
// is running it returns ErrBusy, also without touching the state. Otherwise
// every descendant selection and loaded-for guard is cleared and cascading is
// re-enabled.
func (r *Resolver) Select(level orglevel.Level, id *int64) error {
	if !level.Valid() {
		return fmt.Errorf("cascade: invalid level %d", int(level))
	}
	return r.update("select:"+level.Key(), func(st *state) error {
		if r.locks[level] {
			return ErrLevelLocked
		}
		if st.busy() {
			return ErrBusy
		}
		st.selected[level] = orglevel.CloneID(id)
		for _, d := range level.Descendants() {
			st.selected[d] = nil
			st.loadedFor[d] = nil
		}
		st.suppress = false
		return nil
	})
}

// Reset clears every unlocked selection and all loaded-for guards, re-enables
// cascading and re-applies role preselection. Like Select it returns ErrBusy
// during a bootstrap or sequential edit load.
func (r *Resolver) Reset() error {
	return r.update("reset", func(st *state) error {
		if st.busy() {
			return ErrBusy
		}
		for _, l := range orglevel.All {
			if !r.locks[l] {
				st.selected[l] = nil
			}
			st.loadedFor[l] = nil
		}
		st.suppress = false
		r.applyPreselection(st)
		return nil
	})
}

// SuppressCascades pauses the parent-changed reaction until the next manual
// selection, Reset, or the end of a sequential load.
func (r *Resolver) SuppressCascades() error {
	return r.update("suppress", func(st *state) error {
		st.suppress = true
		return nil
	})
}

// Reobserve runs the parent-changed reaction for every level as if each
// parent had just been observed again. Levels whose options are already
// current for their parent issue no fetch.
func (r *Resolver) Reobserve() error {
	return r.apply("reobserve", true, func(*state) error { return nil })
}

func (r *Resolver) applyPreselection(st *state) {
	for _, l := range orglevel.All {
		if !r.locks[l] {
			continue
		}
		if v := r.rc.ScopeValue(int(l)); v != nil {
			st.selected[l] = v
		}
	}
}

// requestFetch invalidates any outstanding fetch for level and queues a new one.
func (r *Resolver) requestFetch(st *state, level orglevel.Level, parent *int64) {
	st.tokens[level]++
	st.options[level] = nil
	st.loading[level] = true
	r.pending = append(r.pending, fetchCmd{
		level:  level,
		parent: orglevel.CloneID(parent),
		token:  st.tokens[level],
	})
}

// react is the parent-changed reaction for SubSegment, Project and Team.
func (r *Resolver) react(st *state, force bool) {
	for _, l := range orglevel.All[1:] {
		parentLevel, _ := l.Parent()
		parent := st.selected[parentLevel]
		if !force && orglevel.SameID(parent, st.observed[l]) {
			continue
		}
		st.observed[l] = orglevel.CloneID(parent)
		if st.suppress {
			continue
		}
		if parent == nil {
			st.tokens[l]++
			st.options[l] = nil
			st.selected[l] = nil
			st.loadedFor[l] = nil
			st.loading[l] = false
			continue
		}
		if orglevel.SameID(parent, st.loadedFor[l]) && len(st.options[l]) > 0 {
			recordGuardSkip(l)
			continue
		}
		r.requestFetch(st, l, parent)
	}
}

func (r *Resolver) refreshPhase(st *state) {
	if st.busy() {
		return
	}
	if st.anyLoading() {
		st.phase = PhaseFetchingChild
		return
	}
	st.phase = PhaseIdle
}

func (r *Resolver) update(cause string, fn func(st *state) error) error {
	return r.apply(cause, false, fn)
}

func (r *Resolver) apply(cause string, force bool, fn func(st *state) error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if err := fn(&r.st); err != nil {
		r.pending = nil
		r.mu.Unlock()
		return err
	}
	r.react(&r.st, force)
	r.refreshPhase(&r.st)

	cmds := r.pending
	r.pending = nil
	r.inflight += len(cmds)
	r.version++
	snap := r.snapshotLocked()

	// pubMu is taken before mu is released so snapshots are published in version order.
	r.pubMu.Lock()
	r.mu.Unlock()
	if r.bus != nil {
		r.bus.Publish(&ChangedEvent{Cause: cause, Snapshot: snap})
	}
	r.pubMu.Unlock()

	for _, cmd := range cmds {
		go r.runFetch(cmd)
	}
	return nil
}

func (r *Resolver) snapshotLocked() Snapshot {
	s := Snapshot{
		Version:         r.version,
		Phase:           r.st.phase,
		SuppressCascade: r.st.suppress,
		Locked:          r.locks,
		Loading:         r.st.loading,
	}
	for _, l := range orglevel.All {
		s.Selected[l] = orglevel.CloneID(r.st.selected[l])
		s.Options[l] = orglevel.CloneOptions(r.st.options[l])
		s.OptionsLoadedFor[l] = orglevel.CloneID(r.st.loadedFor[l])
	}
	return s
}

func (r *Resolver) runFetch(cmd fetchCmd) {
	defer r.fetchDone()
	opts, err := listOptions(r.ctx, r.dir, cmd.level, cmd.parent)
	if err != nil {
		err = &FetchError{Level: cmd.level, ParentID: cmd.parent, Err: err}
	}
	_ = r.update("fetched:"+cmd.level.Key(), func(st *state) error {
		if st.tokens[cmd.level] != cmd.token {
			recordFetch(cmd.level, "stale")
			r.log.WithFields(fetchFields(cmd.level, cmd.parent)).Debug("discarding stale option response")
			return errStale
		}
		r.applyFetchResult(st, cmd.level, cmd.parent, opts, err)
		return nil
	})
}

func (r *Resolver) fetchDone() {
	r.mu.Lock()
	r.inflight--
	if r.inflight == 0 {
		r.settled.Broadcast()
	}
	r.mu.Unlock()
}

// applyFetchResult installs a fetch outcome. A failure leaves the level with
// an empty option list and no guard so the next observation retries.
func (r *Resolver) applyFetchResult(st *state, level orglevel.Level, parent *int64, opts []orglevel.OptionRecord, err error) {
	st.loading[level] = false
	if err != nil {
		recordFetch(level, "error")
		r.log.WithFields(fetchFields(level, parent)).WithError(err).Warn("option fetch failed")
		st.options[level] = []orglevel.OptionRecord{}
		st.loadedFor[level] = nil
		return
	}
	recordFetch(level, "ok")
	if opts == nil {
		opts = []orglevel.OptionRecord{}
	}
	st.options[level] = opts
	st.loadedFor[level] = orglevel.CloneID(parent)
}

func fetchFields(level orglevel.Level, parent *int64) logrus.Fields {
	fields := logrus.Fields{"level": level.Key()}
	if parent != nil {
		fields["parent_id"] = *parent
	}
	return fields
}

func listOptions(ctx context.Context, dir Directory, level orglevel.Level, parent *int64) ([]orglevel.OptionRecord, error) {
	if level == orglevel.Segment {
		return dir.Segments(ctx)
	}
	if parent == nil {
		return nil, fmt.Errorf("cascade: %s options need a parent id", level.Key())
	}
	switch level {
	case orglevel.SubSegment:
		return dir.SubSegments(ctx, *parent)
	case orglevel.Project:
		return dir.Projects(ctx, *parent)
	case orglevel.Team:
		return dir.Teams(ctx, *parent)
	default:
		return nil, fmt.Errorf("cascade: invalid level %d", int(level))
	}
}
