package cascade_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/competency-hub/modules/hrm/domain/aggregates/employee"
	"github.com/iota-uz/competency-hub/modules/hrm/domain/orglevel"
	"github.com/iota-uz/competency-hub/modules/hrm/services/cascade"
	"github.com/iota-uz/competency-hub/modules/hrm/services/cascade/cascadetest"
	"github.com/iota-uz/competency-hub/pkg/eventbus"
	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

var id = orglevel.IDPtr

func superAdmin() rolescope.Context {
	return rolescope.New(rolescope.RoleSuperAdmin, rolescope.Scope{})
}

func newResolver(t *testing.T, dir cascade.Directory, rc rolescope.Context, mode cascade.Mode) (*cascade.Resolver, *recorder) {
	t.Helper()
	bus := eventbus.NewEventPublisher(nil)
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	r, err := cascade.New(cascade.Options{
		Directory: dir,
		RoleScope: rc,
		Mode:      mode,
		Events:    bus,
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r, rec
}

type recorder struct {
	mu     sync.Mutex
	events []*cascade.ChangedEvent
}

func (r *recorder) handle(e *cascade.ChangedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []*cascade.ChangedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*cascade.ChangedEvent(nil), r.events...)
}

func ids(opts []orglevel.OptionRecord) []int64 {
	out := make([]int64, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.ID)
	}
	return out
}

func selected(s cascade.Snapshot) [4]any {
	var out [4]any
	for i, v := range s.Selected {
		if v != nil {
			out[i] = *v
		}
	}
	return out
}

func rawRecords(t *testing.T, src string) []orglevel.RawRecord {
	t.Helper()
	var out []orglevel.RawRecord
	require.NoError(t, json.Unmarshal([]byte(src), &out))
	return out
}

func bootstrapOptions(t *testing.T) orglevel.BootstrapOptions {
	t.Helper()
	return orglevel.BootstrapOptions{
		Segments:    rawRecords(t, `[{"segment_id":1,"segment_name":"Retail"},{"segment_id":2,"segment_name":"Wholesale"}]`),
		SubSegments: rawRecords(t, `[{"sub_segment_id":2,"sub_segment_name":"Online","segment_id":1}]`),
		Projects:    rawRecords(t, `[{"project_id":3,"project_name":"Checkout","sub_segment_id":2}]`),
		Teams:       rawRecords(t, `[{"team_id":4,"team_name":"Payments","project_id":3},{"team_id":5,"team_name":"Fraud","project_id":3}]`),
	}
}

func TestResolver_CreateModeMountsSegments(t *testing.T) {
	dir := cascadetest.NewDirectory().Set(orglevel.Segment, nil, 1, 2)
	r, _ := newResolver(t, dir, superAdmin(), cascade.ModeCreate)
	r.Wait()

	snap := r.Snapshot()
	assert.Equal(t, []int64{1, 2}, ids(snap.Options[orglevel.Segment]))
	assert.Equal(t, cascade.PhaseIdle, snap.Phase)
	assert.Equal(t, []string{"segment"}, dir.Calls())
	assert.False(t, snap.Disabled(orglevel.Segment))
	assert.True(t, snap.Disabled(orglevel.SubSegment))
}

func TestResolver_EditModeMountsEmpty(t *testing.T) {
	dir := cascadetest.NewDirectory()
	r, rec := newResolver(t, dir, superAdmin(), cascade.ModeEdit)
	r.Wait()

	assert.Empty(t, dir.Calls())
	assert.Empty(t, rec.all())
	assert.Equal(t, cascade.PhaseIdle, r.Snapshot().Phase)
}

func TestResolver_SuperAdminSelectionScenario(t *testing.T) {
	dir := cascadetest.NewDirectory().
		Set(orglevel.Segment, nil, 1).
		Set(orglevel.SubSegment, id(1), 2, 6).
		Set(orglevel.Project, id(2), 3)
	r, _ := newResolver(t, dir, superAdmin(), cascade.ModeCreate)
	r.Wait()

	require.NoError(t, r.SelectSegment(id(1)))
	r.Wait()
	snap := r.Snapshot()
	assert.Equal(t, []int64{2, 6}, ids(snap.Options[orglevel.SubSegment]))
	assert.Equal(t, [4]any{int64(1), nil, nil, nil}, selected(snap))
	assert.Equal(t, int64(1), *snap.OptionsLoadedFor[orglevel.SubSegment])

	require.NoError(t, r.SelectSubSegment(id(2)))
	r.Wait()
	snap = r.Snapshot()
	assert.Equal(t, []int64{3}, ids(snap.Options[orglevel.Project]))
	assert.Equal(t, [4]any{int64(1), int64(2), nil, nil}, selected(snap))
	assert.Empty(t, snap.Options[orglevel.Team])
	assert.Equal(t, []string{"segment", "sub_segment:1", "project:2"}, dir.Calls())
}

func TestResolver_CascadeClearsDescendantsBeforeFetchResolves(t *testing.T) {
	dir := cascadetest.NewDirectory().Set(orglevel.SubSegment, id(2), 8)
	r, rec := newResolver(t, dir, superAdmin(), cascade.ModeEdit)
	require.NoError(t, r.SetFromBootstrap(bootstrapOptions(t), [4]*int64{id(1), id(2), id(3), id(4)}))

	release := dir.Hold("sub_segment:2")
	require.NoError(t, r.SelectSegment(id(2)))

	snap := r.Snapshot()
	assert.Equal(t, [4]any{int64(2), nil, nil, nil}, selected(snap))
	for _, l := range orglevel.All[1:] {
		assert.Empty(t, snap.Options[l], l.String())
		assert.Nil(t, snap.OptionsLoadedFor[l], l.String())
	}
	assert.True(t, snap.Loading[orglevel.SubSegment])
	assert.Equal(t, cascade.PhaseFetchingChild, snap.Phase)
	assert.False(t, snap.SuppressCascade)

	release()
	r.Wait()
	snap = r.Snapshot()
	assert.Equal(t, []int64{8}, ids(snap.Options[orglevel.SubSegment]))
	assert.False(t, snap.Loading[orglevel.SubSegment])

	events := rec.all()
	require.NotEmpty(t, events)
	assert.Equal(t, "fetched:sub_segment", events[len(events)-1].Cause)
}

func TestResolver_LockedLevelsRejectMutators(t *testing.T) {
	dir := cascadetest.NewDirectory().Set(orglevel.Segment, nil, 5, 6)
	rc := rolescope.New(rolescope.RoleSegmentHead, rolescope.Scope{SegmentID: id(5)})
	r, _ := newResolver(t, dir, rc, cascade.ModeCreate)
	r.Wait()

	for _, v := range []*int64{id(6), nil, id(5)} {
		err := r.SelectSegment(v)
		require.ErrorIs(t, err, cascade.ErrLevelLocked)
		assert.Equal(t, int64(5), *r.Snapshot().Selected[orglevel.Segment])
	}
	require.NoError(t, r.SelectSubSegment(id(11)))
}

func TestResolver_ReobserveIsIdempotent(t *testing.T) {
	dir := cascadetest.NewDirectory().
		Set(orglevel.Segment, nil, 1).
		Set(orglevel.SubSegment, id(1), 2)
	r, _ := newResolver(t, dir, superAdmin(), cascade.ModeCreate)
	require.NoError(t, r.SelectSegment(id(1)))
	r.Wait()
	before := dir.Calls()

	require.NoError(t, r.Reobserve())
	require.NoError(t, r.Reobserve())
	r.Wait()

	assert.Equal(t, before, dir.Calls())
}

func TestResolver_FailedFetchRetriesOnReobserve(t *testing.T) {
	dir := cascadetest.NewDirectory().Set(orglevel.SubSegment, id(1), 2)
	dir.Fail("sub_segment:1", errors.New("directory unavailable"))
	r, _ := newResolver(t, dir, superAdmin(), cascade.ModeCreate)
	require.NoError(t, r.SelectSegment(id(1)))
	r.Wait()

	snap := r.Snapshot()
	assert.NotNil(t, snap.Options[orglevel.SubSegment])
	assert.Empty(t, snap.Options[orglevel.SubSegment])
	assert.Nil(t, snap.OptionsLoadedFor[orglevel.SubSegment])
	assert.False(t, snap.Loading[orglevel.SubSegment])
	assert.Equal(t, cascade.PhaseIdle, snap.Phase)

	dir.Fail("sub_segment:1", nil)
	require.NoError(t, r.Reobserve())
	r.Wait()
	assert.Equal(t, []int64{2}, ids(r.Snapshot().Options[orglevel.SubSegment]))
}

func TestResolver_StaleResponseIsDiscarded(t *testing.T) {
	dir := cascadetest.NewDirectory().
		Set(orglevel.SubSegment, id(1), 10).
		Set(orglevel.SubSegment, id(2), 20)
	r, _ := newResolver(t, dir, superAdmin(), cascade.ModeEdit)

	release := dir.Hold("sub_segment:1")
	require.NoError(t, r.SelectSegment(id(1)))
	require.NoError(t, r.SelectSegment(id(2)))
	release()
	r.Wait()

	snap := r.Snapshot()
	assert.Equal(t, []int64{20}, ids(snap.Options[orglevel.SubSegment]))
	assert.Equal(t, int64(2), *snap.OptionsLoadedFor[orglevel.SubSegment])
}

func TestResolver_SetFromBootstrapIsAtomic(t *testing.T) {
	dir := cascadetest.NewDirectory()
	r, rec := newResolver(t, dir, superAdmin(), cascade.ModeEdit)

	require.NoError(t, r.SetFromBootstrap(bootstrapOptions(t), [4]*int64{id(1), id(2), id(3), id(4)}))

	events := rec.all()
	require.Len(t, events, 1)
	snap := events[0].Snapshot
	assert.Equal(t, "bootstrap", events[0].Cause)
	assert.Equal(t, [4]any{int64(1), int64(2), int64(3), int64(4)}, selected(snap))
	assert.Equal(t, []int64{1, 2}, ids(snap.Options[orglevel.Segment]))
	assert.Equal(t, []int64{2}, ids(snap.Options[orglevel.SubSegment]))
	assert.Equal(t, []int64{3}, ids(snap.Options[orglevel.Project]))
	assert.Equal(t, []int64{4, 5}, ids(snap.Options[orglevel.Team]))
	assert.Equal(t, "Payments", snap.Options[orglevel.Team][0].Name)
	assert.Equal(t, int64(3), *snap.Options[orglevel.Team][0].ParentID)
	assert.True(t, snap.SuppressCascade)
	assert.Equal(t, cascade.PhaseIdle, snap.Phase)

	require.NoError(t, r.Reobserve())
	require.NoError(t, r.SelectTeam(id(5)))
	r.Wait()
	assert.Empty(t, dir.Calls())
	assert.False(t, r.Snapshot().SuppressCascade)
}

func TestResolver_SetFromBootstrapRejectsBadRecords(t *testing.T) {
	r, rec := newResolver(t, cascadetest.NewDirectory(), superAdmin(), cascade.ModeEdit)
	opts := bootstrapOptions(t)
	opts.Projects = rawRecords(t, `[{"project_name":"no id"}]`)

	require.Error(t, r.SetFromBootstrap(opts, [4]*int64{}))
	assert.Empty(t, rec.all())
	assert.Empty(t, r.Snapshot().Options[orglevel.Segment])
}

func TestResolver_LoadFromBootstrap(t *testing.T) {
	dir := cascadetest.NewDirectory()
	dir.SetBootstrap(42, orglevel.BootstrapPayload{
		Employee: orglevel.BootstrapEmployee{ID: 42, SegmentID: id(1), SubSegmentID: id(2), ProjectID: id(3), TeamID: id(4)},
		Options:  bootstrapOptions(t),
	})
	r, rec := newResolver(t, dir, superAdmin(), cascade.ModeEdit)

	emp, err := r.LoadFromBootstrap(context.Background(), dir, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), emp.ID)

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, cascade.PhaseBootstrapping, events[0].Snapshot.Phase)
	assert.Equal(t, [4]any{int64(1), int64(2), int64(3), int64(4)}, selected(events[1].Snapshot))
	assert.Equal(t, []string{"bootstrap:42"}, dir.Calls())
}

func TestResolver_LoadFromBootstrapFailureRestoresIdle(t *testing.T) {
	dir := cascadetest.NewDirectory()
	dir.FailBootstrap(errors.New("bootstrap endpoint down"))
	r, _ := newResolver(t, dir, superAdmin(), cascade.ModeEdit)

	_, err := r.LoadFromBootstrap(context.Background(), dir, 42)
	require.Error(t, err)
	snap := r.Snapshot()
	assert.Equal(t, cascade.PhaseIdle, snap.Phase)
	assert.False(t, snap.SuppressCascade)
}

func TestResolver_LoadForEditOrdersFetches(t *testing.T) {
	dir := cascadetest.NewDirectory().
		Set(orglevel.Segment, nil, 1).
		Set(orglevel.SubSegment, id(1), 2).
		Set(orglevel.Project, id(2), 3).
		Set(orglevel.Team, id(3), 4)
	r, _ := newResolver(t, dir, superAdmin(), cascade.ModeEdit)

	dir.OnCall = func(key string) {
		snap := r.Snapshot()
		assert.Equal(t, cascade.PhaseSequentialLoading, snap.Phase, key)
		switch key {
		case "sub_segment:1":
			assert.Equal(t, int64(1), *snap.Selected[orglevel.Segment])
			assert.Equal(t, []int64{1}, ids(snap.Options[orglevel.Segment]))
		case "project:2":
			assert.Equal(t, int64(2), *snap.Selected[orglevel.SubSegment])
			assert.Equal(t, []int64{2}, ids(snap.Options[orglevel.SubSegment]))
		case "team:3":
			assert.Equal(t, int64(3), *snap.Selected[orglevel.Project])
		}
	}

	err := r.LoadForEdit(context.Background(), employee.Assignment{
		SegmentID: id(1), SubSegmentID: id(2), ProjectID: id(3), TeamID: id(4),
	})
	require.NoError(t, err)
	r.Wait()

	assert.Equal(t, []string{"segment", "sub_segment:1", "project:2", "team:3"}, dir.Calls())
	snap := r.Snapshot()
	assert.Equal(t, [4]any{int64(1), int64(2), int64(3), int64(4)}, selected(snap))
	assert.False(t, snap.SuppressCascade)
	assert.Equal(t, cascade.PhaseIdle, snap.Phase)
}

func TestResolver_LoadForEditReusesSegmentOptions(t *testing.T) {
	dir := cascadetest.NewDirectory().Set(orglevel.Segment, nil, 1)
	r, _ := newResolver(t, dir, superAdmin(), cascade.ModeCreate)
	r.Wait()

	require.NoError(t, r.LoadForEdit(context.Background(), employee.Assignment{SegmentID: id(1)}))
	r.Wait()
	assert.Equal(t, []string{"segment", "sub_segment:1"}, dir.Calls())
}

func TestResolver_EditEmployeeWithoutTeam(t *testing.T) {
	dir := cascadetest.NewDirectory().
		Set(orglevel.Segment, nil, 1).
		Set(orglevel.SubSegment, id(1), 2).
		Set(orglevel.Project, id(2), 3).
		Set(orglevel.Team, id(3), 30, 31)
	r, _ := newResolver(t, dir, superAdmin(), cascade.ModeEdit)

	require.NoError(t, r.LoadForEdit(context.Background(), employee.Assignment{
		SegmentID: id(1), SubSegmentID: id(2), ProjectID: id(3),
	}))
	r.Wait()

	snap := r.Snapshot()
	assert.Equal(t, [4]any{int64(1), int64(2), int64(3), nil}, selected(snap))
	assert.Equal(t, []int64{30, 31}, ids(snap.Options[orglevel.Team]))
	assert.False(t, snap.Disabled(orglevel.Team))
}

func TestResolver_LoadForEditFailurePropagates(t *testing.T) {
	dir := cascadetest.NewDirectory().
		Set(orglevel.Segment, nil, 1).
		Set(orglevel.SubSegment, id(1), 2)
	dir.Fail("project:2", errors.New("timeout"))
	r, _ := newResolver(t, dir, superAdmin(), cascade.ModeEdit)

	err := r.LoadForEdit(context.Background(), employee.Assignment{
		SegmentID: id(1), SubSegmentID: id(2), ProjectID: id(3), TeamID: id(4),
	})
	var fetchErr *cascade.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, orglevel.Project, fetchErr.Level)
	assert.Equal(t, int64(2), *fetchErr.ParentID)

	r.Wait()
	snap := r.Snapshot()
	assert.Equal(t, [4]any{int64(1), int64(2), nil, nil}, selected(snap))
	assert.NotNil(t, snap.Options[orglevel.Project])
	assert.Empty(t, snap.Options[orglevel.Project])
	assert.False(t, snap.SuppressCascade)
	assert.Equal(t, cascade.PhaseIdle, snap.Phase)
	assert.NotContains(t, dir.Calls(), "team:3")
}

func TestResolver_MutatorsAreBusyDuringSequentialLoad(t *testing.T) {
	dir := cascadetest.NewDirectory().Set(orglevel.Segment, nil, 1)
	dir.Started = make(chan string, 8)
	r, _ := newResolver(t, dir, superAdmin(), cascade.ModeEdit)
	release := dir.Hold("segment")

	done := make(chan error, 1)
	go func() {
		done <- r.LoadForEdit(context.Background(), employee.Assignment{SegmentID: id(1)})
	}()
	require.Equal(t, "segment", <-dir.Started)

	assert.ErrorIs(t, r.SelectSegment(id(1)), cascade.ErrBusy)
	assert.ErrorIs(t, r.Reset(), cascade.ErrBusy)
	assert.ErrorIs(t, r.LoadForEdit(context.Background(), employee.Assignment{}), cascade.ErrBusy)

	release()
	require.NoError(t, <-done)
	assert.Equal(t, int64(1), *r.Snapshot().Selected[orglevel.Segment])
}

func TestResolver_ResetHonorsTeamLeadLocks(t *testing.T) {
	dir := cascadetest.NewDirectory().
		Set(orglevel.Segment, nil, 5).
		Set(orglevel.SubSegment, id(5), 9).
		Set(orglevel.Project, id(9), 20).
		Set(orglevel.Team, id(20), 77)
	rc := rolescope.New(rolescope.RoleTeamLead, rolescope.Scope{
		SegmentID: id(5), SubSegmentID: id(9), ProjectID: id(20), TeamID: id(77),
	})
	r, _ := newResolver(t, dir, rc, cascade.ModeCreate)
	r.Wait()

	require.NoError(t, r.Reset())
	r.Wait()
	want := [4]any{int64(5), int64(9), int64(20), int64(77)}
	assert.Equal(t, want, selected(r.Snapshot()))

	for _, l := range orglevel.All {
		require.ErrorIs(t, r.Select(l, id(1)), cascade.ErrLevelLocked)
		require.ErrorIs(t, r.Select(l, nil), cascade.ErrLevelLocked)
	}
	snap := r.Snapshot()
	assert.Equal(t, want, selected(snap))
	for _, l := range orglevel.All {
		assert.True(t, snap.Disabled(l))
	}
}

func TestResolver_ProjectManagerScenario(t *testing.T) {
	dir := cascadetest.NewDirectory().
		Set(orglevel.Segment, nil, 3).
		Set(orglevel.SubSegment, id(3), 7).
		Set(orglevel.Project, id(7), 15).
		Set(orglevel.Team, id(15), 150, 151)
	rc := rolescope.New(rolescope.RoleProjectManager, rolescope.Scope{
		SegmentID: id(3), SubSegmentID: id(7), ProjectID: id(15),
	})
	r, _ := newResolver(t, dir, rc, cascade.ModeCreate)
	r.Wait()

	snap := r.Snapshot()
	assert.Equal(t, [4]any{int64(3), int64(7), int64(15), nil}, selected(snap))
	assert.True(t, snap.Disabled(orglevel.Segment))
	assert.True(t, snap.Disabled(orglevel.SubSegment))
	assert.True(t, snap.Disabled(orglevel.Project))
	assert.False(t, snap.Disabled(orglevel.Team))
	assert.Equal(t, []int64{150, 151}, ids(snap.Options[orglevel.Team]))
	assert.Contains(t, dir.Calls(), "team:15")

	require.NoError(t, r.SelectTeam(id(151)))
	assert.Equal(t, int64(151), *r.Snapshot().Selected[orglevel.Team])
}

func TestResolver_ResetClearsUnlockedLevels(t *testing.T) {
	dir := cascadetest.NewDirectory().Set(orglevel.SubSegment, id(5), 9)
	rc := rolescope.New(rolescope.RoleSegmentHead, rolescope.Scope{SegmentID: id(5)})
	r, _ := newResolver(t, dir, rc, cascade.ModeCreate)
	r.Wait()
	require.NoError(t, r.SelectSubSegment(id(9)))
	require.NoError(t, r.SuppressCascades())
	r.Wait()

	require.NoError(t, r.Reset())
	r.Wait()
	snap := r.Snapshot()
	assert.Equal(t, [4]any{int64(5), nil, nil, nil}, selected(snap))
	assert.False(t, snap.SuppressCascade)
	assert.Equal(t, []int64{9}, ids(snap.Options[orglevel.SubSegment]))
}

func TestResolver_Closed(t *testing.T) {
	r, _ := newResolver(t, cascadetest.NewDirectory(), superAdmin(), cascade.ModeEdit)
	r.Close()
	assert.ErrorIs(t, r.SelectSegment(id(1)), cascade.ErrClosed)
}

func TestResolver_ConcurrentSelectAndWait(t *testing.T) {
	dir := cascadetest.NewDirectory().
		Set(orglevel.Segment, nil, 1, 2).
		Set(orglevel.SubSegment, id(1), 10).
		Set(orglevel.SubSegment, id(2), 20)
	r, _ := newResolver(t, dir, superAdmin(), cascade.ModeCreate)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				assert.NoError(t, r.SelectSegment(id(int64(1+(g+i)%2))))
				r.Wait()
			}
		}()
	}
	wg.Wait()
	r.Wait()

	snap := r.Snapshot()
	require.NotNil(t, snap.Selected[orglevel.Segment])
	seg := *snap.Selected[orglevel.Segment]
	assert.Equal(t, []int64{seg * 10}, ids(snap.Options[orglevel.SubSegment]))
	assert.Equal(t, cascade.PhaseIdle, snap.Phase)
}

func TestResolver_CloseDrainsHeldFetch(t *testing.T) {
	dir := cascadetest.NewDirectory().Set(orglevel.SubSegment, id(1), 10)
	r, _ := newResolver(t, dir, superAdmin(), cascade.ModeEdit)

	release := dir.Hold("sub_segment:1")
	defer release()
	require.NoError(t, r.SelectSegment(id(1)))

	waited := make(chan struct{})
	go func() {
		r.Wait()
		close(waited)
	}()
	r.Close()
	<-waited
	assert.ErrorIs(t, r.Reset(), cascade.ErrClosed)
}
