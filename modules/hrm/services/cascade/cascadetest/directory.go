// Package cascadetest provides an in-memory scope directory for tests.
package cascadetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/iota-uz/competency-hub/modules/hrm/domain/orglevel"
)

// Directory serves canned option lists keyed by Key(level, parent). Unknown
// keys return an empty list. Every call is recorded in order.
type Directory struct {
	mu        sync.Mutex
	options   map[string][]orglevel.OptionRecord
	failures  map[string]error
	gates     map[string]chan struct{}
	calls     []string
	bootstrap map[int64]orglevel.BootstrapPayload
	bootErr   error

	// OnCall runs before a read is served, outside the directory lock.
	OnCall func(key string)
	// Started receives the key of every read as it begins, when non-nil.
	Started chan string
}

func NewDirectory() *Directory {
	return &Directory{
		options:   map[string][]orglevel.OptionRecord{},
		failures:  map[string]error{},
		gates:     map[string]chan struct{}{},
		bootstrap: map[int64]orglevel.BootstrapPayload{},
	}
}

// Key formats a call key: "segment" or "team:15".
func Key(level orglevel.Level, parent *int64) string {
	if parent == nil {
		return level.Key()
	}
	return fmt.Sprintf("%s:%d", level.Key(), *parent)
}

// Set registers options for level under parent. Each record gets
// id and name "<prefix> <id>".
func (d *Directory) Set(level orglevel.Level, parent *int64, ids ...int64) *Directory {
	opts := make([]orglevel.OptionRecord, 0, len(ids))
	for _, id := range ids {
		opts = append(opts, orglevel.OptionRecord{
			ID:       id,
			Name:     fmt.Sprintf("%s %d", level.Label(), id),
			ParentID: orglevel.CloneID(parent),
		})
	}
	d.mu.Lock()
	d.options[Key(level, parent)] = opts
	d.mu.Unlock()
	return d
}

func (d *Directory) Fail(key string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, key)
		return
	}
	d.failures[key] = err
}

// Hold makes reads of key block until the returned release func is called.
func (d *Directory) Hold(key string) (release func()) {
	ch := make(chan struct{})
	d.mu.Lock()
	d.gates[key] = ch
	d.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.gates, key)
			d.mu.Unlock()
			close(ch)
		})
	}
}

func (d *Directory) SetBootstrap(employeeID int64, payload orglevel.BootstrapPayload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bootstrap[employeeID] = payload
}

func (d *Directory) FailBootstrap(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bootErr = err
}

func (d *Directory) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *Directory) serve(ctx context.Context, level orglevel.Level, parent *int64) ([]orglevel.OptionRecord, error) {
	key := Key(level, parent)
	d.mu.Lock()
	d.calls = append(d.calls, key)
	gate := d.gates[key]
	d.mu.Unlock()

	if d.Started != nil {
		d.Started <- key
	}
	if d.OnCall != nil {
		d.OnCall(key)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failures[key]; err != nil {
		return nil, err
	}
	return orglevel.CloneOptions(d.options[key]), nil
}

func (d *Directory) Segments(ctx context.Context) ([]orglevel.OptionRecord, error) {
	return d.serve(ctx, orglevel.Segment, nil)
}

func (d *Directory) SubSegments(ctx context.Context, segmentID int64) ([]orglevel.OptionRecord, error) {
	return d.serve(ctx, orglevel.SubSegment, &segmentID)
}

func (d *Directory) Projects(ctx context.Context, subSegmentID int64) ([]orglevel.OptionRecord, error) {
	return d.serve(ctx, orglevel.Project, &subSegmentID)
}

func (d *Directory) Teams(ctx context.Context, projectID int64) ([]orglevel.OptionRecord, error) {
	return d.serve(ctx, orglevel.Team, &projectID)
}

func (d *Directory) Bootstrap(_ context.Context, employeeID int64) (orglevel.BootstrapPayload, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fmt.Sprintf("bootstrap:%d", employeeID))
	if d.bootErr != nil {
		return orglevel.BootstrapPayload{}, d.bootErr
	}
	payload, ok := d.bootstrap[employeeID]
	if !ok {
		return orglevel.BootstrapPayload{}, fmt.Errorf("employee %d not found", employeeID)
	}
	return payload, nil
}
