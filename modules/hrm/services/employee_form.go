package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/competency-hub/modules/hrm/domain/aggregates/employee"
	"github.com/iota-uz/competency-hub/modules/hrm/services/cascade"
	"github.com/iota-uz/competency-hub/pkg/authz"
	"github.com/iota-uz/competency-hub/pkg/eventbus"
	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

// EditLoadStrategy picks how an edit session fills the hierarchy.
type EditLoadStrategy string

const (
	StrategyBootstrap  EditLoadStrategy = "bootstrap"
	StrategySequential EditLoadStrategy = "sequential"
)

func ParseEditLoadStrategy(raw string) (EditLoadStrategy, error) {
	switch s := EditLoadStrategy(strings.ToLower(strings.TrimSpace(raw))); s {
	case "", StrategyBootstrap:
		return StrategyBootstrap, nil
	case StrategySequential:
		return StrategySequential, nil
	default:
		return "", fmt.Errorf("unknown edit load strategy %q", raw)
	}
}

// EmployeeAPI is the remote employee surface used by the form.
type EmployeeAPI interface {
	cascade.BootstrapSource
	Employee(ctx context.Context, id int64) (employee.Record, error)
	CreateEmployee(ctx context.Context, in employee.Input) (employee.Record, error)
	UpdateEmployee(ctx context.Context, id int64, in employee.Input) (employee.Record, error)
}

// Authorizer is satisfied by *authz.Service.
type Authorizer interface {
	Authorize(ctx context.Context, req authz.Request) error
}

// ValidationError carries per-field messages from Submit.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("employee form is invalid: %d field(s)", len(e.Fields))
}

type EmployeeFormOptions struct {
	Directory cascade.Directory
	API       EmployeeAPI
	RoleScope rolescope.Context
	Strategy  EditLoadStrategy
	Authz     Authorizer
	Events    eventbus.EventBus
	Logger    *logrus.Logger
}

// EmployeeForm is one add or edit session. It owns the personal details and
// delegates the four hierarchy fields to its resolver.
type EmployeeForm struct {
	resolver *cascade.Resolver
	api      EmployeeAPI
	authz    Authorizer
	rc       rolescope.Context
	strategy EditLoadStrategy
	log      *logrus.Entry

	mu         sync.Mutex
	details    employee.Details
	employeeID *int64
}

func newEmployeeForm(ctx context.Context, opts EmployeeFormOptions, mode cascade.Mode, action string) (*EmployeeForm, error) {
	if opts.API == nil {
		return nil, errors.New("employee form: API is required")
	}
	if err := authorize(ctx, opts.Authz, opts.RoleScope, action); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	resolver, err := cascade.New(cascade.Options{
		Directory: opts.Directory,
		RoleScope: opts.RoleScope,
		Mode:      mode,
		Events:    opts.Events,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyBootstrap
	}
	return &EmployeeForm{
		resolver: resolver,
		api:      opts.API,
		authz:    opts.Authz,
		rc:       opts.RoleScope,
		strategy: strategy,
		log:      logger.WithField("component", "employee_form"),
	}, nil
}

// OpenCreate starts an "Add Employee" session.
func OpenCreate(ctx context.Context, opts EmployeeFormOptions) (*EmployeeForm, error) {
	return newEmployeeForm(ctx, opts, cascade.ModeCreate, "create")
}

// OpenEdit starts an "Edit Employee" session for employeeID and fills the
// hierarchy using the configured strategy. A failed bootstrap read falls
// back to the sequential load; a sequential failure closes the session and
// is returned.
func OpenEdit(ctx context.Context, opts EmployeeFormOptions, employeeID int64) (*EmployeeForm, error) {
	f, err := newEmployeeForm(ctx, opts, cascade.ModeEdit, "update")
	if err != nil {
		return nil, err
	}
	if err := f.loadForEdit(ctx, employeeID); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (f *EmployeeForm) loadForEdit(ctx context.Context, employeeID int64) error {
	logger := f.log.WithFields(logrus.Fields{"employee_id": employeeID, "strategy": f.strategy})

	record, err := f.api.Employee(ctx, employeeID)
	if err != nil {
		return errors.Wrapf(err, "load employee %d", employeeID)
	}
	f.mu.Lock()
	f.details = record.Details
	f.employeeID = &employeeID
	f.mu.Unlock()

	if f.strategy == StrategyBootstrap {
		if err := f.resolver.SuppressCascades(); err != nil {
			return err
		}
		_, err := f.resolver.LoadFromBootstrap(ctx, f.api, employeeID)
		if err == nil {
			logger.Debug("edit form loaded from bootstrap")
			return nil
		}
		if errors.Is(err, cascade.ErrClosed) {
			return err
		}
		logger.WithError(err).Warn("bootstrap failed, falling back to sequential load")
	}

	if err := f.resolver.LoadForEdit(ctx, record.Assignment); err != nil {
		return errors.Wrapf(err, "load assignment of employee %d", employeeID)
	}
	logger.Debug("edit form loaded sequentially")
	return nil
}

func authorize(ctx context.Context, az Authorizer, rc rolescope.Context, action string) error {
	if az == nil {
		return nil
	}
	return az.Authorize(ctx, authz.NewRoleRequest(rc, authz.ObjectEmployees, action))
}

func (f *EmployeeForm) Resolver() *cascade.Resolver {
	return f.resolver
}

// EmployeeID is nil for an add session.
func (f *EmployeeForm) EmployeeID() *int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.employeeID == nil {
		return nil
	}
	id := *f.employeeID
	return &id
}

func (f *EmployeeForm) Details() employee.Details {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.details
}

func (f *EmployeeForm) SetDetails(d employee.Details) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details = d
}

func (f *EmployeeForm) dto() *employee.FormDTO {
	snap := f.resolver.Snapshot()
	return employee.NewFormDTO(f.Details(), employee.AssignmentFromIDs(snap.SelectedIDs()))
}

// Validate returns per-field messages; an empty map means the form can be submitted.
func (f *EmployeeForm) Validate() map[string]string {
	errs, _ := f.dto().Ok()
	return errs
}

// Submit sends one create or update request. The resolver state is left as
// it is; callers decide whether to Reset or Close afterwards.
func (f *EmployeeForm) Submit(ctx context.Context) (employee.Record, error) {
	dto := f.dto()
	if errs, ok := dto.Ok(); !ok {
		return employee.Record{}, &ValidationError{Fields: errs}
	}
	id := f.EmployeeID()
	action := "create"
	if id != nil {
		action = "update"
	}
	if err := authorize(ctx, f.authz, f.rc, action); err != nil {
		return employee.Record{}, err
	}

	var (
		rec employee.Record
		err error
	)
	if id == nil {
		rec, err = f.api.CreateEmployee(ctx, dto.ToInput())
	} else {
		rec, err = f.api.UpdateEmployee(ctx, *id, dto.ToInput())
	}
	if err != nil {
		return employee.Record{}, errors.Wrapf(err, "%s employee", action)
	}
	f.log.WithFields(logrus.Fields{"employee_id": rec.ID, "action": action}).Info("employee saved")
	return rec, nil
}

// Reset clears the personal details and resets the hierarchy to the role
// defaults. An edit session becomes an add session.
func (f *EmployeeForm) Reset() error {
	if err := f.resolver.Reset(); err != nil {
		return err
	}
	f.mu.Lock()
	f.details = employee.Details{}
	f.employeeID = nil
	f.mu.Unlock()
	return nil
}

func (f *EmployeeForm) Close() {
	f.resolver.Close()
}
