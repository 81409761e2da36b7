package controllers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iota-uz/competency-hub/modules/hrm/domain/aggregates/employee"
	"github.com/iota-uz/competency-hub/modules/hrm/domain/orglevel"
	"github.com/iota-uz/competency-hub/modules/hrm/presentation/viewmodels"
	"github.com/iota-uz/competency-hub/modules/hrm/services"
	"github.com/iota-uz/competency-hub/modules/hrm/services/cascade"
	"github.com/iota-uz/competency-hub/pkg/application"
	"github.com/iota-uz/competency-hub/pkg/authz"
	"github.com/iota-uz/competency-hub/pkg/composables"
	"github.com/iota-uz/competency-hub/pkg/httpapi"
	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

type openFormRequest struct {
	EmployeeID *int64 `json:"employee_id"`
}

type selectRequest struct {
	Level string `json:"level"`
	ID    *int64 `json:"id"`
}

type submitRequest struct {
	KeepOpen bool `json:"keep_open"`
}

type submitResponse struct {
	Employee employee.Record          `json:"employee"`
	Form     *viewmodels.EmployeeForm `json:"form,omitempty"`
}

// EmployeeFormController exposes employee form sessions as a JSON API.
type EmployeeFormController struct {
	app      application.Application
	sessions *services.FormSessions
	basePath string
}

func NewEmployeeFormController(app application.Application) application.Controller {
	return &EmployeeFormController{
		app:      app,
		sessions: app.Service(services.FormSessions{}).(*services.FormSessions),
		basePath: "/hrm/api/employee-forms",
	}
}

func (c *EmployeeFormController) Key() string {
	return c.basePath
}

func (c *EmployeeFormController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("", c.Open).Methods(http.MethodPost)
	router.HandleFunc("/{id}", c.Get).Methods(http.MethodGet)
	router.HandleFunc("/{id}", c.Discard).Methods(http.MethodDelete)
	router.HandleFunc("/{id}/select", c.Select).Methods(http.MethodPost)
	router.HandleFunc("/{id}/reset", c.Reset).Methods(http.MethodPost)
	router.HandleFunc("/{id}/details", c.UpdateDetails).Methods(http.MethodPut)
	router.HandleFunc("/{id}/submit", c.Submit).Methods(http.MethodPost)
	router.HandleFunc("/{id}/options/{level}", c.Options).Methods(http.MethodGet)
}

func (c *EmployeeFormController) roleScope(r *http.Request) rolescope.Context {
	if rc, ok := composables.UseRoleScope(r.Context()); ok {
		return rc
	}
	return c.sessions.DefaultRoleScope()
}

func (c *EmployeeFormController) Open(w http.ResponseWriter, r *http.Request) {
	var body openFormRequest
	if err := httpapi.DecodeJSON(w, r, &body); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, err.Error(), nil)
		return
	}
	id, form, err := c.sessions.Open(r.Context(), c.roleScope(r), body.EmployeeID)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	form.Resolver().Wait()
	composables.UseLogger(r.Context()).WithField("session_id", id).Info("employee form opened")
	_ = httpapi.WriteJSON(w, http.StatusCreated, c.view(id, form))
}

func (c *EmployeeFormController) Get(w http.ResponseWriter, r *http.Request) {
	id, form, ok := c.session(w, r, "view")
	if !ok {
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, c.view(id, form))
}

func (c *EmployeeFormController) Select(w http.ResponseWriter, r *http.Request) {
	id, form, ok := c.session(w, r, writeAction)
	if !ok {
		return
	}
	var body selectRequest
	if err := httpapi.DecodeJSON(w, r, &body); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, err.Error(), nil)
		return
	}
	level, err := orglevel.ParseKey(body.Level)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeInvalidLevel, err.Error(), nil)
		return
	}
	if err := form.Resolver().Select(level, body.ID); err != nil {
		c.writeError(w, r, err)
		return
	}
	form.Resolver().Wait()
	_ = httpapi.WriteJSON(w, http.StatusOK, c.view(id, form))
}

func (c *EmployeeFormController) Reset(w http.ResponseWriter, r *http.Request) {
	id, form, ok := c.session(w, r, writeAction)
	if !ok {
		return
	}
	if err := form.Reset(); err != nil {
		c.writeError(w, r, err)
		return
	}
	form.Resolver().Wait()
	_ = httpapi.WriteJSON(w, http.StatusOK, c.view(id, form))
}

func (c *EmployeeFormController) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	id, form, ok := c.session(w, r, writeAction)
	if !ok {
		return
	}
	var body employee.Details
	if err := httpapi.DecodeJSON(w, r, &body); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, err.Error(), nil)
		return
	}
	form.SetDetails(body)
	_ = httpapi.WriteJSON(w, http.StatusOK, c.view(id, form))
}

func (c *EmployeeFormController) Submit(w http.ResponseWriter, r *http.Request) {
	id, form, ok := c.session(w, r, writeAction)
	if !ok {
		return
	}
	var body submitRequest
	if err := httpapi.DecodeJSON(w, r, &body); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, err.Error(), nil)
		return
	}
	rec, err := form.Submit(r.Context())
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		vm := c.view(id, form)
		vm.Errors = validationErr.Fields
		_ = httpapi.WriteJSON(w, http.StatusUnprocessableEntity, vm)
		return
	}
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	resp := submitResponse{Employee: rec}
	if body.KeepOpen {
		if err := form.Reset(); err != nil {
			c.writeError(w, r, err)
			return
		}
		form.Resolver().Wait()
		vm := c.view(id, form)
		resp.Form = &vm
	} else if err := c.sessions.Close(id, c.roleScope(r)); err != nil && !errors.Is(err, services.ErrSessionNotFound) {
		c.writeError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (c *EmployeeFormController) Options(w http.ResponseWriter, r *http.Request) {
	_, form, ok := c.session(w, r, "view")
	if !ok {
		return
	}
	level, err := orglevel.ParseKey(mux.Vars(r)["level"])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeInvalidLevel, err.Error(), nil)
		return
	}
	snap := form.Resolver().Snapshot()
	_ = httpapi.WriteJSON(w, http.StatusOK, viewmodels.FilterOptions(snap.Options[level], r.URL.Query().Get("q")))
}

func (c *EmployeeFormController) Discard(w http.ResponseWriter, r *http.Request) {
	if err := c.sessions.Close(mux.Vars(r)["id"], c.roleScope(r)); err != nil {
		c.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeAction resolves to update for edit sessions and create otherwise.
const writeAction = ""

func (c *EmployeeFormController) session(w http.ResponseWriter, r *http.Request, action string) (string, *services.EmployeeForm, bool) {
	id := mux.Vars(r)["id"]
	rc := c.roleScope(r)
	form, err := c.sessions.Get(id, rc)
	if err != nil {
		c.writeError(w, r, err)
		return "", nil, false
	}
	if action == writeAction {
		action = "create"
		if form.EmployeeID() != nil {
			action = "update"
		}
	}
	if !ensureHRMAuthz(w, r, c.sessions.Authorizer(), rc, authz.ObjectEmployees, action) {
		return "", nil, false
	}
	return id, form, true
}

func (c *EmployeeFormController) view(id string, form *services.EmployeeForm) viewmodels.EmployeeForm {
	return viewmodels.NewEmployeeForm(id, form.EmployeeID(), form.Details(), form.Resolver().Snapshot())
}

func (c *EmployeeFormController) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fetchErr *cascade.FetchError
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		_ = httpapi.WriteRequestError(w, r, http.StatusNotFound, httpapi.CodeSessionNotFound, err.Error(), nil)
	case errors.Is(err, services.ErrSessionScopeMismatch):
		_ = httpapi.WriteRequestError(w, r, http.StatusForbidden, httpapi.CodeSessionScopeMismatch, err.Error(), nil)
	case errors.Is(err, cascade.ErrLevelLocked):
		_ = httpapi.WriteRequestError(w, r, http.StatusConflict, httpapi.CodeLevelLocked, err.Error(), nil)
	case errors.Is(err, cascade.ErrBusy):
		_ = httpapi.WriteRequestError(w, r, http.StatusConflict, httpapi.CodeBusy, err.Error(), nil)
	case authz.IsForbidden(err):
		_ = httpapi.WriteRequestError(w, r, http.StatusForbidden, authz.ErrorCodeForbidden, "permission denied", nil)
	case errors.As(err, &fetchErr):
		_ = httpapi.WriteRequestError(w, r, http.StatusBadGateway, httpapi.CodeDirectoryUnavailable, err.Error(), map[string]string{
			"level": fetchErr.Level.Key(),
		})
	default:
		composables.UseLogger(r.Context()).WithError(err).Error("employee form request failed")
		_ = httpapi.WriteRequestError(w, r, http.StatusBadGateway, httpapi.CodeUpstream, err.Error(), nil)
	}
}
