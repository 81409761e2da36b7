package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iota-uz/competency-hub/modules/hrm/infrastructure/xlsx"
	"github.com/iota-uz/competency-hub/modules/hrm/services"
	"github.com/iota-uz/competency-hub/pkg/application"
	"github.com/iota-uz/competency-hub/pkg/authz"
	"github.com/iota-uz/competency-hub/pkg/composables"
	"github.com/iota-uz/competency-hub/pkg/httpapi"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ImportTemplateController serves the bulk import workbook for the acting role.
type ImportTemplateController struct {
	app      application.Application
	source   xlsx.Source
	sessions *services.FormSessions
	basePath string
}

func NewImportTemplateController(app application.Application, source xlsx.Source) application.Controller {
	return &ImportTemplateController{
		app:      app,
		source:   source,
		sessions: app.Service(services.FormSessions{}).(*services.FormSessions),
		basePath: "/hrm/api/import-template",
	}
}

func (c *ImportTemplateController) Key() string {
	return c.basePath
}

func (c *ImportTemplateController) Register(r *mux.Router) {
	r.HandleFunc(c.basePath, c.Download).Methods(http.MethodGet)
}

func (c *ImportTemplateController) Download(w http.ResponseWriter, r *http.Request) {
	rc, ok := composables.UseRoleScope(r.Context())
	if !ok {
		rc = c.sessions.DefaultRoleScope()
	}
	if !ensureHRMAuthz(w, r, c.sessions.Authorizer(), rc, authz.ObjectImportTemplate, "export") {
		return
	}

	tmpl := xlsx.NewImportTemplate(xlsx.TemplateOptions{
		Source:    c.source,
		RoleScope: rc,
		Logger:    c.app.Logger(),
	})
	f, err := tmpl.Build(r.Context())
	if err != nil {
		composables.UseLogger(r.Context()).WithError(err).Error("import template build failed")
		_ = httpapi.WriteError(w, http.StatusBadGateway, httpapi.CodeDirectoryUnavailable, err.Error(), nil)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="employee-import-template.xlsx"`)
	if err := f.Write(w); err != nil {
		composables.UseLogger(r.Context()).WithError(err).Warn("import template write failed")
	}
}
