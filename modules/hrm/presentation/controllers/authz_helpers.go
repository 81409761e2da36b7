package controllers

import (
	"net/http"

	"github.com/iota-uz/competency-hub/modules/hrm/services"
	"github.com/iota-uz/competency-hub/pkg/authz"
	"github.com/iota-uz/competency-hub/pkg/composables"
	"github.com/iota-uz/competency-hub/pkg/httpapi"
	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

// ensureHRMAuthz writes a 403 envelope and returns false when the acting
// role may not perform action on object. A nil authorizer allows everything.
func ensureHRMAuthz(
	w http.ResponseWriter,
	r *http.Request,
	az services.Authorizer,
	rc rolescope.Context,
	object,
	action string,
) bool {
	if az == nil {
		return true
	}
	req := authz.NewRoleRequest(rc, object, action)
	if err := az.Authorize(r.Context(), req); err != nil {
		if !authz.IsForbidden(err) {
			composables.UseLogger(r.Context()).WithError(err).Error("authorization check failed")
			_ = httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeAuthzError, "authorization check failed", nil)
			return false
		}
		writeForbiddenResponse(w, r, req)
		return false
	}
	return true
}

func writeForbiddenResponse(w http.ResponseWriter, r *http.Request, req authz.Request) {
	_ = httpapi.WriteRequestError(w, r, http.StatusForbidden, authz.ErrorCodeForbidden, "permission denied", map[string]string{
		"subject": req.Subject,
		"domain":  req.Domain,
		"object":  req.Object,
		"action":  req.Action,
	})
}
