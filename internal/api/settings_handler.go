package api

import (
	"net/http"

	"github.com/opsloom/codeterm/internal/identity"
	"github.com/opsloom/codeterm/internal/settings"
)

type settingsHandler struct {
	settings *settings.Service
}

// get handles GET /api/admin/settings.
func (h *settingsHandler) get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Current())
}

type updateSettingsRequest struct {
	AllowlistEmails []string `json:"allowlistEmails"`
	AdminEmails     []string `json:"adminEmails"`
}

// update handles PUT /api/admin/settings. The caller must already be an
// admin — enforced by the router's adminOnly wrapper, not here.
func (h *settingsHandler) update(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())

	var req updateSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	next, err := h.settings.Update(req.AllowlistEmails, req.AdminEmails, email)
	if err != nil {
		writeErrorDetail(w, http.StatusInternalServerError, "failed to update settings", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, next)
}
