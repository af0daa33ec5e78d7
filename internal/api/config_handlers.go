package api

import (
	"fmt"
	"net/http"

	"minbar/internal/models"
)

type maintenanceRequest struct {
	Enabled  bool   `json:"enabled"`
	Password string `json:"password,omitempty"`
}

type maintenanceStatus struct {
	Maintenance bool `json:"maintenance"`
}

// ConfigStatus reports the maintenance flag. The flag is advisory: the
// frontend decides what to show, the API keeps serving either way.
func (h *Handler) ConfigStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	enabled, err := h.Store.SettingEnabled(models.MaintenanceFlag)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, maintenanceStatus{Maintenance: enabled})
}

func (h *Handler) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if _, ok := h.requireRole(w, r, models.RoleSuperadmin); !ok {
		return
	}
	var req maintenanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.Store.SetSetting(models.MaintenanceFlag, req.Enabled); err != nil {
		writeStoreError(w, err)
		return
	}
	h.metricsRecorder().SetMaintenanceMode(req.Enabled)
	writeData(w, http.StatusOK, maintenanceStatus{Maintenance: req.Enabled})
}
