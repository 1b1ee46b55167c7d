package application

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tahought/DisasterSoundManager/internal/pkg/dashboard"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/database"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/models"
)

//FreshIncidentWindow is how long the head of the feed is flagged as recent
const FreshIncidentWindow = 10 * time.Second

var validate = validator.New()

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending in_progress resolved"`
}

type thresholdRequest struct {
	Threshold *float64 `json:"threshold" validate:"required,min=0,max=1"`
}

type injectRequest struct {
	Mode       string   `json:"mode" validate:"required,oneof=preset custom"`
	UnitID     string   `json:"unit_id" validate:"required_if=Mode preset,max=64"`
	Latitude   *float64 `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude  *float64 `json:"longitude" validate:"omitempty,min=-180,max=180"`
	Type       string   `json:"type" validate:"required,max=64"`
	Confidence *float64 `json:"confidence" validate:"required,min=0,max=1"`
}

type feedResponse struct {
	Count     int               `json:"count"`
	Recent    bool              `json:"recent"`
	Incidents []models.Incident `json:"incidents"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type apiHandlers struct {
	svc Services
	now func() time.Time
}

func (h *apiHandlers) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

func (h *apiHandlers) listIncidents(w http.ResponseWriter, r *http.Request) {
	incidents := h.svc.Dashboard.Feed.Snapshot()

	response := feedResponse{Count: len(incidents), Incidents: incidents}
	if len(incidents) > 0 {
		response.Recent = h.clock().Sub(incidents[0].CreatedAt) < FreshIncidentWindow
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *apiHandlers) setIncidentStatus(w http.ResponseWriter, r *http.Request) {
	req := statusRequest{}
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	incident, err := h.svc.Operator.SetIncidentStatus(chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, incident)
}

func (h *apiHandlers) incidentAudio(w http.ResponseWriter, r *http.Request) {
	incident, err := h.svc.DB.GetIncidentFromID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	if !incident.HasAudio() {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no audio clip"})
		return
	}

	http.Redirect(w, r, *incident.AudioURL, http.StatusFound)
}

func (h *apiHandlers) listUnits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Dashboard.Units.Snapshot())
}

func (h *apiHandlers) setUnitThreshold(w http.ResponseWriter, r *http.Request) {
	req := thresholdRequest{}
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	unit, err := h.svc.Operator.SetUnitThreshold(chi.URLParam(r, "id"), *req.Threshold)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, unit)
}

func (h *apiHandlers) deleteUnit(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Operator.DeleteUnit(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandlers) mapState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Dashboard.Map.State())
}

func (h *apiHandlers) chart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Dashboard.Chart.Buckets())
}

func (h *apiHandlers) injectIncident(w http.ResponseWriter, r *http.Request) {
	req := injectRequest{}
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	incident, err := h.svc.Operator.InjectIncident(dashboard.InjectRequest{
		Mode:       dashboard.InjectMode(req.Mode),
		UnitID:     req.UnitID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Type:       req.Type,
		Confidence: *req.Confidence,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, incident)
}

func (h *apiHandlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}

	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return false
	}

	return true
}

func (h *apiHandlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, database.ErrIncidentNotFound), errors.Is(err, database.ErrUnitNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dashboard.ErrInvalidStatus),
		errors.Is(err, dashboard.ErrThresholdOutOfRange),
		errors.Is(err, dashboard.ErrConfidenceOutOfRange),
		errors.Is(err, dashboard.ErrUnknownPresetUnit),
		errors.Is(err, dashboard.ErrMissingIncidentType):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.svc.Log.Errorf("Request failed: %s", err.Error())
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
