package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/signalboard/go/internal/models"
	"github.com/mcdev12/signalboard/go/internal/signal"
	"github.com/rs/zerolog/log"
)

// CongestionReader exposes the most recent congestion sample, if any
type CongestionReader interface {
	Latest() (models.CongestionSample, bool)
}

type lightsResponse struct {
	TrafficLights []models.LightSnapshot `json:"trafficLights"`
}

type controlResponse struct {
	Success bool                `json:"success"`
	Light   *models.LightStatus `json:"light,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// ControlHandler serves the synchronous HTTP control surface
type ControlHandler struct {
	controller LightController
	congestion CongestionReader
}

// NewControlHandler creates a control handler. congestion may be nil.
func NewControlHandler(controller LightController, congestion CongestionReader) *ControlHandler {
	return &ControlHandler{
		controller: controller,
		congestion: congestion,
	}
}

// HandleListLights handles GET /api/lights
func (h *ControlHandler) HandleListLights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, lightsResponse{TrafficLights: h.controller.Snapshot()})
}

// HandleControl handles POST /api/lights/control
func (h *ControlHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	var cmd models.ManualCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, controlResponse{Error: "invalid request body"})
		return
	}

	status, err := h.controller.ApplyManualCommand(cmd)
	if err != nil {
		code := statusForError(err)
		if code == http.StatusInternalServerError {
			log.Error().Err(err).Str("light_id", cmd.LightID).Msg("failed to apply manual command")
		}
		writeJSON(w, code, controlResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, controlResponse{Success: true, Light: &status})
}

// HandleLatestCongestion handles GET /api/congestion/latest
func (h *ControlHandler) HandleLatestCongestion(w http.ResponseWriter, r *http.Request) {
	if h.congestion == nil {
		http.Error(w, "congestion polling disabled", http.StatusNotFound)
		return
	}
	sample, ok := h.congestion.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// RegisterRoutes registers the control routes with an HTTP mux
func (h *ControlHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/lights", h.HandleListLights)
	mux.HandleFunc("POST /api/lights/control", h.HandleControl)
	mux.HandleFunc("GET /api/congestion/latest", h.HandleLatestCongestion)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, signal.ErrMissingLightID),
		errors.Is(err, signal.ErrInvalidState),
		errors.Is(err, signal.ErrInvalidDuration):
		return http.StatusBadRequest
	case errors.Is(err, signal.ErrLightNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
