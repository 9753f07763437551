// Package api is the read-only HTTP surface: aircraft snapshots, the current
// target, the sighting log and the event WebSocket. All state mutation
// happens in the ingestion pipeline.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skyspot/skyspot/internal/adsb"
	"github.com/skyspot/skyspot/internal/storage/sqlite"
	"github.com/skyspot/skyspot/internal/websocket"
	"github.com/skyspot/skyspot/pkg/logger"
)

// Handler holds the services the HTTP endpoints read from. The sighting
// storage is nil when the log is disabled.
type Handler struct {
	adsbService *adsb.Service
	sightings   *sqlite.SightingStorage
	wsServer    *websocket.Server
	logger      *logger.Logger
}

func NewHandler(adsbService *adsb.Service, sightings *sqlite.SightingStorage, wsServer *websocket.Server, log *logger.Logger) *Handler {
	return &Handler{
		adsbService: adsbService,
		sightings:   sightings,
		wsServer:    wsServer,
		logger:      log.Named("api"),
	}
}

// GetAllAircraft returns snapshots of every live aircraft.
func (h *Handler) GetAllAircraft(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.adsbService.AircraftList())
}

// GetAircraftByHex returns one aircraft snapshot.
func (h *Handler) GetAircraftByHex(w http.ResponseWriter, r *http.Request) {
	hex := strings.ToLower(chi.URLParam(r, "hex"))

	state, ok := h.adsbService.AircraftByHex(hex)
	if !ok {
		WriteError(w, http.StatusNotFound, "aircraft not found")
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

// GetTarget returns the current tracking state.
func (h *Handler) GetTarget(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.adsbService.Target())
}

// GetStatus returns a service summary.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := struct {
		adsb.Status
		WebSocketClients int  `json:"websocket_clients"`
		SightingLog      bool `json:"sighting_log"`
	}{
		Status:      h.adsbService.Status(),
		SightingLog: h.sightings != nil,
	}
	if h.wsServer != nil {
		status.WebSocketClients = h.wsServer.ClientCount()
	}
	WriteJSON(w, http.StatusOK, status)
}

// GetSightings returns the newest entries of the sighting log.
func (h *Handler) GetSightings(w http.ResponseWriter, r *http.Request) {
	if h.sightings == nil {
		WriteError(w, http.StatusServiceUnavailable, "sighting log disabled")
		return
	}

	sightings, err := h.sightings.Recent(r.Context(), queryLimit(r))
	if err != nil {
		h.logger.Error("Failed to query sightings", logger.Error(err))
		WriteError(w, http.StatusInternalServerError, "failed to query sightings")
		return
	}
	WriteJSON(w, http.StatusOK, sightings)
}

// GetSightingsByAircraft returns the newest sightings of one aircraft.
func (h *Handler) GetSightingsByAircraft(w http.ResponseWriter, r *http.Request) {
	if h.sightings == nil {
		WriteError(w, http.StatusServiceUnavailable, "sighting log disabled")
		return
	}
	hex := strings.ToLower(chi.URLParam(r, "hex"))

	sightings, err := h.sightings.ByAircraft(r.Context(), hex, queryLimit(r))
	if err != nil {
		h.logger.Error("Failed to query sightings",
			logger.String("hex", hex),
			logger.Error(err))
		WriteError(w, http.StatusInternalServerError, "failed to query sightings")
		return
	}
	WriteJSON(w, http.StatusOK, sightings)
}

// HandleWebSocket upgrades the connection and attaches it to the hub.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsServer == nil {
		WriteError(w, http.StatusServiceUnavailable, "websocket disabled")
		return
	}
	h.wsServer.HandleConnection(w, r)
}

func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 100
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteError writes a JSON error payload.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}
