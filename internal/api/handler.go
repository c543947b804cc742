// Package api exposes the agent over a small JSON control surface. The UI is
// an external collaborator: it drives the agent through these routes and
// renders whatever state they return.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/rainwatch/rainwatch/internal/agent"
	"github.com/rainwatch/rainwatch/internal/geocode"
	"github.com/rainwatch/rainwatch/internal/models"
)

type APIResponse struct {
	ResponseType string `json:"responseType"`
}

type StatusResponse struct {
	APIResponse
	agent.Snapshot
}

type LocationsResponse struct {
	APIResponse
	Locations []models.Place `json:"locations"`
}

type ErrorResponse struct {
	APIResponse
	Error string `json:"error"`
}

// Handler wires the agent and geocoder into the control routes.
type Handler struct {
	agent    *agent.Agent
	geocoder geocode.Geocoder
}

func NewHandler(a *agent.Agent, g geocode.Geocoder) *Handler {
	return &Handler{agent: a, geocoder: g}
}

// Router builds the chi route tree.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Post("/agent/enable", h.enable)
		r.Post("/agent/disable", h.disable)
		r.Post("/agent/check", h.check)
		r.Put("/config", h.updateConfig)
		r.Get("/locations", h.locations)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		APIResponse: APIResponse{ResponseType: "status"},
		Snapshot:    h.agent.Snapshot(),
	})
}

func (h *Handler) enable(w http.ResponseWriter, r *http.Request) {
	if err := h.agent.Enable(r.Context()); err != nil {
		if errors.Is(err, agent.ErrEmptyLocation) {
			writeError(w, http.StatusBadRequest, "Set a location before enabling rain watch")
			return
		}
		log.Error().Err(err).Msg("Enable failed")
		writeError(w, http.StatusInternalServerError, "Could not enable rain watch")
		return
	}
	h.status(w, r)
}

func (h *Handler) disable(w http.ResponseWriter, r *http.Request) {
	h.agent.Disable()
	h.status(w, r)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	err := h.agent.Check(r.Context())
	switch {
	case errors.Is(err, agent.ErrInactive):
		writeError(w, http.StatusConflict, "Enable rain watch before requesting a check")
	case errors.Is(err, agent.ErrCheckInFlight):
		writeError(w, http.StatusConflict, "A check is already running")
	case err != nil:
		log.Error().Err(err).Msg("Manual check failed")
		writeError(w, http.StatusInternalServerError, "Check failed")
	default:
		h.status(w, r)
	}
}

// configUpdate carries a partial update of the persisted fields; nil means
// "leave unchanged".
type configUpdate struct {
	LocationQuery       *string `json:"locationQuery"`
	PollIntervalSeconds *int    `json:"pollIntervalSeconds"`
	LookaheadHours      *int    `json:"lookaheadHours"`
	NotifyOnDryResult   *bool   `json:"notifyOnDryResult"`
}

func (h *Handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var update configUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if update.LocationQuery != nil {
		h.agent.SetLocationQuery(*update.LocationQuery)
	}
	if update.PollIntervalSeconds != nil {
		if err := h.agent.SetPollInterval(*update.PollIntervalSeconds); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if update.LookaheadHours != nil {
		if err := h.agent.SetLookaheadHours(*update.LookaheadHours); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if update.NotifyOnDryResult != nil {
		h.agent.SetNotifyOnDryResult(*update.NotifyOnDryResult)
	}

	h.status(w, r)
}

func (h *Handler) locations(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if params.Get("lat") != "" || params.Get("lon") != "" {
		h.reverseLocation(w, r, params.Get("lat"), params.Get("lon"))
		return
	}

	query := params.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Missing query parameter q")
		return
	}

	places, err := h.geocoder.Forward(r.Context(), query)
	if err != nil {
		var notFound *geocode.LocationNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, notFound.Error())
			return
		}
		log.Error().Err(err).Str("query", query).Msg("Forward geocoding failed")
		writeError(w, http.StatusBadGateway, "Geocoding service unavailable")
		return
	}

	writeJSON(w, http.StatusOK, LocationsResponse{
		APIResponse: APIResponse{ResponseType: "locations"},
		Locations:   places,
	})
}

// reverseLocation resolves a lat/lon pair to a display name.
func (h *Handler) reverseLocation(w http.ResponseWriter, r *http.Request, latStr, lonStr string) {
	lat, latErr := strconv.ParseFloat(latStr, 64)
	lon, lonErr := strconv.ParseFloat(lonStr, 64)
	if latErr != nil || lonErr != nil {
		writeError(w, http.StatusBadRequest, "Parameters lat and lon must both be numeric")
		return
	}

	coord := models.NewCoordinate(lat, lon)
	name, err := h.geocoder.Reverse(r.Context(), coord)
	if err != nil {
		log.Error().Err(err).Str("coordinate", coord.String()).Msg("Reverse geocoding failed")
		writeError(w, http.StatusBadGateway, "Geocoding service unavailable")
		return
	}

	writeJSON(w, http.StatusOK, LocationsResponse{
		APIResponse: APIResponse{ResponseType: "locations"},
		Locations:   []models.Place{{Coordinate: coord, DisplayName: name}},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Encoding response failed")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		APIResponse: APIResponse{ResponseType: "error"},
		Error:       message,
	})
}
