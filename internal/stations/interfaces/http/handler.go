package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"subway-cloud/internal/audit"
	"subway-cloud/internal/stations/application"
	stations "subway-cloud/internal/stations/domain"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

const basePath = "/api/v1/stations"

// Handler provides station HTTP endpoints.
type Handler struct {
	service     *application.Service
	auditLogger audit.Logger
	logger      *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *application.Service, auditLogger audit.Logger, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("stations handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger, logger: logger}, nil
}

// Register mounts the station routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle(basePath, h)
	mux.Handle(basePath+"/", h)
}

type stationResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ServeHTTP handles /api/v1/stations and /api/v1/stations/{id}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, basePath), "/")
	if strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch {
	case id == "" && r.Method == http.MethodGet:
		h.handleList(w, r)
	case id == "" && r.Method == http.MethodPost:
		h.handleCreate(w, r)
	case id != "" && r.Method == http.MethodGet:
		h.handleGet(w, r, id)
	case id != "" && r.Method == http.MethodDelete:
		h.handleDelete(w, r, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListStations(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := make([]stationResponse, 0, len(list))
	for _, station := range list {
		resp = append(resp, stationResponse{ID: station.ID, Name: station.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, http.StatusRequestEntityTooLarge, "validation", "request body too large")
			return
		}
		writeProblem(w, http.StatusBadRequest, "validation", "read body error")
		return
	}

	var req application.CreateStationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "validation", "invalid json")
		return
	}
	station, err := h.service.CreateStation(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", basePath+"/"+station.ID)
	writeJSON(w, http.StatusCreated, stationResponse{ID: station.ID, Name: station.Name})
	h.logAudit(r, "station.create", station.ID, req)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	station, err := h.service.GetStation(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stationResponse{ID: station.ID, Name: station.Name})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.service.DeleteStation(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, "station.delete", id, nil)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stations.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, stations.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, stations.ErrStationInUse):
		writeProblem(w, http.StatusConflict, "station_in_use", err.Error())
	default:
		if h.logger != nil {
			h.logger.Printf("stations handler: %v", err)
		}
		writeProblem(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (h *Handler) logAudit(r *http.Request, action, stationID string, payload any) {
	if h.auditLogger == nil {
		return
	}
	if err := h.auditLogger.Log(r.Context(), audit.FromRequest(r, action, "station", stationID, payload)); err != nil && h.logger != nil {
		h.logger.Printf("stations handler: audit %s: %v", action, err)
	}
}

func writeProblem(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]string{"error": kind, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
