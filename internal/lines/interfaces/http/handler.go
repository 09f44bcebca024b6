package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"subway-cloud/internal/audit"
	"subway-cloud/internal/auth"
	"subway-cloud/internal/eventing"
	"subway-cloud/internal/lines/application"
	lines "subway-cloud/internal/lines/domain"
	"subway-cloud/internal/lines/interfaces"
	"subway-cloud/internal/observability/metrics"
)

const basePath = "/api/v1/lines"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Handler provides line HTTP endpoints.
type Handler struct {
	service     *application.Service
	auditLogger audit.Logger
	logger      *log.Logger
}

// NewHandler constructs a handler. auditLogger and logger may be nil.
func NewHandler(service *application.Service, auditLogger audit.Logger, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("lines handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger, logger: logger}, nil
}

// Register mounts the line routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle(basePath, h)
	mux.Handle(basePath+"/", h)
}

// ServeHTTP routes /api/v1/lines and its sub-resources.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
		ctx = eventing.WithCorrelationID(ctx, requestID)
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		ctx = eventing.WithActor(ctx, id.Subject)
	}
	r = r.WithContext(ctx)
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, basePath), "/")
	if rest == "" {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	parts := strings.Split(rest, "/")
	lineID := parts[0]
	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, lineID)
		case http.MethodPut:
			h.handleUpdate(w, r, lineID)
		case http.MethodDelete:
			h.handleDelete(w, r, lineID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "sections":
		switch r.Method {
		case http.MethodPost:
			h.handleAppendSection(w, r, lineID)
		case http.MethodDelete:
			h.handleRemoveSection(w, r, lineID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "export."+interfaces.FormatXLSX:
		h.handleExport(w, r, lineID, interfaces.FormatXLSX)
	case len(parts) == 2 && parts[1] == "export."+interfaces.FormatPDF:
		h.handleExport(w, r, lineID, interfaces.FormatPDF)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListLines(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req application.CreateLineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.service.CreateLine(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", basePath+"/"+view.ID)
	writeJSON(w, http.StatusCreated, view)
	h.logAudit(r, "line.create", view.ID, req)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, lineID string) {
	view, err := h.service.GetLine(r.Context(), lineID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, lineID string) {
	var req application.UpdateLineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.service.UpdateLine(r.Context(), lineID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
	h.logAudit(r, "line.update", lineID, req)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, lineID string) {
	if err := h.service.DeleteLine(r.Context(), lineID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, "line.delete", lineID, nil)
}

func (h *Handler) handleAppendSection(w http.ResponseWriter, r *http.Request, lineID string) {
	var req application.AppendSectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.service.AppendSection(r.Context(), lineID, req); err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", basePath+"/"+lineID)
	w.WriteHeader(http.StatusCreated)
	h.logAudit(r, "line.section.append", lineID, req)
}

func (h *Handler) handleRemoveSection(w http.ResponseWriter, r *http.Request, lineID string) {
	stationID := strings.TrimSpace(r.URL.Query().Get("stationId"))
	if stationID == "" {
		writeProblem(w, http.StatusBadRequest, lines.KindValidation, "stationId required")
		return
	}
	if err := h.service.RemoveSection(r.Context(), lineID, stationID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, "line.section.remove", lineID, map[string]string{"stationId": stationID})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, lineID, format string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	view, err := h.service.GetLine(r.Context(), lineID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case interfaces.FormatXLSX:
		data, err = interfaces.BuildLineXLSX(view)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		data, err = interfaces.BuildLinePDF(view)
		contentType = "application/pdf"
	}
	metrics.IncExport(format, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\"line-"+view.ID+"."+format+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// writeError maps domain errors to status codes with a {"error","message"} body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := lines.ErrorKind(err)
	status := http.StatusInternalServerError
	switch {
	case kind == lines.KindNotFound:
		status = http.StatusNotFound
	case kind == lines.KindValidation:
		status = http.StatusBadRequest
	case lines.IsRuleViolation(err):
		status = http.StatusConflict
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		if h.logger != nil {
			h.logger.Printf("lines handler: %v", err)
		}
		message = "internal error"
	}
	writeProblem(w, status, kind, message)
}

func (h *Handler) logAudit(r *http.Request, action, lineID string, payload any) {
	if h.auditLogger == nil {
		return
	}
	if err := h.auditLogger.Log(r.Context(), audit.FromRequest(r, action, "line", lineID, payload)); err != nil && h.logger != nil {
		h.logger.Printf("lines handler: audit %s: %v", action, err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, http.StatusRequestEntityTooLarge, lines.KindValidation, "request body too large")
			return false
		}
		writeProblem(w, http.StatusBadRequest, lines.KindValidation, "read body error")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeProblem(w, http.StatusBadRequest, lines.KindValidation, "invalid json")
		return false
	}
	return true
}

type problem struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeProblem(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, problem{Error: kind, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
