// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eventsphere/engine/internal/model"
	"github.com/eventsphere/engine/internal/service"
)

// Handler holds all HTTP handlers for the engine API.
type Handler struct {
	svc *service.Services
	log *logrus.Logger
}

// New constructs a Handler.
func New(svc *service.Services, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Router builds the chi router with the full route table.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(h.log))           // structured access log
	r.Use(CORS)

	r.Get("/health", HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Put("/{id}", h.UpdateEvent)
		r.Post("/{id}/submit", h.SubmitForApproval)
		r.Post("/{id}/approve", h.ApproveEvent)
		r.Post("/{id}/reject", h.RejectEvent)
		r.Post("/{id}/register", h.Register)
		r.Get("/{id}/registrations", h.ListRegistrations)
		r.Get("/{id}/registrations/export", h.ExportRegistrations)
		r.Post("/{id}/checkin-token", h.IssueCheckInToken)
		r.Post("/{id}/attendance", h.MarkAttendance)
		r.Get("/{id}/attendance", h.AttendanceLogs)
		r.Post("/{id}/edit-requests", h.ProposeEdit)
	})

	r.Route("/registrations", func(r chi.Router) {
		r.Get("/", h.MyRegistrations)
		r.Delete("/{id}", h.CancelRegistration)
	})

	r.Route("/edit-requests", func(r chi.Router) {
		r.Get("/pending", h.ListPendingEdits)
		r.Post("/{id}/process", h.ProcessEdit)
	})

	return r
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

// callerID returns the authenticated user resolved upstream. Identity
// resolution itself is an external collaborator; the gateway forwards
// the resolved id in this header.
func callerID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), model.ErrorResponse{Error: err.Error(), Code: model.Code(err)})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: msg, Code: model.Code(model.ErrInvalidInput)})
}

// statusFor maps the domain error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrEventNotFound),
		errors.Is(err, model.ErrRegistrationNotFound),
		errors.Is(err, model.ErrEditRequestNotFound),
		errors.Is(err, model.ErrAttendanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrEventNotApproved),
		errors.Is(err, model.ErrAlreadyRegistered),
		errors.Is(err, model.ErrEventFull),
		errors.Is(err, model.ErrEventLocked),
		errors.Is(err, model.ErrTokenAlreadyUsed),
		errors.Is(err, model.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, model.ErrTokenInvalid),
		errors.Is(err, model.ErrTokenExpired),
		errors.Is(err, model.ErrEventEndTimeUndefined),
		errors.Is(err, model.ErrEventAlreadyEnded),
		errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.Events.Create(r.Context(), req, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events?status=APPROVED
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	status := model.EventStatus(r.URL.Query().Get("status"))
	events, err := h.svc.Events.List(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.Events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// UpdateEvent handles PUT /events/{id}
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.Events.Update(r.Context(), chi.URLParam(r, "id"), req, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// SubmitForApproval handles POST /events/{id}/submit
func (h *Handler) SubmitForApproval(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Events.SubmitForApproval(r.Context(), chi.URLParam(r, "id"), callerID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "submitted"})
}

// ApproveEvent handles POST /events/{id}/approve
func (h *Handler) ApproveEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Events.Approve(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// RejectEvent handles POST /events/{id}/reject
func (h *Handler) RejectEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Events.Reject(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// ─── Registrations ────────────────────────────────────────────────────────────

// Register handles POST /events/{id}/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.Registrations.Register(r.Context(), chi.URLParam(r, "id"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// CancelRegistration handles DELETE /registrations/{id}
func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Registrations.Cancel(r.Context(), chi.URLParam(r, "id"), callerID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// MyRegistrations handles GET /registrations
func (h *Handler) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.Registrations.ListForUser(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// ListRegistrations handles GET /events/{id}/registrations
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.Registrations.ListForEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// ExportRegistrations handles GET /events/{id}/registrations/export
func (h *Handler) ExportRegistrations(w http.ResponseWriter, r *http.Request) {
	csv, err := h.svc.Registrations.ExportCSV(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="registrations.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(csv)
}

// ─── Attendance ───────────────────────────────────────────────────────────────

// IssueCheckInToken handles POST /events/{id}/checkin-token
func (h *Handler) IssueCheckInToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.svc.Attendance.IssueToken(r.Context(), callerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": tok})
}

// MarkAttendance handles POST /events/{id}/attendance
func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	var req model.MarkAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	rec, err := h.svc.Attendance.Mark(r.Context(), callerID(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// AttendanceLogs handles GET /events/{id}/attendance
func (h *Handler) AttendanceLogs(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.Attendance.Logs(r.Context(), callerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []model.AttendanceRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// ─── Edit requests ────────────────────────────────────────────────────────────

// ProposeEdit handles POST /events/{id}/edit-requests
func (h *Handler) ProposeEdit(w http.ResponseWriter, r *http.Request) {
	var patch model.EventPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	req, err := h.svc.EditRequests.Propose(r.Context(), chi.URLParam(r, "id"), callerID(r), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListPendingEdits handles GET /edit-requests/pending
func (h *Handler) ListPendingEdits(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.svc.EditRequests.ListPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if reqs == nil {
		reqs = []model.EventEditRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// ProcessEdit handles POST /edit-requests/{id}/process
func (h *Handler) ProcessEdit(w http.ResponseWriter, r *http.Request) {
	var decision model.ProcessEditRequest
	if err := decodeJSON(r, &decision); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	req, err := h.svc.EditRequests.Process(r.Context(), chi.URLParam(r, "id"), decision, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
