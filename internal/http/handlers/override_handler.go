package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
	"github.com/2003deepak/MarkMe-sub000/internal/service"
)

type OverrideHandler struct {
	service *service.ExceptionService
}

func NewOverrideHandler(svc *service.ExceptionService) *OverrideHandler {
	return &OverrideHandler{service: svc}
}

func (h *OverrideHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/sessions/override", h.handleSubmitOverride)
}

type submitOverrideRequest struct {
	SlotID       string            `json:"slot_id"`
	Date         string            `json:"date"`
	Action       string            `json:"action"`
	NewStart     string            `json:"new_start"`
	NewEnd       string            `json:"new_end"`
	Subject      domain.SubjectRef `json:"subject"`
	Program      string            `json:"program"`
	Department   string            `json:"department"`
	Semester     int               `json:"semester"`
	AcademicYear string            `json:"academic_year"`
}

type submitOverrideResponse struct {
	OverrideID string `json:"override_id"`
}

func (h *OverrideHandler) handleSubmitOverride(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userIDHeader := r.Header.Get("X-User-ID")
	if userIDHeader == "" {
		writeError(w, http.StatusBadRequest)
		return
	}
	requesterID, err := uuid.Parse(userIDHeader)
	if err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}

	var req submitOverrideRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}

	date, err := time.ParseInLocation(domain.DateLayout, req.Date, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}

	var slotID *uuid.UUID
	if req.SlotID != "" {
		parsed, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest)
			return
		}
		slotID = &parsed
	}

	newStart, err := parseTimeOptional(req.NewStart)
	if err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}
	newEnd, err := parseTimeOptional(req.NewEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}

	override, err := h.service.SubmitOverride(r.Context(), requesterID, service.OverrideRequest{
		SlotID:       slotID,
		Date:         date,
		Action:       domain.OverrideAction(req.Action),
		NewStart:     newStart,
		NewEnd:       newEnd,
		Subject:      req.Subject,
		Program:      req.Program,
		Department:   req.Department,
		Semester:     req.Semester,
		AcademicYear: req.AcademicYear,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			writeError(w, http.StatusBadRequest)
		case errors.Is(err, service.ErrUnauthorized):
			writeError(w, http.StatusForbidden)
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound)
		case errors.Is(err, service.ErrConflict):
			writeError(w, http.StatusConflict)
		default:
			writeError(w, http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(submitOverrideResponse{OverrideID: override.ID.String()})
}

func writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("{}"))
}

func parseTimeOptional(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation("15:04", value, time.Local)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
