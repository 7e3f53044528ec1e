// Package handler contains the HTTP handlers of the classroom server.
//
// Handlers only translate: they parse the request, call a service and write the
// response through writeJSON / writeError. Rules live in the services.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tomato-slides/internal/model"
	"github.com/sakif/tomato-slides/internal/service"
)

// SessionHandler serves the student roster: joining, saving code and the
// presenter's dashboard.
type SessionHandler struct {
	sessions *service.SessionService
	logger   *slog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

type joinRequest struct {
	Name string `json:"name"`
}

type saveCodeRequest struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Output    string `json:"output"`
}

// studentView is what the dashboard shows for one student.
type studentView struct {
	Name   string `json:"name"`
	Code   string `json:"code"`
	Output string `json:"output"`
}

// HandleJoin registers a student.
//
// HTTP: POST /api/sessions/{code}/join   {"name": "Ada"} → {"studentId": "..."}
func (h *SessionHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.sessions.Join(r.Context(), chi.URLParam(r, "code"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"studentId": id})
}

// HandleSaveCode stores a student's latest code and output.
//
// HTTP: POST /api/sessions/{code}/code
func (h *SessionHandler) HandleSaveCode(w http.ResponseWriter, r *http.Request) {
	var req saveCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.sessions.SaveCode(r.Context(), chi.URLParam(r, "code"), req.StudentID, req.Name, req.Code, req.Output)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleListStudents returns the session's roster.
//
// HTTP: GET /api/sessions/{code}/students → {"students": [...]}
func (h *SessionHandler) HandleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.sessions.Students(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	if students == nil {
		students = []model.Student{}
	}

	writeJSON(w, http.StatusOK, map[string][]model.Student{"students": students})
}

// HandleGetStudent returns one student's code for the presenter to inspect.
//
// HTTP: GET /api/sessions/{code}/students/{studentId}
func (h *SessionHandler) HandleGetStudent(w http.ResponseWriter, r *http.Request) {
	student, err := h.sessions.Student(r.Context(), chi.URLParam(r, "code"), chi.URLParam(r, "studentId"))
	if err != nil {
		writeError(w, err)
		return
	}

	name := student.Name
	if name == "" {
		name = "Unknown"
	}
	writeJSON(w, http.StatusOK, studentView{Name: name, Code: student.Code, Output: student.Output})
}
