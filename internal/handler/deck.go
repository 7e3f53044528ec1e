package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tomato-slides/internal/apperror"
	"github.com/sakif/tomato-slides/internal/service"
)

// DeckHandler serves slide deck uploads and speaker notes.
type DeckHandler struct {
	decks     *service.DeckService
	maxUpload int64
	logger    *slog.Logger
}

// NewDeckHandler creates a DeckHandler accepting PDFs up to maxUpload bytes.
func NewDeckHandler(decks *service.DeckService, maxUpload int64, logger *slog.Logger) *DeckHandler {
	return &DeckHandler{decks: decks, maxUpload: maxUpload, logger: logger}
}

// UploadResponse is the body of a deck upload, successful or not.
type UploadResponse struct {
	Success        bool     `json:"success"`
	SessionCode    string   `json:"sessionCode,omitempty"`
	Slides         []string `json:"slides,omitempty"`
	PresenterToken string   `json:"presenterToken,omitempty"`
	Message        string   `json:"message,omitempty"`
}

// HandleUpload converts an uploaded PDF into a deck.
//
// HTTP: POST /api/sessions/upload   multipart: file=<pdf>, notes=<json array>
func (h *DeckHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, apperror.ValidationFailed("file", "expected a multipart form with a PDF file"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperror.ValidationFailed("file", "file is required"))
		return
	}
	defer file.Close()

	result, err := h.decks.Upload(r.Context(), file, r.FormValue("notes"))
	if err != nil {
		if errors.Is(err, service.ErrConversion) {
			writeJSON(w, http.StatusInternalServerError, UploadResponse{Success: false, Message: service.ErrConversion.Error()})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		Success:        true,
		SessionCode:    result.Deck.ID,
		Slides:         result.Deck.Slides,
		PresenterToken: result.PresenterToken,
	})
}

// HandleNotes returns a deck's speaker notes.
//
// HTTP: GET /api/sessions/{code}/notes → {"notes": [...]}
func (h *DeckHandler) HandleNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.decks.Notes(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"notes": notes})
}
