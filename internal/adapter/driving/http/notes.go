package http

import (
	"net/http"

	"github.com/Wyydra/huddle/internal/adapter/wire"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/go-chi/chi/v5"
)

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	var req wire.NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.Notes.AddNote(r.Context(), meetingParam(r), domain.ParticipantID(normalizeID(req.OwnerID)), req.Content)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, wire.FromNote(n))
}

func (h *Handler) updateNote(w http.ResponseWriter, r *http.Request) {
	var req wire.UpdateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := domain.NoteID(normalizeID(chi.URLParam(r, "noteID")))
	n, err := h.Notes.UpdateNote(r.Context(), id, domain.ParticipantID(normalizeID(req.EditorID)), req.Content)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wire.FromNote(n))
}

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Notes.ListNotes(r.Context(), participantParam(r))
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]wire.Note, 0, len(notes))
	for _, n := range notes {
		out = append(out, wire.FromNote(n))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Meetings.History(r.Context(), participantParam(r))
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]wire.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, wire.FromHistoryEntry(e))
	}
	respondJSON(w, http.StatusOK, out)
}
