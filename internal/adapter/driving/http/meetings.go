package http

import (
	"net/http"
	"time"

	"github.com/Wyydra/huddle/internal/adapter/wire"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/go-chi/chi/v5"
)

func meetingParam(r *http.Request) domain.MeetingID {
	return domain.MeetingID(normalizeID(chi.URLParam(r, "meetingID")))
}

func participantParam(r *http.Request) domain.ParticipantID {
	return domain.ParticipantID(normalizeID(chi.URLParam(r, "participantID")))
}

func (h *Handler) createMeeting(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateMeetingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	host := domain.Identity{ID: domain.ParticipantID(normalizeID(req.HostID)), DisplayName: req.DisplayName}
	if host.ID == "" {
		badRequest(w, "host_id is required")
		return
	}

	m, err := h.Meetings.Create(r.Context(), host)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, wire.FromMeeting(m))
}

func (h *Handler) getMeeting(w http.ResponseWriter, r *http.Request) {
	m, roster, err := h.Meetings.Get(r.Context(), meetingParam(r))
	if err != nil {
		respondError(w, err)
		return
	}
	res := wire.MeetingResponse{
		Meeting:      wire.FromMeeting(m),
		Participants: wire.FromParticipants(roster),
	}
	if h.Hub != nil {
		res.Connections = h.Hub.Count(m.ID)
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req wire.JoinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	who := domain.Identity{ID: domain.ParticipantID(normalizeID(req.ParticipantID)), DisplayName: req.DisplayName}
	if who.ID == "" {
		badRequest(w, "participant_id is required")
		return
	}

	res, err := h.Meetings.Join(r.Context(), meetingParam(r), who)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wire.JoinResponse{
		Meeting:     wire.FromMeeting(res.Meeting),
		Participant: wire.FromParticipant(res.Participant),
		Since:       res.Since,
	})
}

func (h *Handler) leave(w http.ResponseWriter, r *http.Request) {
	var req wire.ParticipantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.Meetings.Leave(r.Context(), meetingParam(r), domain.ParticipantID(normalizeID(req.ParticipantID))); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) end(w http.ResponseWriter, r *http.Request) {
	var req wire.ParticipantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.Meetings.EndMeeting(r.Context(), meetingParam(r), domain.ParticipantID(normalizeID(req.ParticipantID))); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateMedia(w http.ResponseWriter, r *http.Request) {
	var req wire.MediaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	flags := domain.MediaFlags{Audio: req.Audio, Video: req.Video}
	if err := h.Meetings.UpdateMedia(r.Context(), meetingParam(r), participantParam(r), flags); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// publishSignal appends to the meeting's log. The meeting id comes from the
// path and a missing id is filled in here.
func (h *Handler) publishSignal(w http.ResponseWriter, r *http.Request) {
	var req wire.Signal
	if !decodeJSON(w, r, &req) {
		return
	}
	sig := stampSignal(req.Domain(), meetingParam(r), "")
	if err := h.Signals.Publish(r.Context(), sig); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, wire.FromSignal(sig))
}

// stampSignal pins the meeting and, when from is set, the sender. CreatedAt
// is always the relay's, whatever the sender's clock said.
func stampSignal(sig domain.Signal, meetingID domain.MeetingID, from domain.ParticipantID) domain.Signal {
	sig.MeetingID = meetingID
	if from != "" {
		sig.From = from
	}
	if sig.ID == "" {
		sig.ID = domain.NewMessageID()
	}
	sig.CreatedAt = time.Now().UTC()
	return sig
}
