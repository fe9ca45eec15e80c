package service

import (
	"sort"
	"sync"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// PeerController is the part of the negotiator the directory drives.
type PeerController interface {
	Connect(remote domain.ParticipantID) error
	Disconnect(remote domain.ParticipantID)
}

// Initiates reports whether local must send the offer toward remote. Only
// the host initiates, so guests never negotiate with each other.
func Initiates(local, remote, host domain.ParticipantID) bool {
	return local == host && remote != local
}

// Directory keeps the local view of a meeting's roster and turns roster
// changes into connection decisions.
type Directory struct {
	self  domain.ParticipantID
	host  domain.ParticipantID
	peers PeerController
	emit  func(domain.CallEvent)

	mu     sync.Mutex
	roster map[domain.ParticipantID]domain.Participant
}

func NewDirectory(self, host domain.ParticipantID, peers PeerController, emit func(domain.CallEvent)) *Directory {
	if emit == nil {
		emit = func(domain.CallEvent) {}
	}
	return &Directory{
		self:   self,
		host:   host,
		peers:  peers,
		emit:   emit,
		roster: make(map[domain.ParticipantID]domain.Participant),
	}
}

func (d *Directory) Apply(ch domain.RosterChange) {
	switch ch.Kind {
	case domain.ChangeAdded:
		d.OnParticipantAdded(ch.Participant)
	case domain.ChangeModified:
		d.OnParticipantModified(ch.Participant)
	case domain.ChangeRemoved:
		d.OnParticipantRemoved(ch.Participant)
	}
}

func (d *Directory) OnParticipantAdded(p domain.Participant) {
	d.mu.Lock()
	_, known := d.roster[p.ID]
	d.roster[p.ID] = p
	d.mu.Unlock()

	if p.ID == d.self {
		return
	}
	if !known {
		d.emit(domain.ParticipantJoined{Participant: p})
	}
	if !Initiates(d.self, p.ID, d.host) {
		return
	}
	if err := d.peers.Connect(p.ID); err != nil {
		log.Error().Err(err).Str("participant_id", p.ID.String()).Msg("Failed to start negotiation")
	}
}

// OnParticipantModified only informs the UI; media flag changes never renegotiate.
func (d *Directory) OnParticipantModified(p domain.Participant) {
	d.mu.Lock()
	_, known := d.roster[p.ID]
	d.roster[p.ID] = p
	d.mu.Unlock()

	if !known {
		d.OnParticipantAdded(p)
		return
	}
	if p.ID != d.self {
		d.emit(domain.ParticipantUpdated{Participant: p})
	}
}

func (d *Directory) OnParticipantRemoved(p domain.Participant) {
	d.mu.Lock()
	prev, known := d.roster[p.ID]
	delete(d.roster, p.ID)
	d.mu.Unlock()

	if p.ID == d.self {
		return
	}
	d.peers.Disconnect(p.ID)
	if known {
		d.emit(domain.ParticipantLeft{Participant: prev})
	}
}

// Roster returns the known participants ordered by join time.
func (d *Directory) Roster() []domain.Participant {
	d.mu.Lock()
	out := make([]domain.Participant, 0, len(d.roster))
	for _, p := range d.roster {
		out = append(out, p)
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
