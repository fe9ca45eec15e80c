package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errNegotiatorClosed = errors.New("negotiator closed")

type NegotiatorConfig struct {
	// DisconnectGrace is how long a Degraded connection may stay disconnected before it is Failed.
	DisconnectGrace time.Duration
	// MaxICERestarts bounds restarts per connection. Zero means 3, negative disables them.
	MaxICERestarts int
	// PublishAttempts bounds tries per outgoing signal. Zero means 3.
	PublishAttempts int
	PublishBackoff  time.Duration
}

func (c NegotiatorConfig) withDefaults() NegotiatorConfig {
	if c.DisconnectGrace <= 0 {
		c.DisconnectGrace = 5 * time.Second
	}
	switch {
	case c.MaxICERestarts == 0:
		c.MaxICERestarts = 3
	case c.MaxICERestarts < 0:
		c.MaxICERestarts = 0
	}
	if c.PublishAttempts <= 0 {
		c.PublishAttempts = 3
	}
	if c.PublishBackoff <= 0 {
		c.PublishBackoff = 100 * time.Millisecond
	}
	return c
}

// TrackSource hands out the local tracks every new connection starts with.
type TrackSource interface {
	Tracks() map[domain.MediaKind]port.Track
}

// Negotiator owns one peerSession per remote participant of a meeting and
// routes incoming signals to them.
type Negotiator struct {
	meetingID domain.MeetingID
	self      domain.ParticipantID
	gateway   port.SignalGateway
	factory   port.PeerConnectionFactory
	tracks    TrackSource
	emit      func(domain.CallEvent)
	cfg       NegotiatorConfig
	log       zerolog.Logger

	mu      sync.Mutex
	peers   map[domain.ParticipantID]*peerSession
	retired map[domain.SessionID]struct{}
	early   map[domain.SessionID]*earlyCandidates
	closed  bool
	wg      sync.WaitGroup
}

// earlyCandidates holds candidates that reached us before their session's offer.
type earlyCandidates struct {
	from domain.ParticipantID
	list []domain.ICECandidate
}

func NewNegotiator(
	meetingID domain.MeetingID,
	self domain.ParticipantID,
	gateway port.SignalGateway,
	factory port.PeerConnectionFactory,
	tracks TrackSource,
	emit func(domain.CallEvent),
	cfg NegotiatorConfig,
) *Negotiator {
	if emit == nil {
		emit = func(domain.CallEvent) {}
	}
	return &Negotiator{
		meetingID: meetingID,
		self:      self,
		gateway:   gateway,
		factory:   factory,
		tracks:    tracks,
		emit:      emit,
		cfg:       cfg.withDefaults(),
		log:       log.With().Str("meeting_id", meetingID.String()).Str("self", self.String()).Logger(),
		peers:     make(map[domain.ParticipantID]*peerSession),
		retired:   make(map[domain.SessionID]struct{}),
		early:     make(map[domain.SessionID]*earlyCandidates),
	}
}

// Connect makes the local participant the initiator toward remote. It does
// nothing while a live session with remote exists. A Failed session is
// replaced by a new one.
func (n *Negotiator) Connect(remote domain.ParticipantID) error {
	if remote == n.self {
		return nil
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return errNegotiatorClosed
	}
	stale := n.peers[remote]
	if stale != nil {
		if stale.State() != domain.PeerFailed {
			n.mu.Unlock()
			return nil
		}
		n.retireLocked(stale)
	}
	p, err := n.newSessionLocked(remote, domain.NewSessionID(), true, nil)
	n.mu.Unlock()

	if stale != nil {
		stale.log.Info().Msg("Replacing failed connection")
		stale.close()
	}
	if err != nil {
		return err
	}
	p.log.Info().Msg("Initiating connection")
	return nil
}

// HandleSignal routes one incoming signal. Signals for retired sessions and
// answers for sessions we never opened are dropped without error.
func (n *Negotiator) HandleSignal(sig domain.Signal) {
	if err := sig.Validate(); err != nil {
		n.log.Warn().Err(err).Str("from", sig.From.String()).Msg("Ignoring malformed signal")
		return
	}
	if sig.MeetingID != n.meetingID || !sig.AddressedTo(n.self) {
		return
	}

	target, stale := n.route(sig)
	if stale != nil {
		stale.close()
	}
	if target != nil {
		target.deliver(sig)
	}
}

func (n *Negotiator) route(sig domain.Signal) (target, stale *peerSession) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, nil
	}
	l := n.log.With().Str("from", sig.From.String()).Str("session_id", sig.Session.String()).Str("kind", string(sig.Kind)).Logger()

	if _, ok := n.retired[sig.Session]; ok {
		l.Debug().Msg("Dropping signal for retired session")
		return nil, nil
	}

	current := n.peers[sig.From]
	if current != nil && current.id == sig.Session {
		return current, nil
	}

	switch sig.Kind {
	case domain.SignalCandidate:
		e, ok := n.early[sig.Session]
		if !ok {
			e = &earlyCandidates{from: sig.From}
			n.early[sig.Session] = e
		}
		e.list = append(e.list, *sig.Candidate)
		l.Debug().Int("buffered", len(e.list)).Msg("Buffering candidate ahead of its offer")
		return nil, nil

	case domain.SignalAnswer:
		l.Debug().Msg("Dropping answer for unknown session")
		return nil, nil
	}

	if current != nil {
		if current.initiator && (current.State().Established() || n.self > sig.From) {
			// Both sides offered. The smaller identity yields, so this side keeps its own.
			l.Info().Msg("Discarding redundant offer")
			n.retireSessionLocked(sig.Session)
			return nil, nil
		}
		l.Info().Str("replaced_session", current.id.String()).Msg("Remote opened a new session")
		n.retireLocked(current)
		stale = current
	}

	var early []domain.ICECandidate
	if e, ok := n.early[sig.Session]; ok {
		early = e.list
		delete(n.early, sig.Session)
	}
	p, err := n.newSessionLocked(sig.From, sig.Session, false, early)
	if err != nil {
		l.Error().Err(err).Msg("Failed to create peer connection")
		n.retireSessionLocked(sig.Session)
		return nil, stale
	}
	return p, stale
}

// Disconnect tears down the session with remote and forgets its candidates.
func (n *Negotiator) Disconnect(remote domain.ParticipantID) {
	n.mu.Lock()
	p := n.peers[remote]
	if p != nil {
		n.retireLocked(p)
	}
	for id, e := range n.early {
		if e.from == remote {
			delete(n.early, id)
		}
	}
	n.mu.Unlock()

	if p != nil {
		p.log.Info().Msg("Closing connection")
		p.close()
	}
}

// SetTrack replaces the sender track of kind on every open connection. A
// failure on one connection does not stop the others.
func (n *Negotiator) SetTrack(ctx context.Context, kind domain.MediaKind, track port.Track) error {
	var errs []error
	for _, p := range n.sessions() {
		if err := p.setTrack(ctx, kind, track); err != nil {
			p.log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to replace track")
			errs = append(errs, fmt.Errorf("%s: %w", p.remote, err))
		}
	}
	return errors.Join(errs...)
}

func (n *Negotiator) State(remote domain.ParticipantID) (domain.PeerState, bool) {
	n.mu.Lock()
	p, ok := n.peers[remote]
	n.mu.Unlock()
	if !ok {
		return "", false
	}
	return p.State(), true
}

func (n *Negotiator) Remotes() []domain.ParticipantID {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.ParticipantID, 0, len(n.peers))
	for id := range n.peers {
		out = append(out, id)
	}
	return out
}

// Close closes every connection and waits for their loops to stop. Calling
// it again is a no-op.
func (n *Negotiator) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	peers := make([]*peerSession, 0, len(n.peers))
	for _, p := range n.peers {
		n.retireLocked(p)
		peers = append(peers, p)
	}
	n.early = make(map[domain.SessionID]*earlyCandidates)
	n.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	n.wg.Wait()
	n.log.Debug().Int("closed", len(peers)).Msg("Negotiator closed")
}

func (n *Negotiator) sessions() []*peerSession {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*peerSession, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

func (n *Negotiator) newSessionLocked(remote domain.ParticipantID, id domain.SessionID, initiator bool, early []domain.ICECandidate) (*peerSession, error) {
	pc, err := n.factory.NewPeerConnection(remote)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNegotiationFailed, err)
	}

	p := newPeerSession(n, remote, id, initiator, pc, early)
	if n.tracks != nil {
		for kind, t := range n.tracks.Tracks() {
			if err := pc.SetTrack(kind, t); err != nil {
				p.log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to attach local track")
			}
		}
	}

	n.peers[remote] = p
	n.wg.Add(1)
	go p.run()
	return p, nil
}

func (n *Negotiator) retireLocked(p *peerSession) {
	if n.peers[p.remote] == p {
		delete(n.peers, p.remote)
	}
	n.retireSessionLocked(p.id)
}

func (n *Negotiator) retireSessionLocked(id domain.SessionID) {
	n.retired[id] = struct{}{}
	delete(n.early, id)
}
