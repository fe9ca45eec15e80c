package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/rs/zerolog"
)

// peerSession drives one connection to one remote participant. Everything
// except close and State runs on its own goroutine.
type peerSession struct {
	n         *Negotiator
	remote    domain.ParticipantID
	id        domain.SessionID
	initiator bool
	pc        port.PeerConnection
	log       zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	mail      *mailbox
	closeOnce sync.Once

	// sendMu is held across Publish so close can wait out an in-flight send.
	sendMu sync.Mutex

	mu        sync.Mutex
	state     domain.PeerState
	remoteSet bool
	pending   []domain.ICECandidate

	// owned by run
	restarts   int
	grace      *time.Timer
	lastRemote string
}

type peerCommand interface {
	apply(p *peerSession)
}

type signalCommand struct {
	sig domain.Signal
}

func (c signalCommand) apply(p *peerSession) {
	p.handleSignal(c.sig)
}

type trackCommand struct {
	kind   domain.MediaKind
	track  port.Track
	result chan error
}

func (c trackCommand) apply(p *peerSession) {
	c.result <- p.pc.SetTrack(c.kind, c.track)
}

// mailbox is an unbounded FIFO so producers never wait on a slow peer.
type mailbox struct {
	mu    sync.Mutex
	items []peerCommand
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) push(c peerCommand) {
	m.mu.Lock()
	m.items = append(m.items, c)
	m.mu.Unlock()
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []peerCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

func newPeerSession(n *Negotiator, remote domain.ParticipantID, id domain.SessionID, initiator bool, pc port.PeerConnection, early []domain.ICECandidate) *peerSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &peerSession{
		n:         n,
		remote:    remote,
		id:        id,
		initiator: initiator,
		pc:        pc,
		log: n.log.With().
			Str("remote", remote.String()).
			Str("session_id", id.String()).
			Bool("initiator", initiator).
			Logger(),
		ctx:     ctx,
		cancel:  cancel,
		mail:    newMailbox(),
		state:   domain.PeerNew,
		pending: early,
	}
}

func (p *peerSession) State() domain.PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *peerSession) isClosed() bool {
	return p.State() == domain.PeerClosed
}

func (p *peerSession) deliver(sig domain.Signal) {
	p.mail.push(signalCommand{sig: sig})
}

func (p *peerSession) setTrack(ctx context.Context, kind domain.MediaKind, track port.Track) error {
	cmd := trackCommand{kind: kind, track: track, result: make(chan error, 1)}
	p.mail.push(cmd)
	select {
	case err := <-cmd.result:
		return err
	case <-p.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *peerSession) run() {
	defer p.n.wg.Done()
	defer p.stopGrace()

	if p.initiator {
		p.offer(false)
	}

	events := p.pc.Events()
	for {
		select {
		case <-p.ctx.Done():
			return

		case <-p.mail.ready:
			for _, cmd := range p.mail.drain() {
				if p.ctx.Err() != nil {
					return
				}
				cmd.apply(p)
			}

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			p.handleEvent(ev)

		case <-timerC(p.grace):
			p.grace = nil
			if p.State() == domain.PeerDegraded {
				p.fail(fmt.Errorf("%w: no recovery within %s", domain.ErrConnectivityFailed, p.n.cfg.DisconnectGrace))
			}
		}
	}
}

func (p *peerSession) handleSignal(sig domain.Signal) {
	switch sig.Kind {
	case domain.SignalOffer:
		p.acceptOffer(sig)
	case domain.SignalAnswer:
		p.acceptAnswer(sig)
	case domain.SignalCandidate:
		p.addRemoteCandidate(*sig.Candidate)
	}
}

func (p *peerSession) acceptOffer(sig domain.Signal) {
	if p.initiator {
		p.log.Debug().Msg("Dropping offer on an initiating session")
		return
	}
	if sig.SDP == p.lastRemote {
		p.log.Debug().Msg("Dropping duplicate offer")
		return
	}

	if err := p.pc.SetRemoteDescription(sig.Description()); err != nil {
		p.negotiationFailed("set remote offer", err)
		return
	}
	p.lastRemote = sig.SDP
	p.flushPending()

	answer, err := p.pc.CreateAnswer()
	if err != nil {
		p.negotiationFailed("create answer", err)
		return
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		p.negotiationFailed("set local answer", err)
		return
	}

	if !p.transition(domain.PeerAnswering) {
		return
	}
	if err := p.send(domain.NewAnswer(p.n.meetingID, p.n.self, p.remote, p.id, answer.SDP)); err != nil {
		p.negotiationFailed("publish answer", err)
	}
}

func (p *peerSession) acceptAnswer(sig domain.Signal) {
	if !p.initiator || p.State() != domain.PeerOffering {
		p.log.Debug().Str("state", string(p.State())).Msg("Dropping stale answer")
		return
	}
	if sig.SDP == p.lastRemote {
		p.log.Debug().Msg("Dropping duplicate answer")
		return
	}

	if err := p.pc.SetRemoteDescription(sig.Description()); err != nil {
		p.negotiationFailed("set remote answer", err)
		return
	}
	p.lastRemote = sig.SDP
	p.flushPending()
	p.transition(domain.PeerConnected)
}

func (p *peerSession) addRemoteCandidate(c domain.ICECandidate) {
	p.mu.Lock()
	if p.state == domain.PeerClosed {
		p.mu.Unlock()
		return
	}
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(c); err != nil {
		p.log.Debug().Err(err).Msg("Remote candidate not applied")
	}
}

// flushPending applies buffered candidates in arrival order once the remote
// description is in place.
func (p *peerSession) flushPending() {
	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		if p.isClosed() {
			return
		}
		if err := p.pc.AddICECandidate(c); err != nil {
			p.log.Debug().Err(err).Msg("Buffered candidate not applied")
		}
	}
}

func (p *peerSession) handleEvent(ev domain.PeerEvent) {
	switch ev := ev.(type) {
	case domain.CandidateProduced:
		if err := p.send(domain.NewCandidate(p.n.meetingID, p.n.self, p.remote, p.id, ev.Candidate)); err != nil {
			p.log.Warn().Err(err).Msg("Candidate not delivered")
		}

	case domain.TrackReceived:
		if !p.isClosed() {
			p.n.emit(domain.RemoteTrackAdded{Remote: p.remote, Track: ev.Track})
		}

	case domain.ConnectivityChanged:
		p.onConnectivity(ev.State)
	}
}

func (p *peerSession) onConnectivity(state domain.ConnectivityState) {
	p.log.Debug().Str("connectivity", string(state)).Msg("Connectivity changed")

	switch state {
	case domain.ConnectivityConnected, domain.ConnectivityCompleted:
		p.stopGrace()
		switch p.State() {
		case domain.PeerAnswering, domain.PeerDegraded:
			p.restarts = 0
			p.transition(domain.PeerConnected)
		case domain.PeerConnected:
			p.restarts = 0
		}

	case domain.ConnectivityDisconnected:
		if p.State() == domain.PeerConnected {
			p.transition(domain.PeerDegraded)
			p.startGrace()
		}

	case domain.ConnectivityFailed:
		p.stopGrace()
		if st := p.State(); st != domain.PeerFailed && st != domain.PeerClosed {
			p.fail(domain.ErrConnectivityFailed)
		}
	}
}

// fail moves to Failed. Only the initiator renegotiates, with an ICE restart.
func (p *peerSession) fail(cause error) {
	if !p.transition(domain.PeerFailed) {
		return
	}
	p.log.Warn().Err(cause).Int("restarts", p.restarts).Msg("Peer connection failed")

	if !p.initiator {
		return
	}
	if p.restarts >= p.n.cfg.MaxICERestarts {
		p.log.Warn().Msg("ICE restarts exhausted")
		p.n.emit(domain.PeerLost{Remote: p.remote})
		return
	}
	p.restarts++
	p.offer(true)
}

func (p *peerSession) offer(iceRestart bool) {
	sd, err := p.pc.CreateOffer(iceRestart)
	if err != nil {
		p.negotiationFailed("create offer", err)
		return
	}
	if err := p.pc.SetLocalDescription(sd); err != nil {
		p.negotiationFailed("set local offer", err)
		return
	}

	if !p.transition(domain.PeerOffering) {
		return
	}
	if err := p.send(domain.NewOffer(p.n.meetingID, p.n.self, p.remote, p.id, sd.SDP, iceRestart)); err != nil {
		p.negotiationFailed("publish offer", err)
	}
}

func (p *peerSession) negotiationFailed(op string, err error) {
	err = domain.NewOpError(op, fmt.Errorf("%w: %v", domain.ErrNegotiationFailed, err))
	p.log.Error().Err(err).Msg("Negotiation step failed")
	p.transition(domain.PeerFailed)
}

// send publishes sig unless the session is closed, retrying relay failures.
// It returns nil once the session is closed.
func (p *peerSession) send(sig domain.Signal) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if p.isClosed() {
		return nil
	}
	_, err := Retry(p.ctx, p.n.cfg.PublishAttempts, p.n.cfg.PublishBackoff, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.n.gateway.Publish(ctx, sig)
	})
	if err == nil || p.ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("%w: %s not delivered: %v", domain.ErrTransportUnavailable, sig.Kind, err)
}

// transition reports false once the session is closed.
func (p *peerSession) transition(s domain.PeerState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == domain.PeerClosed {
		return false
	}
	if p.state == s {
		return true
	}
	p.state = s
	p.log.Debug().Str("state", string(s)).Msg("Peer state changed")
	p.n.emit(domain.PeerStateChanged{Remote: p.remote, State: s})
	return true
}

func (p *peerSession) startGrace() {
	p.stopGrace()
	p.grace = time.NewTimer(p.n.cfg.DisconnectGrace)
}

func (p *peerSession) stopGrace() {
	if p.grace != nil {
		p.grace.Stop()
		p.grace = nil
	}
}

// close is idempotent and safe from any goroutine. After it returns the
// session sends nothing and applies nothing.
func (p *peerSession) close() {
	p.closeOnce.Do(func() {
		p.cancel()

		p.sendMu.Lock()
		p.mu.Lock()
		p.state = domain.PeerClosed
		p.pending = nil
		p.n.emit(domain.PeerStateChanged{Remote: p.remote, State: domain.PeerClosed})
		p.mu.Unlock()
		p.sendMu.Unlock()

		if err := p.pc.Close(); err != nil {
			p.log.Debug().Err(err).Msg("Error closing peer connection")
		}
	})
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
