package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
)

// Compile-time interface checks.
var (
	_ port.PeerConnection        = (*fakePeer)(nil)
	_ port.PeerConnectionFactory = (*fakeFactory)(nil)
	_ port.Capture               = (*fakeCapture)(nil)
	_ port.Track                 = (*fakeTrack)(nil)
	_ port.SignalGateway         = (*recordingGateway)(nil)
	_ port.SignalGateway         = (*flakyGateway)(nil)
)

// fakePeer records what the negotiator asks of it. Events are injected by
// the test through emit.
type fakePeer struct {
	remote domain.ParticipantID
	events chan domain.PeerEvent
	// connects reports ConnectivityConnected once an answer completes the
	// offer/answer exchange, as a linked pair would.
	connects bool

	mu         sync.Mutex
	local      []domain.SessionDescription
	remoteSDP  []domain.SessionDescription
	applied    []domain.ICECandidate
	early      int
	restarts   int
	offers     int
	answers    int
	tracks     map[domain.MediaKind]port.Track
	closed     bool
	closeCalls int
}

func newFakePeer(remote domain.ParticipantID) *fakePeer {
	return &fakePeer{
		remote: remote,
		events: make(chan domain.PeerEvent, 64),
		tracks: make(map[domain.MediaKind]port.Track),
	}
}

func (p *fakePeer) Events() <-chan domain.PeerEvent { return p.events }

func (p *fakePeer) emit(ev domain.PeerEvent) { p.events <- ev }

func (p *fakePeer) SetTrack(kind domain.MediaKind, track port.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("closed")
	}
	if track == nil {
		delete(p.tracks, kind)
		return nil
	}
	p.tracks[kind] = track
	return nil
}

func (p *fakePeer) CreateOffer(iceRestart bool) (domain.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers++
	if iceRestart {
		p.restarts++
	}
	return domain.SessionDescription{Type: domain.SDPOffer, SDP: fmt.Sprintf("offer-%s-%d", p.remote, p.offers)}, nil
}

func (p *fakePeer) CreateAnswer() (domain.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers++
	return domain.SessionDescription{Type: domain.SDPAnswer, SDP: fmt.Sprintf("answer-%s-%d", p.remote, p.answers)}, nil
}

func (p *fakePeer) SetLocalDescription(sd domain.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = append(p.local, sd)
	if sd.Type == domain.SDPAnswer && len(p.remoteSDP) > 0 {
		p.reportConnectedLocked()
	}
	return nil
}

func (p *fakePeer) SetRemoteDescription(sd domain.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteSDP = append(p.remoteSDP, sd)
	if sd.Type == domain.SDPAnswer && len(p.local) > 0 {
		p.reportConnectedLocked()
	}
	return nil
}

func (p *fakePeer) reportConnectedLocked() {
	if !p.connects || p.closed {
		return
	}
	select {
	case p.events <- domain.ConnectivityChanged{State: domain.ConnectivityConnected}:
	default:
	}
}

func (p *fakePeer) AddICECandidate(c domain.ICECandidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.remoteSDP) == 0 {
		p.early++
		return errors.New("remote description not set")
	}
	p.applied = append(p.applied, c)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeCalls++
	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) appliedCandidates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.applied))
	for _, c := range p.applied {
		out = append(out, c.Candidate)
	}
	return out
}

func (p *fakePeer) track(kind domain.MediaKind) port.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracks[kind]
}

func (p *fakePeer) restartCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

type fakeFactory struct {
	mu     sync.Mutex
	peers  map[domain.ParticipantID][]*fakePeer
	err    error
	linked bool
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{peers: make(map[domain.ParticipantID][]*fakePeer)}
}

// newLinkedFactory makes connections that reach Connected on their own once
// offer and answer have been exchanged.
func newLinkedFactory() *fakeFactory {
	f := newFakeFactory()
	f.linked = true
	return f
}

func (f *fakeFactory) NewPeerConnection(remote domain.ParticipantID) (port.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := newFakePeer(remote)
	p.connects = f.linked
	f.peers[remote] = append(f.peers[remote], p)
	return p, nil
}

// latest returns the newest connection made toward remote, or nil.
func (f *fakeFactory) latest(remote domain.ParticipantID) *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.peers[remote]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// first returns the oldest connection made toward remote, or nil.
func (f *fakeFactory) first(remote domain.ParticipantID) *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if list := f.peers[remote]; len(list) > 0 {
		return list[0]
	}
	return nil
}

func (f *fakeFactory) count(remote domain.ParticipantID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers[remote])
}

type fakeTrack struct {
	id      string
	kind    domain.MediaKind
	enabled atomic.Bool
	stopped atomic.Bool
}

func newFakeTrack(id string, kind domain.MediaKind) *fakeTrack {
	t := &fakeTrack{id: id, kind: kind}
	t.enabled.Store(true)
	return t
}

func (t *fakeTrack) ID() string              { return t.id }
func (t *fakeTrack) Kind() domain.MediaKind  { return t.kind }
func (t *fakeTrack) Enabled() bool           { return t.enabled.Load() }
func (t *fakeTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *fakeTrack) Stop()                   { t.stopped.Store(true) }

type fakeStream struct {
	tracks []port.Track
}

func (s fakeStream) Tracks() []port.Track { return s.tracks }

// fakeCapture fails with err, or only for video with videoErr. Each
// RequestCapture first waits delay, as a permission prompt would.
type fakeCapture struct {
	delay time.Duration

	mu       sync.Mutex
	err      error
	videoErr error
	calls    int
	seq      int
	issued   []*fakeTrack
}

func (c *fakeCapture) RequestCapture(ctx context.Context, req port.CaptureRequest) (port.Stream, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if req.Video && c.videoErr != nil {
		return nil, c.videoErr
	}
	var s fakeStream
	if req.Audio {
		s.tracks = append(s.tracks, c.newTrackLocked(domain.MediaAudio))
	}
	if req.Video {
		s.tracks = append(s.tracks, c.newTrackLocked(domain.MediaVideo))
	}
	return s, nil
}

func (c *fakeCapture) RequestDisplay(ctx context.Context) (port.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.newTrackLocked(domain.MediaVideo), nil
}

func (c *fakeCapture) newTrackLocked(kind domain.MediaKind) *fakeTrack {
	c.seq++
	t := newFakeTrack(fmt.Sprintf("%s-%d", kind, c.seq), kind)
	c.issued = append(c.issued, t)
	return t
}

func (c *fakeCapture) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// recordingGateway keeps every published signal and never delivers them.
type recordingGateway struct {
	mu   sync.Mutex
	sent []domain.Signal
}

func (g *recordingGateway) Publish(ctx context.Context, sig domain.Signal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sig)
	return nil
}

func (g *recordingGateway) Subscribe(ctx context.Context, meetingID domain.MeetingID, receiver domain.ParticipantID, since time.Time) (<-chan domain.Signal, error) {
	return make(chan domain.Signal), nil
}

func (g *recordingGateway) signals() []domain.Signal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Signal(nil), g.sent...)
}

func (g *recordingGateway) last(kind domain.SignalKind) (domain.Signal, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.sent) - 1; i >= 0; i-- {
		if g.sent[i].Kind == kind {
			return g.sent[i], true
		}
	}
	return domain.Signal{}, false
}

func (g *recordingGateway) count(kind domain.SignalKind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// flakyGateway fails Publish while failing is non-zero. A positive value
// counts down once per failed call, a negative one fails until cleared.
type flakyGateway struct {
	recordingGateway

	fmu      sync.Mutex
	failing  int
	failures int
}

func (g *flakyGateway) Publish(ctx context.Context, sig domain.Signal) error {
	g.fmu.Lock()
	if g.failing != 0 {
		if g.failing > 0 {
			g.failing--
		}
		g.failures++
		g.fmu.Unlock()
		return errors.New("relay unreachable")
	}
	g.fmu.Unlock()
	return g.recordingGateway.Publish(ctx, sig)
}

func (g *flakyGateway) setFailing(n int) {
	g.fmu.Lock()
	defer g.fmu.Unlock()
	g.failing = n
}

func (g *flakyGateway) failureCount() int {
	g.fmu.Lock()
	defer g.fmu.Unlock()
	return g.failures
}

// busGateway delivers published signals to registered negotiators on a
// separate goroutine, in publish order.
type busGateway struct {
	mu      sync.Mutex
	nodes   map[domain.ParticipantID]*Negotiator
	queue   []domain.Signal
	ready   chan struct{}
	stop    chan struct{}
	stopped sync.WaitGroup
}

func newBus(t *testing.T) *busGateway {
	b := &busGateway{
		nodes: make(map[domain.ParticipantID]*Negotiator),
		ready: make(chan struct{}, 1),
		stop:  make(chan struct{}),
	}
	b.stopped.Add(1)
	go b.pump()
	t.Cleanup(func() {
		close(b.stop)
		b.stopped.Wait()
	})
	return b
}

func (b *busGateway) attach(id domain.ParticipantID, n *Negotiator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[id] = n
}

func (b *busGateway) Publish(ctx context.Context, sig domain.Signal) error {
	b.mu.Lock()
	b.queue = append(b.queue, sig)
	b.mu.Unlock()
	select {
	case b.ready <- struct{}{}:
	default:
	}
	return nil
}

func (b *busGateway) Subscribe(ctx context.Context, meetingID domain.MeetingID, receiver domain.ParticipantID, since time.Time) (<-chan domain.Signal, error) {
	return make(chan domain.Signal), nil
}

func (b *busGateway) pump() {
	defer b.stopped.Done()
	for {
		select {
		case <-b.stop:
			return
		case <-b.ready:
		}
		for {
			b.mu.Lock()
			if len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			sig := b.queue[0]
			b.queue = b.queue[1:]
			var targets []*Negotiator
			for id, n := range b.nodes {
				if sig.AddressedTo(id) {
					targets = append(targets, n)
				}
			}
			b.mu.Unlock()
			for _, n := range targets {
				n.HandleSignal(sig)
			}
		}
	}
}

// eventRecorder collects events emitted synchronously by the negotiator.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.CallEvent
}

func (r *eventRecorder) emit(ev domain.CallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) peerLost(remote domain.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if l, ok := ev.(domain.PeerLost); ok && l.Remote == remote {
			return true
		}
	}
	return false
}

func (r *eventRecorder) trackAdded(remote domain.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if a, ok := ev.(domain.RemoteTrackAdded); ok && a.Remote == remote {
			return true
		}
	}
	return false
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// waitFor reads events until one of type T satisfying match arrives.
func waitFor[T domain.CallEvent](t *testing.T, events <-chan domain.CallEvent, match func(T) bool) T {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if v, ok := ev.(T); ok && (match == nil || match(v)) {
				return v
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

type staticTracks map[domain.MediaKind]port.Track

func (s staticTracks) Tracks() map[domain.MediaKind]port.Track { return s }
