package pion

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var _ port.PeerConnectionFactory = (*Factory)(nil)

// LocalTrack is implemented by tracks that can sit on a pion sender.
type LocalTrack interface {
	TrackLocal() webrtc.TrackLocal
}

type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

func NewFactory(iceServers []webrtc.ICEServer) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	return &Factory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		config: webrtc.Configuration{ICEServers: iceServers},
	}, nil
}

// ICEServers builds the server list from STUN urls and an optional TURN relay.
func ICEServers(stun []string, turnURL, username, credential string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if turnURL != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{turnURL},
			Username:   username,
			Credential: credential,
		})
	}
	return servers
}

func (f *Factory) NewPeerConnection(remote domain.ParticipantID) (port.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, err
	}

	c := &peerConnection{
		remote:  remote,
		pc:      pc,
		events:  make(chan domain.PeerEvent, 64),
		closed:  make(chan struct{}),
		senders: make(map[domain.MediaKind]*webrtc.RTPSender, 2),
	}

	// One sendrecv transceiver per kind, so tracks can be swapped in later
	// without renegotiating.
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		tr, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		})
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
		c.senders[mediaKind(kind)] = tr.Sender()
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.post(domain.CandidateProduced{Candidate: fromCandidateInit(cand.ToJSON())})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Debug().Str("kind", track.Kind().String()).Str("remote", remote.String()).Msg("Received remote track")
		c.post(domain.TrackReceived{Track: domain.RemoteTrack{
			ID:       track.ID(),
			StreamID: track.StreamID(),
			Kind:     mediaKind(track.Kind()),
		}})
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go c.requestKeyframes(track.SSRC())
		}
		go c.discard(track)
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.post(domain.ConnectivityChanged{State: connectivity(s)})
	})

	return c, nil
}

type peerConnection struct {
	remote  domain.ParticipantID
	pc      *webrtc.PeerConnection
	events  chan domain.PeerEvent
	senders map[domain.MediaKind]*webrtc.RTPSender

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *peerConnection) Events() <-chan domain.PeerEvent {
	return c.events
}

// post blocks the pion callback until the negotiator takes the event or the
// connection closes.
func (c *peerConnection) post(ev domain.PeerEvent) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

func (c *peerConnection) SetTrack(kind domain.MediaKind, track port.Track) error {
	sender, ok := c.senders[kind]
	if !ok {
		return fmt.Errorf("no %s sender", kind)
	}
	if track == nil {
		return sender.ReplaceTrack(nil)
	}
	lt, ok := track.(LocalTrack)
	if !ok {
		return fmt.Errorf("track %s cannot be sent by pion", track.ID())
	}
	return sender.ReplaceTrack(lt.TrackLocal())
}

func (c *peerConnection) CreateOffer(iceRestart bool) (domain.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return domain.SessionDescription{Type: domain.SDPOffer, SDP: offer.SDP}, nil
}

func (c *peerConnection) CreateAnswer() (domain.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return domain.SessionDescription{Type: domain.SDPAnswer, SDP: answer.SDP}, nil
}

func (c *peerConnection) SetLocalDescription(sd domain.SessionDescription) error {
	return c.pc.SetLocalDescription(toSessionDescription(sd))
}

func (c *peerConnection) SetRemoteDescription(sd domain.SessionDescription) error {
	return c.pc.SetRemoteDescription(toSessionDescription(sd))
}

func (c *peerConnection) AddICECandidate(cand domain.ICECandidate) error {
	return c.pc.AddICECandidate(toCandidateInit(cand))
}

func (c *peerConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.pc.Close()
	})
	return err
}

// requestKeyframes sends a PLI right away and then every 3 seconds.
func (c *peerConnection) requestKeyframes(ssrc webrtc.SSRC) {
	send := func() {
		err := c.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}})
		if err != nil && !errors.Is(err, webrtc.ErrConnectionClosed) {
			log.Debug().Err(err).Msg("Failed to send PLI")
		}
	}
	send()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			send()
		}
	}
}

// discard drains RTP so the receiver's buffers keep moving. Rendering is
// up to whatever consumes RemoteTrackAdded.
func (c *peerConnection) discard(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func mediaKind(k webrtc.RTPCodecType) domain.MediaKind {
	if k == webrtc.RTPCodecTypeAudio {
		return domain.MediaAudio
	}
	return domain.MediaVideo
}

func connectivity(s webrtc.ICEConnectionState) domain.ConnectivityState {
	switch s {
	case webrtc.ICEConnectionStateChecking:
		return domain.ConnectivityChecking
	case webrtc.ICEConnectionStateConnected:
		return domain.ConnectivityConnected
	case webrtc.ICEConnectionStateCompleted:
		return domain.ConnectivityCompleted
	case webrtc.ICEConnectionStateDisconnected:
		return domain.ConnectivityDisconnected
	case webrtc.ICEConnectionStateFailed:
		return domain.ConnectivityFailed
	case webrtc.ICEConnectionStateClosed:
		return domain.ConnectivityClosed
	default:
		return domain.ConnectivityNew
	}
}

func toSessionDescription(sd domain.SessionDescription) webrtc.SessionDescription {
	t := webrtc.SDPTypeOffer
	if sd.Type == domain.SDPAnswer {
		t = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: t, SDP: sd.SDP}
}

func toCandidateInit(c domain.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromCandidateInit(c webrtc.ICECandidateInit) domain.ICECandidate {
	return domain.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
