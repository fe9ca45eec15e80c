package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyJoined = errors.New("already in a meeting")
	ErrNotJoined     = errors.New("not in a meeting")
)

type CallConfig struct {
	Negotiation    NegotiatorConfig
	CaptureRetries int
	CaptureBackoff time.Duration
	EventBuffer    int
}

func (c CallConfig) withDefaults() CallConfig {
	if c.CaptureRetries == 0 {
		c.CaptureRetries = 2
	}
	if c.CaptureBackoff <= 0 {
		c.CaptureBackoff = 250 * time.Millisecond
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return c
}

// CallService runs the local participant's side of a meeting: it joins,
// captures media, follows the roster and signaling log, and tears it all
// down on leave or when the host ends the meeting.
type CallService struct {
	self      domain.Identity
	lifecycle port.Lifecycle
	feed      port.MeetingFeed
	gateway   port.SignalGateway
	capture   port.Capture
	peers     port.PeerConnectionFactory
	cfg       CallConfig
	events    chan domain.CallEvent
	now       func() time.Time

	// opMu serializes Join, Leave and EndMeeting.
	opMu    sync.Mutex
	mu      sync.Mutex
	session *callSession
}

type callSession struct {
	meeting    domain.Meeting
	media      *LocalMedia
	negotiator *Negotiator
	directory  *Directory
	cancel     context.CancelFunc
	done       chan struct{}
	once       sync.Once
}

func NewCallService(
	self domain.Identity,
	lifecycle port.Lifecycle,
	feed port.MeetingFeed,
	gateway port.SignalGateway,
	capture port.Capture,
	peers port.PeerConnectionFactory,
	cfg CallConfig,
) *CallService {
	cfg = cfg.withDefaults()
	return &CallService{
		self:      self,
		lifecycle: lifecycle,
		feed:      feed,
		gateway:   gateway,
		capture:   capture,
		peers:     peers,
		cfg:       cfg,
		events:    make(chan domain.CallEvent, cfg.EventBuffer),
		now:       time.Now,
	}
}

func (c *CallService) Events() <-chan domain.CallEvent {
	return c.events
}

func (c *CallService) emit(ev domain.CallEvent) {
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("participant_id", c.self.ID.String()).Msgf("Event channel full, dropping %T", ev)
	}
}

// Join fails fast with ErrNotFound or ErrMeetingEnded before any capture is
// requested. Capture failures do not fail the join.
func (c *CallService) Join(ctx context.Context, meetingID domain.MeetingID) (port.JoinResult, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.current() != nil {
		return port.JoinResult{}, ErrAlreadyJoined
	}

	start := c.now()
	res, err := c.lifecycle.Join(ctx, meetingID, c.self)
	if err != nil {
		return port.JoinResult{}, err
	}
	since := res.Since
	if since.IsZero() {
		since = start
	}

	l := log.With().Str("meeting_id", meetingID.String()).Str("participant_id", c.self.ID.String()).Logger()

	media := NewLocalMedia(c.capture, c.cfg.CaptureRetries, c.cfg.CaptureBackoff)
	if err := media.Start(ctx); err != nil {
		l.Warn().Err(err).Msg("Media capture failed")
		c.emit(domain.CaptureFailed{Err: err, Guidance: domain.Guidance(err)})
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &callSession{
		meeting: res.Meeting,
		media:   media,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.negotiator = NewNegotiator(meetingID, c.self.ID, c.gateway, c.peers, media, c.emit, c.cfg.Negotiation)
	s.directory = NewDirectory(c.self.ID, res.Meeting.HostID, s.negotiator, c.emit)

	abort := func(err error) (port.JoinResult, error) {
		cancel()
		media.Stop()
		if lerr := c.lifecycle.Leave(ctx, meetingID, c.self.ID); lerr != nil {
			l.Warn().Err(lerr).Msg("Failed to roll back join")
		}
		return port.JoinResult{}, domain.NewOpError("join", fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err))
	}

	signals, err := c.gateway.Subscribe(sessCtx, meetingID, c.self.ID, since)
	if err != nil {
		return abort(err)
	}
	roster, err := c.feed.WatchParticipants(sessCtx, meetingID)
	if err != nil {
		return abort(err)
	}
	meetings, err := c.feed.WatchMeeting(sessCtx, meetingID)
	if err != nil {
		return abort(err)
	}

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	if flags := media.Flags(); flags != res.Participant.Media {
		if err := c.lifecycle.UpdateMedia(ctx, meetingID, c.self.ID, flags); err != nil {
			l.Warn().Err(err).Msg("Failed to publish media flags")
		}
		res.Participant.Media = flags
	}

	c.emit(domain.Joined{Meeting: res.Meeting, Self: res.Participant})
	l.Info().Str("host_id", res.Meeting.HostID.String()).Msg("Joined meeting")

	go c.run(sessCtx, s, signals, roster, meetings)
	return res, nil
}

func (c *CallService) run(ctx context.Context, s *callSession, signals <-chan domain.Signal, roster <-chan domain.RosterChange, meetings <-chan domain.Meeting) {
	defer close(s.done)
	l := log.With().Str("meeting_id", s.meeting.ID.String()).Str("participant_id", c.self.ID.String()).Logger()

	for {
		select {
		case <-ctx.Done():
			return

		case sig, ok := <-signals:
			if !ok {
				l.Warn().Msg("Signal feed closed")
				signals = nil
				continue
			}
			s.negotiator.HandleSignal(sig)

		case ch, ok := <-roster:
			if !ok {
				l.Warn().Msg("Roster feed closed")
				roster = nil
				continue
			}
			s.directory.Apply(ch)

		case m, ok := <-meetings:
			if !ok {
				l.Warn().Msg("Meeting feed closed")
				meetings = nil
				continue
			}
			if !m.IsActive() {
				l.Info().Msg("Meeting ended by host")
				c.teardown(s, true)
				return
			}
		}
	}
}

// teardown closes every connection and stops local media before returning.
func (c *CallService) teardown(s *callSession, ended bool) {
	s.once.Do(func() {
		s.cancel()
		s.negotiator.Close()
		s.media.Stop()

		c.mu.Lock()
		if c.session == s {
			c.session = nil
		}
		c.mu.Unlock()

		if ended {
			c.emit(domain.MeetingEndedEvent{Meeting: s.meeting.ID})
		} else {
			c.emit(domain.Left{Meeting: s.meeting.ID})
		}
	})
}

// Leave releases local resources first, then removes our roster record.
func (c *CallService) Leave(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s := c.current()
	if s == nil {
		return nil
	}
	c.teardown(s, false)
	<-s.done
	return c.lifecycle.Leave(ctx, s.meeting.ID, c.self.ID)
}

func (c *CallService) EndMeeting(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s := c.current()
	if s == nil {
		return ErrNotJoined
	}
	if !s.meeting.IsHost(c.self.ID) {
		return domain.NewOpError("end meeting", domain.ErrPermissionDenied)
	}
	if err := c.lifecycle.EndMeeting(ctx, s.meeting.ID, c.self.ID); err != nil {
		return err
	}
	c.teardown(s, true)
	<-s.done
	return nil
}

func (c *CallService) ToggleAudio(ctx context.Context) (bool, error) {
	return c.toggle(ctx, domain.MediaAudio)
}

func (c *CallService) ToggleVideo(ctx context.Context) (bool, error) {
	return c.toggle(ctx, domain.MediaVideo)
}

func (c *CallService) toggle(ctx context.Context, kind domain.MediaKind) (bool, error) {
	s := c.current()
	if s == nil {
		return false, ErrNotJoined
	}

	added, enabled, err := s.media.Toggle(ctx, kind)
	if err != nil {
		if domain.IsCaptureError(err) {
			c.emit(domain.CaptureFailed{Err: err, Guidance: domain.Guidance(err)})
		}
		return false, err
	}
	if added != nil && !(kind == domain.MediaVideo && s.media.Sharing()) {
		if err := s.negotiator.SetTrack(ctx, kind, added); err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("New track not attached everywhere")
		}
	}

	if err := c.lifecycle.UpdateMedia(ctx, s.meeting.ID, c.self.ID, s.media.Flags()); err != nil {
		log.Warn().Err(err).Msg("Failed to publish media flags")
	}
	return enabled, nil
}

// ShareScreen swaps the video sender on every connection to a display track.
func (c *CallService) ShareScreen(ctx context.Context) error {
	s := c.current()
	if s == nil {
		return ErrNotJoined
	}
	t, err := s.media.StartScreen(ctx)
	if err != nil {
		if domain.IsCaptureError(err) {
			c.emit(domain.CaptureFailed{Err: err, Guidance: domain.Guidance(err)})
		}
		return err
	}
	return s.negotiator.SetTrack(ctx, domain.MediaVideo, t)
}

func (c *CallService) StopScreenShare(ctx context.Context) error {
	s := c.current()
	if s == nil {
		return ErrNotJoined
	}
	if !s.media.Sharing() {
		return nil
	}
	return s.negotiator.SetTrack(ctx, domain.MediaVideo, s.media.StopScreen())
}

func (c *CallService) PeerState(remote domain.ParticipantID) (domain.PeerState, bool) {
	s := c.current()
	if s == nil {
		return "", false
	}
	return s.negotiator.State(remote)
}

func (c *CallService) Roster() []domain.Participant {
	s := c.current()
	if s == nil {
		return nil
	}
	return s.directory.Roster()
}

func (c *CallService) MediaFlags() domain.MediaFlags {
	s := c.current()
	if s == nil {
		return domain.MediaFlags{}
	}
	return s.media.Flags()
}

func (c *CallService) current() *callSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
