package pion

import (
	"context"
	"sync/atomic"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

var _ port.Capture = (*Capture)(nil)

// Devices describes what a headless participant pretends to have.
type Devices struct {
	Audio   bool
	Video   bool
	Display bool
	// Denied makes every request fail as if the user refused access.
	Denied bool
	// Busy makes camera and microphone requests fail as if another
	// application held them.
	Busy bool
}

// Capture hands out pion sample tracks. Nothing is written to them unless a
// producer feeds samples through Track.Local.
type Capture struct {
	devices  Devices
	streamID string
}

func NewCapture(devices Devices) *Capture {
	return &Capture{
		devices:  devices,
		streamID: uuid.New().String(),
	}
}

func (c *Capture) RequestCapture(ctx context.Context, req port.CaptureRequest) (port.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.devices.Denied {
		return nil, domain.ErrPermissionDenied
	}
	if (req.Audio && !c.devices.Audio) || (req.Video && !c.devices.Video) {
		return nil, domain.ErrDeviceNotFound
	}
	if c.devices.Busy {
		return nil, domain.ErrDeviceBusy
	}

	var kinds []domain.MediaKind
	if req.Audio {
		kinds = append(kinds, domain.MediaAudio)
	}
	if req.Video {
		kinds = append(kinds, domain.MediaVideo)
	}
	s := &stream{}
	for _, k := range kinds {
		t, err := c.newTrack(k, c.streamID)
		if err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}
	return s, nil
}

func (c *Capture) RequestDisplay(ctx context.Context) (port.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.devices.Denied {
		return nil, domain.ErrPermissionDenied
	}
	if !c.devices.Display {
		return nil, domain.ErrDeviceNotFound
	}
	return c.newTrack(domain.MediaVideo, "screen-"+c.streamID)
}

func (c *Capture) newTrack(kind domain.MediaKind, streamID string) (*Track, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	if kind == domain.MediaAudio {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	local, err := webrtc.NewTrackLocalStaticSample(codec, uuid.New().String(), streamID)
	if err != nil {
		return nil, err
	}
	t := &Track{local: local, kind: kind}
	t.enabled.Store(true)
	return t, nil
}

type stream struct {
	tracks []port.Track
}

func (s *stream) Tracks() []port.Track {
	return s.tracks
}

type Track struct {
	local     *webrtc.TrackLocalStaticSample
	kind    domain.MediaKind
	enabled atomic.Bool
	stopped atomic.Bool
}

func (t *Track) ID() string              { return t.local.ID() }
func (t *Track) Kind() domain.MediaKind  { return t.kind }
func (t *Track) Enabled() bool           { return t.enabled.Load() }
func (t *Track) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *Track) Stop()                   { t.stopped.Store(true) }
func (t *Track) Stopped() bool           { return t.stopped.Load() }

func (t *Track) TrackLocal() webrtc.TrackLocal { return t.local }

// Local exposes the sample track so a producer can write media to it.
func (t *Track) Local() *webrtc.TrackLocalStaticSample { return t.local }
