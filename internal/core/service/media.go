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

var errMediaStopped = errors.New("local media stopped")

// LocalMedia owns the local capture tracks. Peer connections only borrow them.
type LocalMedia struct {
	capture  port.Capture
	attempts int
	backoff  time.Duration

	mu      sync.Mutex
	tracks  map[domain.MediaKind]port.Track
	screen  port.Track
	stopped bool
}

// NewLocalMedia retries each capture request up to retries more times.
func NewLocalMedia(capture port.Capture, retries int, backoff time.Duration) *LocalMedia {
	if retries < 0 {
		retries = 0
	}
	return &LocalMedia{
		capture:  capture,
		attempts: retries + 1,
		backoff:  backoff,
		tracks:   make(map[domain.MediaKind]port.Track),
	}
}

// Start captures camera and microphone. When that fails for a reason other
// than a denied permission it falls back to audio only. The returned error is
// the first failure, even if the fallback succeeded.
func (m *LocalMedia) Start(ctx context.Context) error {
	stream, err := m.request(ctx, port.CaptureRequest{Audio: true, Video: true})
	if err == nil {
		m.adopt(stream)
		return nil
	}

	if !errors.Is(err, domain.ErrPermissionDenied) {
		audio, aerr := m.request(ctx, port.CaptureRequest{Audio: true})
		if aerr == nil {
			log.Warn().Err(err).Msg("Video capture failed, continuing with audio only")
			m.adopt(audio)
		} else {
			log.Warn().Err(aerr).Msg("Audio-only capture failed, continuing receive-only")
		}
	}
	return err
}

func (m *LocalMedia) request(ctx context.Context, req port.CaptureRequest) (port.Stream, error) {
	s, err := Retry(ctx, m.attempts, m.backoff, func(ctx context.Context) (port.Stream, error) {
		return m.capture.RequestCapture(ctx, req)
	})
	if err != nil {
		return nil, domain.NewOpError("capture", err)
	}
	return s, nil
}

func (m *LocalMedia) adopt(s port.Stream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range s.Tracks() {
		if m.stopped {
			t.Stop()
			continue
		}
		if old, ok := m.tracks[t.Kind()]; ok {
			old.Stop()
		}
		m.tracks[t.Kind()] = t
	}
}

// Tracks returns what senders should carry. A shared screen takes the video slot.
func (m *LocalMedia) Tracks() map[domain.MediaKind]port.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.MediaKind]port.Track, len(m.tracks))
	if m.stopped {
		return out
	}
	for k, t := range m.tracks {
		out[k] = t
	}
	if m.screen != nil {
		out[domain.MediaVideo] = m.screen
	}
	return out
}

func (m *LocalMedia) Track(kind domain.MediaKind) (port.Track, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[kind]
	return t, ok
}

func (m *LocalMedia) Flags() domain.MediaFlags {
	m.mu.Lock()
	defer m.mu.Unlock()
	enabled := func(k domain.MediaKind) bool {
		t, ok := m.tracks[k]
		return ok && t.Enabled()
	}
	return domain.MediaFlags{Audio: enabled(domain.MediaAudio), Video: enabled(domain.MediaVideo)}
}

// Toggle flips an existing track of kind. With no track yet it captures one
// and returns it so the caller can put it on every sender.
func (m *LocalMedia) Toggle(ctx context.Context, kind domain.MediaKind) (added port.Track, enabled bool, err error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, false, errMediaStopped
	}
	if t, ok := m.tracks[kind]; ok {
		t.SetEnabled(!t.Enabled())
		enabled = t.Enabled()
		m.mu.Unlock()
		return nil, enabled, nil
	}
	m.mu.Unlock()

	req := port.CaptureRequest{Audio: kind == domain.MediaAudio, Video: kind == domain.MediaVideo}
	s, err := m.request(ctx, req)
	if err != nil {
		return nil, false, err
	}

	var track port.Track
	for _, t := range s.Tracks() {
		if t.Kind() == kind && track == nil {
			track = t
			continue
		}
		t.Stop()
	}
	if track == nil {
		return nil, false, domain.NewOpError("capture", fmt.Errorf("%w: no %s track", domain.ErrDeviceNotFound, kind))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		track.Stop()
		return nil, false, errMediaStopped
	}
	m.tracks[kind] = track
	return track, track.Enabled(), nil
}

func (m *LocalMedia) StartScreen(ctx context.Context) (port.Track, error) {
	t, err := Retry(ctx, m.attempts, m.backoff, func(ctx context.Context) (port.Track, error) {
		return m.capture.RequestDisplay(ctx)
	})
	if err != nil {
		return nil, domain.NewOpError("display capture", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		t.Stop()
		return nil, errMediaStopped
	}
	if m.screen != nil {
		m.screen.Stop()
	}
	m.screen = t
	return t, nil
}

// StopScreen ends sharing and returns the camera track to restore, if any.
func (m *LocalMedia) StopScreen() port.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.screen != nil {
		m.screen.Stop()
		m.screen = nil
	}
	if t, ok := m.tracks[domain.MediaVideo]; ok {
		return t
	}
	return nil
}

func (m *LocalMedia) Sharing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screen != nil
}

// Stop releases every capture track. It is idempotent.
func (m *LocalMedia) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	for _, t := range m.tracks {
		t.Stop()
	}
	if m.screen != nil {
		m.screen.Stop()
		m.screen = nil
	}
}
