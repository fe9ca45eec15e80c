package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
)

func TestLocalMediaStart(t *testing.T) {
	t.Run("camera and microphone", func(t *testing.T) {
		m := NewLocalMedia(&fakeCapture{}, 0, time.Millisecond)
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if f := m.Flags(); !f.Audio || !f.Video {
			t.Fatalf("flags = %+v", f)
		}
	})

	t.Run("falls back to audio", func(t *testing.T) {
		m := NewLocalMedia(&fakeCapture{videoErr: domain.ErrDeviceNotFound}, 0, time.Millisecond)
		err := m.Start(context.Background())
		if !errors.Is(err, domain.ErrDeviceNotFound) {
			t.Fatalf("err = %v, want ErrDeviceNotFound", err)
		}
		if f := m.Flags(); !f.Audio || f.Video {
			t.Fatalf("flags = %+v, want audio only", f)
		}
	})

	t.Run("permission denied leaves receive only", func(t *testing.T) {
		c := &fakeCapture{err: domain.ErrPermissionDenied}
		m := NewLocalMedia(c, 2, time.Millisecond)
		err := m.Start(context.Background())
		if !errors.Is(err, domain.ErrPermissionDenied) {
			t.Fatalf("err = %v, want ErrPermissionDenied", err)
		}
		if len(m.Tracks()) != 0 {
			t.Fatal("tracks present after denial")
		}
		if c.callCount() != 3 {
			t.Fatalf("capture attempts = %d, want 3", c.callCount())
		}
	})
}

func TestLocalMediaToggle(t *testing.T) {
	m := NewLocalMedia(&fakeCapture{}, 0, time.Millisecond)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	added, enabled, err := m.Toggle(context.Background(), domain.MediaAudio)
	if err != nil || added != nil || enabled {
		t.Fatalf("Toggle = %v, %v, %v", added, enabled, err)
	}
	if m.Flags().Audio {
		t.Fatal("audio still enabled")
	}
	_, enabled, _ = m.Toggle(context.Background(), domain.MediaAudio)
	if !enabled || !m.Flags().Audio {
		t.Fatal("audio not re-enabled")
	}
}

func TestLocalMediaToggleCapturesMissingTrack(t *testing.T) {
	c := &fakeCapture{videoErr: domain.ErrDeviceNotFound}
	m := NewLocalMedia(c, 0, time.Millisecond)
	_ = m.Start(context.Background())

	c.mu.Lock()
	c.videoErr = nil
	c.mu.Unlock()

	added, enabled, err := m.Toggle(context.Background(), domain.MediaVideo)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if added == nil || added.Kind() != domain.MediaVideo || !enabled {
		t.Fatalf("added = %v, enabled = %v", added, enabled)
	}
	if !m.Flags().Video {
		t.Fatal("video flag not set")
	}
}

func TestLocalMediaScreenShare(t *testing.T) {
	m := NewLocalMedia(&fakeCapture{}, 0, time.Millisecond)
	_ = m.Start(context.Background())
	camera, _ := m.Track(domain.MediaVideo)

	screen, err := m.StartScreen(context.Background())
	if err != nil {
		t.Fatalf("StartScreen: %v", err)
	}
	if m.Tracks()[domain.MediaVideo] != screen || !m.Sharing() {
		t.Fatal("screen not in the video slot")
	}

	if restored := m.StopScreen(); restored != camera {
		t.Fatal("camera not restored")
	}
	if !screen.(*fakeTrack).stopped.Load() {
		t.Fatal("screen track not stopped")
	}
	if m.Sharing() {
		t.Fatal("still sharing")
	}
}

func TestLocalMediaStop(t *testing.T) {
	c := &fakeCapture{}
	m := NewLocalMedia(c, 0, time.Millisecond)
	_ = m.Start(context.Background())
	m.Stop()
	m.Stop()

	for _, tr := range c.issued {
		if !tr.stopped.Load() {
			t.Fatalf("track %s not stopped", tr.id)
		}
	}
	if len(m.Tracks()) != 0 {
		t.Fatal("stopped media still hands out tracks")
	}
	if _, _, err := m.Toggle(context.Background(), domain.MediaAudio); !errors.Is(err, errMediaStopped) {
		t.Fatalf("Toggle err = %v, want errMediaStopped", err)
	}
}
