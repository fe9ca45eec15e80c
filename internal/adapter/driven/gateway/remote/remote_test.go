package remote

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Wyydra/huddle/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/huddle/internal/adapter/driven/persistence/memory"
	api "github.com/Wyydra/huddle/internal/adapter/driving/http"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/service"
)

func newRelay(t *testing.T) *Client {
	t.Helper()
	store := memory.NewStore()
	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	h := api.NewHandler(service.NewMeetingService(store, store), service.NewNoteService(store), store, store, hub)
	srv := httptest.NewServer(h.NewRouter(nil))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("feed closed")
		}
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting on feed")
	}
	var zero T
	return zero
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("ftp://example.com"); err == nil {
		t.Fatal("expected scheme error")
	}
}

func TestLifecycleOverREST(t *testing.T) {
	c := newRelay(t)
	ctx := context.Background()

	if _, err := c.Join(ctx, "missing", domain.Identity{ID: "g1"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("join missing err = %v, want ErrNotFound", err)
	}

	m, err := c.Create(ctx, domain.Identity{ID: "host"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !m.IsActive() || m.HostID != "host" {
		t.Fatalf("meeting = %+v", m)
	}

	res, err := c.Join(ctx, m.ID, domain.Identity{ID: "g1", DisplayName: "Guest"})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.Participant.Role != domain.RoleGuest || res.Participant.DisplayName != "Guest" {
		t.Fatalf("participant = %+v", res.Participant)
	}
	if res.Since.IsZero() {
		t.Fatal("join carried no relay time")
	}

	if err := c.UpdateMedia(ctx, m.ID, "g1", domain.MediaFlags{Audio: true}); err != nil {
		t.Fatalf("UpdateMedia: %v", err)
	}
	if err := c.EndMeeting(ctx, m.ID, "g1"); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("guest end err = %v, want ErrPermissionDenied", err)
	}
	if err := c.Leave(ctx, m.ID, "g1"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if err := c.EndMeeting(ctx, m.ID, "host"); err != nil {
		t.Fatalf("EndMeeting: %v", err)
	}
	if _, err := c.Join(ctx, m.ID, domain.Identity{ID: "g2"}); !errors.Is(err, domain.ErrMeetingEnded) {
		t.Fatalf("join ended err = %v, want ErrMeetingEnded", err)
	}
}

func TestSignalsOverWebsocket(t *testing.T) {
	c := newRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, _ := c.Create(ctx, domain.Identity{ID: "host"})
	since := time.Now().Add(-time.Second)

	offer := domain.NewOffer(m.ID, "host", "guest", "s1", "v=0", false)
	if err := c.Publish(ctx, offer); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	feed, err := c.Subscribe(ctx, m.ID, "guest", since)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := recv(t, feed); got.ID != offer.ID || got.SDP != "v=0" {
		t.Fatalf("replayed = %+v", got)
	}

	cand := domain.NewCandidate(m.ID, "host", "guest", "s1", domain.ICECandidate{Candidate: "candidate:1"})
	if err := c.Publish(ctx, cand); err != nil {
		t.Fatalf("Publish candidate: %v", err)
	}
	got := recv(t, feed)
	if got.Kind != domain.SignalCandidate || got.Candidate == nil || got.Candidate.Candidate != "candidate:1" {
		t.Fatalf("candidate = %+v", got)
	}

	cancel()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-feed:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("feed not closed after cancel")
		}
	}
}

func TestPublishInvalidSignal(t *testing.T) {
	c := newRelay(t)
	err := c.Publish(context.Background(), domain.Signal{MeetingID: "m", From: "a", Session: "s", Kind: domain.SignalOffer})
	if !errors.Is(err, domain.ErrInvalidSignal) {
		t.Fatalf("err = %v, want ErrInvalidSignal", err)
	}
}

func TestRosterAndMeetingFeeds(t *testing.T) {
	c := newRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, _ := c.Create(ctx, domain.Identity{ID: "host"})
	if _, err := c.Join(ctx, m.ID, domain.Identity{ID: "host"}); err != nil {
		t.Fatalf("Join: %v", err)
	}

	roster, err := c.WatchParticipants(ctx, m.ID)
	if err != nil {
		t.Fatalf("WatchParticipants: %v", err)
	}
	meetings, err := c.WatchMeeting(ctx, m.ID)
	if err != nil {
		t.Fatalf("WatchMeeting: %v", err)
	}

	if ch := recv(t, roster); ch.Kind != domain.ChangeAdded || ch.Participant.ID != "host" {
		t.Fatalf("snapshot = %+v", ch)
	}
	if got := recv(t, meetings); !got.IsActive() {
		t.Fatal("initial meeting not active")
	}

	_, _ = c.Join(ctx, m.ID, domain.Identity{ID: "g1"})
	if ch := recv(t, roster); ch.Kind != domain.ChangeAdded || ch.Participant.ID != "g1" {
		t.Fatalf("join change = %+v", ch)
	}

	if err := c.EndMeeting(ctx, m.ID, "host"); err != nil {
		t.Fatalf("EndMeeting: %v", err)
	}
	if got := recv(t, meetings); got.IsActive() || got.EndedAt == nil {
		t.Fatalf("ended meeting = %+v", got)
	}
}

func TestWatchUnknownMeeting(t *testing.T) {
	c := newRelay(t)
	_, err := c.WatchMeeting(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
