package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/huddle/internal/adapter/wire"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/gorilla/websocket"
)

func TestSignalCursor(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	cur := newSignalCursor(at)

	a := domain.Signal{ID: "a", CreatedAt: at}
	b := domain.Signal{ID: "b", CreatedAt: at}
	c := domain.Signal{ID: "c", CreatedAt: at.Add(time.Millisecond)}

	for _, step := range []struct {
		sig  domain.Signal
		want bool
	}{
		{a, true},
		{b, true},
		{a, false},
		{c, true},
		{b, true}, // older than the cursor, only seen on a live feed
		{c, false},
	} {
		if got := cur.advance(step.sig); got != step.want {
			t.Fatalf("advance(%s) = %v, want %v", step.sig.ID, got, step.want)
		}
	}
	if cur.ms != c.CreatedAt.UnixMilli() {
		t.Fatalf("cursor at %d, want %d", cur.ms, c.CreatedAt.UnixMilli())
	}
}

// flakyRelay serves a signals feed that drops its first socket after one
// frame, or every socket when always is set. Sockets it keeps replay that
// frame and then send the next.
func flakyRelay(t *testing.T, first, second domain.Signal, always bool) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu     sync.Mutex
		sinces []string
	)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		sinces = append(sinces, r.URL.Query().Get("since"))
		n := len(sinces)
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		send := func(s domain.Signal) {
			ws := wire.FromSignal(s)
			_ = conn.WriteJSON(wire.Frame{Type: wire.FrameSignal, Signal: &ws})
		}

		send(first)
		if n == 1 || always {
			return
		}
		send(second)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), sinces...)
	}
}

func TestSignalFeedResumesAfterDrop(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000).UTC()
	offer := domain.NewOffer("m1", "host", "g1", "s1", "v=0", false)
	offer.CreatedAt = at
	cand := domain.NewCandidate("m1", "host", "g1", "s1", domain.ICECandidate{Candidate: "candidate:1"})
	cand.CreatedAt = at.Add(time.Millisecond)

	srv, sinces := flakyRelay(t, offer, cand, false)
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	c.redialBackoff = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := c.Subscribe(ctx, "m1", "g1", at.Add(-time.Second))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := recv(t, feed); got.ID != offer.ID {
		t.Fatalf("first = %s, want offer %s", got.ID, offer.ID)
	}
	// The replayed offer is skipped.
	if got := recv(t, feed); got.ID != cand.ID {
		t.Fatalf("second = %s, want candidate %s", got.ID, cand.ID)
	}

	got := sinces()
	if len(got) != 2 {
		t.Fatalf("dials = %d, want 2", len(got))
	}
	if want := strconv.FormatInt(at.UnixMilli(), 10); got[1] != want {
		t.Fatalf("redial since = %s, want %s", got[1], want)
	}
}

func TestFeedGivesUpWhenSocketsKeepDropping(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000).UTC()
	offer := domain.NewOffer("m1", "host", "g1", "s1", "v=0", false)
	offer.CreatedAt = at

	srv, sinces := flakyRelay(t, offer, offer, true)
	defer srv.Close()
	c, _ := New(srv.URL)
	c.redials = 2
	c.redialBackoff = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := c.Subscribe(ctx, "m1", "g1", at)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	recv(t, feed)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-feed:
			if !ok {
				// One dial, then two redials that delivered nothing new.
				if n := len(sinces()); n != 3 {
					t.Fatalf("dials = %d, want 3", n)
				}
				return
			}
		case <-deadline:
			t.Fatal("feed still open while every socket drops")
		}
	}
}
