package ws

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
)

var _ Client = (*fakeClient)(nil)

type fakeClient struct {
	id      string
	meeting domain.MeetingID
	closed  atomic.Bool
}

func (c *fakeClient) ID() string                  { return c.id }
func (c *fakeClient) MeetingID() domain.MeetingID { return c.meeting }
func (c *fakeClient) Close() error {
	c.closed.Store(true)
	return nil
}

func waitCount(t *testing.T, h *Hub, m domain.MeetingID, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Count(m) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("count(%s) = %d, want %d", m, h.Count(m), want)
}

func TestHubTracksClientsPerMeeting(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	a := &fakeClient{id: "a", meeting: "m1"}
	b := &fakeClient{id: "b", meeting: "m1"}
	c := &fakeClient{id: "c", meeting: "m2"}
	for _, cl := range []*fakeClient{a, b, c} {
		if !h.Register(cl) {
			t.Fatal("Register refused")
		}
	}
	waitCount(t, h, "m1", 2)
	waitCount(t, h, "m2", 1)

	h.Unregister(a)
	waitCount(t, h, "m1", 1)
	if a.closed.Load() {
		t.Fatal("unregister closed the client")
	}
}

func TestHubStopClosesClients(t *testing.T) {
	h := NewHub()
	go h.Run()

	a := &fakeClient{id: "a", meeting: "m1"}
	h.Register(a)
	h.Stop()
	h.Stop()

	if !a.closed.Load() {
		t.Fatal("client not closed on stop")
	}
	if h.Register(&fakeClient{id: "late"}) {
		t.Fatal("stopped hub accepted a client")
	}
}
