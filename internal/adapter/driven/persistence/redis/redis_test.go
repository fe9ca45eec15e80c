package redis

import (
	"testing"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{meetingKey("m1"), "meetings:m1"},
		{participantsKey("m1"), "meetings:m1:participants"},
		{eventsChannel("m1"), "meetings:m1:events"},
		{signalsKey("m1"), "meetings:m1:signals"},
		{noteKey("n1"), "notes:n1"},
		{ownerNotesKey("p1"), "owners:p1:notes"},
		{historyKey("p1"), "history:p1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestStartID(t *testing.T) {
	if got := startID(time.Time{}); got != "0-0" {
		t.Fatalf("zero since = %q", got)
	}
	since := time.UnixMilli(1700000000123)
	if got, want := startID(since), "1700000000122-18446744073709551615"; got != want {
		t.Fatalf("startID = %q, want %q", got, want)
	}
}

func TestEventCarriesOneKind(t *testing.T) {
	m, err := domain.NewMeeting("host", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	m.End(time.Now())

	b, err := encode(event{Meeting: m})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	ev, err := decode[event](b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Change != nil || ev.Meeting == nil {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Meeting.IsActive() || ev.Meeting.EndedAt == nil {
		t.Fatalf("meeting = %+v", ev.Meeting)
	}
}

func TestSignalOf(t *testing.T) {
	sig := domain.NewCandidate("m1", "a", "b", "s1", domain.ICECandidate{Candidate: "candidate:1"})
	b, err := encode(sig)
	if err != nil {
		t.Fatal(err)
	}

	got, ok := signalOf(redis.XMessage{ID: "1700000000123-4", Values: map[string]any{signalField: string(b)}})
	if !ok {
		t.Fatal("signal not decoded")
	}
	if got.ID != sig.ID || got.Candidate == nil || got.Candidate.Candidate != "candidate:1" {
		t.Fatalf("signal = %+v", got)
	}
	// The stream id, not the sender, dates the entry.
	if want := time.UnixMilli(1700000000123).UTC(); !got.CreatedAt.Equal(want) {
		t.Fatalf("CreatedAt = %s, want %s", got.CreatedAt, want)
	}

	if _, ok := signalOf(redis.XMessage{ID: "2-0", Values: map[string]any{"other": "x"}}); ok {
		t.Fatal("entry without payload decoded")
	}
	if _, ok := signalOf(redis.XMessage{ID: "3-0", Values: map[string]any{signalField: "not msgpack"}}); ok {
		t.Fatal("garbage decoded")
	}
}

func TestSortRoster(t *testing.T) {
	now := time.Now()
	ps := []domain.Participant{
		{ID: "c", JoinedAt: now.Add(time.Second)},
		{ID: "b", JoinedAt: now},
		{ID: "a", JoinedAt: now},
	}
	sortRoster(ps)
	if ps[0].ID != "a" || ps[1].ID != "b" || ps[2].ID != "c" {
		t.Fatalf("order = %s %s %s", ps[0].ID, ps[1].ID, ps[2].ID)
	}
}
