package domain

import (
	"testing"
	"time"
)

func TestMeetingEndIsMonotonic(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m, err := NewMeeting("host", created)
	if err != nil {
		t.Fatalf("NewMeeting: %v", err)
	}
	if !m.IsActive() {
		t.Fatalf("new meeting status = %s, want active", m.Status)
	}

	first := created.Add(time.Hour)
	if !m.End(first) {
		t.Fatal("first End reported no transition")
	}
	if m.End(first.Add(time.Minute)) {
		t.Fatal("second End reported a transition")
	}
	if m.Status != MeetingEnded {
		t.Fatalf("status = %s, want ended", m.Status)
	}
	if m.EndedAt == nil || !m.EndedAt.Equal(first) {
		t.Fatalf("EndedAt = %v, want %v", m.EndedAt, first)
	}
}

func TestNewMeetingRequiresHost(t *testing.T) {
	if _, err := NewMeeting("", time.Now()); err == nil {
		t.Fatal("expected error for empty host")
	}
}

func TestNewParticipantResolvesRole(t *testing.T) {
	m, _ := NewMeeting("h", time.Now())

	host, err := NewParticipant(*m, Identity{ID: "h", DisplayName: "Host"}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	guest, err := NewParticipant(*m, Identity{ID: "g"}, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if host.Role != RoleHost {
		t.Errorf("host role = %s", host.Role)
	}
	if guest.Role != RoleGuest {
		t.Errorf("guest role = %s", guest.Role)
	}
	if guest.DisplayName != "g" {
		t.Errorf("guest display name = %q, want id fallback", guest.DisplayName)
	}
}
