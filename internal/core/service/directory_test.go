package service

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
)

type recordingPeers struct {
	mu           sync.Mutex
	connected    []domain.ParticipantID
	disconnected []domain.ParticipantID
}

func (r *recordingPeers) Connect(remote domain.ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, remote)
	return nil
}

func (r *recordingPeers) Disconnect(remote domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, remote)
}

func TestInitiates(t *testing.T) {
	tests := []struct {
		local, remote, host domain.ParticipantID
		want                bool
	}{
		{"host", "g1", "host", true},
		{"g1", "host", "host", false},
		{"g1", "g2", "host", false},
		{"host", "host", "host", false},
	}
	for _, tt := range tests {
		if got := Initiates(tt.local, tt.remote, tt.host); got != tt.want {
			t.Errorf("Initiates(%s, %s, host=%s) = %v, want %v", tt.local, tt.remote, tt.host, got, tt.want)
		}
	}
}

func TestHostDirectoryConnectsToGuests(t *testing.T) {
	peers := &recordingPeers{}
	rec := &eventRecorder{}
	d := NewDirectory("host", "host", peers, rec.emit)

	now := time.Now()
	d.Apply(domain.RosterChange{Kind: domain.ChangeAdded, Participant: domain.Participant{ID: "host", JoinedAt: now}})
	d.Apply(domain.RosterChange{Kind: domain.ChangeAdded, Participant: domain.Participant{ID: "g1", JoinedAt: now.Add(time.Second)}})
	d.Apply(domain.RosterChange{Kind: domain.ChangeAdded, Participant: domain.Participant{ID: "g2", JoinedAt: now.Add(2 * time.Second)}})

	if !slices.Equal(peers.connected, []domain.ParticipantID{"g1", "g2"}) {
		t.Fatalf("connected = %v", peers.connected)
	}

	d.Apply(domain.RosterChange{Kind: domain.ChangeModified, Participant: domain.Participant{ID: "g1", JoinedAt: now.Add(time.Second), Media: domain.MediaFlags{Audio: false}}})
	if len(peers.connected) != 2 {
		t.Fatal("media change triggered a connection")
	}

	d.Apply(domain.RosterChange{Kind: domain.ChangeRemoved, Participant: domain.Participant{ID: "g1"}})
	if !slices.Equal(peers.disconnected, []domain.ParticipantID{"g1"}) {
		t.Fatalf("disconnected = %v", peers.disconnected)
	}

	roster := d.Roster()
	if len(roster) != 2 || roster[0].ID != "host" || roster[1].ID != "g2" {
		t.Fatalf("roster = %+v", roster)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var joined, updated, left int
	for _, ev := range rec.events {
		switch ev.(type) {
		case domain.ParticipantJoined:
			joined++
		case domain.ParticipantUpdated:
			updated++
		case domain.ParticipantLeft:
			left++
		}
	}
	if joined != 2 || updated != 1 || left != 1 {
		t.Fatalf("joined=%d updated=%d left=%d", joined, updated, left)
	}
}

func TestGuestDirectoryNeverInitiates(t *testing.T) {
	peers := &recordingPeers{}
	d := NewDirectory("g1", "host", peers, nil)

	d.Apply(domain.RosterChange{Kind: domain.ChangeAdded, Participant: domain.Participant{ID: "host"}})
	d.Apply(domain.RosterChange{Kind: domain.ChangeAdded, Participant: domain.Participant{ID: "g2"}})

	if len(peers.connected) != 0 {
		t.Fatalf("guest connected to %v", peers.connected)
	}
}

func TestModifiedBeforeAddedCountsAsJoin(t *testing.T) {
	peers := &recordingPeers{}
	d := NewDirectory("host", "host", peers, nil)

	d.Apply(domain.RosterChange{Kind: domain.ChangeModified, Participant: domain.Participant{ID: "g1"}})
	if !slices.Equal(peers.connected, []domain.ParticipantID{"g1"}) {
		t.Fatalf("connected = %v", peers.connected)
	}
}
