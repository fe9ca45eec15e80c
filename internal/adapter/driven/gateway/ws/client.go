package ws

import "github.com/Wyydra/huddle/internal/core/domain"

// Client is one live websocket connection into a meeting.
type Client interface {
	ID() string
	MeetingID() domain.MeetingID
	Close() error
}
