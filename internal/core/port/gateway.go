package port

import (
	"context"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
)

// Clock is the relay's time base. Log entries are stamped with it on
// ingest, so replay windows must be measured against it too.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

// SignalGateway is the append-only per-meeting signaling log.
type SignalGateway interface {
	Publish(ctx context.Context, sig domain.Signal) error
	// Subscribe streams signals addressed to receiver that were appended at or
	// after since, on the relay's clock. The channel closes when ctx is done
	// or the binding fails.
	Subscribe(ctx context.Context, meetingID domain.MeetingID, receiver domain.ParticipantID, since time.Time) (<-chan domain.Signal, error)
}
