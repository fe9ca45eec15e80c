package remote

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/Wyydra/huddle/internal/adapter/wire"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/service"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Subscribe follows the signals feed. After a redial the log is replayed
// from the last signal seen, and signals already delivered are skipped.
func (c *Client) Subscribe(ctx context.Context, meetingID domain.MeetingID, receiver domain.ParticipantID, since time.Time) (<-chan domain.Signal, error) {
	cur := newSignalCursor(since)
	dial := func(ctx context.Context) (*websocket.Conn, error) {
		q := url.Values{}
		q.Set("feed", wire.FeedSignals)
		q.Set("participant", receiver.String())
		q.Set("since", strconv.FormatInt(cur.ms, 10))
		return c.dial(ctx, meetingID, q)
	}

	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	return follow(ctx, conn, dial, c.redials, c.redialBackoff, func(f wire.Frame) (domain.Signal, bool) {
		if f.Type != wire.FrameSignal || f.Signal == nil {
			return domain.Signal{}, false
		}
		sig := f.Signal.Domain()
		return sig, cur.advance(sig)
	}), nil
}

func (c *Client) WatchParticipants(ctx context.Context, meetingID domain.MeetingID) (<-chan domain.RosterChange, error) {
	dial := c.feedDialer(meetingID, wire.FeedRoster)
	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	return follow(ctx, conn, dial, c.redials, c.redialBackoff, func(f wire.Frame) (domain.RosterChange, bool) {
		if f.Type != wire.FrameRoster || f.Change == nil {
			return domain.RosterChange{}, false
		}
		return f.Change.Domain(), true
	}), nil
}

func (c *Client) WatchMeeting(ctx context.Context, meetingID domain.MeetingID) (<-chan domain.Meeting, error) {
	dial := c.feedDialer(meetingID, wire.FeedMeeting)
	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	return follow(ctx, conn, dial, c.redials, c.redialBackoff, func(f wire.Frame) (domain.Meeting, bool) {
		if f.Type != wire.FrameMeeting || f.Meeting == nil {
			return domain.Meeting{}, false
		}
		return f.Meeting.Domain(), true
	}), nil
}

func (c *Client) feedDialer(meetingID domain.MeetingID, feed string) func(context.Context) (*websocket.Conn, error) {
	return func(ctx context.Context) (*websocket.Conn, error) {
		q := url.Values{}
		q.Set("feed", feed)
		return c.dial(ctx, meetingID, q)
	}
}

// signalCursor tracks how far a signals feed got. seen holds the ids
// delivered within the cursor's millisecond, which a replay repeats.
type signalCursor struct {
	ms   int64
	seen map[domain.MessageID]struct{}
}

func newSignalCursor(since time.Time) *signalCursor {
	return &signalCursor{ms: since.UnixMilli(), seen: make(map[domain.MessageID]struct{})}
}

// advance reports whether sig is new and moves the cursor past it.
func (c *signalCursor) advance(sig domain.Signal) bool {
	ms := sig.CreatedAt.UnixMilli()
	switch {
	case ms > c.ms:
		c.ms = ms
		c.seen = map[domain.MessageID]struct{}{sig.ID: {}}
	case ms == c.ms:
		if _, ok := c.seen[sig.ID]; ok {
			return false
		}
		c.seen[sig.ID] = struct{}{}
	}
	return true
}

// follow decodes frames into the returned channel until ctx ends. A dropped
// socket is redialed with backoff. The channel closes when ctx ends or the
// relay stays unreachable.
func follow[T any](ctx context.Context, conn *websocket.Conn, redial func(context.Context) (*websocket.Conn, error), redials int, backoff time.Duration, pick func(wire.Frame) (T, bool)) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		drops := 0
		for {
			dropped, delivered := drain(ctx, conn, pick, out)
			if !dropped {
				return
			}
			if delivered > 0 {
				drops = 0
			}
			drops++
			if drops > redials {
				log.Error().Int("drops", drops).Msg("Relay feed keeps dropping, giving up")
				return
			}

			next, err := service.Retry(ctx, redials, backoff, redial)
			if err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Msg("Relay feed lost")
				}
				return
			}
			log.Info().Int("drops", drops).Msg("Relay feed restored")
			conn = next
		}
	}()
	return out
}

// drain reads frames off conn into out. dropped is false when ctx ended the
// read rather than the socket.
func drain[T any](ctx context.Context, conn *websocket.Conn, pick func(wire.Frame) (T, bool), out chan<- T) (dropped bool, delivered int) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		conn.Close()
	}()

	for {
		var f wire.Frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return false, delivered
			}
			log.Warn().Err(err).Msg("Relay feed dropped, redialing")
			return true, delivered
		}
		v, ok := pick(f)
		if !ok {
			continue
		}
		select {
		case out <- v:
			delivered++
		case <-ctx.Done():
			return false, delivered
		}
	}
}
