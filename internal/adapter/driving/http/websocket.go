package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Wyydra/huddle/internal/adapter/wire"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the cors middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn is one participant's websocket into a meeting. Only writePump
// writes to conn.
type wsConn struct {
	id          string
	meetingID   domain.MeetingID
	participant domain.ParticipantID
	conn        *websocket.Conn
	log         zerolog.Logger
	closeOnce   sync.Once
}

func (c *wsConn) ID() string                  { return c.id }
func (c *wsConn) MeetingID() domain.MeetingID { return c.meetingID }

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.conn.Close() })
	return err
}

type feeds struct {
	signals  <-chan domain.Signal
	roster   <-chan domain.RosterChange
	meetings <-chan domain.Meeting
}

func parseFeeds(raw string) map[string]bool {
	want := map[string]bool{}
	if raw == "" {
		raw = strings.Join([]string{wire.FeedSignals, wire.FeedRoster, wire.FeedMeeting}, ",")
	}
	for _, f := range strings.Split(raw, ",") {
		want[strings.TrimSpace(f)] = true
	}
	return want
}

// ServeWS streams the requested feeds of a meeting:
// ?participant=ID&feed=signals,roster,meeting&since=unix-millis
// The signals feed needs a participant and replays the log from since.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	meetingID := meetingParam(r)
	q := r.URL.Query()
	participant := domain.ParticipantID(normalizeID(q.Get("participant")))
	want := parseFeeds(q.Get("feed"))

	since := time.Now().UTC()
	if raw := q.Get("since"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(w, "since must be unix milliseconds")
			return
		}
		since = time.UnixMilli(ms).UTC()
	}
	if want[wire.FeedSignals] && participant == "" {
		badRequest(w, "participant is required for the signals feed")
		return
	}

	// Subscribe before upgrading so lookup errors come back as HTTP.
	ctx, cancel := context.WithCancel(context.Background())
	var f feeds
	var err error
	if want[wire.FeedSignals] {
		if f.signals, err = h.Signals.Subscribe(ctx, meetingID, participant, since); err != nil {
			cancel()
			respondError(w, err)
			return
		}
	}
	if want[wire.FeedRoster] {
		if f.roster, err = h.Feed.WatchParticipants(ctx, meetingID); err != nil {
			cancel()
			respondError(w, err)
			return
		}
	}
	if want[wire.FeedMeeting] {
		if f.meetings, err = h.Feed.WatchMeeting(ctx, meetingID); err != nil {
			cancel()
			respondError(w, err)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	c := &wsConn{
		id:          uuid.New().String(),
		meetingID:   meetingID,
		participant: participant,
		conn:        conn,
		log: log.With().
			Str("meeting_id", meetingID.String()).
			Str("participant_id", participant.String()).
			Logger(),
	}
	if !h.Hub.Register(c) {
		cancel()
		c.Close()
		return
	}
	c.log.Info().Msg("New client connected")

	defer func() {
		c.log.Info().Msg("Client disconnected")
		cancel()
		h.Hub.Unregister(c)
		c.Close()
	}()

	go c.writePump(ctx, cancel, f)
	c.readPump(ctx, h)
}

// readPump accepts signal frames from the client and publishes them with
// the connection's identity as sender.
func (c *wsConn) readPump(ctx context.Context, h *Handler) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame wire.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}

		if frame.Type != wire.FrameSignal || frame.Signal == nil {
			c.log.Warn().Str("type", frame.Type).Msg("Unknown frame type")
			continue
		}
		if c.participant == "" {
			c.log.Warn().Msg("Signal frame from an anonymous connection")
			continue
		}
		sig := stampSignal(frame.Signal.Domain(), c.meetingID, c.participant)
		if err := h.Signals.Publish(ctx, sig); err != nil {
			c.log.Warn().Err(err).Str("kind", string(sig.Kind)).Msg("Failed to publish signal")
		}
	}
}

func (c *wsConn) writePump(ctx context.Context, cancel context.CancelFunc, f feeds) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		c.Close()
	}()

	write := func(frame wire.Frame) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(frame); err != nil {
			c.log.Debug().Err(err).Msg("Write failed")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}

		case sig, ok := <-f.signals:
			if !ok {
				return
			}
			s := wire.FromSignal(sig)
			if !write(wire.Frame{Type: wire.FrameSignal, Signal: &s}) {
				return
			}

		case ch, ok := <-f.roster:
			if !ok {
				return
			}
			rc := wire.FromRosterChange(ch)
			if !write(wire.Frame{Type: wire.FrameRoster, Change: &rc}) {
				return
			}

		case m, ok := <-f.meetings:
			if !ok {
				return
			}
			wm := wire.FromMeeting(m)
			if !write(wire.Frame{Type: wire.FrameMeeting, Meeting: &wm}) {
				return
			}
		}
	}
}
