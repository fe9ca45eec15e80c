// Package remote talks to a huddle relay server, so a participant can run
// against a shared meeting log instead of an in-process store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Wyydra/huddle/internal/adapter/wire"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/gorilla/websocket"
)

var (
	_ port.Lifecycle     = (*Client)(nil)
	_ port.MeetingFeed   = (*Client)(nil)
	_ port.SignalGateway = (*Client)(nil)
)

type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer

	// A dropped feed socket is redialed up to redials times in a row.
	redials       int
	redialBackoff time.Duration
}

// New takes the server's base URL, e.g. http://localhost:8080.
func New(server string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must be http or https", server)
	}
	return &Client{
		base:   u,
		http:   &http.Client{Timeout: 15 * time.Second},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},

		redials:       5,
		redialBackoff: 500 * time.Millisecond,
	}, nil
}

func (c *Client) Create(ctx context.Context, host domain.Identity) (domain.Meeting, error) {
	var m wire.Meeting
	req := wire.CreateMeetingRequest{HostID: host.ID.String(), DisplayName: host.DisplayName}
	if err := c.do(ctx, http.MethodPost, "/api/v1/meetings", req, &m); err != nil {
		return domain.Meeting{}, domain.NewOpError("create meeting", err)
	}
	return m.Domain(), nil
}

func (c *Client) Join(ctx context.Context, meetingID domain.MeetingID, who domain.Identity) (port.JoinResult, error) {
	var res wire.JoinResponse
	req := wire.JoinRequest{ParticipantID: who.ID.String(), DisplayName: who.DisplayName}
	if err := c.do(ctx, http.MethodPost, meetingPath(meetingID, "join"), req, &res); err != nil {
		return port.JoinResult{}, domain.NewOpError("join", err)
	}
	return port.JoinResult{Meeting: res.Meeting.Domain(), Participant: res.Participant.Domain(), Since: res.Since}, nil
}

func (c *Client) Leave(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID) error {
	req := wire.ParticipantRequest{ParticipantID: id.String()}
	if err := c.do(ctx, http.MethodPost, meetingPath(meetingID, "leave"), req, nil); err != nil {
		return domain.NewOpError("leave", err)
	}
	return nil
}

func (c *Client) EndMeeting(ctx context.Context, meetingID domain.MeetingID, caller domain.ParticipantID) error {
	req := wire.ParticipantRequest{ParticipantID: caller.String()}
	if err := c.do(ctx, http.MethodPost, meetingPath(meetingID, "end"), req, nil); err != nil {
		return domain.NewOpError("end meeting", err)
	}
	return nil
}

func (c *Client) UpdateMedia(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID, flags domain.MediaFlags) error {
	req := wire.MediaRequest{Audio: flags.Audio, Video: flags.Video}
	path := meetingPath(meetingID, "participants/"+url.PathEscape(id.String()))
	if err := c.do(ctx, http.MethodPatch, path, req, nil); err != nil {
		return domain.NewOpError("update media", err)
	}
	return nil
}

func (c *Client) Publish(ctx context.Context, sig domain.Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, meetingPath(sig.MeetingID, "signals"), wire.FromSignal(sig), nil)
}

func meetingPath(id domain.MeetingID, tail string) string {
	return "/api/v1/meetings/" + url.PathEscape(id.String()) + "/" + tail
}

// do sends body as JSON and decodes a 2xx reply into out. Error bodies come
// back as errors matching the server-side sentinel.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var e wire.Error
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e); err != nil || e.Code == "" {
		return fmt.Errorf("%w: server returned %s", domain.ErrTransportUnavailable, resp.Status)
	}
	return e.Err()
}

func (c *Client) wsURL(meetingID domain.MeetingID, q url.Values) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + meetingPath(meetingID, "ws")
	u.RawQuery = q.Encode()
	return u.String()
}

// dial opens one feed socket. A refused handshake carries the server's
// error body.
func (c *Client) dial(ctx context.Context, meetingID domain.MeetingID, q url.Values) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.wsURL(meetingID, q), nil)
	if err == nil {
		return conn, nil
	}
	if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)
}
