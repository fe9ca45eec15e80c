package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/huddle/internal/adapter/driven/gateway/remote"
	"github.com/Wyydra/huddle/internal/adapter/driven/media/pion"
	"github.com/Wyydra/huddle/internal/config"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/service"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type callOptions struct {
	server  string
	meeting string
	as      string
	name    string
	create  bool
}

func newCallCmd() *cobra.Command {
	var opts callOptions
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Join a meeting as a headless participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := finishConfig(nil); err != nil {
				return err
			}
			if opts.meeting == "" && !opts.create {
				return errors.New("either --meeting or --create is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCall(ctx, cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "relay server URL")
	cmd.Flags().StringVar(&opts.meeting, "meeting", "", "meeting to join")
	cmd.Flags().StringVar(&opts.as, "as", "", "participant id (random when empty)")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().BoolVar(&opts.create, "create", false, "create a meeting and join it as host")
	return cmd
}

func newCreateCmd() *cobra.Command {
	var server, as string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a meeting and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := finishConfig(nil); err != nil {
				return err
			}
			if as == "" {
				return errors.New("--as is required")
			}
			client, err := remote.New(server)
			if err != nil {
				return err
			}
			m, err := client.Create(cmd.Context(), domain.Identity{ID: domain.ParticipantID(as)})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "relay server URL")
	cmd.Flags().StringVar(&as, "as", "", "host participant id")
	return cmd
}

func runCall(ctx context.Context, cfg config.Config, opts callOptions) error {
	client, err := remote.New(opts.server)
	if err != nil {
		return err
	}

	self := domain.Identity{ID: domain.ParticipantID(opts.as), DisplayName: opts.name}
	if self.ID == "" {
		self.ID = domain.NewParticipantID()
	}

	meetingID := domain.MeetingID(opts.meeting)
	if opts.create {
		m, err := client.Create(ctx, self)
		if err != nil {
			return err
		}
		meetingID = m.ID
		log.Info().Str("meeting_id", m.ID.String()).Msg("Meeting created")
	}

	factory, err := pion.NewFactory(pion.ICEServers(cfg.ICE.STUN, cfg.ICE.TURNURL, cfg.ICE.TURNUsername, cfg.ICE.TURNCredential))
	if err != nil {
		return err
	}
	capture := pion.NewCapture(pion.Devices{Audio: true, Video: true, Display: true})

	call := service.NewCallService(self, client, client, client, capture, factory, service.CallConfig{
		Negotiation: service.NegotiatorConfig{
			DisconnectGrace: cfg.Negotiation.DisconnectGrace,
			MaxICERestarts:  cfg.Negotiation.MaxICERestarts,
		},
		CaptureRetries: cfg.Negotiation.CaptureRetries,
		CaptureBackoff: cfg.Negotiation.CaptureBackoff,
	})

	if _, err := call.Join(ctx, meetingID); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return call.Leave(leaveCtx)

		case ev := <-call.Events():
			logEvent(ev)
			if _, ended := ev.(domain.MeetingEndedEvent); ended {
				return nil
			}
		}
	}
}

func logEvent(ev domain.CallEvent) {
	switch ev := ev.(type) {
	case domain.Joined:
		log.Info().Str("meeting_id", ev.Meeting.ID.String()).Str("role", string(ev.Self.Role)).Msg("Joined")
	case domain.ParticipantJoined:
		log.Info().Str("participant_id", ev.Participant.ID.String()).Str("name", ev.Participant.DisplayName).Msg("Participant joined")
	case domain.ParticipantUpdated:
		log.Info().Str("participant_id", ev.Participant.ID.String()).
			Bool("audio", ev.Participant.Media.Audio).
			Bool("video", ev.Participant.Media.Video).
			Msg("Participant updated")
	case domain.ParticipantLeft:
		log.Info().Str("participant_id", ev.Participant.ID.String()).Msg("Participant left")
	case domain.PeerStateChanged:
		log.Info().Str("remote", ev.Remote.String()).Str("state", string(ev.State)).Msg("Peer state")
	case domain.RemoteTrackAdded:
		log.Info().Str("remote", ev.Remote.String()).Str("kind", string(ev.Track.Kind)).Msg("Remote track")
	case domain.PeerLost:
		log.Warn().Str("remote", ev.Remote.String()).Msg("Peer lost")
	case domain.CaptureFailed:
		log.Warn().Err(ev.Err).Msg(ev.Guidance)
	case domain.MeetingEndedEvent:
		log.Info().Str("meeting_id", ev.Meeting.String()).Msg("Meeting ended by host")
	case domain.Left:
		log.Info().Str("meeting_id", ev.Meeting.String()).Msg("Left meeting")
	}
}
