package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

// handlerTimeout bounds the work done for one forwarded gateway event.
const handlerTimeout = 10 * time.Second

// Discord implements Gateway on top of a discordgo session.
type Discord struct {
	log     logrus.FieldLogger
	session *discordgo.Session
}

// NewDiscord wraps an opened discordgo session.
func NewDiscord(log logrus.FieldLogger, session *discordgo.Session) *Discord {
	return &Discord{
		log:     log.WithField("component", "gateway"),
		session: session,
	}
}

// CurrentUserID returns the bot's user id, empty before the READY event.
func (d *Discord) CurrentUserID() string {
	if d.session.State == nil || d.session.State.User == nil {
		return ""
	}

	return d.session.State.User.ID
}

// ShardCount returns the number of shards, at least 1.
func (d *Discord) ShardCount() int {
	if d.session.ShardCount < 1 {
		return 1
	}

	return d.session.ShardCount
}

// SendVoiceStateUpdate sends op 4 for the guild.
func (d *Discord) SendVoiceStateUpdate(guildID string, state VoiceState) error {
	if err := d.session.ChannelVoiceJoinManual(guildID, state.ChannelID, state.SelfMute, state.SelfDeaf); err != nil {
		return fmt.Errorf("failed to send voice state update: %w", err)
	}

	d.log.WithFields(logrus.Fields{
		"guild_id":   guildID,
		"channel_id": state.ChannelID,
	}).Debug("Sent voice state update")

	return nil
}

// ResolveChannel looks a channel up in the state cache, falling back to the REST API.
func (d *Discord) ResolveChannel(id string) (Channel, error) {
	if d.session.State != nil {
		if ch, err := d.session.State.Channel(id); err == nil {
			return toChannel(ch), nil
		}
	}

	ch, err := d.session.Channel(id)
	if err != nil {
		return Channel{}, fmt.Errorf("%w: %s: %v", ErrChannelNotFound, id, err)
	}

	return toChannel(ch), nil
}

// Forward registers discordgo handlers that pass voice events to h. The
// returned function removes them.
func (d *Discord) Forward(h VoiceHandler) func() {
	removeState := d.session.AddHandler(func(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
		if e.VoiceState == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		h.HandleVoiceStateUpdate(ctx, VoiceStateEvent{
			GuildID:   e.GuildID,
			ChannelID: e.ChannelID,
			UserID:    e.UserID,
			SessionID: e.SessionID,
		})
	})

	removeServer := d.session.AddHandler(func(_ *discordgo.Session, e *discordgo.VoiceServerUpdate) {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		h.HandleVoiceServerUpdate(ctx, VoiceServerEvent{
			Token:    e.Token,
			GuildID:  e.GuildID,
			Endpoint: e.Endpoint,
		})
	})

	return func() {
		removeState()
		removeServer()
	}
}

func toChannel(ch *discordgo.Channel) Channel {
	return Channel{
		ID:      ch.ID,
		GuildID: ch.GuildID,
		Name:    ch.Name,
	}
}
