package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/samcm/lavafries/internal/events"
	"github.com/samcm/lavafries/internal/gateway"
	"github.com/samcm/lavafries/internal/player"
	"github.com/samcm/lavafries/internal/protocol"
)

// voiceBuffer collects the two halves of a guild's voice handshake.
type voiceBuffer struct {
	op        bool
	guildID   string
	sessionID string
	event     *protocol.VoiceServerUpdate
}

func (b *voiceBuffer) complete() bool {
	return b.op && b.guildID != "" && b.sessionID != "" && b.event != nil
}

// HandleRawEvent decodes a raw gateway dispatch. Dispatches other than the
// two voice events are ignored.
func (c *Cluster) HandleRawEvent(ctx context.Context, t string, d json.RawMessage) error {
	switch t {
	case gateway.EventVoiceStateUpdate:
		var ev gateway.VoiceStateEvent
		if err := json.Unmarshal(d, &ev); err != nil {
			return fmt.Errorf("failed to decode %s: %w", t, err)
		}

		c.HandleVoiceStateUpdate(ctx, ev)
	case gateway.EventVoiceServerUpdate:
		var ev gateway.VoiceServerEvent
		if err := json.Unmarshal(d, &ev); err != nil {
			return fmt.Errorf("failed to decode %s: %w", t, err)
		}

		c.HandleVoiceServerUpdate(ctx, ev)
	}

	return nil
}

// HandleVoiceStateUpdate records the voice session id of the bot and tracks
// the bot leaving or being moved between voice channels.
func (c *Cluster) HandleVoiceStateUpdate(ctx context.Context, ev gateway.VoiceStateEvent) {
	if ev.UserID != c.gw.CurrentUserID() {
		return
	}

	p, ok := c.Session(ev.GuildID)
	if !ok {
		return
	}

	c.voiceMu.Lock()
	buf := c.bufferLocked(ev.GuildID)
	buf.op = true
	buf.sessionID = ev.SessionID
	c.voiceMu.Unlock()

	current := p.VoiceChannelID()

	switch {
	case ev.ChannelID == "":
		c.bus.Emit(events.PlayerDisconnect{GuildID: ev.GuildID, ChannelID: current})

		p.VoiceLeft()

		if err := p.Pause(ctx, true); err != nil {
			c.log.WithError(err).WithField("guild_id", ev.GuildID).Warn("Failed to pause after leaving voice")
		}
	case ev.ChannelID != current:
		c.bus.Emit(events.PlayerMove{GuildID: ev.GuildID, From: current, To: ev.ChannelID})

		// Only rebind to channels the gateway knows about.
		if _, err := c.gw.ResolveChannel(ev.ChannelID); err != nil {
			c.log.WithError(err).WithField("guild_id", ev.GuildID).Debug("Keeping voice binding, target channel unknown")
		} else {
			p.VoiceMoved(ev.ChannelID)
		}
	}

	c.flush(ctx, p)
}

// HandleVoiceServerUpdate records the voice server the node has to connect to.
func (c *Cluster) HandleVoiceServerUpdate(ctx context.Context, ev gateway.VoiceServerEvent) {
	p, ok := c.Session(ev.GuildID)
	if !ok {
		return
	}

	c.voiceMu.Lock()
	buf := c.bufferLocked(ev.GuildID)
	buf.guildID = ev.GuildID
	buf.event = &protocol.VoiceServerUpdate{
		Token:    ev.Token,
		GuildID:  ev.GuildID,
		Endpoint: ev.Endpoint,
	}
	c.voiceMu.Unlock()

	c.flush(ctx, p)
}

func (c *Cluster) bufferLocked(guildID string) *voiceBuffer {
	buf, ok := c.voice[guildID]
	if !ok {
		buf = &voiceBuffer{}
		c.voice[guildID] = buf
	}

	return buf
}

// flush sends the voice handshake once both halves arrived. The buffer is
// taken in the same critical section that checks it, so each completion
// sends exactly once.
func (c *Cluster) flush(ctx context.Context, p *player.Player) {
	guildID := p.GuildID()

	c.voiceMu.Lock()

	buf, ok := c.voice[guildID]
	if !ok || !buf.complete() {
		c.voiceMu.Unlock()

		return
	}

	delete(c.voice, guildID)
	c.voiceMu.Unlock()

	err := p.Node().Send(ctx, protocol.VoiceUpdate{
		Op:        protocol.OpVoiceUpdate,
		GuildID:   buf.guildID,
		SessionID: buf.sessionID,
		Event:     *buf.event,
	})
	if err == nil {
		c.log.WithFields(logrus.Fields{
			"guild_id": guildID,
			"host":     p.Node().Host(),
		}).Debug("Sent voice update")

		return
	}

	c.voiceMu.Lock()
	if _, newer := c.voice[guildID]; !newer {
		c.voice[guildID] = buf
	}
	c.voiceMu.Unlock()

	c.log.WithError(err).WithField("guild_id", guildID).Warn("Failed to send voice update")
	c.bus.Emit(events.PlayerError{GuildID: guildID, Err: fmt.Errorf("failed to send voice update: %w", err)})
}
