// Package gateway describes what lavafries needs from the host's chat gateway
// connection, and provides an implementation backed by discordgo.
package gateway

import (
	"context"
	"errors"
)

// Raw gateway dispatch names handled by lavafries.
const (
	EventVoiceStateUpdate  = "VOICE_STATE_UPDATE"
	EventVoiceServerUpdate = "VOICE_SERVER_UPDATE"
)

var ErrChannelNotFound = errors.New("channel not found")

// VoiceState is the body of an op 4 voice state update. An empty ChannelID leaves voice.
type VoiceState struct {
	ChannelID string
	SelfMute  bool
	SelfDeaf  bool
}

// Channel is the subset of channel data lavafries uses.
type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// Gateway is the host capability lavafries is injected with.
type Gateway interface {
	CurrentUserID() string
	ShardCount() int
	SendVoiceStateUpdate(guildID string, state VoiceState) error
	ResolveChannel(id string) (Channel, error)
}

// VoiceStateEvent is the payload of VOICE_STATE_UPDATE.
type VoiceStateEvent struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// VoiceServerEvent is the payload of VOICE_SERVER_UPDATE.
type VoiceServerEvent struct {
	Token    string `json:"token"`
	GuildID  string `json:"guild_id"`
	Endpoint string `json:"endpoint"`
}

// VoiceHandler consumes the two voice events of the gateway.
type VoiceHandler interface {
	HandleVoiceStateUpdate(ctx context.Context, ev VoiceStateEvent)
	HandleVoiceServerUpdate(ctx context.Context, ev VoiceServerEvent)
}
