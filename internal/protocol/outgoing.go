package protocol

// Outbound op values.
const (
	OpPlay        = "play"
	OpPause       = "pause"
	OpStop        = "stop"
	OpVolume      = "volume"
	OpSeek        = "seek"
	OpEqualizer   = "equalizer"
	OpFilters     = "filters"
	OpDestroy     = "destroy"
	OpVoiceUpdate = "voiceUpdate"
)

// Play starts a track on a player.
type Play struct {
	Op        string `json:"op"`
	GuildID   string `json:"guildId"`
	Track     string `json:"track"`
	Volume    int    `json:"volume"`
	StartTime int64  `json:"startTime,omitempty"`
	EndTime   int64  `json:"endTime,omitempty"`
	NoReplace bool   `json:"noReplace,omitempty"`
}

// Pause pauses or resumes a player.
type Pause struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
	Pause   bool   `json:"pause"`
}

// Stop stops the current track.
type Stop struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
}

// Volume sets the player volume.
type Volume struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
	Volume  int    `json:"volume"`
}

// Seek moves the playback position.
type Seek struct {
	Op       string `json:"op"`
	GuildID  string `json:"guildId"`
	Position int64  `json:"position"`
}

// Equalizer replaces the equalizer bands.
type Equalizer struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
	Bands   []Band `json:"bands"`
}

// Band is one equalizer band. There are 15 bands (0-14), gain ranges from -0.25 to 1.0.
type Band struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}

// Destroy releases the node-side player.
type Destroy struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
}

// VoiceUpdate forwards the voice handshake a node needs to join the voice server.
type VoiceUpdate struct {
	Op        string            `json:"op"`
	GuildID   string            `json:"guildId"`
	SessionID string            `json:"sessionId"`
	Event     VoiceServerUpdate `json:"event"`
}

// VoiceServerUpdate carries the raw fields of the gateway VOICE_SERVER_UPDATE event.
type VoiceServerUpdate struct {
	Token    string `json:"token"`
	GuildID  string `json:"guild_id"`
	Endpoint string `json:"endpoint"`
}
