// Package protocol defines the control-plane wire format spoken with audio nodes.
package protocol

import "encoding/json"

// Inbound op values.
const (
	OpStats        = "stats"
	OpPlayerUpdate = "playerUpdate"
	OpEvent        = "event"
)

// Event types carried by an OpEvent frame.
const (
	TrackStartEvent      = "TrackStartEvent"
	TrackEndEvent        = "TrackEndEvent"
	TrackStuckEvent      = "TrackStuckEvent"
	TrackExceptionEvent  = "TrackExceptionEvent"
	WebSocketClosedEvent = "WebSocketClosedEvent"
)

// Close codes reported in a WebSocketClosedEvent that invalidate the voice session.
const (
	CloseSessionTimeout     = 4009
	CloseVoiceServerCrashed = 4015
)

// Frame is the envelope every inbound message shares.
type Frame struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId,omitempty"`
}

// Stats is the load snapshot a node publishes periodically.
type Stats struct {
	Players        int         `json:"players"`
	PlayingPlayers int         `json:"playingPlayers"`
	Uptime         int64       `json:"uptime"`
	Memory         MemoryStats `json:"memory"`
	CPU            CPUStats    `json:"cpu"`
	FrameStats     *FrameStats `json:"frameStats,omitempty"`
}

// MemoryStats describes the node's JVM memory in bytes.
type MemoryStats struct {
	Free       int64 `json:"free"`
	Used       int64 `json:"used"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

// CPUStats describes the node's processor usage.
type CPUStats struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

// FrameStats is only present when the node has active players.
type FrameStats struct {
	Sent    int `json:"sent"`
	Nulled  int `json:"nulled"`
	Deficit int `json:"deficit"`
}

// Load returns the system load as a percentage of available cores.
func (s Stats) Load() float64 {
	if s.CPU.Cores <= 0 {
		return 0
	}

	return s.CPU.SystemLoad / float64(s.CPU.Cores) * 100
}

// PlayerUpdate reports the playback position of one player.
type PlayerUpdate struct {
	Op      string      `json:"op"`
	GuildID string      `json:"guildId"`
	State   PlayerState `json:"state"`
}

// PlayerState is the state block of a PlayerUpdate.
type PlayerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
}

// Event is a node-originated lifecycle notification for one player.
type Event struct {
	Op      string `json:"op"`
	Type    string `json:"type"`
	GuildID string `json:"guildId"`

	// Track end and start.
	Track  string `json:"track,omitempty"`
	Reason string `json:"reason,omitempty"`

	// Track exception.
	Exception *Exception `json:"exception,omitempty"`

	// Track stuck.
	ThresholdMs int64 `json:"thresholdMs,omitempty"`

	// WebSocket closed.
	Code     int  `json:"code,omitempty"`
	ByRemote bool `json:"byRemote,omitempty"`

	// Raw holds the undecoded frame.
	Raw json.RawMessage `json:"-"`
}

// Exception describes why a track failed.
type Exception struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}
