// Package events defines the notifications lavafries reports to the host.
package events

import (
	"sync"

	"github.com/samcm/lavafries/internal/protocol"
)

// Event is any notification published on a Bus.
type Event interface {
	Name() string
}

// NodeConnect is published when a node socket opens.
type NodeConnect struct {
	Host string
}

// NodeClose is published when a node socket closes, intentionally or not.
type NodeClose struct {
	Host   string
	Code   int
	Reason string
}

// NodeError reports a transport or protocol problem on a node. Payload holds
// the offending frame when the error came from dispatch.
type NodeError struct {
	Host    string
	Err     error
	Payload []byte
}

// NodeReconnect is published before each reconnect attempt.
type NodeReconnect struct {
	Host    string
	Attempt int
}

// NodeFatal is published when a node exhausted its reconnect attempts.
type NodeFatal struct {
	Host string
	Err  error
}

// NodeStats is published on every stats frame.
type NodeStats struct {
	Host  string
	Stats protocol.Stats
}

// PlayerCreate is published when a session is bound to a node.
type PlayerCreate struct {
	GuildID string
	Host    string
}

// PlayerDestroy is published when a session is destroyed.
type PlayerDestroy struct {
	GuildID string
}

// PlayerMove is published when the bot was moved to another voice channel.
type PlayerMove struct {
	GuildID string
	From    string
	To      string
}

// PlayerDisconnect is published when the bot left voice.
type PlayerDisconnect struct {
	GuildID   string
	ChannelID string
}

// PlayerError reports a failed automatic follow-up, such as playing the next track.
type PlayerError struct {
	GuildID string
	Err     error
}

// TrackStart is published when the node started a track.
type TrackStart struct {
	GuildID string
	Track   protocol.Track
	Event   protocol.Event
}

// QueueEnd is published when the last track of a queue finished.
type QueueEnd struct {
	GuildID string
	Track   protocol.Track
	Event   protocol.Event
}

// TrackStuck is published when a track got stuck and was removed.
type TrackStuck struct {
	GuildID string
	Track   protocol.Track
	Event   protocol.Event
}

// TrackError is published when a track raised an exception and was removed.
type TrackError struct {
	GuildID string
	Track   protocol.Track
	Event   protocol.Event
}

// SocketClosed is published when the node's voice connection closed.
type SocketClosed struct {
	Host    string
	GuildID string
	Event   protocol.Event
}

func (NodeConnect) Name() string      { return "nodeConnect" }
func (NodeClose) Name() string        { return "nodeClose" }
func (NodeError) Name() string        { return "nodeError" }
func (NodeReconnect) Name() string    { return "nodeReconnect" }
func (NodeFatal) Name() string        { return "nodeFatal" }
func (NodeStats) Name() string        { return "nodeStats" }
func (PlayerCreate) Name() string     { return "playerCreate" }
func (PlayerDestroy) Name() string    { return "playerDestroy" }
func (PlayerMove) Name() string       { return "playerMove" }
func (PlayerDisconnect) Name() string { return "playerDisconnect" }
func (PlayerError) Name() string      { return "playerError" }
func (TrackStart) Name() string       { return "trackPlay" }
func (QueueEnd) Name() string         { return "queueEnd" }
func (TrackStuck) Name() string       { return "trackStuck" }
func (TrackError) Name() string       { return "trackError" }
func (SocketClosed) Name() string     { return "socketClosed" }

// Handler receives published events.
type Handler func(Event)

// Emitter publishes events.
type Emitter interface {
	Emit(Event)
}

// Bus delivers every event synchronously to each subscribed handler in
// subscription order. The zero value is ready to use.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = append(b.handlers, h)
}

// Emit delivers e to every handler.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
