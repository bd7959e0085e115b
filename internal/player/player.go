// Package player implements the per-guild playback state machine.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/samcm/lavafries/internal/events"
	"github.com/samcm/lavafries/internal/gateway"
	"github.com/samcm/lavafries/internal/protocol"
	"github.com/samcm/lavafries/internal/queue"
)

const (
	MinVolume     = 0
	MaxVolume     = 1000
	DefaultVolume = 100
)

// Node is the audio node a player is bound to.
type Node interface {
	Host() string
	Send(ctx context.Context, payload any) error
	LoadTracks(ctx context.Context, identifier, requester string) (protocol.LoadResult, error)
}

// Voice sends op 4 voice state updates to the chat gateway.
type Voice interface {
	SendVoiceStateUpdate(guildID string, state gateway.VoiceState) error
}

// Options configures a new player. A Volume of 0 selects DefaultVolume; use
// SetVolume to mute.
type Options struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	Volume         int
	Mute           bool
	Deafen         bool
	Queue          queue.Options
}

// Validate checks that every required id is present.
func (o Options) Validate() error {
	switch {
	case o.GuildID == "":
		return fmt.Errorf("%w: guild id", ErrMissingOption)
	case o.VoiceChannelID == "":
		return fmt.Errorf("%w: voice channel id", ErrMissingOption)
	case o.TextChannelID == "":
		return fmt.Errorf("%w: text channel id", ErrMissingOption)
	}

	return nil
}

// Player is the playback session of one guild. It is driven by host commands
// and by the lifecycle events of its node.
type Player struct {
	log       logrus.FieldLogger
	node      Node
	voice     Voice
	emitter   events.Emitter
	onDestroy func(guildID string)
	queue     *queue.Queue

	guildID   string
	playing   atomic.Bool
	skipping  atomic.Bool
	destroyed atomic.Bool

	mu             sync.RWMutex
	voiceChannelID string
	textChannelID  string
	volume         int
	mute           bool
	deafen         bool
	paused         bool
	connected      bool
	position       int64
	bands          [bandCount]float64
	filters        protocol.Filters
}

// New creates a player bound to node. It does not join voice; call Connect.
// onDestroy is called with the guild id once Destroy ran.
func New(log logrus.FieldLogger, node Node, voice Voice, emitter events.Emitter, opts Options, onDestroy func(guildID string)) (*Player, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	volume := opts.Volume
	if volume == 0 {
		volume = DefaultVolume
	}

	p := &Player{
		log: log.WithFields(logrus.Fields{
			"component": "player",
			"guild_id":  opts.GuildID,
		}),
		node:           node,
		voice:          voice,
		emitter:        emitter,
		onDestroy:      onDestroy,
		guildID:        opts.GuildID,
		voiceChannelID: opts.VoiceChannelID,
		textChannelID:  opts.TextChannelID,
		volume:         clampVolume(volume),
		mute:           opts.Mute,
		deafen:         opts.Deafen,
	}

	p.queue = queue.New(opts.Queue, p.playing.Load)

	return p, nil
}

// GuildID returns the guild the player belongs to.
func (p *Player) GuildID() string { return p.guildID }

// Node returns the node the player is bound to.
func (p *Player) Node() Node { return p.node }

// Queue returns the player's track queue.
func (p *Player) Queue() *queue.Queue { return p.queue }

// Playing reports whether the node is playing a track for this player.
func (p *Player) Playing() bool { return p.playing.Load() }

// Paused reports whether playback is paused.
func (p *Player) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.paused
}

// Connected reports whether the player has joined its voice channel.
func (p *Player) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.connected
}

// Volume returns the current volume in [0, 1000].
func (p *Player) Volume() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.volume
}

// Position returns the last known playback position in milliseconds.
func (p *Player) Position() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.position
}

// VoiceChannelID returns the bound voice channel, empty when not in voice.
func (p *Player) VoiceChannelID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.voiceChannelID
}

// TextChannelID returns the channel playback messages are posted to.
func (p *Player) TextChannelID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.textChannelID
}

// Connect joins the bound voice channel with the player's mute and deafen settings.
func (p *Player) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	state := gateway.VoiceState{
		ChannelID: p.voiceChannelID,
		SelfMute:  p.mute,
		SelfDeaf:  p.deafen,
	}
	p.mu.RUnlock()

	if state.ChannelID == "" {
		return fmt.Errorf("%w: voice channel id", ErrMissingOption)
	}

	if err := p.voice.SendVoiceStateUpdate(p.guildID, state); err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}

	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()

	return nil
}

// Play starts the first track of the queue, joining voice first if needed.
func (p *Player) Play(ctx context.Context) error {
	track, ok := p.queue.First()
	if !ok {
		return ErrEmptyQueue
	}

	if !p.Connected() {
		if err := p.Connect(ctx); err != nil {
			return err
		}
	}

	err := p.node.Send(ctx, protocol.Play{
		Op:      protocol.OpPlay,
		GuildID: p.guildID,
		Track:   track.Encoded,
		Volume:  p.Volume(),
	})
	if err != nil {
		return fmt.Errorf("failed to play track: %w", err)
	}

	p.playing.Store(true)

	p.mu.Lock()
	p.paused = false
	p.position = 0
	p.mu.Unlock()

	return nil
}

// Pause pauses playback when flag is true and resumes it otherwise.
func (p *Player) Pause(ctx context.Context, flag bool) error {
	if err := p.node.Send(ctx, protocol.Pause{Op: protocol.OpPause, GuildID: p.guildID, Pause: flag}); err != nil {
		return fmt.Errorf("failed to pause player: %w", err)
	}

	p.mu.Lock()
	p.paused = flag
	p.mu.Unlock()

	return nil
}

// Stop stops the current track. The node answers with a track end event.
func (p *Player) Stop(ctx context.Context) error {
	if !p.playing.Load() {
		return ErrNotPlaying
	}

	if err := p.node.Send(ctx, protocol.Stop{Op: protocol.OpStop, GuildID: p.guildID}); err != nil {
		return fmt.Errorf("failed to stop player: %w", err)
	}

	return nil
}

// Skip stops the current track and advances past it, even when the
// current track is on repeat.
func (p *Player) Skip(ctx context.Context) error {
	if !p.playing.Load() {
		return ErrNotPlaying
	}

	p.skipping.Store(true)

	if err := p.node.Send(ctx, protocol.Stop{Op: protocol.OpStop, GuildID: p.guildID}); err != nil {
		p.skipping.Store(false)

		return fmt.Errorf("failed to skip track: %w", err)
	}

	return nil
}

// SetVolume clamps level to [0, 1000] and applies it.
func (p *Player) SetVolume(ctx context.Context, level int) error {
	level = clampVolume(level)

	if err := p.node.Send(ctx, protocol.Volume{Op: protocol.OpVolume, GuildID: p.guildID, Volume: level}); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}

	p.mu.Lock()
	p.volume = level
	p.mu.Unlock()

	return nil
}

// Seek moves playback of the current track to position milliseconds.
func (p *Player) Seek(ctx context.Context, position int64) error {
	track, ok := p.queue.First()
	if !ok {
		return ErrEmptyQueue
	}

	if position < 0 || position > track.Length() {
		return fmt.Errorf("%w: must be between 0 and %d", ErrOutOfRange, track.Length())
	}

	if err := p.node.Send(ctx, protocol.Seek{Op: protocol.OpSeek, GuildID: p.guildID, Position: position}); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	p.mu.Lock()
	p.position = position
	p.mu.Unlock()

	return nil
}

// Destroy leaves voice and releases the node-side player. Every step is
// attempted; their errors are joined. Calls after the first are no-ops.
func (p *Player) Destroy(ctx context.Context) error {
	if !p.destroyed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error

	if err := p.Pause(ctx, true); err != nil {
		errs = append(errs, err)
	}

	p.mu.Lock()
	p.connected = false
	p.voiceChannelID = ""
	p.textChannelID = ""
	p.mu.Unlock()

	p.playing.Store(false)

	if err := p.voice.SendVoiceStateUpdate(p.guildID, gateway.VoiceState{}); err != nil {
		errs = append(errs, fmt.Errorf("failed to leave voice channel: %w", err))
	}

	if err := p.node.Send(ctx, protocol.Destroy{Op: protocol.OpDestroy, GuildID: p.guildID}); err != nil {
		errs = append(errs, fmt.Errorf("failed to destroy node player: %w", err))
	}

	if p.onDestroy != nil {
		p.onDestroy(p.guildID)
	}

	p.emitter.Emit(events.PlayerDestroy{GuildID: p.guildID})

	p.log.Info("Player destroyed")

	return errors.Join(errs...)
}

// SetTrackRepeat toggles repeating the current track and returns its new state.
func (p *Player) SetTrackRepeat() bool {
	return p.queue.ToggleRepeat(queue.RepeatTrack)
}

// SetQueueRepeat toggles repeating the whole queue and returns its new state.
func (p *Player) SetQueueRepeat() bool {
	return p.queue.ToggleRepeat(queue.RepeatQueue)
}

// DisableRepeat clears both repeat modes and reports whether any is still on.
func (p *Player) DisableRepeat() bool {
	p.queue.ToggleRepeat(queue.RepeatDisable)

	return p.queue.RepeatTrack() || p.queue.RepeatQueue()
}

// SetTextChannel changes the channel announcements go to.
func (p *Player) SetTextChannel(id string) error {
	if id == "" {
		return fmt.Errorf("%w: text channel id", ErrMissingOption)
	}

	p.mu.Lock()
	p.textChannelID = id
	p.mu.Unlock()

	return nil
}

// SetVoiceChannel rebinds the player and rejoins voice if it was connected.
func (p *Player) SetVoiceChannel(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: voice channel id", ErrMissingOption)
	}

	p.mu.Lock()
	p.voiceChannelID = id
	connected := p.connected
	p.mu.Unlock()

	if !connected {
		return nil
	}

	return p.Connect(ctx)
}

// VoiceMoved records that the bot was moved to another voice channel by someone else.
func (p *Player) VoiceMoved(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.voiceChannelID = id
}

// VoiceLeft records that the bot is no longer in a voice channel.
func (p *Player) VoiceLeft() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.voiceChannelID = ""
	p.connected = false
}

// UpdatePosition records the position reported by the node.
func (p *Player) UpdatePosition(position int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.position = position
}

// HandleEvent applies a node lifecycle event to the player.
func (p *Player) HandleEvent(ctx context.Context, ev protocol.Event) {
	p.playing.Store(false)

	track, hasTrack := p.queue.First()

	switch ev.Type {
	case protocol.TrackStartEvent:
		p.playing.Store(true)
		p.emitter.Emit(events.TrackStart{GuildID: p.guildID, Track: track, Event: ev})

	case protocol.TrackEndEvent:
		skipped := p.skipping.Swap(false)

		if !hasTrack {
			return
		}

		switch {
		case p.queue.RepeatTrack() && !skipped:
			p.playNext(ctx)
		case p.queue.RepeatQueue():
			if head, ok := p.queue.Shift(); ok {
				p.queue.Add(head)
			}

			p.playNext(ctx)
		case p.queue.Size() > 1:
			p.queue.Shift()
			p.playNext(ctx)
		default:
			p.queue.Shift()
			p.emitter.Emit(events.QueueEnd{GuildID: p.guildID, Track: track, Event: ev})
		}

	case protocol.TrackStuckEvent, protocol.TrackExceptionEvent:
		if !hasTrack {
			return
		}

		p.queue.Shift()

		if p.queue.SkipOnError() && !p.queue.Empty() {
			p.playNext(ctx)
		}

		if ev.Type == protocol.TrackStuckEvent {
			p.emitter.Emit(events.TrackStuck{GuildID: p.guildID, Track: track, Event: ev})
		} else {
			p.emitter.Emit(events.TrackError{GuildID: p.guildID, Track: track, Event: ev})
		}

	case protocol.WebSocketClosedEvent:
		if ev.Code == protocol.CloseSessionTimeout || ev.Code == protocol.CloseVoiceServerCrashed {
			p.log.WithField("code", ev.Code).Info("Voice session invalidated, rejoining")

			if err := p.Connect(ctx); err != nil {
				p.fail(err)
			}
		}

		p.emitter.Emit(events.SocketClosed{Host: p.node.Host(), GuildID: p.guildID, Event: ev})

	default:
		p.log.WithField("type", ev.Type).Debug("Ignoring unknown event type")
	}
}

func (p *Player) playNext(ctx context.Context) {
	if err := p.Play(ctx); err != nil {
		p.fail(err)
	}
}

func (p *Player) fail(err error) {
	p.log.WithError(err).Error("Player follow-up failed")
	p.emitter.Emit(events.PlayerError{GuildID: p.guildID, Err: err})
}

func clampVolume(level int) int {
	return max(MinVolume, min(level, MaxVolume))
}
