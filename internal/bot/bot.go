// Package bot turns chat commands into player operations and reports
// playback events back to the guild's text channel.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/samcm/lavafries/internal/discord"
	"github.com/samcm/lavafries/internal/events"
	"github.com/samcm/lavafries/internal/player"
	"github.com/samcm/lavafries/internal/queue"
)

const eventBuffer = 256

// Config holds bot configuration.
type Config struct {
	Prefix         string
	UpdateInterval time.Duration
	Volume         int
	Queue          queue.Options
}

// Cluster is the session registry the bot drives.
type Cluster interface {
	CreateSession(ctx context.Context, opts player.Options) (*player.Player, error)
	Session(guildID string) (*player.Player, bool)
	Sessions() []*player.Player
}

// Messenger posts to text channels and looks up member voice state.
type Messenger interface {
	SendMessage(channelID, content string) error
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error)
	EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error
	UserVoiceChannel(guildID, userID string) (string, error)
}

// Message is an incoming chat message.
type Message struct {
	GuildID    string
	ChannelID  string
	AuthorID   string
	AuthorName string
	Content    string
	Bot        bool
}

// Service defines the bot service interface.
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	HandleMessage(ctx context.Context, msg Message)
	HandleEvent(e events.Event)
}

type announcement struct {
	channelID string
	messageID string
}

type service struct {
	log       logrus.FieldLogger
	cfg       Config
	cluster   Cluster
	messenger Messenger
	events    chan events.Event
	done      chan struct{}
	wg        sync.WaitGroup

	mu            sync.Mutex
	announcements map[string]announcement
}

// NewService creates a new bot service.
func NewService(log logrus.FieldLogger, cfg Config, cluster Cluster, messenger Messenger) Service {
	return &service{
		log:           log.WithField("component", "bot"),
		cfg:           cfg,
		cluster:       cluster,
		messenger:     messenger,
		events:        make(chan events.Event, eventBuffer),
		done:          make(chan struct{}),
		announcements: make(map[string]announcement),
	}
}

// Start begins the event and refresh loop.
func (s *service) Start(ctx context.Context) error {
	s.wg.Add(1)

	go s.loop(ctx)

	s.log.WithField("interval", s.cfg.UpdateInterval).Info("Bot started")

	return nil
}

// Stop stops the loop. Pending events are dropped.
func (s *service) Stop() error {
	close(s.done)
	s.wg.Wait()

	s.log.Info("Bot stopped")

	return nil
}

// HandleEvent queues e for the loop. It never blocks the publisher.
func (s *service) HandleEvent(e events.Event) {
	select {
	case s.events <- e:
	default:
		s.log.WithField("event", e.Name()).Warn("Event buffer full, dropping event")
	}
}

func (s *service) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case e := <-s.events:
			s.process(ctx, e)
		case <-ticker.C:
			s.refresh()
		}
	}
}

func (s *service) process(ctx context.Context, e events.Event) {
	switch ev := e.(type) {
	case events.TrackStart:
		s.announce(ev.GuildID)
	case events.QueueEnd:
		s.forget(ev.GuildID)
		s.notify(ev.GuildID, fmt.Sprintf("Queue ended. Add more with `%splay`.", s.cfg.Prefix))
	case events.TrackStuck:
		s.notify(ev.GuildID, fmt.Sprintf("**%s** got stuck and was skipped.", ev.Track.Info.Title))
	case events.TrackError:
		reason := "unknown error"
		if ev.Event.Exception != nil {
			reason = ev.Event.Exception.Message
		}

		s.notify(ev.GuildID, fmt.Sprintf("Failed to play **%s**: %s", ev.Track.Info.Title, reason))
	case events.PlayerError:
		s.log.WithError(ev.Err).WithField("guild_id", ev.GuildID).Warn("Player error")
		s.notify(ev.GuildID, "Failed to continue playback.")
	case events.PlayerDisconnect:
		s.disconnected(ctx, ev.GuildID)
	case events.PlayerDestroy:
		s.forget(ev.GuildID)
	}
}

// announce posts a now playing embed for the guild's current track.
func (s *service) announce(guildID string) {
	p, ok := s.cluster.Session(guildID)
	if !ok {
		return
	}

	channelID := p.TextChannelID()
	if channelID == "" {
		return
	}

	messageID, err := s.messenger.SendEmbed(channelID, discord.NowPlayingEmbed(nowPlaying(p)))
	if err != nil {
		s.log.WithError(err).WithField("guild_id", guildID).Warn("Failed to announce track")

		return
	}

	s.mu.Lock()
	s.announcements[guildID] = announcement{channelID: channelID, messageID: messageID}
	s.mu.Unlock()
}

func (s *service) forget(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.announcements, guildID)
}

// refresh edits the now playing embed of every playing session.
func (s *service) refresh() {
	for _, p := range s.cluster.Sessions() {
		if !p.Playing() {
			continue
		}

		s.mu.Lock()
		a, ok := s.announcements[p.GuildID()]
		s.mu.Unlock()

		if !ok {
			continue
		}

		if err := s.messenger.EditEmbed(a.channelID, a.messageID, discord.NowPlayingEmbed(nowPlaying(p))); err != nil {
			s.log.WithError(err).WithField("guild_id", p.GuildID()).Debug("Failed to refresh now playing")
		}
	}
}

func (s *service) disconnected(ctx context.Context, guildID string) {
	p, ok := s.cluster.Session(guildID)
	if !ok {
		return
	}

	channelID := p.TextChannelID()

	if err := p.Destroy(ctx); err != nil {
		s.log.WithError(err).WithField("guild_id", guildID).Warn("Failed to destroy player after disconnect")
	}

	s.reply(channelID, "Disconnected from voice, the queue was cleared.")
}

func (s *service) notify(guildID, content string) {
	p, ok := s.cluster.Session(guildID)
	if !ok {
		return
	}

	s.reply(p.TextChannelID(), content)
}

func (s *service) reply(channelID, content string) {
	if channelID == "" {
		return
	}

	if err := s.messenger.SendMessage(channelID, content); err != nil {
		s.log.WithError(err).WithField("channel_id", channelID).Warn("Failed to send message")
	}
}

func nowPlaying(p *player.Player) discord.NowPlaying {
	q := p.Queue()

	np := discord.NowPlaying{
		Position:      p.Position(),
		Paused:        p.Paused(),
		Volume:        p.Volume(),
		QueueSize:     q.Size(),
		QueueDuration: q.Duration(),
		RepeatTrack:   q.RepeatTrack(),
		RepeatQueue:   q.RepeatQueue(),
		Node:          p.Node().Host(),
	}

	if t, ok := q.First(); ok {
		np.Track = &t
	}

	return np
}
