package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/samcm/lavafries/internal/discord"
	"github.com/samcm/lavafries/internal/format"
	"github.com/samcm/lavafries/internal/player"
	"github.com/samcm/lavafries/internal/protocol"
)

var (
	ErrNoSession  = errors.New("nothing is playing in this server")
	ErrNotInVoice = errors.New("you need to be in a voice channel")
	ErrBadTime    = errors.New("invalid timestamp")
)

// Command is a parsed chat command.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits content into a command name and its arguments. It
// reports false when content does not start with prefix.
func ParseCommand(prefix, content string) (Command, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Command{}, false
	}

	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return Command{}, false
	}

	name := strings.ToLower(fields[0])
	if alias, ok := aliases[name]; ok {
		name = alias
	}

	return Command{Name: name, Args: fields[1:]}, true
}

var aliases = map[string]string{
	"p":    "play",
	"s":    "skip",
	"np":   "nowplaying",
	"q":    "queue",
	"vol":  "volume",
	"dc":   "leave",
	"loop": "repeat",
}

type handler func(s *service, ctx context.Context, msg Message, args []string) error

var commands = map[string]handler{
	"play":       (*service).play,
	"skip":       (*service).skip,
	"stop":       (*service).stop,
	"pause":      (*service).pause,
	"resume":     (*service).resume,
	"volume":     (*service).volume,
	"seek":       (*service).seek,
	"queue":      (*service).queue,
	"nowplaying": (*service).nowplaying,
	"repeat":     (*service).repeat,
	"remove":     (*service).remove,
	"move":       (*service).move,
	"clear":      (*service).clear,
	"leave":      (*service).leave,
	"bassboost":  (*service).bassboost,
	"nightcore":  (*service).nightcore,
	"resetfx":    (*service).resetfx,
	"help":       (*service).help,
}

// HandleMessage runs the command in msg, if any, and replies in its channel.
func (s *service) HandleMessage(ctx context.Context, msg Message) {
	if msg.Bot || msg.GuildID == "" {
		return
	}

	cmd, ok := ParseCommand(s.cfg.Prefix, msg.Content)
	if !ok {
		return
	}

	h, ok := commands[cmd.Name]
	if !ok {
		return
	}

	log := s.log.WithFields(logrus.Fields{
		"guild_id": msg.GuildID,
		"command":  cmd.Name,
	})

	log.Debug("Handling command")

	if err := h(s, ctx, msg, cmd.Args); err != nil {
		log.WithError(err).Debug("Command failed")
		s.reply(msg.ChannelID, "❌ "+err.Error())
	}
}

func (s *service) session(guildID string) (*player.Player, error) {
	p, ok := s.cluster.Session(guildID)
	if !ok {
		return nil, ErrNoSession
	}

	return p, nil
}

func (s *service) usage(text string) error {
	return fmt.Errorf("usage: `%s%s`", s.cfg.Prefix, text)
}

func (s *service) play(ctx context.Context, msg Message, args []string) error {
	if len(args) == 0 {
		return s.usage("play <query or url>")
	}

	p, ok := s.cluster.Session(msg.GuildID)
	if !ok {
		channelID, err := s.messenger.UserVoiceChannel(msg.GuildID, msg.AuthorID)
		if err != nil || channelID == "" {
			return ErrNotInVoice
		}

		p, err = s.cluster.CreateSession(ctx, player.Options{
			GuildID:        msg.GuildID,
			VoiceChannelID: channelID,
			TextChannelID:  msg.ChannelID,
			Volume:         s.cfg.Volume,
			Deafen:         true,
			Queue:          s.cfg.Queue,
		})
		if err != nil {
			return fmt.Errorf("failed to join voice: %w", err)
		}
	}

	result, err := p.Search(ctx, strings.Join(args, " "), player.SearchOptions{
		Source:    player.SourceYouTube,
		Requester: msg.AuthorName,
	})

	switch {
	case errors.Is(err, player.ErrNoMatches):
		return fmt.Errorf("no results for `%s`", strings.Join(args, " "))
	case err != nil:
		return err
	}

	var reply string

	switch r := result.(type) {
	case protocol.SingleTrack:
		p.Queue().Add(r.Track)
		reply = queuedTrack(r.Track)
	case protocol.SearchResults:
		if len(r.Tracks) == 0 {
			return fmt.Errorf("no results for `%s`", strings.Join(args, " "))
		}

		p.Queue().Add(r.Tracks[0])
		reply = queuedTrack(r.Tracks[0])
	case protocol.Playlist:
		p.Queue().Add(r.Tracks...)
		reply = fmt.Sprintf("Queued playlist **%s** with %d tracks (`%s`).", r.Name, len(r.Tracks), format.Track(r.Duration))
	default:
		return fmt.Errorf("unexpected load result %s", result.LoadType())
	}

	if !p.Playing() {
		if err := p.Play(ctx); err != nil {
			return err
		}
	}

	s.reply(msg.ChannelID, reply)

	return nil
}

func queuedTrack(t protocol.Track) string {
	return fmt.Sprintf("Queued **%s** (`%s`).", t.Info.Title, format.Track(t.Length()))
}

func (s *service) skip(ctx context.Context, msg Message, _ []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	if err := p.Skip(ctx); err != nil {
		return err
	}

	s.reply(msg.ChannelID, "⏭️ Skipped.")

	return nil
}

func (s *service) stop(ctx context.Context, msg Message, _ []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	// Repeat modes would otherwise requeue the stopped track.
	p.DisableRepeat()
	p.Queue().ClearQueue()

	if err := p.Stop(ctx); err != nil {
		return err
	}

	s.reply(msg.ChannelID, "⏹️ Stopped and cleared the queue.")

	return nil
}

func (s *service) pause(ctx context.Context, msg Message, _ []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	if err := p.Pause(ctx, true); err != nil {
		return err
	}

	s.reply(msg.ChannelID, "⏸️ Paused.")

	return nil
}

func (s *service) resume(ctx context.Context, msg Message, _ []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	if err := p.Pause(ctx, false); err != nil {
		return err
	}

	s.reply(msg.ChannelID, "▶️ Resumed.")

	return nil
}

func (s *service) volume(ctx context.Context, msg Message, args []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		s.reply(msg.ChannelID, fmt.Sprintf("🔊 Volume is %d%%.", p.Volume()))

		return nil
	}

	level, err := strconv.Atoi(strings.TrimSuffix(args[0], "%"))
	if err != nil {
		return s.usage(fmt.Sprintf("volume <%d-%d>", player.MinVolume, player.MaxVolume))
	}

	if err := p.SetVolume(ctx, level); err != nil {
		return err
	}

	s.reply(msg.ChannelID, fmt.Sprintf("🔊 Volume set to %d%%.", p.Volume()))

	return nil
}

func (s *service) seek(ctx context.Context, msg Message, args []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return s.usage("seek <m:ss>")
	}

	position, err := ParseTimestamp(args[0])
	if err != nil {
		return err
	}

	if err := p.Seek(ctx, position); err != nil {
		return err
	}

	s.reply(msg.ChannelID, fmt.Sprintf("⏩ Seeked to `%s`.", format.Track(position)))

	return nil
}

// ParseTimestamp converts "ss", "m:ss" or "h:mm:ss" to milliseconds.
func ParseTimestamp(s string) (int64, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadTime, s)
	}

	var seconds int64

	for _, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrBadTime, s)
		}

		seconds = seconds*60 + n
	}

	return seconds * 1000, nil
}

func (s *service) queue(_ context.Context, msg Message, _ []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	q := p.Queue()

	return s.embed(msg.ChannelID, discord.QueueEmbed(q.Tracks(), q.Duration()))
}

func (s *service) nowplaying(_ context.Context, msg Message, _ []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	return s.embed(msg.ChannelID, discord.NowPlayingEmbed(nowPlaying(p)))
}

func (s *service) repeat(_ context.Context, msg Message, args []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	mode := "track"
	if len(args) > 0 {
		mode = strings.ToLower(args[0])
	}

	switch mode {
	case "track":
		s.reply(msg.ChannelID, "🔂 Track repeat "+onOff(p.SetTrackRepeat())+".")
	case "queue":
		s.reply(msg.ChannelID, "🔁 Queue repeat "+onOff(p.SetQueueRepeat())+".")
	case "off":
		p.DisableRepeat()
		s.reply(msg.ChannelID, "Repeat disabled.")
	default:
		return s.usage("repeat [track|queue|off]")
	}

	return nil
}

func onOff(on bool) string {
	if on {
		return "enabled"
	}

	return "disabled"
}

func (s *service) remove(_ context.Context, msg Message, args []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return s.usage("remove <position>")
	}

	pos, err := strconv.Atoi(args[0])
	if err != nil || pos < 1 {
		return s.usage("remove <position>")
	}

	t, err := p.Queue().Remove(pos)
	if err != nil {
		return err
	}

	s.reply(msg.ChannelID, fmt.Sprintf("Removed **%s**.", t.Info.Title))

	return nil
}

func (s *service) move(_ context.Context, msg Message, args []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	if len(args) < 2 {
		return s.usage("move <from> <to>")
	}

	from, errFrom := strconv.Atoi(args[0])
	to, errTo := strconv.Atoi(args[1])

	if errFrom != nil || errTo != nil {
		return s.usage("move <from> <to>")
	}

	if err := p.Queue().MoveTrack(from, to); err != nil {
		return err
	}

	s.reply(msg.ChannelID, fmt.Sprintf("Moved track %d to position %d.", from, to))

	return nil
}

func (s *service) clear(_ context.Context, msg Message, _ []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	p.Queue().ClearQueue()

	s.reply(msg.ChannelID, "Cleared the queue.")

	return nil
}

func (s *service) leave(ctx context.Context, msg Message, _ []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	if err := p.Destroy(ctx); err != nil {
		s.log.WithError(err).WithField("guild_id", msg.GuildID).Warn("Player destroyed with errors")
	}

	s.reply(msg.ChannelID, "👋 Left the voice channel.")

	return nil
}

func (s *service) bassboost(ctx context.Context, msg Message, _ []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	err = p.SetEqualizer(ctx,
		protocol.Band{Band: 0, Gain: 0.25},
		protocol.Band{Band: 1, Gain: 0.2},
		protocol.Band{Band: 2, Gain: 0.15},
		protocol.Band{Band: 3, Gain: 0.1},
	)
	if err != nil {
		return err
	}

	s.reply(msg.ChannelID, "Bass boost enabled.")

	return nil
}

func (s *service) nightcore(ctx context.Context, msg Message, _ []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	if err := p.SetTimescale(ctx, protocol.Timescale{Speed: 1.2, Pitch: 1.2, Rate: 1}); err != nil {
		return err
	}

	s.reply(msg.ChannelID, "Nightcore enabled.")

	return nil
}

func (s *service) resetfx(ctx context.Context, msg Message, _ []string) error {
	p, err := s.session(msg.GuildID)
	if err != nil {
		return err
	}

	if err := errors.Join(p.ClearEqualizer(ctx), p.ClearFilters(ctx)); err != nil {
		return err
	}

	s.reply(msg.ChannelID, "Effects cleared.")

	return nil
}

func (s *service) help(_ context.Context, msg Message, _ []string) error {
	var b strings.Builder

	b.WriteString("**Commands**\n")

	for _, line := range []string{
		"play <query or url>", "skip", "stop", "pause", "resume",
		"volume [level]", "seek <m:ss>", "queue", "nowplaying",
		"repeat [track|queue|off]", "remove <position>", "move <from> <to>",
		"clear", "leave", "bassboost", "nightcore", "resetfx",
	} {
		fmt.Fprintf(&b, "`%s%s`\n", s.cfg.Prefix, line)
	}

	s.reply(msg.ChannelID, strings.TrimRight(b.String(), "\n"))

	return nil
}

func (s *service) embed(channelID string, embed *discordgo.MessageEmbed) error {
	if _, err := s.messenger.SendEmbed(channelID, embed); err != nil {
		return fmt.Errorf("failed to send embed: %w", err)
	}

	return nil
}
