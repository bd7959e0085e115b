package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/samcm/lavafries/internal/format"
	"github.com/samcm/lavafries/internal/protocol"
)

const (
	colorPlaying = 0x2ECC71 // Green
	colorPaused  = 0xF39C12 // Orange
	colorIdle    = 0x95A5A6 // Gray
	colorQueue   = 0x2B5B84

	progressWidth = 18
	queuePageSize = 10
)

// NowPlaying is the player state shown in a now playing embed.
type NowPlaying struct {
	Track         *protocol.Track
	Position      int64
	Paused        bool
	Volume        int
	QueueSize     int
	QueueDuration int64
	RepeatTrack   bool
	RepeatQueue   bool
	Node          string
}

// NowPlayingEmbed creates the embed that is posted on track start and refreshed while playing.
func NowPlayingEmbed(np NowPlaying) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Color:     colorPlaying,
		Timestamp: time.Now().Format(time.RFC3339),
		Author: &discordgo.MessageEmbedAuthor{
			Name: "Now Playing",
		},
	}

	if np.Track == nil {
		embed.Description = "*Nothing is playing*"
		embed.Color = colorIdle

		return embed
	}

	if np.Paused {
		embed.Author.Name = "Paused"
		embed.Color = colorPaused
	}

	track := np.Track

	embed.Title = format.Truncate(track.Info.Title, 256)
	embed.URL = track.Info.URI

	if track.Thumbnails != nil {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{
			URL: track.Thumbnails.High,
		}
	}

	if track.Info.IsStream {
		embed.Description = "🔴 Live stream"
	} else {
		embed.Description = fmt.Sprintf("%s\n`%s / %s`",
			format.Progress(np.Position, track.Length(), progressWidth),
			format.Track(np.Position),
			format.Track(track.Length()),
		)
	}

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Author",
			Value:  orDash(track.Info.Author),
			Inline: true,
		},
		{
			Name:   "Requested by",
			Value:  orDash(track.Requester),
			Inline: true,
		},
		{
			Name:   "Volume",
			Value:  fmt.Sprintf("%d%%", np.Volume),
			Inline: true,
		},
		{
			Name:   "Queue",
			Value:  fmt.Sprintf("%d tracks • %s", np.QueueSize, format.Track(np.QueueDuration)),
			Inline: true,
		},
	}

	if repeat := repeatLabel(np.RepeatTrack, np.RepeatQueue); repeat != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Repeat",
			Value:  repeat,
			Inline: true,
		})
	}

	embed.Fields = fields

	footer := "lavafries"
	if np.Node != "" {
		footer = "Node " + np.Node
	}

	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: footer,
	}

	return embed
}

// QueueEmbed lists the first page of a queue. The first track is the current one.
func QueueEmbed(tracks []protocol.Track, total int64) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Queue",
		Color: colorQueue,
	}

	if len(tracks) == 0 {
		embed.Description = "*The queue is empty*"
		embed.Color = colorIdle

		return embed
	}

	var content strings.Builder

	for i, t := range tracks {
		if i == queuePageSize {
			content.WriteString(fmt.Sprintf("\n*...and %d more*", len(tracks)-queuePageSize))

			break
		}

		if i == 0 {
			content.WriteString(fmt.Sprintf("**Now:** %s `%s`\n", format.Truncate(t.Info.Title, 60), format.Track(t.Length())))

			continue
		}

		content.WriteString(fmt.Sprintf("`%d.` %s `%s`\n", i, format.Truncate(t.Info.Title, 60), format.Track(t.Length())))
	}

	embed.Description = strings.TrimRight(content.String(), "\n")
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("%d tracks • %s total", len(tracks), format.Track(total)),
	}

	return embed
}

func repeatLabel(track, queue bool) string {
	switch {
	case track:
		return "🔂 Track"
	case queue:
		return "🔁 Queue"
	default:
		return ""
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
