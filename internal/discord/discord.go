// Package discord manages the bot's Discord connection and message output.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

var ErrNotConnected = errors.New("not connected to Discord")

// Config holds Discord bot settings.
type Config struct {
	Token string
}

// Service defines the Discord service interface.
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	Session() *discordgo.Session
	SendMessage(channelID, content string) error
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error)
	EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error
	UserVoiceChannel(guildID, userID string) (string, error)
}

type service struct {
	log     logrus.FieldLogger
	cfg     Config
	session *discordgo.Session
	mu      sync.RWMutex
}

// NewService creates a new Discord service.
func NewService(log logrus.FieldLogger, cfg Config) Service {
	return &service{
		log: log.WithField("component", "discord"),
		cfg: cfg,
	}
}

// Start connects to Discord with the intents the bot needs.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := discordgo.New("Bot " + s.cfg.Token)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentMessageContent

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	s.session = session
	s.log.WithField("user_id", session.State.User.ID).Info("Connected to Discord")

	return nil
}

// Stop disconnects from Discord.
func (s *service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		if err := s.session.Close(); err != nil {
			s.log.WithError(err).Warn("Failed to close Discord session")
		}

		s.session = nil
		s.log.Info("Disconnected from Discord")
	}

	return nil
}

// Session returns the open discordgo session, or nil before Start.
func (s *service) Session() *discordgo.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session
}

func (s *service) SendMessage(channelID, content string) error {
	session := s.Session()
	if session == nil {
		return ErrNotConnected
	}

	if _, err := session.ChannelMessageSend(channelID, content); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// SendEmbed posts an embed and returns the message id.
func (s *service) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error) {
	session := s.Session()
	if session == nil {
		return "", ErrNotConnected
	}

	msg, err := session.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		return "", fmt.Errorf("failed to send embed: %w", err)
	}

	return msg.ID, nil
}

func (s *service) EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error {
	session := s.Session()
	if session == nil {
		return ErrNotConnected
	}

	if _, err := session.ChannelMessageEditEmbed(channelID, messageID, embed); err != nil {
		return fmt.Errorf("failed to update embed: %w", err)
	}

	return nil
}

// UserVoiceChannel returns the voice channel a guild member is connected to.
func (s *service) UserVoiceChannel(guildID, userID string) (string, error) {
	session := s.Session()
	if session == nil {
		return "", ErrNotConnected
	}

	vs, err := session.State.VoiceState(guildID, userID)
	if err != nil || vs.ChannelID == "" {
		return "", fmt.Errorf("user %s is not in a voice channel", userID)
	}

	return vs.ChannelID, nil
}
