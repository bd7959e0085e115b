// Package main provides the entry point for lavafries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/samcm/lavafries/internal/bot"
	"github.com/samcm/lavafries/internal/cluster"
	"github.com/samcm/lavafries/internal/config"
	"github.com/samcm/lavafries/internal/discord"
	"github.com/samcm/lavafries/internal/events"
	"github.com/samcm/lavafries/internal/format"
	"github.com/samcm/lavafries/internal/gateway"
	"github.com/samcm/lavafries/internal/metrics"
	"github.com/samcm/lavafries/internal/node"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	dryRun     bool
	dryRunUser string
	statsWait  time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lavafries",
	Short: "Play music in Discord voice channels through Lavalink nodes",
	Long:  "A Discord music bot that balances voice sessions across a cluster of Lavalink audio nodes.",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (required)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Connect to the configured nodes and print their stats, without connecting to Discord")
	rootCmd.Flags().StringVar(&dryRunUser, "user-id", "0", "User id sent to nodes in dry-run mode")
	rootCmd.Flags().DurationVar(&statsWait, "stats-wait", 70*time.Second, "How long dry-run mode waits for node stats")

	rootCmd.MarkFlagRequired("config")
}

func run(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}

	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if dryRun {
		return runDryRun(cmd.Context(), log, cfg)
	}

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("Received shutdown signal")
		cancel()
	}()

	// Connect to Discord
	dcService := discord.NewService(log, discord.Config{
		Token: cfg.Discord.Token,
	})

	if err := dcService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start Discord service: %w", err)
	}

	defer dcService.Stop()

	session := dcService.Session()
	gw := gateway.NewDiscord(log, session)
	bus := events.NewBus()

	if cfg.Metrics.Enabled {
		startMetrics(ctx, log, cfg, bus)
	}

	// Create the node cluster
	c, err := cluster.New(log, gw, bus, cfg.NodeOptions())
	if err != nil {
		return fmt.Errorf("failed to create cluster: %w", err)
	}

	removeVoice := gw.Forward(c)
	defer removeVoice()

	if err := c.Start(ctx); err != nil {
		log.WithError(err).Warn("Some nodes failed to connect, retrying in the background")
	}

	// Create bot service
	botService := bot.NewService(log, bot.Config{
		Prefix:         cfg.Discord.Prefix,
		UpdateInterval: cfg.Discord.UpdateInterval,
		Volume:         cfg.Player.Volume,
		Queue:          cfg.Player.QueueOptions(),
	}, c, dcService)

	bus.Subscribe(botService.HandleEvent)

	removeMessages := session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil {
			return
		}

		botService.HandleMessage(ctx, bot.Message{
			GuildID:    m.GuildID,
			ChannelID:  m.ChannelID,
			AuthorID:   m.Author.ID,
			AuthorName: m.Author.Username,
			Content:    m.Content,
			Bot:        m.Author.Bot,
		})
	})
	defer removeMessages()

	if err := botService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bot: %w", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	if err := botService.Stop(); err != nil {
		log.WithError(err).Warn("Error stopping bot")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()

	if err := c.Close(closeCtx); err != nil {
		log.WithError(err).Warn("Error closing cluster")
	}

	log.Info("Shutdown complete")

	return nil
}

func startMetrics(ctx context.Context, log logrus.FieldLogger, cfg *config.Config, bus *events.Bus) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := metrics.New(log, reg)
	bus.Subscribe(m.Handle)

	exporter := metrics.NewExporter(log, cfg.Metrics.Address, reg)

	go func() {
		if err := exporter.Start(ctx); err != nil {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
}

// noSessions serves nodes that never have players bound to them.
type noSessions struct{}

func (noSessions) Session(string) (node.Session, bool) { return nil, false }

// runDryRun connects to every node once and prints its stats.
func runDryRun(ctx context.Context, log logrus.FieldLogger, cfg *config.Config) error {
	log.Info("Running in dry-run mode")

	bus := events.NewBus()
	statsCh := make(chan string, len(cfg.Nodes))

	bus.Subscribe(func(e events.Event) {
		if s, ok := e.(events.NodeStats); ok {
			select {
			case statsCh <- s.Host:
			default:
			}
		}
	})

	var nodes []*node.Node

	defer func() {
		for _, n := range nodes {
			n.Destroy()
		}
	}()

	for _, opts := range cfg.NodeOptions() {
		opts.UserID = dryRunUser

		n, err := node.New(log, opts, noSessions{}, bus)
		if err != nil {
			return fmt.Errorf("failed to create node %s: %w", opts.Host, err)
		}

		if err := n.Connect(ctx); err != nil {
			log.WithError(err).WithField("host", opts.Host).Warn("Failed to connect to node")

			continue
		}

		nodes = append(nodes, n)
	}

	if len(nodes) == 0 {
		return fmt.Errorf("no node could be reached")
	}

	// Wait for the first stats frame of each connected node
	timeout := time.After(statsWait)
	seen := make(map[string]bool, len(nodes))

wait:
	for len(seen) < len(nodes) {
		select {
		case host := <-statsCh:
			seen[host] = true
		case <-timeout:
			log.Warn("Timed out waiting for node stats")

			break wait
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Print stats
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	title := fmt.Sprintf("Lavalink Nodes (%d/%d connected)", len(nodes), len(cfg.Nodes))
	padding := (62 - len(title)) / 2
	fmt.Printf("║%s%s%s║\n", strings.Repeat(" ", padding), title, strings.Repeat(" ", 62-padding-len(title)))
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")

	for i, n := range nodes {
		if i > 0 {
			fmt.Println("╟──────────────────────────────────────────────────────────────╢")
		}

		fmt.Printf("║  🎵 %-57s ║\n", format.Truncate(n.Host(), 57))

		if !seen[n.Host()] {
			fmt.Println("║      No stats received                                       ║")

			continue
		}

		stats := n.Stats()
		fmt.Printf("║      • Players: %-45s ║\n", fmt.Sprintf("%d (%d playing)", stats.Players, stats.PlayingPlayers))
		fmt.Printf("║      • Uptime: %-46s ║\n", format.Duration(time.Duration(stats.Uptime)*time.Millisecond))
		fmt.Printf("║      • Memory: %-46s ║\n", fmt.Sprintf("%s / %s", format.Bytes(stats.Memory.Used), format.Bytes(stats.Memory.Allocated)))
		fmt.Printf("║      • CPU: %-49s ║\n", fmt.Sprintf("%d cores, %.1f%% load", stats.CPU.Cores, n.Load()))
	}

	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()

	return nil
}
