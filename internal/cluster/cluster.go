// Package cluster owns the audio nodes and the per-guild sessions bound to them.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/samcm/lavafries/internal/events"
	"github.com/samcm/lavafries/internal/gateway"
	"github.com/samcm/lavafries/internal/node"
	"github.com/samcm/lavafries/internal/player"
	"github.com/samcm/lavafries/internal/protocol"
)

var (
	ErrNoNodes         = errors.New("at least one node is required")
	ErrNoAvailableNode = errors.New("no connected node available")
)

// Node is the cluster's view of an audio node connection.
type Node interface {
	Host() string
	Connected() bool
	Stats() protocol.Stats
	Load() float64
	Open(ctx context.Context) error
	Destroy()
	Send(ctx context.Context, payload any) error
	LoadTracks(ctx context.Context, identifier, requester string) (protocol.LoadResult, error)
}

type nodeFactory func(log logrus.FieldLogger, opts node.Options, sessions node.Sessions, emitter events.Emitter) (Node, error)

func dialNode(log logrus.FieldLogger, opts node.Options, sessions node.Sessions, emitter events.Emitter) (Node, error) {
	n, err := node.New(log, opts, sessions, emitter)
	if err != nil {
		return nil, err
	}

	return n, nil
}

// Cluster routes sessions to the least loaded node and correlates the gateway
// voice events each node needs to join voice.
type Cluster struct {
	log     logrus.FieldLogger
	gw      gateway.Gateway
	bus     *events.Bus
	newNode nodeFactory

	mu       sync.RWMutex
	nodes    map[string]Node
	order    []string
	sessions map[string]*player.Player

	voiceMu sync.Mutex
	voice   map[string]*voiceBuffer
}

// New creates a cluster with one node per distinct host. Nodes are not
// connected until Start.
func New(log logrus.FieldLogger, gw gateway.Gateway, bus *events.Bus, nodes []node.Options) (*Cluster, error) {
	return newCluster(log, gw, bus, nodes, dialNode)
}

func newCluster(log logrus.FieldLogger, gw gateway.Gateway, bus *events.Bus, nodes []node.Options, factory nodeFactory) (*Cluster, error) {
	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}

	c := &Cluster{
		log:      log.WithField("component", "cluster"),
		gw:       gw,
		bus:      bus,
		newNode:  factory,
		nodes:    make(map[string]Node),
		sessions: make(map[string]*player.Player),
		voice:    make(map[string]*voiceBuffer),
	}

	for _, opts := range nodes {
		if _, _, err := c.register(opts); err != nil {
			return nil, err
		}
	}

	bus.Subscribe(c.handleEvent)

	return c, nil
}

// register creates the node for opts unless its host is already known.
func (c *Cluster) register(opts node.Options) (Node, bool, error) {
	if opts.UserID == "" {
		opts.UserID = c.gw.CurrentUserID()
	}

	if opts.ShardCount == 0 {
		opts.ShardCount = c.gw.ShardCount()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.nodes[opts.Host]; ok {
		c.log.WithField("host", opts.Host).Warn("Ignoring duplicate node")

		return existing, false, nil
	}

	n, err := c.newNode(c.log, opts, sessionIndex{c}, c.bus)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create node %s: %w", opts.Host, err)
	}

	c.nodes[opts.Host] = n
	c.order = append(c.order, opts.Host)

	return n, true, nil
}

// Start connects every node. Nodes whose first attempt fails keep retrying in
// the background; their errors are joined.
func (c *Cluster) Start(ctx context.Context) error {
	var errs []error

	for _, n := range c.Nodes() {
		if err := n.Open(ctx); err != nil {
			c.log.WithError(err).WithField("host", n.Host()).Warn("Failed to connect to node, retrying in background")

			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// AddNode registers and connects a node at runtime. A known host returns the
// existing node. A failed first connect is returned while the node keeps
// retrying in the background.
func (c *Cluster) AddNode(ctx context.Context, opts node.Options) (Node, error) {
	n, created, err := c.register(opts)
	if err != nil || !created {
		return n, err
	}

	c.log.WithField("host", n.Host()).Info("Added node")

	return n, n.Open(ctx)
}

// DestroyNode closes a node and removes it from the cluster.
func (c *Cluster) DestroyNode(host string) bool {
	n, ok := c.remove(host)
	if !ok {
		return false
	}

	n.Destroy()

	c.log.WithField("host", host).Info("Destroyed node")

	return true
}

func (c *Cluster) remove(host string) (Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[host]
	if !ok {
		return nil, false
	}

	delete(c.nodes, host)
	c.order = slices.DeleteFunc(c.order, func(h string) bool { return h == host })

	return n, true
}

// Node returns the node registered for host.
func (c *Cluster) Node(host string) (Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n, ok := c.nodes[host]

	return n, ok
}

// Nodes returns every node in registration order.
func (c *Cluster) Nodes() []Node {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Node, 0, len(c.order))
	for _, host := range c.order {
		out = append(out, c.nodes[host])
	}

	return out
}

// LeastLoadedNode returns the connected node with the lowest CPU load.
func (c *Cluster) LeastLoadedNode() (Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.leastLoadedLocked()
}

func (c *Cluster) leastLoadedLocked() (Node, bool) {
	var best Node

	for _, host := range c.order {
		n := c.nodes[host]
		if !n.Connected() {
			continue
		}

		if best == nil || n.Load() < best.Load() {
			best = n
		}
	}

	return best, best != nil
}

// CreateSession returns the session of the guild, creating it on the least
// loaded node and joining voice when there is none.
func (c *Cluster) CreateSession(ctx context.Context, opts player.Options) (*player.Player, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()

	if p, ok := c.sessions[opts.GuildID]; ok {
		c.mu.Unlock()

		return p, nil
	}

	n, ok := c.leastLoadedLocked()
	if !ok {
		c.mu.Unlock()

		return nil, ErrNoAvailableNode
	}

	p, err := player.New(c.log, n, c.gw, c.bus, opts, c.removeSession)
	if err != nil {
		c.mu.Unlock()

		return nil, err
	}

	// Registered before joining so the resulting voice events find the session.
	c.sessions[opts.GuildID] = p
	c.mu.Unlock()

	if err := p.Connect(ctx); err != nil {
		c.removeSession(opts.GuildID)

		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"guild_id": opts.GuildID,
		"host":     n.Host(),
	}).Info("Created session")

	c.bus.Emit(events.PlayerCreate{GuildID: opts.GuildID, Host: n.Host()})

	return p, nil
}

// Session returns the session of a guild.
func (c *Cluster) Session(guildID string) (*player.Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.sessions[guildID]

	return p, ok
}

// Sessions returns every live session.
func (c *Cluster) Sessions() []*player.Player {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*player.Player, 0, len(c.sessions))
	for _, p := range c.sessions {
		out = append(out, p)
	}

	return out
}

func (c *Cluster) removeSession(guildID string) {
	c.mu.Lock()
	delete(c.sessions, guildID)
	c.mu.Unlock()

	c.voiceMu.Lock()
	delete(c.voice, guildID)
	c.voiceMu.Unlock()
}

// Close destroys every session, then every node.
func (c *Cluster) Close(ctx context.Context) error {
	var errs []error

	for _, p := range c.Sessions() {
		if err := p.Destroy(ctx); err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", p.GuildID(), err))
		}
	}

	for _, n := range c.Nodes() {
		c.DestroyNode(n.Host())
	}

	return errors.Join(errs...)
}

func (c *Cluster) handleEvent(e events.Event) {
	fatal, ok := e.(events.NodeFatal)
	if !ok {
		return
	}

	n, ok := c.remove(fatal.Host)
	if !ok {
		return
	}

	n.Destroy()

	c.log.WithError(fatal.Err).WithField("host", fatal.Host).Error("Evicted node after exhausting reconnect attempts")
}

// sessionIndex exposes the session map to nodes.
type sessionIndex struct {
	c *Cluster
}

func (s sessionIndex) Session(guildID string) (node.Session, bool) {
	p, ok := s.c.Session(guildID)
	if !ok {
		return nil, false
	}

	return p, true
}
