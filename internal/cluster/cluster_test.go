package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcm/lavafries/internal/events"
	"github.com/samcm/lavafries/internal/events/eventstest"
	"github.com/samcm/lavafries/internal/gateway"
	"github.com/samcm/lavafries/internal/gateway/gatewaytest"
	"github.com/samcm/lavafries/internal/node"
	"github.com/samcm/lavafries/internal/player"
	"github.com/samcm/lavafries/internal/protocol"
)

const botID = "bot"

var errBoom = errors.New("boom")

type fakeNode struct {
	opts      node.Options
	sessions  node.Sessions
	load      float64
	openErr   error
	connected atomic.Bool
	destroyed atomic.Bool

	mu      sync.Mutex
	sent    []any
	sendErr error
}

func (n *fakeNode) Host() string          { return n.opts.Host }
func (n *fakeNode) Connected() bool       { return n.connected.Load() }
func (n *fakeNode) Stats() protocol.Stats { return protocol.Stats{} }
func (n *fakeNode) Load() float64         { return n.load }
func (n *fakeNode) Destroy()              { n.destroyed.Store(true) }

func (n *fakeNode) Open(context.Context) error {
	if n.openErr != nil {
		return n.openErr
	}

	n.connected.Store(true)

	return nil
}

func (n *fakeNode) Send(_ context.Context, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sendErr != nil {
		return n.sendErr
	}

	n.sent = append(n.sent, payload)

	return nil
}

func (n *fakeNode) LoadTracks(context.Context, string, string) (protocol.LoadResult, error) {
	return protocol.NoMatches{}, nil
}

func (n *fakeNode) setSendErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sendErr = err
}

func (n *fakeNode) voiceUpdates() []protocol.VoiceUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []protocol.VoiceUpdate

	for _, p := range n.sent {
		if v, ok := p.(protocol.VoiceUpdate); ok {
			out = append(out, v)
		}
	}

	return out
}

type testCluster struct {
	*Cluster
	gw       *gatewaytest.Fake
	recorder *eventstest.Recorder
	nodes    map[string]*fakeNode
}

// newTestCluster builds a cluster of fake nodes with the given loads.
func newTestCluster(t *testing.T, loads map[string]float64, hosts ...string) *testCluster {
	t.Helper()

	log, _ := test.NewNullLogger()

	tc := &testCluster{
		gw:       &gatewaytest.Fake{UserID: botID, Shards: 2},
		recorder: &eventstest.Recorder{},
		nodes:    make(map[string]*fakeNode),
	}

	bus := events.NewBus()
	bus.Subscribe(tc.recorder.Emit)

	opts := make([]node.Options, 0, len(hosts))
	for _, h := range hosts {
		opts = append(opts, node.Options{Host: h, Port: 2333, Password: "pw"})
	}

	factory := func(_ logrus.FieldLogger, o node.Options, sessions node.Sessions, _ events.Emitter) (Node, error) {
		n := &fakeNode{opts: o, sessions: sessions, load: loads[o.Host]}
		tc.nodes[o.Host] = n

		return n, nil
	}

	c, err := newCluster(log, tc.gw, bus, opts, factory)
	require.NoError(t, err)

	tc.Cluster = c

	return tc
}

func sessionOptions(guildID string) player.Options {
	return player.Options{GuildID: guildID, VoiceChannelID: "voice-" + guildID, TextChannelID: "text-" + guildID}
}

func TestNew(t *testing.T) {
	log, _ := test.NewNullLogger()

	_, err := New(log, &gatewaytest.Fake{}, events.NewBus(), nil)
	assert.ErrorIs(t, err, ErrNoNodes)

	_, err = New(log, &gatewaytest.Fake{}, events.NewBus(), []node.Options{{Host: "a"}})
	assert.ErrorIs(t, err, node.ErrInvalidOptions)

	c, err := New(log, &gatewaytest.Fake{UserID: botID}, events.NewBus(), []node.Options{
		{Host: "a", Port: 2333, Password: "pw"},
		{Host: "a", Port: 2444, Password: "other"},
		{Host: "b", Port: 2333, Password: "pw"},
	})
	require.NoError(t, err)
	require.Len(t, c.Nodes(), 2)
	assert.Equal(t, "a", c.Nodes()[0].Host())
	assert.Equal(t, "b", c.Nodes()[1].Host())
}

func TestNodesGetGatewayIdentity(t *testing.T) {
	tc := newTestCluster(t, nil, "a")

	assert.Equal(t, botID, tc.nodes["a"].opts.UserID)
	assert.Equal(t, 2, tc.nodes["a"].opts.ShardCount)
}

func TestStart(t *testing.T) {
	tc := newTestCluster(t, nil, "a", "b")
	tc.nodes["b"].openErr = errBoom

	err := tc.Start(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.True(t, tc.nodes["a"].Connected())
	assert.False(t, tc.nodes["b"].Connected())

	// The failed node stays registered.
	_, ok := tc.Node("b")
	assert.True(t, ok)
}

func TestLeastLoadedNode(t *testing.T) {
	tc := newTestCluster(t, map[string]float64{"a": 40, "b": 10, "c": 70, "d": 5}, "a", "b", "c", "d")

	_, ok := tc.LeastLoadedNode()
	assert.False(t, ok)

	for _, h := range []string{"a", "b", "c"} {
		tc.nodes[h].connected.Store(true)
	}

	n, ok := tc.LeastLoadedNode()
	require.True(t, ok)
	assert.Equal(t, "b", n.Host())
}

func TestAddAndDestroyNode(t *testing.T) {
	tc := newTestCluster(t, nil, "a")
	ctx := context.Background()

	n, err := tc.AddNode(ctx, node.Options{Host: "b", Port: 2333, Password: "pw"})
	require.NoError(t, err)
	assert.True(t, n.Connected())
	assert.Len(t, tc.Nodes(), 2)

	again, err := tc.AddNode(ctx, node.Options{Host: "b", Port: 2333, Password: "pw"})
	require.NoError(t, err)
	assert.Same(t, n.(*fakeNode), again.(*fakeNode))

	assert.True(t, tc.DestroyNode("b"))
	assert.True(t, tc.nodes["b"].destroyed.Load())
	assert.False(t, tc.DestroyNode("b"))
	assert.Len(t, tc.Nodes(), 1)
}

func TestNodeFatalEvictsNode(t *testing.T) {
	tc := newTestCluster(t, nil, "a", "b")

	tc.bus.Emit(events.NodeFatal{Host: "a", Err: node.ErrConnectionExhausted})

	_, ok := tc.Node("a")
	assert.False(t, ok)
	assert.True(t, tc.nodes["a"].destroyed.Load())
	assert.Len(t, tc.Nodes(), 1)
}

func TestCreateSession(t *testing.T) {
	tc := newTestCluster(t, map[string]float64{"a": 50, "b": 20}, "a", "b")
	ctx := context.Background()

	_, err := tc.CreateSession(ctx, player.Options{GuildID: "g1"})
	assert.ErrorIs(t, err, player.ErrMissingOption)

	_, err = tc.CreateSession(ctx, sessionOptions("g1"))
	assert.ErrorIs(t, err, ErrNoAvailableNode)

	require.NoError(t, tc.Start(ctx))

	p, err := tc.CreateSession(ctx, sessionOptions("g1"))
	require.NoError(t, err)
	assert.Equal(t, "b", p.Node().Host())
	assert.True(t, p.Connected())

	assert.Equal(t, []gatewaytest.SentVoiceState{{GuildID: "g1", State: gateway.VoiceState{ChannelID: "voice-g1"}}}, tc.gw.Sent())

	created := tc.recorder.Named("playerCreate")
	require.Len(t, created, 1)
	assert.Equal(t, events.PlayerCreate{GuildID: "g1", Host: "b"}, created[0])

	again, err := tc.CreateSession(ctx, sessionOptions("g1"))
	require.NoError(t, err)
	assert.Same(t, p, again)
	assert.Len(t, tc.gw.Sent(), 1)
	assert.Len(t, tc.recorder.Named("playerCreate"), 1)

	got, ok := tc.Session("g1")
	require.True(t, ok)
	assert.Same(t, p, got)
	assert.Len(t, tc.Sessions(), 1)
}

func TestCreateSessionVoiceFailure(t *testing.T) {
	tc := newTestCluster(t, nil, "a")
	require.NoError(t, tc.Start(context.Background()))
	tc.gw.Err = errBoom

	_, err := tc.CreateSession(context.Background(), sessionOptions("g1"))
	assert.ErrorIs(t, err, errBoom)

	_, ok := tc.Session("g1")
	assert.False(t, ok)
	assert.Empty(t, tc.recorder.Named("playerCreate"))
}

func TestNodesSeeSessions(t *testing.T) {
	tc := newTestCluster(t, nil, "a")
	ctx := context.Background()
	require.NoError(t, tc.Start(ctx))

	p, err := tc.CreateSession(ctx, sessionOptions("g1"))
	require.NoError(t, err)

	s, ok := tc.nodes["a"].sessions.Session("g1")
	require.True(t, ok)
	assert.Same(t, p, s.(*player.Player))

	_, ok = tc.nodes["a"].sessions.Session("unknown")
	assert.False(t, ok)
}

func TestDestroySessionDeregisters(t *testing.T) {
	tc := newTestCluster(t, nil, "a")
	ctx := context.Background()
	require.NoError(t, tc.Start(ctx))

	p, err := tc.CreateSession(ctx, sessionOptions("g1"))
	require.NoError(t, err)

	tc.HandleVoiceStateUpdate(ctx, gateway.VoiceStateEvent{GuildID: "g1", ChannelID: "voice-g1", UserID: botID, SessionID: "s1"})

	require.NoError(t, p.Destroy(ctx))

	_, ok := tc.Session("g1")
	assert.False(t, ok)
	assert.Empty(t, tc.voice)
}

func TestClose(t *testing.T) {
	tc := newTestCluster(t, nil, "a", "b")
	ctx := context.Background()
	require.NoError(t, tc.Start(ctx))

	_, err := tc.CreateSession(ctx, sessionOptions("g1"))
	require.NoError(t, err)
	_, err = tc.CreateSession(ctx, sessionOptions("g2"))
	require.NoError(t, err)

	require.NoError(t, tc.Close(ctx))

	assert.Empty(t, tc.Sessions())
	assert.Empty(t, tc.Nodes())
	assert.True(t, tc.nodes["a"].destroyed.Load())
	assert.True(t, tc.nodes["b"].destroyed.Load())
	assert.Len(t, tc.recorder.Named("playerDestroy"), 2)
}

func TestVoiceHandshake(t *testing.T) {
	tc := newTestCluster(t, nil, "a")
	ctx := context.Background()
	require.NoError(t, tc.Start(ctx))

	_, err := tc.CreateSession(ctx, sessionOptions("g1"))
	require.NoError(t, err)

	tc.HandleVoiceStateUpdate(ctx, gateway.VoiceStateEvent{GuildID: "g1", ChannelID: "voice-g1", UserID: botID, SessionID: "S1"})
	assert.Empty(t, tc.nodes["a"].voiceUpdates())

	tc.HandleVoiceServerUpdate(ctx, gateway.VoiceServerEvent{GuildID: "g1", Token: "P1", Endpoint: "eu.discord.media"})

	sent := tc.nodes["a"].voiceUpdates()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.VoiceUpdate{
		Op:        protocol.OpVoiceUpdate,
		GuildID:   "g1",
		SessionID: "S1",
		Event:     protocol.VoiceServerUpdate{Token: "P1", GuildID: "g1", Endpoint: "eu.discord.media"},
	}, sent[0])

	tc.voiceMu.Lock()
	assert.Empty(t, tc.voice)
	tc.voiceMu.Unlock()

	// A duplicate server update without a new state update sends nothing.
	tc.HandleVoiceServerUpdate(ctx, gateway.VoiceServerEvent{GuildID: "g1", Token: "P1", Endpoint: "eu.discord.media"})
	assert.Len(t, tc.nodes["a"].voiceUpdates(), 1)

	assert.Empty(t, tc.recorder.Named("playerMove"))
	assert.Empty(t, tc.recorder.Named("playerDisconnect"))
}

func TestVoiceHandshakeServerFirst(t *testing.T) {
	tc := newTestCluster(t, nil, "a")
	ctx := context.Background()
	require.NoError(t, tc.Start(ctx))

	_, err := tc.CreateSession(ctx, sessionOptions("g1"))
	require.NoError(t, err)

	tc.HandleVoiceServerUpdate(ctx, gateway.VoiceServerEvent{GuildID: "g1", Token: "P1", Endpoint: "e"})
	assert.Empty(t, tc.nodes["a"].voiceUpdates())

	tc.HandleVoiceStateUpdate(ctx, gateway.VoiceStateEvent{GuildID: "g1", ChannelID: "voice-g1", UserID: botID, SessionID: "S1"})

	sent := tc.nodes["a"].voiceUpdates()
	require.Len(t, sent, 1)
	assert.Equal(t, "S1", sent[0].SessionID)
	assert.Equal(t, "P1", sent[0].Event.Token)
}

func TestVoiceHandshakeSentOnceUnderConcurrency(t *testing.T) {
	tc := newTestCluster(t, nil, "a")
	ctx := context.Background()
	require.NoError(t, tc.Start(ctx))

	_, err := tc.CreateSession(ctx, sessionOptions("g1"))
	require.NoError(t, err)

	tc.HandleVoiceStateUpdate(ctx, gateway.VoiceStateEvent{GuildID: "g1", ChannelID: "voice-g1", UserID: botID, SessionID: "S1"})

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			tc.HandleVoiceServerUpdate(ctx, gateway.VoiceServerEvent{GuildID: "g1", Token: "P1", Endpoint: "e"})
		}()
	}

	wg.Wait()

	assert.Len(t, tc.nodes["a"].voiceUpdates(), 1)
}

func TestVoiceEventsAreFiltered(t *testing.T) {
	tc := newTestCluster(t, nil, "a")
	ctx := context.Background()
	require.NoError(t, tc.Start(ctx))

	_, err := tc.CreateSession(ctx, sessionOptions("g1"))
	require.NoError(t, err)

	// Another member's voice state.
	tc.HandleVoiceStateUpdate(ctx, gateway.VoiceStateEvent{GuildID: "g1", ChannelID: "elsewhere", UserID: "someone", SessionID: "X"})
	// Guilds without a session.
	tc.HandleVoiceStateUpdate(ctx, gateway.VoiceStateEvent{GuildID: "g2", ChannelID: "v", UserID: botID, SessionID: "S2"})
	tc.HandleVoiceServerUpdate(ctx, gateway.VoiceServerEvent{GuildID: "g2", Token: "P2", Endpoint: "e"})

	tc.voiceMu.Lock()
	assert.Empty(t, tc.voice)
	tc.voiceMu.Unlock()

	assert.Empty(t, tc.recorder.Named("playerMove"))
	assert.Empty(t, tc.nodes["a"].voiceUpdates())
}

func TestVoiceMoveAndDisconnect(t *testing.T) {
	tc := newTestCluster(t, nil, "a")
	ctx := context.Background()
	require.NoError(t, tc.Start(ctx))

	p, err := tc.CreateSession(ctx, sessionOptions("g1"))
	require.NoError(t, err)

	tc.gw.Channels = map[string]gateway.Channel{
		"voice-other": {ID: "voice-other", GuildID: "g1", Name: "Other"},
	}

	tc.HandleVoiceStateUpdate(ctx, gateway.VoiceStateEvent{GuildID: "g1", ChannelID: "voice-other", UserID: botID, SessionID: "S1"})

	moved := tc.recorder.Named("playerMove")
	require.Len(t, moved, 1)
	assert.Equal(t, events.PlayerMove{GuildID: "g1", From: "voice-g1", To: "voice-other"}, moved[0])
	assert.Equal(t, "voice-other", p.VoiceChannelID())

	tc.HandleVoiceStateUpdate(ctx, gateway.VoiceStateEvent{GuildID: "g1", UserID: botID, SessionID: "S1"})

	left := tc.recorder.Named("playerDisconnect")
	require.Len(t, left, 1)
	assert.Equal(t, events.PlayerDisconnect{GuildID: "g1", ChannelID: "voice-other"}, left[0])
	assert.False(t, p.Connected())
	assert.True(t, p.Paused())
	assert.Empty(t, p.VoiceChannelID())
}

func TestVoiceMoveToUnknownChannelKeepsBinding(t *testing.T) {
	tc := newTestCluster(t, nil, "a")
	ctx := context.Background()
	require.NoError(t, tc.Start(ctx))

	p, err := tc.CreateSession(ctx, sessionOptions("g1"))
	require.NoError(t, err)

	tc.HandleVoiceStateUpdate(ctx, gateway.VoiceStateEvent{GuildID: "g1", ChannelID: "voice-gone", UserID: botID, SessionID: "S1"})

	moved := tc.recorder.Named("playerMove")
	require.Len(t, moved, 1)
	assert.Equal(t, events.PlayerMove{GuildID: "g1", From: "voice-g1", To: "voice-gone"}, moved[0])
	assert.Equal(t, "voice-g1", p.VoiceChannelID())
	assert.True(t, p.Connected())
}

func TestVoiceBufferRestoredOnSendFailure(t *testing.T) {
	tc := newTestCluster(t, nil, "a")
	ctx := context.Background()
	require.NoError(t, tc.Start(ctx))

	_, err := tc.CreateSession(ctx, sessionOptions("g1"))
	require.NoError(t, err)

	tc.nodes["a"].setSendErr(errBoom)

	tc.HandleVoiceStateUpdate(ctx, gateway.VoiceStateEvent{GuildID: "g1", ChannelID: "voice-g1", UserID: botID, SessionID: "S1"})
	tc.HandleVoiceServerUpdate(ctx, gateway.VoiceServerEvent{GuildID: "g1", Token: "P1", Endpoint: "e"})

	failed := tc.recorder.Named("playerError")
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].(events.PlayerError).Err, errBoom)

	tc.nodes["a"].setSendErr(nil)

	// The next server update completes the restored buffer.
	tc.HandleVoiceServerUpdate(ctx, gateway.VoiceServerEvent{GuildID: "g1", Token: "P2", Endpoint: "e"})

	sent := tc.nodes["a"].voiceUpdates()
	require.Len(t, sent, 1)
	assert.Equal(t, "S1", sent[0].SessionID)
	assert.Equal(t, "P2", sent[0].Event.Token)
}

func TestHandleRawEvent(t *testing.T) {
	tc := newTestCluster(t, nil, "a")
	ctx := context.Background()
	require.NoError(t, tc.Start(ctx))

	p, err := tc.CreateSession(ctx, sessionOptions("g1"))
	require.NoError(t, err)

	require.NoError(t, tc.HandleRawEvent(ctx, gateway.EventVoiceStateUpdate, json.RawMessage(
		`{"guild_id":"g1","channel_id":"voice-g1","user_id":"bot","session_id":"S1","self_deaf":false}`)))
	require.NoError(t, tc.HandleRawEvent(ctx, gateway.EventVoiceServerUpdate, json.RawMessage(
		`{"token":"P1","guild_id":"g1","endpoint":"e"}`)))

	sent := tc.nodes["a"].voiceUpdates()
	require.Len(t, sent, 1)
	assert.Equal(t, "S1", sent[0].SessionID)

	require.NoError(t, tc.HandleRawEvent(ctx, "MESSAGE_CREATE", json.RawMessage(`{}`)))
	assert.Error(t, tc.HandleRawEvent(ctx, gateway.EventVoiceStateUpdate, json.RawMessage(`{"guild_id":`)))

	require.NoError(t, tc.HandleRawEvent(ctx, gateway.EventVoiceStateUpdate, json.RawMessage(
		`{"guild_id":"g1","channel_id":null,"user_id":"bot","session_id":"S1"}`)))
	assert.Len(t, tc.recorder.Named("playerDisconnect"), 1)
	assert.False(t, p.Connected())
}
