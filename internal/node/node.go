// Package node manages the control-plane connection to one remote audio node.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/samcm/lavafries/internal/events"
	"github.com/samcm/lavafries/internal/protocol"
)

// destroyReason marks the close frame sent by Destroy, so the close handler
// does not reconnect.
const destroyReason = "destroy"

// Session is the part of a player that node frames are delivered to.
type Session interface {
	UpdatePosition(position int64)
	HandleEvent(ctx context.Context, ev protocol.Event)
}

// Sessions looks up the session bound to a guild.
type Sessions interface {
	Session(guildID string) (Session, bool)
}

// Node owns the websocket to one audio node.
type Node struct {
	log      logrus.FieldLogger
	opts     Options
	sessions Sessions
	emitter  events.Emitter
	dialer   *websocket.Dialer
	client   *http.Client

	mu    sync.RWMutex
	conn  *websocket.Conn
	stats protocol.Stats

	writeMu   sync.Mutex
	destroyed atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once
}

// New creates a disconnected node. Call Connect or Open to dial it.
func New(log logrus.FieldLogger, opts Options, sessions Sessions, emitter events.Emitter) (*Node, error) {
	opts = opts.WithDefaults()

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &Node{
		log:      log.WithFields(logrus.Fields{"component": "node", "host": opts.Host}),
		opts:     opts,
		sessions: sessions,
		emitter:  emitter,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.RequestTimeout,
		},
		client: &http.Client{
			Timeout: opts.RequestTimeout,
		},
		done: make(chan struct{}),
	}, nil
}

// Host returns the node's host, its unique key.
func (n *Node) Host() string {
	return n.opts.Host
}

// Options returns the node's descriptor.
func (n *Node) Options() Options {
	return n.opts
}

// Connected reports whether the socket is open.
func (n *Node) Connected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.conn != nil
}

// Stats returns the last stats snapshot the node reported.
func (n *Node) Stats() protocol.Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.stats
}

// Load returns the node's CPU load in percent of its cores.
func (n *Node) Load() float64 {
	return n.Stats().Load()
}

// Open connects the node and, when the first attempt fails, keeps retrying in
// the background with the configured retry policy.
func (n *Node) Open(ctx context.Context) error {
	err := n.Connect(ctx)
	if err != nil && !errors.Is(err, ErrDestroyed) {
		n.emitter.Emit(events.NodeError{Host: n.opts.Host, Err: err})

		go n.reconnect()
	}

	return err
}

// Connect dials the node once. It does not guard against an existing connection.
func (n *Node) Connect(ctx context.Context) error {
	if n.destroyed.Load() {
		return ErrDestroyed
	}

	conn, resp, err := n.dialer.DialContext(ctx, n.opts.socketURL(), n.headers())
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to node %s (status %d): %w", n.opts.Host, resp.StatusCode, err)
		}

		return fmt.Errorf("failed to connect to node %s: %w", n.opts.Host, err)
	}

	n.mu.Lock()
	if n.destroyed.Load() {
		n.mu.Unlock()
		_ = conn.Close()

		return ErrDestroyed
	}
	n.conn = conn
	n.mu.Unlock()

	n.log.Info("Connected to node")
	n.emitter.Emit(events.NodeConnect{Host: n.opts.Host})

	go n.readLoop(conn)

	return nil
}

func (n *Node) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", n.opts.Password)
	h.Set("User-Id", n.opts.UserID)
	h.Set("Num-Shards", strconv.Itoa(n.opts.ShardCount))
	h.Set("Client-Name", n.opts.ClientName)

	return h
}

// readLoop dispatches frames in arrival order until the socket fails.
func (n *Node) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			n.handleClose(conn, err)
			return
		}

		n.dispatch(data)
	}
}

func (n *Node) handleClose(conn *websocket.Conn, err error) {
	n.mu.Lock()
	if n.conn == conn {
		n.conn = nil
	}
	n.mu.Unlock()

	_ = conn.Close()

	code, reason := websocket.CloseAbnormalClosure, err.Error()

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code, reason = closeErr.Code, closeErr.Text
	}

	intentional := n.destroyed.Load() || (code == websocket.CloseNormalClosure && reason == destroyReason)
	if n.destroyed.Load() {
		code, reason = websocket.CloseNormalClosure, destroyReason
	}

	n.log.WithFields(logrus.Fields{"code": code, "reason": reason}).Info("Node connection closed")
	n.emitter.Emit(events.NodeClose{Host: n.opts.Host, Code: code, Reason: reason})

	if intentional {
		return
	}

	n.reconnect()
}

// reconnect makes up to RetryAmount attempts, each after RetryDelay, and stops
// at the first success. Destroy aborts a pending wait.
func (n *Node) reconnect() {
	var lastErr error

	for attempt := 1; attempt <= n.opts.RetryAmount; attempt++ {
		timer := time.NewTimer(n.opts.RetryDelay)

		select {
		case <-n.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		n.log.WithField("attempt", attempt).Info("Reconnecting to node")
		n.emitter.Emit(events.NodeReconnect{Host: n.opts.Host, Attempt: attempt})

		ctx, cancel := context.WithTimeout(context.Background(), n.opts.RequestTimeout)
		err := n.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		if errors.Is(err, ErrDestroyed) {
			return
		}

		lastErr = err
		n.log.WithError(err).WithField("attempt", attempt).Warn("Reconnect attempt failed")
		n.emitter.Emit(events.NodeError{Host: n.opts.Host, Err: err})
	}

	err := fmt.Errorf("%w after trying %d times", ErrConnectionExhausted, n.opts.RetryAmount)
	if lastErr != nil {
		err = fmt.Errorf("%w: %w", err, lastErr)
	}

	n.log.WithError(err).Error("Giving up on node")
	n.emitter.Emit(events.NodeFatal{Host: n.opts.Host, Err: err})
}

// Destroy closes the socket with the destroy close frame and cancels any
// pending reconnect. The socket part is a no-op when already disconnected.
func (n *Node) Destroy() {
	n.destroyed.Store(true)
	n.doneOnce.Do(func() { close(n.done) })

	n.mu.Lock()
	conn := n.conn
	n.conn = nil
	n.mu.Unlock()

	if conn == nil {
		return
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, destroyReason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		n.log.WithError(err).Debug("Failed to send close frame")
	}

	_ = conn.Close()

	n.log.Info("Node destroyed")
}

// Send writes one control frame. It fails with ErrNotConnected when the socket
// is not open and ErrSerialization when payload does not encode to a JSON object.
func (n *Node) Send(ctx context.Context, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	if len(data) == 0 || data[0] != '{' {
		return ErrSerialization
	}

	n.writeMu.Lock()
	defer n.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to write to node %s: %w", n.opts.Host, err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write to node %s: %w", n.opts.Host, err)
	}

	return nil
}
