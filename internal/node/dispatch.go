package node

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/samcm/lavafries/internal/events"
	"github.com/samcm/lavafries/internal/protocol"
)

// dispatch routes one inbound frame. Bad frames are reported as NodeError and dropped.
func (n *Node) dispatch(data []byte) {
	var frame protocol.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		n.protocolError(fmt.Errorf("%w: %v", ErrMalformedFrame, err), data)
		return
	}

	switch frame.Op {
	case protocol.OpStats:
		var stats protocol.Stats
		if err := json.Unmarshal(data, &stats); err != nil {
			n.protocolError(fmt.Errorf("%w: stats: %v", ErrMalformedFrame, err), data)
			return
		}

		n.mu.Lock()
		n.stats = stats
		n.mu.Unlock()

		n.emitter.Emit(events.NodeStats{Host: n.opts.Host, Stats: stats})

	case protocol.OpPlayerUpdate:
		var update protocol.PlayerUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			n.protocolError(fmt.Errorf("%w: playerUpdate: %v", ErrMalformedFrame, err), data)
			return
		}

		// The session may have been destroyed while the frame was in flight.
		if session, ok := n.sessions.Session(update.GuildID); ok {
			session.UpdatePosition(update.State.Position)
		}

	case protocol.OpEvent:
		var ev protocol.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			n.protocolError(fmt.Errorf("%w: event: %v", ErrMalformedFrame, err), data)
			return
		}

		ev.Raw = json.RawMessage(data)

		session, ok := n.sessions.Session(ev.GuildID)
		if !ok {
			n.log.WithFields(logrus.Fields{
				"guild_id": ev.GuildID,
				"type":     ev.Type,
			}).Debug("Dropping event for unknown session")

			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), n.opts.RequestTimeout)
		defer cancel()

		session.HandleEvent(ctx, ev)

	default:
		n.protocolError(fmt.Errorf("%w %q", ErrUnknownOp, frame.Op), data)
	}
}

func (n *Node) protocolError(err error, data []byte) {
	n.log.WithError(err).Warn("Received bad frame from node")
	n.emitter.Emit(events.NodeError{Host: n.opts.Host, Err: err, Payload: data})
}
