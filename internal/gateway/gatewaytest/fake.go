// Package gatewaytest provides an in-memory gateway for tests.
package gatewaytest

import (
	"fmt"
	"sync"

	"github.com/samcm/lavafries/internal/gateway"
)

// SentVoiceState is one voice state update captured by Fake.
type SentVoiceState struct {
	GuildID string
	State   gateway.VoiceState
}

// Fake is an in-memory gateway.Gateway.
type Fake struct {
	UserID   string
	Shards   int
	Channels map[string]gateway.Channel
	Err      error

	mu   sync.Mutex
	sent []SentVoiceState
}

func (f *Fake) CurrentUserID() string { return f.UserID }

func (f *Fake) ShardCount() int {
	if f.Shards < 1 {
		return 1
	}

	return f.Shards
}

func (f *Fake) SendVoiceStateUpdate(guildID string, state gateway.VoiceState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}

	f.sent = append(f.sent, SentVoiceState{GuildID: guildID, State: state})

	return nil
}

func (f *Fake) ResolveChannel(id string) (gateway.Channel, error) {
	ch, ok := f.Channels[id]
	if !ok {
		return gateway.Channel{}, fmt.Errorf("%w: %s", gateway.ErrChannelNotFound, id)
	}

	return ch, nil
}

// Sent returns the captured voice state updates in send order.
func (f *Fake) Sent() []SentVoiceState {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]SentVoiceState(nil), f.sent...)
}
