package player

import (
	"context"
	"fmt"

	"github.com/samcm/lavafries/internal/protocol"
)

const (
	bandCount = 15
	minGain   = -0.25
	maxGain   = 1.0
)

// SetEqualizer merges bands into the equalizer state and sends all 15 bands.
func (p *Player) SetEqualizer(ctx context.Context, bands ...protocol.Band) error {
	if len(bands) == 0 {
		return ErrInvalidBands
	}

	for _, b := range bands {
		if b.Band < 0 || b.Band >= bandCount || b.Gain < minGain || b.Gain > maxGain {
			return fmt.Errorf("%w: got band %d gain %v", ErrInvalidBands, b.Band, b.Gain)
		}
	}

	p.mu.RLock()
	next := p.bands
	p.mu.RUnlock()

	for _, b := range bands {
		next[b.Band] = b.Gain
	}

	return p.sendEqualizer(ctx, next)
}

// ClearEqualizer resets every band to 0.
func (p *Player) ClearEqualizer(ctx context.Context) error {
	return p.sendEqualizer(ctx, [bandCount]float64{})
}

// Equalizer returns the gain of every band.
func (p *Player) Equalizer() []protocol.Band {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return toBands(p.bands)
}

func (p *Player) sendEqualizer(ctx context.Context, gains [bandCount]float64) error {
	err := p.node.Send(ctx, protocol.Equalizer{
		Op:      protocol.OpEqualizer,
		GuildID: p.guildID,
		Bands:   toBands(gains),
	})
	if err != nil {
		return fmt.Errorf("failed to set equalizer: %w", err)
	}

	p.mu.Lock()
	p.bands = gains
	p.mu.Unlock()

	return nil
}

func toBands(gains [bandCount]float64) []protocol.Band {
	out := make([]protocol.Band, bandCount)
	for i, g := range gains {
		out[i] = protocol.Band{Band: i, Gain: g}
	}

	return out
}

func (p *Player) SetKaraoke(ctx context.Context, k protocol.Karaoke) error {
	return p.applyFilter(ctx, func(f *protocol.Filters) { f.Karaoke = &k })
}

func (p *Player) SetTimescale(ctx context.Context, t protocol.Timescale) error {
	return p.applyFilter(ctx, func(f *protocol.Filters) { f.Timescale = &t })
}

func (p *Player) SetTremolo(ctx context.Context, t protocol.Tremolo) error {
	return p.applyFilter(ctx, func(f *protocol.Filters) { f.Tremolo = &t })
}

func (p *Player) SetVibrato(ctx context.Context, v protocol.Vibrato) error {
	return p.applyFilter(ctx, func(f *protocol.Filters) { f.Vibrato = &v })
}

func (p *Player) SetRotation(ctx context.Context, r protocol.Rotation) error {
	return p.applyFilter(ctx, func(f *protocol.Filters) { f.Rotation = &r })
}

func (p *Player) SetDistortion(ctx context.Context, d protocol.Distortion) error {
	return p.applyFilter(ctx, func(f *protocol.Filters) { f.Distortion = &d })
}

func (p *Player) SetChannelMix(ctx context.Context, c protocol.ChannelMix) error {
	return p.applyFilter(ctx, func(f *protocol.Filters) { f.ChannelMix = &c })
}

func (p *Player) SetLowPass(ctx context.Context, l protocol.LowPass) error {
	return p.applyFilter(ctx, func(f *protocol.Filters) { f.LowPass = &l })
}

// ClearFilters disables every filter.
func (p *Player) ClearFilters(ctx context.Context) error {
	return p.applyFilter(ctx, func(f *protocol.Filters) { *f = protocol.Filters{} })
}

// FilterState returns the active filters keyed by filter name.
func (p *Player) FilterState() map[string]any {
	p.mu.RLock()
	f := p.filters
	p.mu.RUnlock()

	state := make(map[string]any)

	if f.Karaoke != nil {
		state[protocol.FilterKaraoke] = *f.Karaoke
	}

	if f.Timescale != nil {
		state[protocol.FilterTimescale] = *f.Timescale
	}

	if f.Tremolo != nil {
		state[protocol.FilterTremolo] = *f.Tremolo
	}

	if f.Vibrato != nil {
		state[protocol.FilterVibrato] = *f.Vibrato
	}

	if f.Rotation != nil {
		state[protocol.FilterRotation] = *f.Rotation
	}

	if f.Distortion != nil {
		state[protocol.FilterDistortion] = *f.Distortion
	}

	if f.ChannelMix != nil {
		state[protocol.FilterChannelMix] = *f.ChannelMix
	}

	if f.LowPass != nil {
		state[protocol.FilterLowPass] = *f.LowPass
	}

	return state
}

// applyFilter sends every recorded filter, including the one set by mutate.
// The node replaces its whole filter chain on each filters op.
func (p *Player) applyFilter(ctx context.Context, mutate func(*protocol.Filters)) error {
	p.mu.RLock()
	next := p.filters
	p.mu.RUnlock()

	mutate(&next)

	next.Op = protocol.OpFilters
	next.GuildID = p.guildID

	if err := p.node.Send(ctx, next); err != nil {
		return fmt.Errorf("failed to set filters: %w", err)
	}

	p.mu.Lock()
	p.filters = next
	p.mu.Unlock()

	return nil
}
