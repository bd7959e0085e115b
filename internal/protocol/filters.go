package protocol

// Filter names, used as keys of a Filters payload.
const (
	FilterKaraoke    = "karaoke"
	FilterTimescale  = "timescale"
	FilterTremolo    = "tremolo"
	FilterVibrato    = "vibrato"
	FilterRotation   = "rotation"
	FilterDistortion = "distortion"
	FilterChannelMix = "channelMix"
	FilterLowPass    = "lowPass"
)

// Filters sets every audio filter of a player at once. Filters left nil are disabled.
type Filters struct {
	Op         string      `json:"op"`
	GuildID    string      `json:"guildId"`
	Karaoke    *Karaoke    `json:"karaoke,omitempty"`
	Timescale  *Timescale  `json:"timescale,omitempty"`
	Tremolo    *Tremolo    `json:"tremolo,omitempty"`
	Vibrato    *Vibrato    `json:"vibrato,omitempty"`
	Rotation   *Rotation   `json:"rotation,omitempty"`
	Distortion *Distortion `json:"distortion,omitempty"`
	ChannelMix *ChannelMix `json:"channelMix,omitempty"`
	LowPass    *LowPass    `json:"lowPass,omitempty"`
}

type Karaoke struct {
	Level       float64 `json:"level"`
	MonoLevel   float64 `json:"monoLevel"`
	FilterBand  float64 `json:"filterBand"`
	FilterWidth float64 `json:"filterWidth"`
}

type Timescale struct {
	Speed float64 `json:"speed"`
	Pitch float64 `json:"pitch"`
	Rate  float64 `json:"rate"`
}

type Tremolo struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

type Vibrato struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

type Rotation struct {
	RotationHz float64 `json:"rotationHz"`
}

type Distortion struct {
	SinOffset float64 `json:"sinOffset"`
	SinScale  float64 `json:"sinScale"`
	CosOffset float64 `json:"cosOffset"`
	CosScale  float64 `json:"cosScale"`
	TanOffset float64 `json:"tanOffset"`
	TanScale  float64 `json:"tanScale"`
	Offset    float64 `json:"offset"`
	Scale     float64 `json:"scale"`
}

type ChannelMix struct {
	LeftToLeft   float64 `json:"leftToLeft"`
	LeftToRight  float64 `json:"leftToRight"`
	RightToLeft  float64 `json:"rightToLeft"`
	RightToRight float64 `json:"rightToRight"`
}

type LowPass struct {
	Smoothing float64 `json:"smoothing"`
}
