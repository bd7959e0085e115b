package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTrack is returned when a node track payload lacks its encoded string or info.
var ErrInvalidTrack = errors.New("invalid track payload")

// RawTrack is a track as the node returns it from /loadtracks.
type RawTrack struct {
	Track string     `json:"track"`
	Info  *TrackInfo `json:"info"`
}

// TrackInfo is the metadata of a track.
type TrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
	SourceName string `json:"sourceName,omitempty"`
}

// Track is a playable track handle plus the metadata the host cares about.
type Track struct {
	Encoded    string
	Info       TrackInfo
	Requester  string
	LoadType   string
	Thumbnails *Thumbnails
}

// Thumbnails holds preview image URLs for YouTube tracks.
type Thumbnails struct {
	Default  string
	Medium   string
	High     string
	Standard string
	Max      string
}

// Length returns the track length in milliseconds.
func (t Track) Length() int64 {
	return t.Info.Length
}

// NewTrack builds a Track from a node payload.
func NewTrack(raw RawTrack, requester, loadType string) (Track, error) {
	if raw.Track == "" || raw.Info == nil {
		return Track{}, ErrInvalidTrack
	}

	if loadType == "" {
		loadType = "UNKNOWN"
	}

	track := Track{
		Encoded:   raw.Track,
		Info:      *raw.Info,
		Requester: requester,
		LoadType:  loadType,
	}

	if strings.Contains(raw.Info.URI, "youtube") {
		track.Thumbnails = youtubeThumbnails(raw.Info.Identifier)
	}

	return track, nil
}

func youtubeThumbnails(id string) *Thumbnails {
	base := fmt.Sprintf("https://img.youtube.com/vi/%s", id)

	return &Thumbnails{
		Default:  base + "/default.jpg",
		Medium:   base + "/mqdefault.jpg",
		High:     base + "/hqdefault.jpg",
		Standard: base + "/sddefault.jpg",
		Max:      base + "/maxresdefault.jpg",
	}
}
