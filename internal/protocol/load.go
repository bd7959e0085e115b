package protocol

import (
	"encoding/json"
	"fmt"
)

// Load types reported by /loadtracks.
const (
	LoadNoMatches      = "NO_MATCHES"
	LoadFailed         = "LOAD_FAILED"
	LoadTrackLoaded    = "TRACK_LOADED"
	LoadPlaylistLoaded = "PLAYLIST_LOADED"
	LoadSearchResult   = "SEARCH_RESULT"
)

// LoadResult is the outcome of a track search. It is one of NoMatches,
// LoadFailure, SingleTrack, Playlist or SearchResults.
type LoadResult interface {
	LoadType() string
}

// NoMatches means the query matched nothing.
type NoMatches struct{}

// LoadFailure means the node failed to load the track or playlist.
type LoadFailure struct {
	Exception *Exception
}

// SingleTrack is a directly loaded track.
type SingleTrack struct {
	Track Track
}

// Playlist is a loaded playlist.
type Playlist struct {
	Name          string
	SelectedTrack int
	Tracks        []Track
	Duration      int64
}

// SearchResults is the list of tracks matching a search query.
type SearchResults struct {
	Tracks []Track
}

func (NoMatches) LoadType() string     { return LoadNoMatches }
func (LoadFailure) LoadType() string   { return LoadFailed }
func (SingleTrack) LoadType() string   { return LoadTrackLoaded }
func (Playlist) LoadType() string      { return LoadPlaylistLoaded }
func (SearchResults) LoadType() string { return LoadSearchResult }

type loadTracksResponse struct {
	LoadType     string `json:"loadType"`
	PlaylistInfo struct {
		Name          string `json:"name"`
		SelectedTrack int    `json:"selectedTrack"`
	} `json:"playlistInfo"`
	Tracks    []RawTrack `json:"tracks"`
	Exception *Exception `json:"exception,omitempty"`
}

// DecodeLoadResult decodes a /loadtracks response body, tagging every track with requester.
func DecodeLoadResult(data []byte, requester string) (LoadResult, error) {
	var resp loadTracksResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode load result: %w", err)
	}

	switch resp.LoadType {
	case LoadNoMatches:
		return NoMatches{}, nil
	case LoadFailed:
		return LoadFailure{Exception: resp.Exception}, nil
	case LoadTrackLoaded:
		if len(resp.Tracks) == 0 {
			return NoMatches{}, nil
		}

		track, err := NewTrack(resp.Tracks[0], requester, resp.LoadType)
		if err != nil {
			return nil, err
		}

		return SingleTrack{Track: track}, nil
	case LoadPlaylistLoaded:
		tracks, err := newTracks(resp.Tracks, requester, resp.LoadType)
		if err != nil {
			return nil, err
		}

		playlist := Playlist{
			Name:          resp.PlaylistInfo.Name,
			SelectedTrack: resp.PlaylistInfo.SelectedTrack,
			Tracks:        tracks,
		}

		for _, t := range tracks {
			playlist.Duration += t.Length()
		}

		return playlist, nil
	case LoadSearchResult:
		tracks, err := newTracks(resp.Tracks, requester, resp.LoadType)
		if err != nil {
			return nil, err
		}

		return SearchResults{Tracks: tracks}, nil
	default:
		return nil, fmt.Errorf("unknown load type %q", resp.LoadType)
	}
}

func newTracks(raw []RawTrack, requester, loadType string) ([]Track, error) {
	tracks := make([]Track, 0, len(raw))

	for _, r := range raw {
		track, err := NewTrack(r, requester, loadType)
		if err != nil {
			return nil, err
		}

		tracks = append(tracks, track)
	}

	return tracks, nil
}
