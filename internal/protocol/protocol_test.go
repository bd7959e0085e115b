package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const youtubeTrack = `{
	"track": "QAAAjQIAJVJpY2sgQXN0bGV5",
	"info": {
		"identifier": "dQw4w9WgXcQ",
		"isSeekable": true,
		"author": "RickAstleyVEVO",
		"length": 212000,
		"isStream": false,
		"position": 0,
		"title": "Rick Astley - Never Gonna Give You Up",
		"uri": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	}
}`

const soundcloudTrack = `{
	"track": "QAAAmAIAHFNvdW5kQ2xvdWQ=",
	"info": {
		"identifier": "O:https://api-v2.soundcloud.com/media/1",
		"isSeekable": true,
		"author": "someone",
		"length": 100000,
		"isStream": false,
		"position": 0,
		"title": "Demo",
		"uri": "https://soundcloud.com/someone/demo"
	}
}`

func TestDecodeLoadResult(t *testing.T) {
	t.Run("track loaded", func(t *testing.T) {
		result, err := DecodeLoadResult([]byte(`{"loadType":"TRACK_LOADED","tracks":[`+youtubeTrack+`]}`), "alice")
		require.NoError(t, err)

		single, ok := result.(SingleTrack)
		require.True(t, ok)
		assert.Equal(t, LoadTrackLoaded, single.LoadType())
		assert.Equal(t, "QAAAjQIAJVJpY2sgQXN0bGV5", single.Track.Encoded)
		assert.Equal(t, "alice", single.Track.Requester)
		assert.Equal(t, LoadTrackLoaded, single.Track.LoadType)
		assert.Equal(t, int64(212000), single.Track.Length())
		require.NotNil(t, single.Track.Thumbnails)
		assert.Equal(t, "https://img.youtube.com/vi/dQw4w9WgXcQ/maxresdefault.jpg", single.Track.Thumbnails.Max)
	})

	t.Run("playlist", func(t *testing.T) {
		body := `{"loadType":"PLAYLIST_LOADED","playlistInfo":{"name":"Mix","selectedTrack":1},"tracks":[` + youtubeTrack + `,` + soundcloudTrack + `]}`

		result, err := DecodeLoadResult([]byte(body), "bob")
		require.NoError(t, err)

		playlist, ok := result.(Playlist)
		require.True(t, ok)
		assert.Equal(t, "Mix", playlist.Name)
		assert.Equal(t, 1, playlist.SelectedTrack)
		assert.Equal(t, int64(312000), playlist.Duration)
		require.Len(t, playlist.Tracks, 2)
		assert.Nil(t, playlist.Tracks[1].Thumbnails)
		assert.Equal(t, "bob", playlist.Tracks[1].Requester)
	})

	t.Run("search results", func(t *testing.T) {
		result, err := DecodeLoadResult([]byte(`{"loadType":"SEARCH_RESULT","tracks":[`+soundcloudTrack+`]}`), "")
		require.NoError(t, err)

		search, ok := result.(SearchResults)
		require.True(t, ok)
		require.Len(t, search.Tracks, 1)
		assert.Equal(t, "Demo", search.Tracks[0].Info.Title)
	})

	t.Run("no matches", func(t *testing.T) {
		result, err := DecodeLoadResult([]byte(`{"loadType":"NO_MATCHES","tracks":[]}`), "")
		require.NoError(t, err)
		assert.Equal(t, NoMatches{}, result)

		result, err = DecodeLoadResult([]byte(`{"loadType":"TRACK_LOADED","tracks":[]}`), "")
		require.NoError(t, err)
		assert.Equal(t, NoMatches{}, result)
	})

	t.Run("load failed", func(t *testing.T) {
		body := `{"loadType":"LOAD_FAILED","tracks":[],"exception":{"message":"unavailable","severity":"COMMON"}}`

		result, err := DecodeLoadResult([]byte(body), "")
		require.NoError(t, err)

		failure, ok := result.(LoadFailure)
		require.True(t, ok)
		require.NotNil(t, failure.Exception)
		assert.Equal(t, "unavailable", failure.Exception.Message)
		assert.Equal(t, "COMMON", failure.Exception.Severity)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := DecodeLoadResult([]byte(`{`), "")
		assert.ErrorContains(t, err, "failed to decode load result")

		_, err = DecodeLoadResult([]byte(`{"loadType":"SOMETHING_NEW"}`), "")
		assert.ErrorContains(t, err, "unknown load type")

		_, err = DecodeLoadResult([]byte(`{"loadType":"SEARCH_RESULT","tracks":[{"track":""}]}`), "")
		assert.ErrorIs(t, err, ErrInvalidTrack)
	})
}

func TestNewTrackDefaultsLoadType(t *testing.T) {
	track, err := NewTrack(RawTrack{Track: "abc", Info: &TrackInfo{Title: "x"}}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN", track.LoadType)

	_, err = NewTrack(RawTrack{Track: "abc"}, "", "")
	assert.ErrorIs(t, err, ErrInvalidTrack)
}

func TestStatsLoad(t *testing.T) {
	assert.InDelta(t, 25.0, Stats{CPU: CPUStats{Cores: 4, SystemLoad: 1}}.Load(), 1e-9)
	assert.Zero(t, Stats{CPU: CPUStats{SystemLoad: 0.5}}.Load())
}

func TestFiltersOmitDisabled(t *testing.T) {
	data, err := json.Marshal(Filters{
		Op:        OpFilters,
		GuildID:   "guild",
		Timescale: &Timescale{Speed: 1.2, Pitch: 1.2, Rate: 1},
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"op":"filters","guildId":"guild","timescale":{"speed":1.2,"pitch":1.2,"rate":1}}`, string(data))
}

func TestDecodeEvent(t *testing.T) {
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{
		"op": "event",
		"type": "TrackExceptionEvent",
		"guildId": "guild",
		"track": "abc",
		"exception": {"message": "boom", "severity": "FAULT", "cause": "io"}
	}`), &ev))

	assert.Equal(t, TrackExceptionEvent, ev.Type)
	assert.Equal(t, "guild", ev.GuildID)
	require.NotNil(t, ev.Exception)
	assert.Equal(t, "FAULT", ev.Exception.Severity)
}
