package player

import "errors"

// Command errors
var (
	ErrEmptyQueue    = errors.New("queue is empty")
	ErrNotPlaying    = errors.New("player isn't playing in this guild")
	ErrOutOfRange    = errors.New("position out of range")
	ErrInvalidBands  = errors.New("bands must be a non-empty list of band (0-14) and gain (-0.25 to 1.0) pairs")
	ErrMissingOption = errors.New("required option is missing")
)

// Search errors
var (
	ErrEmptyQuery = errors.New("query must not be empty")
	ErrNoMatches  = errors.New("no tracks found for the query")
	ErrLoadFailed = errors.New("failed to load the track or playlist")
)
