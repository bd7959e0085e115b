package player

import (
	"context"
	"fmt"
	"strings"

	"github.com/samcm/lavafries/internal/protocol"
)

// Source selects the search provider of a non-URL query.
type Source string

const (
	SourceYouTube    Source = "yt"
	SourceSoundCloud Source = "sc"
)

// SearchOptions controls Search. With Add set, a directly loaded track is
// appended to the queue.
type SearchOptions struct {
	Source    Source
	Requester string
	Add       bool
}

// Identifier turns a query into a /loadtracks identifier. URLs pass through.
func Identifier(query string, source Source) string {
	if strings.HasPrefix(query, "http://") || strings.HasPrefix(query, "https://") {
		return query
	}

	if source == "" {
		source = SourceYouTube
	}

	return fmt.Sprintf("%ssearch:%s", source, query)
}

// Search resolves query on the player's node. NoMatches and LoadFailure
// results are returned together with ErrNoMatches and ErrLoadFailed.
func (p *Player) Search(ctx context.Context, query string, opts SearchOptions) (protocol.LoadResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	result, err := p.node.LoadTracks(ctx, Identifier(query, opts.Source), opts.Requester)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	switch r := result.(type) {
	case protocol.NoMatches:
		return r, ErrNoMatches
	case protocol.LoadFailure:
		if r.Exception != nil {
			return r, fmt.Errorf("%w: %s", ErrLoadFailed, r.Exception.Message)
		}

		return r, ErrLoadFailed
	case protocol.SingleTrack:
		if opts.Add {
			p.queue.Add(r.Track)
		}
	}

	return result, nil
}
