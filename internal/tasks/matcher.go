package tasks

import (
	"context"
	"strings"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/session"
)

// TrackSearcher finds the best single candidate for a free-text query.
// A nil track with a nil error means the search ran and found nothing.
type TrackSearcher interface {
	SearchTrack(ctx context.Context, sess *session.Session, query string) (*models.TargetTrack, error)
}

// Matcher resolves source tracks to target tracks, one search per track.
type Matcher struct {
	searcher TrackSearcher
}

func NewMatcher(searcher TrackSearcher) *Matcher {
	return &Matcher{searcher: searcher}
}

// BuildQuery joins the title and the artists, in order, with single spaces.
func BuildQuery(track models.SourceTrack) string {
	parts := make([]string, 0, len(track.Artists)+1)
	for _, s := range append([]string{track.Title}, track.Artists...) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Match searches for track. Search errors are returned in the result, never raised.
// A hit without a video id is treated as no match.
func (m *Matcher) Match(ctx context.Context, sess *session.Session, track models.SourceTrack) models.MatchResult {
	res := models.MatchResult{Source: track, Query: BuildQuery(track)}
	if res.Query == "" {
		return res
	}

	hit, err := m.searcher.SearchTrack(ctx, sess, res.Query)
	if err != nil {
		res.Err = err
		return res
	}
	if hit != nil && hit.VideoID != "" {
		res.Target = hit
	}
	return res
}
