package models

import (
	"fmt"
	"strings"
	"time"
)

// Profile is the subset of the Spotify user profile kept in a session.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Country     string `json:"country,omitempty"`
	Product     string `json:"product,omitempty"`
}

// PlaylistSummary is one entry of the signed-in user's playlist listing.
type PlaylistSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TrackCount  int    `json:"track_count"`
	Owner       string `json:"owner,omitempty"`
	Public      bool   `json:"public"`
}

// SourceTrack is a track read from the source provider.
type SourceTrack struct {
	Title   string   `json:"title"`
	Artists []string `json:"artists"`
}

// String renders the track as "Title - Artist, Artist".
func (t SourceTrack) String() string {
	if len(t.Artists) == 0 {
		return t.Title
	}
	return fmt.Sprintf("%s - %s", t.Title, strings.Join(t.Artists, ", "))
}

// SourcePlaylist is a fully paged playlist read from the source provider.
type SourcePlaylist struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Tracks      []SourceTrack `json:"tracks"`
}

// TargetTrack is a search hit on the target provider.
type TargetTrack struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	Artist  string `json:"artist,omitempty"`
}

// MatchResult pairs a source track with its search outcome.
//
// A nil Target with a nil Err means the search ran and found nothing.
type MatchResult struct {
	Source SourceTrack  `json:"source"`
	Query  string       `json:"query"`
	Target *TargetTrack `json:"target,omitempty"`
	Err    error        `json:"-"`
}

// Matched reports whether the search produced a usable video.
func (m MatchResult) Matched() bool {
	return m.Err == nil && m.Target != nil && m.Target.VideoID != ""
}

// ConversionResult summarizes a finished conversion.
type ConversionResult struct {
	TargetPlaylistID string        `json:"youtube_playlist_id"`
	SourceName       string        `json:"source_name"`
	Total            int           `json:"total"`
	Matched          int           `json:"matched"`
	Unmatched        []SourceTrack `json:"unmatched,omitempty"`
	Failed           int           `json:"failed"`
}

// ConversionStatus is the lifecycle state of a recorded conversion.
type ConversionStatus string

const (
	ConversionRunning   ConversionStatus = "running"
	ConversionSucceeded ConversionStatus = "succeeded"
	ConversionFailed    ConversionStatus = "failed"
)

// Conversion is a persisted record of one conversion attempt.
type Conversion struct {
	ID                 string           `json:"id"`
	Sequence           int              `json:"-"`
	UserID             string           `json:"user_id"`
	SourcePlaylistID   string           `json:"source_playlist_id"`
	SourcePlaylistName string           `json:"source_playlist_name"`
	TargetPlaylistID   string           `json:"target_playlist_id,omitempty"`
	Status             ConversionStatus `json:"status"`
	TracksTotal        int              `json:"tracks_total"`
	TracksMatched      int              `json:"tracks_matched"`
	Unmatched          []string         `json:"unmatched,omitempty"`
	ErrorMessage       string           `json:"error_message,omitempty"`
	StartedAt          time.Time        `json:"started_at"`
	FinishedAt         *time.Time       `json:"finished_at,omitempty"`
}

// Validate checks the fields required before a conversion can be stored.
func (c *Conversion) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("conversion id is required")
	}
	if c.SourcePlaylistID == "" {
		return fmt.Errorf("source playlist id is required")
	}
	switch c.Status {
	case ConversionRunning, ConversionSucceeded, ConversionFailed:
	default:
		return fmt.Errorf("unknown conversion status %q", c.Status)
	}
	if c.TracksMatched > c.TracksTotal {
		return fmt.Errorf("matched count %d exceeds total %d", c.TracksMatched, c.TracksTotal)
	}
	return nil
}
