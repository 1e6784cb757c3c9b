package models

import (
	"errors"
	"testing"
)

func TestSourceTrackString(t *testing.T) {
	tc := []struct {
		name  string
		track SourceTrack
		want  string
	}{
		{name: "no artists", track: SourceTrack{Title: "Intro"}, want: "Intro"},
		{name: "one artist", track: SourceTrack{Title: "Song", Artists: []string{"A"}}, want: "Song - A"},
		{name: "many artists", track: SourceTrack{Title: "Song", Artists: []string{"A", "B"}}, want: "Song - A, B"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.track.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatchResultMatched(t *testing.T) {
	if (MatchResult{}).Matched() {
		t.Error("empty result should not match")
	}
	if !(MatchResult{Target: &TargetTrack{VideoID: "v1"}}).Matched() {
		t.Error("result with video id should match")
	}
	if (MatchResult{Target: &TargetTrack{}}).Matched() {
		t.Error("result without video id should not match")
	}
	if (MatchResult{Target: &TargetTrack{VideoID: "v1"}, Err: errors.New("x")}).Matched() {
		t.Error("errored result should not match")
	}
}

func TestConversionValidate(t *testing.T) {
	valid := Conversion{ID: "c1", SourcePlaylistID: "p1", Status: ConversionRunning}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tc := []struct {
		name   string
		mutate func(*Conversion)
	}{
		{name: "missing id", mutate: func(c *Conversion) { c.ID = "" }},
		{name: "missing source", mutate: func(c *Conversion) { c.SourcePlaylistID = "" }},
		{name: "bad status", mutate: func(c *Conversion) { c.Status = "paused" }},
		{name: "matched exceeds total", mutate: func(c *Conversion) { c.TracksMatched = 3; c.TracksTotal = 2 }},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
