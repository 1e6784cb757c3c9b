package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/session"
	"github.com/desertthunder/songbridge/internal/shared"
)

type fakeSource struct {
	playlists map[string]*models.SourcePlaylist
	err       error
	calls     int
	lastToken string
}

func (f *fakeSource) Name() string { return "Spotify" }

func (f *fakeSource) Playlist(ctx context.Context, token, playlistID string) (*models.SourcePlaylist, error) {
	f.calls++
	f.lastToken = token
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.playlists[playlistID]; ok {
		return p, nil
	}
	return nil, &shared.UpstreamError{Provider: "spotify", Status: 404, Body: "not found"}
}

type fakeTarget struct {
	mu            sync.Mutex
	authenticated bool
	hits          map[string]*models.TargetTrack
	searchErrs    map[string]error
	createErr     error
	addErr        error
	delay         time.Duration

	created  []string
	queries  []string
	addCalls [][]string
}

func (f *fakeTarget) Name() string          { return "YouTube Music" }
func (f *fakeTarget) IsAuthenticated() bool { return f.authenticated }

func (f *fakeTarget) CreatePlaylist(ctx context.Context, sess *session.Session, title, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, title+"|"+description)
	return "PL_new", nil
}

func (f *fakeTarget) SearchTrack(ctx context.Context, sess *session.Session, query string) (*models.TargetTrack, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if err := f.searchErrs[query]; err != nil {
		return nil, err
	}
	return f.hits[query], nil
}

func (f *fakeTarget) AddTracks(ctx context.Context, sess *session.Session, playlistID string, videoIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls = append(f.addCalls, slices.Clone(videoIDs))
	return f.addErr
}

type fakeRecorder struct {
	mu       sync.Mutex
	records  map[string]models.Conversion
	creates  int
	updates  int
	failures error
}

func (f *fakeRecorder) Create(ctx context.Context, c *models.Conversion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.records == nil {
		f.records = make(map[string]models.Conversion)
	}
	f.records[c.ID] = *c
	return f.failures
}

func (f *fakeRecorder) Update(ctx context.Context, c *models.Conversion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.records[c.ID] = *c
	return f.failures
}

func (f *fakeRecorder) only(t *testing.T) models.Conversion {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(f.records))
	}
	for _, c := range f.records {
		return c
	}
	return models.Conversion{}
}

func loggedIn() *session.Session {
	sess := session.New()
	sess.SetAccessToken("spotify-token", time.Now().Add(time.Hour))
	sess.SetProfile(&models.Profile{ID: "user-1"})
	sess.SetYouTubeAuthenticated(true)
	return sess
}

func mixtape(n int) *models.SourcePlaylist {
	p := &models.SourcePlaylist{ID: "pl1", Name: "Mixtape"}
	for i := range n {
		p.Tracks = append(p.Tracks, models.SourceTrack{
			Title:   fmt.Sprintf("Song %d", i),
			Artists: []string{fmt.Sprintf("Artist %d", i)},
		})
	}
	return p
}

func hitsFor(p *models.SourcePlaylist, skip ...int) map[string]*models.TargetTrack {
	hits := make(map[string]*models.TargetTrack)
	for i, track := range p.Tracks {
		if slices.Contains(skip, i) {
			continue
		}
		hits[BuildQuery(track)] = &models.TargetTrack{VideoID: fmt.Sprintf("vid%d", i), Title: track.Title}
	}
	return hits
}

func newTestConverter(src SourceProvider, dst TargetProvider, rec ConversionRecorder, concurrency int) *Converter {
	return NewConverter(src, dst, ConverterOptions{
		Concurrency: concurrency,
		Recorder:    rec,
		Logger:      shared.NewLogger(io.Discard),
	})
}

func TestConverter_Convert(t *testing.T) {
	t.Run("converts and adds matched tracks once in source order", func(t *testing.T) {
		playlist := mixtape(12)
		src := &fakeSource{playlists: map[string]*models.SourcePlaylist{"pl1": playlist}}
		dst := &fakeTarget{authenticated: true, hits: hitsFor(playlist, 3, 7), delay: time.Millisecond}
		rec := &fakeRecorder{}

		result, err := newTestConverter(src, dst, rec, 4).Convert(context.Background(), loggedIn(), "pl1", nil)
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}

		if result.TargetPlaylistID != "PL_new" {
			t.Errorf("expected target PL_new, got %q", result.TargetPlaylistID)
		}
		if result.Matched != 10 || result.Total != 12 {
			t.Errorf("expected 10/12, got %d/%d", result.Matched, result.Total)
		}
		if len(result.Unmatched) != 2 || result.Unmatched[0].Title != "Song 3" || result.Unmatched[1].Title != "Song 7" {
			t.Errorf("unexpected unmatched tracks: %+v", result.Unmatched)
		}

		if len(dst.addCalls) != 1 {
			t.Fatalf("expected exactly one add call, got %d", len(dst.addCalls))
		}
		want := []string{"vid0", "vid1", "vid2", "vid4", "vid5", "vid6", "vid8", "vid9", "vid10", "vid11"}
		if !slices.Equal(dst.addCalls[0], want) {
			t.Errorf("add order = %v, want %v", dst.addCalls[0], want)
		}

		if src.lastToken != "spotify-token" {
			t.Errorf("expected session token to be used, got %q", src.lastToken)
		}
		if dst.created[0] != "Mixtape (from Spotify)|Converted from Spotify playlist: Mixtape" {
			t.Errorf("unexpected playlist title/description: %q", dst.created[0])
		}

		record := rec.only(t)
		if record.Status != models.ConversionSucceeded || record.TracksMatched != 10 || record.TracksTotal != 12 {
			t.Errorf("unexpected record: %+v", record)
		}
		if record.UserID != "user-1" || record.SourcePlaylistName != "Mixtape" {
			t.Errorf("unexpected record identity: %+v", record)
		}
		if len(record.Unmatched) != 2 || record.Unmatched[0] != "Song 3 - Artist 3" {
			t.Errorf("unexpected record misses: %v", record.Unmatched)
		}
		if record.FinishedAt == nil {
			t.Error("expected finished timestamp")
		}
	})

	t.Run("no matches still succeeds without add call", func(t *testing.T) {
		playlist := mixtape(3)
		src := &fakeSource{playlists: map[string]*models.SourcePlaylist{"pl1": playlist}}
		dst := &fakeTarget{authenticated: true}

		result, err := newTestConverter(src, dst, nil, 2).Convert(context.Background(), loggedIn(), "pl1", nil)
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if result.Matched != 0 || result.Total != 3 {
			t.Errorf("expected 0/3, got %d/%d", result.Matched, result.Total)
		}
		if len(dst.addCalls) != 0 {
			t.Errorf("expected no add call, got %d", len(dst.addCalls))
		}
		if len(dst.created) != 1 {
			t.Errorf("expected playlist to be created, got %d", len(dst.created))
		}
	})

	t.Run("empty playlist", func(t *testing.T) {
		src := &fakeSource{playlists: map[string]*models.SourcePlaylist{"pl1": mixtape(0)}}
		dst := &fakeTarget{authenticated: true}

		result, err := newTestConverter(src, dst, nil, 2).Convert(context.Background(), loggedIn(), "pl1", nil)
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if result.Total != 0 || len(dst.addCalls) != 0 || len(dst.queries) != 0 {
			t.Errorf("unexpected calls: result=%+v adds=%d queries=%d", result, len(dst.addCalls), len(dst.queries))
		}
	})

	t.Run("search errors are skipped", func(t *testing.T) {
		playlist := mixtape(4)
		src := &fakeSource{playlists: map[string]*models.SourcePlaylist{"pl1": playlist}}
		dst := &fakeTarget{
			authenticated: true,
			hits:          hitsFor(playlist),
			searchErrs:    map[string]error{BuildQuery(playlist.Tracks[1]): errors.New("boom")},
		}

		result, err := newTestConverter(src, dst, nil, 1).Convert(context.Background(), loggedIn(), "pl1", nil)
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if result.Matched != 3 || result.Failed != 1 {
			t.Errorf("expected 3 matched and 1 failed, got %d and %d", result.Matched, result.Failed)
		}
		if !slices.Equal(dst.addCalls[0], []string{"vid0", "vid2", "vid3"}) {
			t.Errorf("unexpected add batch %v", dst.addCalls[0])
		}
	})

	t.Run("target not connected fails before source is called", func(t *testing.T) {
		src := &fakeSource{playlists: map[string]*models.SourcePlaylist{"pl1": mixtape(2)}}
		dst := &fakeTarget{authenticated: false}
		rec := &fakeRecorder{}

		_, err := newTestConverter(src, dst, rec, 2).Convert(context.Background(), loggedIn(), "pl1", nil)

		var authErr *shared.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthError, got %v", err)
		}
		if src.calls != 0 {
			t.Errorf("expected no source calls, got %d", src.calls)
		}
		if len(dst.created) != 0 {
			t.Error("expected no playlist to be created")
		}
		if record := rec.only(t); record.Status != models.ConversionFailed {
			t.Errorf("expected failed record, got %s", record.Status)
		}
	})

	t.Run("missing source token", func(t *testing.T) {
		tests := []struct {
			name string
			sess *session.Session
		}{
			{name: "nil session", sess: nil},
			{name: "no token", sess: session.New()},
			{name: "expired token", sess: func() *session.Session {
				s := session.New()
				s.SetAccessToken("old", time.Now().Add(-time.Minute))
				return s
			}()},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				src := &fakeSource{playlists: map[string]*models.SourcePlaylist{"pl1": mixtape(2)}}
				dst := &fakeTarget{authenticated: true}

				_, err := newTestConverter(src, dst, nil, 2).Convert(context.Background(), tt.sess, "pl1", nil)
				if !errors.Is(err, shared.ErrNotAuthenticated) {
					t.Fatalf("expected not authenticated, got %v", err)
				}
				if src.calls != 0 {
					t.Errorf("expected no source calls, got %d", src.calls)
				}
			})
		}
	})

	t.Run("empty playlist id is rejected", func(t *testing.T) {
		src := &fakeSource{}
		dst := &fakeTarget{authenticated: true}
		rec := &fakeRecorder{}

		_, err := newTestConverter(src, dst, rec, 2).Convert(context.Background(), loggedIn(), "  ", nil)

		var validationErr *shared.ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if src.calls != 0 || rec.creates != 0 {
			t.Errorf("expected no calls, got source=%d recorder=%d", src.calls, rec.creates)
		}
	})

	t.Run("source failure is fatal", func(t *testing.T) {
		src := &fakeSource{err: &shared.UpstreamError{Provider: "spotify", Status: 500, Body: "oops"}}
		dst := &fakeTarget{authenticated: true}

		_, err := newTestConverter(src, dst, nil, 2).Convert(context.Background(), loggedIn(), "pl1", nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected upstream error, got %v", err)
		}
		if len(dst.created) != 0 {
			t.Error("expected no playlist to be created")
		}
	})

	t.Run("create failure is fatal", func(t *testing.T) {
		src := &fakeSource{playlists: map[string]*models.SourcePlaylist{"pl1": mixtape(2)}}
		dst := &fakeTarget{authenticated: true, createErr: shared.NewAuthError("expired", nil)}

		_, err := newTestConverter(src, dst, nil, 2).Convert(context.Background(), loggedIn(), "pl1", nil)
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Fatalf("expected auth error, got %v", err)
		}
		if len(dst.queries) != 0 {
			t.Errorf("expected no searches, got %d", len(dst.queries))
		}
	})

	t.Run("add failure is fatal and keeps target id in history", func(t *testing.T) {
		playlist := mixtape(2)
		src := &fakeSource{playlists: map[string]*models.SourcePlaylist{"pl1": playlist}}
		dst := &fakeTarget{authenticated: true, hits: hitsFor(playlist), addErr: errors.New("quota")}
		rec := &fakeRecorder{}

		result, err := newTestConverter(src, dst, rec, 2).Convert(context.Background(), loggedIn(), "pl1", nil)
		if err == nil {
			t.Fatal("expected error")
		}
		if result != nil {
			t.Errorf("expected nil result, got %+v", result)
		}

		record := rec.only(t)
		if record.Status != models.ConversionFailed || record.TargetPlaylistID != "PL_new" {
			t.Errorf("unexpected record: %+v", record)
		}
		if record.ErrorMessage == "" {
			t.Error("expected error message to be recorded")
		}
	})

	t.Run("recorder failures do not fail the conversion", func(t *testing.T) {
		playlist := mixtape(1)
		src := &fakeSource{playlists: map[string]*models.SourcePlaylist{"pl1": playlist}}
		dst := &fakeTarget{authenticated: true, hits: hitsFor(playlist)}
		rec := &fakeRecorder{failures: errors.New("disk full")}

		if _, err := newTestConverter(src, dst, rec, 1).Convert(context.Background(), loggedIn(), "pl1", nil); err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
	})

	t.Run("cancellation aborts before adding", func(t *testing.T) {
		playlist := mixtape(20)
		src := &fakeSource{playlists: map[string]*models.SourcePlaylist{"pl1": playlist}}
		dst := &fakeTarget{authenticated: true, hits: hitsFor(playlist), delay: 20 * time.Millisecond}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := newTestConverter(src, dst, nil, 2).Convert(ctx, loggedIn(), "pl1", nil)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
		if len(dst.addCalls) != 0 {
			t.Errorf("expected no add call, got %d", len(dst.addCalls))
		}
	})
}

func TestConverter_Progress(t *testing.T) {
	t.Run("reports phases in order", func(t *testing.T) {
		playlist := mixtape(3)
		src := &fakeSource{playlists: map[string]*models.SourcePlaylist{"pl1": playlist}}
		dst := &fakeTarget{authenticated: true, hits: hitsFor(playlist)}

		progress := make(chan ProgressUpdate, 32)
		if _, err := newTestConverter(src, dst, nil, 1).Convert(context.Background(), loggedIn(), "pl1", progress); err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		close(progress)

		var phases []Phase
		var searches int
		for u := range progress {
			if u.Phase == SearchTracks {
				searches++
				if u.Total != 3 {
					t.Errorf("expected search total 3, got %d", u.Total)
				}
				continue
			}
			phases = append(phases, u.Phase)
		}

		if searches != 3 {
			t.Errorf("expected 3 search updates, got %d", searches)
		}
		want := []Phase{FetchSource, CreatePlaylist, AddTracks, Done}
		if !slices.Equal(phases, want) {
			t.Errorf("phases = %v, want %v", phases, want)
		}
	})

	t.Run("full channel never blocks", func(t *testing.T) {
		playlist := mixtape(10)
		src := &fakeSource{playlists: map[string]*models.SourcePlaylist{"pl1": playlist}}
		dst := &fakeTarget{authenticated: true, hits: hitsFor(playlist)}

		progress := make(chan ProgressUpdate)
		done := make(chan error, 1)
		go func() {
			_, err := newTestConverter(src, dst, nil, 3).Convert(context.Background(), loggedIn(), "pl1", progress)
			done <- err
		}()

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Convert failed: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Convert blocked on an unread progress channel")
		}
	})
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{FetchSource, "fetch_source"},
		{CreatePlaylist, "create_playlist"},
		{SearchTracks, "search_tracks"},
		{AddTracks, "add_tracks"},
		{Done, "done"},
		{Phase(99), ""},
	}

	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}
