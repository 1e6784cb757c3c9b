package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/session"
	"github.com/desertthunder/songbridge/internal/shared"
)

const defaultConcurrency = 4

// SourceProvider reads playlists from the service being converted from.
type SourceProvider interface {
	Name() string
	Playlist(ctx context.Context, token, playlistID string) (*models.SourcePlaylist, error)
}

// TargetProvider writes playlists to the service being converted to.
type TargetProvider interface {
	TrackSearcher
	Name() string
	IsAuthenticated() bool
	CreatePlaylist(ctx context.Context, sess *session.Session, title, description string) (string, error)
	AddTracks(ctx context.Context, sess *session.Session, playlistID string, videoIDs []string) error
}

// ConversionRecorder persists conversion history.
type ConversionRecorder interface {
	Create(ctx context.Context, c *models.Conversion) error
	Update(ctx context.Context, c *models.Conversion) error
}

// ConverterOptions tunes a [Converter].
type ConverterOptions struct {
	Concurrency int                // Parallel searches (default 4)
	SearchRate  float64            // Searches per second across all conversions; <= 0 disables the limit
	Recorder    ConversionRecorder // Optional history sink
	Logger      *log.Logger
}

// Converter copies a source playlist into a new target playlist.
//
// Searches from every conversion share one rate limiter.
type Converter struct {
	source      SourceProvider
	target      TargetProvider
	matcher     *Matcher
	recorder    ConversionRecorder
	limiter     *rate.Limiter
	concurrency int
	logger      *log.Logger
}

func NewConverter(source SourceProvider, target TargetProvider, opts ConverterOptions) *Converter {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	limit := rate.Inf
	if opts.SearchRate > 0 {
		limit = rate.Limit(opts.SearchRate)
	}

	return &Converter{
		source:      source,
		target:      target,
		matcher:     NewMatcher(target),
		recorder:    opts.Recorder,
		limiter:     rate.NewLimiter(limit, 1),
		concurrency: opts.Concurrency,
		logger:      opts.Logger.WithPrefix("convert"),
	}
}

// Convert copies the source playlist playlistID into a new private target playlist.
//
// Tracks without a match are skipped. Matched tracks are added in source order with a single call.
// A failure after the target playlist exists leaves it in place; its id is kept in the history record.
// progress may be nil; updates are dropped when nobody is receiving.
func (c *Converter) Convert(ctx context.Context, sess *session.Session, playlistID string, progress chan<- ProgressUpdate) (result *models.ConversionResult, err error) {
	playlistID = strings.TrimSpace(playlistID)
	if playlistID == "" {
		return nil, &shared.ValidationError{Field: "playlist_id", Message: "is required"}
	}

	record := c.begin(ctx, sess, playlistID)
	defer func() { c.finish(ctx, record, result, err) }()

	if !c.target.IsAuthenticated() {
		return nil, shared.NewAuthError(c.target.Name()+" is not connected", nil)
	}

	var token string
	if sess != nil {
		token, _ = sess.AccessToken()
	}
	if token == "" {
		return nil, shared.NewAuthError(c.source.Name()+" login required", shared.ErrTokenExpired)
	}

	c.sendProgress(progress, fetchingSourceUpdate(c.source.Name()))
	playlist, err := c.source.Playlist(ctx, token, playlistID)
	if err != nil {
		return nil, err
	}
	total := len(playlist.Tracks)
	record.SourcePlaylistName = playlist.Name
	record.TracksTotal = total

	title := fmt.Sprintf("%s (from %s)", playlist.Name, c.source.Name())
	description := fmt.Sprintf("Converted from %s playlist: %s", c.source.Name(), playlist.Name)

	c.sendProgress(progress, creatingPlaylistUpdate(title, total))
	targetID, err := c.target.CreatePlaylist(ctx, sess, title, description)
	if err != nil {
		return nil, fmt.Errorf("create %s playlist: %w", c.target.Name(), err)
	}
	record.TargetPlaylistID = targetID

	matches, err := c.matchAll(ctx, sess, playlist.Tracks, progress)
	if err != nil {
		return nil, err
	}

	result = &models.ConversionResult{
		TargetPlaylistID: targetID,
		SourceName:       playlist.Name,
		Total:            total,
	}
	videoIDs := make([]string, 0, total)
	for _, m := range matches {
		switch {
		case m.Matched():
			videoIDs = append(videoIDs, m.Target.VideoID)
		case m.Err != nil:
			result.Failed++
			result.Unmatched = append(result.Unmatched, m.Source)
		default:
			result.Unmatched = append(result.Unmatched, m.Source)
		}
	}
	result.Matched = len(videoIDs)

	if len(videoIDs) > 0 {
		c.sendProgress(progress, addingTracksUpdate(len(videoIDs)))
		if err := c.target.AddTracks(ctx, sess, targetID, videoIDs); err != nil {
			return nil, fmt.Errorf("add tracks to %s: %w", targetID, err)
		}
	}

	c.logger.Info("conversion finished",
		"source", playlistID, "target", targetID, "matched", result.Matched, "total", total, "failed", result.Failed)
	c.sendProgress(progress, doneUpdate(result))
	return result, nil
}

type indexedMatch struct {
	index int
	match models.MatchResult
}

// matchAll runs the matcher over tracks with bounded concurrency and returns results in source order.
//
// Per-track search failures are logged and kept in the results. Cancellation of ctx aborts the run.
func (c *Converter) matchAll(ctx context.Context, sess *session.Session, tracks []models.SourceTrack, progress chan<- ProgressUpdate) ([]models.MatchResult, error) {
	total := len(tracks)
	matches := make([]models.MatchResult, total)
	if total == 0 {
		return matches, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	results := make(chan indexedMatch, total)

	var wg sync.WaitGroup
	for range min(c.concurrency, total) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := c.limiter.Wait(ctx); err != nil {
					return
				}
				results <- indexedMatch{index: i, match: c.matcher.Match(ctx, sess, tracks[i])}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range tracks {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	done := 0
	for r := range results {
		done++
		matches[r.index] = r.match
		if r.match.Err != nil && ctx.Err() == nil {
			c.logger.Warn("track search failed", "track", r.match.Source.String(), "err", r.match.Err)
		}
		c.sendProgress(progress, searchingTrackUpdate(done, total, r.match))
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("matching interrupted after %d/%d tracks: %w", done, total, err)
	}
	return matches, nil
}

func (c *Converter) begin(ctx context.Context, sess *session.Session, playlistID string) *models.Conversion {
	record := &models.Conversion{
		ID:               shared.GenerateID(),
		SourcePlaylistID: playlistID,
		Status:           models.ConversionRunning,
		StartedAt:        time.Now().UTC(),
	}
	if sess != nil {
		if p := sess.Profile(); p != nil {
			record.UserID = p.ID
		}
	}

	if c.recorder != nil {
		if err := c.recorder.Create(ctx, record); err != nil {
			c.logger.Error("failed to record conversion", "id", record.ID, "err", err)
		}
	}
	return record
}

// finish stores the outcome. Recording failures are logged and never change the result.
func (c *Converter) finish(ctx context.Context, record *models.Conversion, result *models.ConversionResult, convErr error) {
	finished := time.Now().UTC()
	record.FinishedAt = &finished

	if convErr != nil {
		record.Status = models.ConversionFailed
		record.ErrorMessage = convErr.Error()
		c.logger.Error("conversion failed", "source", record.SourcePlaylistID, "target", record.TargetPlaylistID, "err", convErr)
	} else {
		record.Status = models.ConversionSucceeded
		record.TracksMatched = result.Matched
		record.Unmatched = make([]string, 0, len(result.Unmatched))
		for _, t := range result.Unmatched {
			record.Unmatched = append(record.Unmatched, t.String())
		}
	}

	if c.recorder == nil {
		return
	}
	if err := c.recorder.Update(context.WithoutCancel(ctx), record); err != nil {
		c.logger.Error("failed to update conversion record", "id", record.ID, "err", err)
	}
}

// sendProgress never blocks: updates are dropped when the channel is full or nil.
func (c *Converter) sendProgress(ch chan<- ProgressUpdate, update ProgressUpdate) {
	if ch == nil {
		return
	}
	select {
	case ch <- update:
	default:
	}
}

