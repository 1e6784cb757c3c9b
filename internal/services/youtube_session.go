package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/session"
	"github.com/desertthunder/songbridge/internal/shared"
)

// TargetAPI is the subset of [YouTubeClient] the session handle drives.
type TargetAPI interface {
	Home(ctx context.Context) error
	Search(ctx context.Context, query string) (*models.TargetTrack, error)
	CreatePlaylist(ctx context.Context, title, description string) (string, error)
	AddPlaylistItems(ctx context.Context, playlistID string, videoIDs []string) error
}

// ClientFactory builds a [TargetAPI] from a normalized header set.
type ClientFactory func(headers shared.Headers) (TargetAPI, error)

// YouTubeClientFactory returns a factory producing [YouTubeClient] values with opts.
func YouTubeClientFactory(opts ClientOptions) ClientFactory {
	return func(headers shared.Headers) (TargetAPI, error) {
		return NewYouTubeClient(headers, opts)
	}
}

// YouTubeStatus describes the process-wide YouTube Music connection.
type YouTubeStatus struct {
	Authenticated  bool      `json:"authenticated"`
	ArtifactExists bool      `json:"artifact_exists"`
	Location       string    `json:"location"`
	LastVerified   time.Time `json:"last_verified,omitzero"`
}

// YouTubeSession is the single process-wide YouTube Music connection.
//
// The persisted artifact, the client handle and the authenticated flag change together under mu.
// A failed verification at any point clears all three. The flag and verifiedAt are atomics so
// status reads never wait behind a running probe.
type YouTubeSession struct {
	mu            sync.Mutex
	store         ArtifactStore
	newClient     ClientFactory
	livenessTTL   time.Duration
	logger        *log.Logger
	client        TargetAPI
	verifiedAt    atomic.Int64
	authenticated atomic.Bool
}

// NewYouTubeSession creates the connection handle. A livenessTTL of zero probes before every operation.
func NewYouTubeSession(store ArtifactStore, factory ClientFactory, livenessTTL time.Duration, logger *log.Logger) *YouTubeSession {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &YouTubeSession{
		store:       store,
		newClient:   factory,
		livenessTTL: livenessTTL,
		logger:      logger.WithPrefix("youtube-session"),
	}
}

func (y *YouTubeSession) Name() string { return "YouTube Music" }

// IsAuthenticated reports whether the handle is live and its artifact still exists.
//
// It does not take the lock and never changes state.
func (y *YouTubeSession) IsAuthenticated() bool {
	return y.authenticated.Load() && y.store.Exists()
}

// Authenticate imports a pasted header block, persists it and verifies it against YouTube Music.
//
// On any failure, context cancellation included, nothing is left behind: the artifact is removed
// and the handle and flags are cleared.
func (y *YouTubeSession) Authenticate(ctx context.Context, sess *session.Session, raw string) error {
	y.mu.Lock()
	defer y.mu.Unlock()

	parsed, err := shared.ParseRawHeaders(raw)
	if err != nil {
		y.resetLocked(sess, "unreadable headers")
		return shared.NewAuthError("unreadable headers", err)
	}

	headers, err := NormalizeHeaders(parsed)
	if err != nil {
		y.resetLocked(sess, "header normalization failed")
		return err
	}

	if err := y.store.Save(headers); err != nil {
		y.resetLocked(sess, "artifact save failed")
		return shared.NewAuthError("verification failed", err)
	}

	client, err := y.newClient(headers)
	if err != nil {
		y.resetLocked(sess, "client construction failed")
		return shared.NewAuthError("verification failed", err)
	}

	if err := client.Home(ctx); err != nil {
		y.resetLocked(sess, "verification probe failed")
		return shared.NewAuthError("verification failed", err)
	}

	y.client = client
	y.setVerified(clock())
	y.authenticated.Store(true)
	if sess != nil {
		sess.SetYouTubeAuthenticated(true)
	}

	y.logger.Info("youtube music connected", "location", y.store.Location(), "headers", len(headers))
	return nil
}

// EnsureAuthenticated returns a verified client, restoring it from the artifact when needed.
//
// A non-nil sess must have completed [YouTubeSession.Authenticate]; otherwise an [shared.AuthError] is
// returned and process state is left alone. A nil sess is a process-level caller such as the CLI.
func (y *YouTubeSession) EnsureAuthenticated(ctx context.Context, sess *session.Session) (TargetAPI, error) {
	if sess != nil && !sess.YouTubeAuthenticated() {
		return nil, shared.NewAuthError("youtube music is not connected in this session", nil)
	}

	y.mu.Lock()
	defer y.mu.Unlock()

	exists := y.store.Exists()
	if y.authenticated.Load() && !exists {
		y.resetLocked(sess, "artifact disappeared")
		return nil, shared.NewAuthError("youtube music credentials were removed", shared.ErrMissingCredentials)
	}

	rebuilt := false
	if !y.authenticated.Load() || y.client == nil {
		if !exists {
			y.resetLocked(sess, "no artifact")
			return nil, shared.NewAuthError("youtube music is not connected", shared.ErrMissingCredentials)
		}

		headers, err := y.store.Load()
		if err != nil {
			y.resetLocked(sess, "artifact unreadable")
			return nil, shared.NewAuthError("stored youtube music credentials are unreadable", err)
		}
		client, err := y.newClient(headers)
		if err != nil {
			y.resetLocked(sess, "client construction failed")
			return nil, shared.NewAuthError("stored youtube music credentials are invalid", err)
		}
		y.client = client
		y.setVerified(time.Time{})
		rebuilt = true
	}

	if last := y.lastVerified(); y.livenessTTL <= 0 || last.IsZero() || clock().Sub(last) > y.livenessTTL {
		if err := y.client.Home(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				// An unverified rebuilt handle must not outlive the call.
				if rebuilt {
					y.client = nil
				}
				return nil, ctxErr
			}
			y.resetLocked(sess, "liveness probe failed")
			return nil, shared.NewAuthError("youtube music session expired", err)
		}
		y.setVerified(clock())
	}

	y.authenticated.Store(true)
	return y.client, nil
}

// Restore reconnects from a previously saved artifact, for use at process start.
func (y *YouTubeSession) Restore(ctx context.Context) error {
	_, err := y.EnsureAuthenticated(ctx, nil)
	return err
}

// Verify probes the stored artifact without the rollback path: a failed probe leaves the artifact
// and the current state untouched. On success the verified handle is installed.
//
// The probe runs outside mu.
func (y *YouTubeSession) Verify(ctx context.Context) error {
	if !y.store.Exists() {
		return shared.NewAuthError("youtube music is not connected", shared.ErrMissingCredentials)
	}
	headers, err := y.store.Load()
	if err != nil {
		return shared.NewAuthError("stored youtube music credentials are unreadable", err)
	}
	client, err := y.newClient(headers)
	if err != nil {
		return shared.NewAuthError("stored youtube music credentials are invalid", err)
	}
	if err := client.Home(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return shared.NewAuthError("verification failed", err)
	}

	y.mu.Lock()
	defer y.mu.Unlock()
	if !y.store.Exists() {
		return shared.NewAuthError("youtube music credentials were removed", shared.ErrMissingCredentials)
	}
	y.client = client
	y.setVerified(clock())
	y.authenticated.Store(true)
	return nil
}

// CreatePlaylist creates a private playlist.
func (y *YouTubeSession) CreatePlaylist(ctx context.Context, sess *session.Session, title, description string) (string, error) {
	client, err := y.EnsureAuthenticated(ctx, sess)
	if err != nil {
		return "", err
	}
	return client.CreatePlaylist(ctx, title, description)
}

// SearchTrack returns the best candidate for query. A nil track with a nil error means no match.
func (y *YouTubeSession) SearchTrack(ctx context.Context, sess *session.Session, query string) (*models.TargetTrack, error) {
	client, err := y.EnsureAuthenticated(ctx, sess)
	if err != nil {
		return nil, err
	}
	return client.Search(ctx, query)
}

// AddTracks appends videoIDs to the playlist in one call.
func (y *YouTubeSession) AddTracks(ctx context.Context, sess *session.Session, playlistID string, videoIDs []string) error {
	client, err := y.EnsureAuthenticated(ctx, sess)
	if err != nil {
		return err
	}
	return client.AddPlaylistItems(ctx, playlistID, videoIDs)
}

// Logout forgets the connection and removes the stored artifact.
func (y *YouTubeSession) Logout(sess *session.Session) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.resetLocked(sess, "logout")
}

// Invalidate drops the in-memory handle after the artifact changed outside the process.
//
// Watcher events arrive late; when the artifact exists again by the time the lock is taken, a newer
// import already owns the state and nothing is dropped.
func (y *YouTubeSession) Invalidate(reason string) {
	y.mu.Lock()
	defer y.mu.Unlock()

	if !y.authenticated.Load() && y.client == nil {
		return
	}
	if y.store.Exists() {
		y.logger.Debug("ignoring stale artifact event", "reason", reason)
		return
	}
	y.client = nil
	y.setVerified(time.Time{})
	y.authenticated.Store(false)
	y.logger.Warn("youtube music connection invalidated", "reason", reason)
}

// Status reports the connection without taking mu.
func (y *YouTubeSession) Status() YouTubeStatus {
	exists := y.store.Exists()
	return YouTubeStatus{
		Authenticated:  y.authenticated.Load() && exists,
		ArtifactExists: exists,
		Location:       y.store.Location(),
		LastVerified:   y.lastVerified(),
	}
}

func (y *YouTubeSession) lastVerified() time.Time {
	n := y.verifiedAt.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (y *YouTubeSession) setVerified(t time.Time) {
	if t.IsZero() {
		y.verifiedAt.Store(0)
		return
	}
	y.verifiedAt.Store(t.UnixNano())
}

// resetLocked is the single rollback path. The caller holds mu.
func (y *YouTubeSession) resetLocked(sess *session.Session, reason string) error {
	y.client = nil
	y.setVerified(time.Time{})
	y.authenticated.Store(false)
	if sess != nil {
		sess.SetYouTubeAuthenticated(false)
	}

	err := y.store.Remove()
	if err != nil {
		y.logger.Error("failed to remove youtube music artifact", "reason", reason, "err", err)
	} else {
		y.logger.Info("youtube music state cleared", "reason", reason)
	}
	return err
}
