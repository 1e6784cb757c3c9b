package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/session"
	"github.com/desertthunder/songbridge/internal/shared"
)

const validRaw = `cookie: SAPISID=abc; __Secure-3PAPISID=def
x-goog-authuser: 0
user-agent: Mozilla/5.0`

type fakeTarget struct {
	homeErr   error
	homeCalls atomic.Int32

	// When gate is set, Home signals entered and blocks until gate is closed.
	gate    chan struct{}
	entered chan struct{}

	mu      sync.Mutex
	added   [][]string
	created []string
}

func (f *fakeTarget) Home(ctx context.Context) error {
	f.homeCalls.Add(1)
	if f.gate != nil {
		f.entered <- struct{}{}
		select {
		case <-f.gate:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.homeErr
}

func (f *fakeTarget) Search(_ context.Context, query string) (*models.TargetTrack, error) {
	return &models.TargetTrack{VideoID: "v-" + query}, nil
}

func (f *fakeTarget) CreatePlaylist(_ context.Context, title, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, title)
	return "PL1", nil
}

func (f *fakeTarget) AddPlaylistItems(_ context.Context, _ string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, ids)
	return nil
}

type sessionFixture struct {
	target   *fakeTarget
	store    *FileArtifactStore
	yt       *YouTubeSession
	factory  ClientFactory
	factoryN atomic.Int32
}

func newSessionFixture(t *testing.T, ttl time.Duration) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		target: &fakeTarget{},
		store:  NewFileArtifactStore(filepath.Join(t.TempDir(), "browser.json")),
	}
	factory := func(headers shared.Headers) (TargetAPI, error) {
		f.factoryN.Add(1)
		if headers.Get("cookie") == "" {
			return nil, errors.New("no cookie")
		}
		return f.target, nil
	}
	f.factory = factory
	f.yt = NewYouTubeSession(f.store, factory, ttl, nil)
	return f
}

func TestYouTubeSessionAuthenticate(t *testing.T) {
	t.Run("success persists and flags", func(t *testing.T) {
		f := newSessionFixture(t, time.Minute)
		sess := session.New()

		require.NoError(t, f.yt.Authenticate(context.Background(), sess, validRaw))

		assert.True(t, f.yt.IsAuthenticated())
		assert.True(t, sess.YouTubeAuthenticated())
		assert.True(t, f.store.Exists())

		headers, err := f.store.Load()
		require.NoError(t, err)
		assert.Equal(t, "0", headers.Get("x-goog-authuser"))
		assert.Equal(t, "https://music.youtube.com", headers.Get("x-origin"))
	})

	t.Run("missing cookie leaves nothing behind", func(t *testing.T) {
		f := newSessionFixture(t, time.Minute)
		sess := session.New()

		err := f.yt.Authenticate(context.Background(), sess, "x-goog-authuser: 0\nuser-agent: test")

		var authErr *shared.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "missing required header", authErr.Reason)
		assert.False(t, f.store.Exists())
		assert.False(t, f.yt.IsAuthenticated())
		assert.False(t, sess.YouTubeAuthenticated())
		assert.Zero(t, f.factoryN.Load(), "no client should be built")
	})

	t.Run("failed probe rolls back", func(t *testing.T) {
		f := newSessionFixture(t, time.Minute)
		f.target.homeErr = &shared.UpstreamError{Provider: "youtube", Status: 401}
		sess := session.New()

		err := f.yt.Authenticate(context.Background(), sess, validRaw)

		var authErr *shared.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "verification failed", authErr.Reason)
		assert.False(t, f.store.Exists())
		assert.False(t, f.yt.IsAuthenticated())
		assert.False(t, sess.YouTubeAuthenticated())
	})

	t.Run("cancellation rolls back", func(t *testing.T) {
		f := newSessionFixture(t, time.Minute)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := f.yt.Authenticate(ctx, nil, validRaw)
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
		assert.False(t, f.store.Exists())
	})

	t.Run("failure replaces an earlier connection", func(t *testing.T) {
		f := newSessionFixture(t, time.Minute)
		require.NoError(t, f.yt.Authenticate(context.Background(), nil, validRaw))

		err := f.yt.Authenticate(context.Background(), nil, "garbage without headers")
		require.Error(t, err)
		assert.False(t, f.yt.IsAuthenticated())
		assert.False(t, f.store.Exists())
	})
}

func TestYouTubeSessionIsAuthenticated(t *testing.T) {
	f := newSessionFixture(t, time.Minute)
	assert.False(t, f.yt.IsAuthenticated())

	require.NoError(t, f.yt.Authenticate(context.Background(), nil, validRaw))
	probes := f.target.homeCalls.Load()

	for range 5 {
		assert.True(t, f.yt.IsAuthenticated())
	}
	assert.Equal(t, probes, f.target.homeCalls.Load(), "IsAuthenticated must not probe")

	require.NoError(t, f.store.Remove())
	assert.False(t, f.yt.IsAuthenticated(), "missing artifact means not authenticated")
	assert.False(t, f.yt.IsAuthenticated())
}

func TestYouTubeSessionEnsureAuthenticated(t *testing.T) {
	t.Run("session without flag is rejected without touching process state", func(t *testing.T) {
		f := newSessionFixture(t, time.Minute)
		require.NoError(t, f.yt.Authenticate(context.Background(), nil, validRaw))

		_, err := f.yt.EnsureAuthenticated(context.Background(), session.New())
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
		assert.True(t, f.yt.IsAuthenticated())
		assert.True(t, f.store.Exists())
	})

	t.Run("restores from artifact", func(t *testing.T) {
		f := newSessionFixture(t, time.Minute)
		require.NoError(t, f.store.Save(testHeaders()))
		assert.False(t, f.yt.IsAuthenticated())

		require.NoError(t, f.yt.Restore(context.Background()))
		assert.True(t, f.yt.IsAuthenticated())
		assert.Equal(t, int32(1), f.target.homeCalls.Load())
	})

	t.Run("restore without artifact", func(t *testing.T) {
		f := newSessionFixture(t, time.Minute)
		err := f.yt.Restore(context.Background())
		assert.ErrorIs(t, err, shared.ErrMissingCredentials)
		assert.False(t, f.yt.IsAuthenticated())
	})

	t.Run("artifact removed underneath clears state", func(t *testing.T) {
		f := newSessionFixture(t, time.Minute)
		sess := session.New()
		require.NoError(t, f.yt.Authenticate(context.Background(), sess, validRaw))
		require.NoError(t, f.store.Remove())

		_, err := f.yt.EnsureAuthenticated(context.Background(), sess)
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
		assert.False(t, sess.YouTubeAuthenticated())
		assert.False(t, f.yt.Status().Authenticated)
	})

	t.Run("liveness probe is cached for the ttl", func(t *testing.T) {
		f := newSessionFixture(t, time.Hour)
		require.NoError(t, f.yt.Authenticate(context.Background(), nil, validRaw))

		for range 3 {
			_, err := f.yt.EnsureAuthenticated(context.Background(), nil)
			require.NoError(t, err)
		}
		assert.Equal(t, int32(1), f.target.homeCalls.Load())
	})

	t.Run("zero ttl probes every time", func(t *testing.T) {
		f := newSessionFixture(t, 0)
		require.NoError(t, f.yt.Authenticate(context.Background(), nil, validRaw))

		for range 3 {
			_, err := f.yt.EnsureAuthenticated(context.Background(), nil)
			require.NoError(t, err)
		}
		assert.Equal(t, int32(4), f.target.homeCalls.Load())
	})

	t.Run("failed probe clears everything", func(t *testing.T) {
		f := newSessionFixture(t, 0)
		sess := session.New()
		require.NoError(t, f.yt.Authenticate(context.Background(), sess, validRaw))

		f.target.homeErr = errors.New("signed out")
		_, err := f.yt.EnsureAuthenticated(context.Background(), sess)

		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
		assert.False(t, f.store.Exists())
		assert.False(t, f.yt.IsAuthenticated())
		assert.False(t, sess.YouTubeAuthenticated())
	})

	t.Run("cancelled probe keeps credentials", func(t *testing.T) {
		f := newSessionFixture(t, 0)
		require.NoError(t, f.yt.Authenticate(context.Background(), nil, validRaw))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.yt.EnsureAuthenticated(ctx, nil)

		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, f.store.Exists())
	})

	t.Run("cancelled rebuild leaves no handle behind", func(t *testing.T) {
		f := newSessionFixture(t, 0)
		require.NoError(t, f.yt.Authenticate(context.Background(), nil, validRaw))
		restarted := NewYouTubeSession(f.store, f.factory, 0, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := restarted.EnsureAuthenticated(ctx, nil)

		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, f.store.Exists())
		assert.False(t, restarted.IsAuthenticated())
		restarted.mu.Lock()
		assert.Nil(t, restarted.client)
		restarted.mu.Unlock()

		require.NoError(t, restarted.Restore(context.Background()))
		assert.True(t, restarted.IsAuthenticated())
	})
}

func TestYouTubeSessionVerify(t *testing.T) {
	t.Run("without artifact", func(t *testing.T) {
		f := newSessionFixture(t, time.Hour)

		err := f.yt.Verify(context.Background())
		assert.ErrorIs(t, err, shared.ErrMissingCredentials)
	})

	t.Run("failed check keeps the artifact and current state", func(t *testing.T) {
		f := newSessionFixture(t, time.Hour)
		require.NoError(t, f.yt.Authenticate(context.Background(), nil, validRaw))
		f.target.homeErr = errors.New("503 service unavailable")

		err := f.yt.Verify(context.Background())

		var authErr *shared.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.True(t, f.store.Exists())
		assert.True(t, f.yt.IsAuthenticated())
	})

	t.Run("success installs a verified handle", func(t *testing.T) {
		f := newSessionFixture(t, time.Hour)
		require.NoError(t, f.yt.Authenticate(context.Background(), nil, validRaw))
		restarted := NewYouTubeSession(f.store, f.factory, time.Hour, nil)
		require.False(t, restarted.IsAuthenticated())

		require.NoError(t, restarted.Verify(context.Background()))

		status := restarted.Status()
		assert.True(t, status.Authenticated)
		assert.False(t, status.LastVerified.IsZero())
	})
}

func TestYouTubeSessionStatusDuringVerification(t *testing.T) {
	f := newSessionFixture(t, time.Hour)
	f.target.gate = make(chan struct{})
	f.target.entered = make(chan struct{}, 1)

	authErr := make(chan error, 1)
	go func() { authErr <- f.yt.Authenticate(context.Background(), nil, validRaw) }()

	select {
	case <-f.target.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("verification never started")
	}

	statusCh := make(chan YouTubeStatus, 1)
	go func() { statusCh <- f.yt.Status() }()

	select {
	case status := <-statusCh:
		assert.True(t, status.ArtifactExists)
		assert.False(t, status.Authenticated)
	case <-time.After(time.Second):
		t.Fatal("status waited on the running verification")
	}

	close(f.target.gate)
	require.NoError(t, <-authErr)
	assert.True(t, f.yt.Status().Authenticated)
}

func TestYouTubeSessionOperations(t *testing.T) {
	f := newSessionFixture(t, time.Hour)
	sess := session.New()

	_, err := f.yt.CreatePlaylist(context.Background(), sess, "t", "d")
	require.ErrorIs(t, err, shared.ErrNotAuthenticated)

	require.NoError(t, f.yt.Authenticate(context.Background(), sess, validRaw))

	id, err := f.yt.CreatePlaylist(context.Background(), sess, "Road Trip (from Spotify)", "d")
	require.NoError(t, err)
	assert.Equal(t, "PL1", id)

	track, err := f.yt.SearchTrack(context.Background(), sess, "q")
	require.NoError(t, err)
	assert.Equal(t, "v-q", track.VideoID)

	require.NoError(t, f.yt.AddTracks(context.Background(), sess, id, []string{"a", "b"}))
	assert.Equal(t, [][]string{{"a", "b"}}, f.target.added)

	require.NoError(t, f.yt.Logout(sess))
	assert.False(t, f.yt.IsAuthenticated())
	assert.False(t, f.store.Exists())
	assert.False(t, sess.YouTubeAuthenticated())

	status := f.yt.Status()
	assert.False(t, status.Authenticated)
	assert.False(t, status.ArtifactExists)
	assert.Equal(t, f.store.Path(), status.Location)
}

func TestYouTubeSessionInvalidate(t *testing.T) {
	t.Run("drops in-memory state once the artifact is gone", func(t *testing.T) {
		f := newSessionFixture(t, time.Hour)
		require.NoError(t, f.yt.Authenticate(context.Background(), nil, validRaw))
		moved := f.store.Path() + ".bak"
		require.NoError(t, os.Rename(f.store.Path(), moved))

		f.yt.Invalidate("artifact moved")
		status := f.yt.Status()
		assert.False(t, status.Authenticated)
		assert.True(t, status.LastVerified.IsZero())

		require.NoError(t, os.Rename(moved, f.store.Path()))
		assert.False(t, f.yt.IsAuthenticated(), "invalidation is not undone by the file returning")
		require.NoError(t, f.yt.Restore(context.Background()))
		assert.True(t, f.yt.IsAuthenticated())
	})

	t.Run("late event after a new import is ignored", func(t *testing.T) {
		f := newSessionFixture(t, time.Hour)
		require.NoError(t, f.yt.Authenticate(context.Background(), nil, validRaw))

		f.yt.Invalidate("artifact removed")

		assert.True(t, f.yt.IsAuthenticated())
		assert.True(t, f.store.Exists())
	})
}

func TestYouTubeSessionConcurrentUse(t *testing.T) {
	f := newSessionFixture(t, 0)
	require.NoError(t, f.yt.Authenticate(context.Background(), nil, validRaw))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.yt.SearchTrack(context.Background(), nil, "q")
		}()
		go func() {
			defer wg.Done()
			_ = f.yt.IsAuthenticated()
			_ = f.yt.Status()
		}()
	}
	wg.Wait()
	assert.True(t, f.yt.IsAuthenticated())
}
