package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied.
//
// The pool is pinned to one connection since every ":memory:" connection is a separate database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func newConversion(userID, playlistID string) *models.Conversion {
	return &models.Conversion{
		UserID:           userID,
		SourcePlaylistID: playlistID,
		Status:           models.ConversionRunning,
		StartedAt:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(ctx, db, "conversions")
		if err != nil {
			t.Fatalf("NextSequence failed: %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(ctx, db, "missing"); err == nil {
		t.Error("expected error for table without sequence")
	}
}

func TestConversionRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		repo := NewConversionRepository(setupTestDB(t))
		c := newConversion("user-1", "pl1")

		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("failed to create conversion: %v", err)
		}
		if c.ID == "" {
			t.Error("conversion ID should be set after creation")
		}
		if c.Sequence != 1 {
			t.Errorf("expected sequence 1, got %d", c.Sequence)
		}
	})

	t.Run("Create rejects invalid records", func(t *testing.T) {
		repo := NewConversionRepository(setupTestDB(t))
		c := newConversion("user-1", "")

		err := repo.Create(ctx, c)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})

	t.Run("Get", func(t *testing.T) {
		repo := NewConversionRepository(setupTestDB(t))
		c := newConversion("user-1", "pl1")
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("failed to create conversion: %v", err)
		}

		got, err := repo.Get(ctx, c.ID)
		if err != nil {
			t.Fatalf("failed to get conversion: %v", err)
		}
		if got.SourcePlaylistID != "pl1" || got.UserID != "user-1" || got.Status != models.ConversionRunning {
			t.Errorf("unexpected conversion: %+v", got)
		}
		if !got.StartedAt.Equal(c.StartedAt) {
			t.Errorf("expected started_at %v, got %v", c.StartedAt, got.StartedAt)
		}
		if got.FinishedAt != nil {
			t.Errorf("expected no finished_at, got %v", got.FinishedAt)
		}
	})

	t.Run("Get not found", func(t *testing.T) {
		repo := NewConversionRepository(setupTestDB(t))

		_, err := repo.Get(ctx, "nonexistent-id")
		if !errors.Is(err, shared.ErrRecordNotFound) {
			t.Fatalf("expected record not found, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := NewConversionRepository(setupTestDB(t))
		c := newConversion("user-1", "pl1")
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("failed to create conversion: %v", err)
		}

		finished := c.StartedAt.Add(time.Minute)
		c.Status = models.ConversionSucceeded
		c.SourcePlaylistName = "Mixtape"
		c.TargetPlaylistID = "PL_new"
		c.TracksTotal = 3
		c.TracksMatched = 1
		c.Unmatched = []string{"Song A - X", "Song B - Y"}
		c.FinishedAt = &finished

		if err := repo.Update(ctx, c); err != nil {
			t.Fatalf("failed to update conversion: %v", err)
		}

		got, err := repo.Get(ctx, c.ID)
		if err != nil {
			t.Fatalf("failed to get conversion: %v", err)
		}
		if got.Status != models.ConversionSucceeded || got.TargetPlaylistID != "PL_new" || got.TracksMatched != 1 {
			t.Errorf("unexpected conversion: %+v", got)
		}
		if len(got.Unmatched) != 2 || got.Unmatched[1] != "Song B - Y" {
			t.Errorf("unexpected unmatched: %v", got.Unmatched)
		}
		if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
			t.Errorf("expected finished_at %v, got %v", finished, got.FinishedAt)
		}
	})

	t.Run("Update not found", func(t *testing.T) {
		repo := NewConversionRepository(setupTestDB(t))
		c := newConversion("user-1", "pl1")
		c.ID = "missing"

		if err := repo.Update(ctx, c); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Fatalf("expected record not found, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewConversionRepository(setupTestDB(t))
		for i := range 5 {
			user := "user-1"
			if i%2 == 1 {
				user = "user-2"
			}
			if err := repo.Create(ctx, newConversion(user, fmt.Sprintf("pl%d", i))); err != nil {
				t.Fatalf("failed to create conversion: %v", err)
			}
		}

		all, err := repo.List(ctx, 0)
		if err != nil {
			t.Fatalf("failed to list conversions: %v", err)
		}
		if len(all) != 5 {
			t.Fatalf("expected 5 conversions, got %d", len(all))
		}
		if all[0].SourcePlaylistID != "pl4" || all[4].SourcePlaylistID != "pl0" {
			t.Errorf("expected most recent first, got %s..%s", all[0].SourcePlaylistID, all[4].SourcePlaylistID)
		}

		limited, err := repo.List(ctx, 2)
		if err != nil {
			t.Fatalf("failed to list conversions: %v", err)
		}
		if len(limited) != 2 {
			t.Errorf("expected 2 conversions, got %d", len(limited))
		}

		mine, err := repo.ListByUser(ctx, "user-2", 0)
		if err != nil {
			t.Fatalf("failed to list conversions: %v", err)
		}
		if len(mine) != 2 {
			t.Errorf("expected 2 conversions for user-2, got %d", len(mine))
		}
		for _, c := range mine {
			if c.UserID != "user-2" {
				t.Errorf("unexpected user %s", c.UserID)
			}
		}
	})

	t.Run("ListByUser requires a user", func(t *testing.T) {
		repo := NewConversionRepository(setupTestDB(t))

		var validationErr *shared.ValidationError
		if _, err := repo.ListByUser(ctx, "", 10); !errors.As(err, &validationErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}
