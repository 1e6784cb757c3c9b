package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/shared"
)

const conversionColumns = `id, sequence, user_id, source_playlist_id, source_playlist_name, target_playlist_id,
	status, tracks_total, tracks_matched, unmatched, error_message, started_at, finished_at`

// ConversionRepository persists [models.Conversion] records.
type ConversionRepository struct {
	db *sql.DB
}

func NewConversionRepository(db *sql.DB) *ConversionRepository {
	return &ConversionRepository{db: db}
}

// Create inserts c, assigning its id when empty and its sequence number.
func (r *ConversionRepository) Create(ctx context.Context, c *models.Conversion) error {
	if c.ID == "" {
		c.ID = shared.GenerateID()
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = time.Now().UTC()
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	sequence, err := NextSequence(ctx, r.db, "conversions")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	query := `INSERT INTO conversions (` + conversionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		c.ID,
		sequence,
		c.UserID,
		c.SourcePlaylistID,
		c.SourcePlaylistName,
		c.TargetPlaylistID,
		string(c.Status),
		c.TracksTotal,
		c.TracksMatched,
		strings.Join(c.Unmatched, "\n"),
		c.ErrorMessage,
		c.StartedAt,
		nullTime(c.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversion: %w", err)
	}

	c.Sequence = sequence
	return nil
}

// Update rewrites the mutable fields of an existing record.
func (r *ConversionRepository) Update(ctx context.Context, c *models.Conversion) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	query := `
		UPDATE conversions
		SET source_playlist_name = ?, target_playlist_id = ?, status = ?, tracks_total = ?, tracks_matched = ?,
			unmatched = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		c.SourcePlaylistName,
		c.TargetPlaylistID,
		string(c.Status),
		c.TracksTotal,
		c.TracksMatched,
		strings.Join(c.Unmatched, "\n"),
		c.ErrorMessage,
		nullTime(c.FinishedAt),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversion: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: conversion %s", shared.ErrRecordNotFound, c.ID)
	}
	return nil
}

// Get retrieves a conversion by id.
func (r *ConversionRepository) Get(ctx context.Context, id string) (*models.Conversion, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conversionColumns+` FROM conversions WHERE id = ?`, id)

	c, err := scanConversion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversion %s", shared.ErrRecordNotFound, id)
	}
	return c, err
}

// List returns the most recent conversions first. A limit of zero or less returns every record.
func (r *ConversionRepository) List(ctx context.Context, limit int) ([]*models.Conversion, error) {
	return r.list(ctx, "", limit)
}

// ListByUser is [ConversionRepository.List] restricted to one Spotify user.
func (r *ConversionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Conversion, error) {
	if userID == "" {
		return nil, &shared.ValidationError{Field: "user_id", Message: "is required"}
	}
	return r.list(ctx, userID, limit)
}

func (r *ConversionRepository) list(ctx context.Context, userID string, limit int) ([]*models.Conversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM conversions`
	args := []any{}

	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}

	query += " ORDER BY sequence DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversions: %w", err)
	}
	defer rows.Close()

	var conversions []*models.Conversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		conversions = append(conversions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return conversions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversion(s scanner) (*models.Conversion, error) {
	var (
		c          models.Conversion
		status     string
		unmatched  string
		finishedAt sql.NullTime
	)

	err := s.Scan(
		&c.ID,
		&c.Sequence,
		&c.UserID,
		&c.SourcePlaylistID,
		&c.SourcePlaylistName,
		&c.TargetPlaylistID,
		&status,
		&c.TracksTotal,
		&c.TracksMatched,
		&unmatched,
		&c.ErrorMessage,
		&c.StartedAt,
		&finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversion: %w", err)
	}

	c.Status = models.ConversionStatus(status)
	if unmatched != "" {
		c.Unmatched = strings.Split(unmatched, "\n")
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		c.FinishedAt = &t
	}
	return &c, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
