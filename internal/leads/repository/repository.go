// Package repository provides postgres persistence for leads.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lead does not exist.
var ErrNotFound = errors.New("lead not found")

// Repository is the pgx-backed leads store.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new leads repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new lead.
func (r *Repository) Insert(ctx context.Context, lead domain.Lead) error {
	attrs, err := json.Marshal(lead.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO leads (id, email, phone, first_name, last_name, status, score, attributes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		lead.ID, lead.Email, lead.Phone, lead.FirstName, lead.LastName,
		string(lead.Status), lead.Score, attrs, lead.CreatedAt,
	)
	return err
}

// GetByID fetches a lead by identifier.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, phone, first_name, last_name, status, score, attributes, created_at, updated_at
		 FROM leads WHERE id = $1`, id)
	return scanLead(row)
}

// List returns leads ordered by score descending, newest first within a score.
func (r *Repository) List(ctx context.Context, limit int) ([]domain.Lead, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, email, phone, first_name, last_name, status, score, attributes, created_at, updated_at
		 FROM leads ORDER BY score DESC, created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []domain.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// UpdateAttributes replaces the lead's attributes and recomputed score.
func (r *Repository) UpdateAttributes(ctx context.Context, id uuid.UUID, attrs domain.Attributes, score int, now time.Time) error {
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE leads SET attributes = $2, score = $3, updated_at = $4 WHERE id = $1`,
		id, encoded, score, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus advances the lead's sales-pipeline status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE leads SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanLead(row pgx.Row) (domain.Lead, error) {
	var lead domain.Lead
	var status string
	var attrs []byte

	err := row.Scan(&lead.ID, &lead.Email, &lead.Phone, &lead.FirstName, &lead.LastName,
		&status, &lead.Score, &attrs, &lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, ErrNotFound
		}
		return domain.Lead{}, err
	}

	lead.Status = domain.Status(status)
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &lead.Attributes); err != nil {
			return domain.Lead{}, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	return lead, nil
}
