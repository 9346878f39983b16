package establishment

import (
	"context"
	"database/sql"
	"errors"

	"dispatch-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Establishment, error)
	List(ctx context.Context, onlyOpen bool) ([]*Establishment, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Establishment, error) {
	var e Establishment
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, neighborhood_id, lat, lng, is_open, created_at
		FROM establishments
		WHERE id = $1`, id).
		Scan(&e.ID, &e.Name, &e.NeighborhoodID, &e.Lat, &e.Lng, &e.IsOpen, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to load establishment",
			zap.String("layer", "repository"),
			zap.String("establishment_id", id.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return &e, nil
}

func (r *repository) List(ctx context.Context, onlyOpen bool) ([]*Establishment, error) {
	query := `
		SELECT id, name, neighborhood_id, lat, lng, is_open, created_at
		FROM establishments`
	if onlyOpen {
		query += ` WHERE is_open`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Establishment
	for rows.Next() {
		var e Establishment
		if err := rows.Scan(&e.ID, &e.Name, &e.NeighborhoodID, &e.Lat, &e.Lng, &e.IsOpen, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
