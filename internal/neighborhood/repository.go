package neighborhood

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Neighborhood, error)
	ListByCity(ctx context.Context, cityID uuid.UUID) ([]*Neighborhood, error)
	// DeliveryFee is the zone-fee fallback used by the fee calculator.
	DeliveryFee(ctx context.Context, id uuid.UUID) (int64, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Neighborhood, error) {
	var n Neighborhood
	err := r.db.QueryRowContext(ctx, `
		SELECT id, city_id, name, delivery_fee, active, created_at
		FROM neighborhoods
		WHERE id = $1`, id).
		Scan(&n.ID, &n.CityID, &n.Name, &n.DeliveryFee, &n.Active, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repository) ListByCity(ctx context.Context, cityID uuid.UUID) ([]*Neighborhood, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, city_id, name, delivery_fee, active, created_at
		FROM neighborhoods
		WHERE city_id = $1
		ORDER BY name ASC`, cityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Neighborhood
	for rows.Next() {
		var n Neighborhood
		if err := rows.Scan(&n.ID, &n.CityID, &n.Name, &n.DeliveryFee, &n.Active, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *repository) DeliveryFee(ctx context.Context, id uuid.UUID) (int64, error) {
	n, err := r.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if !n.Active {
		return 0, ErrInactive
	}
	return n.DeliveryFee, nil
}
