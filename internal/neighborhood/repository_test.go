package neighborhood

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "city_id", "name", "delivery_fee", "active", "created_at"}

func TestRepository_DeliveryFee(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	id := uuid.New()
	city := uuid.New()

	t.Run("Active zone", func(t *testing.T) {
		mock.ExpectQuery(`FROM neighborhoods\s+WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(id.String(), city.String(), "Pinheiros", int64(650), true, time.Now()))

		fee, err := repo.DeliveryFee(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, int64(650), fee)
	})

	t.Run("Inactive zone", func(t *testing.T) {
		mock.ExpectQuery(`FROM neighborhoods`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(id.String(), city.String(), "Pinheiros", int64(650), false, time.Now()))

		_, err := repo.DeliveryFee(context.Background(), id)
		assert.ErrorIs(t, err, ErrInactive)
	})

	t.Run("Unknown zone", func(t *testing.T) {
		mock.ExpectQuery(`FROM neighborhoods`).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.DeliveryFee(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DB error", func(t *testing.T) {
		mock.ExpectQuery(`FROM neighborhoods`).
			WithArgs(id).
			WillReturnError(errors.New("db error"))

		_, err := repo.DeliveryFee(context.Background(), id)
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListByCity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	city := uuid.New()
	mock.ExpectQuery(`WHERE city_id = \$1`).
		WithArgs(city).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(uuid.NewString(), city.String(), "Centro", int64(500), true, time.Now()).
			AddRow(uuid.NewString(), city.String(), "Moema", int64(900), true, time.Now()))

	list, err := NewRepository(db).ListByCity(context.Background(), city)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Moema", list[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
