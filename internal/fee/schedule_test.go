package fee

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_FeeFor(t *testing.T) {
	s := DefaultSchedule()

	cases := []struct {
		km   float64
		want int64
	}{
		{-1, 500},
		{0, 500},
		{2, 500},
		{2.01, 700},
		{5, 700},
		{8, 1000},
		{8.1, 1150},
		{9, 1150},
		{12.5, 1750},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, s.FeeFor(c.km), "distance %.2f", c.km)
	}
}

func TestSchedule_FeeForHugeDistances(t *testing.T) {
	s := DefaultSchedule()

	prev := s.FeeFor(1000)
	for _, km := range []float64{1e6, 1e15, 1e17, 1e30, math.MaxFloat64, math.Inf(1)} {
		fee := s.FeeFor(km)
		assert.GreaterOrEqual(t, fee, prev, "distance %g", km)
		prev = fee
	}
	assert.Equal(t, s.FeeFor(math.Inf(1)), s.FeeFor(1e30))

	flat := Schedule{Tiers: []Tier{{UpToKm: 3, Fee: 400}}}
	assert.Equal(t, int64(400), flat.FeeFor(math.Inf(1)))
}

func TestSchedule_Validate(t *testing.T) {
	assert.NoError(t, DefaultSchedule().Validate())

	bad := []Schedule{
		{},
		{Tiers: []Tier{{UpToKm: 2, Fee: 500}}, PerKmBeyond: -1},
		{Tiers: []Tier{{UpToKm: 0, Fee: 500}}},
		{Tiers: []Tier{{UpToKm: 3, Fee: 500}, {UpToKm: 2, Fee: 600}}},
		{Tiers: []Tier{{UpToKm: 2, Fee: 600}, {UpToKm: 4, Fee: 500}}},
	}
	for i, s := range bad {
		assert.ErrorIs(t, s.Validate(), ErrInvalidSchedule, "case %d", i)
	}
}

func TestLoadSchedule(t *testing.T) {
	t.Run("Empty path uses default", func(t *testing.T) {
		s, err := LoadSchedule("")
		require.NoError(t, err)
		assert.Equal(t, DefaultSchedule(), s)
	})

	t.Run("Reads YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fees.yaml")
		content := "tiers:\n  - up_to_km: 3\n    fee: 400\n  - up_to_km: 6\n    fee: 900\nper_km_beyond: 200\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		s, err := LoadSchedule(path)
		require.NoError(t, err)
		assert.Equal(t, []Tier{{UpToKm: 3, Fee: 400}, {UpToKm: 6, Fee: 900}}, s.Tiers)
		assert.Equal(t, int64(200), s.PerKmBeyond)
		assert.Equal(t, int64(1300), s.FeeFor(7.5))
	})

	t.Run("Rejects decreasing fees", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fees.yaml")
		content := "tiers:\n  - up_to_km: 3\n    fee: 900\n  - up_to_km: 6\n    fee: 400\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		_, err := LoadSchedule(path)
		assert.ErrorIs(t, err, ErrInvalidSchedule)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := LoadSchedule(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
