package fee

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidSchedule = errors.New("invalid fee schedule")

// Tier charges Fee for any distance up to and including UpToKm.
type Tier struct {
	UpToKm float64 `yaml:"up_to_km"`
	Fee    int64   `yaml:"fee"`
}

// Schedule maps a routed distance to a fee. Beyond the last tier every
// started kilometre adds PerKmBeyond.
type Schedule struct {
	Tiers       []Tier `yaml:"tiers"`
	PerKmBeyond int64  `yaml:"per_km_beyond"`
}

func DefaultSchedule() Schedule {
	return Schedule{
		Tiers: []Tier{
			{UpToKm: 2, Fee: 500},
			{UpToKm: 5, Fee: 700},
			{UpToKm: 8, Fee: 1000},
		},
		PerKmBeyond: 150,
	}
}

// LoadSchedule reads a YAML schedule; an empty path yields the default.
func LoadSchedule(path string) (Schedule, error) {
	if path == "" {
		return DefaultSchedule(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("read fee schedule: %w", err)
	}

	var s Schedule
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schedule{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// Validate enforces what makes FeeFor non-decreasing in distance.
func (s Schedule) Validate() error {
	if len(s.Tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalidSchedule)
	}
	if s.PerKmBeyond < 0 {
		return fmt.Errorf("%w: negative per_km_beyond", ErrInvalidSchedule)
	}
	for i, t := range s.Tiers {
		if t.UpToKm <= 0 || t.Fee < 0 {
			return fmt.Errorf("%w: tier %d out of range", ErrInvalidSchedule, i)
		}
		if i == 0 {
			continue
		}
		prev := s.Tiers[i-1]
		if t.UpToKm <= prev.UpToKm {
			return fmt.Errorf("%w: tier %d distance not increasing", ErrInvalidSchedule, i)
		}
		if t.Fee < prev.Fee {
			return fmt.Errorf("%w: tier %d fee decreases", ErrInvalidSchedule, i)
		}
	}
	return nil
}

func (s Schedule) FeeFor(distanceKm float64) int64 {
	if distanceKm < 0 || math.IsNaN(distanceKm) {
		distanceKm = 0
	}
	for _, t := range s.Tiers {
		if distanceKm <= t.UpToKm {
			return t.Fee
		}
	}

	last := s.Tiers[len(s.Tiers)-1]
	if s.PerKmBeyond == 0 {
		return last.Fee
	}
	extraKm := math.Ceil(distanceKm - last.UpToKm)
	// Saturate instead of overflowing for absurd distances.
	maxKm := (math.MaxInt64 - last.Fee) / s.PerKmBeyond
	if extraKm >= float64(maxKm) {
		return last.Fee + maxKm*s.PerKmBeyond
	}
	return last.Fee + int64(extraKm)*s.PerKmBeyond
}
