package alert

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied from a Notifier is expected and not logged as a failure.
	ErrPermissionDenied = errors.New("notification permission denied")
	ErrAudioUnavailable = errors.New("audio output unavailable")
)

type AudioState string

const (
	AudioRunning     AudioState = "running"
	AudioSuspended   AudioState = "suspended"
	AudioUnavailable AudioState = "unavailable"
)

// Tone is one step of a synthesized cue.
type Tone struct {
	FrequencyHz float64 `json:"frequency_hz"`
	DurationMs  int     `json:"duration_ms"`
	Gain        float64 `json:"gain"`
}

// Chime is the new-order cue: a short rising three-tone sequence.
var Chime = []Tone{
	{FrequencyHz: 880, DurationMs: 150, Gain: 0.3},
	{FrequencyHz: 1174.66, DurationMs: 150, Gain: 0.3},
	{FrequencyHz: 1567.98, DurationMs: 250, Gain: 0.3},
}

// Speaker is a best-effort audio output that may start suspended.
type Speaker interface {
	State() AudioState
	Resume(ctx context.Context) error
	Play(ctx context.Context, tones []Tone) error
}

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	// Tag lets the surface replace an earlier notification for the same order.
	Tag string `json:"tag"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Ticker is the shared repeating timer.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}
