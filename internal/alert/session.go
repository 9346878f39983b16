package alert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"dispatch-be/internal/auth"
	"dispatch-be/internal/feed"
	"dispatch-be/internal/logger"
	"dispatch-be/internal/metrics"
	"dispatch-be/internal/order"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PendingOrders lists an establishment's orders in a status.
type PendingOrders interface {
	ListByStatus(ctx context.Context, establishmentID uuid.UUID, status order.Status, actor auth.Actor) ([]*order.Order, error)
}

type Options struct {
	// Period between repeated cues; 3s when zero.
	Period time.Duration
	// NewTicker builds the shared timer; NewTimeTicker when nil.
	NewTicker func(time.Duration) Ticker
}

// Session keeps one operator alerted about pending orders of one
// establishment until each is acknowledged. It is owned by the operator's
// connection and torn down with StopAll. Its context outlives single requests
// and is only used for cues and notifications.
type Session struct {
	establishmentID uuid.UUID
	actor           auth.Actor
	orders          PendingOrders
	speaker         Speaker
	notifier        Notifier
	period          time.Duration
	newTicker       func(time.Duration) Ticker

	ctx context.Context

	mu      sync.Mutex
	active  map[uuid.UUID]int64
	soundOn bool
	ticker  Ticker
	stop    chan struct{}

	// gen counts feed events; while a seed is in flight touched records the
	// generation of the last event seen per order.
	gen     uint64
	seeding int
	touched map[uuid.UUID]uint64

	playing sync.Mutex

	Cues          metrics.Counter
	Notifications metrics.Counter
}

func NewSession(
	ctx context.Context,
	establishmentID uuid.UUID,
	actor auth.Actor,
	orders PendingOrders,
	speaker Speaker,
	notifier Notifier,
	opts Options,
) *Session {
	if opts.Period <= 0 {
		opts.Period = 3 * time.Second
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	return &Session{
		establishmentID: establishmentID,
		actor:           actor,
		orders:          orders,
		speaker:         speaker,
		notifier:        notifier,
		period:          opts.Period,
		newTicker:       opts.NewTicker,
		ctx:             context.WithoutCancel(ctx),
		active:          make(map[uuid.UUID]int64),
		touched:         make(map[uuid.UUID]uint64),
		soundOn:         true,
	}
}

func (s *Session) log() *zap.Logger {
	return logger.FromCtx(s.ctx).With(
		zap.String("layer", "alert"),
		zap.String("establishment_id", s.establishmentID.String()),
	)
}

// Start seeds the active set from the establishment's pending orders, which
// recovers alerting after a reload or reconnect.
func (s *Session) Start(ctx context.Context) error {
	_, err := s.seed(ctx)
	return err
}

// Resync re-reads pending orders after the change feed may have dropped
// events. Orders found only now are announced like inserts.
func (s *Session) Resync(ctx context.Context) error {
	added, err := s.seed(ctx)
	if err != nil {
		return err
	}
	for _, o := range added {
		s.notify(o.id, o.number)
	}
	if len(added) > 0 {
		s.cue()
	}
	return nil
}

type seeded struct {
	id     uuid.UUID
	number int64
}

// seed rebuilds the active set from the store's view and returns the ids that
// were not active before. Feed events handled while the query ran win over
// the snapshot for the orders they touched.
func (s *Session) seed(ctx context.Context) ([]seeded, error) {
	s.mu.Lock()
	since := s.gen
	s.seeding++
	s.mu.Unlock()

	pending, err := s.orders.ListByStatus(ctx, s.establishmentID, order.StatusPending, s.actor)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.endSeedLocked()

	if err != nil {
		s.log().Error("failed to load pending orders", zap.Error(err))
		return nil, err
	}

	var added []seeded
	next := make(map[uuid.UUID]int64, len(pending))
	for _, o := range pending {
		if s.touched[o.ID] > since {
			continue
		}
		next[o.ID] = o.OrderNumber
		if _, ok := s.active[o.ID]; !ok {
			added = append(added, seeded{id: o.ID, number: o.OrderNumber})
		}
	}
	for id, number := range s.active {
		if s.touched[id] > since {
			next[id] = number
		}
	}
	s.active = next
	s.syncTickerLocked()

	s.log().Info("alert set seeded", zap.Int("pending", len(next)))
	return added, nil
}

func (s *Session) endSeedLocked() {
	s.seeding--
	if s.seeding == 0 {
		clear(s.touched)
	}
}

func (s *Session) touchLocked(id uuid.UUID) {
	s.gen++
	if s.seeding > 0 {
		s.touched[id] = s.gen
	}
}

// HandleInsert starts alerting for a new pending order. Repeated deliveries
// of the same insert are ignored.
func (s *Session) HandleInsert(c feed.Change) {
	if c.EstablishmentID != s.establishmentID || c.Status != order.StatusPending {
		return
	}

	s.mu.Lock()
	s.touchLocked(c.ID)
	if _, ok := s.active[c.ID]; ok {
		s.mu.Unlock()
		return
	}
	s.active[c.ID] = c.OrderNumber
	s.syncTickerLocked()
	s.mu.Unlock()

	s.cue()
	s.notify(c.ID, c.OrderNumber)
}

// HandleUpdate stops alerting once the order has left pending.
func (s *Session) HandleUpdate(c feed.Change) {
	if c.EstablishmentID != s.establishmentID || c.Status == order.StatusPending {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked(c.ID)
	if _, ok := s.active[c.ID]; !ok {
		return
	}
	delete(s.active, c.ID)
	s.syncTickerLocked()
}

// StopAll clears the set and the timer unconditionally.
func (s *Session) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = make(map[uuid.UUID]int64)
	s.stopTickerLocked()
}

func (s *Session) SetSoundEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.soundOn = on
}

func (s *Session) SoundEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.soundOn
}

// Active returns the alerting order ids, oldest order number first.
func (s *Session) Active() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.active[ids[i]] < s.active[ids[j]] })
	return ids
}

// Running reports whether the shared timer is armed.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

func (s *Session) syncTickerLocked() {
	if len(s.active) == 0 {
		s.stopTickerLocked()
		return
	}
	if s.ticker != nil {
		return
	}
	t := s.newTicker(s.period)
	stop := make(chan struct{})
	s.ticker, s.stop = t, stop
	go s.loop(t, stop)
}

func (s *Session) stopTickerLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker, s.stop = nil, nil
}

func (s *Session) loop(t Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			s.mu.Lock()
			due := len(s.active) > 0
			s.mu.Unlock()
			if due {
				s.cue()
			}
		}
	}
}

// cue plays the chime unless sound is off or a chime is already playing.
// Audio failures are logged and swallowed.
func (s *Session) cue() {
	if !s.SoundEnabled() {
		return
	}
	if !s.playing.TryLock() {
		return
	}
	defer s.playing.Unlock()

	ctx := s.ctx
	if s.speaker.State() == AudioSuspended {
		if err := s.speaker.Resume(ctx); err != nil {
			s.log().Debug("audio resume failed", zap.Error(err))
		}
	}
	if err := s.speaker.Play(ctx, Chime); err != nil {
		s.log().Warn("alert cue not played", zap.Error(err))
		return
	}
	s.Cues.Inc()
}

func (s *Session) notify(id uuid.UUID, number int64) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(s.ctx, Notification{
		Title: "New order",
		Body:  fmt.Sprintf("Order #%d is waiting for confirmation", number),
		Tag:   "order-" + id.String(),
	})
	switch {
	case err == nil:
		s.Notifications.Inc()
	case errors.Is(err, ErrPermissionDenied):
		s.log().Debug("notification permission denied")
	default:
		s.log().Warn("notification not shown", zap.Error(err))
	}
}
