package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dispatch-be/internal/logger"
	"dispatch-be/internal/metrics"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Handler callbacks run on the subscription's own goroutine, one at a time.
type Handler struct {
	OnInsert func(Change)
	OnUpdate func(Change)
	// OnResync means events may have been missed; re-read current state.
	OnResync func()
}

type Filter func(Change) bool

func ForEstablishment(id uuid.UUID) Filter {
	return func(c Change) bool { return c.EstablishmentID == id }
}

type subscription struct {
	filter  Filter
	handler Handler
	events  chan Change
	wake    chan struct{}
	done    chan struct{}
	lagged  atomic.Bool
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case c := <-s.events:
			switch c.Op {
			case OpInsert:
				if s.handler.OnInsert != nil {
					s.handler.OnInsert(c)
				}
			case OpUpdate:
				if s.handler.OnUpdate != nil {
					s.handler.OnUpdate(c)
				}
			}
		case <-s.wake:
		}
		if s.lagged.Swap(false) && s.handler.OnResync != nil {
			s.handler.OnResync()
		}
	}
}

func (s *subscription) signalResync() {
	s.lagged.Store(true)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Hub fans change events out to in-process subscribers. A subscriber that
// falls behind loses events and is told to resync instead of blocking others.
type Hub struct {
	buffer int

	mu   sync.Mutex
	subs map[*subscription]struct{}

	Events  metrics.Counter
	Dropped metrics.Counter
	Resyncs metrics.Counter
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{buffer: buffer, subs: make(map[*subscription]struct{})}
}

// Subscribe registers a handler; a nil filter receives every change.
func (h *Hub) Subscribe(filter Filter, handler Handler) (unsubscribe func()) {
	s := &subscription{
		filter:  filter,
		handler: handler,
		events:  make(chan Change, h.buffer),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
			close(s.done)
		})
	}
}

func (h *Hub) Dispatch(c Change) {
	h.Events.Inc()
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.filter != nil && !s.filter(c) {
			continue
		}
		select {
		case s.events <- c:
		default:
			h.Dropped.Inc()
			s.signalResync()
		}
	}
}

// Resync tells every subscriber that events may have been lost.
func (h *Hub) Resync() {
	h.Resyncs.Inc()
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.signalResync()
	}
}

// Source delivers raw notifications. A nil notification means the connection
// was re-established and notifications may have been lost.
type Source interface {
	Notifications() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Run pumps the source into the hub until ctx is done or the source closes.
func (h *Hub) Run(ctx context.Context, src Source) error {
	log := logger.FromCtx(ctx).With(zap.String("layer", "feed"))
	idle := time.NewTicker(90 * time.Second)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-src.Notifications():
			if !ok {
				log.Warn("change feed source closed")
				return nil
			}
			if n == nil {
				log.Info("change feed reconnected, resyncing subscribers")
				h.Resync()
				continue
			}
			c, err := ParseChange(n.Extra)
			if err != nil {
				log.Warn("dropping malformed change", zap.String("payload", n.Extra), zap.Error(err))
				continue
			}
			h.Dispatch(c)
		case <-idle.C:
			if err := src.Ping(); err != nil {
				log.Warn("change feed ping failed", zap.Error(err))
			}
		}
	}
}
