package feed

import (
	"time"

	"dispatch-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PQSource listens on the orders channel through a reconnecting pq.Listener.
type PQSource struct {
	l *pq.Listener
}

func NewPQSource(dsn string) (*PQSource, error) {
	l := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.L().Warn("change feed listener event",
				zap.Int("event", int(ev)),
				zap.Error(err),
			)
		}
	})
	if err := l.Listen(Channel); err != nil {
		l.Close()
		return nil, err
	}
	return &PQSource{l: l}, nil
}

func (s *PQSource) Notifications() <-chan *pq.Notification { return s.l.Notify }
func (s *PQSource) Ping() error                            { return s.l.Ping() }
func (s *PQSource) Close() error                           { return s.l.Close() }
