package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"dispatch-be/internal/alert"
	"dispatch-be/internal/auth"
	"dispatch-be/internal/feed"
	"dispatch-be/internal/logger"
	"dispatch-be/internal/order"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Frames sent to the browser.
const (
	frameTones        = "tones"
	frameNotification = "notification"
	frameResumeAudio  = "resume_audio"
)

// Messages read from the browser.
const (
	msgAudio         = "audio"
	msgSound         = "sound"
	msgNotifications = "notifications"
)

type alertFrame struct {
	Type         string              `json:"type"`
	Tones        []alert.Tone        `json:"tones,omitempty"`
	Notification *alert.Notification `json:"notification,omitempty"`
}

type clientMessage struct {
	Type       string           `json:"type"`
	State      alert.AudioState `json:"state,omitempty"`
	Enabled    *bool            `json:"enabled,omitempty"`
	Permission string           `json:"permission,omitempty"`
}

// alertConn is the browser side of an alert session: it plays tones and
// shows notifications, and reports back its audio and permission state.
type alertConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	audio  alert.AudioState
	denied bool
}

func (c *alertConn) write(f alertFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

func (c *alertConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *alertConn) State() alert.AudioState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audio
}

// Resume asks the browser to resume its audio context. The state changes
// only when the browser reports back.
func (c *alertConn) Resume(context.Context) error {
	return c.write(alertFrame{Type: frameResumeAudio})
}

func (c *alertConn) Play(_ context.Context, tones []alert.Tone) error {
	if c.State() == alert.AudioUnavailable {
		return alert.ErrAudioUnavailable
	}
	return c.write(alertFrame{Type: frameTones, Tones: tones})
}

func (c *alertConn) Notify(_ context.Context, n alert.Notification) error {
	c.mu.Lock()
	denied := c.denied
	c.mu.Unlock()
	if denied {
		return alert.ErrPermissionDenied
	}
	return c.write(alertFrame{Type: frameNotification, Notification: &n})
}

func (c *alertConn) apply(s *alert.Session, m clientMessage) {
	switch m.Type {
	case msgAudio:
		switch m.State {
		case alert.AudioRunning, alert.AudioSuspended, alert.AudioUnavailable:
			c.mu.Lock()
			c.audio = m.State
			c.mu.Unlock()
		}
	case msgSound:
		if m.Enabled != nil {
			s.SetSoundEnabled(*m.Enabled)
		}
	case msgNotifications:
		c.mu.Lock()
		c.denied = m.Permission == "denied"
		c.mu.Unlock()
	}
}

// alertEstablishment resolves whose orders the caller watches. Admins pick
// one with ?establishment_id=.
func alertEstablishment(r *http.Request, actor auth.Actor) (uuid.UUID, error) {
	switch actor.Role {
	case auth.RoleEstablishment:
		return *actor.EstablishmentID, nil
	case auth.RoleAdmin:
		id, err := uuid.Parse(r.URL.Query().Get("establishment_id"))
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: establishment_id is required", order.ErrValidation)
		}
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("%w: establishment operators only", order.ErrForbidden)
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	estID, err := alertEstablishment(r, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		return
	}
	defer ws.Close()

	log := logger.FromCtx(r.Context()).With(
		zap.String("layer", "api"),
		zap.String("method", "alerts"),
		zap.String("establishment_id", estID.String()),
	)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	conn := &alertConn{conn: ws, audio: alert.AudioSuspended}
	session := alert.NewSession(ctx, estID, actor, h.Orders, conn, conn, h.Alerts)
	defer session.StopAll()

	unsubscribe := h.Hub.Subscribe(feed.ForEstablishment(estID), feed.Handler{
		OnInsert: session.HandleInsert,
		OnUpdate: session.HandleUpdate,
		OnResync: func() {
			if err := session.Resync(ctx); err != nil {
				log.Warn("alert resync failed", zap.Error(err))
			}
		},
	})
	defer unsubscribe()

	if err := session.Start(ctx); err != nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "failed to load pending orders"),
			time.Now().Add(writeWait))
		return
	}
	log.Info("alert session started", zap.Int("pending", len(session.Active())))

	go func() {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := conn.ping(); err != nil {
					return
				}
			}
		}
	}()

	ws.SetReadLimit(4096)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var m clientMessage
		if err := ws.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("alert socket closed", zap.Error(err))
			}
			break
		}
		conn.apply(session, m)
	}
	log.Info("alert session ended")
}
