package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dispatch-be/internal/alert"
	"dispatch-be/internal/auth"
	"dispatch-be/internal/feed"
	"dispatch-be/internal/middleware"
	"dispatch-be/internal/order"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func readFrame(t *testing.T, ws *websocket.Conn, want string) alertFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var f alertFrame
		require.NoError(t, ws.ReadJSON(&f), "waiting for %s frame", want)
		if f.Type == want {
			return f
		}
	}
}

func TestAlerts_Websocket(t *testing.T) {
	f := newFixture(t)
	f.store.Put(order.Order{EstablishmentID: f.est.ID, Status: order.StatusPending})

	srv := httptest.NewServer(middleware.Auth(testSecret)(f.h.Routes()))
	defer srv.Close()

	tok, err := auth.IssueToken(f.operator, testSecret, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts?access_token=" + tok

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	// The pending order seeded at start keeps the chime repeating.
	tones := readFrame(t, ws, frameTones)
	assert.Equal(t, alert.Chime, tones.Tones)

	fresh := uuid.New()
	f.hub.Dispatch(feed.Change{Op: feed.OpInsert, ID: fresh, OrderNumber: 77, EstablishmentID: f.est.ID, Status: order.StatusPending})

	n := readFrame(t, ws, frameNotification)
	require.NotNil(t, n.Notification)
	assert.Equal(t, "order-"+fresh.String(), n.Notification.Tag)
	assert.Contains(t, n.Notification.Body, "#77")
}

func TestAlerts_Rejections(t *testing.T) {
	f := newFixture(t)

	c := courier()
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/ws/alerts", nil, &c).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/ws/alerts", nil, &f.admin).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/ws/alerts", nil, nil).Code)
}

func TestAlertConn_ClientReports(t *testing.T) {
	f := newFixture(t)
	conn := &alertConn{audio: alert.AudioSuspended}
	session := alert.NewSession(context.Background(), f.est.ID, f.operator, f.h.Orders, conn, conn, alert.Options{})
	defer session.StopAll()
	ctx := context.Background()

	conn.apply(session, clientMessage{Type: msgAudio, State: alert.AudioRunning})
	assert.Equal(t, alert.AudioRunning, conn.State())

	conn.apply(session, clientMessage{Type: msgAudio, State: "loud"})
	assert.Equal(t, alert.AudioRunning, conn.State())

	conn.apply(session, clientMessage{Type: msgAudio, State: alert.AudioUnavailable})
	assert.ErrorIs(t, conn.Play(ctx, alert.Chime), alert.ErrAudioUnavailable)

	off := false
	conn.apply(session, clientMessage{Type: msgSound, Enabled: &off})
	assert.False(t, session.SoundEnabled())

	conn.apply(session, clientMessage{Type: msgNotifications, Permission: "denied"})
	assert.ErrorIs(t, conn.Notify(ctx, alert.Notification{Title: "New order"}), alert.ErrPermissionDenied)
}
