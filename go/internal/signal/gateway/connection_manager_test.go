package gateway

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/signalboard/go/internal/models"
	"github.com/mcdev12/signalboard/go/internal/signal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocket_InitSnapshotMatchesEngine(t *testing.T) {
	eng := newTestEngine(t)
	srv, _ := newTestServer(t, eng, nil)

	_, err := eng.ApplyManualCommand(models.ManualCommand{
		LightID:  "light2",
		State:    models.LightStateRed,
		Duration: intPtr(12),
	})
	require.NoError(t, err)

	conn := dial(t, srv)
	init := readEvent(t, conn)
	require.Equal(t, events.EventTypeInit, init.Type)

	lights := decode[[]models.LightSnapshot](t, init)
	assert.Equal(t, eng.Snapshot(), lights)
	require.Len(t, lights, 3)
	assert.Equal(t, "light2", lights[1].ID)
	assert.Equal(t, models.LightStateRed, lights[1].CurrentState)
	assert.Equal(t, 12, lights[1].TimeLeft)
}

func TestWebSocket_ManualControlRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	srv, _ := newTestServer(t, eng, nil)

	conn := dial(t, srv)
	require.Equal(t, events.EventTypeInit, readEvent(t, conn).Type)

	manualControl(t, conn, `{"lightId":"light1","state":"green","duration":7}`)

	seen := readUntil(t, conn, events.EventTypeManualControlResult)
	require.GreaterOrEqual(t, len(seen), 2)

	transition := seen[len(seen)-2]
	require.Equal(t, events.EventTypeTransition, transition.Type)
	assert.Equal(t, events.TransitionPayload{ID: "light1", State: models.LightStateGreen, TimeLeft: 7},
		decode[events.TransitionPayload](t, transition))

	result := decode[events.ManualControlResultPayload](t, seen[len(seen)-1])
	assert.True(t, result.Success)
	require.NotNil(t, result.Light)
	assert.Equal(t, models.LightStateGreen, result.Light.CurrentState)
	assert.Equal(t, 7, result.Light.TimeLeft)
}

func TestWebSocket_RejectedCommandOnlyAnswersSender(t *testing.T) {
	eng := newTestEngine(t)
	srv, _ := newTestServer(t, eng, nil)

	sender := dial(t, srv)
	other := dial(t, srv)
	require.Equal(t, events.EventTypeInit, readEvent(t, sender).Type)
	require.Equal(t, events.EventTypeInit, readEvent(t, other).Type)
	before := eng.Snapshot()

	manualControl(t, sender, `{"lightId":"light99","state":"green"}`)

	result := readEvent(t, sender)
	require.Equal(t, events.EventTypeManualControlResult, result.Type)
	payload := decode[events.ManualControlResultPayload](t, result)
	assert.False(t, payload.Success)
	assert.Equal(t, "light99", payload.LightID)
	assert.Contains(t, payload.Error, "not found")
	assert.Equal(t, before, eng.Snapshot())

	// the other subscriber sees the next broadcast, not the rejection
	eng.ApplyCongestionAdjustment(models.CongestionMedium)
	assert.Equal(t, events.EventTypeTimingUpdate, readEvent(t, other).Type)
}

func TestWebSocket_InvalidCommands(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "missing light id", body: `{"state":"green"}`, wantErr: "lightId is required"},
		{name: "invalid state", body: `{"lightId":"light1","state":"blue"}`, wantErr: "invalid state"},
		{name: "negative duration", body: `{"lightId":"light1","state":"red","duration":-3}`, wantErr: "must not be negative"},
		{name: "malformed data", body: `{"lightId":42}`, wantErr: "malformed command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t)
			srv, _ := newTestServer(t, eng, nil)
			conn := dial(t, srv)
			readEvent(t, conn)
			before := eng.Snapshot()

			manualControl(t, conn, tt.body)

			result := readEvent(t, conn)
			require.Equal(t, events.EventTypeManualControlResult, result.Type)
			payload := decode[events.ManualControlResultPayload](t, result)
			assert.False(t, payload.Success)
			assert.Contains(t, payload.Error, tt.wantErr)
			assert.Equal(t, before, eng.Snapshot())
		})
	}
}

func TestWebSocket_BroadcastReachesEverySubscriber(t *testing.T) {
	eng := newTestEngine(t)
	srv, _ := newTestServer(t, eng, nil)

	first := dial(t, srv)
	second := dial(t, srv)
	readEvent(t, first)
	readEvent(t, second)

	eng.ApplyCongestionAdjustment(models.CongestionHigh)

	for _, conn := range []*websocket.Conn{first, second} {
		event := readEvent(t, conn)
		require.Equal(t, events.EventTypeTimingUpdate, event.Type)
		timings := decode[[]models.TimingSnapshot](t, event)
		require.Len(t, timings, 3)
		assert.Equal(t, models.Timing{Green: 45, Yellow: 5, Red: 30}, timings[0].Timing)
	}
}

func TestWebSocket_IgnoresUnsupportedMessages(t *testing.T) {
	eng := newTestEngine(t)
	srv, _ := newTestServer(t, eng, nil)
	conn := dial(t, srv)
	readEvent(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello","data":{}}`)))
	manualControl(t, conn, `{"lightId":"light3","autoControl":false}`)

	// the next frame is the answer to the second message
	result := readEvent(t, conn)
	require.Equal(t, events.EventTypeManualControlResult, result.Type)
	payload := decode[events.ManualControlResultPayload](t, result)
	assert.True(t, payload.Success)
	assert.False(t, payload.Light.AutoControl)
}

func TestWebSocket_CommandsAreRateLimited(t *testing.T) {
	eng := newTestEngine(t)
	svc := NewService(Config{ConnectionConfig: func() ConnectionConfig {
		cfg := DefaultConnectionConfig()
		cfg.CommandRate = 0
		cfg.CommandBurst = 1
		return cfg
	}()}, eng, nil, nil)
	srv := serveService(t, eng, svc)

	conn := dial(t, srv)
	readEvent(t, conn)

	manualControl(t, conn, `{"lightId":"light1","autoControl":true}`)
	first := readResult(t, conn)
	assert.True(t, first.Success)

	manualControl(t, conn, `{"lightId":"light1","autoControl":true}`)
	second := readResult(t, conn)
	assert.False(t, second.Success)
	assert.Equal(t, errRateLimited.Error(), second.Error)
}

func TestWebSocket_StatsCountsConnections(t *testing.T) {
	eng := newTestEngine(t)
	srv, svc := newTestServer(t, eng, nil)

	conn := dial(t, srv)
	readEvent(t, conn)
	assert.Equal(t, 1, svc.Sink().ConnectionCount())

	resp, err := http.Get(srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats["total_connections"])

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return svc.Sink().ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
