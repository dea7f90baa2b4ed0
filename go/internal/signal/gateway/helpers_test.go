package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signalboard/go/internal/models"
	"github.com/mcdev12/signalboard/go/internal/signal"
	"github.com/mcdev12/signalboard/go/internal/signal/events"
	"github.com/stretchr/testify/require"
)

func testLights() []models.TrafficLight {
	timing := models.Timing{Green: 30, Yellow: 5, Red: 40}
	return []models.TrafficLight{
		{ID: "light1", Name: "Main St & 1st Ave", Location: "north", Timing: timing, CurrentState: models.LightStateRed, TimeLeft: 40, AutoControl: true},
		{ID: "light2", Name: "Main St & 2nd Ave", Location: "center", Timing: timing, CurrentState: models.LightStateGreen, TimeLeft: 30, AutoControl: true},
		{ID: "light3", Name: "Main St & 3rd Ave", Location: "south", Timing: timing, CurrentState: models.LightStateYellow, TimeLeft: 5, AutoControl: true},
	}
}

// newTestEngine returns an engine on a fake clock that is never advanced,
// so the only events are the ones a test provokes.
func newTestEngine(t *testing.T) *signal.Engine {
	t.Helper()
	eng, err := signal.NewEngine(testLights(), signal.DefaultAdjustments(),
		signal.WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)
	t.Cleanup(eng.Stop)
	return eng
}

// newTestServer wires a gateway to eng and serves its routes
func newTestServer(t *testing.T, eng *signal.Engine, congestion CongestionReader) (*httptest.Server, *Service) {
	t.Helper()

	svc := NewService(DefaultConfig(), eng, congestion, nil)
	return serveService(t, eng, svc), svc
}

func serveService(t *testing.T, eng *signal.Engine, svc *Service) *httptest.Server {
	t.Helper()
	eng.AddSink(svc.Sink())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Start(ctx)
	}()

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/lights"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event events.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

// readUntil reads events until one of type want arrives and returns everything read
func readUntil(t *testing.T, conn *websocket.Conn, want events.EventType) []events.Event {
	t.Helper()
	var seen []events.Event
	for i := 0; i < 20; i++ {
		event := readEvent(t, conn)
		seen = append(seen, event)
		if event.Type == want {
			return seen
		}
	}
	t.Fatalf("no %s event within 20 messages", want)
	return nil
}

func readResult(t *testing.T, conn *websocket.Conn) events.ManualControlResultPayload {
	t.Helper()
	seen := readUntil(t, conn, events.EventTypeManualControlResult)
	return decode[events.ManualControlResultPayload](t, seen[len(seen)-1])
}

func decode[T any](t *testing.T, event events.Event) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(event.Data, &out))
	return out
}

func manualControl(t *testing.T, conn *websocket.Conn, body string) {
	t.Helper()
	msg := `{"type":"manualControl","data":` + body + `}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func intPtr(i int) *int { return &i }
