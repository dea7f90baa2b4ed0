package rpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signalboard/go/internal/models"
	"github.com/mcdev12/signalboard/go/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, app LightsApp) *LightServiceClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(NewLightServiceHandler(NewService(app)))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewLightServiceClient(srv.Client(), srv.URL)
}

func newTestEngine(t *testing.T) *signal.Engine {
	t.Helper()
	lights := []models.TrafficLight{
		{ID: "light1", Name: "Main St & 1st Ave", Timing: models.Timing{Green: 30, Yellow: 5, Red: 40}, CurrentState: models.LightStateRed, AutoControl: true},
		{ID: "light2", Name: "Main St & 2nd Ave", Timing: models.Timing{Green: 30, Yellow: 5, Red: 40}, CurrentState: models.LightStateGreen, AutoControl: true},
	}
	eng, err := signal.NewEngine(lights, signal.DefaultAdjustments(), signal.WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)
	t.Cleanup(eng.Stop)
	return eng
}

func TestListLights(t *testing.T) {
	client := newTestClient(t, newTestEngine(t))

	resp, err := client.ListLights(context.Background(), connect.NewRequest(&ListLightsRequest{}))
	require.NoError(t, err)

	require.Len(t, resp.Msg.TrafficLights, 2)
	assert.Equal(t, "light1", resp.Msg.TrafficLights[0].ID)
	assert.Equal(t, 40, resp.Msg.TrafficLights[0].TimeLeft)
	assert.Equal(t, models.LightStateGreen, resp.Msg.TrafficLights[1].CurrentState)
}

func TestControlLight(t *testing.T) {
	eng := newTestEngine(t)
	client := newTestClient(t, eng)
	duration := 9

	resp, err := client.ControlLight(context.Background(), connect.NewRequest(&ControlLightRequest{
		Command: models.ManualCommand{LightID: "light2", State: models.LightStateRed, Duration: &duration},
	}))
	require.NoError(t, err)

	assert.Equal(t, models.LightStatus{ID: "light2", CurrentState: models.LightStateRed, TimeLeft: 9, AutoControl: true}, resp.Msg.Light)
	light, err := eng.Light("light2")
	require.NoError(t, err)
	assert.Equal(t, models.LightStateRed, light.CurrentState)
}

type failingApp struct{}

func (failingApp) Snapshot() []models.LightSnapshot { return nil }

func (failingApp) ApplyManualCommand(models.ManualCommand) (models.LightStatus, error) {
	return models.LightStatus{}, errors.New("engine unavailable")
}

func TestControlLight_ErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		app      func(t *testing.T) LightsApp
		cmd      models.ManualCommand
		wantCode connect.Code
	}{
		{
			name:     "missing light id",
			app:      func(t *testing.T) LightsApp { return newTestEngine(t) },
			cmd:      models.ManualCommand{State: models.LightStateGreen},
			wantCode: connect.CodeInvalidArgument,
		},
		{
			name:     "invalid state",
			app:      func(t *testing.T) LightsApp { return newTestEngine(t) },
			cmd:      models.ManualCommand{LightID: "light1", State: "amber"},
			wantCode: connect.CodeInvalidArgument,
		},
		{
			name:     "unknown light",
			app:      func(t *testing.T) LightsApp { return newTestEngine(t) },
			cmd:      models.ManualCommand{LightID: "light7", State: models.LightStateGreen},
			wantCode: connect.CodeNotFound,
		},
		{
			name:     "internal",
			app:      func(t *testing.T) LightsApp { return failingApp{} },
			cmd:      models.ManualCommand{LightID: "light1"},
			wantCode: connect.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.app(t))

			_, err := client.ControlLight(context.Background(), connect.NewRequest(&ControlLightRequest{Command: tt.cmd}))
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, connect.CodeOf(err))
		})
	}
}
