package rpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/mcdev12/signalboard/go/internal/models"
	"github.com/mcdev12/signalboard/go/internal/signal"
)

type ListLightsRequest struct{}

type ListLightsResponse struct {
	TrafficLights []models.LightSnapshot `json:"trafficLights"`
}

type ControlLightRequest struct {
	Command models.ManualCommand `json:"command"`
}

type ControlLightResponse struct {
	Light models.LightStatus `json:"light"`
}

// LightsApp defines what the service layer needs from the timing engine
type LightsApp interface {
	Snapshot() []models.LightSnapshot
	ApplyManualCommand(cmd models.ManualCommand) (models.LightStatus, error)
}

// Service implements the light service over Connect
type Service struct {
	app LightsApp
}

// NewService creates a new light service
func NewService(app LightsApp) *Service {
	return &Service{
		app: app,
	}
}

var _ LightServiceHandler = (*Service)(nil)

// ListLights returns every light in configuration order
func (s *Service) ListLights(ctx context.Context, req *connect.Request[ListLightsRequest]) (*connect.Response[ListLightsResponse], error) {
	return connect.NewResponse(&ListLightsResponse{
		TrafficLights: s.app.Snapshot(),
	}), nil
}

// ControlLight applies a manual command
func (s *Service) ControlLight(ctx context.Context, req *connect.Request[ControlLightRequest]) (*connect.Response[ControlLightResponse], error) {
	status, err := s.app.ApplyManualCommand(req.Msg.Command)
	if err != nil {
		return nil, connect.NewError(codeForError(err), err)
	}

	return connect.NewResponse(&ControlLightResponse{
		Light: status,
	}), nil
}

func codeForError(err error) connect.Code {
	switch {
	case errors.Is(err, signal.ErrMissingLightID),
		errors.Is(err, signal.ErrInvalidState),
		errors.Is(err, signal.ErrInvalidDuration):
		return connect.CodeInvalidArgument
	case errors.Is(err, signal.ErrLightNotFound):
		return connect.CodeNotFound
	default:
		return connect.CodeInternal
	}
}
