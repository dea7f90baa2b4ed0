package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

const (
	// LightServiceName is the fully-qualified name of the light service
	LightServiceName = "signal.v1.LightService"

	LightServiceListLightsProcedure   = "/signal.v1.LightService/ListLights"
	LightServiceControlLightProcedure = "/signal.v1.LightService/ControlLight"
)

// LightServiceHandler is implemented by Service
type LightServiceHandler interface {
	ListLights(context.Context, *connect.Request[ListLightsRequest]) (*connect.Response[ListLightsResponse], error)
	ControlLight(context.Context, *connect.Request[ControlLightRequest]) (*connect.Response[ControlLightResponse], error)
}

// NewLightServiceHandler builds an HTTP handler for every light service
// procedure and returns the path to mount it on.
func NewLightServiceHandler(svc LightServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	listLightsHandler := connect.NewUnaryHandler(
		LightServiceListLightsProcedure,
		svc.ListLights,
		opts...,
	)
	controlLightHandler := connect.NewUnaryHandler(
		LightServiceControlLightProcedure,
		svc.ControlLight,
		opts...,
	)

	return "/" + LightServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case LightServiceListLightsProcedure:
			listLightsHandler.ServeHTTP(w, r)
		case LightServiceControlLightProcedure:
			controlLightHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// LightServiceClient calls the light service over the Connect protocol
type LightServiceClient struct {
	listLights   *connect.Client[ListLightsRequest, ListLightsResponse]
	controlLight *connect.Client[ControlLightRequest, ControlLightResponse]
}

// NewLightServiceClient creates a client for the service at baseURL
func NewLightServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *LightServiceClient {
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &LightServiceClient{
		listLights: connect.NewClient[ListLightsRequest, ListLightsResponse](
			httpClient, baseURL+LightServiceListLightsProcedure, opts...,
		),
		controlLight: connect.NewClient[ControlLightRequest, ControlLightResponse](
			httpClient, baseURL+LightServiceControlLightProcedure, opts...,
		),
	}
}

func (c *LightServiceClient) ListLights(ctx context.Context, req *connect.Request[ListLightsRequest]) (*connect.Response[ListLightsResponse], error) {
	return c.listLights.CallUnary(ctx, req)
}

func (c *LightServiceClient) ControlLight(ctx context.Context, req *connect.Request[ControlLightRequest]) (*connect.Response[ControlLightResponse], error) {
	return c.controlLight.CallUnary(ctx, req)
}
