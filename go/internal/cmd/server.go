package main

import (
	"fmt"
	"net/http"

	"github.com/mcdev12/signalboard/go/internal/config"
	"github.com/mcdev12/signalboard/go/internal/metrics"
	"github.com/mcdev12/signalboard/go/internal/signal/rpc"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, services)
	setupHealthCheck(mux)
	mux.Handle("GET /metrics", metrics.Handler(services.Registry))

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Live updates and the HTTP control surface
	services.Gateway.RegisterRoutes(mux)

	// Register light service
	lightServicePath, lightServiceHandler := rpc.NewLightServiceHandler(services.Lights)
	mux.Handle(lightServicePath, lightServiceHandler)
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
