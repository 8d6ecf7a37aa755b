package main

import (
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/andarbahar/go/internal/metrics"
	"github.com/mcdev12/andarbahar/go/internal/table/admin"
)

func setupServer(port string, services *Services) *http.Server {
	mux := http.NewServeMux()

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
	mux.Handle("GET /metrics", metrics.Handler())

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(c.Handler(mux), &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Websocket, table state and connection stats
	services.Gateway.RegisterRoutes(mux)

	// Operator control API
	adminPath, adminHandler := admin.NewHandler(
		services.Admin,
		connect.WithInterceptors(admin.NewAuthInterceptor(services.Auth)),
	)
	mux.Handle(adminPath, adminHandler)
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
