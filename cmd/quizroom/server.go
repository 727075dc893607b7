package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"

	"github.com/quizroom/quizroom/internal/quiz/gateway"
)

func setupServer(cfg *Config, wsHandler *gateway.WebSocketHandler) *http.Server {
	mux := http.NewServeMux()

	wsHandler.RegisterRoutes(mux)
	setupHealthCheck(mux)

	allowedOrigins := cfg.Server.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins:   allowedOrigins,
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", getEnv("PORT", "4000")),
		Handler: c.Handler(mux),
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
