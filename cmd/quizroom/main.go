package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quizroom/quizroom/internal/quiz/gateway"
	"github.com/quizroom/quizroom/internal/quiz/match"
	"github.com/quizroom/quizroom/internal/quiz/questions"
	"github.com/quizroom/quizroom/internal/quiz/room"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	cfg, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Warn().Err(err).Msg("using default config")
		cfg = defaultConfig()
	}

	apiKey := os.Getenv("QUIZ_API_KEY")
	if apiKey == "" {
		log.Warn().Msg("QUIZ_API_KEY not set; question fetches will come back empty")
	}
	source := questions.NewClient(questions.ClientConfig{
		APIKey:          apiKey,
		QuestionSeconds: cfg.Game.QuestionSeconds,
	})

	var recorder match.Recorder = match.NopRecorder{}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsRecorder, err := match.NewNATSRecorder(match.DefaultNATSConfig(natsURL))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect match recorder")
		}
		defer natsRecorder.Close()
		recorder = natsRecorder
	}

	connConfig := gateway.DefaultConnectionConfig()
	connConfig.AllowedOrigins = cfg.Server.AllowedOrigins
	cm := gateway.NewConnectionManager(connConfig)

	roomService := room.NewService(room.Config{
		Registry:    room.NewRegistry(),
		Source:      source,
		Broadcaster: cm,
		Recorder:    recorder,
		Clock:       clockwork.NewRealClock(),
		Settings: room.Settings{
			MaxPlayers:    cfg.Game.MaxPlayers,
			QuestionBatch: cfg.Game.QuestionBatch,
		},
	})
	gateway.NewService(cm, roomService)

	server := setupServer(cfg, gateway.NewWebSocketHandler(cm))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cm.Start(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
