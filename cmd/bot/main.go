package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/talebot/internal/audio"
	"github.com/snappy-loop/talebot/internal/bot"
	"github.com/snappy-loop/talebot/internal/config"
	"github.com/snappy-loop/talebot/internal/llm"
	"github.com/snappy-loop/talebot/internal/ops"
	"github.com/snappy-loop/talebot/internal/session"
	"github.com/snappy-loop/talebot/internal/storage"
	"github.com/snappy-loop/talebot/internal/telegram"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Local .env, if present
	_ = godotenv.Load()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Msg("Starting Tale Bot")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	llmClient := llm.NewClient(llm.Options{
		APIKey:        cfg.GeminiAPIKey,
		APIEndpoint:   cfg.GeminiAPIEndpoint,
		ModelPrimary:  cfg.GeminiModelPrimary,
		ModelFallback: cfg.GeminiModelFallback,
		ModelImage:    cfg.GeminiModelImage,
		ModelTTS:      cfg.GeminiModelTTS,
		TTSVoice:      cfg.GeminiTTSVoice,
		TTSMaxInput:   cfg.MaxTTSLength,
		Language:      cfg.StoryLanguage,
		Temperature:   cfg.StoryTemperature,
		MaxTokens:     cfg.StoryMaxTokens,
	})

	encoder := audio.NewEncoder(cfg.FFmpegPath, cfg.VoiceBitrate)
	if !encoder.Available() {
		log.Warn().Str("ffmpeg", cfg.FFmpegPath).Msg("Transcoder not found, voice messages will use baseline audio")
	}

	var archive bot.Archiver
	if cfg.ArchiveEnabled() {
		a, err := storage.NewArchive(
			cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket,
			cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3PublicURL,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize artifact archive")
		}
		archive = a
	}

	transport, err := telegram.New(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Telegram")
	}

	orchestrator := bot.New(
		session.NewMemoryStore(),
		llmClient, llmClient, llmClient,
		encoder,
		transport,
		archive,
		bot.Options{
			MaxNameLength:        cfg.MaxNameLength,
			MaxTopicLength:       cfg.MaxTopicLength,
			OptionalStageTimeout: cfg.OptionalStageTimeout,
		},
	)

	opsSrv := ops.NewServer(cfg.OpsAddr, orchestrator)
	go func() {
		log.Info().Str("addr", cfg.OpsAddr).Msg("Ops server listening")
		if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Ops server failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go transport.Poll(ctx, orchestrator)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ops server shutdown error")
	}
	log.Info().Msg("Bot exited")
}
