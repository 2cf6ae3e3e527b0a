package logging

import (
	"context"
	"io"
	"os"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/saude-al/ambulatorio/internal/shared/config"
)

// Init configures the global zerolog logger and returns it
func Init(serviceName string, cfg config.LogConfig) zerolog.Logger {
	return InitWriter(serviceName, cfg, os.Stdout)
}

// InitWriter is Init with an explicit output
func InitWriter(serviceName string, cfg config.LogConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}).With().
			Timestamp().
			Str("service", serviceName).
			Logger()
	} else {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		log.Logger = zerolog.New(out).
			With().
			Timestamp().
			Caller().
			Str("service", serviceName).
			Logger()
	}

	return log.Logger
}

// FromContext returns the global logger annotated with the request ID, if any
func FromContext(ctx context.Context) *zerolog.Logger {
	logger := log.With().Logger()
	if rid := chimw.GetReqID(ctx); rid != "" {
		logger = logger.With().Str("request_id", rid).Logger()
	}
	return &logger
}
