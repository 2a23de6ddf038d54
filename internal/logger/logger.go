// Package logger configures the process-wide structured logger used by
// every component of the coordination hub.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global logger instance
var (
	Log zerolog.Logger
)

// Initialize sets up the global logger with configuration
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "ringforge").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance
func GetLogger() *zerolog.Logger {
	return &Log
}

func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Gateway logs the connection gateway (C1): accept, auth, heartbeat, close.
func Gateway() *zerolog.Logger { return component("gateway") }

// Fleet logs the fleet router / pub-sub fabric (C2).
func Fleet() *zerolog.Logger { return component("fleet") }

// Presence logs the presence index (C3).
func Presence() *zerolog.Logger { return component("presence") }

// Memory logs the shared memory service (C4).
func Memory() *zerolog.Logger { return component("memory") }

// TaskRouter logs direct messaging and task routing (C5).
func TaskRouter() *zerolog.Logger { return component("task_router") }

// EventLog logs the durable event log and replay engine (X1).
func EventLog() *zerolog.Logger { return component("event_log") }

// Quota logs the quota/rate-limit/idempotency layer (X2).
func Quota() *zerolog.Logger { return component("quota") }

// Database logs the metadata store.
func Database() *zerolog.Logger { return component("database") }

// HTTP logs the control-plane HTTP surface.
func HTTP() *zerolog.Logger { return component("http") }

// Security logs auth and audit events.
func Security() *zerolog.Logger { return component("security") }
