// Package logging configures zerolog and provides the structured log records
// shared by the HTTP layer, the AI adapters and the admin API.
package logging

import (
	"io"
	"os"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/auswanderer-plattform/backend/internal/config"
)

const serviceName = "auswanderer-ai"

// Setup initializes the global logger. Production and LOG_FORMAT=json log JSON
// to stdout; everything else gets the console writer with caller info.
func Setup(cfg *config.LoggingConfig, env string) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	jsonOutput := cfg.Format == "json" || env == "production"

	var output io.Writer = os.Stdout
	if !jsonOutput {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(output).With().
		Timestamp().
		Str("service", serviceName).
		Str("env", env)
	if !jsonOutput {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
}

// NewLogger returns a child of the global logger tagged with component
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// quietPaths are probed constantly and only logged at debug level
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// RequestLogger logs one line per request. Must run after the RequestID
// middleware so the id is available.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		case quietPaths[c.Request.URL.Path]:
			event = log.Debug()
		default:
			event = log.Info()
		}

		event.
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("route", route).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("body_size", c.Writer.Size())
		if userID := c.GetString("user_id"); userID != "" {
			event.Str("user_id", userID)
		}
		if len(c.Errors) > 0 {
			event.Str("errors", c.Errors.String())
		}
		event.Msg("HTTP request")
	}
}

// AICallLogEntry is the structured record of one adapter call
type AICallLogEntry struct {
	Operation    string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Latency      time.Duration
	Status       string
	Error        string
}

// LogAICall logs an AI provider call. Failed calls are warnings: the factory
// usually recovers by moving to the next provider.
func LogAICall(entry *AICallLogEntry) {
	event := log.Info()
	if entry.Status == "error" {
		event = log.Warn().Str("error", entry.Error)
	}

	event.
		Str("component", "ai").
		Str("operation", entry.Operation).
		Str("provider", entry.Provider).
		Str("model", entry.Model).
		Int("input_tokens", entry.InputTokens).
		Int("output_tokens", entry.OutputTokens).
		Float64("cost_usd", entry.CostUSD).
		Dur("latency", entry.Latency).
		Str("status", entry.Status).
		Msg("AI call")
}

// LogAdminAction records a change made through the admin API
func LogAdminAction(action, adminID, targetID string, fields map[string]any) {
	log.Info().
		Str("event_type", "admin_action").
		Str("action", action).
		Str("admin_id", adminID).
		Str("target_id", targetID).
		Fields(fields).
		Msg("Admin action")
}

// LogSecurityEvent logs failed logins, denied roles and similar events
func LogSecurityEvent(eventType, userID, clientIP, details string) {
	log.Warn().
		Str("event_type", eventType).
		Str("user_id", userID).
		Str("client_ip", clientIP).
		Str("details", SanitizeForLog(details, 200)).
		Msg("Security event")
}

// LogError logs an error that is answered with a generic 500
func LogError(err error, requestID, component, operation string) {
	log.Error().
		Err(err).
		Str("request_id", requestID).
		Str("component", component).
		Str("operation", operation).
		Msg("Request failed")
}

// secretPattern matches vendor API keys that error bodies sometimes echo back
var secretPattern = regexp.MustCompile(`(sk-(?:ant-)?[A-Za-z0-9_\-]{8,}|gsk_[A-Za-z0-9]{8,}|AIza[A-Za-z0-9_\-]{20,})`)

// SanitizeForLog redacts API keys and truncates data to maxLen bytes
func SanitizeForLog(data string, maxLen int) string {
	data = secretPattern.ReplaceAllString(data, "[REDACTED]")
	if maxLen > 0 && len(data) > maxLen {
		return data[:maxLen] + "...[truncated]"
	}
	return data
}
