package logging

import (
	"io"
	"os"
	"time"

	"github.com/aimerfeng/ContribChain/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Setup initializes the global logger based on configuration
func Setup(cfg *config.LoggingConfig, env string) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer
	if cfg.Format == "json" || env == "production" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "contribchain").
		Logger()
}

// NewLogger creates a new logger with additional context
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// RequestLogger is a Gin middleware for structured request logging
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= 500 {
			event = log.Error()
		} else if status >= 400 {
			event = log.Warn()
		}

		if userID, ok := c.Get("user_id"); ok {
			event = event.Interface("user_id", userID)
		}
		if len(c.Errors) > 0 {
			event = event.Str("error", c.Errors.String())
		}

		event.
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}

// LogContributionTransition logs a contribution status change
func LogContributionTransition(contributionID, actorID, from, to string) {
	log.Info().
		Str("contribution_id", contributionID).
		Str("actor_id", actorID).
		Str("from", from).
		Str("to", to).
		Msg("Contribution transition")
}

// LogRewardIssued logs a newly created reward token
func LogRewardIssued(tokenID, contributionID, userID string, amount decimal.Decimal) {
	log.Info().
		Str("token_id", tokenID).
		Str("contribution_id", contributionID).
		Str("user_id", userID).
		Str("amount", amount.String()).
		Msg("Reward issued")
}

// LogRewardOutcome logs a ledger outcome reported for a token
func LogRewardOutcome(tokenID, status, txHash string) {
	log.Info().
		Str("token_id", tokenID).
		Str("status", status).
		Str("tx_hash", txHash).
		Msg("Reward outcome")
}

// LogBadgeAwarded logs a badge award
func LogBadgeAwarded(userBadgeID, userID, badgeID string) {
	log.Info().
		Str("user_badge_id", userBadgeID).
		Str("user_id", userID).
		Str("badge_id", badgeID).
		Msg("Badge awarded")
}

// LogSecurityEvent logs security-related events
func LogSecurityEvent(eventType, userID, clientIP, details string) {
	log.Warn().
		Str("event_type", eventType).
		Str("user_id", userID).
		Str("client_ip", clientIP).
		Str("details", details).
		Msg("Security event")
}

// LogError logs an error with context
func LogError(err error, requestID, component, operation string) {
	log.Error().
		Err(err).
		Str("request_id", requestID).
		Str("component", component).
		Str("operation", operation).
		Msg("Error occurred")
}

// SanitizeForLog removes sensitive data from strings for logging
func SanitizeForLog(data string, maxLen int) string {
	if len(data) > maxLen {
		return data[:maxLen] + "...[truncated]"
	}
	return data
}
