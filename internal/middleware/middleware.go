package middleware

import (
	"net/http"
	"strings"

	apierrors "github.com/aimerfeng/ContribChain/internal/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys for request scoped values
const (
	ContextKeyUserID        = "user_id"
	ContextKeyRequestID     = "request_id"
	ContextKeyCorrelationID = "correlation_id"
)

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, err *apierrors.APIError) {
	response := apierrors.NewErrorResponse(
		err,
		GetRequestIDFromContext(c),
		GetCorrelationIDFromContext(c),
		c.Request.URL.Path,
		c.Request.Method,
	)
	c.JSON(err.HTTPStatus, response)
}

// GetUserIDFromContext returns the identity resolved by RequireIdentity
func GetUserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// CorrelationID adds a correlation ID for tracing a request across services.
// An upstream X-Correlation-ID is kept, otherwise the request ID is used.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = c.GetString(ContextKeyRequestID)
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
		}
		c.Set(ContextKeyCorrelationID, correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

// GetCorrelationIDFromContext extracts the correlation ID from the gin context
func GetCorrelationIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}

// GetRequestIDFromContext extracts the request ID from the gin context
func GetRequestIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// CORS configures CORS headers
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			if o == origin || o == "*" {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Correlation-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-Correlation-ID, Retry-After")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "43200")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// extractBearerToken extracts the token from a Bearer authorization header
func extractBearerToken(authHeader string) (string, bool) {
	const bearerPrefix = "Bearer "
	if len(authHeader) <= len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	return token, token != ""
}
