package middleware

import (
	"net/http"
	"time"

	"banking-ledger/pkg/apperror"
	"banking-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// HeaderAPIKey identifies a client when header keying is enabled.
	HeaderAPIKey    = "X-API-Key"
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxClientKey  = "client_key"
	CtxResourceID = "resource_id"
)

// RequestID propagates X-Request-ID or assigns a fresh one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(response.RequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("request_id", c.GetString(response.RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("request_id", c.GetString(response.RequestIDKey)).
					Str("path", c.Request.URL.Path).
					Msg("panic recovered")
				response.Abort(c, apperror.New(apperror.CodeStorageFailure, "Internal server error", http.StatusInternalServerError))
			}
		}()
		c.Next()
	}
}

// KeySource selects what identifies a caller for rate limiting and audit.
type KeySource string

const (
	KeySourceIP     KeySource = "ip"
	KeySourceHeader KeySource = "header"
)

// ClientIdentity resolves the caller's key once per request and stores it
// under CtxClientKey. X-API-Key is not authenticated here, so KeySourceHeader
// only belongs behind a gateway that verifies the header.
func ClientIdentity(source KeySource) gin.HandlerFunc {
	return func(c *gin.Context) {
		if source == KeySourceHeader {
			if key := c.GetHeader(HeaderAPIKey); key != "" {
				c.Set(CtxClientKey, "key:"+key)
				c.Next()
				return
			}
		}
		c.Set(CtxClientKey, "ip:"+c.ClientIP())
		c.Next()
	}
}

// ClientKey returns the key set by ClientIdentity, or the client IP.
func ClientKey(c *gin.Context) string {
	if key := c.GetString(CtxClientKey); key != "" {
		return key
	}
	return "ip:" + c.ClientIP()
}
