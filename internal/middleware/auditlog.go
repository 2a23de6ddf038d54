// Package middleware - auditlog.go
//
// Audit logging for the control-plane admin API: every request is recorded
// as a ports.AuditRecord (who, what, on which tenant/fleet) so operators can
// answer "who did what when" without grepping application logs.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/ringforge/internal/logger"
	"github.com/streamspace-dev/ringforge/internal/ports"
)

// AuditEvent is the request-scoped data captured for one audit entry before
// it is flattened into a ports.AuditRecord.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	Actor       string                 `json:"actor,omitempty"`
	TenantID    string                 `json:"tenant_id,omitempty"`
	FleetID     string                 `json:"fleet_id,omitempty"`
	Action      string                 `json:"action"`
	Resource    string                 `json:"resource"`
	Method      string                 `json:"method"`
	Path        string                 `json:"path"`
	StatusCode  int                    `json:"status_code"`
	IPAddress   string                 `json:"ip_address"`
	UserAgent   string                 `json:"user_agent"`
	Duration    int64                  `json:"duration_ms"`
	RequestBody map[string]interface{} `json:"request_body,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// AuditLogger writes one AuditEvent per request to a ports.AuditSink. If the
// sink is nil, audit logging is a no-op (useful for tests).
type AuditLogger struct {
	sink            ports.AuditSink
	logRequestBody  bool
	sensitiveFields []string
}

// NewAuditLogger wires a sink-backed audit logger. logBodies controls
// whether request bodies (redacted) are attached to the event detail.
func NewAuditLogger(sink ports.AuditSink, logBodies bool) *AuditLogger {
	return &AuditLogger{
		sink:            sink,
		logRequestBody:  logBodies,
		sensitiveFields: []string{"password", "token", "secret", "apiKey", "api_key"},
	}
}

// redactSensitiveData replaces sensitive field values with a redaction
// marker, recursing into nested objects. Arrays are not recursed into.
func (a *AuditLogger) redactSensitiveData(data map[string]interface{}) map[string]interface{} {
	redacted := make(map[string]interface{}, len(data))
	for key, value := range data {
		isSensitive := false
		for _, field := range a.sensitiveFields {
			if key == field {
				isSensitive = true
				break
			}
		}
		switch {
		case isSensitive:
			redacted[key] = "[REDACTED]"
		default:
			if nested, ok := value.(map[string]interface{}); ok {
				redacted[key] = a.redactSensitiveData(nested)
			} else {
				redacted[key] = value
			}
		}
	}
	return redacted
}

func (a *AuditLogger) logEvent(event *AuditEvent) {
	if a.sink == nil {
		return
	}
	detail, _ := json.Marshal(map[string]interface{}{
		"method":       event.Method,
		"path":         event.Path,
		"status_code":  event.StatusCode,
		"duration_ms":  event.Duration,
		"request_body": event.RequestBody,
		"error":        event.Error,
		"ip_address":   event.IPAddress,
		"user_agent":   event.UserAgent,
	})
	rec := &ports.AuditRecord{
		TenantID:  event.TenantID,
		FleetID:   event.FleetID,
		Actor:     event.Actor,
		Action:    event.Action,
		Detail:    string(detail),
		Timestamp: event.Timestamp,
	}
	if err := a.sink.Record(context.Background(), rec); err != nil {
		logger.HTTP().Warn().Err(err).Msg("failed to write audit record")
	}
}

// Middleware returns the Gin handler that captures and asynchronously
// records one audit event per request. Expects the admin-key middleware to
// have set "actor" and "tenant_id" in the Gin context when applicable.
func (a *AuditLogger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var requestBody map[string]interface{}
		if a.logRequestBody && c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			if len(bodyBytes) > 0 && len(bodyBytes) < 10240 {
				json.Unmarshal(bodyBytes, &requestBody)
				requestBody = a.redactSensitiveData(requestBody)
			}
		}

		c.Next()

		actor, _ := c.Get("actor")
		tenantID, _ := c.Get("tenant_id")
		fleetID, _ := c.Get("fleet_id")

		event := &AuditEvent{
			Timestamp:   startTime,
			Actor:       asString(actor),
			TenantID:    asString(tenantID),
			FleetID:     asString(fleetID),
			Action:      c.Request.Method,
			Resource:    c.Request.URL.Path,
			Method:      c.Request.Method,
			Path:        c.Request.URL.Path,
			StatusCode:  c.Writer.Status(),
			IPAddress:   c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
			Duration:    time.Since(startTime).Milliseconds(),
			RequestBody: requestBody,
		}
		if len(c.Errors) > 0 {
			event.Error = c.Errors.String()
		}

		go a.logEvent(event)
	}
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
