package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"banking-ledger/internal/core/domain"
	"banking-ledger/internal/core/ports"
	"banking-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog records every completed write request that maps to an audit
// action, successful or not. Throttled requests are not recorded. Handlers
// may set CtxResourceID.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		if c.Writer.Status() == http.StatusTooManyRequests {
			return
		}

		action, resourceType := mapPathToAction(c.Request.URL.Path, c.Request.Method)
		if action == "" {
			return
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"request_id": c.GetString(response.RequestIDKey),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.GetString(CtxResourceID),
			ClientKey:    ClientKey(c),
			StatusCode:   c.Writer.Status(),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    domain.Timestamp(time.Now()),
		})
	}
}

func mapPathToAction(path, method string) (domain.AuditAction, string) {
	path = strings.TrimSuffix(path, "/")
	switch {
	case path == "/api/accounts" && method == http.MethodPost:
		return domain.AuditActionAccountCreate, "account"
	case path == "/api/transactions/transfer" && method == http.MethodPost:
		return domain.AuditActionTransfer, "transaction"
	}
	return "", ""
}
