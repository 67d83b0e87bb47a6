package audit

import (
	"database/sql"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ang60/gap-analysis-sub001/internal/models"
	"github.com/ang60/gap-analysis-sub001/internal/websocket"
)

// Action constants.
const (
	ActionCreate   = "CREATE"
	ActionUpdate   = "UPDATE"
	ActionDelete   = "DELETE"
	ActionExport   = "EXPORT"
	ActionLogin    = "LOGIN"
	ActionLogout   = "LOGOUT"
	ActionApprove  = "APPROVE"
	ActionReject   = "REJECT"
	ActionComplete = "COMPLETE"
)

// AuditEntry re-exports the model type for callers.
type AuditEntry = models.AuditEntry

// LogAudit appends an organization-stamped audit row and pushes a change
// event to that organization's websocket clients.
func LogAudit(db *sql.DB, hub *websocket.Hub, orgID, userID int, username, action, module, recordID, summary string) {
	_, err := db.Exec(`INSERT INTO audit_log (organization_id, user_id, username, action, module, record_id, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		orgID, userID, username, action, module, recordID, summary)
	if err != nil {
		log.Printf("audit log error: %v", err)
	}
	if hub != nil {
		hub.Broadcast(orgID, websocket.Event{
			Type:   module + "_" + strings.ToLower(action) + "d",
			ID:     recordID,
			Action: action,
		})
	}
}

// GetClientIP extracts the real client IP from the request (handles proxies).
func GetClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// CleanupOldAuditLogs deletes audit log entries older than retentionDays.
func CleanupOldAuditLogs(db *sql.DB, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result, err := db.Exec("DELETE FROM audit_log WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
