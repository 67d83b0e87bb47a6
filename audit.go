package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ang60/gap-analysis-sub001/internal/audit"
	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

// Audit action constant aliases.
const (
	AuditActionCreate   = audit.ActionCreate
	AuditActionUpdate   = audit.ActionUpdate
	AuditActionDelete   = audit.ActionDelete
	AuditActionExport   = audit.ActionExport
	AuditActionLogin    = audit.ActionLogin
	AuditActionLogout   = audit.ActionLogout
	AuditActionApprove  = audit.ActionApprove
	AuditActionReject   = audit.ActionReject
	AuditActionComplete = audit.ActionComplete
)

// logAudit appends an audit row for the acting user, stamped with the
// request's resolved organization, and broadcasts the change to that
// organization's websocket clients.
func logAudit(r *http.Request, action, module, recordID, summary string) {
	userID, _, orgID := currentUser(r)
	audit.LogAudit(db, wsHub, orgID, userID, getUsername(r), action, module, recordID, summary)
}

// logAuditDirect records an audit row outside of an authenticated request
// context (login, registration, background work).
func logAuditDirect(orgID, userID int, username, action, module, recordID, summary string) {
	audit.LogAudit(db, wsHub, orgID, userID, username, action, module, recordID, summary)
}

func handleAuditLog(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	_, role, _ := currentUser(r)

	page, limit := parsePagination(r)
	module := r.URL.Query().Get("module")
	user := r.URL.Query().Get("user")
	search := r.URL.Query().Get("search")
	dateFrom := r.URL.Query().Get("from")
	dateTo := r.URL.Query().Get("to")

	var args []interface{}
	conditions := []string{"organization_id = ?"}
	args = append(args, orgID)
	// Super admins may read the whole trail.
	if role == auth.RoleSuperAdmin && r.URL.Query().Get("all") == "true" {
		conditions = conditions[:0]
		args = args[:0]
	}
	if module != "" {
		conditions = append(conditions, "module = ?")
		args = append(args, module)
	}
	if user != "" {
		conditions = append(conditions, "username = ?")
		args = append(args, user)
	}
	if search != "" {
		conditions = append(conditions, "(summary LIKE ? OR action LIKE ? OR module LIKE ? OR record_id LIKE ?)")
		s := "%" + search + "%"
		args = append(args, s, s, s, s)
	}
	if dateFrom != "" {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, dateFrom)
	}
	if dateTo != "" {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, dateTo+" 23:59:59")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	db.QueryRow("SELECT COUNT(*) FROM audit_log"+whereClause, args...).Scan(&total)

	offset := (page - 1) * limit
	query := `SELECT id, organization_id, COALESCE(user_id, 0), COALESCE(username,'system'), action, module, record_id,
		COALESCE(summary,''), COALESCE(ip_address,''), COALESCE(user_agent,''), created_at
		FROM audit_log` + whereClause + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	queryArgs := append(args, limit, offset)

	rows, err := db.Query(query, queryArgs...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var items []AuditEntry
	for rows.Next() {
		var e AuditEntry
		rows.Scan(&e.ID, &e.OrganizationID, &e.UserID, &e.Username, &e.Action, &e.Module, &e.RecordID,
			&e.Summary, &e.IPAddress, &e.UserAgent, &e.CreatedAt)
		items = append(items, e)
	}
	if items == nil {
		items = []AuditEntry{}
	}
	jsonRespMeta(w, items, total, page, limit)
}

func handleAuditCleanup(w http.ResponseWriter, r *http.Request) {
	days := 365
	if d := r.URL.Query().Get("days"); d != "" {
		if n, err := strconv.Atoi(d); err == nil && n >= 30 {
			days = n
		}
	}
	deleted, err := audit.CleanupOldAuditLogs(db, days)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	jsonResp(w, map[string]interface{}{"deleted": deleted, "retention_days": days})
}
