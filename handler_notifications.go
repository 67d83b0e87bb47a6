package main

import (
	"net/http"
	"strings"
)

// createNotification inserts a notification for one user and pushes it over
// the organization's websocket channel. Duplicate references are skipped so
// background reminders fire once per event.
func createNotification(orgID, userID int, ntype, title, message, reference string) {
	if reference != "" {
		var dup int
		db.QueryRow("SELECT COUNT(*) FROM notifications WHERE user_id = ? AND reference = ?",
			userID, reference).Scan(&dup)
		if dup > 0 {
			return
		}
	}
	res, err := db.Exec(`INSERT INTO notifications (user_id, type, title, message, reference, organization_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, ntype, title, message, reference, orgID)
	if err != nil {
		return
	}
	id, _ := res.LastInsertId()
	broadcastChange(orgID, "notification", "create", int(id))
}

func handleNotifications(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/notifications")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == "GET":
		listNotifications(w, r)
	case path == "read-all" && r.Method == "POST":
		markAllNotificationsRead(w, r)
	default:
		parts := strings.Split(path, "/")
		id, ok := parseIntParam(w, parts[0])
		if !ok {
			return
		}
		if len(parts) == 2 && parts[1] == "read" && r.Method == "POST" {
			markNotificationRead(w, r, id)
			return
		}
		jsonErr(w, "Not found", 404)
	}
}

// listNotifications returns the caller's own notifications only.
func listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, _, orgID := currentUser(r)
	if userID == 0 {
		jsonErr(w, "Unauthorized", 401)
		return
	}

	conditions := []string{"user_id = ?", "organization_id = ?"}
	args := []interface{}{userID, orgID}
	if r.URL.Query().Get("unread") == "true" {
		conditions = append(conditions, "is_read = 0")
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page, limit := parsePagination(r)
	var total int
	db.QueryRow("SELECT COUNT(*) FROM notifications"+where, args...).Scan(&total)

	offset := (page - 1) * limit
	rows, err := db.Query(`SELECT id, user_id, type, COALESCE(title,''), message, COALESCE(reference,''),
		is_read, organization_id, created_at
		FROM notifications`+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var items []Notification
	for rows.Next() {
		var n Notification
		rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Reference,
			&n.IsRead, &n.OrganizationID, &n.CreatedAt)
		items = append(items, n)
	}
	if items == nil {
		items = []Notification{}
	}
	jsonRespMeta(w, items, total, page, limit)
}

func markNotificationRead(w http.ResponseWriter, r *http.Request, id int) {
	userID, _, _ := currentUser(r)
	if userID == 0 {
		jsonErr(w, "Unauthorized", 401)
		return
	}
	res, err := db.Exec("UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "Notification not found", 404)
		return
	}
	jsonResp(w, map[string]interface{}{"id": id, "is_read": 1})
}

func markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := currentUser(r)
	if userID == 0 {
		jsonErr(w, "Unauthorized", 401)
		return
	}
	res, err := db.Exec("UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0", userID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	n, _ := res.RowsAffected()
	jsonResp(w, map[string]interface{}{"marked": n})
}
