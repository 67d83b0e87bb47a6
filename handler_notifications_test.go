package main

import (
	"fmt"
	"testing"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

func TestListNotificationsOwnOnly(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	me := createTestUser(t, orgID, "me@acme.test", auth.RoleStaff)
	them := createTestUser(t, orgID, "them@acme.test", auth.RoleStaff)
	token := createTestSession(t, me)

	createNotification(orgID, me, "info", "Mine", "for me", "")
	createNotification(orgID, them, "info", "Theirs", "for them", "")

	w := doRequest(t, token, "GET", "/api/v1/notifications", nil)
	assertStatus(t, w, 200)

	var items []Notification
	decodeData(t, w, &items)
	if len(items) != 1 || items[0].Title != "Mine" {
		t.Errorf("notifications = %+v", items)
	}
}

func TestNotificationDedupeByReference(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	userID := createTestUser(t, orgID, "me@acme.test", auth.RoleStaff)

	createNotification(orgID, userID, "schedule_overdue", "Overdue", "first", "schedule_overdue:1")
	createNotification(orgID, userID, "schedule_overdue", "Overdue", "second", "schedule_overdue:1")
	// An empty reference never dedupes.
	createNotification(orgID, userID, "info", "Plain", "a", "")
	createNotification(orgID, userID, "info", "Plain", "b", "")

	var count int
	db.QueryRow("SELECT COUNT(*) FROM notifications WHERE user_id = ?", userID).Scan(&count)
	if count != 3 {
		t.Errorf("notifications = %d, want 3", count)
	}
}

func TestUnreadFilterAndMarkRead(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	userID := createTestUser(t, orgID, "me@acme.test", auth.RoleStaff)
	token := createTestSession(t, userID)

	createNotification(orgID, userID, "info", "One", "1", "")
	createNotification(orgID, userID, "info", "Two", "2", "")

	w := doRequest(t, token, "GET", "/api/v1/notifications?unread=true", nil)
	var items []Notification
	decodeData(t, w, &items)
	if len(items) != 2 {
		t.Fatalf("unread = %d, want 2", len(items))
	}

	w = doRequest(t, token, "POST", fmt.Sprintf("/api/v1/notifications/%d/read", items[0].ID), nil)
	assertStatus(t, w, 200)

	w = doRequest(t, token, "GET", "/api/v1/notifications?unread=true", nil)
	decodeData(t, w, &items)
	if len(items) != 1 {
		t.Errorf("unread after mark = %d, want 1", len(items))
	}
}

func TestMarkForeignNotification404(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	owner := createTestUser(t, orgID, "owner@acme.test", auth.RoleStaff)
	intruder := createTestUser(t, orgID, "intruder@acme.test", auth.RoleStaff)
	token := createTestSession(t, intruder)

	createNotification(orgID, owner, "info", "Private", "x", "")
	var nid int
	db.QueryRow("SELECT id FROM notifications WHERE user_id = ?", owner).Scan(&nid)

	w := doRequest(t, token, "POST", fmt.Sprintf("/api/v1/notifications/%d/read", nid), nil)
	assertStatus(t, w, 404)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	userID := createTestUser(t, orgID, "me@acme.test", auth.RoleStaff)
	token := createTestSession(t, userID)

	createNotification(orgID, userID, "info", "One", "1", "")
	createNotification(orgID, userID, "info", "Two", "2", "")

	w := doRequest(t, token, "POST", "/api/v1/notifications/read-all", nil)
	assertStatus(t, w, 200)

	var resp struct {
		Marked int `json:"marked"`
	}
	decodeData(t, w, &resp)
	if resp.Marked != 2 {
		t.Errorf("marked = %d, want 2", resp.Marked)
	}

	var unread int
	db.QueryRow("SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0", userID).Scan(&unread)
	if unread != 0 {
		t.Errorf("unread = %d, want 0", unread)
	}
}
