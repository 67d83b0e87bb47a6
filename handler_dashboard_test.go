package main

import (
	"testing"
	"time"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

func TestDashboardCounts(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	other := createTestOrg(t, "Other", "other.test")
	branch := createTestBranch(t, orgID, 1, "HQ")
	user := createTestUser(t, orgID, "staff@acme.test", auth.RoleStaff)
	createTestUser(t, other, "noise@other.test", auth.RoleStaff)
	token := createTestSession(t, user)

	reqID := createTestRequirement(t, orgID, "A.5.1", "high")
	createTestGap(t, orgID, reqID, branch, 1, "")

	past := time.Now().AddDate(0, 0, -1).Format("2006-01-02 15:04:05")
	in3 := time.Now().AddDate(0, 0, 3).Format("2006-01-02 15:04:05")
	db.Exec(`INSERT INTO action_plans (action_text, status, deadline, organization_id) VALUES ('late', 'pending', ?, ?)`, past, orgID)
	db.Exec(`INSERT INTO schedules (type, title, due_date, organization_id) VALUES ('audit', 'soon', ?, ?)`, in3, orgID)
	db.Exec(`INSERT INTO risks (title, organization_id) VALUES ('breach', ?)`, orgID)
	createNotification(orgID, user, "info", "Hi", "unread one", "")

	w := doRequest(t, token, "GET", "/api/v1/dashboard", nil)
	assertStatus(t, w, 200)

	var data DashboardData
	decodeData(t, w, &data)
	if data.TotalUsers != 1 {
		t.Errorf("total_users = %d, want 1 (other org excluded)", data.TotalUsers)
	}
	if data.TotalBranches != 1 || data.TotalRequirements != 1 || data.TotalAssessments != 1 {
		t.Errorf("counts = %+v", data)
	}
	if data.TotalActionPlans != 1 || data.OverdueActionPlans != 1 {
		t.Errorf("action plans = %d overdue = %d", data.TotalActionPlans, data.OverdueActionPlans)
	}
	if data.TotalSchedules != 1 || data.UpcomingSchedules != 1 || data.OverdueSchedules != 0 {
		t.Errorf("schedules = %+v", data)
	}
	if data.ActiveRisks != 1 {
		t.Errorf("active_risks = %d, want 1", data.ActiveRisks)
	}
	if data.UnreadNotifications != 1 {
		t.Errorf("unread_notifications = %d, want 1", data.UnreadNotifications)
	}
}

func TestDashboardEmptyOrg(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	user := createTestUser(t, orgID, "staff@acme.test", auth.RoleStaff)
	token := createTestSession(t, user)

	w := doRequest(t, token, "GET", "/api/v1/dashboard", nil)
	assertStatus(t, w, 200)

	var data DashboardData
	decodeData(t, w, &data)
	if data.TotalBranches != 0 || data.TotalRequirements != 0 {
		t.Errorf("data = %+v", data)
	}
}
