package main

import (
	"net/http"
	"sync"
	"time"
)

// handleDashboard aggregates the per-organization counts the landing page
// needs. The counts are independent, so they run concurrently.
func handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		jsonErr(w, "Method not allowed", 405)
		return
	}
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	userID, _, _ := currentUser(r)

	now := time.Now()
	nowStr := now.Format("2006-01-02 15:04:05")
	weekStr := now.AddDate(0, 0, 7).Format("2006-01-02 15:04:05")

	var data DashboardData
	queries := []struct {
		query string
		args  []interface{}
		dest  *int
	}{
		{"SELECT COUNT(*) FROM users WHERE organization_id = ?", []interface{}{orgID}, &data.TotalUsers},
		{"SELECT COUNT(*) FROM users WHERE organization_id = ? AND active = 1", []interface{}{orgID}, &data.ActiveUsers},
		{"SELECT COUNT(*) FROM branches WHERE organization_id = ?", []interface{}{orgID}, &data.TotalBranches},
		{"SELECT COUNT(*) FROM requirements WHERE organization_id = ?", []interface{}{orgID}, &data.TotalRequirements},
		{"SELECT COUNT(*) FROM gap_assessments WHERE organization_id = ?", []interface{}{orgID}, &data.TotalAssessments},
		{"SELECT COUNT(*) FROM action_plans WHERE organization_id = ?", []interface{}{orgID}, &data.TotalActionPlans},
		{"SELECT COUNT(*) FROM action_plans WHERE organization_id = ? AND deadline IS NOT NULL AND deadline < ? AND status != 'completed'",
			[]interface{}{orgID, nowStr}, &data.OverdueActionPlans},
		{"SELECT COUNT(*) FROM schedules WHERE organization_id = ?", []interface{}{orgID}, &data.TotalSchedules},
		{"SELECT COUNT(*) FROM schedules WHERE organization_id = ? AND due_date < ? AND status != 'completed'",
			[]interface{}{orgID, nowStr}, &data.OverdueSchedules},
		{"SELECT COUNT(*) FROM schedules WHERE organization_id = ? AND due_date >= ? AND due_date <= ? AND status != 'completed'",
			[]interface{}{orgID, nowStr, weekStr}, &data.UpcomingSchedules},
		{"SELECT COUNT(*) FROM risks WHERE organization_id = ? AND status = 'active'", []interface{}{orgID}, &data.ActiveRisks},
		{"SELECT COUNT(*) FROM evidence WHERE organization_id = ? AND status = 'pending'", []interface{}{orgID}, &data.PendingEvidence},
		{"SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0", []interface{}{userID}, &data.UnreadNotifications},
	}

	var wg sync.WaitGroup
	for _, q := range queries {
		wg.Add(1)
		go func(query string, args []interface{}, dest *int) {
			defer wg.Done()
			db.QueryRow(query, args...).Scan(dest)
		}(q.query, q.args, q.dest)
	}
	wg.Wait()

	jsonResp(w, data)
}
