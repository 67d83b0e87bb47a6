package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

func handleActionPlans(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/action-plans")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == "GET":
		listActionPlans(w, r)
	case path == "" && r.Method == "POST":
		createActionPlan(w, r)
	case path == "overdue" && r.Method == "GET":
		listOverdueActionPlans(w, r)
	case path == "upcoming" && r.Method == "GET":
		listUpcomingActionPlans(w, r)
	case path == "statistics" && r.Method == "GET":
		getActionPlanStatistics(w, r)
	default:
		parts := strings.Split(path, "/")
		id, ok := parseIntParam(w, parts[0])
		if !ok {
			return
		}
		if len(parts) == 2 && parts[1] == "complete" && r.Method == "POST" {
			completeActionPlan(w, r, id)
			return
		}
		switch r.Method {
		case "GET":
			getActionPlan(w, r, id)
		case "PUT":
			updateActionPlan(w, r, id)
		case "DELETE":
			deleteActionPlan(w, r, id)
		default:
			jsonErr(w, "Method not allowed", 405)
		}
	}
}

const planColumns = `id, action_text, priority, status, deadline, COALESCE(completion_notes,''), completed_at,
	gap_id, responsible_id, requirement_id, created_by, organization_id, created_at, updated_at`

func scanActionPlan(row interface{ Scan(...interface{}) error }) (ActionPlan, error) {
	var p ActionPlan
	err := row.Scan(&p.ID, &p.ActionText, &p.Priority, &p.Status, &p.Deadline, &p.CompletionNotes, &p.CompletedAt,
		&p.GapID, &p.ResponsibleID, &p.RequirementID, &p.CreatedBy, &p.OrganizationID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func queryActionPlans(w http.ResponseWriter, where string, args ...interface{}) ([]ActionPlan, bool) {
	rows, err := db.Query("SELECT "+planColumns+" FROM action_plans"+where, args...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return nil, false
	}
	defer rows.Close()

	var plans []ActionPlan
	for rows.Next() {
		if p, err := scanActionPlan(rows); err == nil {
			plans = append(plans, p)
		}
	}
	if plans == nil {
		plans = []ActionPlan{}
	}
	return plans, true
}

func listActionPlans(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	conditions := []string{"organization_id = ?"}
	args := []interface{}{orgID}
	if q := r.URL.Query().Get("gap_id"); q != "" {
		conditions = append(conditions, "gap_id = ?")
		args = append(args, q)
	}
	if q := r.URL.Query().Get("responsible_id"); q != "" {
		conditions = append(conditions, "responsible_id = ?")
		args = append(args, q)
	}
	if q := r.URL.Query().Get("status"); q != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, q)
	}
	if q := r.URL.Query().Get("priority"); q != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, q)
	}
	where := " WHERE " + strings.Join(conditions, " AND ") + " ORDER BY deadline IS NULL, deadline"

	plans, ok := queryActionPlans(w, where, args...)
	if !ok {
		return
	}
	jsonResp(w, plans)
}

func getActionPlan(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	p, err := scanActionPlan(db.QueryRow("SELECT "+planColumns+
		" FROM action_plans WHERE id = ? AND organization_id = ?", id, orgID))
	if err != nil {
		jsonErr(w, "Action plan not found", 404)
		return
	}
	jsonResp(w, p)
}

func createActionPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActionText     string `json:"action_text"`
		Priority       string `json:"priority"`
		Deadline       string `json:"deadline"`
		GapID          int    `json:"gap_id"`
		ResponsibleID  int    `json:"responsible_id"`
		RequirementID  int    `json:"requirement_id"`
		OrganizationID int    `json:"organization_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}
	orgID, ok := requestOrg(w, r, req.OrganizationID)
	if !ok {
		return
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}

	ve := &ValidationErrors{}
	requireField(ve, "action_text", req.ActionText)
	validateEnum(ve, "priority", req.Priority, validPriorities)
	validateDate(ve, "deadline", req.Deadline)
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}

	if req.GapID != 0 {
		var exists int
		if err := db.QueryRow("SELECT 1 FROM gap_assessments WHERE id = ? AND organization_id = ?",
			req.GapID, orgID).Scan(&exists); err != nil {
			jsonErr(w, "Assessment not found", 404)
			return
		}
	}
	if req.ResponsibleID != 0 {
		var exists int
		if err := db.QueryRow("SELECT 1 FROM users WHERE id = ? AND organization_id = ?",
			req.ResponsibleID, orgID).Scan(&exists); err != nil {
			jsonErr(w, "Responsible user not found", 404)
			return
		}
	}

	var deadline interface{}
	if req.Deadline != "" {
		deadline = req.Deadline
	}
	userID, _, _ := currentUser(r)
	res, err := db.Exec(`INSERT INTO action_plans
		(action_text, priority, deadline, gap_id, responsible_id, requirement_id, created_by, organization_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ActionText, req.Priority, deadline, req.GapID, req.ResponsibleID, req.RequirementID, userID, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	// Let the assignee know immediately.
	if req.ResponsibleID != 0 && req.ResponsibleID != userID {
		createNotification(orgID, req.ResponsibleID, "action_plan_assigned", "New action plan",
			"You have been assigned: "+req.ActionText, "action_plan:"+strconv.Itoa(int(id)))
	}

	logAudit(r, AuditActionCreate, "action_plans", strconv.Itoa(int(id)), "Created action plan")
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": id, "status": "pending"})
}

func updateActionPlan(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var req struct {
		ActionText      *string `json:"action_text"`
		Priority        *string `json:"priority"`
		Status          *string `json:"status"`
		Deadline        *string `json:"deadline"`
		CompletionNotes *string `json:"completion_notes"`
		ResponsibleID   *int    `json:"responsible_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}

	var curStatus string
	if err := db.QueryRow("SELECT status FROM action_plans WHERE id = ? AND organization_id = ?", id, orgID).Scan(&curStatus); err != nil {
		jsonErr(w, "Action plan not found", 404)
		return
	}
	// Completed and cancelled plans stay that way.
	if req.Status != nil && *req.Status != curStatus &&
		(curStatus == "completed" || curStatus == "cancelled") {
		jsonErr(w, "Action plan is "+curStatus+" and cannot change status", 409)
		return
	}

	ve := &ValidationErrors{}
	sets := []string{}
	args := []interface{}{}
	if req.ActionText != nil {
		sets = append(sets, "action_text = ?")
		args = append(args, *req.ActionText)
	}
	if req.Priority != nil {
		validateEnum(ve, "priority", *req.Priority, validPriorities)
		sets = append(sets, "priority = ?")
		args = append(args, *req.Priority)
	}
	if req.Status != nil {
		validateEnum(ve, "status", *req.Status, validPlanStatuses)
		sets = append(sets, "status = ?")
		args = append(args, *req.Status)
		if *req.Status == "completed" {
			sets = append(sets, "completed_at = CURRENT_TIMESTAMP")
		}
	}
	if req.Deadline != nil {
		validateDate(ve, "deadline", *req.Deadline)
		if *req.Deadline != "" {
			sets = append(sets, "deadline = ?")
			args = append(args, *req.Deadline)
		} else {
			sets = append(sets, "deadline = NULL")
		}
	}
	if req.CompletionNotes != nil {
		sets = append(sets, "completion_notes = ?")
		args = append(args, *req.CompletionNotes)
	}
	if req.ResponsibleID != nil {
		if *req.ResponsibleID != 0 {
			var ok2 int
			if err := db.QueryRow("SELECT 1 FROM users WHERE id = ? AND organization_id = ?",
				*req.ResponsibleID, orgID).Scan(&ok2); err != nil {
				jsonErr(w, "Responsible user not found", 404)
				return
			}
		}
		sets = append(sets, "responsible_id = ?")
		args = append(args, *req.ResponsibleID)
	}
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}
	if len(sets) == 0 {
		jsonErr(w, "No fields to update", 400)
		return
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id, orgID)
	if _, err := db.Exec("UPDATE action_plans SET "+strings.Join(sets, ", ")+
		" WHERE id = ? AND organization_id = ?", args...); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(r, AuditActionUpdate, "action_plans", strconv.Itoa(id), "Updated action plan")
	getActionPlan(w, r, id)
}

// completeActionPlan marks a plan completed and stamps the completion time.
func completeActionPlan(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var req struct {
		CompletionNotes string `json:"completion_notes"`
	}
	decodeBody(r, &req)

	var curStatus string
	if err := db.QueryRow("SELECT status FROM action_plans WHERE id = ? AND organization_id = ?", id, orgID).Scan(&curStatus); err != nil {
		jsonErr(w, "Action plan not found", 404)
		return
	}
	if curStatus == "cancelled" {
		jsonErr(w, "Action plan is cancelled and cannot change status", 409)
		return
	}

	res, err := db.Exec(`UPDATE action_plans
		SET status = 'completed', completed_at = CURRENT_TIMESTAMP, completion_notes = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND organization_id = ?`, req.CompletionNotes, id, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "Action plan not found", 404)
		return
	}

	logAudit(r, AuditActionComplete, "action_plans", strconv.Itoa(id), "Completed action plan")
	getActionPlan(w, r, id)
}

func deleteActionPlan(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	res, err := db.Exec("DELETE FROM action_plans WHERE id = ? AND organization_id = ?", id, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "Action plan not found", 404)
		return
	}

	logAudit(r, AuditActionDelete, "action_plans", strconv.Itoa(id), "Deleted action plan")
	jsonResp(w, map[string]string{"status": "deleted"})
}

// listOverdueActionPlans returns plans whose deadline is strictly in the past
// and that are not completed.
func listOverdueActionPlans(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	now := time.Now().Format("2006-01-02 15:04:05")
	plans, ok := queryActionPlans(w,
		" WHERE organization_id = ? AND deadline IS NOT NULL AND deadline < ? AND status != 'completed' ORDER BY deadline",
		orgID, now)
	if !ok {
		return
	}
	jsonResp(w, plans)
}

// listUpcomingActionPlans returns plans due within the next N days (default
// 7). days=0 matches only plans due at this exact instant.
func listUpcomingActionPlans(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	days := 7
	if d := r.URL.Query().Get("days"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 {
			jsonErr(w, "Invalid days parameter", 400)
			return
		}
		days = n
	}
	now := time.Now()
	from := now.Format("2006-01-02 15:04:05")
	to := now.AddDate(0, 0, days).Format("2006-01-02 15:04:05")

	plans, ok := queryActionPlans(w,
		" WHERE organization_id = ? AND deadline IS NOT NULL AND deadline >= ? AND deadline <= ? AND status != 'completed' ORDER BY deadline",
		orgID, from, to)
	if !ok {
		return
	}
	jsonResp(w, plans)
}

func getActionPlanStatistics(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var stats ActionPlanStats
	now := time.Now().Format("2006-01-02 15:04:05")
	err := db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN deadline IS NOT NULL AND deadline < ? AND status != 'completed' THEN 1 ELSE 0 END), 0)
		FROM action_plans WHERE organization_id = ?`, now, orgID).
		Scan(&stats.Total, &stats.Pending, &stats.InProgress, &stats.Completed, &stats.Cancelled, &stats.Overdue)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	jsonResp(w, stats)
}
