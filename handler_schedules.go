package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func handleSchedules(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/schedules")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == "GET":
		listSchedules(w, r)
	case path == "" && r.Method == "POST":
		createSchedule(w, r)
	case path == "overdue" && r.Method == "GET":
		listOverdueSchedules(w, r)
	case path == "upcoming" && r.Method == "GET":
		listUpcomingSchedules(w, r)
	default:
		id, ok := parseIntParam(w, path)
		if !ok {
			return
		}
		switch r.Method {
		case "GET":
			getSchedule(w, r, id)
		case "PUT":
			updateSchedule(w, r, id)
		case "DELETE":
			deleteSchedule(w, r, id)
		default:
			jsonErr(w, "Method not allowed", 405)
		}
	}
}

const scheduleColumns = `id, type, title, COALESCE(description,''), due_date, COALESCE(frequency,''),
	custom_interval, priority, is_recurring, COALESCE(reminder_days,'[]'), status,
	branch_id, responsible_id, created_by, organization_id, created_at, updated_at`

func scanSchedule(row interface{ Scan(...interface{}) error }) (Schedule, error) {
	var s Schedule
	var reminderJSON string
	err := row.Scan(&s.ID, &s.Type, &s.Title, &s.Description, &s.DueDate, &s.Frequency,
		&s.CustomInterval, &s.Priority, &s.IsRecurring, &reminderJSON, &s.Status,
		&s.BranchID, &s.ResponsibleID, &s.CreatedBy, &s.OrganizationID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(reminderJSON), &s.ReminderDays); err != nil || s.ReminderDays == nil {
		s.ReminderDays = []int{}
	}
	return s, nil
}

func querySchedules(w http.ResponseWriter, where string, args ...interface{}) ([]Schedule, bool) {
	rows, err := db.Query("SELECT "+scheduleColumns+" FROM schedules"+where, args...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return nil, false
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		if s, err := scanSchedule(rows); err == nil {
			schedules = append(schedules, s)
		}
	}
	if schedules == nil {
		schedules = []Schedule{}
	}
	return schedules, true
}

func listSchedules(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	conditions := []string{"organization_id = ?"}
	args := []interface{}{orgID}
	if t := r.URL.Query().Get("type"); t != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, t)
	}
	if s := r.URL.Query().Get("status"); s != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, s)
	}
	if b := r.URL.Query().Get("branch_id"); b != "" {
		conditions = append(conditions, "branch_id = ?")
		args = append(args, b)
	}
	where := " WHERE " + strings.Join(conditions, " AND ") + " ORDER BY due_date"

	schedules, ok := querySchedules(w, where, args...)
	if !ok {
		return
	}
	jsonResp(w, schedules)
}

func getSchedule(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	s, err := scanSchedule(db.QueryRow("SELECT "+scheduleColumns+
		" FROM schedules WHERE id = ? AND organization_id = ?", id, orgID))
	if err != nil {
		jsonErr(w, "Schedule not found", 404)
		return
	}
	jsonResp(w, s)
}

func createSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type           string `json:"type"`
		Title          string `json:"title"`
		Description    string `json:"description"`
		DueDate        string `json:"due_date"`
		Frequency      string `json:"frequency"`
		CustomInterval int    `json:"custom_interval"`
		Priority       string `json:"priority"`
		IsRecurring    int    `json:"is_recurring"`
		ReminderDays   []int  `json:"reminder_days"`
		BranchID       int    `json:"branch_id"`
		ResponsibleID  int    `json:"responsible_id"`
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
	requireField(ve, "title", req.Title)
	requireField(ve, "type", req.Type)
	requireField(ve, "due_date", req.DueDate)
	validateEnum(ve, "type", req.Type, validScheduleTypes)
	validateEnum(ve, "frequency", req.Frequency, validFrequencies)
	validateEnum(ve, "priority", req.Priority, validPriorities)
	validateDate(ve, "due_date", req.DueDate)
	if req.Frequency == "custom" && req.CustomInterval <= 0 {
		ve.Add("custom_interval", "must be a positive integer for custom frequency")
	}
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}

	if req.BranchID != 0 {
		var exists int
		if err := db.QueryRow("SELECT 1 FROM branches WHERE id = ? AND organization_id = ?",
			req.BranchID, orgID).Scan(&exists); err != nil {
			jsonErr(w, "Branch not found", 404)
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

	if req.ReminderDays == nil {
		req.ReminderDays = []int{}
	}
	reminderJSON, _ := json.Marshal(req.ReminderDays)

	userID, _, _ := currentUser(r)
	res, err := db.Exec(`INSERT INTO schedules
		(type, title, description, due_date, frequency, custom_interval, priority, is_recurring,
		 reminder_days, branch_id, responsible_id, created_by, organization_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Type, req.Title, req.Description, req.DueDate, req.Frequency, req.CustomInterval,
		req.Priority, req.IsRecurring, string(reminderJSON), req.BranchID, req.ResponsibleID, userID, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	logAudit(r, AuditActionCreate, "schedules", strconv.Itoa(int(id)), "Created schedule "+req.Title)
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": id, "title": req.Title})
}

func updateSchedule(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var req struct {
		Type           *string `json:"type"`
		Title          *string `json:"title"`
		Description    *string `json:"description"`
		DueDate        *string `json:"due_date"`
		Frequency      *string `json:"frequency"`
		CustomInterval *int    `json:"custom_interval"`
		Priority       *string `json:"priority"`
		IsRecurring    *int    `json:"is_recurring"`
		ReminderDays   *[]int  `json:"reminder_days"`
		Status         *string `json:"status"`
		ResponsibleID  *int    `json:"responsible_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}

	var exists int
	if err := db.QueryRow("SELECT 1 FROM schedules WHERE id = ? AND organization_id = ?", id, orgID).Scan(&exists); err != nil {
		jsonErr(w, "Schedule not found", 404)
		return
	}

	ve := &ValidationErrors{}
	sets := []string{}
	args := []interface{}{}
	if req.Type != nil {
		validateEnum(ve, "type", *req.Type, validScheduleTypes)
		sets = append(sets, "type = ?")
		args = append(args, *req.Type)
	}
	if req.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *req.Title)
	}
	if req.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *req.Description)
	}
	if req.DueDate != nil {
		validateDate(ve, "due_date", *req.DueDate)
		sets = append(sets, "due_date = ?")
		args = append(args, *req.DueDate)
	}
	if req.Frequency != nil {
		validateEnum(ve, "frequency", *req.Frequency, validFrequencies)
		sets = append(sets, "frequency = ?")
		args = append(args, *req.Frequency)
	}
	if req.CustomInterval != nil {
		sets = append(sets, "custom_interval = ?")
		args = append(args, *req.CustomInterval)
	}
	if req.Priority != nil {
		validateEnum(ve, "priority", *req.Priority, validPriorities)
		sets = append(sets, "priority = ?")
		args = append(args, *req.Priority)
	}
	if req.IsRecurring != nil {
		sets = append(sets, "is_recurring = ?")
		args = append(args, *req.IsRecurring)
	}
	if req.ReminderDays != nil {
		reminderJSON, _ := json.Marshal(*req.ReminderDays)
		sets = append(sets, "reminder_days = ?")
		args = append(args, string(reminderJSON))
	}
	if req.Status != nil {
		validateEnum(ve, "status", *req.Status, validScheduleStatuses)
		sets = append(sets, "status = ?")
		args = append(args, *req.Status)
	}
	if req.ResponsibleID != nil {
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
	if _, err := db.Exec("UPDATE schedules SET "+strings.Join(sets, ", ")+
		" WHERE id = ? AND organization_id = ?", args...); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(r, AuditActionUpdate, "schedules", strconv.Itoa(id), "Updated schedule")
	getSchedule(w, r, id)
}

func deleteSchedule(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	res, err := db.Exec("DELETE FROM schedules WHERE id = ? AND organization_id = ?", id, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "Schedule not found", 404)
		return
	}

	logAudit(r, AuditActionDelete, "schedules", strconv.Itoa(id), "Deleted schedule")
	jsonResp(w, map[string]string{"status": "deleted"})
}

func listOverdueSchedules(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	now := time.Now().Format("2006-01-02 15:04:05")
	schedules, ok := querySchedules(w,
		" WHERE organization_id = ? AND due_date < ? AND status != 'completed' ORDER BY due_date", orgID, now)
	if !ok {
		return
	}
	jsonResp(w, schedules)
}

func listUpcomingSchedules(w http.ResponseWriter, r *http.Request) {
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

	schedules, ok := querySchedules(w,
		" WHERE organization_id = ? AND due_date >= ? AND due_date <= ? AND status != 'completed' ORDER BY due_date",
		orgID, from, to)
	if !ok {
		return
	}
	jsonResp(w, schedules)
}
