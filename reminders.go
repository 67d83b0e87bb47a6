package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// generateReminders scans every organization for schedules entering their
// reminder window, newly overdue schedules and newly overdue action plans,
// and notifies the responsible users. The reference field dedupes so each
// event fires a single notification.
func generateReminders() {
	now := time.Now()
	nowStr := now.Format("2006-01-02 15:04:05")

	rows, err := db.Query(`SELECT id, title, due_date, COALESCE(reminder_days,'[]'),
		responsible_id, created_by, organization_id
		FROM schedules WHERE status NOT IN ('completed','cancelled')`)
	if err != nil {
		log.Printf("reminders: schedules query: %v", err)
		return
	}
	type schedRow struct {
		id            int
		title         string
		dueDate       string
		reminderJSON  string
		responsibleID int
		createdBy     int
		orgID         int
	}
	var scheds []schedRow
	for rows.Next() {
		var s schedRow
		rows.Scan(&s.id, &s.title, &s.dueDate, &s.reminderJSON, &s.responsibleID, &s.createdBy, &s.orgID)
		scheds = append(scheds, s)
	}
	rows.Close()

	for _, s := range scheds {
		target := s.responsibleID
		if target == 0 {
			target = s.createdBy
		}
		if target == 0 {
			continue
		}
		due, err := parseDBTime(s.dueDate)
		if err != nil {
			continue
		}

		if due.Before(now) {
			createNotification(s.orgID, target, "schedule_overdue", "Schedule overdue",
				fmt.Sprintf("%q was due on %s", s.title, due.Format("2006-01-02")),
				fmt.Sprintf("schedule_overdue:%d", s.id))
			continue
		}

		var reminderDays []int
		json.Unmarshal([]byte(s.reminderJSON), &reminderDays)
		for _, d := range reminderDays {
			if d < 0 {
				continue
			}
			if !due.After(now.AddDate(0, 0, d)) {
				createNotification(s.orgID, target, "schedule_reminder", "Upcoming schedule",
					fmt.Sprintf("%q is due on %s", s.title, due.Format("2006-01-02")),
					fmt.Sprintf("schedule_reminder:%d:%d", s.id, d))
			}
		}
	}

	planRows, err := db.Query(`SELECT id, action_text, deadline, responsible_id, created_by, organization_id
		FROM action_plans
		WHERE deadline IS NOT NULL AND deadline < ? AND status != 'completed'`, nowStr)
	if err != nil {
		log.Printf("reminders: action plans query: %v", err)
		return
	}
	type planRow struct {
		id            int
		text          string
		deadline      string
		responsibleID int
		createdBy     int
		orgID         int
	}
	var plans []planRow
	for planRows.Next() {
		var p planRow
		planRows.Scan(&p.id, &p.text, &p.deadline, &p.responsibleID, &p.createdBy, &p.orgID)
		plans = append(plans, p)
	}
	planRows.Close()

	for _, p := range plans {
		target := p.responsibleID
		if target == 0 {
			target = p.createdBy
		}
		if target == 0 {
			continue
		}
		createNotification(p.orgID, target, "action_plan_overdue", "Action plan overdue",
			"Overdue: "+p.text, fmt.Sprintf("action_plan_overdue:%d", p.id))
	}
}

func parseDBTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}
