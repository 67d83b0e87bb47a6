package main

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

func handleOrganizations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/organizations")
	path = strings.Trim(path, "/")

	if strings.HasPrefix(path, "by-domain/") {
		getOrganizationByDomain(w, r, strings.TrimPrefix(path, "by-domain/"))
		return
	}

	switch {
	case path == "" && r.Method == "GET":
		listOrganizations(w, r)
	case path == "" && r.Method == "POST":
		createOrganization(w, r)
	default:
		parts := strings.Split(path, "/")
		id, ok := parseIntParam(w, parts[0])
		if !ok {
			return
		}
		if len(parts) == 2 && parts[1] == "stats" && r.Method == "GET" {
			getOrganizationStats(w, r, id)
			return
		}
		switch r.Method {
		case "GET":
			getOrganization(w, r, id)
		case "PUT":
			updateOrganization(w, r, id)
		case "DELETE":
			deleteOrganization(w, r, id)
		default:
			jsonErr(w, "Method not allowed", 405)
		}
	}
}

const orgColumns = `id, name, domain, COALESCE(subdomain,''), active, COALESCE(settings,'{}'), created_at, updated_at`

func scanOrganization(row interface{ Scan(...interface{}) error }) (Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.Domain, &o.Subdomain, &o.Active, &o.Settings, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func listOrganizations(w http.ResponseWriter, r *http.Request) {
	_, role, orgID := currentUser(r)

	if role != auth.RoleSuperAdmin {
		// Tenant admins see only their own organization.
		o, err := scanOrganization(db.QueryRow("SELECT "+orgColumns+" FROM organizations WHERE id = ?", orgID))
		if err != nil {
			jsonErr(w, "Organization not found", 404)
			return
		}
		jsonResp(w, []Organization{o})
		return
	}

	page, limit := parsePagination(r)
	var total int
	db.QueryRow("SELECT COUNT(*) FROM organizations").Scan(&total)

	offset := (page - 1) * limit
	rows, err := db.Query("SELECT "+orgColumns+" FROM organizations ORDER BY created_at DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		if o, err := scanOrganization(rows); err == nil {
			orgs = append(orgs, o)
		}
	}
	if orgs == nil {
		orgs = []Organization{}
	}
	jsonRespMeta(w, orgs, total, page, limit)
}

func getOrganization(w http.ResponseWriter, r *http.Request, id int) {
	_, role, orgID := currentUser(r)
	if role != auth.RoleSuperAdmin && id != orgID {
		jsonErr(w, "Organization not found", 404)
		return
	}
	o, err := scanOrganization(db.QueryRow("SELECT "+orgColumns+" FROM organizations WHERE id = ?", id))
	if err != nil {
		jsonErr(w, "Organization not found", 404)
		return
	}
	jsonResp(w, o)
}

// getOrganizationByDomain is public: it powers tenant discovery on the login
// page and returns only non-sensitive fields.
func getOrganizationByDomain(w http.ResponseWriter, r *http.Request, domain string) {
	domain = strings.TrimSpace(strings.ToLower(domain))
	var o Organization
	err := db.QueryRow(`SELECT id, name, domain, COALESCE(subdomain,''), active
		FROM organizations WHERE domain = ? OR subdomain = ?`, domain, domain).
		Scan(&o.ID, &o.Name, &o.Domain, &o.Subdomain, &o.Active)
	if err != nil {
		jsonErr(w, "Organization not found", 404)
		return
	}
	jsonResp(w, map[string]interface{}{
		"id": o.ID, "name": o.Name, "domain": o.Domain, "subdomain": o.Subdomain, "active": o.Active,
	})
}

func createOrganization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Domain    string `json:"domain"`
		Subdomain string `json:"subdomain"`
		Settings  string `json:"settings"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}
	req.Domain = strings.TrimSpace(strings.ToLower(req.Domain))
	req.Subdomain = strings.TrimSpace(strings.ToLower(req.Subdomain))

	ve := &ValidationErrors{}
	requireField(ve, "name", req.Name)
	requireField(ve, "domain", req.Domain)
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}
	if req.Settings == "" {
		req.Settings = "{}"
	}

	var dup int
	db.QueryRow("SELECT COUNT(*) FROM organizations WHERE domain = ?", req.Domain).Scan(&dup)
	if dup > 0 {
		jsonErr(w, "Domain already registered", 409)
		return
	}
	if req.Subdomain != "" {
		db.QueryRow("SELECT COUNT(*) FROM organizations WHERE subdomain = ?", req.Subdomain).Scan(&dup)
		if dup > 0 {
			jsonErr(w, "Subdomain already registered", 409)
			return
		}
	}

	var sub interface{}
	if req.Subdomain != "" {
		sub = req.Subdomain
	}
	res, err := db.Exec("INSERT INTO organizations (name, domain, subdomain, settings, active) VALUES (?, ?, ?, ?, 1)",
		req.Name, req.Domain, sub, req.Settings)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	// Every organization starts with a head office branch and the standard
	// requirement catalog.
	db.Exec("INSERT INTO branches (organization_id, branch_num, name, region) VALUES (?, 1, 'Head Office', '')", id)
	if err := seedRequirementCatalog(int(id)); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(r, AuditActionCreate, "organizations", strconv.Itoa(int(id)), "Created organization "+req.Name)
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": id, "name": req.Name, "domain": req.Domain})
}

func updateOrganization(w http.ResponseWriter, r *http.Request, id int) {
	_, role, orgID := currentUser(r)
	if role != auth.RoleSuperAdmin && id != orgID {
		jsonErr(w, "Organization not found", 404)
		return
	}
	var req struct {
		Name      *string `json:"name"`
		Domain    *string `json:"domain"`
		Subdomain *string `json:"subdomain"`
		Settings  *string `json:"settings"`
		Active    *int    `json:"active"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}

	var exists int
	if err := db.QueryRow("SELECT 1 FROM organizations WHERE id = ?", id).Scan(&exists); err != nil {
		jsonErr(w, "Organization not found", 404)
		return
	}

	sets := []string{}
	args := []interface{}{}
	if req.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *req.Name)
	}
	if req.Domain != nil {
		d := strings.TrimSpace(strings.ToLower(*req.Domain))
		var dup int
		db.QueryRow("SELECT COUNT(*) FROM organizations WHERE domain = ? AND id != ?", d, id).Scan(&dup)
		if dup > 0 {
			jsonErr(w, "Domain already registered", 409)
			return
		}
		sets = append(sets, "domain = ?")
		args = append(args, d)
	}
	if req.Subdomain != nil {
		s := strings.TrimSpace(strings.ToLower(*req.Subdomain))
		if s != "" {
			var dup int
			db.QueryRow("SELECT COUNT(*) FROM organizations WHERE subdomain = ? AND id != ?", s, id).Scan(&dup)
			if dup > 0 {
				jsonErr(w, "Subdomain already registered", 409)
				return
			}
			sets = append(sets, "subdomain = ?")
			args = append(args, s)
		} else {
			sets = append(sets, "subdomain = NULL")
		}
	}
	if req.Settings != nil {
		sets = append(sets, "settings = ?")
		args = append(args, *req.Settings)
	}
	if req.Active != nil {
		if role != auth.RoleSuperAdmin {
			jsonErr(w, "Only a super admin can change activation", 403)
			return
		}
		sets = append(sets, "active = ?")
		args = append(args, *req.Active)
	}
	if len(sets) == 0 {
		jsonErr(w, "No fields to update", 400)
		return
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)
	if _, err := db.Exec("UPDATE organizations SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(r, AuditActionUpdate, "organizations", strconv.Itoa(id), "Updated organization")
	o, _ := scanOrganization(db.QueryRow("SELECT "+orgColumns+" FROM organizations WHERE id = ?", id))
	jsonResp(w, o)
}

// deleteOrganization removes a tenant and all dependent rows in one
// transaction, children before parents. Any failure rolls the whole
// operation back.
func deleteOrganization(w http.ResponseWriter, r *http.Request, id int) {
	_, role, _ := currentUser(r)
	if role != auth.RoleSuperAdmin {
		jsonErr(w, "Super admin access required", 403)
		return
	}

	var name string
	if err := db.QueryRow("SELECT name FROM organizations WHERE id = ?", id).Scan(&name); err != nil {
		jsonErr(w, "Organization not found", 404)
		return
	}

	tx, err := db.Begin()
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	deletions := []string{
		"DELETE FROM notifications WHERE organization_id = ?",
		"DELETE FROM schedules WHERE organization_id = ?",
		"DELETE FROM risks WHERE organization_id = ?",
		"DELETE FROM action_plans WHERE organization_id = ?",
		"DELETE FROM gap_assessments WHERE organization_id = ?",
		"DELETE FROM evidence WHERE organization_id = ?",
		"DELETE FROM requirements WHERE organization_id = ?",
		"DELETE FROM branches WHERE organization_id = ?",
		"DELETE FROM payments WHERE organization_id = ?",
		"DELETE FROM subscriptions WHERE organization_id = ?",
		"DELETE FROM api_keys WHERE organization_id = ?",
		"DELETE FROM sessions WHERE user_id IN (SELECT id FROM users WHERE organization_id = ?)",
		"DELETE FROM users WHERE organization_id = ?",
		"DELETE FROM organizations WHERE id = ?",
	}
	for _, q := range deletions {
		if _, err := tx.Exec(q, id); err != nil {
			jsonErr(w, err.Error(), 500)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(r, AuditActionDelete, "organizations", strconv.Itoa(id), "Deleted organization "+name)
	jsonResp(w, map[string]string{"status": "deleted"})
}

// getOrganizationStats aggregates tenant counts with independent concurrent
// queries plus recent activity lists.
func getOrganizationStats(w http.ResponseWriter, r *http.Request, id int) {
	_, role, orgID := currentUser(r)
	if role != auth.RoleSuperAdmin && id != orgID {
		jsonErr(w, "Organization not found", 404)
		return
	}
	var exists int
	if err := db.QueryRow("SELECT 1 FROM organizations WHERE id = ?", id).Scan(&exists); err != nil {
		jsonErr(w, "Organization not found", 404)
		return
	}

	now := time.Now()
	nowStr := now.Format("2006-01-02 15:04:05")
	weekStr := now.AddDate(0, 0, 7).Format("2006-01-02 15:04:05")

	var stats OrganizationStats
	counts := []struct {
		query string
		args  []interface{}
		dest  *int
	}{
		{"SELECT COUNT(*) FROM users WHERE organization_id = ?", []interface{}{id}, &stats.TotalUsers},
		{"SELECT COUNT(*) FROM users WHERE organization_id = ? AND active = 1", []interface{}{id}, &stats.ActiveUsers},
		{"SELECT COUNT(*) FROM branches WHERE organization_id = ?", []interface{}{id}, &stats.TotalBranches},
		{"SELECT COUNT(*) FROM requirements WHERE organization_id = ?", []interface{}{id}, &stats.TotalRequirements},
		{"SELECT COUNT(*) FROM requirements WHERE organization_id = ? AND priority = 'critical'", []interface{}{id}, &stats.CriticalRequirements},
		{"SELECT COUNT(*) FROM requirements WHERE organization_id = ? AND priority = 'high'", []interface{}{id}, &stats.HighPriorityRequirements},
		{"SELECT COUNT(*) FROM gap_assessments WHERE organization_id = ?", []interface{}{id}, &stats.TotalAssessments},
		{"SELECT COUNT(*) FROM action_plans WHERE organization_id = ?", []interface{}{id}, &stats.TotalActionPlans},
		{"SELECT COUNT(*) FROM action_plans WHERE organization_id = ? AND deadline IS NOT NULL AND deadline < ? AND status != 'completed'",
			[]interface{}{id, nowStr}, &stats.OverdueActionPlans},
		{"SELECT COUNT(*) FROM schedules WHERE organization_id = ?", []interface{}{id}, &stats.TotalSchedules},
		{"SELECT COUNT(*) FROM schedules WHERE organization_id = ? AND due_date < ? AND status != 'completed'",
			[]interface{}{id, nowStr}, &stats.OverdueSchedules},
		{"SELECT COUNT(*) FROM schedules WHERE organization_id = ? AND due_date >= ? AND due_date <= ? AND status != 'completed'",
			[]interface{}{id, nowStr, weekStr}, &stats.UpcomingSchedules},
		{"SELECT COUNT(*) FROM risks WHERE organization_id = ? AND status = 'active'", []interface{}{id}, &stats.ActiveRisks},
		{"SELECT COUNT(*) FROM evidence WHERE organization_id = ? AND status = 'pending'", []interface{}{id}, &stats.PendingEvidence},
		{"SELECT COUNT(*) FROM notifications WHERE organization_id = ? AND is_read = 0", []interface{}{id}, &stats.UnreadNotifications},
	}

	var wg sync.WaitGroup
	for _, c := range counts {
		wg.Add(1)
		go func(query string, args []interface{}, dest *int) {
			defer wg.Done()
			db.QueryRow(query, args...).Scan(dest)
		}(c.query, c.args, c.dest)
	}
	wg.Wait()

	rows, err := db.Query("SELECT "+userColumns+" FROM users WHERE organization_id = ? ORDER BY created_at DESC LIMIT 5", id)
	if err == nil {
		stats.RecentUsers = scanUserRows(rows)
		rows.Close()
	}
	if stats.RecentUsers == nil {
		stats.RecentUsers = []User{}
	}

	stats.RecentRequirements = []Requirement{}
	reqRows, err := db.Query(`SELECT id, clause, COALESCE(sub_clause,''), title, COALESCE(description,''),
		COALESCE(category,''), standard, COALESCE(section,''), is_mandatory, priority, organization_id,
		created_by, created_at, updated_at
		FROM requirements WHERE organization_id = ? ORDER BY created_at DESC LIMIT 5`, id)
	if err == nil {
		for reqRows.Next() {
			var q Requirement
			reqRows.Scan(&q.ID, &q.Clause, &q.SubClause, &q.Title, &q.Description,
				&q.Category, &q.Standard, &q.Section, &q.IsMandatory, &q.Priority, &q.OrganizationID,
				&q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
			stats.RecentRequirements = append(stats.RecentRequirements, q)
		}
		reqRows.Close()
	}

	jsonResp(w, stats)
}
