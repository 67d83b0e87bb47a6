package main

import (
	"net/http"
	"strings"
	"sync"
)

// The /api/v1/superadmin surface is reachable only by super admins; the RBAC
// middleware rejects everyone else before these handlers run.
func handleSuperAdmin(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/superadmin")
	path = strings.Trim(path, "/")

	switch {
	case path == "dashboard" && r.Method == "GET":
		superAdminDashboard(w, r)
	case path == "organizations" && r.Method == "GET":
		superAdminOrganizations(w, r)
	case path == "users" && r.Method == "GET":
		superAdminUsers(w, r)
	case path == "stats" && r.Method == "GET":
		superAdminSystemStats(w, r)
	default:
		jsonErr(w, "Not found", 404)
	}
}

type systemStats struct {
	TotalOrganizations  int `json:"total_organizations"`
	ActiveOrganizations int `json:"active_organizations"`
	TotalUsers          int `json:"total_users"`
	ActiveUsers         int `json:"active_users"`
	TotalRequirements   int `json:"total_requirements"`
	TotalAssessments    int `json:"total_assessments"`
	TotalActionPlans    int `json:"total_action_plans"`
	ActiveSubscriptions int `json:"active_subscriptions"`
	CompletedPayments   int `json:"completed_payments"`
	AuditEntries        int `json:"audit_entries"`
}

func collectSystemStats() systemStats {
	var s systemStats
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM organizations", &s.TotalOrganizations},
		{"SELECT COUNT(*) FROM organizations WHERE active = 1", &s.ActiveOrganizations},
		{"SELECT COUNT(*) FROM users", &s.TotalUsers},
		{"SELECT COUNT(*) FROM users WHERE active = 1", &s.ActiveUsers},
		{"SELECT COUNT(*) FROM requirements", &s.TotalRequirements},
		{"SELECT COUNT(*) FROM gap_assessments", &s.TotalAssessments},
		{"SELECT COUNT(*) FROM action_plans", &s.TotalActionPlans},
		{"SELECT COUNT(*) FROM subscriptions WHERE status = 'active'", &s.ActiveSubscriptions},
		{"SELECT COUNT(*) FROM payments WHERE status = 'completed'", &s.CompletedPayments},
		{"SELECT COUNT(*) FROM audit_log", &s.AuditEntries},
	}
	var wg sync.WaitGroup
	for _, q := range queries {
		wg.Add(1)
		go func(query string, dest *int) {
			defer wg.Done()
			db.QueryRow(query).Scan(dest)
		}(q.query, q.dest)
	}
	wg.Wait()
	return s
}

// superAdminDashboard combines system-wide stats with a per-organization
// summary table.
func superAdminDashboard(w http.ResponseWriter, r *http.Request) {
	stats := collectSystemStats()

	type orgSummary struct {
		Organization
		UserCount        int `json:"user_count"`
		RequirementCount int `json:"requirement_count"`
		AssessmentCount  int `json:"assessment_count"`
	}
	rows, err := db.Query(`SELECT o.id, o.name, o.domain, COALESCE(o.subdomain,''), o.active,
		COALESCE(o.settings,'{}'), o.created_at, o.updated_at,
		(SELECT COUNT(*) FROM users u WHERE u.organization_id = o.id),
		(SELECT COUNT(*) FROM requirements q WHERE q.organization_id = o.id),
		(SELECT COUNT(*) FROM gap_assessments a WHERE a.organization_id = o.id)
		FROM organizations o ORDER BY o.created_at DESC`)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var orgs []orgSummary
	for rows.Next() {
		var s orgSummary
		rows.Scan(&s.ID, &s.Name, &s.Domain, &s.Subdomain, &s.Active, &s.Settings, &s.CreatedAt, &s.UpdatedAt,
			&s.UserCount, &s.RequirementCount, &s.AssessmentCount)
		orgs = append(orgs, s)
	}
	if orgs == nil {
		orgs = []orgSummary{}
	}

	jsonResp(w, map[string]interface{}{"stats": stats, "organizations": orgs})
}

func superAdminOrganizations(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query("SELECT " + orgColumns + " FROM organizations ORDER BY created_at DESC")
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
	jsonResp(w, orgs)
}

// superAdminUsers lists users across all tenants, optionally filtered by
// organization or role.
func superAdminUsers(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)

	conditions := []string{}
	args := []interface{}{}
	if o := r.URL.Query().Get("organization_id"); o != "" {
		conditions = append(conditions, "organization_id = ?")
		args = append(args, o)
	}
	if role := r.URL.Query().Get("role"); role != "" {
		conditions = append(conditions, "role = ?")
		args = append(args, role)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	db.QueryRow("SELECT COUNT(*) FROM users"+where, args...).Scan(&total)

	offset := (page - 1) * limit
	rows, err := db.Query("SELECT "+userColumns+" FROM users"+where+
		" ORDER BY created_at DESC LIMIT ? OFFSET ?", append(args, limit, offset)...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	jsonRespMeta(w, scanUserRows(rows), total, page, limit)
}

func superAdminSystemStats(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, collectSystemStats())
}
