package main

import (
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

func handleRequirements(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/requirements")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == "GET":
		listRequirements(w, r)
	case path == "" && r.Method == "POST":
		createRequirement(w, r)
	case path == "with-assessments" && r.Method == "GET":
		listRequirementsWithAssessments(w, r)
	case path == "compliance-stats" && r.Method == "GET":
		getComplianceStats(w, r)
	case path == "whats-missing" && r.Method == "GET":
		getWhatsMissing(w, r)
	case path == "incomplete" && r.Method == "GET":
		getIncompleteForBranch(w, r)
	default:
		id, ok := parseIntParam(w, path)
		if !ok {
			return
		}
		switch r.Method {
		case "GET":
			getRequirement(w, r, id)
		case "PUT":
			updateRequirement(w, r, id)
		case "DELETE":
			deleteRequirement(w, r, id)
		default:
			jsonErr(w, "Method not allowed", 405)
		}
	}
}

const requirementColumns = `id, clause, COALESCE(sub_clause,''), title, COALESCE(description,''),
	COALESCE(category,''), standard, COALESCE(section,''), is_mandatory, priority,
	organization_id, created_by, created_at, updated_at`

func scanRequirement(row interface{ Scan(...interface{}) error }) (Requirement, error) {
	var q Requirement
	err := row.Scan(&q.ID, &q.Clause, &q.SubClause, &q.Title, &q.Description,
		&q.Category, &q.Standard, &q.Section, &q.IsMandatory, &q.Priority,
		&q.OrganizationID, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func listRequirements(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	page, limit := parsePagination(r)

	conditions := []string{"organization_id = ?"}
	args := []interface{}{orgID}
	if p := r.URL.Query().Get("clause_prefix"); p != "" {
		conditions = append(conditions, "clause LIKE ?")
		args = append(args, p+"%")
	}
	if c := r.URL.Query().Get("category"); c != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, c)
	}
	if s := r.URL.Query().Get("section"); s != "" {
		conditions = append(conditions, "section = ?")
		args = append(args, s)
	}
	if p := r.URL.Query().Get("priority"); p != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, p)
	}
	if s := r.URL.Query().Get("search"); s != "" {
		conditions = append(conditions, "(clause LIKE ? OR title LIKE ? OR description LIKE ?)")
		term := "%" + s + "%"
		args = append(args, term, term, term)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	db.QueryRow("SELECT COUNT(*) FROM requirements"+where, args...).Scan(&total)

	offset := (page - 1) * limit
	rows, err := db.Query("SELECT "+requirementColumns+" FROM requirements"+where+
		" ORDER BY clause LIMIT ? OFFSET ?", append(args, limit, offset)...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var reqs []Requirement
	for rows.Next() {
		if q, err := scanRequirement(rows); err == nil {
			reqs = append(reqs, q)
		}
	}
	if reqs == nil {
		reqs = []Requirement{}
	}
	jsonRespMeta(w, reqs, total, page, limit)
}

func getRequirement(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	q, err := scanRequirement(db.QueryRow("SELECT "+requirementColumns+
		" FROM requirements WHERE id = ? AND organization_id = ?", id, orgID))
	if err != nil {
		jsonErr(w, "Requirement not found", 404)
		return
	}
	jsonResp(w, q)
}

func createRequirement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Clause         string `json:"clause"`
		SubClause      string `json:"sub_clause"`
		Title          string `json:"title"`
		Description    string `json:"description"`
		Category       string `json:"category"`
		Standard       string `json:"standard"`
		Section        string `json:"section"`
		IsMandatory    *int   `json:"is_mandatory"`
		Priority       string `json:"priority"`
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
	if req.Standard == "" {
		req.Standard = "ISO 27001"
	}
	mandatory := 1
	if req.IsMandatory != nil {
		mandatory = *req.IsMandatory
	}

	ve := &ValidationErrors{}
	requireField(ve, "clause", req.Clause)
	requireField(ve, "title", req.Title)
	validateEnum(ve, "priority", req.Priority, validPriorities)
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}

	// Clause is unique within one organization, not globally.
	var dup int
	db.QueryRow("SELECT COUNT(*) FROM requirements WHERE organization_id = ? AND clause = ?",
		orgID, req.Clause).Scan(&dup)
	if dup > 0 {
		jsonErr(w, "Clause already exists in this organization", 409)
		return
	}

	userID, _, _ := currentUser(r)
	res, err := db.Exec(`INSERT INTO requirements
		(clause, sub_clause, title, description, category, standard, section, is_mandatory, priority, organization_id, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Clause, req.SubClause, req.Title, req.Description, req.Category, req.Standard,
		req.Section, mandatory, req.Priority, orgID, userID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	logAudit(r, AuditActionCreate, "requirements", strconv.Itoa(int(id)), "Created requirement "+req.Clause)
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": id, "clause": req.Clause})
}

func updateRequirement(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var req struct {
		Clause      *string `json:"clause"`
		SubClause   *string `json:"sub_clause"`
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Category    *string `json:"category"`
		Section     *string `json:"section"`
		IsMandatory *int    `json:"is_mandatory"`
		Priority    *string `json:"priority"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}

	var exists int
	if err := db.QueryRow("SELECT 1 FROM requirements WHERE id = ? AND organization_id = ?", id, orgID).Scan(&exists); err != nil {
		jsonErr(w, "Requirement not found", 404)
		return
	}

	sets := []string{}
	args := []interface{}{}
	if req.Clause != nil {
		var dup int
		db.QueryRow("SELECT COUNT(*) FROM requirements WHERE organization_id = ? AND clause = ? AND id != ?",
			orgID, *req.Clause, id).Scan(&dup)
		if dup > 0 {
			jsonErr(w, "Clause already exists in this organization", 409)
			return
		}
		sets = append(sets, "clause = ?")
		args = append(args, *req.Clause)
	}
	if req.SubClause != nil {
		sets = append(sets, "sub_clause = ?")
		args = append(args, *req.SubClause)
	}
	if req.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *req.Title)
	}
	if req.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *req.Description)
	}
	if req.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *req.Category)
	}
	if req.Section != nil {
		sets = append(sets, "section = ?")
		args = append(args, *req.Section)
	}
	if req.IsMandatory != nil {
		sets = append(sets, "is_mandatory = ?")
		args = append(args, *req.IsMandatory)
	}
	if req.Priority != nil {
		ve := &ValidationErrors{}
		validateEnum(ve, "priority", *req.Priority, validPriorities)
		if ve.HasErrors() {
			writeValidationErrors(w, ve)
			return
		}
		sets = append(sets, "priority = ?")
		args = append(args, *req.Priority)
	}
	if len(sets) == 0 {
		jsonErr(w, "No fields to update", 400)
		return
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id, orgID)
	if _, err := db.Exec("UPDATE requirements SET "+strings.Join(sets, ", ")+
		" WHERE id = ? AND organization_id = ?", args...); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(r, AuditActionUpdate, "requirements", strconv.Itoa(id), "Updated requirement")
	getRequirement(w, r, id)
}

func deleteRequirement(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	res, err := db.Exec("DELETE FROM requirements WHERE id = ? AND organization_id = ?", id, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "Requirement not found", 404)
		return
	}

	logAudit(r, AuditActionDelete, "requirements", strconv.Itoa(id), "Deleted requirement")
	jsonResp(w, map[string]string{"status": "deleted"})
}

// listRequirementsWithAssessments returns requirements with their assessments
// attached, optionally narrowed to one branch.
func listRequirementsWithAssessments(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	branchFilter := r.URL.Query().Get("branch_id")

	rows, err := db.Query("SELECT "+requirementColumns+
		" FROM requirements WHERE organization_id = ? ORDER BY clause", orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	var reqs []Requirement
	index := map[int]int{}
	for rows.Next() {
		if q, err := scanRequirement(rows); err == nil {
			q.Assessments = []GapAssessment{}
			index[q.ID] = len(reqs)
			reqs = append(reqs, q)
		}
	}
	rows.Close()
	if reqs == nil {
		jsonResp(w, []Requirement{})
		return
	}

	query := `SELECT id, requirement_id, branch_id, status, COALESCE(evidence_link,''), COALESCE(notes,''),
		organization_id, created_by, created_at, updated_at
		FROM gap_assessments WHERE organization_id = ?`
	args := []interface{}{orgID}
	if branchFilter != "" {
		query += " AND branch_id = ?"
		args = append(args, branchFilter)
	}
	aRows, err := db.Query(query+" ORDER BY updated_at DESC", args...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer aRows.Close()
	for aRows.Next() {
		var a GapAssessment
		aRows.Scan(&a.ID, &a.RequirementID, &a.BranchID, &a.Status, &a.EvidenceLink, &a.Notes,
			&a.OrganizationID, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
		if i, found := index[a.RequirementID]; found {
			reqs[i].Assessments = append(reqs[i].Assessments, a)
		}
	}

	jsonResp(w, reqs)
}

// bestStatusByRequirement returns, for each requirement in the organization
// matching the clause prefix, the highest assessment status recorded for the
// branch, and whether any assessment carries an evidence link. Requirements
// without assessments map to -1.
type requirementStatus struct {
	req         Requirement
	best        int
	hasEvidence bool
}

func fetchRequirementStatuses(orgID, branchID int, clausePrefix string) ([]requirementStatus, error) {
	query := `SELECT r.id, r.clause, COALESCE(r.sub_clause,''), r.title, COALESCE(r.description,''),
		COALESCE(r.category,''), r.standard, COALESCE(r.section,''), r.is_mandatory, r.priority,
		r.organization_id, r.created_by, r.created_at, r.updated_at,
		COALESCE(MAX(a.status), -1),
		COALESCE(SUM(CASE WHEN a.evidence_link != '' THEN 1 ELSE 0 END), 0)
		FROM requirements r
		LEFT JOIN gap_assessments a ON a.requirement_id = r.id AND a.branch_id = ?
		WHERE r.organization_id = ?`
	args := []interface{}{branchID, orgID}
	if clausePrefix != "" {
		query += " AND r.clause LIKE ?"
		args = append(args, clausePrefix+"%")
	}
	query += " GROUP BY r.id ORDER BY r.clause"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []requirementStatus
	for rows.Next() {
		var rs requirementStatus
		var evidenceCount int
		q := &rs.req
		if err := rows.Scan(&q.ID, &q.Clause, &q.SubClause, &q.Title, &q.Description,
			&q.Category, &q.Standard, &q.Section, &q.IsMandatory, &q.Priority,
			&q.OrganizationID, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt,
			&rs.best, &evidenceCount); err != nil {
			return nil, err
		}
		rs.hasEvidence = evidenceCount > 0
		out = append(out, rs)
	}
	return out, rows.Err()
}

func percentage(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}

// getComplianceStats buckets each requirement by its best assessment status
// for one branch. The four buckets always sum to the total.
func getComplianceStats(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	branchID, _ := strconv.Atoi(r.URL.Query().Get("branch_id"))
	prefix := r.URL.Query().Get("clause_prefix")

	statuses, err := fetchRequirementStatuses(orgID, branchID, prefix)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	stats := ComplianceStats{ClausePrefix: prefix, BranchID: branchID}
	implemented := 0
	withEvidence := 0
	for _, rs := range statuses {
		stats.TotalRequirements++
		switch {
		case rs.best <= 0:
			stats.StatusBreakdown.NotImplemented++
		case rs.best == 1:
			stats.StatusBreakdown.PartiallyImplemented++
		case rs.best == 2:
			stats.StatusBreakdown.MostlyImplemented++
		default:
			stats.StatusBreakdown.FullyImplemented++
		}
		if rs.best >= 2 {
			implemented++
		}
		if rs.hasEvidence {
			withEvidence++
		}
	}
	stats.ImplementationPercentage = percentage(implemented, stats.TotalRequirements)
	stats.EvidencePercentage = percentage(withEvidence, stats.TotalRequirements)

	jsonResp(w, stats)
}

// getWhatsMissing lists requirements whose best status for a branch is below
// mostly-implemented, most critical first.
func getWhatsMissing(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	branchID, _ := strconv.Atoi(r.URL.Query().Get("branch_id"))
	prefix := r.URL.Query().Get("clause_prefix")

	statuses, err := fetchRequirementStatuses(orgID, branchID, prefix)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	var missing []MissingItem
	for _, rs := range statuses {
		if rs.best < 2 {
			status := rs.best
			if status < 0 {
				status = 0
			}
			missing = append(missing, MissingItem{
				RequirementID: rs.req.ID,
				Clause:        rs.req.Clause,
				Title:         rs.req.Title,
				Priority:      rs.req.Priority,
				Status:        status,
				IsMandatory:   rs.req.IsMandatory,
			})
		}
	}
	sort.SliceStable(missing, func(i, j int) bool {
		return priorityRank(missing[i].Priority) < priorityRank(missing[j].Priority)
	})
	if missing == nil {
		missing = []MissingItem{}
	}
	jsonResp(w, missing)
}

// getIncompleteForBranch lists requirements whose best status is below fully
// implemented for one branch.
func getIncompleteForBranch(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	branchID, _ := strconv.Atoi(r.URL.Query().Get("branch_id"))

	statuses, err := fetchRequirementStatuses(orgID, branchID, "")
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	var incomplete []MissingItem
	for _, rs := range statuses {
		if rs.best < 3 {
			status := rs.best
			if status < 0 {
				status = 0
			}
			incomplete = append(incomplete, MissingItem{
				RequirementID: rs.req.ID,
				Clause:        rs.req.Clause,
				Title:         rs.req.Title,
				Priority:      rs.req.Priority,
				Status:        status,
				IsMandatory:   rs.req.IsMandatory,
			})
		}
	}
	sort.SliceStable(incomplete, func(i, j int) bool {
		return priorityRank(incomplete[i].Priority) < priorityRank(incomplete[j].Priority)
	})
	if incomplete == nil {
		incomplete = []MissingItem{}
	}
	jsonResp(w, incomplete)
}
