package main

import (
	"net/http"
	"strconv"
	"strings"
)

func handleGaps(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/gaps")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == "GET":
		listGaps(w, r)
	case path == "" && r.Method == "POST":
		createGap(w, r)
	default:
		id, ok := parseIntParam(w, path)
		if !ok {
			return
		}
		switch r.Method {
		case "GET":
			getGap(w, r, id)
		case "PUT":
			updateGap(w, r, id)
		case "DELETE":
			deleteGap(w, r, id)
		default:
			jsonErr(w, "Method not allowed", 405)
		}
	}
}

const gapColumns = `id, requirement_id, branch_id, status, COALESCE(evidence_link,''), COALESCE(notes,''),
	organization_id, created_by, created_at, updated_at`

func scanGap(row interface{ Scan(...interface{}) error }) (GapAssessment, error) {
	var a GapAssessment
	err := row.Scan(&a.ID, &a.RequirementID, &a.BranchID, &a.Status, &a.EvidenceLink, &a.Notes,
		&a.OrganizationID, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func listGaps(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	conditions := []string{"organization_id = ?"}
	args := []interface{}{orgID}
	if q := r.URL.Query().Get("requirement_id"); q != "" {
		conditions = append(conditions, "requirement_id = ?")
		args = append(args, q)
	}
	if q := r.URL.Query().Get("branch_id"); q != "" {
		conditions = append(conditions, "branch_id = ?")
		args = append(args, q)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	rows, err := db.Query("SELECT "+gapColumns+" FROM gap_assessments"+where+" ORDER BY updated_at DESC", args...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var gaps []GapAssessment
	for rows.Next() {
		if a, err := scanGap(rows); err == nil {
			gaps = append(gaps, a)
		}
	}
	if gaps == nil {
		gaps = []GapAssessment{}
	}
	jsonResp(w, gaps)
}

func getGap(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	a, err := scanGap(db.QueryRow("SELECT "+gapColumns+" FROM gap_assessments WHERE id = ? AND organization_id = ?", id, orgID))
	if err != nil {
		jsonErr(w, "Assessment not found", 404)
		return
	}
	jsonResp(w, a)
}

func createGap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequirementID  int    `json:"requirement_id"`
		BranchID       int    `json:"branch_id"`
		Status         *int   `json:"status"`
		EvidenceLink   string `json:"evidence_link"`
		Notes          string `json:"notes"`
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

	ve := &ValidationErrors{}
	validatePositiveInt(ve, "requirement_id", req.RequirementID)
	validatePositiveInt(ve, "branch_id", req.BranchID)
	status := 0
	if req.Status != nil {
		status = *req.Status
	}
	if status < 0 || status > 3 {
		ve.Add("status", "must be between 0 and 3")
	}
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}

	// Both the requirement and the branch must belong to the resolved tenant.
	var exists int
	if err := db.QueryRow("SELECT 1 FROM requirements WHERE id = ? AND organization_id = ?",
		req.RequirementID, orgID).Scan(&exists); err != nil {
		jsonErr(w, "Requirement not found", 404)
		return
	}
	if err := db.QueryRow("SELECT 1 FROM branches WHERE id = ? AND organization_id = ?",
		req.BranchID, orgID).Scan(&exists); err != nil {
		jsonErr(w, "Branch not found", 404)
		return
	}

	userID, _, _ := currentUser(r)
	res, err := db.Exec(`INSERT INTO gap_assessments
		(requirement_id, branch_id, status, evidence_link, notes, organization_id, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.RequirementID, req.BranchID, status, req.EvidenceLink, req.Notes, orgID, userID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	logAudit(r, AuditActionCreate, "gaps", strconv.Itoa(int(id)), "Recorded assessment")
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": id, "status": status})
}

func updateGap(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var req struct {
		Status       *int    `json:"status"`
		EvidenceLink *string `json:"evidence_link"`
		Notes        *string `json:"notes"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}

	var exists int
	if err := db.QueryRow("SELECT 1 FROM gap_assessments WHERE id = ? AND organization_id = ?", id, orgID).Scan(&exists); err != nil {
		jsonErr(w, "Assessment not found", 404)
		return
	}

	sets := []string{}
	args := []interface{}{}
	if req.Status != nil {
		if *req.Status < 0 || *req.Status > 3 {
			jsonErr(w, "Status must be between 0 and 3", 400)
			return
		}
		sets = append(sets, "status = ?")
		args = append(args, *req.Status)
	}
	if req.EvidenceLink != nil {
		sets = append(sets, "evidence_link = ?")
		args = append(args, *req.EvidenceLink)
	}
	if req.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *req.Notes)
	}
	if len(sets) == 0 {
		jsonErr(w, "No fields to update", 400)
		return
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id, orgID)
	if _, err := db.Exec("UPDATE gap_assessments SET "+strings.Join(sets, ", ")+
		" WHERE id = ? AND organization_id = ?", args...); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(r, AuditActionUpdate, "gaps", strconv.Itoa(id), "Updated assessment")
	getGap(w, r, id)
}

func deleteGap(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	res, err := db.Exec("DELETE FROM gap_assessments WHERE id = ? AND organization_id = ?", id, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "Assessment not found", 404)
		return
	}

	logAudit(r, AuditActionDelete, "gaps", strconv.Itoa(id), "Deleted assessment")
	jsonResp(w, map[string]string{"status": "deleted"})
}
