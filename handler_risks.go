package main

import (
	"net/http"
	"strconv"
	"strings"
)

func handleRisks(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/risks")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == "GET":
		listRisks(w, r)
	case path == "" && r.Method == "POST":
		createRisk(w, r)
	default:
		id, ok := parseIntParam(w, path)
		if !ok {
			return
		}
		switch r.Method {
		case "GET":
			getRisk(w, r, id)
		case "PUT":
			updateRisk(w, r, id)
		case "DELETE":
			deleteRisk(w, r, id)
		default:
			jsonErr(w, "Method not allowed", 405)
		}
	}
}

const riskColumns = `id, title, COALESCE(description,''), COALESCE(category,''), severity, status,
	branch_id, organization_id, created_by, created_at, updated_at`

func scanRisk(row interface{ Scan(...interface{}) error }) (Risk, error) {
	var k Risk
	err := row.Scan(&k.ID, &k.Title, &k.Description, &k.Category, &k.Severity, &k.Status,
		&k.BranchID, &k.OrganizationID, &k.CreatedBy, &k.CreatedAt, &k.UpdatedAt)
	return k, err
}

func listRisks(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	conditions := []string{"organization_id = ?"}
	args := []interface{}{orgID}
	if s := r.URL.Query().Get("status"); s != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, s)
	}
	if s := r.URL.Query().Get("severity"); s != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, s)
	}
	if b := r.URL.Query().Get("branch_id"); b != "" {
		conditions = append(conditions, "branch_id = ?")
		args = append(args, b)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	rows, err := db.Query("SELECT "+riskColumns+" FROM risks"+where+" ORDER BY created_at DESC", args...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var risks []Risk
	for rows.Next() {
		if k, err := scanRisk(rows); err == nil {
			risks = append(risks, k)
		}
	}
	if risks == nil {
		risks = []Risk{}
	}
	jsonResp(w, risks)
}

func getRisk(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	k, err := scanRisk(db.QueryRow("SELECT "+riskColumns+" FROM risks WHERE id = ? AND organization_id = ?", id, orgID))
	if err != nil {
		jsonErr(w, "Risk not found", 404)
		return
	}
	jsonResp(w, k)
}

func createRisk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title          string `json:"title"`
		Description    string `json:"description"`
		Category       string `json:"category"`
		Severity       string `json:"severity"`
		BranchID       int    `json:"branch_id"`
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
	if req.Severity == "" {
		req.Severity = "medium"
	}

	ve := &ValidationErrors{}
	requireField(ve, "title", req.Title)
	validateEnum(ve, "severity", req.Severity, validSeverities)
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}

	userID, _, _ := currentUser(r)
	res, err := db.Exec(`INSERT INTO risks (title, description, category, severity, branch_id, organization_id, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.Title, req.Description, req.Category, req.Severity, req.BranchID, orgID, userID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	logAudit(r, AuditActionCreate, "risks", strconv.Itoa(int(id)), "Created risk "+req.Title)
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": id, "title": req.Title, "status": "active"})
}

func updateRisk(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Category    *string `json:"category"`
		Severity    *string `json:"severity"`
		Status      *string `json:"status"`
		BranchID    *int    `json:"branch_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}

	var exists int
	if err := db.QueryRow("SELECT 1 FROM risks WHERE id = ? AND organization_id = ?", id, orgID).Scan(&exists); err != nil {
		jsonErr(w, "Risk not found", 404)
		return
	}

	ve := &ValidationErrors{}
	sets := []string{}
	args := []interface{}{}
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
	if req.Severity != nil {
		validateEnum(ve, "severity", *req.Severity, validSeverities)
		sets = append(sets, "severity = ?")
		args = append(args, *req.Severity)
	}
	if req.Status != nil {
		validateEnum(ve, "status", *req.Status, validRiskStatuses)
		sets = append(sets, "status = ?")
		args = append(args, *req.Status)
	}
	if req.BranchID != nil {
		sets = append(sets, "branch_id = ?")
		args = append(args, *req.BranchID)
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
	if _, err := db.Exec("UPDATE risks SET "+strings.Join(sets, ", ")+
		" WHERE id = ? AND organization_id = ?", args...); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(r, AuditActionUpdate, "risks", strconv.Itoa(id), "Updated risk")
	getRisk(w, r, id)
}

func deleteRisk(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	res, err := db.Exec("DELETE FROM risks WHERE id = ? AND organization_id = ?", id, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "Risk not found", 404)
		return
	}

	logAudit(r, AuditActionDelete, "risks", strconv.Itoa(id), "Deleted risk")
	jsonResp(w, map[string]string{"status": "deleted"})
}
