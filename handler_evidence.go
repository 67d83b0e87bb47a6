package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// uploadsDir is where evidence files land, set from the -uploads flag.
var uploadsDir = "uploads"

const maxUploadSize = 25 << 20 // 25 MB

func handleEvidence(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/evidence")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == "GET":
		listEvidence(w, r)
	case path == "" && r.Method == "POST":
		createEvidence(w, r)
	case path == "upload" && r.Method == "POST":
		uploadEvidence(w, r)
	default:
		parts := strings.Split(path, "/")
		id, ok := parseIntParam(w, parts[0])
		if !ok {
			return
		}
		if len(parts) == 2 && r.Method == "POST" {
			switch parts[1] {
			case "approve":
				reviewEvidence(w, r, id, "approved")
			case "reject":
				reviewEvidence(w, r, id, "rejected")
			default:
				jsonErr(w, "Not found", 404)
			}
			return
		}
		switch r.Method {
		case "GET":
			getEvidence(w, r, id)
		case "PUT":
			updateEvidence(w, r, id)
		case "DELETE":
			deleteEvidence(w, r, id)
		default:
			jsonErr(w, "Method not allowed", 405)
		}
	}
}

const evidenceColumns = `id, title, COALESCE(description,''), type, COALESCE(file_path,''), COALESCE(file_url,''),
	COALESCE(external_url,''), requirement_id, branch_id, uploaded_by, status,
	organization_id, created_at, updated_at`

func scanEvidence(row interface{ Scan(...interface{}) error }) (Evidence, error) {
	var e Evidence
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Type, &e.FilePath, &e.FileURL,
		&e.ExternalURL, &e.RequirementID, &e.BranchID, &e.UploadedBy, &e.Status,
		&e.OrganizationID, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func listEvidence(w http.ResponseWriter, r *http.Request) {
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
	if q := r.URL.Query().Get("status"); q != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, q)
	}
	if q := r.URL.Query().Get("type"); q != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, q)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	rows, err := db.Query("SELECT "+evidenceColumns+" FROM evidence"+where+" ORDER BY created_at DESC", args...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var items []Evidence
	for rows.Next() {
		if e, err := scanEvidence(rows); err == nil {
			items = append(items, e)
		}
	}
	if items == nil {
		items = []Evidence{}
	}
	jsonResp(w, items)
}

func getEvidence(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	e, err := scanEvidence(db.QueryRow("SELECT "+evidenceColumns+
		" FROM evidence WHERE id = ? AND organization_id = ?", id, orgID))
	if err != nil {
		jsonErr(w, "Evidence not found", 404)
		return
	}
	jsonResp(w, e)
}

func createEvidence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title          string `json:"title"`
		Description    string `json:"description"`
		Type           string `json:"type"`
		ExternalURL    string `json:"external_url"`
		RequirementID  int    `json:"requirement_id"`
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
	if req.Type == "" {
		req.Type = "document"
	}

	ve := &ValidationErrors{}
	requireField(ve, "title", req.Title)
	validateEnum(ve, "type", req.Type, validEvidenceTypes)
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}
	if req.RequirementID != 0 {
		var exists int
		if err := db.QueryRow("SELECT 1 FROM requirements WHERE id = ? AND organization_id = ?",
			req.RequirementID, orgID).Scan(&exists); err != nil {
			jsonErr(w, "Requirement not found", 404)
			return
		}
	}

	userID, _, _ := currentUser(r)
	res, err := db.Exec(`INSERT INTO evidence
		(title, description, type, external_url, requirement_id, branch_id, uploaded_by, organization_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Title, req.Description, req.Type, req.ExternalURL, req.RequirementID, req.BranchID, userID, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	logAudit(r, AuditActionCreate, "evidence", strconv.Itoa(int(id)), "Added evidence "+req.Title)
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": id, "title": req.Title, "status": "pending"})
}

// uploadEvidence accepts a multipart form with a "file" part plus metadata
// fields, stores the file under the uploads directory and records the
// evidence row pointing at it.
func uploadEvidence(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		jsonErr(w, "Invalid multipart form", 400)
		return
	}
	explicitOrg, _ := strconv.Atoi(r.FormValue("organization_id"))
	orgID, ok := requestOrg(w, r, explicitOrg)
	if !ok {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonErr(w, "Missing file", 400)
		return
	}
	defer file.Close()
	if header.Size > maxUploadSize {
		jsonErr(w, "File too large", 400)
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}
	evType := r.FormValue("type")
	if evType == "" {
		evType = "document"
	}
	ve := &ValidationErrors{}
	validateEnum(ve, "type", evType, validEvidenceTypes)
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}
	requirementID, _ := strconv.Atoi(r.FormValue("requirement_id"))
	branchID, _ := strconv.Atoi(r.FormValue("branch_id"))

	orgDir := filepath.Join(uploadsDir, strconv.Itoa(orgID))
	if err := os.MkdirAll(orgDir, 0o755); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	name := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(header.Filename))
	dest := filepath.Join(orgDir, name)
	out, err := os.Create(dest)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(dest)
		jsonErr(w, err.Error(), 500)
		return
	}
	out.Close()

	fileURL := "/files/" + strconv.Itoa(orgID) + "/" + name
	userID, _, _ := currentUser(r)
	res, err := db.Exec(`INSERT INTO evidence
		(title, description, type, file_path, file_url, requirement_id, branch_id, uploaded_by, organization_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		title, r.FormValue("description"), evType, dest, fileURL, requirementID, branchID, userID, orgID)
	if err != nil {
		os.Remove(dest)
		jsonErr(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	logAudit(r, AuditActionCreate, "evidence", strconv.Itoa(int(id)), "Uploaded evidence "+title)
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": id, "title": title, "file_url": fileURL, "status": "pending"})
}

func updateEvidence(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Type        *string `json:"type"`
		ExternalURL *string `json:"external_url"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}

	var exists int
	if err := db.QueryRow("SELECT 1 FROM evidence WHERE id = ? AND organization_id = ?", id, orgID).Scan(&exists); err != nil {
		jsonErr(w, "Evidence not found", 404)
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
	if req.Type != nil {
		validateEnum(ve, "type", *req.Type, validEvidenceTypes)
		sets = append(sets, "type = ?")
		args = append(args, *req.Type)
	}
	if req.ExternalURL != nil {
		sets = append(sets, "external_url = ?")
		args = append(args, *req.ExternalURL)
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
	if _, err := db.Exec("UPDATE evidence SET "+strings.Join(sets, ", ")+
		" WHERE id = ? AND organization_id = ?", args...); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(r, AuditActionUpdate, "evidence", strconv.Itoa(id), "Updated evidence")
	getEvidence(w, r, id)
}

// reviewEvidence moves an evidence item to approved or rejected and notifies
// the uploader.
func reviewEvidence(w http.ResponseWriter, r *http.Request, id int, status string) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var uploadedBy int
	var title string
	if err := db.QueryRow("SELECT uploaded_by, title FROM evidence WHERE id = ? AND organization_id = ?",
		id, orgID).Scan(&uploadedBy, &title); err != nil {
		jsonErr(w, "Evidence not found", 404)
		return
	}

	if _, err := db.Exec("UPDATE evidence SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND organization_id = ?",
		status, id, orgID); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	userID, _, _ := currentUser(r)
	if uploadedBy != 0 && uploadedBy != userID {
		createNotification(orgID, uploadedBy, "evidence_"+status, "Evidence "+status,
			"Your evidence \""+title+"\" was "+status, "evidence:"+strconv.Itoa(id))
	}

	action := AuditActionApprove
	if status == "rejected" {
		action = AuditActionReject
	}
	logAudit(r, action, "evidence", strconv.Itoa(id), "Evidence "+status)
	jsonResp(w, map[string]interface{}{"id": id, "status": status})
}

func deleteEvidence(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var filePath string
	if err := db.QueryRow("SELECT COALESCE(file_path,'') FROM evidence WHERE id = ? AND organization_id = ?",
		id, orgID).Scan(&filePath); err != nil {
		jsonErr(w, "Evidence not found", 404)
		return
	}

	if _, err := db.Exec("DELETE FROM evidence WHERE id = ? AND organization_id = ?", id, orgID); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if filePath != "" {
		os.Remove(filePath)
	}

	logAudit(r, AuditActionDelete, "evidence", strconv.Itoa(id), "Deleted evidence")
	jsonResp(w, map[string]string{"status": "deleted"})
}
