package main

import (
	"net/http"
	"strconv"
	"strings"
)

func handleBranches(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/branches")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == "GET":
		listBranches(w, r)
	case path == "" && r.Method == "POST":
		createBranch(w, r)
	default:
		id, ok := parseIntParam(w, path)
		if !ok {
			return
		}
		switch r.Method {
		case "GET":
			getBranch(w, r, id)
		case "PUT":
			updateBranch(w, r, id)
		default:
			jsonErr(w, "Method not allowed", 405)
		}
	}
}

const branchColumns = `id, organization_id, branch_num, name, COALESCE(region,''), active, manager_id, created_at`

func listBranches(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	rows, err := db.Query("SELECT "+branchColumns+" FROM branches WHERE organization_id = ? ORDER BY branch_num", orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var branches []Branch
	for rows.Next() {
		var b Branch
		rows.Scan(&b.ID, &b.OrganizationID, &b.BranchNum, &b.Name, &b.Region, &b.Active, &b.ManagerID, &b.CreatedAt)
		branches = append(branches, b)
	}
	if branches == nil {
		branches = []Branch{}
	}
	jsonResp(w, branches)
}

func getBranch(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var b Branch
	err := db.QueryRow("SELECT "+branchColumns+" FROM branches WHERE id = ? AND organization_id = ?", id, orgID).
		Scan(&b.ID, &b.OrganizationID, &b.BranchNum, &b.Name, &b.Region, &b.Active, &b.ManagerID, &b.CreatedAt)
	if err != nil {
		jsonErr(w, "Branch not found", 404)
		return
	}
	jsonResp(w, b)
}

// createBranch assigns the next organization-local branch number inside a
// transaction. The UNIQUE(organization_id, branch_num) constraint catches
// concurrent writers; on conflict the transaction is retried.
func createBranch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string `json:"name"`
		Region         string `json:"region"`
		ManagerID      int    `json:"manager_id"`
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
	requireField(ve, "name", req.Name)
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}
	if req.ManagerID != 0 {
		var exists int
		if err := db.QueryRow("SELECT 1 FROM users WHERE id = ? AND organization_id = ?",
			req.ManagerID, orgID).Scan(&exists); err != nil {
			jsonErr(w, "Manager not found", 404)
			return
		}
	}

	var manager interface{}
	if req.ManagerID != 0 {
		manager = req.ManagerID
	}

	var branchID int64
	var branchNum int
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		tx, err := db.Begin()
		if err != nil {
			jsonErr(w, err.Error(), 500)
			return
		}
		var next int
		tx.QueryRow("SELECT COALESCE(MAX(branch_num), 0) + 1 FROM branches WHERE organization_id = ?", orgID).Scan(&next)
		res, err := tx.Exec("INSERT INTO branches (organization_id, branch_num, name, region, manager_id) VALUES (?, ?, ?, ?, ?)",
			orgID, next, req.Name, req.Region, manager)
		if err != nil {
			tx.Rollback()
			lastErr = err
			continue
		}
		if err := tx.Commit(); err != nil {
			lastErr = err
			continue
		}
		branchID, _ = res.LastInsertId()
		branchNum = next
		lastErr = nil
		break
	}
	if lastErr != nil {
		jsonErr(w, lastErr.Error(), 500)
		return
	}

	logAudit(r, AuditActionCreate, "branches", strconv.Itoa(int(branchID)), "Created branch "+req.Name)
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": branchID, "branch_num": branchNum, "name": req.Name})
}

func updateBranch(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var req struct {
		Name      *string `json:"name"`
		Region    *string `json:"region"`
		ManagerID *int    `json:"manager_id"`
		Active    *int    `json:"active"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}

	var exists int
	if err := db.QueryRow("SELECT 1 FROM branches WHERE id = ? AND organization_id = ?", id, orgID).Scan(&exists); err != nil {
		jsonErr(w, "Branch not found", 404)
		return
	}

	sets := []string{}
	args := []interface{}{}
	if req.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *req.Name)
	}
	if req.Region != nil {
		sets = append(sets, "region = ?")
		args = append(args, *req.Region)
	}
	if req.ManagerID != nil {
		if *req.ManagerID != 0 {
			var ok2 int
			if err := db.QueryRow("SELECT 1 FROM users WHERE id = ? AND organization_id = ?",
				*req.ManagerID, orgID).Scan(&ok2); err != nil {
				jsonErr(w, "Manager not found", 404)
				return
			}
			sets = append(sets, "manager_id = ?")
			args = append(args, *req.ManagerID)
		} else {
			sets = append(sets, "manager_id = NULL")
		}
	}
	if req.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *req.Active)
	}
	if len(sets) == 0 {
		jsonErr(w, "No fields to update", 400)
		return
	}
	args = append(args, id, orgID)
	if _, err := db.Exec("UPDATE branches SET "+strings.Join(sets, ", ")+" WHERE id = ? AND organization_id = ?", args...); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(r, AuditActionUpdate, "branches", strconv.Itoa(id), "Updated branch")
	getBranch(w, r, id)
}
