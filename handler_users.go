package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

func handleUsers(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/users")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == "GET":
		listUsers(w, r)
	case path == "" && r.Method == "POST":
		createUser(w, r)
	default:
		parts := strings.Split(path, "/")
		id, ok := parseIntParam(w, parts[0])
		if !ok {
			return
		}
		if len(parts) == 2 {
			switch {
			case parts[1] == "assign-role" && r.Method == "POST":
				assignUserRole(w, r, id)
			case parts[1] == "reset-password" && r.Method == "POST":
				resetUserPassword(w, r, id)
			default:
				jsonErr(w, "Not found", 404)
			}
			return
		}
		switch r.Method {
		case "GET":
			getUser(w, r, id)
		case "PUT":
			updateUser(w, r, id)
		case "DELETE":
			deleteUser(w, r, id)
		default:
			jsonErr(w, "Method not allowed", 405)
		}
	}
}

func scanUserRows(rows *sql.Rows) []User {
	var users []User
	for rows.Next() {
		var u User
		var branchID int
		var lastLogin string
		rows.Scan(&u.ID, &u.OrganizationID, &branchID, &u.Email,
			&u.FirstName, &u.LastName, &u.Role, &u.Active, &lastLogin, &u.CreatedAt)
		if branchID != 0 {
			u.BranchID = &branchID
		}
		if lastLogin != "" {
			u.LastLogin = &lastLogin
		}
		users = append(users, u)
	}
	if users == nil {
		users = []User{}
	}
	return users
}

const userColumns = `id, organization_id, COALESCE(branch_id, 0), email,
	COALESCE(first_name,''), COALESCE(last_name,''), role, active,
	COALESCE(last_login,''), created_at`

func listUsers(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	page, limit := parsePagination(r)

	conditions := []string{"organization_id = ?"}
	args := []interface{}{orgID}
	if role := r.URL.Query().Get("role"); role != "" {
		conditions = append(conditions, "role = ?")
		args = append(args, role)
	}
	if b := r.URL.Query().Get("branch_id"); b != "" {
		conditions = append(conditions, "branch_id = ?")
		args = append(args, b)
	}
	if search := r.URL.Query().Get("search"); search != "" {
		conditions = append(conditions, "(email LIKE ? OR first_name LIKE ? OR last_name LIKE ?)")
		s := "%" + search + "%"
		args = append(args, s, s, s)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

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

func getUser(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var u User
	var branchID int
	var lastLogin string
	err := db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ? AND organization_id = ?", id, orgID).
		Scan(&u.ID, &u.OrganizationID, &branchID, &u.Email,
			&u.FirstName, &u.LastName, &u.Role, &u.Active, &lastLogin, &u.CreatedAt)
	if err != nil {
		jsonErr(w, "User not found", 404)
		return
	}
	if branchID != 0 {
		u.BranchID = &branchID
	}
	if lastLogin != "" {
		u.LastLogin = &lastLogin
	}
	jsonResp(w, u)
}

func createUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email          string `json:"email"`
		Password       string `json:"password"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		Role           string `json:"role"`
		OrganizationID int    `json:"organization_id"`
		BranchID       int    `json:"branch_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}
	orgID, ok := requestOrg(w, r, req.OrganizationID)
	if !ok {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Role == "" {
		req.Role = auth.RoleStaff
	}

	ve := &ValidationErrors{}
	requireField(ve, "email", req.Email)
	requireField(ve, "password", req.Password)
	validateEmail(ve, "email", req.Email)
	if !auth.ValidRole(req.Role) {
		ve.Add("role", "must be one of: "+strings.Join(auth.AllRoles, ", "))
	}
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}
	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		jsonErr(w, err.Error(), 400)
		return
	}
	// Only a super admin can mint another super admin.
	_, callerRole, _ := currentUser(r)
	if req.Role == auth.RoleSuperAdmin && callerRole != auth.RoleSuperAdmin {
		jsonErr(w, "Cannot assign super_admin role", 403)
		return
	}

	var dup int
	db.QueryRow("SELECT COUNT(*) FROM users WHERE email = ?", req.Email).Scan(&dup)
	if dup > 0 {
		jsonErr(w, "Email already registered", 409)
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

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	var branch interface{}
	if req.BranchID != 0 {
		branch = req.BranchID
	}
	res, err := db.Exec(`INSERT INTO users (organization_id, email, password_hash, first_name, last_name, role, branch_id, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		orgID, req.Email, hash, req.FirstName, req.LastName, req.Role, branch)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	logAudit(r, AuditActionCreate, "users", strconv.Itoa(int(id)), "Created user "+req.Email)
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": id, "email": req.Email, "role": req.Role})
}

func updateUser(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var req struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		BranchID  *int    `json:"branch_id"`
		Active    *int    `json:"active"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}

	var exists int
	if err := db.QueryRow("SELECT 1 FROM users WHERE id = ? AND organization_id = ?", id, orgID).Scan(&exists); err != nil {
		jsonErr(w, "User not found", 404)
		return
	}

	sets := []string{}
	args := []interface{}{}
	if req.FirstName != nil {
		sets = append(sets, "first_name = ?")
		args = append(args, *req.FirstName)
	}
	if req.LastName != nil {
		sets = append(sets, "last_name = ?")
		args = append(args, *req.LastName)
	}
	if req.BranchID != nil {
		if *req.BranchID != 0 {
			var ok2 int
			if err := db.QueryRow("SELECT 1 FROM branches WHERE id = ? AND organization_id = ?",
				*req.BranchID, orgID).Scan(&ok2); err != nil {
				jsonErr(w, "Branch not found", 404)
				return
			}
			sets = append(sets, "branch_id = ?")
			args = append(args, *req.BranchID)
		} else {
			sets = append(sets, "branch_id = NULL")
		}
	}
	if req.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *req.Active)
		if *req.Active == 0 {
			db.Exec("DELETE FROM sessions WHERE user_id = ?", id)
		}
	}
	if len(sets) == 0 {
		jsonErr(w, "No fields to update", 400)
		return
	}
	args = append(args, id, orgID)
	_, err := db.Exec("UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ? AND organization_id = ?", args...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(r, AuditActionUpdate, "users", strconv.Itoa(id), "Updated user")
	getUser(w, r, id)
}

func assignUserRole(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}
	if !auth.ValidRole(req.Role) {
		jsonErr(w, "Invalid role", 400)
		return
	}
	_, callerRole, _ := currentUser(r)
	if req.Role == auth.RoleSuperAdmin && callerRole != auth.RoleSuperAdmin {
		jsonErr(w, "Cannot assign super_admin role", 403)
		return
	}

	res, err := db.Exec("UPDATE users SET role = ? WHERE id = ? AND organization_id = ?", req.Role, id, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "User not found", 404)
		return
	}

	logAudit(r, AuditActionUpdate, "users", strconv.Itoa(id), fmt.Sprintf("Assigned role %s", req.Role))
	jsonResp(w, map[string]interface{}{"id": id, "role": req.Role})
}

func resetUserPassword(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}
	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		jsonErr(w, err.Error(), 400)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	res, err := db.Exec("UPDATE users SET password_hash = ? WHERE id = ? AND organization_id = ?", hash, id, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "User not found", 404)
		return
	}
	// Force re-login with the new password.
	db.Exec("DELETE FROM sessions WHERE user_id = ?", id)

	logAudit(r, AuditActionUpdate, "users", strconv.Itoa(id), "Password reset")
	jsonResp(w, map[string]string{"status": "password reset"})
}

func deleteUser(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	callerID, _, _ := currentUser(r)
	if callerID == id {
		jsonErr(w, "Cannot delete your own account", 400)
		return
	}

	res, err := db.Exec("DELETE FROM users WHERE id = ? AND organization_id = ?", id, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "User not found", 404)
		return
	}

	logAudit(r, AuditActionDelete, "users", strconv.Itoa(id), "Deleted user")
	jsonResp(w, map[string]string{"status": "deleted"})
}
