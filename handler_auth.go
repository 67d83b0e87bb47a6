package main

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     "gap_session",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
}

func handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		jsonErr(w, "Method not allowed", 405)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		jsonErr(w, "Email and password are required", 400)
		return
	}

	var u User
	var hash string
	var branchID int
	err := db.QueryRow(`SELECT id, organization_id, COALESCE(branch_id, 0), email, password_hash,
		COALESCE(first_name,''), COALESCE(last_name,''), role, active
		FROM users WHERE email = ?`, req.Email).
		Scan(&u.ID, &u.OrganizationID, &branchID, &u.Email, &hash,
			&u.FirstName, &u.LastName, &u.Role, &u.Active)
	if err != nil {
		jsonErr(w, "Invalid email or password", 401)
		return
	}
	if branchID != 0 {
		u.BranchID = &branchID
	}
	if u.Active == 0 {
		jsonErr(w, "Account deactivated", 403)
		return
	}
	if !auth.CheckPassword(hash, req.Password) {
		jsonErr(w, "Invalid email or password", 401)
		return
	}

	expires := time.Now().Add(24 * time.Hour)
	var token string
	for attempt := 0; attempt < 3; attempt++ {
		t, err := generateSessionToken()
		if err != nil {
			jsonErr(w, err.Error(), 500)
			return
		}
		_, err = db.Exec("INSERT INTO sessions (user_id, token, expires_at) VALUES (?, ?, ?)",
			u.ID, t, expires.Format("2006-01-02 15:04:05"))
		if err == nil {
			token = t
			break
		}
	}
	if token == "" {
		jsonErr(w, "Could not create session", 500)
		return
	}
	setSessionCookie(w, token, expires)

	jwtToken, err := auth.IssueToken(jwtSecret, u.ID, u.OrganizationID, u.Role, 24*time.Hour)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	go func() {
		db.Exec("DELETE FROM sessions WHERE expires_at < CURRENT_TIMESTAMP")
	}()
	db.Exec("UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = ?", u.ID)

	logAuditDirect(u.OrganizationID, u.ID, u.Email, AuditActionLogin, "auth", "", "User logged in")
	jsonResp(w, map[string]interface{}{"user": u, "token": jwtToken})
}

func handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		jsonErr(w, "Method not allowed", 405)
		return
	}
	cookie, err := r.Cookie("gap_session")
	if err == nil {
		db.Exec("DELETE FROM sessions WHERE token = ?", cookie.Value)
	}
	setSessionCookie(w, "", time.Unix(0, 0))
	jsonResp(w, map[string]string{"status": "logged out"})
}

func handleMe(w http.ResponseWriter, r *http.Request) {
	userID := 0
	role := ""
	orgID := 0

	cookie, err := r.Cookie("gap_session")
	if err == nil {
		db.QueryRow(`SELECT s.user_id, u.role, u.organization_id
			FROM sessions s JOIN users u ON s.user_id = u.id
			WHERE s.token = ? AND s.expires_at > CURRENT_TIMESTAMP`, cookie.Value).
			Scan(&userID, &role, &orgID)
	}
	if userID == 0 {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			if claims, err := auth.ParseToken(jwtSecret, strings.TrimPrefix(authHeader, "Bearer ")); err == nil {
				userID = claims.UserID
			}
		}
	}
	if userID == 0 {
		jsonErr(w, "Unauthorized", 401)
		return
	}

	var u User
	var branchID int
	err = db.QueryRow(`SELECT id, organization_id, COALESCE(branch_id, 0), email,
		COALESCE(first_name,''), COALESCE(last_name,''), role, active, created_at
		FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.OrganizationID, &branchID, &u.Email,
			&u.FirstName, &u.LastName, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		jsonErr(w, "Unauthorized", 401)
		return
	}
	if branchID != 0 {
		u.BranchID = &branchID
	}
	jsonResp(w, u)
}

// handleRegister self-registers a staff user into an existing organization,
// matched by explicit organization_id or by email domain.
func handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		jsonErr(w, "Method not allowed", 405)
		return
	}
	var req struct {
		Email          string `json:"email"`
		Password       string `json:"password"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		OrganizationID int    `json:"organization_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	ve := &ValidationErrors{}
	requireField(ve, "email", req.Email)
	requireField(ve, "password", req.Password)
	requireField(ve, "first_name", req.FirstName)
	validateEmail(ve, "email", req.Email)
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}
	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		jsonErr(w, err.Error(), 400)
		return
	}

	orgID := req.OrganizationID
	if orgID == 0 {
		// Match the email domain against a registered organization.
		at := strings.LastIndex(req.Email, "@")
		domain := req.Email[at+1:]
		db.QueryRow("SELECT id FROM organizations WHERE domain = ?", domain).Scan(&orgID)
	}
	if orgID == 0 {
		jsonErr(w, "No organization found for this email domain", 400)
		return
	}
	var exists int
	if err := db.QueryRow("SELECT 1 FROM organizations WHERE id = ?", orgID).Scan(&exists); err != nil {
		jsonErr(w, "Organization not found", 404)
		return
	}

	var dup int
	db.QueryRow("SELECT COUNT(*) FROM users WHERE email = ?", req.Email).Scan(&dup)
	if dup > 0 {
		jsonErr(w, "Email already registered", 409)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	res, err := db.Exec(`INSERT INTO users (organization_id, email, password_hash, first_name, last_name, role, active)
		VALUES (?, ?, ?, ?, ?, ?, 1)`,
		orgID, req.Email, hash, req.FirstName, req.LastName, auth.RoleStaff)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	logAuditDirect(orgID, int(id), req.Email, AuditActionCreate, "users", strconv.Itoa(int(id)), "Self-registered")
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": id, "email": req.Email, "role": auth.RoleStaff})
}
