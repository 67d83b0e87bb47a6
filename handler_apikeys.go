package main

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

func handleAPIKeys(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/apikeys")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == "GET":
		listAPIKeys(w, r)
	case path == "" && r.Method == "POST":
		createAPIKey(w, r)
	default:
		parts := strings.Split(path, "/")
		id, ok := parseIntParam(w, parts[0])
		if !ok {
			return
		}
		if len(parts) == 2 && parts[1] == "toggle" && r.Method == "POST" {
			toggleAPIKey(w, r, id)
			return
		}
		if r.Method == "DELETE" {
			deleteAPIKey(w, r, id)
			return
		}
		jsonErr(w, "Method not allowed", 405)
	}
}

func listAPIKeys(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	rows, err := db.Query(`SELECT id, organization_id, name, prefix, active, created_by, created_at, last_used
		FROM api_keys WHERE organization_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		rows.Scan(&k.ID, &k.OrganizationID, &k.Name, &k.Prefix, &k.Active, &k.CreatedBy, &k.CreatedAt, &k.LastUsed)
		keys = append(keys, k)
	}
	if keys == nil {
		keys = []APIKey{}
	}
	jsonResp(w, keys)
}

// createAPIKey mints a new key. The full key is returned exactly once; only
// its SHA-256 hash is stored.
func createAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	ve := &ValidationErrors{}
	requireField(ve, "name", req.Name)
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}

	key := "gak_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	sum := sha256.Sum256([]byte(key))
	hash := hex.EncodeToString(sum[:])
	prefix := key[:12]

	userID, _, _ := currentUser(r)
	res, err := db.Exec(`INSERT INTO api_keys (organization_id, name, prefix, key_hash, created_by)
		VALUES (?, ?, ?, ?, ?)`, orgID, req.Name, prefix, hash, userID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	logAudit(r, AuditActionCreate, "apikeys", strconv.Itoa(int(id)), "Created API key "+req.Name)
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": id, "name": req.Name, "key": key, "prefix": prefix})
}

func toggleAPIKey(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	res, err := db.Exec("UPDATE api_keys SET active = 1 - active WHERE id = ? AND organization_id = ?", id, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "API key not found", 404)
		return
	}

	var active int
	db.QueryRow("SELECT active FROM api_keys WHERE id = ?", id).Scan(&active)
	logAudit(r, AuditActionUpdate, "apikeys", strconv.Itoa(id), "Toggled API key")
	jsonResp(w, map[string]interface{}{"id": id, "active": active})
}

func deleteAPIKey(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	res, err := db.Exec("DELETE FROM api_keys WHERE id = ? AND organization_id = ?", id, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "API key not found", 404)
		return
	}

	logAudit(r, AuditActionDelete, "apikeys", strconv.Itoa(id), "Deleted API key")
	jsonResp(w, map[string]string{"status": "deleted"})
}
