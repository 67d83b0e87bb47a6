package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

func TestCreateAPIKeyShownOnce(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/apikeys", map[string]string{"name": "ci"})
	assertStatus(t, w, 201)

	var resp struct {
		ID     int    `json:"id"`
		Key    string `json:"key"`
		Prefix string `json:"prefix"`
	}
	decodeData(t, w, &resp)
	if !strings.HasPrefix(resp.Key, "gak_") {
		t.Errorf("key = %q, want gak_ prefix", resp.Key)
	}
	if resp.Prefix != resp.Key[:12] {
		t.Errorf("prefix = %q, want first 12 chars of key", resp.Prefix)
	}

	// Only the hash is persisted.
	var hash string
	db.QueryRow("SELECT key_hash FROM api_keys WHERE id = ?", resp.ID).Scan(&hash)
	sum := sha256.Sum256([]byte(resp.Key))
	if hash != hex.EncodeToString(sum[:]) {
		t.Error("stored hash does not match the issued key")
	}

	// The list endpoint never echoes the key or hash back.
	w = doRequest(t, token, "GET", "/api/v1/apikeys", nil)
	if strings.Contains(w.Body.String(), resp.Key) || strings.Contains(w.Body.String(), hash) {
		t.Error("key material leaked in the list response")
	}
}

func TestAPIKeyAuthActsAsOrgAdmin(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)
	createTestRequirement(t, orgID, "A.5.1", "high")

	w := doRequest(t, token, "POST", "/api/v1/apikeys", map[string]string{"name": "ci"})
	var resp struct {
		Key string `json:"key"`
	}
	decodeData(t, w, &resp)

	req := httptest.NewRequest("GET", "/api/v1/requirements", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Key)
	rec := httptest.NewRecorder()
	appHandler().ServeHTTP(rec, req)
	assertStatus(t, rec, 200)

	var reqs []Requirement
	decodeData(t, rec, &reqs)
	if len(reqs) != 1 || reqs[0].OrganizationID != orgID {
		t.Errorf("requirements via api key = %+v", reqs)
	}
}

func TestToggleAPIKeyDisablesAuth(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/apikeys", map[string]string{"name": "ci"})
	var resp struct {
		ID  int    `json:"id"`
		Key string `json:"key"`
	}
	decodeData(t, w, &resp)

	w = doRequest(t, token, "POST", fmt.Sprintf("/api/v1/apikeys/%d/toggle", resp.ID), nil)
	assertStatus(t, w, 200)

	req := httptest.NewRequest("GET", "/api/v1/requirements", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Key)
	rec := httptest.NewRecorder()
	appHandler().ServeHTTP(rec, req)
	assertStatus(t, rec, 401)
}

func TestDeleteAPIKey(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/apikeys", map[string]string{"name": "ci"})
	var resp struct {
		ID int `json:"id"`
	}
	decodeData(t, w, &resp)

	w = doRequest(t, token, "DELETE", fmt.Sprintf("/api/v1/apikeys/%d", resp.ID), nil)
	assertStatus(t, w, 200)

	var count int
	db.QueryRow("SELECT COUNT(*) FROM api_keys WHERE id = ?", resp.ID).Scan(&count)
	if count != 0 {
		t.Error("key should be deleted")
	}
}
