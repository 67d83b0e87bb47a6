package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// setupTestDB swaps the global db for a fresh in-memory database. A single
// connection keeps every query on the same :memory: instance.
func setupTestDB(t *testing.T) {
	t.Helper()
	if db != nil {
		db.Close()
	}
	var err error
	db, err = sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	if err := runMigrations(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	jwtSecret = []byte("test-secret")
	t.Cleanup(func() {
		db.Close()
		db = nil
	})
}

func createTestOrg(t *testing.T, name, domain string) int {
	t.Helper()
	res, err := db.Exec("INSERT INTO organizations (name, domain) VALUES (?, ?)", name, domain)
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

func createTestBranch(t *testing.T, orgID, branchNum int, name string) int {
	t.Helper()
	res, err := db.Exec("INSERT INTO branches (organization_id, branch_num, name) VALUES (?, ?, ?)",
		orgID, branchNum, name)
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

func createTestUser(t *testing.T, orgID int, email, role string) int {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("Password1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	res, err := db.Exec("INSERT INTO users (organization_id, email, password_hash, role) VALUES (?, ?, ?, ?)",
		orgID, email, string(hash), role)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

func createTestSession(t *testing.T, userID int) string {
	t.Helper()
	token := fmt.Sprintf("testtoken-%d-%d", userID, time.Now().UnixNano())
	expires := time.Now().Add(time.Hour).Format("2006-01-02 15:04:05")
	if _, err := db.Exec("INSERT INTO sessions (user_id, token, expires_at) VALUES (?, ?, ?)",
		userID, token, expires); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return token
}

func createTestRequirement(t *testing.T, orgID int, clause, priority string) int {
	t.Helper()
	res, err := db.Exec(`INSERT INTO requirements (clause, title, priority, organization_id)
		VALUES (?, ?, ?, ?)`, clause, "Requirement "+clause, priority, orgID)
	if err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

func createTestGap(t *testing.T, orgID, requirementID, branchID, status int, evidenceLink string) int {
	t.Helper()
	res, err := db.Exec(`INSERT INTO gap_assessments (requirement_id, branch_id, status, evidence_link, organization_id)
		VALUES (?, ?, ?, ?, ?)`, requirementID, branchID, status, evidenceLink, orgID)
	if err != nil {
		t.Fatalf("create gap: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

// appHandler is the full stack the server runs: routes behind auth and RBAC.
func appHandler() http.Handler {
	return requireAuth(requireRBAC(newMux()))
}

// doRequest sends a request through the full middleware stack as the given
// session.
func doRequest(t *testing.T, sessionToken, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: "gap_session", Value: sessionToken})
	}
	w := httptest.NewRecorder()
	appHandler().ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, w.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		t.Fatalf("decode data: %v (body %s)", err, w.Body.String())
	}
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, want, w.Body.String())
	}
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (body %s)", err, w.Body.String())
	}
	if resp.Code != want {
		t.Fatalf("error code = %q, want %q (body %s)", resp.Code, want, w.Body.String())
	}
}
