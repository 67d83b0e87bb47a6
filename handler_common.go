package main

import (
	"net/http"
	"strconv"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
	"github.com/ang60/gap-analysis-sub001/internal/response"
)

func jsonResp(w http.ResponseWriter, data interface{}) {
	response.JSON(w, data)
}

func jsonRespMeta(w http.ResponseWriter, data interface{}, total, page, limit int) {
	response.JSONMeta(w, data, total, page, limit)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	response.Err(w, msg, code)
}

func decodeBody(r *http.Request, v interface{}) error {
	return response.DecodeBody(r, v)
}

// currentUser returns the authenticated principal from the request context.
func currentUser(r *http.Request) (userID int, role string, orgID int) {
	userID, _ = r.Context().Value(ctxUserID).(int)
	role, _ = r.Context().Value(ctxRole).(string)
	orgID, _ = r.Context().Value(ctxOrgID).(int)
	return
}

// getUsername returns the acting user's email for audit trails.
func getUsername(r *http.Request) string {
	userID, role, _ := currentUser(r)
	if userID == 0 {
		if role == auth.RoleAdmin {
			return "api-key"
		}
		return "system"
	}
	var email string
	if err := db.QueryRow("SELECT email FROM users WHERE id = ?", userID).Scan(&email); err != nil {
		return "system"
	}
	return email
}

// requestOrg resolves the organization scope for a request. An explicit
// organization_id (query parameter or decoded body field, passed as
// explicit) that differs from the principal's organization is refused with
// 403 unless the caller is a super admin, who may target any organization.
// Returns (orgID, true) on success; on failure the error response has
// already been written.
func requestOrg(w http.ResponseWriter, r *http.Request, explicit int) (int, bool) {
	_, role, orgID := currentUser(r)
	if explicit == 0 {
		if q := r.URL.Query().Get("organization_id"); q != "" {
			explicit, _ = strconv.Atoi(q)
		}
	}
	if explicit != 0 && explicit != orgID {
		if role != auth.RoleSuperAdmin {
			jsonErr(w, "organization scope denied", 403)
			return 0, false
		}
		return explicit, true
	}
	if orgID == 0 {
		jsonErr(w, "Unauthorized", 401)
		return 0, false
	}
	return orgID, true
}

// parsePagination extracts page/limit query params with sane defaults.
func parsePagination(r *http.Request) (page, limit int) {
	page, limit = 1, 50
	if p := r.URL.Query().Get("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page = n
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	return
}

// parseIntParam parses a numeric path segment, writing a 400 on failure.
func parseIntParam(w http.ResponseWriter, s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		jsonErr(w, "invalid id", 400)
		return 0, false
	}
	return n, true
}
