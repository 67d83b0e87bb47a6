package main

import (
	"net/http"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
	ws "github.com/ang60/gap-analysis-sub001/internal/websocket"
)

// wsHub pushes change events to connected clients, scoped by organization.
var wsHub = ws.NewHub()

func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	_, role, orgID := currentUser(r)
	if orgID == 0 && role != auth.RoleSuperAdmin {
		jsonErr(w, "Unauthorized", 401)
		return
	}
	// Super admins subscribe unscoped and receive every organization's events.
	if role == auth.RoleSuperAdmin {
		orgID = 0
	}
	ws.HandleWebSocket(wsHub, orgID, w, r)
}

// broadcastChange notifies an organization's clients that a resource changed.
func broadcastChange(orgID int, resourceType, action string, id int) {
	wsHub.BroadcastChange(orgID, resourceType, action, id)
}
