package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

func handlePayments(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/payments")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == "GET":
		listPayments(w, r)
	case path == "initiate" && r.Method == "POST":
		initiatePayment(w, r)
	default:
		parts := strings.Split(path, "/")
		id, ok := parseIntParam(w, parts[0])
		if !ok {
			return
		}
		if len(parts) == 2 && parts[1] == "status" && r.Method == "PUT" {
			updatePaymentStatus(w, r, id)
			return
		}
		if r.Method == "GET" {
			getPayment(w, r, id)
			return
		}
		jsonErr(w, "Method not allowed", 405)
	}
}

const paymentColumns = `id, organization_id, user_id, amount, currency, method, COALESCE(reference,''),
	COALESCE(description,''), status, created_at, updated_at`

func scanPayment(row interface{ Scan(...interface{}) error }) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrganizationID, &p.UserID, &p.Amount, &p.Currency, &p.Method,
		&p.Reference, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func listPayments(w http.ResponseWriter, r *http.Request) {
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
	where := " WHERE " + strings.Join(conditions, " AND ")

	rows, err := db.Query("SELECT "+paymentColumns+" FROM payments"+where+" ORDER BY created_at DESC", args...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		if p, err := scanPayment(rows); err == nil {
			payments = append(payments, p)
		}
	}
	if payments == nil {
		payments = []Payment{}
	}
	jsonResp(w, payments)
}

func getPayment(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	p, err := scanPayment(db.QueryRow("SELECT "+paymentColumns+
		" FROM payments WHERE id = ? AND organization_id = ?", id, orgID))
	if err != nil {
		jsonErr(w, "Payment not found", 404)
		return
	}
	jsonResp(w, p)
}

// initiatePayment records a pending payment with a generated gateway
// reference. The actual gateway call happens out of band.
func initiatePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount         float64 `json:"amount"`
		Currency       string  `json:"currency"`
		Method         string  `json:"method"`
		Description    string  `json:"description"`
		OrganizationID int     `json:"organization_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}
	orgID, ok := requestOrg(w, r, req.OrganizationID)
	if !ok {
		return
	}
	if req.Currency == "" {
		req.Currency = "KES"
	}

	ve := &ValidationErrors{}
	if req.Amount <= 0 {
		ve.Add("amount", "must be greater than zero")
	}
	requireField(ve, "method", req.Method)
	validateEnum(ve, "method", req.Method, validPaymentMethods)
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}

	reference := "pay_" + uuid.NewString()
	userID, _, _ := currentUser(r)
	res, err := db.Exec(`INSERT INTO payments (organization_id, user_id, amount, currency, method, reference, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		orgID, userID, req.Amount, req.Currency, req.Method, reference, req.Description)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	logAudit(r, AuditActionCreate, "payments", strconv.Itoa(int(id)), "Initiated payment "+reference)
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": id, "reference": reference, "status": "pending"})
}

func updatePaymentStatus(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}
	ve := &ValidationErrors{}
	requireField(ve, "status", req.Status)
	validateEnum(ve, "status", req.Status, validPaymentStatuses)
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}

	var current string
	if err := db.QueryRow("SELECT status FROM payments WHERE id = ? AND organization_id = ?",
		id, orgID).Scan(&current); err != nil {
		jsonErr(w, "Payment not found", 404)
		return
	}
	// Terminal states never transition.
	if current == "completed" || current == "refunded" {
		if req.Status != "refunded" || current == "refunded" {
			jsonErr(w, "Payment is already "+current, 409)
			return
		}
	}

	if _, err := db.Exec("UPDATE payments SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND organization_id = ?",
		req.Status, id, orgID); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(r, AuditActionUpdate, "payments", strconv.Itoa(id), "Payment status "+current+" to "+req.Status)
	jsonResp(w, map[string]interface{}{"id": id, "status": req.Status})
}

func handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/subscriptions")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == "GET":
		listSubscriptions(w, r)
	case path == "" && r.Method == "POST":
		createSubscription(w, r)
	default:
		parts := strings.Split(path, "/")
		id, ok := parseIntParam(w, parts[0])
		if !ok {
			return
		}
		if len(parts) == 2 && parts[1] == "cancel" && r.Method == "POST" {
			cancelSubscription(w, r, id)
			return
		}
		switch r.Method {
		case "GET":
			getSubscription(w, r, id)
		case "PUT":
			updateSubscription(w, r, id)
		default:
			jsonErr(w, "Method not allowed", 405)
		}
	}
}

const subscriptionColumns = `id, organization_id, plan, status, start_date, COALESCE(end_date,''), amount, created_at, updated_at`

func scanSubscription(row interface{ Scan(...interface{}) error }) (Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.OrganizationID, &s.Plan, &s.Status, &s.StartDate, &s.EndDate,
		&s.Amount, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func listSubscriptions(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	rows, err := db.Query("SELECT "+subscriptionColumns+
		" FROM subscriptions WHERE organization_id = ? ORDER BY created_at DESC", orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		if s, err := scanSubscription(rows); err == nil {
			subs = append(subs, s)
		}
	}
	if subs == nil {
		subs = []Subscription{}
	}
	jsonResp(w, subs)
}

func getSubscription(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	s, err := scanSubscription(db.QueryRow("SELECT "+subscriptionColumns+
		" FROM subscriptions WHERE id = ? AND organization_id = ?", id, orgID))
	if err != nil {
		jsonErr(w, "Subscription not found", 404)
		return
	}
	jsonResp(w, s)
}

func createSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Plan           string  `json:"plan"`
		StartDate      string  `json:"start_date"`
		EndDate        string  `json:"end_date"`
		Amount         float64 `json:"amount"`
		OrganizationID int     `json:"organization_id"`
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
	requireField(ve, "plan", req.Plan)
	validateDate(ve, "start_date", req.StartDate)
	validateDate(ve, "end_date", req.EndDate)
	if req.Amount < 0 {
		ve.Add("amount", "must be non-negative")
	}
	if ve.HasErrors() {
		writeValidationErrors(w, ve)
		return
	}

	// One active subscription per organization.
	var active int
	db.QueryRow("SELECT COUNT(*) FROM subscriptions WHERE organization_id = ? AND status = 'active'", orgID).Scan(&active)
	if active > 0 {
		jsonErr(w, "Organization already has an active subscription", 409)
		return
	}

	var start interface{}
	if req.StartDate != "" {
		start = req.StartDate
	}
	var end interface{}
	if req.EndDate != "" {
		end = req.EndDate
	}
	res, err := db.Exec(`INSERT INTO subscriptions (organization_id, plan, start_date, end_date, amount)
		VALUES (?, ?, COALESCE(?, CURRENT_DATE), ?, ?)`,
		orgID, req.Plan, start, end, req.Amount)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	logAudit(r, AuditActionCreate, "subscriptions", strconv.Itoa(int(id)), "Created subscription "+req.Plan)
	w.WriteHeader(201)
	jsonResp(w, map[string]interface{}{"id": id, "plan": req.Plan, "status": "active"})
}

func updateSubscription(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	var req struct {
		Plan    *string  `json:"plan"`
		Status  *string  `json:"status"`
		EndDate *string  `json:"end_date"`
		Amount  *float64 `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, "Invalid request body", 400)
		return
	}

	var exists int
	if err := db.QueryRow("SELECT 1 FROM subscriptions WHERE id = ? AND organization_id = ?", id, orgID).Scan(&exists); err != nil {
		jsonErr(w, "Subscription not found", 404)
		return
	}

	ve := &ValidationErrors{}
	sets := []string{}
	args := []interface{}{}
	if req.Plan != nil {
		sets = append(sets, "plan = ?")
		args = append(args, *req.Plan)
	}
	if req.Status != nil {
		validateEnum(ve, "status", *req.Status, validSubscriptionStatuses)
		sets = append(sets, "status = ?")
		args = append(args, *req.Status)
	}
	if req.EndDate != nil {
		validateDate(ve, "end_date", *req.EndDate)
		sets = append(sets, "end_date = ?")
		args = append(args, *req.EndDate)
	}
	if req.Amount != nil {
		sets = append(sets, "amount = ?")
		args = append(args, *req.Amount)
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
	if _, err := db.Exec("UPDATE subscriptions SET "+strings.Join(sets, ", ")+
		" WHERE id = ? AND organization_id = ?", args...); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	logAudit(r, AuditActionUpdate, "subscriptions", strconv.Itoa(id), "Updated subscription")
	getSubscription(w, r, id)
}

func cancelSubscription(w http.ResponseWriter, r *http.Request, id int) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	res, err := db.Exec(`UPDATE subscriptions SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND organization_id = ? AND status != 'cancelled'`, id, orgID)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "Subscription not found", 404)
		return
	}

	logAudit(r, AuditActionUpdate, "subscriptions", strconv.Itoa(id), "Cancelled subscription")
	jsonResp(w, map[string]interface{}{"id": id, "status": "cancelled"})
}
