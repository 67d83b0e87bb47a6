package main

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

func handleExport(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/export")
	path = strings.Trim(path, "/")
	if r.Method != "GET" {
		jsonErr(w, "Method not allowed", 405)
		return
	}

	switch path {
	case "requirements":
		exportRequirements(w, r)
	case "compliance-report":
		exportComplianceReport(w, r)
	default:
		jsonErr(w, "Not found", 404)
	}
}

// exportRequirements exports the organization's requirement catalog to CSV
// or Excel.
func exportRequirements(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	query := `SELECT clause, COALESCE(sub_clause,''), title, COALESCE(description,''),
		COALESCE(category,''), standard, COALESCE(section,''), is_mandatory, priority
		FROM requirements WHERE organization_id = ?`
	var args []interface{}
	args = append(args, orgID)
	if c := r.URL.Query().Get("category"); c != "" {
		query += " AND category = ?"
		args = append(args, c)
	}
	if p := r.URL.Query().Get("priority"); p != "" {
		query += " AND priority = ?"
		args = append(args, p)
	}
	query += " ORDER BY clause"

	rows, err := db.Query(query, args...)
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	headers := []string{"Clause", "Sub Clause", "Title", "Description", "Category", "Standard", "Section", "Mandatory", "Priority"}
	var data [][]string
	for rows.Next() {
		var clause, subClause, title, description, category, standard, section, priority string
		var mandatory int
		rows.Scan(&clause, &subClause, &title, &description, &category, &standard, &section, &mandatory, &priority)
		data = append(data, []string{clause, subClause, title, description, category, standard, section, strconv.Itoa(mandatory), priority})
	}

	logAudit(r, AuditActionExport, "requirements", "", fmt.Sprintf("Exported %d requirements (%s)", len(data), format))

	if format == "xlsx" {
		exportExcel(w, "Requirements", headers, data)
	} else {
		exportCSV(w, "requirements.csv", headers, data)
	}
}

// exportComplianceReport exports one branch's per-requirement implementation
// status to CSV or Excel.
func exportComplianceReport(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrg(w, r, 0)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	branchID, _ := strconv.Atoi(r.URL.Query().Get("branch_id"))

	statuses, err := fetchRequirementStatuses(orgID, branchID, r.URL.Query().Get("clause_prefix"))
	if err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	statusLabels := []string{"Not Implemented", "Partially Implemented", "Mostly Implemented", "Fully Implemented"}
	headers := []string{"Clause", "Title", "Priority", "Mandatory", "Status", "Has Evidence"}
	var data [][]string
	for _, rs := range statuses {
		label := "Not Assessed"
		if rs.best >= 0 && rs.best < len(statusLabels) {
			label = statusLabels[rs.best]
		}
		evidence := "no"
		if rs.hasEvidence {
			evidence = "yes"
		}
		data = append(data, []string{rs.req.Clause, rs.req.Title, rs.req.Priority,
			strconv.Itoa(rs.req.IsMandatory), label, evidence})
	}

	logAudit(r, AuditActionExport, "compliance", "", fmt.Sprintf("Exported compliance report for branch %d (%s)", branchID, format))

	if format == "xlsx" {
		exportExcel(w, "Compliance", headers, data)
	} else {
		exportCSV(w, "compliance_report.csv", headers, data)
	}
}

// exportCSV writes data to CSV format.
func exportCSV(w http.ResponseWriter, filename string, headers []string, data [][]string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(headers); err != nil {
		http.Error(w, "Failed to write CSV headers", 500)
		return
	}
	for _, row := range data {
		if err := writer.Write(row); err != nil {
			http.Error(w, "Failed to write CSV row", 500)
			return
		}
	}
}

// exportExcel writes data to Excel format.
func exportExcel(w http.ResponseWriter, sheetName string, headers []string, data [][]string) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		http.Error(w, "Failed to create Excel sheet", 500)
		return
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		http.Error(w, "Failed to create header style", 500)
		return
	}

	for i, header := range headers {
		cell := fmt.Sprintf("%s1", string(rune('A'+i)))
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, row := range data {
		for colIdx, value := range row {
			cell := fmt.Sprintf("%s%d", string(rune('A'+colIdx)), rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	for i := range headers {
		col := string(rune('A' + i))
		f.SetColWidth(sheetName, col, col, 18)
	}

	if sheetName != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", strings.ToLower(sheetName)))

	if err := f.Write(w); err != nil {
		http.Error(w, "Failed to write Excel file", 500)
		return
	}
}
