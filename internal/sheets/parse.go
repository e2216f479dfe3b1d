package sheets

import (
	"strconv"
	"strings"
	"time"
)

// Column headers as they appear in the spreadsheet.
const (
	colName           = "Customer_Name"
	colStatus         = "Status"
	colMRR            = "MRR"
	colPrevMonth      = "Previous_Month_Revenue"
	colPlanDuration   = "Plan_Duration"
	colSetupFee       = "Setup_Fee"
	colStartDate      = "Start_Date"
	colCategory       = "Category"
	colDescription    = "Description"
	colAmount         = "Amount"
	colDate           = "Date"
	colProjectName    = "Project_Name"
	colClient         = "Client"
	colValueAmount    = "Value_Amount"
	colCompletionDate = "Completion_Date"
	colMonth          = "Month"
	colActiveCust     = "Active_Customers"
	colNewCust        = "New_Customers"
	colChurnedCust    = "Churned_Customers"
	colTotalExpenses  = "Total_Expenses"
	colMarketingSpend = "Marketing_Spend"
	colNetNewARR      = "Net_New_ARR"

	defaultPlanMonths = 12
)

var dateLayouts = []string{"2006-01-02", "01/02/2006", "02/01/2006", "2006/01/02"}

// RowsFromValues zips a header row with data rows. Short rows are padded so
// every record carries the full column set.
func RowsFromValues(values [][]string) []Row {
	if len(values) < 2 {
		return nil
	}
	headers := values[0]
	rows := make([]Row, 0, len(values)-1)
	for _, raw := range values[1:] {
		row := make(Row, len(headers))
		for i, header := range headers {
			if i < len(raw) {
				row[header] = raw[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func parseCustomers(values [][]string) []Customer {
	rows := RowsFromValues(values)
	customers := make([]Customer, 0, len(rows))
	for _, row := range rows {
		duration := parseInt(row[colPlanDuration], defaultPlanMonths)
		customers = append(customers, Customer{
			Name:                 row[colName],
			Status:               row[colStatus],
			MRR:                  parseFloat(row[colMRR]),
			PreviousMonthRevenue: parseFloat(row[colPrevMonth]),
			PlanDuration:         duration,
			SetupFee:             parseFloat(row[colSetupFee]),
			StartDate:            parseDate(row[colStartDate]),
		})
	}
	return customers
}

func parseExpenses(values [][]string) []Expense {
	rows := RowsFromValues(values)
	expenses := make([]Expense, 0, len(rows))
	for _, row := range rows {
		expenses = append(expenses, Expense{
			Category:    row[colCategory],
			Description: row[colDescription],
			Amount:      parseFloat(row[colAmount]),
			Date:        parseDate(row[colDate]),
		})
	}
	return expenses
}

func parseProjects(values [][]string) []Project {
	rows := RowsFromValues(values)
	projects := make([]Project, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, Project{
			Name:           row[colProjectName],
			Client:         row[colClient],
			Status:         row[colStatus],
			ValueAmount:    parseFloat(row[colValueAmount]),
			CompletionDate: parseDate(row[colCompletionDate]),
		})
	}
	return projects
}

func parseSnapshots(values [][]string) []Snapshot {
	rows := RowsFromValues(values)
	snapshots := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		snapshots = append(snapshots, Snapshot{
			Month:            row[colMonth],
			MRR:              parseFloat(row[colMRR]),
			ActiveCustomers:  parseFloat(row[colActiveCust]),
			NewCustomers:     parseFloat(row[colNewCust]),
			ChurnedCustomers: parseFloat(row[colChurnedCust]),
			TotalExpenses:    parseFloat(row[colTotalExpenses]),
			MarketingSpend:   parseFloat(row[colMarketingSpend]),
			NetNewARR:        parseFloat(row[colNetNewARR]),
		})
	}
	return snapshots
}

// parseFloat tolerates thousands separators and junk; junk parses as zero.
func parseFloat(raw string) float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return 0
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return value
}

func parseInt(raw string, fallback int) int {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return fallback
	}
	return int(value)
}

// parseDate tries the formats seen in the source sheet, zero time on failure.
func parseDate(raw string) time.Time {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t
		}
	}
	return time.Time{}
}
