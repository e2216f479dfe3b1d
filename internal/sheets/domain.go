// Package sheets pulls operational business data out of the company
// spreadsheet gateway and exposes it as typed records.
package sheets

import "time"

// Sheet tab names in the source spreadsheet.
const (
	SheetCustomers = "Customers"
	SheetExpenses  = "Expenses"
	SheetProjects  = "Projects"
	SheetSnapshots = "Monthly_Snapshots"
)

// Customer is one row of the Customers tab.
type Customer struct {
	Name                 string    `json:"name"`
	Status               string    `json:"status"`
	MRR                  float64   `json:"mrr"`
	PreviousMonthRevenue float64   `json:"previous_month_revenue"`
	PlanDuration         int       `json:"plan_duration"`
	SetupFee             float64   `json:"setup_fee"`
	StartDate            time.Time `json:"start_date"`
}

// Active reports whether the customer currently counts toward revenue.
func (c Customer) Active() bool {
	return c.Status == "Active"
}

// Expense is one row of the Expenses tab.
type Expense struct {
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Date        time.Time `json:"date"`
}

// Project is one row of the Projects tab.
type Project struct {
	Name           string    `json:"name"`
	Client         string    `json:"client"`
	Status         string    `json:"status"`
	ValueAmount    float64   `json:"value_amount"`
	CompletionDate time.Time `json:"completion_date"`
}

// Snapshot is one row of the Monthly_Snapshots tab.
type Snapshot struct {
	Month            string  `json:"month"`
	MRR              float64 `json:"mrr"`
	ActiveCustomers  float64 `json:"active_customers"`
	NewCustomers     float64 `json:"new_customers"`
	ChurnedCustomers float64 `json:"churned_customers"`
	TotalExpenses    float64 `json:"total_expenses"`
	MarketingSpend   float64 `json:"marketing_spend"`
	NetNewARR        float64 `json:"net_new_arr"`
}

// Row is a raw sheet row keyed by header for generic access.
type Row map[string]string
