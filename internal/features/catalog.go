package features

import "strings"

// Feature categories.
const (
	CategoryFinancial = "financial"
	CategorySales     = "sales"
	CategoryCustomer  = "customer"
	CategoryTechnical = "technical"
	CategoryAdmin     = "admin"
)

// Well-known feature keys referenced from handlers and middleware.
const (
	KeyAlfredChat      = "alfred.chat"
	KeyUsersView       = "admin.users.view"
	KeyUsersCreate     = "admin.users.create"
	KeyUsersEdit       = "admin.users.edit"
	KeyUsersDelete     = "admin.users.delete"
	KeyPermissionsView = "admin.permissions.view"
	KeyPermissionsEdit = "admin.permissions.edit"
	KeyLogsView        = "admin.logs.view"
	KeyConfigView      = "admin.config.view"
	KeyConfigEdit      = "admin.config.edit"
)

// MetricViewKey returns the feature key gating a metric, e.g. "metrics.mrr.view".
func MetricViewKey(metric string) string {
	return "metrics." + strings.ToLower(metric) + ".view"
}

var catalog = []Feature{
	{Key: "metrics.mrr.view", Category: CategoryFinancial, Description: "View Monthly Recurring Revenue"},
	{Key: "metrics.revenue.view", Category: CategoryFinancial, Description: "View Total Revenue"},
	{Key: "metrics.profit.view", Category: CategoryFinancial, Description: "View Profit Metrics"},
	{Key: "metrics.ltgp.view", Category: CategoryFinancial, Description: "View Life Time Gross Profit"},
	{Key: "metrics.gross_margin.view", Category: CategoryFinancial, Description: "View Gross Margin"},

	{Key: "metrics.cac.view", Category: CategorySales, Description: "View Customer Acquisition Cost"},
	{Key: "metrics.conversion_rate.view", Category: CategorySales, Description: "View Conversion Rate"},
	{Key: "metrics.lead_count.view", Category: CategorySales, Description: "View Lead Count"},
	{Key: "metrics.customer_count.view", Category: CategorySales, Description: "View Customer Count"},

	{Key: "metrics.ltv.view", Category: CategoryCustomer, Description: "View Customer Lifetime Value"},
	{Key: "metrics.qvc.view", Category: CategoryCustomer, Description: "View Quarterly Value Created"},
	{Key: "metrics.retention.view", Category: CategoryCustomer, Description: "View Customer Retention Rate"},
	{Key: "metrics.churn.view", Category: CategoryCustomer, Description: "View Customer Churn Rate"},

	{Key: "metrics.project_count.view", Category: CategoryTechnical, Description: "View Project Count"},
	{Key: "metrics.task_completion.view", Category: CategoryTechnical, Description: "View Task Completion Rate"},
	{Key: "metrics.performance.view", Category: CategoryTechnical, Description: "View Performance Metrics"},

	{Key: KeyAlfredChat, Category: CategoryAdmin, Description: "Chat with the Alfred assistant"},
	{Key: KeyUsersView, Category: CategoryAdmin, Description: "View Users"},
	{Key: KeyUsersCreate, Category: CategoryAdmin, Description: "Create New Users"},
	{Key: KeyUsersEdit, Category: CategoryAdmin, Description: "Edit User Details"},
	{Key: KeyUsersDelete, Category: CategoryAdmin, Description: "Delete Users"},
	{Key: KeyPermissionsView, Category: CategoryAdmin, Description: "View Permissions"},
	{Key: KeyPermissionsEdit, Category: CategoryAdmin, Description: "Edit Permissions"},
	{Key: KeyLogsView, Category: CategoryAdmin, Description: "View System Logs"},
	{Key: KeyConfigView, Category: CategoryAdmin, Description: "View System Configuration"},
	{Key: KeyConfigEdit, Category: CategoryAdmin, Description: "Edit System Configuration"},
}

// Catalog returns the built-in feature catalog used for seeding. The slice is
// a copy; callers may mutate it freely.
func Catalog() []Feature {
	out := make([]Feature, len(catalog))
	copy(out, catalog)
	for i := range out {
		if out[i].Name == "" {
			out[i].Name = displayName(out[i].Key)
		}
	}
	return out
}

// CategoryKeys returns the catalog keys belonging to the given category.
func CategoryKeys(category string) []string {
	var keys []string
	for _, f := range catalog {
		if f.Category == category {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// displayName derives a readable name from the middle segment of a key,
// e.g. "metrics.gross_margin.view" -> "Gross Margin".
func displayName(key string) string {
	parts := strings.Split(key, ".")
	segment := parts[0]
	if len(parts) >= 2 {
		segment = parts[1]
	}
	words := strings.Split(segment, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
