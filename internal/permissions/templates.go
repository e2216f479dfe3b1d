package permissions

import (
	"context"
	"strings"

	"github.com/pulsehq/pulse/internal/features"
)

// templateAll marks a combination that receives every feature.
const templateAll = "all"

// seedTemplates maps role-department combinations to the feature categories
// they receive by default. Combinations not listed start all-deny.
var seedTemplates = map[RoleDepartment][]string{
	{Role: "co_founder", Department: "Executive"}: {templateAll},

	{Role: "director", Department: "Sales"}:      {features.CategoryFinancial, features.CategorySales, features.CategoryCustomer},
	{Role: "director", Department: "Finance"}:    {features.CategoryFinancial, features.CategorySales, features.CategoryCustomer},
	{Role: "director", Department: "Technical"}:  {features.CategorySales, features.CategoryCustomer, features.CategoryTechnical},
	{Role: "director", Department: "Marketing"}:  {features.CategorySales, features.CategoryCustomer},
	{Role: "director", Department: "Operations"}: {features.CategorySales, features.CategoryCustomer, features.CategoryTechnical},

	{Role: "project_lead", Department: "Sales"}:      {features.CategorySales, features.CategoryCustomer},
	{Role: "project_lead", Department: "Technical"}:  {features.CategoryCustomer, features.CategoryTechnical},
	{Role: "project_lead", Department: "Marketing"}:  {features.CategorySales, features.CategoryCustomer},
	{Role: "project_lead", Department: "Operations"}: {features.CategoryCustomer, features.CategoryTechnical},

	{Role: "agent", Department: "Sales"}:      {features.CategoryCustomer},
	{Role: "agent", Department: "Technical"}:  {features.CategoryTechnical},
	{Role: "agent", Department: "Marketing"}:  {features.CategoryCustomer},
	{Role: "agent", Department: "Operations"}: {features.CategoryCustomer},
}

// SeedTemplatePermissions returns the built-in template map for a
// role-department combination: every catalog key, granted when the
// combination's categories include it. Unknown combinations are all-deny.
func SeedTemplatePermissions(role, department string) map[string]bool {
	perms := make(map[string]bool)
	for _, f := range features.Catalog() {
		perms[f.Key] = false
	}

	categories, ok := seedTemplates[RoleDepartment{Role: strings.ToLower(role), Department: department}]
	if !ok {
		return perms
	}
	for _, category := range categories {
		if category == templateAll {
			for key := range perms {
				perms[key] = true
			}
			return perms
		}
		for _, key := range features.CategoryKeys(category) {
			perms[key] = true
		}
	}
	return perms
}

// SeedCombos lists the role-department combinations carrying a built-in
// template, in no particular order.
func SeedCombos() []RoleDepartment {
	combos := make([]RoleDepartment, 0, len(seedTemplates))
	for combo := range seedTemplates {
		combos = append(combos, combo)
	}
	return combos
}

// SeedDefaults writes every built-in template into the role-department
// default layer. Only granted entries are stored; absent rows already mean
// deny, which keeps the seeded tables small.
func (r *Resolver) SeedDefaults(ctx context.Context) error {
	for _, combo := range SeedCombos() {
		perms := SeedTemplatePermissions(combo.Role, combo.Department)
		for key, granted := range perms {
			if !granted {
				continue
			}
			if _, err := r.SetRoleDepartmentDefault(ctx, combo.Role, combo.Department, key, true); err != nil {
				return err
			}
		}
	}
	return nil
}
