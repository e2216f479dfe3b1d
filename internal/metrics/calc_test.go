package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulse/internal/sheets"
)

var testNow = time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)

func activeCustomer(name string, mrr, prev float64, months int) sheets.Customer {
	return sheets.Customer{Name: name, Status: "Active", MRR: mrr, PreviousMonthRevenue: prev, PlanDuration: months}
}

func TestCalcMRRSkipsInactiveCustomers(t *testing.T) {
	customers := []sheets.Customer{
		activeCustomer("a", 1000, 900, 12),
		activeCustomer("b", 500, 500, 12),
		{Name: "c", Status: "Churned", MRR: 700, PreviousMonthRevenue: 700},
	}
	m := CalcMRR(customers)
	require.InDelta(t, 1500, m.Current, 0.001)
	require.InDelta(t, 1400, m.Previous, 0.001)
	require.InDelta(t, 7.14, m.ChangePct, 0.01)
	require.Equal(t, TrendUp, m.Trend)
}

func TestCalcMRRTrendBands(t *testing.T) {
	// Within half a percent either way stays neutral.
	m := CalcMRR([]sheets.Customer{activeCustomer("a", 1004, 1000, 12)})
	require.Equal(t, TrendNeutral, m.Trend)

	m = CalcMRR([]sheets.Customer{activeCustomer("a", 900, 1000, 12)})
	require.Equal(t, TrendDown, m.Trend)
}

func TestCalcMRRZeroPrevious(t *testing.T) {
	m := CalcMRR([]sheets.Customer{activeCustomer("a", 1000, 0, 12)})
	require.Zero(t, m.ChangePct)
	require.Equal(t, TrendNeutral, m.Trend)
}

func TestCalcCACCountsThisMonthOnly(t *testing.T) {
	customers := []sheets.Customer{
		{Name: "new1", Status: "Active", StartDate: time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)},
		{Name: "new2", Status: "Active", StartDate: time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)},
		{Name: "old", Status: "Active", StartDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	expenses := []sheets.Expense{
		{Category: "Marketing & Advertising", Amount: 600, Date: time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)},
		{Category: "Sales cost", Amount: 400, Date: time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)},
		{Category: "Marketing", Amount: 999, Date: time.Date(2026, 4, 12, 0, 0, 0, 0, time.UTC)},
		{Category: "Office Rent", Amount: 999, Date: time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)},
	}
	m := CalcCAC(customers, expenses, testNow)
	require.InDelta(t, 500, m.Current, 0.001)
	// Previous month is estimated ten percent higher.
	require.InDelta(t, 550, m.Previous, 0.001)
	require.Equal(t, TrendDown, m.Trend)
}

func TestCalcCACNoNewCustomers(t *testing.T) {
	m := CalcCAC(nil, []sheets.Expense{{Category: "Marketing", Amount: 100, Date: testNow}}, testNow)
	require.Zero(t, m.Current)
}

func TestCalcLTV(t *testing.T) {
	customers := []sheets.Customer{
		activeCustomer("a", 1000, 800, 12),
		activeCustomer("b", 2000, 1600, 6),
		{Name: "zero", Status: "Active", MRR: 0},
	}
	m := CalcLTV(customers)
	// avg MRR 1500, avg duration 9 months.
	require.InDelta(t, 13500, m.Current, 0.001)
	// previous avg MRR 1200 over the same duration.
	require.InDelta(t, 10800, m.Previous, 0.001)
	require.Equal(t, TrendUp, m.Trend)
}

func TestCalcLTVEmpty(t *testing.T) {
	m := CalcLTV(nil)
	require.Zero(t, m.Current)
	require.Equal(t, TrendNeutral, m.Trend)
}

func TestCalcQVCCurrentQuarter(t *testing.T) {
	projects := []sheets.Project{
		{Name: "in", ValueAmount: 10000, CompletionDate: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)},
		{Name: "in2", ValueAmount: 5000, CompletionDate: time.Date(2026, 6, 29, 0, 0, 0, 0, time.UTC)},
		{Name: "out", ValueAmount: 9999, CompletionDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)},
		{Name: "pending", ValueAmount: 9999},
	}
	m := CalcQVC(projects, testNow)
	require.InDelta(t, 15000, m.Current, 0.001)
	require.InDelta(t, 12750, m.Previous, 0.001)
}

func TestCalcLTGP(t *testing.T) {
	customers := []sheets.Customer{activeCustomer("a", 1000, 900, 12)}
	m := CalcLTGP(customers)
	require.InDelta(t, 8400, m.Current, 0.001)  // 12000 * 0.70
	require.InDelta(t, 7560, m.Previous, 0.001) // 10800 * 0.70
}

func TestCalcNRR(t *testing.T) {
	customers := []sheets.Customer{
		activeCustomer("grew", 1100, 1000, 12),
		activeCustomer("nohistory", 500, 0, 12),
	}
	require.InDelta(t, 110, CalcNRR(customers), 0.001)
	require.InDelta(t, 100, CalcNRR(nil), 0.001)
}

func TestCalcGrossMargin(t *testing.T) {
	customers := []sheets.Customer{activeCustomer("a", 1000, 0, 12)}
	expenses := []sheets.Expense{
		{Category: "AI/API Costs", Amount: 100},
		{Category: "Cloud Infrastructure", Amount: 50},
		{Category: "Office Rent", Amount: 9999},
	}
	// 12000 revenue vs 1800 direct cost -> 85%.
	require.InDelta(t, 85, CalcGrossMargin(customers, expenses), 0.001)
	require.Zero(t, CalcGrossMargin(nil, expenses))
}

func TestCalcCustomerConcentration(t *testing.T) {
	customers := []sheets.Customer{
		activeCustomer("1", 400, 0, 12),
		activeCustomer("2", 300, 0, 12),
		activeCustomer("3", 200, 0, 12),
		activeCustomer("4", 100, 0, 12),
	}
	// Top three carry 900 of 1000 MRR.
	require.InDelta(t, 90, CalcCustomerConcentration(customers), 0.001)
	require.Zero(t, CalcCustomerConcentration(nil))
}

func TestCalcRatios(t *testing.T) {
	ratios := CalcRatios(Metric{Current: 9000}, Metric{Current: 6000}, Metric{Current: 3000})
	require.InDelta(t, 3, ratios.LTVToCAC, 0.001)
	require.InDelta(t, 2, ratios.LTGPToCAC, 0.001)

	require.Zero(t, CalcRatios(Metric{Current: 9000}, Metric{}, Metric{}).LTVToCAC)
}

func TestQuarterRange(t *testing.T) {
	start, end := quarterRange(time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC))
	require.Equal(t, time.July, start.Month())
	require.Equal(t, time.October, end.Month())
}

func TestFormatHelpers(t *testing.T) {
	require.Equal(t, "$12,500.00", FormatCurrency(12500))
	require.Equal(t, "7.14%", FormatPercent(7.14))
	require.Equal(t, "3.50x", FormatRatio(3.5))
}
