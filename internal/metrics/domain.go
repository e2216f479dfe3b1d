// Package metrics computes the headline business indicators served on the
// dashboard from spreadsheet records.
package metrics

// Trend direction of a metric between two periods.
const (
	TrendUp      = "up"
	TrendDown    = "down"
	TrendNeutral = "neutral"
)

// Headline metric names.
const (
	MetricMRR  = "mrr"
	MetricCAC  = "cac"
	MetricLTV  = "ltv"
	MetricQVC  = "qvc"
	MetricLTGP = "ltgp"
)

// Names lists the headline metrics in display order.
func Names() []string {
	return []string{MetricMRR, MetricCAC, MetricLTV, MetricQVC, MetricLTGP}
}

// Metric is a point-in-time value with its previous period for comparison.
type Metric struct {
	Current   float64 `json:"current_value"`
	Previous  float64 `json:"previous_value"`
	ChangePct float64 `json:"change_percentage"`
	Trend     string  `json:"trend"`
}

// Ratios are derived unit-economics ratios.
type Ratios struct {
	LTVToCAC  float64 `json:"ltv_to_cac"`
	LTGPToCAC float64 `json:"ltgp_to_cac"`
}

// Additional holds the secondary health indicators.
type Additional struct {
	NRR                   float64 `json:"nrr"`
	GrossMargin           float64 `json:"gross_margin"`
	CustomerConcentration float64 `json:"customer_concentration"`
}
