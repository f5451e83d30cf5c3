package models

import "math"

// Percentage returns active/total as a percentage rounded to one decimal
// place. A zero total yields exactly 0 rather than dividing by zero.
func Percentage(active, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(active)/float64(total)*1000) / 10
}

// NewEntityMetrics builds the total/active/percentage triple.
func NewEntityMetrics(total, active int) EntityMetrics {
	return EntityMetrics{
		Total:      total,
		Active:     active,
		Percentage: Percentage(active, total),
	}
}

// ZeroOrganizationalMetrics is the all-zero fallback used when the
// aggregation query fails.
func ZeroOrganizationalMetrics() OrganizationalMetrics {
	return OrganizationalMetrics{
		ByDivision: []DivisionBreakdown{},
	}
}
