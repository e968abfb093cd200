package provider

import (
	"github.com/quotalab/quotad/pkg/extract"
)

// MetricsFromFields converts extractor output into cycle metrics.
func MetricsFromFields(f extract.Fields) CycleMetrics {
	return CycleMetrics{
		Remaining: f.Remaining,
		Used:      f.Used,
		Total:     f.Total,
		ResetAt:   f.ResetAt,
	}
}
