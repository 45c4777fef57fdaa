package vehicle

import (
	"fmt"
	"strconv"
	"strings"
)

// Dataset column names read by the scorer and the prompts.
const (
	FieldVIN           = "VIN"
	FieldYear          = "Year"
	FieldMake          = "Make"
	FieldModel         = "Model"
	FieldPriceToMarket = "Current price to market %"
	FieldDaysOnLot     = "DOL"
	FieldMileage       = "Mileage"
	FieldVDPViews      = "Total VDPs (lifetime)"
	FieldSalesLeads    = "Sales Opportunities (lifetime)"
)

// Summary sources.
const (
	SourceLLM      = "llm"
	SourceFallback = "fallback"
)

// Risk score bounds.
const (
	MinRiskScore = 1.0
	MaxRiskScore = 10.0
)

// Record is one dataset row keyed by column name. Values are float64,
// string or nil. A Record is never modified after the dataset is loaded.
type Record map[string]any

// String returns the field as text, or "" when absent or nil.
func (r Record) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// VIN returns the normalized identifier of the record.
func (r Record) VIN() string {
	return NormalizeVIN(r.String(FieldVIN))
}

// NormalizeVIN trims and upper-cases a VIN for lookups and cache keys.
func NormalizeVIN(vin string) string {
	return strings.ToUpper(strings.TrimSpace(vin))
}

// Summary is the result exchanged with API callers.
type Summary struct {
	VIN       string   `json:"vin"`
	Summary   string   `json:"summary"`
	RiskScore float64  `json:"risk_score"`
	Reasoning []string `json:"reasoning"`
	Source    string   `json:"source,omitempty"`
}

// ClampRiskScore bounds a score to [MinRiskScore, MaxRiskScore].
func ClampRiskScore(score float64) float64 {
	if score < MinRiskScore {
		return MinRiskScore
	}
	if score > MaxRiskScore {
		return MaxRiskScore
	}
	return score
}
