// Package scoring implements the rule-based vehicle risk score used as
// ground truth and as the fallback for LLM enrichment.
package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/pep299/autoinsight/internal/vehicle"
)

// Normalization caps.
const (
	DaysCap        = 120.0
	PriceBaseline  = 100.0
	PriceFloor     = -50.0
	PriceSpan      = 50.0
	MileageCap     = 200000.0
	ViewsCap       = 2000.0
	pricePhraseGap = 2.0
)

// Factor weights. They sum to 1.
const (
	WeightDays    = 0.45
	WeightPrice   = 0.30
	WeightMileage = 0.15
	WeightViews   = 0.10
)

// Factor is one weighted contributor to the risk score.
type Factor struct {
	Name       string  `json:"name"`
	Raw        float64 `json:"raw"`
	Normalized float64 `json:"normalized"`
	Weight     float64 `json:"weight"`
}

// Contribution returns the factor's share of the weighted sum.
func (f Factor) Contribution() float64 {
	return f.Normalized * f.Weight
}

// Analysis holds the intermediate values behind a deterministic score.
type Analysis struct {
	Days      Factor  `json:"days_on_lot"`
	Price     Factor  `json:"price_to_market"`
	Mileage   Factor  `json:"mileage"`
	Views     Factor  `json:"vdp_views"`
	Weighted  float64 `json:"weighted"`
	RiskScore float64 `json:"risk_score"`
}

// Factors returns the contributors in definition order.
func (a Analysis) Factors() []Factor {
	return []Factor{a.Days, a.Price, a.Mileage, a.Views}
}

// Normalize scales raw against limit and clamps the result to [0,1].
func Normalize(raw, limit float64) float64 {
	return clampUnit(raw / limit)
}

// Analyze parses and normalizes the scored fields of rec.
func Analyze(rec vehicle.Record) Analysis {
	days := numberOrZero(rec[vehicle.FieldDaysOnLot])
	price := numberOrZero(rec[vehicle.FieldPriceToMarket])
	mileage := numberOrZero(rec[vehicle.FieldMileage])
	views := numberOrZero(rec[vehicle.FieldVDPViews])

	a := Analysis{
		Days:    Factor{Name: "days_on_lot", Raw: days, Normalized: Normalize(days, DaysCap), Weight: WeightDays},
		Price:   Factor{Name: "price_to_market", Raw: price, Normalized: normalizePrice(price), Weight: WeightPrice},
		Mileage: Factor{Name: "mileage", Raw: mileage, Normalized: Normalize(mileage, MileageCap), Weight: WeightMileage},
		Views:   Factor{Name: "vdp_views", Raw: views, Normalized: 1 - Normalize(views, ViewsCap), Weight: WeightViews},
	}
	for _, f := range a.Factors() {
		a.Weighted += f.Contribution()
	}
	a.RiskScore = vehicle.ClampRiskScore(a.Weighted * 10)
	return a
}

// Compute builds a summary from rec without any external calls. It never
// fails; Source is left for the caller to set.
func Compute(rec vehicle.Record) vehicle.Summary {
	a := Analyze(rec)
	return vehicle.Summary{
		VIN:       rec.VIN(),
		Summary:   describe(rec, a),
		RiskScore: a.RiskScore,
		Reasoning: reasoning(a),
	}
}

// price is expressed as percent of market; 100 means at market.
func normalizePrice(price float64) float64 {
	return clampUnit(math.Max(price-PriceBaseline, PriceFloor) / PriceSpan)
}

func describe(rec vehicle.Record, a Analysis) string {
	year := "Unknown"
	if y, ok := ParseNumber(rec[vehicle.FieldYear]); ok && y != 0 {
		year = strconv.FormatInt(int64(y), 10)
	}
	maker := strings.ToUpper(strings.TrimSpace(rec.String(vehicle.FieldMake)))
	if maker == "" {
		maker = "UNKNOWN"
	}
	model := rec.String(vehicle.FieldModel)
	if model == "" {
		model = "Unknown"
	}

	return fmt.Sprintf("%s %s %s with %s miles, priced %s, has been on the lot for %d days.",
		year, maker, model,
		humanize.Comma(int64(a.Mileage.Raw)),
		pricePhrase(a.Price.Raw),
		int64(a.Days.Raw))
}

func pricePhrase(price float64) string {
	diff := price - PriceBaseline
	switch {
	case diff > pricePhraseGap:
		return fmt.Sprintf("%.1f%% above market", diff)
	case diff < -pricePhraseGap:
		return fmt.Sprintf("%.1f%% below market", math.Abs(diff))
	default:
		return "near market price"
	}
}

// reasoning lists factors in definition order, not by contribution.
func reasoning(a Analysis) []string {
	return []string{
		fmt.Sprintf("days_on_lot=%d (norm %.2f, w=%s)", int64(a.Days.Raw), a.Days.Normalized, formatWeight(a.Days.Weight)),
		fmt.Sprintf("price_to_market=%.2f%% (norm %.2f, w=%s)", a.Price.Raw, a.Price.Normalized, formatWeight(a.Price.Weight)),
		fmt.Sprintf("mileage=%s (norm %.2f, w=%s)", humanize.Comma(int64(a.Mileage.Raw)), a.Mileage.Normalized, formatWeight(a.Mileage.Weight)),
		fmt.Sprintf("vdp_views=%d (inv-norm %.2f, w=%s)", int64(a.Views.Raw), a.Views.Normalized, formatWeight(a.Views.Weight)),
		fmt.Sprintf("Weighted=%.3f → risk %.2f/10", a.Weighted, a.RiskScore),
	}
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

func numberOrZero(raw any) float64 {
	if v, ok := ParseNumber(raw); ok {
		return v
	}
	return 0
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
