package llm

import (
	"encoding/json"
	"fmt"

	"github.com/pep299/autoinsight/internal/vehicle"
)

// SystemPrompt is the fixed instruction sent with every vehicle.
const SystemPrompt = "You are an expert automotive risk analyst. " +
	"Always respond in valid JSON only with keys: " +
	"\"summary\" (short paragraph about the vehicle), " +
	"\"risk_score\" (float 1.0-10.0, where 1.0 = low risk and 10.0 = high risk), " +
	"\"reasoning\" (bullet points explaining how each attribute affects risk, " +
	"with approximate contribution percentages). " +
	"Base your assessment only on the provided vehicle data. " +
	"Do not add external facts or text outside the JSON. " +
	"Sort reasoning from the strongest risk factor to the weakest."

const userPromptTemplate = "Vehicle data (JSON):\n%s\n\n" +
	"Scoring guidelines:\n" +
	"- Days on Lot (DOL): Longer time on lot increases risk.\n" +
	"- Current Price & Price to Market %%: Overpriced vehicles increase risk, competitively priced vehicles reduce risk.\n" +
	"- Mileage: Higher mileage increases risk; low mileage reduces risk.\n" +
	"- Year: Older vehicles increase risk; newer vehicles reduce risk. " +
	"Consider the current year when evaluating age (a 2026 vehicle is newer than a 2024 vehicle and should be assessed proportionally).\n" +
	"- Total VDPs (lifetime views): More views reduce risk; very few views increase risk. " +
	"Normalize the number of VDPs relative to vehicle age, older vehicles are expected to have more views.\n" +
	"- Sales Opportunities (lifetime leads): More leads reduce risk; none or few leads increase risk. " +
	"Normalize relative to vehicle age as well.\n" +
	"- Make/Model: Only for description; do not affect risk score directly.\n\n" +
	"Rules:\n" +
	"- Always output valid JSON with keys: summary, risk_score, reasoning.\n" +
	"- summary: short professional paragraph describing the vehicle, its selling and purchasing risk and its marketing position.\n" +
	"- risk_score: float 1.0-10.0.\n" +
	"- reasoning: bullet points, sorted from highest to lowest impact.\n" +
	"- No markdown, no formulas, no extra text."

// BuildUserPrompt embeds rec as JSON into the user instruction.
func BuildUserPrompt(rec vehicle.Record) (string, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling vehicle record: %w", err)
	}
	return fmt.Sprintf(userPromptTemplate, data), nil
}
