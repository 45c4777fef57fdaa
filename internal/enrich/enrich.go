// Package enrich produces vehicle summaries with a language model and
// falls back to the deterministic scorer whenever that path fails.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/pep299/autoinsight/internal/llm"
	"github.com/pep299/autoinsight/internal/scoring"
	"github.com/pep299/autoinsight/internal/vehicle"
)

// NeutralRiskScore replaces a risk_score that cannot be read as a number.
const NeutralRiskScore = 5.0

var requiredKeys = []string{"summary", "risk_score", "reasoning"}

var (
	errNoJSON      = errors.New("no JSON object in model reply")
	errMissingKeys = errors.New("model reply is missing required keys")
)

// Enricher turns dataset records into summaries.
type Enricher struct {
	completer llm.Completer
	logger    *slog.Logger
}

// NewEnricher creates an Enricher. A nil completer means every summary
// comes from the deterministic scorer.
func NewEnricher(completer llm.Completer, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{completer: completer, logger: logger}
}

// HasCompleter reports whether summaries may come from the model.
func (e *Enricher) HasCompleter() bool {
	return e.completer != nil
}

// Enrich returns a model-written summary for rec, or the deterministic
// one tagged "fallback". It never fails.
func (e *Enricher) Enrich(ctx context.Context, rec vehicle.Record) vehicle.Summary {
	if e.completer == nil {
		return Fallback(rec)
	}

	summary, err := e.complete(ctx, rec)
	if err != nil {
		e.logger.WarnContext(ctx, "llm enrichment failed, using fallback",
			"vin", rec.VIN(),
			"error", err)
		return Fallback(rec)
	}
	return summary
}

// Fallback is the deterministic summary tagged with its source.
func Fallback(rec vehicle.Record) vehicle.Summary {
	s := scoring.Compute(rec)
	s.Source = vehicle.SourceFallback
	return s
}

func (e *Enricher) complete(ctx context.Context, rec vehicle.Record) (summary vehicle.Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during enrichment: %v", r)
		}
	}()

	prompt, err := llm.BuildUserPrompt(rec)
	if err != nil {
		return vehicle.Summary{}, err
	}

	text, err := e.completer.Complete(ctx, llm.SystemPrompt, prompt)
	if err != nil {
		return vehicle.Summary{}, fmt.Errorf("calling model: %w", err)
	}
	e.logger.DebugContext(ctx, "llm reply received", "vin", rec.VIN(), "size", len(text))

	return parseReply(text, rec)
}

func parseReply(text string, rec vehicle.Record) (vehicle.Summary, error) {
	obj, ok := extractJSON(text)
	if !ok {
		return vehicle.Summary{}, errNoJSON
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := obj[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return vehicle.Summary{}, fmt.Errorf("%w: %s", errMissingKeys, strings.Join(missing, ", "))
	}

	return vehicle.Summary{
		VIN:       rec.VIN(),
		Summary:   toText(obj["summary"]),
		RiskScore: coerceRiskScore(obj["risk_score"]),
		Reasoning: normalizeReasoning(obj["reasoning"]),
		Source:    vehicle.SourceLLM,
	}, nil
}

func coerceRiskScore(raw any) float64 {
	var score float64
	switch v := raw.(type) {
	case json.Number:
		// ParseFloat reports ±Inf with a range error for overflowing literals.
		parsed, err := strconv.ParseFloat(v.String(), 64)
		if err != nil && !math.IsInf(parsed, 0) {
			return NeutralRiskScore
		}
		score = parsed
	case float64:
		score = v
	case bool:
		if v {
			score = 1
		}
	case string:
		parsed, ok := scoring.ParseNumber(v)
		if !ok {
			return NeutralRiskScore
		}
		score = parsed
	default:
		return NeutralRiskScore
	}
	if math.IsNaN(score) {
		return NeutralRiskScore
	}
	return vehicle.ClampRiskScore(score)
}

func normalizeReasoning(raw any) []string {
	switch v := raw.(type) {
	case string:
		return splitBullets(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			if line := strings.TrimSpace(toText(item)); line != "" {
				out = append(out, line)
			}
		}
		return out
	case nil:
		return []string{}
	default:
		return []string{toText(v)}
	}
}

func splitBullets(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "-• "))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func toText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
