package estimate

import (
	"fmt"
	"strings"
	"time"

	"github.com/plateiq/plateiq/internal/knowledge"
	"github.com/plateiq/plateiq/internal/rag"
)

const responseShape = `Respond with a single JSON object and nothing else:
{
  "calories":  {"value": N} or {"min": N, "max": N},
  "protein_g": {"value": N} or {"min": N, "max": N},
  "carbs_g":   {"value": N} or {"min": N, "max": N},
  "fat_g":     {"value": N} or {"min": N, "max": N},
  "confidence": integer 0-100,
  "meal_time": one of "breakfast", "lunch", "dinner", "snack", "unknown",
  "explanation": string describing how the evidence supports the numbers,
  "evidence": optional array of evidence block ids you relied on, e.g. ["1", "3"],
  "clarifying_question": optional string, include when the meal is ambiguous,
  "swaps": optional array of {"suggestion": string, "rationale": string}
}
Each macro field must contain exactly one of value or min/max, never both.`

// buildPrompt assembles the generation prompt: role, evidence blocks,
// precision-mode instructions, and the required response shape. scene is
// optional photo context and does not participate in retrieval.
func buildPrompt(query, scene string, evidence []knowledge.RetrievedChunk, strength rag.Strength, localTime time.Time) string {
	var b strings.Builder

	b.WriteString("You are a nutrition estimator. Estimate the calories and macros of the meal below ")
	b.WriteString("using only the evidence provided. Do not invent nutrition facts that the evidence does not support.\n\n")

	b.WriteString("Meal: ")
	b.WriteString(query)
	b.WriteString("\n")
	if scene != "" {
		fmt.Fprintf(&b, "Photo context: %s\n", scene)
	}
	if hint := mealTimeHint(localTime); hint != "" {
		fmt.Fprintf(&b, "Local time suggests this is likely %s; use it only when the meal itself gives no signal.\n", hint)
	}
	b.WriteString("\n")

	if len(evidence) == 0 {
		b.WriteString("Evidence: none retrieved. Rely on generic assumptions and say so in the explanation.\n\n")
	} else {
		b.WriteString("Evidence:\n")
		for i, rc := range evidence {
			fmt.Fprintf(&b, "[%d] (doc %q, type %s, similarity %.2f)\n%s\n\n",
				i+1, rc.DocTitle, rc.DocType, rc.Similarity, rc.Content)
		}
	}

	if strength == rag.Strong {
		b.WriteString("The evidence closely matches this meal. Give point values for every macro field ")
		b.WriteString("and cite the evidence blocks you used.\n\n")
	} else {
		b.WriteString("The evidence is thin or only loosely related. Give min/max ranges for every macro field, ")
		b.WriteString("keep confidence low, and include a clarifying_question that would most improve the estimate.\n\n")
	}

	b.WriteString(responseShape)
	return b.String()
}

// mealTimeHint maps the local hour to a likely meal slot. Empty when the
// hour is ambiguous.
func mealTimeHint(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	switch h := t.Hour(); {
	case h >= 5 && h < 11:
		return MealBreakfast
	case h >= 11 && h < 15:
		return MealLunch
	case h >= 17 && h < 22:
		return MealDinner
	default:
		return ""
	}
}
