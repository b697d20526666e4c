package estimate

import (
	"fmt"
	"strings"
	"time"

	"github.com/plateiq/plateiq/internal/knowledge"
)

// fallbackConfidence is deliberately pinned low so downstream consumers can
// never mistake a synthesized estimate for a model one.
const fallbackConfidence = 22

// fallbackEstimate synthesizes a deterministic wide-range estimate for a
// generic single meal. Used when every generation attempt failed or the
// provider was unreachable; it is the generation-stage availability
// guarantee and never errors.
func fallbackEstimate(evidence []knowledge.RetrievedChunk, localTime time.Time) *Estimate {
	mealTime := mealTimeHint(localTime)
	if mealTime == "" {
		mealTime = MealUnknown
	}

	explanation := "Automatic wide-range estimate for a typical single meal; the model response could not be validated."
	var ids []string
	for _, rc := range evidence {
		ids = append(ids, rc.ID.String())
	}
	if len(ids) > 0 {
		explanation = fmt.Sprintf("%s Retrieved context considered: %s.", explanation, strings.Join(ids, ", "))
	}

	return &Estimate{
		Calories:           RangeValue(300, 800),
		ProteinG:           RangeValue(10, 40),
		CarbsG:             RangeValue(20, 80),
		FatG:               RangeValue(10, 35),
		Confidence:         fallbackConfidence,
		MealTime:           mealTime,
		Explanation:        explanation,
		Evidence:           ids,
		ClarifyingQuestion: "What were the main components of the meal, and roughly how large was each portion?",
	}
}
