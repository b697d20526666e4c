package estimate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrInvalidEstimate tags any parse or validation failure of a model
// response. One failed validation consumes one generation attempt.
var ErrInvalidEstimate = errors.New("invalid estimate")

// MealTime values accepted in an estimate.
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
	MealSnack     = "snack"
	MealUnknown   = "unknown"
)

// MacroField is a tagged union: exactly one of a point value or a min/max
// range. Partial or mixed shapes are rejected rather than coerced.
type MacroField struct {
	value *float64
	min   *float64
	max   *float64
}

// PointValue builds a point-valued macro field.
func PointValue(v float64) MacroField { return MacroField{value: &v} }

// RangeValue builds a ranged macro field.
func RangeValue(min, max float64) MacroField { return MacroField{min: &min, max: &max} }

// IsRange reports whether the field carries a range.
func (m MacroField) IsRange() bool { return m.min != nil }

// Point returns the point value; only meaningful when !IsRange().
func (m MacroField) Point() float64 {
	if m.value == nil {
		return 0
	}
	return *m.value
}

// Range returns the bounds; only meaningful when IsRange().
func (m MacroField) Range() (float64, float64) {
	if m.min == nil || m.max == nil {
		return 0, 0
	}
	return *m.min, *m.max
}

func (m MacroField) MarshalJSON() ([]byte, error) {
	if m.IsRange() {
		return json.Marshal(map[string]float64{"min": *m.min, "max": *m.max})
	}
	return json.Marshal(map[string]float64{"value": m.Point()})
}

func (m *MacroField) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value *float64 `json:"value"`
		Min   *float64 `json:"min"`
		Max   *float64 `json:"max"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEstimate, err)
	}

	switch {
	case raw.Value != nil && (raw.Min != nil || raw.Max != nil):
		return fmt.Errorf("%w: macro field mixes value and range", ErrInvalidEstimate)
	case raw.Value != nil:
		if *raw.Value < 0 {
			return fmt.Errorf("%w: negative macro value", ErrInvalidEstimate)
		}
		m.value = raw.Value
	case raw.Min != nil && raw.Max != nil:
		if *raw.Min < 0 || *raw.Max < *raw.Min {
			return fmt.Errorf("%w: macro range bounds out of order", ErrInvalidEstimate)
		}
		m.min, m.max = raw.Min, raw.Max
	default:
		return fmt.Errorf("%w: macro field needs value or min and max", ErrInvalidEstimate)
	}
	return nil
}

// Swap is one food substitution suggestion. Both fields are mandatory: a
// suggestion without a rationale is rejected at validation.
type Swap struct {
	Suggestion string `json:"suggestion"`
	Rationale  string `json:"rationale"`
}

// Estimate is the structured output of one meal estimation.
type Estimate struct {
	Calories           MacroField `json:"calories"`
	ProteinG           MacroField `json:"protein_g"`
	CarbsG             MacroField `json:"carbs_g"`
	FatG               MacroField `json:"fat_g"`
	Confidence         int        `json:"confidence"`
	MealTime           string     `json:"meal_time"`
	Explanation        string     `json:"explanation"`
	Evidence           []string   `json:"evidence,omitempty"`
	ClarifyingQuestion string     `json:"clarifying_question,omitempty"`
	Swaps              []Swap     `json:"swaps,omitempty"`
}

// Macros returns the four macro fields in a fixed order.
func (e *Estimate) Macros() []MacroField {
	return []MacroField{e.Calories, e.ProteinG, e.CarbsG, e.FatG}
}

func floatPtr(v float64) *float64 { return &v }

func macroFieldSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		OneOf: []*jsonschema.Schema{
			{Required: []string{"value"}},
			{Required: []string{"min", "max"}},
		},
		Properties: map[string]*jsonschema.Schema{
			"value": {Type: "number", Minimum: floatPtr(0)},
			"min":   {Type: "number", Minimum: floatPtr(0)},
			"max":   {Type: "number", Minimum: floatPtr(0)},
		},
	}
}

// resolvedSchema compiles the response schema once. The schema carries the
// structural rules; shape rules the draft cannot express (range ordering,
// precision mode) are enforced in Go after decoding.
var resolvedSchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	s := &jsonschema.Schema{
		Type: "object",
		Required: []string{
			"calories", "protein_g", "carbs_g", "fat_g",
			"confidence", "meal_time", "explanation",
		},
		Properties: map[string]*jsonschema.Schema{
			"calories":  macroFieldSchema(),
			"protein_g": macroFieldSchema(),
			"carbs_g":   macroFieldSchema(),
			"fat_g":     macroFieldSchema(),
			"confidence": {
				Type:    "integer",
				Minimum: floatPtr(0),
				Maximum: floatPtr(100),
			},
			"meal_time": {
				Type: "string",
				Enum: []any{MealBreakfast, MealLunch, MealDinner, MealSnack, MealUnknown},
			},
			"explanation":         {Type: "string"},
			"evidence":            {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"clarifying_question": {Type: "string"},
			"swaps": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type:     "object",
					Required: []string{"suggestion", "rationale"},
					Properties: map[string]*jsonschema.Schema{
						"suggestion": {Type: "string"},
						"rationale":  {Type: "string"},
					},
				},
			},
		},
	}
	return s.Resolve(nil)
})

// Parse decodes and validates a raw model response. requireRange enforces
// the weak-retrieval precision mode: every macro must be a range, never a
// point value.
func Parse(raw string, requireRange bool) (*Estimate, error) {
	resolved, err := resolvedSchema()
	if err != nil {
		return nil, fmt.Errorf("resolving estimate schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal([]byte(raw), &instance); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEstimate, err)
	}
	if err := resolved.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEstimate, err)
	}

	var e Estimate
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEstimate, err)
	}

	if e.Explanation == "" {
		return nil, fmt.Errorf("%w: empty explanation", ErrInvalidEstimate)
	}
	for _, s := range e.Swaps {
		if s.Suggestion == "" || s.Rationale == "" {
			return nil, fmt.Errorf("%w: swap missing suggestion or rationale", ErrInvalidEstimate)
		}
	}
	if requireRange {
		for _, m := range e.Macros() {
			if !m.IsRange() {
				return nil, fmt.Errorf("%w: point value not allowed under weak retrieval", ErrInvalidEstimate)
			}
		}
	}
	return &e, nil
}
