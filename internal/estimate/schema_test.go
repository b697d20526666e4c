package estimate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPointResponse = `{
	"calories":  {"value": 550},
	"protein_g": {"value": 42},
	"carbs_g":   {"value": 48},
	"fat_g":     {"value": 18},
	"confidence": 82,
	"meal_time": "lunch",
	"explanation": "Matched grilled chicken and rice entries.",
	"evidence": ["1", "2"]
}`

const validRangeResponse = `{
	"calories":  {"min": 400, "max": 700},
	"protein_g": {"min": 20, "max": 45},
	"carbs_g":   {"min": 30, "max": 70},
	"fat_g":     {"min": 10, "max": 30},
	"confidence": 35,
	"meal_time": "unknown",
	"explanation": "Sparse evidence, wide ranges.",
	"clarifying_question": "How was the chicken prepared?"
}`

func TestParseValidPointResponse(t *testing.T) {
	e, err := Parse(validPointResponse, false)
	require.NoError(t, err)

	assert.False(t, e.Calories.IsRange())
	assert.InDelta(t, 550, e.Calories.Point(), 1e-9)
	assert.Equal(t, 82, e.Confidence)
	assert.Equal(t, MealLunch, e.MealTime)
	assert.Equal(t, []string{"1", "2"}, e.Evidence)
}

func TestParseValidRangeResponse(t *testing.T) {
	e, err := Parse(validRangeResponse, true)
	require.NoError(t, err)

	require.True(t, e.Calories.IsRange())
	min, max := e.Calories.Range()
	assert.InDelta(t, 400, min, 1e-9)
	assert.InDelta(t, 700, max, 1e-9)
	assert.NotEmpty(t, e.ClarifyingQuestion)
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `I estimate about 550 calories.`},
		{"missing macro", `{"calories":{"value":550},"confidence":80,"meal_time":"lunch","explanation":"x"}`},
		{
			"mixed value and range",
			`{"calories":{"value":550,"min":400},"protein_g":{"value":42},"carbs_g":{"value":48},"fat_g":{"value":18},"confidence":80,"meal_time":"lunch","explanation":"x"}`,
		},
		{
			"range bounds reversed",
			`{"calories":{"min":700,"max":400},"protein_g":{"min":20,"max":45},"carbs_g":{"min":30,"max":70},"fat_g":{"min":10,"max":30},"confidence":35,"meal_time":"unknown","explanation":"x"}`,
		},
		{
			"confidence above bound",
			`{"calories":{"value":550},"protein_g":{"value":42},"carbs_g":{"value":48},"fat_g":{"value":18},"confidence":140,"meal_time":"lunch","explanation":"x"}`,
		},
		{
			"meal time outside enumeration",
			`{"calories":{"value":550},"protein_g":{"value":42},"carbs_g":{"value":48},"fat_g":{"value":18},"confidence":80,"meal_time":"brunch","explanation":"x"}`,
		},
		{
			"swap without rationale",
			`{"calories":{"value":550},"protein_g":{"value":42},"carbs_g":{"value":48},"fat_g":{"value":18},"confidence":80,"meal_time":"lunch","explanation":"x","swaps":[{"suggestion":"swap fries for salad"}]}`,
		},
		{
			"empty explanation",
			`{"calories":{"value":550},"protein_g":{"value":42},"carbs_g":{"value":48},"fat_g":{"value":18},"confidence":80,"meal_time":"lunch","explanation":""}`,
		},
		{
			"negative macro",
			`{"calories":{"value":-5},"protein_g":{"value":42},"carbs_g":{"value":48},"fat_g":{"value":18},"confidence":80,"meal_time":"lunch","explanation":"x"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw, false)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidEstimate)
		})
	}
}

func TestParseRequireRangeRejectsPointValues(t *testing.T) {
	_, err := Parse(validPointResponse, true)
	require.ErrorIs(t, err, ErrInvalidEstimate)

	_, err = Parse(validRangeResponse, true)
	require.NoError(t, err)
}

func TestMacroFieldRoundTrip(t *testing.T) {
	point, err := json.Marshal(PointValue(42))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":42}`, string(point))

	ranged, err := json.Marshal(RangeValue(10, 40))
	require.NoError(t, err)
	assert.JSONEq(t, `{"min":10,"max":40}`, string(ranged))

	var m MacroField
	require.NoError(t, json.Unmarshal(ranged, &m))
	assert.True(t, m.IsRange())
}
