package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name   string
		in     Input
		status Status
		label  string
	}{
		{
			name:   "no goal",
			in:     Input{Amount: 500, DayOfMonth: 10, DaysInMonth: 30},
			status: NoGoal,
			label:  "No Goal Set",
		},
		{
			name:   "exceeds budget",
			in:     Input{Goal: 1000, SpentSoFar: 200, Amount: 900, DayOfMonth: 15, DaysInMonth: 30},
			status: OffTrack,
			label:  "Budget Exceeded",
		},
		{
			name:   "well ahead of pace",
			in:     Input{Goal: 1000, SpentSoFar: 600, Amount: 60, DayOfMonth: 15, DaysInMonth: 30},
			status: OffTrack,
			label:  "Off Track",
		},
		{
			name:   "slightly ahead of pace",
			in:     Input{Goal: 1000, SpentSoFar: 500, Amount: 60, DayOfMonth: 15, DaysInMonth: 30},
			status: SlightlyOff,
			label:  "Slightly Off Track",
		},
		{
			name:   "within pace",
			in:     Input{Goal: 10000, SpentSoFar: 2000, Amount: 500, DayOfMonth: 15, DaysInMonth: 30},
			status: OnTrack,
			label:  "On Track",
		},
		{
			name:   "exactly at budget is not exceeded",
			in:     Input{Goal: 1000, SpentSoFar: 900, Amount: 100, DayOfMonth: 30, DaysInMonth: 30},
			status: OnTrack,
			label:  "On Track",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.in, th)
			assert.Equal(t, tt.status, c.Status)
			assert.Equal(t, tt.label, c.Label)
		})
	}
}

func TestClassify_CustomThresholds(t *testing.T) {
	in := Input{Goal: 1000, SpentSoFar: 500, Amount: 60, DayOfMonth: 15, DaysInMonth: 30}

	assert.Equal(t, OnTrack, Classify(in, Thresholds{SlightlyOff: 0.1, OffTrack: 0.2}).Status)
	assert.Equal(t, OffTrack, Classify(in, Thresholds{SlightlyOff: 0.01, OffTrack: 0.02}).Status)
}

func TestInsight(t *testing.T) {
	th := DefaultThresholds()

	in := Input{Goal: 1000, SpentSoFar: 200, Amount: 900, Category: "Dining", DayOfMonth: 15, DaysInMonth: 30}
	insight := Insight(Classify(in, th), in, nil)
	assert.Equal(t, "Budget Exceeded", insight.Status)
	assert.Equal(t, "Warning: You are OFF TRACK. Is this purchase necessary?", insight.Context)
	assert.Equal(t, "You only have ₹0 left for the month.", insight.Tradeoff)
	assert.Equal(t, "Alternative: Cook a meal at home or find a cheaper place.", insight.Impact)

	in = Input{Goal: 10000, SpentSoFar: 2000, Amount: 500, Category: "Shopping", DayOfMonth: 15, DaysInMonth: 30}
	insight = Insight(Classify(in, th), in, nil)
	assert.Equal(t, "You are on track (Budget: ₹10000). Is this necessary?", insight.Context)
	assert.Equal(t, "You have a healthy buffer of ₹7500.", insight.Tradeoff)
	assert.Equal(t, "Alternative: Check for a sale or wait 3 days.", insight.Impact)

	insight = Insight(Classify(in, th), in, &Suggestion{CardName: "Regalia", Savings: 50})
	assert.Equal(t, "Alternative: Use Regalia to save ₹50.", insight.Impact)

	in = Input{Goal: 1000, SpentSoFar: 500, Amount: 60, Category: "Fuel", DayOfMonth: 15, DaysInMonth: 30}
	insight = Insight(Classify(in, th), in, &Suggestion{CardName: "Regalia", Savings: 50})
	assert.Equal(t, "This reduces your remaining safe-spend buffer to ₹440.", insight.Tradeoff)
	assert.Equal(t, "Alternative: Consider carpooling or public transport.", insight.Impact)

	in = Input{Amount: 250.5, Category: "Movies"}
	insight = Insight(Classify(in, th), in, nil)
	assert.Equal(t, "You are spending ₹250.5 on Movies. Is this necessary?", insight.Context)
	assert.Equal(t, "Set a monthly goal to track the impact of this spend.", insight.Tradeoff)
	assert.Equal(t, "Alternative: Look for free local events instead.", insight.Impact)
}

func TestAlternative(t *testing.T) {
	tests := map[string]string{
		"Food Delivery":    "Cook a meal at home or find a cheaper place.",
		"RETAIL":           "Check for a sale or wait 3 days.",
		"Public Transport": "Consider carpooling or public transport.",
		"entertainment":    "Look for free local events instead.",
		"Groceries":        "Delay this purchase by 24 hours.",
		"":                 "Delay this purchase by 24 hours.",
	}
	for category, want := range tests {
		assert.Equal(t, want, Alternative(category), category)
	}
}

func TestAdvise(t *testing.T) {
	th := DefaultThresholds()

	advice := Advise(Input{Goal: 1000, SpentSoFar: 200, Amount: 900, Category: "Dining", DayOfMonth: 15, DaysInMonth: 30}, th, nil)
	assert.True(t, advice.InterventionNeeded)
	assert.Equal(t, "OFF_TRACK", advice.BudgetStatus)
	assert.Equal(t, SuggestReduce, advice.SuggestionType)
	assert.Equal(t, "Wait 24h", advice.SuggestedAction)
	assert.Equal(t, "Spending ₹900 now takes up 90.0% of your goal. Is this essential?", advice.Message)

	advice = Advise(Input{Goal: 10000, SpentSoFar: 2000, Amount: 500, DayOfMonth: 15, DaysInMonth: 30}, th, nil)
	assert.False(t, advice.InterventionNeeded)
	assert.Equal(t, SuggestOptimize, advice.SuggestionType)
	assert.Equal(t, "Use Best Card", advice.SuggestedAction)

	advice = Advise(Input{Amount: 300, Category: "Travel"}, th, nil)
	assert.False(t, advice.InterventionNeeded)
	assert.Equal(t, "NO_GOAL", advice.BudgetStatus)
	assert.Equal(t, "You are spending ₹300 on Travel. Is this necessary?", advice.Message)
}

func TestSafeDefault(t *testing.T) {
	advice := SafeDefault(450, "Dining")
	assert.False(t, advice.InterventionNeeded)
	assert.Equal(t, "Please proceed with your payment if planned.", advice.Message)
	assert.Equal(t, SuggestSafe, advice.SuggestionType)
	assert.Equal(t, "No Goal Set", advice.StructuredInsight.Status)
	assert.NotEmpty(t, advice.StructuredInsight.Impact)
}

func TestMonthPosition(t *testing.T) {
	day, days := MonthPosition(time.Date(2024, 2, 10, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, 10, day)
	assert.Equal(t, 29, days)

	day, days = MonthPosition(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 31, day)
	assert.Equal(t, 31, days)
}

func TestGoalImpactPercent(t *testing.T) {
	assert.Equal(t, "0", GoalImpactPercent(500, 0))
	assert.Equal(t, "12.5", GoalImpactPercent(125, 1000))
}
