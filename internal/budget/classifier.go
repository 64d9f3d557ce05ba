// Package budget classifies a hypothetical purchase against the pace of a
// user's monthly spending goal.
package budget

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"payment-advisor-api/internal/models"
)

// Status is the terminal state of one classification.
type Status string

const (
	OnTrack     Status = "ON_TRACK"
	SlightlyOff Status = "SLIGHTLY_OFF"
	OffTrack    Status = "OFF_TRACK"
	NoGoal      Status = "NO_GOAL"
)

// Default pace margins over month progress.
const (
	DefaultSlightlyOffMargin = 0.05
	DefaultOffTrackMargin    = 0.15
)

// Thresholds are the margins by which the projected spend ratio may run
// ahead of month progress before the status degrades.
type Thresholds struct {
	SlightlyOff float64
	OffTrack    float64
}

// DefaultThresholds returns the stock margins.
func DefaultThresholds() Thresholds {
	return Thresholds{SlightlyOff: DefaultSlightlyOffMargin, OffTrack: DefaultOffTrackMargin}
}

// Input describes the purchase being classified.
type Input struct {
	Goal        float64 // monthly target, 0 when unset
	SpentSoFar  float64
	Amount      float64
	Category    string
	DayOfMonth  int
	DaysInMonth int
}

// Suggestion is an optional cheaper way to pay, shown to on-track users.
type Suggestion struct {
	CardName string
	Savings  float64
}

// Classification is the result of Classify.
type Classification struct {
	Status         Status
	Label          string
	ProjectedRatio float64
	MonthProgress  float64
}

// Classify places a purchase into one of the four budget states.
func Classify(in Input, th Thresholds) Classification {
	if in.Goal <= 0 {
		return Classification{Status: NoGoal, Label: "No Goal Set"}
	}

	progress := 0.0
	if in.DaysInMonth > 0 {
		progress = float64(in.DayOfMonth) / float64(in.DaysInMonth)
	}
	ratio := (in.SpentSoFar + in.Amount) / in.Goal
	c := Classification{ProjectedRatio: ratio, MonthProgress: progress}

	switch {
	case ratio > 1.0:
		c.Status, c.Label = OffTrack, "Budget Exceeded"
	case ratio > progress+th.OffTrack:
		c.Status, c.Label = OffTrack, "Off Track"
	case ratio > progress+th.SlightlyOff:
		c.Status, c.Label = SlightlyOff, "Slightly Off Track"
	default:
		c.Status, c.Label = OnTrack, "On Track"
	}
	return c
}

// Insight renders the deterministic (context, tradeoff, impact) triple for a
// classification. best may be nil.
func Insight(c Classification, in Input, best *Suggestion) models.StructuredInsight {
	remaining := in.Goal - in.SpentSoFar - in.Amount
	if remaining < 0 {
		remaining = 0
	}
	alternative := "Alternative: " + Alternative(in.Category)

	insight := models.StructuredInsight{Status: c.Label, Impact: alternative}
	switch c.Status {
	case OnTrack:
		insight.Context = fmt.Sprintf("You are on track (Budget: ₹%s). Is this necessary?", money(in.Goal))
		insight.Tradeoff = fmt.Sprintf("You have a healthy buffer of ₹%s.", money(remaining))
		if best != nil && best.Savings > 0 {
			insight.Impact = fmt.Sprintf("Alternative: Use %s to save ₹%s.", best.CardName, money(best.Savings))
		}
	case SlightlyOff:
		insight.Context = "Spending is slightly faster than planned. Is this necessary?"
		insight.Tradeoff = fmt.Sprintf("This reduces your remaining safe-spend buffer to ₹%s.", money(remaining))
	case OffTrack:
		insight.Context = "Warning: You are OFF TRACK. Is this purchase necessary?"
		insight.Tradeoff = fmt.Sprintf("You only have ₹%s left for the month.", money(remaining))
	default:
		insight.Context = fmt.Sprintf("You are spending ₹%s on %s. Is this necessary?", money(in.Amount), in.Category)
		insight.Tradeoff = "Set a monthly goal to track the impact of this spend."
	}
	return insight
}

// alternatives is checked in order; the first entry with a keyword contained
// in the category wins.
var alternatives = []struct {
	keywords []string
	text     string
}{
	{[]string{"dining", "food", "restaurant"}, "Cook a meal at home or find a cheaper place."},
	{[]string{"shopping", "clothing", "retail"}, "Check for a sale or wait 3 days."},
	{[]string{"travel", "fuel", "transport"}, "Consider carpooling or public transport."},
	{[]string{"entertainment", "movie"}, "Look for free local events instead."},
}

const defaultAlternative = "Delay this purchase by 24 hours."

// Alternative returns a cheaper course of action for a spending category.
func Alternative(category string) string {
	c := strings.ToLower(category)
	for _, alt := range alternatives {
		for _, kw := range alt.keywords {
			if strings.Contains(c, kw) {
				return alt.text
			}
		}
	}
	return defaultAlternative
}

// MonthPosition returns the 1-based day of month and the length of the month
// containing t.
func MonthPosition(t time.Time) (day, daysInMonth int) {
	firstOfNext := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	return t.Day(), firstOfNext.AddDate(0, 0, -1).Day()
}

// GoalImpactPercent is the share of goal that amount consumes, to one decimal
// place. It is zero without a goal.
func GoalImpactPercent(amount, goal float64) string {
	if goal <= 0 {
		return "0"
	}
	return strconv.FormatFloat(amount/goal*100, 'f', 1, 64)
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Suggestion types reported with pre-pay advice.
const (
	SuggestOptimize = "optimize"
	SuggestReduce   = "reduce"
	SuggestSafe     = "safe"
)

// Advise builds the deterministic pre-pay advice for a purchase. It is the
// complete answer when no external advisory is available.
func Advise(in Input, th Thresholds, best *Suggestion) models.PrePayAdvice {
	c := Classify(in, th)
	advice := models.PrePayAdvice{
		InterventionNeeded: c.Status == OffTrack,
		StructuredInsight:  Insight(c, in, best),
		BudgetStatus:       string(c.Status),
	}

	switch c.Status {
	case OnTrack, NoGoal:
		advice.SuggestionType, advice.SuggestedAction = SuggestOptimize, "Use Best Card"
	default:
		advice.SuggestionType, advice.SuggestedAction = SuggestReduce, "Wait 24h"
	}

	if c.Status == NoGoal {
		advice.Message = advice.StructuredInsight.Context
	} else {
		advice.Message = fmt.Sprintf("Spending ₹%s now takes up %s%% of your goal. Is this essential?",
			money(in.Amount), GoalImpactPercent(in.Amount, in.Goal))
	}
	return advice
}

// SafeDefault is returned when the user's financial context could not be
// loaded at all.
func SafeDefault(amount float64, category string) models.PrePayAdvice {
	in := Input{Amount: amount, Category: category}
	c := Classify(in, DefaultThresholds())
	return models.PrePayAdvice{
		InterventionNeeded: false,
		Message:            "Please proceed with your payment if planned.",
		StructuredInsight:  Insight(c, in, nil),
		SuggestionType:     SuggestSafe,
		BudgetStatus:       string(c.Status),
	}
}
