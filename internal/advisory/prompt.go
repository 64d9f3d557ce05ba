package advisory

import (
	"fmt"
	"strconv"
	"strings"
)

// CategorySpend is one category's share of the month's spend.
type CategorySpend struct {
	Category string
	Amount   float64
}

// FinancialContext is the real data a prompt is grounded on.
type FinancialContext struct {
	SmartScore    int
	HasScore      bool
	GoalTarget    float64
	TotalSpent    float64
	TopCategories []CategorySpend
}

// GoalStatus is a coarse label for prompts.
func (fc FinancialContext) GoalStatus() string {
	switch {
	case fc.GoalTarget <= 0:
		return "No Goal Set"
	case fc.TotalSpent > fc.GoalTarget:
		return "Exceeded"
	default:
		return "On Track"
	}
}

// GoalPercent is the share of the goal already spent, to one decimal.
func (fc FinancialContext) GoalPercent() string {
	if fc.GoalTarget <= 0 {
		return "0"
	}
	return strconv.FormatFloat(fc.TotalSpent/fc.GoalTarget*100, 'f', 1, 64)
}

func (fc FinancialContext) topCategories() string {
	if len(fc.TopCategories) == 0 {
		return "None"
	}
	parts := make([]string, 0, len(fc.TopCategories))
	for _, c := range fc.TopCategories {
		parts = append(parts, fmt.Sprintf("%s: ₹%s", c.Category, amount(c.Amount)))
	}
	return strings.Join(parts, ", ")
}

func (fc FinancialContext) score() string {
	if !fc.HasScore {
		return "N/A"
	}
	return strconv.Itoa(fc.SmartScore)
}

func amount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ChatPrompt builds the coach prompt for a free-form user message.
func ChatPrompt(fc FinancialContext, message string) string {
	var b strings.Builder
	b.WriteString("You are a wise, action-oriented financial coach named \"SmartPay Coach\".\n\n")
	b.WriteString("USER CONTEXT (REAL DATA):\n")
	fmt.Fprintf(&b, "- Smart Score: %s/100\n", fc.score())
	fmt.Fprintf(&b, "- Monthly Goal: ₹%s\n", amount(fc.GoalTarget))
	fmt.Fprintf(&b, "- Current Spend: ₹%s\n", amount(fc.TotalSpent))
	fmt.Fprintf(&b, "- Goal Progress: %s%% used\n", fc.GoalPercent())
	fmt.Fprintf(&b, "- Budget Status: %s\n", fc.GoalStatus())
	fmt.Fprintf(&b, "- Top Spending Categories: %s\n\n", fc.topCategories())
	b.WriteString("TONE: supportive when on track, cautionary when off track.\n")
	b.WriteString("RULES:\n")
	b.WriteString("1. Mention specific numbers from the context.\n")
	b.WriteString("2. If the score is low, suggest one specific fix.\n")
	b.WriteString("3. If information is missing, ask the user to set a goal or add a card.\n\n")
	fmt.Fprintf(&b, "USER MESSAGE: %s\n", message)
	return b.String()
}

// PrePayInput describes the purchase for PrePayPrompt.
type PrePayInput struct {
	Amount            float64
	Category          string
	StatusLabel       string
	GoalImpactPercent string
	Intervention      bool
	SuggestionType    string
	SuggestedAction   string
}

// PrePayPrompt asks for a JSON pre-pay intervention.
func PrePayPrompt(fc FinancialContext, in PrePayInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User is about to pay ₹%s for %s.\n\n", amount(in.Amount), in.Category)
	b.WriteString("FINANCIAL REALITY:\n")
	fmt.Fprintf(&b, "- Budget: ₹%s\n", amount(fc.GoalTarget))
	fmt.Fprintf(&b, "- Spent so far: ₹%s\n", amount(fc.TotalSpent))
	fmt.Fprintf(&b, "- GOAL STATUS: %s\n", in.StatusLabel)
	fmt.Fprintf(&b, "- This purchase uses: %s%% of total budget.\n\n", in.GoalImpactPercent)
	b.WriteString("TASK: generate a pre-pay intervention as a single JSON object.\n")
	b.WriteString("- context: acknowledge the category specifically.\n")
	b.WriteString("- tradeoff: explain how this affects the remaining budget.\n")
	b.WriteString("- impact: one concrete, actionable alternative for the category, prefixed with \"Alternative: \".\n")
	b.WriteString("Be supportive when on track and strict when off track or over budget.\n\n")
	b.WriteString("OUTPUT JSON:\n")
	fmt.Fprintf(&b, `{"intervention_needed": %t, "message": "...", "context": "...", "tradeoff": "...", "impact": "...", "suggestion_type": %q, "suggested_action": %q}`,
		in.Intervention, in.SuggestionType, in.SuggestedAction)
	b.WriteString("\n")
	return b.String()
}
