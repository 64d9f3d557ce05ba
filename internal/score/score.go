// Package score computes the Smart Score, a 0-100 summary of a user's
// spending health for the current month.
package score

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"payment-advisor-api/internal/models"
)

// Component caps.
const (
	MaxSpending   = 45
	MaxSavings    = 30
	MaxRegularity = 15
	MaxEngagement = 10
)

// DefaultIncome is assumed when neither the profile nor the month's expenses
// say anything about income.
const DefaultIncome = 20000

// Income sources reported in Meta.
const (
	IncomeFromRange      = "income_range"
	IncomeFromOccupation = "occupation"
	IncomeFromExpenses   = "expenses"
	IncomeFromDefault    = "default"
)

var incomeRanges = map[string]float64{
	"below_15k": 12000,
	"15k_30k":   22500,
	"30k_50k":   40000,
	"50k_plus":  60000,
}

var occupationIncome = map[string]float64{
	"student":       10000,
	"salaried":      30000,
	"freelancer":    25000,
	"self_employed": 40000,
}

// Store is the data the aggregator reads.
type Store interface {
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	GetMonthAggregate(ctx context.Context, userID, month string) (*models.MonthAggregate, error)
	GetGoal(ctx context.Context, userID, month string) (*models.Goal, error)
	GetTransactionDays(ctx context.Context, userID, month string) (int, error)
}

// Breakdown holds the individually bounded components.
type Breakdown struct {
	Spending   int `json:"spending"`
	Savings    int `json:"savings"`
	Regularity int `json:"regularity"`
	Engagement int `json:"engagement"`
}

// Total is the sum of all components.
func (b Breakdown) Total() int {
	return b.Spending + b.Savings + b.Regularity + b.Engagement
}

// Meta exposes the inputs the score was derived from.
type Meta struct {
	Month         string  `json:"month"`
	Income        float64 `json:"income"`
	IncomeSource  string  `json:"incomeSource"`
	TotalExpenses float64 `json:"totalExpenses"`
	SavingsGoal   float64 `json:"savingsGoal"`
	ActiveDays    int     `json:"activeDays"`
	ElapsedDays   int     `json:"elapsedDays"`
}

// Result is the Smart Score for one user and month.
type Result struct {
	SmartScore int       `json:"smartScore"`
	Breakdown  Breakdown `json:"breakdown"`
	Meta       Meta      `json:"meta"`
}

// Aggregator computes Smart Scores from the store. It keeps no state between
// calls.
type Aggregator struct {
	store  Store
	logger *slog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(store Store, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, logger: logger}
}

// Compute returns the Smart Score for the month containing now.
func (a *Aggregator) Compute(ctx context.Context, userID string, now time.Time) (*Result, error) {
	month := now.Format("2006-01")

	profile, err := a.store.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	agg, err := a.store.GetMonthAggregate(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("failed to get month aggregate: %w", err)
	}
	goal, err := a.store.GetGoal(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}
	activeDays, err := a.store.GetTransactionDays(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction days: %w", err)
	}

	var expenses, target float64
	if agg != nil {
		expenses = agg.TotalSpent
	}
	if goal != nil {
		target = goal.TargetAmount
	}
	income, source := ResolveIncome(profile, expenses)
	elapsed := now.Day()

	b := Breakdown{
		Spending:   SpendingScore(expenses, income),
		Savings:    SavingsScore(income, expenses, target),
		Regularity: RegularityScore(activeDays, elapsed),
		Engagement: EngagementScore(activeDays > 0, target > 0),
	}
	res := &Result{
		SmartScore: int(math.Round(float64(b.Total()))),
		Breakdown:  b,
		Meta: Meta{
			Month:         month,
			Income:        income,
			IncomeSource:  source,
			TotalExpenses: expenses,
			SavingsGoal:   target,
			ActiveDays:    activeDays,
			ElapsedDays:   elapsed,
		},
	}
	a.logger.Debug("smart score computed", "user_id", userID, "score", res.SmartScore, "income_source", source)
	return res, nil
}

// ResolveIncome picks the monthly income estimate by priority: declared
// income range, then occupation, then the month's expenses, then
// DefaultIncome.
//
// Falling back to expenses makes the spend ratio 1.0, so that path alone can
// never signal overspending.
func ResolveIncome(profile *models.UserProfile, expenses float64) (float64, string) {
	if profile != nil {
		if v, ok := incomeRanges[strings.ToLower(strings.TrimSpace(profile.IncomeRange))]; ok {
			return v, IncomeFromRange
		}
		if v, ok := occupationIncome[strings.ToLower(strings.TrimSpace(profile.Occupation))]; ok {
			return v, IncomeFromOccupation
		}
	}
	if expenses > 0 {
		return expenses, IncomeFromExpenses
	}
	return DefaultIncome, IncomeFromDefault
}

// SpendingScore rates expenses as a share of income.
func SpendingScore(expenses, income float64) int {
	if income <= 0 {
		return 0
	}
	ratio := expenses / income
	switch {
	case ratio <= 0.3:
		return 45
	case ratio <= 0.5:
		return 35
	case ratio <= 0.7:
		return 25
	case ratio <= 0.9:
		return 15
	default:
		return 5
	}
}

// SavingsScore rates what is left of income against the goal target.
func SavingsScore(income, expenses, goal float64) int {
	saved := income - expenses
	if goal <= 0 {
		if saved > 0 {
			return 10
		}
		return 0
	}
	ratio := saved / goal
	switch {
	case saved >= goal:
		return 30
	case ratio >= 0.8:
		return 25
	case ratio >= 0.5:
		return 15
	case saved > 0:
		return 10
	default:
		return 0
	}
}

// RegularityScore rates distinct active days against days elapsed.
func RegularityScore(activeDays, elapsedDays int) int {
	if elapsedDays <= 0 {
		return 0
	}
	ratio := float64(activeDays) / float64(elapsedDays)
	switch {
	case ratio >= 0.5:
		return 15
	case ratio >= 0.3:
		return 10
	case ratio > 0:
		return 5
	default:
		return 0
	}
}

// EngagementScore awards points for activity and for holding a goal.
func EngagementScore(active, hasGoal bool) int {
	s := 0
	if active {
		s += 5
	}
	if hasGoal {
		s += 5
	}
	return min(s, MaxEngagement)
}
