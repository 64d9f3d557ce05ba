package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"payment-advisor-api/internal/advisory"
)

const topCategoryCount = 3

// financialContext gathers the real numbers advisory prompts are grounded
// on: smart score, the month's goal, spend so far and top categories.
func (s *Service) financialContext(ctx context.Context, userID string, now time.Time) (advisory.FinancialContext, error) {
	month := now.Format("2006-01")

	goal, err := s.store.GetGoal(ctx, userID, month)
	if err != nil {
		return advisory.FinancialContext{}, fmt.Errorf("failed to get goal: %w", err)
	}
	agg, err := s.store.GetMonthAggregate(ctx, userID, month)
	if err != nil {
		return advisory.FinancialContext{}, fmt.Errorf("failed to get month aggregate: %w", err)
	}

	var fc advisory.FinancialContext
	if goal != nil {
		fc.GoalTarget = goal.TargetAmount
	}
	if agg != nil {
		fc.TotalSpent = agg.TotalSpent
		fc.TopCategories = topCategories(agg.ByCategory, topCategoryCount)
	}

	if res, err := s.aggregator.Compute(ctx, userID, now); err != nil {
		s.logger.Warn("smart score unavailable for advisory context", "user_id", userID, "error", err)
	} else {
		fc.SmartScore, fc.HasScore = res.SmartScore, true
	}
	return fc, nil
}

// topCategories returns the n largest categories by spend, largest first,
// breaking ties by name.
func topCategories(byCategory map[string]float64, n int) []advisory.CategorySpend {
	out := make([]advisory.CategorySpend, 0, len(byCategory))
	for category, amount := range byCategory {
		if category == "" || amount <= 0 {
			continue
		}
		out = append(out, advisory.CategorySpend{Category: category, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Category < out[j].Category
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
