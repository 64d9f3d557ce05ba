package offers

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"payment-advisor-api/internal/models"
)

const (
	goalAlignmentBoost = 1.2
	maxEfficiency      = 10.0
	minEfficiency      = 0.5
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// trustAdjustment is added to the efficiency base before halving.
var trustAdjustment = map[string]float64{
	models.TrustHigh:   2.0,
	models.TrustMedium: 1.0,
	models.TrustLow:    -1.0,
}

// discountKind normalises the free-form discount_type column.
func discountKind(discountType string) string {
	t := strings.ToLower(strings.TrimSpace(discountType))
	switch {
	case strings.HasPrefix(t, "percentage"), strings.Contains(t, "%"):
		return models.DiscountPercentage
	case strings.HasPrefix(t, "flat"), strings.Contains(t, "cashback"):
		return models.DiscountFlat
	default:
		return ""
	}
}

// Savings computes how much an offer saves on amount, rounded to whole
// currency units. The result never exceeds amount nor the offer's
// max_discount.
func Savings(offer models.Offer, amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	amt := decimal.NewFromFloat(amount)
	value := decimal.NewFromFloat(offer.DiscountValue)

	var savings decimal.Decimal
	switch discountKind(offer.DiscountType) {
	case models.DiscountPercentage:
		savings = amt.Mul(value).Div(hundred)
	case models.DiscountFlat:
		savings = value
	default:
		return 0
	}

	limit := amt
	if offer.MaxDiscount != nil && *offer.MaxDiscount > 0 {
		limit = decimal.Min(limit, decimal.NewFromFloat(*offer.MaxDiscount))
	}
	savings = decimal.Min(savings.Round(0), limit)
	if savings.IsNegative() {
		return 0
	}
	return savings.InexactFloat64()
}

// Efficiency rates the quality of savings on a 0-10 scale, rounded to one
// decimal place. A goal-holding user gets a boost, and the offer's trust
// level nudges the result.
func Efficiency(savings, amount float64, trustLevel string, hasGoal bool) float64 {
	if amount <= 0 {
		return 0
	}
	base := decimal.NewFromFloat(savings).Div(decimal.NewFromFloat(amount)).Mul(hundred)
	if hasGoal {
		base = base.Mul(decimal.NewFromFloat(goalAlignmentBoost))
	}

	level := strings.ToUpper(strings.TrimSpace(trustLevel))
	if level == "" {
		level = models.TrustMedium
	}
	base = base.Add(decimal.NewFromFloat(trustAdjustment[level]))

	final := base.Div(two)
	final = decimal.Max(decimal.Zero, decimal.Min(final, decimal.NewFromFloat(maxEfficiency)))
	final = final.Round(1)
	if final.IsZero() && savings > 0 {
		return minEfficiency
	}
	return final.InexactFloat64()
}

// Score projects an offer onto a purchase context.
func Score(offer models.Offer, q Query, ownedCards []string, hasGoal bool, stage Stage) Matched {
	savings := Savings(offer, q.Amount)
	return Matched{
		Offer:             offer,
		Stage:             stage,
		MatchScore:        MatchScore(offer, q.Merchant, q.Category, ownedCards),
		CalculatedSavings: savings,
		FinalAmount:       finalAmount(q.Amount, savings),
		EfficiencyScore:   Efficiency(savings, q.Amount, offer.TrustLevel, hasGoal),
	}
}

func finalAmount(amount, savings float64) float64 {
	return decimal.NewFromFloat(amount).Sub(decimal.NewFromFloat(savings)).Round(0).InexactFloat64()
}

// Rank orders candidates by match score, then savings, both descending.
// Offer ids break remaining ties so identical inputs always rank the same.
func Rank(candidates []Matched) {
	slices.SortStableFunc(candidates, func(a, b Matched) int {
		if a.MatchScore != b.MatchScore {
			return b.MatchScore - a.MatchScore
		}
		if a.CalculatedSavings != b.CalculatedSavings {
			if a.CalculatedSavings > b.CalculatedSavings {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Offer.ID, b.Offer.ID)
	})
}

// FirstAccepted returns the first ranked candidate whose match score reaches
// the acceptance minimum.
func FirstAccepted(ranked []Matched) (Matched, bool) {
	for _, c := range ranked {
		if c.MatchScore >= AcceptanceMinimum {
			return c, true
		}
	}
	return Matched{}, false
}
