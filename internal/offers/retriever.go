package offers

import (
	"context"
	"fmt"
	"strings"

	"payment-advisor-api/internal/models"
)

// retrieve builds the store filter for a waterfall stage and runs it.
func (r *Resolver) retrieve(ctx context.Context, stage Stage, q Query, cards []models.Card) ([]models.Offer, error) {
	filter, ok := stageFilter(stage, q, cards)
	if !ok {
		return nil, nil
	}
	found, err := r.store.GetOffers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s offers: %w", stage, err)
	}

	// min_amount is enforced here as well as in the store.
	eligible := found[:0:0]
	for _, offer := range found {
		if q.Amount >= offer.MinAmount {
			eligible = append(eligible, offer)
		}
	}
	return eligible, nil
}

// stageFilter returns the filter for a stage, or false when the stage cannot
// produce anything for q.
func stageFilter(stage Stage, q Query, cards []models.Card) (models.OfferFilter, bool) {
	base := models.OfferFilter{
		Amount:   q.Amount,
		ActiveAt: q.Now,
	}
	switch stage {
	case StageStrict:
		base.BanksAllowed = userBanks(cards)
		base.IncludeAnyBank = true
		return base, true
	case StageBroad:
		if strings.TrimSpace(q.Merchant) == "" && strings.TrimSpace(q.Category) == "" {
			return base, false
		}
		base.AnyCardOnly = true
		base.MatchMerchantOrCategory = true
		base.Merchant = strings.TrimSpace(q.Merchant)
		base.Category = strings.TrimSpace(q.Category)
		return base, true
	case StageFallback:
		base.AnyCardOnly = true
		return base, true
	default:
		return base, false
	}
}

// userBanks returns the distinct banks of cards, preserving order.
func userBanks(cards []models.Card) []string {
	seen := make(map[string]bool, len(cards))
	banks := make([]string, 0, len(cards))
	for _, c := range cards {
		key := strings.ToLower(strings.TrimSpace(c.Bank))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		banks = append(banks, c.Bank)
	}
	return banks
}
