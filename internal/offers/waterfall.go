// Package offers picks the payment instrument and offer that save the most on
// a purchase. Candidates are retrieved in stages of decreasing strictness and
// the first stage that yields an accepted candidate wins.
package offers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"payment-advisor-api/internal/models"
)

// DefaultMinAmount is the purchase amount below which no offer is returned.
const DefaultMinAmount = 200

const (
	synthesizedRate       = 0.01
	synthesizedMinSavings = 5
	synthesizedEfficiency = 1.0
	synthesizedID         = "fallback"
	synthesizedOfferID    = "GENERIC_REWARD"
)

var synthesizedValidTo = time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)

// Feature flag names consulted by the resolver.
const (
	FlagGeneralFallback   = "general_fallback"
	FlagSynthesizedReward = "synthesized_reward"
)

// Reason explains an empty result.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonAmountTooLow Reason = "amount_too_low"
	ReasonNoMatch      Reason = "no_match"
	ReasonNoCards      Reason = "no_cards"
)

// Store is the read-only view of reference data the resolver needs.
type Store interface {
	GetUserCards(ctx context.Context, userID string) ([]models.Card, error)
	GetOffers(ctx context.Context, filter models.OfferFilter) ([]models.Offer, error)
	GetGoal(ctx context.Context, userID, month string) (*models.Goal, error)
}

// Flags reports whether an optional waterfall stage is enabled.
type Flags interface {
	IsEnabled(name string) bool
}

// Result is the outcome of a best offer lookup. Best is nil when no candidate
// survived the waterfall.
type Result struct {
	Best       Candidate
	Reason     Reason
	Considered int
}

// HasOffer reports whether a candidate was found.
func (r Result) HasOffer() bool {
	return r.Best != nil
}

// Resolver runs the candidate waterfall.
type Resolver struct {
	store     Store
	flags     Flags
	logger    *slog.Logger
	minAmount float64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFlags sets the feature flags consulted for optional stages.
func WithFlags(flags Flags) Option {
	return func(r *Resolver) { r.flags = flags }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithMinAmount overrides DefaultMinAmount.
func WithMinAmount(amount float64) Option {
	return func(r *Resolver) { r.minAmount = amount }
}

// NewResolver creates a resolver over store.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:     store,
		logger:    slog.Default(),
		minAmount: DefaultMinAmount,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MinAmount returns the purchase floor below which no offer is returned.
func (r *Resolver) MinAmount() float64 {
	return r.minAmount
}

func (r *Resolver) enabled(flag string) bool {
	if r.flags == nil {
		return true
	}
	return r.flags.IsEnabled(flag)
}

// FindBest returns the best candidate for q. Store failures are returned as
// errors; an empty result is not an error.
func (r *Resolver) FindBest(ctx context.Context, q Query) (Result, error) {
	if q.Amount < r.minAmount {
		r.logger.Debug("amount below offer floor", "user_id", q.UserID, "amount", q.Amount)
		return Result{Reason: ReasonAmountTooLow}, nil
	}
	if q.Now.IsZero() {
		q.Now = time.Now().UTC()
	}

	cards, err := r.store.GetUserCards(ctx, q.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get user cards: %w", err)
	}
	goal, err := r.store.GetGoal(ctx, q.UserID, q.Now.Format("2006-01"))
	if err != nil {
		return Result{}, fmt.Errorf("failed to get goal: %w", err)
	}
	hasGoal := goal != nil && goal.TargetAmount > 0
	owned := cardNames(cards)

	considered := 0
	for _, stage := range []Stage{StageStrict, StageBroad} {
		offers, err := r.retrieve(ctx, stage, q, cards)
		if err != nil {
			return Result{}, err
		}
		considered += len(offers)

		scored := make([]Matched, 0, len(offers))
		for _, offer := range offers {
			scored = append(scored, Score(offer, q, owned, hasGoal, stage))
		}
		Rank(scored)
		if best, ok := FirstAccepted(scored); ok {
			r.logger.Info("offer matched",
				"user_id", q.UserID, "stage", stage, "offer_id", best.Offer.ID,
				"match_score", best.MatchScore, "savings", best.CalculatedSavings)
			return Result{Best: best, Considered: considered}, nil
		}
		r.logger.Debug("waterfall stage empty", "user_id", q.UserID, "stage", stage, "candidates", len(scored))
	}

	if r.enabled(FlagGeneralFallback) {
		offers, err := r.retrieve(ctx, StageFallback, q, cards)
		if err != nil {
			return Result{}, err
		}
		considered += len(offers)
		if best, ok := bestBySavings(offers, q, owned, hasGoal); ok {
			r.logger.Info("general fallback offer", "user_id", q.UserID, "offer_id", best.Offer.ID)
			return Result{Best: best, Considered: considered}, nil
		}
	}

	if len(cards) == 0 {
		return Result{Reason: ReasonNoCards, Considered: considered}, nil
	}
	if r.enabled(FlagSynthesizedReward) {
		r.logger.Info("synthesized reward", "user_id", q.UserID, "card", cards[0].CardName)
		return Result{Best: synthesize(cards[0], q), Considered: considered}, nil
	}
	return Result{Reason: ReasonNoMatch, Considered: considered}, nil
}

// bestBySavings picks the single highest-saving offer, ignoring match score.
func bestBySavings(offers []models.Offer, q Query, owned []string, hasGoal bool) (Matched, bool) {
	var best Matched
	found := false
	for _, offer := range offers {
		c := Score(offer, q, owned, hasGoal, StageFallback)
		if !found ||
			c.CalculatedSavings > best.CalculatedSavings ||
			(c.CalculatedSavings == best.CalculatedSavings && c.Offer.ID < best.Offer.ID) {
			best = c
			found = true
		}
	}
	return best, found
}

func synthesize(card models.Card, q Query) Synthesized {
	amount := decimal.NewFromFloat(q.Amount)
	savings := amount.Mul(decimal.NewFromFloat(synthesizedRate)).Round(0)
	savings = decimal.Max(savings, decimal.NewFromInt(synthesizedMinSavings))
	savings = decimal.Min(savings, amount)

	merchant := q.Merchant
	if merchant == "" {
		merchant = "All Spends"
	}
	category := q.Category
	if category == "" {
		category = "General"
	}
	return Synthesized{
		Card:              card,
		Merchant:          merchant,
		Category:          category,
		CalculatedSavings: savings.InexactFloat64(),
		FinalAmount:       amount.Sub(savings).Round(0).InexactFloat64(),
	}
}

func cardNames(cards []models.Card) []string {
	names := make([]string, 0, len(cards))
	for _, c := range cards {
		names = append(names, c.CardName)
	}
	return names
}
