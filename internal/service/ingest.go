package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"payment-advisor-api/internal/models"
	"payment-advisor-api/internal/validation"
)

// CreateOffer creates or updates an offer and returns it as stored.
func (s *Service) CreateOffer(ctx context.Context, offer models.Offer) (models.Offer, error) {
	offer.ID = validation.SanitizeString(offer.ID)
	offer.Merchant = validation.SanitizeString(offer.Merchant)
	offer.Category = validation.SanitizeString(offer.Category)
	offer.Bank = validation.SanitizeString(offer.Bank)
	offer.CardName = validation.SanitizeString(offer.CardName)
	offer.DiscountType = strings.ToLower(validation.SanitizeString(offer.DiscountType))
	offer.TrustLevel = strings.ToUpper(validation.SanitizeString(offer.TrustLevel))
	if offer.TrustLevel == "" {
		offer.TrustLevel = models.TrustMedium
	}
	if offer.ValidFrom.IsZero() {
		offer.ValidFrom = s.now().UTC()
	}

	if err := validation.ValidateOffer(offer); err != nil {
		return models.Offer{}, err
	}

	id, err := s.store.UpsertOffer(ctx, offer)
	if err != nil {
		return models.Offer{}, storeErr(err)
	}
	offer.ID = id
	return offer, nil
}

// AddCard registers a card for a user.
func (s *Service) AddCard(ctx context.Context, userID string, card models.Card) (models.Card, error) {
	card.ID = ""
	card.UserID = userID
	card.Bank = validation.SanitizeString(card.Bank)
	card.CardName = validation.SanitizeString(card.CardName)
	card.CreatedAt = s.now().UTC()

	if err := validation.ValidateCard(card); err != nil {
		return models.Card{}, err
	}

	stored, err := s.store.AddCard(ctx, card)
	if err != nil {
		return models.Card{}, storeErr(err)
	}
	return stored, nil
}

// SetProfile stores the user's income range and occupation.
func (s *Service) SetProfile(ctx context.Context, userID string, profile models.UserProfile) (models.UserProfile, error) {
	profile.UserID = userID
	profile.IncomeRange = strings.ToLower(validation.SanitizeString(profile.IncomeRange))
	profile.Occupation = strings.ToLower(validation.SanitizeString(profile.Occupation))

	if err := validation.ValidateProfile(profile); err != nil {
		return models.UserProfile{}, err
	}
	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		return models.UserProfile{}, storeErr(err)
	}
	return profile, nil
}

// SetGoal sets the user's spending target for a month.
func (s *Service) SetGoal(ctx context.Context, userID, month string, target float64) (models.Goal, error) {
	goal := models.Goal{UserID: userID, Month: month, TargetAmount: target}
	if err := validation.ValidateGoal(goal); err != nil {
		return models.Goal{}, err
	}
	if err := s.store.UpsertGoal(ctx, goal); err != nil {
		return models.Goal{}, storeErr(err)
	}
	return goal, nil
}

// GoalProgress reports spend against the goal for month.
func (s *Service) GoalProgress(ctx context.Context, userID, month string) (models.GoalProgress, error) {
	if err := validation.ValidateMonth(month); err != nil {
		return models.GoalProgress{}, err
	}

	goal, err := s.store.GetGoal(ctx, userID, month)
	if err != nil {
		return models.GoalProgress{}, storeErr(err)
	}
	agg, err := s.store.GetMonthAggregate(ctx, userID, month)
	if err != nil {
		return models.GoalProgress{}, storeErr(err)
	}

	p := models.GoalProgress{Month: month}
	if goal != nil {
		p.Target = goal.TargetAmount
	}
	if agg != nil {
		p.Spent = agg.TotalSpent
	}
	p.Remaining = math.Max(p.Target-p.Spent, 0)
	if p.Target > 0 {
		p.Percentage = int(math.Min(math.Round(p.Spent/p.Target*100), 100))
	}
	return p, nil
}

// CreateTransactions ingests a batch of transactions for one user.
func (s *Service) CreateTransactions(ctx context.Context, userID string, transactions []models.Transaction) (int, error) {
	if len(transactions) == 0 {
		return 0, &validation.ValidationError{Field: "transactions", Message: "no transactions provided"}
	}
	if len(transactions) > validation.MaxTransactions {
		return 0, &validation.ValidationError{
			Field:   "transactions",
			Message: fmt.Sprintf("cannot process more than %d transactions per request", validation.MaxTransactions),
		}
	}

	now := s.now().UTC()
	batch := make([]models.Transaction, len(transactions))
	for i, txn := range transactions {
		txn.UserID = userID
		txn.Type = strings.ToLower(validation.SanitizeString(txn.Type))
		txn.Category = validation.SanitizeString(txn.Category)
		txn.Merchant = validation.SanitizeString(txn.Merchant)
		if txn.CreatedAt.IsZero() {
			txn.CreatedAt = now
		}
		if err := validation.ValidateTransaction(txn); err != nil {
			var verr *validation.ValidationError
			if errors.As(err, &verr) {
				return 0, &validation.ValidationError{
					Field:   fmt.Sprintf("transactions[%d].%s", i, verr.Field),
					Message: verr.Message,
				}
			}
			return 0, err
		}
		batch[i] = txn
	}

	inserted, err := s.store.InsertTransactions(ctx, batch)
	if err != nil {
		return 0, storeErr(err)
	}
	s.events.PublishTransactionsIngested(ctx, userID, inserted)
	return inserted, nil
}

// RecordDecision stores what the user did with a recommendation. Accepting
// the advice not to buy is recorded as a credited saving; anything else is
// the purchase itself, net of the savings actually applied.
func (s *Service) RecordDecision(ctx context.Context, userID string, req models.DecisionRequest) (models.Transaction, error) {
	req.Category = validation.SanitizeString(req.Category)
	req.Merchant = validation.SanitizeString(req.Merchant)
	req.CardName = validation.SanitizeString(req.CardName)
	if err := validation.ValidateDecision(req); err != nil {
		return models.Transaction{}, err
	}

	txn := models.Transaction{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Merchant:           req.Merchant,
		CardName:           req.CardName,
		IgnoredOffer:       req.IgnoredOffer,
		MissedSavingAmount: req.MissedSavingAmount,
		RecommendedCard:    req.RecommendedCard,
		CreatedAt:          s.now().UTC(),
	}

	if req.Decision == validation.DecisionAccepted {
		txn.Type = models.TxnCredited
		txn.Amount = req.Amount
		txn.Category = "Savings"
		txn.Text = fmt.Sprintf("Smart Saving: Avoided expense at %s", req.Merchant)
	} else {
		applied := req.Savings
		if req.IgnoredOffer {
			applied = 0
		}
		txn.Type = models.TxnDebited
		txn.Amount = math.Max(req.Amount-applied, 0)
		txn.Category = req.Category
		txn.Text = decisionText(req, applied)
	}

	if _, err := s.store.InsertTransactions(ctx, []models.Transaction{txn}); err != nil {
		return models.Transaction{}, storeErr(err)
	}
	return txn, nil
}

func decisionText(req models.DecisionRequest, applied float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Paid to %s", req.Merchant)
	if req.CardName != "" {
		fmt.Fprintf(&b, " using %s", req.CardName)
	}
	switch {
	case req.IgnoredOffer:
		b.WriteString(" (Ignored Offer)")
	case applied > 0:
		fmt.Fprintf(&b, " (Saved ₹%g)", applied)
	}
	return b.String()
}
