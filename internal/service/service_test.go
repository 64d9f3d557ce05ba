package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-advisor-api/internal/advisory"
	"payment-advisor-api/internal/budget"
	"payment-advisor-api/internal/database"
	"payment-advisor-api/internal/events"
	"payment-advisor-api/internal/models"
	"payment-advisor-api/internal/offers"
	"payment-advisor-api/internal/validation"
)

var testNow = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T, db Store, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return testNow }),
	}, opts...)
	return NewService(db, opts...)
}

func ptr[T any](v T) *T { return &v }

func seedReferenceData(t *testing.T, svc *Service, userID string) {
	t.Helper()
	ctx := context.Background()
	validFrom := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	for _, o := range []models.Offer{
		{ID: "OFFER_001", Merchant: "Amazon", Category: "Shopping", Bank: "HDFC", CardName: "Regalia", MinAmount: 1000, DiscountType: "percentage", DiscountValue: 10, MaxDiscount: ptr(500.0), TrustLevel: "HIGH", ValidFrom: validFrom},
		{ID: "OFFER_002", Merchant: "Zomato", Category: "Dining", Bank: "Any", MinAmount: 200, DiscountType: "percentage", DiscountValue: 50, MaxDiscount: ptr(150.0), TrustLevel: "MEDIUM", ValidFrom: validFrom},
	} {
		_, err := svc.CreateOffer(ctx, o)
		require.NoError(t, err)
	}

	_, err := svc.AddCard(ctx, userID, models.Card{Bank: "HDFC", CardName: "Regalia"})
	require.NoError(t, err)
}

func closedDB(t *testing.T) *database.DB {
	t.Helper()
	db := setupTestDB(t)
	require.NoError(t, db.Close())
	return db
}

func TestFindBestOffer_AmazonScenario(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	userID := uuid.NewString()
	seedReferenceData(t, svc, userID)

	resp, err := svc.FindBestOffer(context.Background(), userID, models.BestOfferRequest{Amount: 6000, Category: "Shopping", Merchant: "Amazon"})
	require.NoError(t, err)
	require.True(t, resp.HasOffer)
	assert.Empty(t, resp.Message)

	best, ok := resp.BestOffer.(offers.Matched)
	require.True(t, ok)
	assert.Equal(t, "OFFER_001", best.Offer.ID)
	assert.Equal(t, 500.0, best.CalculatedSavings)
	assert.Equal(t, 5500.0, best.FinalAmount)
	assert.Equal(t, BestOfferDebug{MatchedOffersCount: 2, MinAmount: 200, Stage: "strict"}, resp.Debug)
}

func TestFindBestOffer_EmptyResults(t *testing.T) {
	svc := newTestService(t, setupTestDB(t), WithFlags(flagSet{}))
	userID := uuid.NewString()
	ctx := context.Background()

	resp, err := svc.FindBestOffer(ctx, userID, models.BestOfferRequest{Amount: 150, Category: "Dining"})
	require.NoError(t, err)
	assert.False(t, resp.HasOffer)
	assert.Nil(t, resp.BestOffer)
	assert.Equal(t, "Amount too low for offers (< 200)", resp.Message)

	resp, err = svc.FindBestOffer(ctx, userID, models.BestOfferRequest{Amount: 900, Category: "Travel", Merchant: "Uber"})
	require.NoError(t, err)
	assert.False(t, resp.HasOffer)
	assert.Equal(t, MsgNoCards, resp.Message)

	seedReferenceData(t, svc, userID)
	resp, err = svc.FindBestOffer(ctx, userID, models.BestOfferRequest{Amount: 900, Category: "Travel", Merchant: "Uber"})
	require.NoError(t, err)
	assert.False(t, resp.HasOffer)
	assert.Equal(t, MsgNoMatch, resp.Message)
}

func TestFindBestOffer_CustomFloor(t *testing.T) {
	svc := newTestService(t, setupTestDB(t), WithMinOfferAmount(500))

	resp, err := svc.FindBestOffer(context.Background(), "u1", models.BestOfferRequest{Amount: 400})
	require.NoError(t, err)
	assert.Equal(t, "Amount too low for offers (< 500)", resp.Message)
	assert.Equal(t, BestOfferDebug{MinAmount: 500}, resp.Debug)
}

func TestFindBestOffer_PublishesEvent(t *testing.T) {
	em := events.NewManager(true, quietLogger())
	got := make(chan events.OfferRecommendedData, 1)
	em.Subscribe(events.EventOfferRecommended, func(ctx context.Context, e events.Event) error {
		got <- e.Data.(events.OfferRecommendedData)
		return nil
	})

	svc := newTestService(t, setupTestDB(t), WithEvents(em))
	seedReferenceData(t, svc, "u1")

	_, err := svc.FindBestOffer(context.Background(), "u1", models.BestOfferRequest{Amount: 6000, Merchant: "Amazon", Category: "Shopping"})
	require.NoError(t, err)
	em.Wait()

	data := <-got
	assert.Equal(t, "OFFER_001", data.OfferID)
	assert.Equal(t, "strict", data.Stage)
	assert.Equal(t, 500.0, data.Savings)
}

func TestStoreFailures(t *testing.T) {
	svc := newTestService(t, closedDB(t))
	ctx := context.Background()

	_, err := svc.FindBestOffer(ctx, "u1", models.BestOfferRequest{Amount: 1000})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = svc.ComputeSmartScore(ctx, "u1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = svc.GoalProgress(ctx, "u1", "2025-10")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	advice := svc.AnalyzePrePay(ctx, "u1", models.PrePayRequest{Amount: 500, Category: "Dining"})
	assert.Equal(t, budget.SafeDefault(500, "Dining"), advice)

	reply := svc.Chat(ctx, "u1", models.ChatRequest{Message: "hi"})
	assert.Equal(t, advisory.ChatFallback, reply.Reply)
}

func TestComputeSmartScore(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	ctx := context.Background()

	profile, err := svc.SetProfile(ctx, "u1", models.UserProfile{IncomeRange: "30K_50K"})
	require.NoError(t, err)
	assert.Equal(t, "30k_50k", profile.IncomeRange)
	_, err = svc.SetGoal(ctx, "u1", "2025-10", 20000)
	require.NoError(t, err)
	_, err = svc.CreateTransactions(ctx, "u1", []models.Transaction{
		{Amount: 4000, Type: "debited", Category: "Dining", CreatedAt: testNow.AddDate(0, 0, -3)},
		{Amount: 2000, Type: "debited", Category: "Travel", CreatedAt: testNow.AddDate(0, 0, -1)},
	})
	require.NoError(t, err)

	res, err := svc.ComputeSmartScore(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2025-10", res.Meta.Month)
	assert.Equal(t, "income_range", res.Meta.IncomeSource)
	assert.Equal(t, 6000.0, res.Meta.TotalExpenses)
	assert.Equal(t, 2, res.Meta.ActiveDays)
	assert.GreaterOrEqual(t, res.SmartScore, 0)
	assert.LessOrEqual(t, res.SmartScore, 100)
}

func TestComputeSmartScore_CreditsAreNotActivity(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	ctx := context.Background()

	_, err := svc.CreateTransactions(ctx, "u1", []models.Transaction{
		{Amount: 50000, Type: "credited", Category: "Salary", CreatedAt: testNow.AddDate(0, 0, -10)},
	})
	require.NoError(t, err)
	_, err = svc.RecordDecision(ctx, "u1", models.DecisionRequest{
		Amount: 700, Category: "Dining", Merchant: "Zomato", Decision: validation.DecisionAccepted,
	})
	require.NoError(t, err)

	res, err := svc.ComputeSmartScore(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, res.Meta.ActiveDays)
	assert.Zero(t, res.Breakdown.Regularity)
	assert.Zero(t, res.Breakdown.Engagement)
}

func TestAnalyzePrePay_OffTrack(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	ctx := context.Background()

	_, err := svc.SetGoal(ctx, "u1", "2025-10", 1000)
	require.NoError(t, err)
	_, err = svc.CreateTransactions(ctx, "u1", []models.Transaction{
		{Amount: 200, Type: "debited", Category: "Dining", CreatedAt: testNow.AddDate(0, 0, -2)},
	})
	require.NoError(t, err)

	advice := svc.AnalyzePrePay(ctx, "u1", models.PrePayRequest{Amount: 900, Category: "Dining"})
	assert.True(t, advice.InterventionNeeded)
	assert.Equal(t, "OFF_TRACK", advice.BudgetStatus)
	assert.Equal(t, "Budget Exceeded", advice.StructuredInsight.Status)
	assert.Equal(t, "reduce", advice.SuggestionType)
	assert.Equal(t, "Spending ₹900 now takes up 90.0% of your goal. Is this essential?", advice.Message)
	assert.Equal(t, "Alternative: Cook a meal at home or find a cheaper place.", advice.StructuredInsight.Impact)
}

func TestAnalyzePrePay_OnTrackSuggestsCard(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	ctx := context.Background()
	seedReferenceData(t, svc, "u1")

	_, err := svc.SetGoal(ctx, "u1", "2025-10", 20000)
	require.NoError(t, err)

	advice := svc.AnalyzePrePay(ctx, "u1", models.PrePayRequest{Amount: 1000, Category: "Shopping"})
	assert.False(t, advice.InterventionNeeded)
	assert.Equal(t, "ON_TRACK", advice.BudgetStatus)
	assert.Equal(t, "optimize", advice.SuggestionType)
	assert.Equal(t, "Alternative: Use Regalia to save ₹100.", advice.StructuredInsight.Impact)
}

func TestAnalyzePrePay_NoGoal(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))

	advice := svc.AnalyzePrePay(context.Background(), "u1", models.PrePayRequest{Amount: 300, Category: "Travel"})
	assert.False(t, advice.InterventionNeeded)
	assert.Equal(t, "NO_GOAL", advice.BudgetStatus)
	assert.Equal(t, advice.StructuredInsight.Context, advice.Message)
}

type flagSet map[string]bool

func (f flagSet) IsEnabled(name string) bool { return f[name] }

func newAdvisedService(t *testing.T, text string, err error) (*Service, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	advisor := advisory.AdvisorFunc(func(ctx context.Context, req advisory.Request) (string, error) {
		calls.Add(1)
		return text, err
	})
	gate := advisory.NewMemoryGate(advisory.DefaultCooldown)
	t.Cleanup(gate.Stop)
	merger := advisory.NewMerger(advisor, gate, advisory.WithLogger(quietLogger()))
	return newTestService(t, setupTestDB(t), WithMerger(merger)), &calls
}

func TestAnalyzePrePay_AdvisorSupplementsText(t *testing.T) {
	svc, calls := newAdvisedService(t, `{"message":"Maybe skip dessert.","context":"Third dinner out this week."}`, nil)
	ctx := context.Background()

	advice := svc.AnalyzePrePay(ctx, "u1", models.PrePayRequest{Amount: 500, Category: "Dining"})
	assert.Equal(t, "Maybe skip dessert.", advice.Message)
	assert.Equal(t, "Third dinner out this week.", advice.StructuredInsight.Context)
	assert.Equal(t, "NO_GOAL", advice.BudgetStatus)

	again := svc.AnalyzePrePay(ctx, "u1", models.PrePayRequest{Amount: 500, Category: "Dining"})
	assert.Equal(t, advisory.PlaceholderMessage, again.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnalyzePrePay_AdvisorFailureFallsBack(t *testing.T) {
	svc, _ := newAdvisedService(t, "", advisory.ErrRateLimited)
	deterministic := newTestService(t, setupTestDB(t))
	req := models.PrePayRequest{Amount: 500, Category: "Dining"}

	assert.Equal(t,
		deterministic.AnalyzePrePay(context.Background(), "u1", req),
		svc.AnalyzePrePay(context.Background(), "u1", req))
}

func TestChat(t *testing.T) {
	svc, _ := newAdvisedService(t, "You have spent ₹0 so far. Nice!", nil)
	ctx := context.Background()

	assert.Equal(t, "You have spent ₹0 so far. Nice!", svc.Chat(ctx, "u1", models.ChatRequest{Message: "How am I doing?"}).Reply)
	assert.Equal(t, advisory.PlaceholderMessage, svc.Chat(ctx, "u1", models.ChatRequest{Message: "And now?"}).Reply)

	failing, _ := newAdvisedService(t, "", errors.New("boom"))
	assert.Equal(t, advisory.ChatFallback, failing.Chat(ctx, "u1", models.ChatRequest{Message: "hi"}).Reply)
}

func TestCreateTransactions_Validation(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	ctx := context.Background()

	_, err := svc.CreateTransactions(ctx, "u1", nil)
	var verr *validation.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "transactions", verr.Field)

	_, err = svc.CreateTransactions(ctx, "u1", make([]models.Transaction, validation.MaxTransactions+1))
	require.ErrorAs(t, err, &verr)

	_, err = svc.CreateTransactions(ctx, "u1", []models.Transaction{
		{Amount: 10, Type: "debited"},
		{Amount: 10, Type: "refund"},
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "transactions[1].type", verr.Field)

	n, err := svc.CreateTransactions(ctx, "u1", []models.Transaction{{Amount: 10, Type: "DEBITED", Category: "Dining"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGoalProgress(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	ctx := context.Background()

	p, err := svc.GoalProgress(ctx, "u1", "2025-10")
	require.NoError(t, err)
	assert.Equal(t, models.GoalProgress{Month: "2025-10"}, p)

	_, err = svc.SetGoal(ctx, "u1", "2025-10", 1000)
	require.NoError(t, err)
	_, err = svc.CreateTransactions(ctx, "u1", []models.Transaction{{Amount: 250, Type: "debited", Category: "Dining"}})
	require.NoError(t, err)

	p, err = svc.GoalProgress(ctx, "u1", "2025-10")
	require.NoError(t, err)
	assert.Equal(t, models.GoalProgress{Month: "2025-10", Target: 1000, Spent: 250, Remaining: 750, Percentage: 25}, p)

	_, err = svc.CreateTransactions(ctx, "u1", []models.Transaction{{Amount: 1000, Type: "debited", Category: "Travel"}})
	require.NoError(t, err)
	p, err = svc.GoalProgress(ctx, "u1", "2025-10")
	require.NoError(t, err)
	assert.Equal(t, 100, p.Percentage)
	assert.Zero(t, p.Remaining)

	_, err = svc.GoalProgress(ctx, "u1", "2025-13")
	var verr *validation.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRecordDecision(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	ctx := context.Background()

	txn, err := svc.RecordDecision(ctx, "u1", models.DecisionRequest{
		Amount: 1000, Category: "Shopping", Merchant: "Amazon", CardName: "Regalia", Savings: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TxnDebited, txn.Type)
	assert.Equal(t, 900.0, txn.Amount)
	assert.Equal(t, "Paid to Amazon using Regalia (Saved ₹100)", txn.Text)

	txn, err = svc.RecordDecision(ctx, "u1", models.DecisionRequest{
		Amount: 1000, Category: "Shopping", Merchant: "Amazon", Savings: 100, IgnoredOffer: true, MissedSavingAmount: 100, RecommendedCard: "Regalia",
	})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, txn.Amount)
	assert.Equal(t, "Paid to Amazon (Ignored Offer)", txn.Text)

	txn, err = svc.RecordDecision(ctx, "u1", models.DecisionRequest{
		Amount: 700, Category: "Dining", Merchant: "Zomato", Decision: validation.DecisionAccepted,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TxnCredited, txn.Type)
	assert.Equal(t, "Savings", txn.Category)
	assert.Equal(t, 700.0, txn.Amount)

	p, err := svc.GoalProgress(ctx, "u1", "2025-10")
	require.NoError(t, err)
	assert.Equal(t, 1900.0, p.Spent)

	_, err = svc.RecordDecision(ctx, "u1", models.DecisionRequest{Amount: 100, Savings: 200})
	var verr *validation.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestIngestionValidation(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	ctx := context.Background()
	var verr *validation.ValidationError

	_, err := svc.CreateOffer(ctx, models.Offer{Merchant: "Amazon", DiscountType: "bogus", DiscountValue: 5})
	assert.ErrorAs(t, err, &verr)

	_, err = svc.AddCard(ctx, "u1", models.Card{Bank: "HDFC"})
	assert.ErrorAs(t, err, &verr)

	_, err = svc.SetProfile(ctx, "u1", models.UserProfile{Occupation: "astronaut"})
	assert.ErrorAs(t, err, &verr)

	_, err = svc.SetGoal(ctx, "u1", "October", 1000)
	assert.ErrorAs(t, err, &verr)
}
