package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"payment-advisor-api/internal/advisory"
	"payment-advisor-api/internal/budget"
	"payment-advisor-api/internal/events"
	"payment-advisor-api/internal/models"
	"payment-advisor-api/internal/offers"
	"payment-advisor-api/internal/score"
	"payment-advisor-api/internal/tracing"
)

// ErrStoreUnavailable wraps every failure of the backing store.
var ErrStoreUnavailable = errors.New("store unavailable")

// Messages returned alongside an empty best offer result.
const (
	MsgNoCards = "No cards added by user"
	MsgNoMatch = "No matching offers found"
)

// Store is everything the service reads from and writes to.
type Store interface {
	offers.Store
	score.Store
	UpsertOffer(ctx context.Context, offer models.Offer) (string, error)
	AddCard(ctx context.Context, card models.Card) (models.Card, error)
	UpsertProfile(ctx context.Context, profile models.UserProfile) error
	UpsertGoal(ctx context.Context, goal models.Goal) error
	InsertTransactions(ctx context.Context, transactions []models.Transaction) (int, error)
}

// BestOfferResponse is the result of FindBestOffer. BestOffer encodes as
// null when there is no candidate.
type BestOfferResponse struct {
	HasOffer  bool             `json:"hasOffer"`
	BestOffer offers.Candidate `json:"bestOffer"`
	Message   string           `json:"message,omitempty"`
	Debug     BestOfferDebug   `json:"debug"`
}

// BestOfferDebug describes how the lookup ran.
type BestOfferDebug struct {
	MatchedOffersCount int     `json:"matchedOffersCount"`
	MinAmount          float64 `json:"minAmount"`
	Stage              string  `json:"stage,omitempty"`
}

// Service provides business logic for the payment advisor API.
type Service struct {
	store      Store
	resolver   *offers.Resolver
	aggregator *score.Aggregator
	merger     *advisory.Merger
	events     *events.Manager
	flags      offers.Flags
	thresholds budget.Thresholds
	minAmount  float64
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMerger sets the advisory merger used by pre-pay analysis and chat.
func WithMerger(m *advisory.Merger) Option {
	return func(s *Service) { s.merger = m }
}

// WithEvents sets the domain event manager.
func WithEvents(em *events.Manager) Option {
	return func(s *Service) { s.events = em }
}

// WithFlags sets the feature flags consulted by the waterfall.
func WithFlags(flags offers.Flags) Option {
	return func(s *Service) { s.flags = flags }
}

// WithThresholds overrides the budget-status margins.
func WithThresholds(th budget.Thresholds) Option {
	return func(s *Service) { s.thresholds = th }
}

// WithMinOfferAmount overrides the purchase floor for offers.
func WithMinOfferAmount(amount float64) Option {
	return func(s *Service) { s.minAmount = amount }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new service instance.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		thresholds: budget.DefaultThresholds(),
		minAmount:  offers.DefaultMinAmount,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.merger == nil {
		s.merger = advisory.NewMerger(nil, nil, advisory.WithLogger(s.logger))
	}

	resolverOpts := []offers.Option{
		offers.WithLogger(s.logger),
		offers.WithMinAmount(s.minAmount),
	}
	if s.flags != nil {
		resolverOpts = append(resolverOpts, offers.WithFlags(s.flags))
	}
	s.resolver = offers.NewResolver(store, resolverOpts...)
	s.aggregator = score.NewAggregator(store, s.logger)
	return s
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// FindBestOffer recommends the card and offer that save the most on a
// purchase. An empty result is not an error.
func (s *Service) FindBestOffer(ctx context.Context, userID string, req models.BestOfferRequest) (BestOfferResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "service.FindBestOffer",
		attribute.String("user.id", userID),
		attribute.Float64("purchase.amount", req.Amount),
	)
	defer span.End()

	res, err := s.resolver.FindBest(ctx, offers.Query{
		UserID:   userID,
		Amount:   req.Amount,
		Category: req.Category,
		Merchant: req.Merchant,
		Now:      s.now().UTC(),
	})
	if err != nil {
		tracing.RecordError(span, err)
		return BestOfferResponse{}, storeErr(err)
	}

	resp := BestOfferResponse{
		HasOffer:  res.HasOffer(),
		BestOffer: res.Best,
		Debug: BestOfferDebug{
			MatchedOffersCount: res.Considered,
			MinAmount:          s.resolver.MinAmount(),
		},
	}
	switch res.Reason {
	case offers.ReasonAmountTooLow:
		resp.Message = fmt.Sprintf("Amount too low for offers (< %s)", strconv.FormatFloat(s.resolver.MinAmount(), 'f', -1, 64))
	case offers.ReasonNoCards:
		resp.Message = MsgNoCards
	case offers.ReasonNoMatch:
		resp.Message = MsgNoMatch
	}

	span.SetAttributes(attribute.Int("offers.considered", res.Considered))
	if res.Best != nil {
		resp.Debug.Stage = string(res.Best.MatchStage())
		span.SetAttributes(
			attribute.String("offer.id", offers.OfferID(res.Best)),
			attribute.String("offer.stage", string(res.Best.MatchStage())),
		)
		s.events.PublishOfferRecommended(ctx, events.OfferRecommendedData{
			UserID:  userID,
			OfferID: offers.OfferID(res.Best),
			Stage:   string(res.Best.MatchStage()),
			Amount:  req.Amount,
			Savings: res.Best.Savings(),
		})
	}
	return resp, nil
}

// ComputeSmartScore returns the user's Smart Score for the current month.
func (s *Service) ComputeSmartScore(ctx context.Context, userID string) (*score.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "service.ComputeSmartScore", attribute.String("user.id", userID))
	defer span.End()

	res, err := s.aggregator.Compute(ctx, userID, s.now().UTC())
	if err != nil {
		tracing.RecordError(span, err)
		return nil, storeErr(err)
	}
	span.SetAttributes(attribute.Int("score.total", res.SmartScore))
	s.events.PublishScoreComputed(ctx, userID, res.SmartScore)
	return res, nil
}

// AnalyzePrePay classifies a pending purchase against the user's budget. It
// always returns advice: store failures yield budget.SafeDefault and
// advisory failures yield the deterministic insight.
func (s *Service) AnalyzePrePay(ctx context.Context, userID string, req models.PrePayRequest) models.PrePayAdvice {
	ctx, span := tracing.StartSpan(ctx, "service.AnalyzePrePay",
		attribute.String("user.id", userID),
		attribute.Float64("purchase.amount", req.Amount),
	)
	defer span.End()

	now := s.now().UTC()
	fc, err := s.financialContext(ctx, userID, now)
	if err != nil {
		tracing.RecordError(span, err)
		s.logger.Warn("pre-pay context unavailable, returning safe default", "user_id", userID, "error", err)
		return budget.SafeDefault(req.Amount, req.Category)
	}

	day, daysInMonth := budget.MonthPosition(now)
	in := budget.Input{
		Goal:        fc.GoalTarget,
		SpentSoFar:  fc.TotalSpent,
		Amount:      req.Amount,
		Category:    req.Category,
		DayOfMonth:  day,
		DaysInMonth: daysInMonth,
	}

	base := budget.Advise(in, s.thresholds, s.suggestion(ctx, userID, req, now))
	span.SetAttributes(attribute.String("budget.status", base.BudgetStatus))

	prompt := advisory.PrePayPrompt(fc, advisory.PrePayInput{
		Amount:            req.Amount,
		Category:          req.Category,
		StatusLabel:       base.StructuredInsight.Status,
		GoalImpactPercent: budget.GoalImpactPercent(req.Amount, fc.GoalTarget),
		Intervention:      base.InterventionNeeded,
		SuggestionType:    base.SuggestionType,
		SuggestedAction:   base.SuggestedAction,
	})
	return s.merger.Merge(ctx, userID, base, prompt)
}

// suggestion looks up the best card for the purchase. Failures only drop
// the suggestion.
func (s *Service) suggestion(ctx context.Context, userID string, req models.PrePayRequest, now time.Time) *budget.Suggestion {
	res, err := s.resolver.FindBest(ctx, offers.Query{
		UserID:   userID,
		Amount:   req.Amount,
		Category: req.Category,
		Now:      now,
	})
	if err != nil {
		s.logger.Warn("best offer lookup failed during pre-pay", "user_id", userID, "error", err)
		return nil
	}
	if res.Best == nil || res.Best.Savings() <= 0 {
		return nil
	}
	card := offers.CardName(res.Best)
	if card == "" {
		return nil
	}
	return &budget.Suggestion{CardName: card, Savings: res.Best.Savings()}
}

// Chat answers a free-form coach question grounded on the user's numbers.
func (s *Service) Chat(ctx context.Context, userID string, req models.ChatRequest) models.ChatResponse {
	ctx, span := tracing.StartSpan(ctx, "service.Chat", attribute.String("user.id", userID))
	defer span.End()

	fc, err := s.financialContext(ctx, userID, s.now().UTC())
	if err != nil {
		tracing.RecordError(span, err)
		s.logger.Warn("chat context unavailable", "user_id", userID, "error", err)
		return models.ChatResponse{Reply: advisory.ChatFallback}
	}
	return models.ChatResponse{Reply: s.merger.Ask(ctx, userID, advisory.ChatPrompt(fc, req.Message))}
}
