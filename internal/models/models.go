package models

import (
	"strings"
	"time"
)

// Discount types understood by the savings calculator.
const (
	DiscountPercentage = "percentage"
	DiscountFlat       = "flat"
)

// Trust levels an offer can carry.
const (
	TrustHigh   = "HIGH"
	TrustMedium = "MEDIUM"
	TrustLow    = "LOW"
)

// Transaction types.
const (
	TxnDebited  = "debited"
	TxnCredited = "credited"
)

// Offer is a merchant/bank scoped discount rule. It is reference data and is
// never mutated by the recommendation engine.
type Offer struct {
	ID            string     `json:"id"`
	Merchant      string     `json:"merchant"`
	Category      string     `json:"category"`
	Bank          string     `json:"bank"`      // "" or "Any" means any bank
	CardName      string     `json:"card_name"` // "" means any card
	MinAmount     float64    `json:"min_amount"`
	DiscountType  string     `json:"discount_type"`
	DiscountValue float64    `json:"discount_value"`
	MaxDiscount   *float64   `json:"max_discount"`
	TrustLevel    string     `json:"trust_level"`
	PromoCode     string     `json:"promo_code,omitempty"`
	Description   string     `json:"description,omitempty"`
	ValidFrom     time.Time  `json:"valid_from"`
	ValidTo       *time.Time `json:"valid_to"`
}

// AnyBank reports whether the offer is not restricted to a bank.
func (o Offer) AnyBank() bool {
	return isWildcard(o.Bank)
}

// AnyCard reports whether the offer does not require a specific card.
func (o Offer) AnyCard() bool {
	return isWildcard(o.CardName)
}

func isWildcard(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "any")
}

// Card is a payment instrument owned by a user.
type Card struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Bank       string    `json:"bank"`
	CardName   string    `json:"card_name"`
	CardType   string    `json:"card_type,omitempty"`
	Network    string    `json:"network,omitempty"`
	LastDigits string    `json:"last_digits,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Goal is a user's monthly spending target. Month is formatted YYYY-MM.
type Goal struct {
	UserID       string  `json:"user_id"`
	Month        string  `json:"month"`
	TargetAmount float64 `json:"target_amount"`
}

// UserProfile holds the self-declared attributes used for income resolution.
type UserProfile struct {
	UserID      string `json:"user_id"`
	IncomeRange string `json:"income_range,omitempty"` // below_15k, 15k_30k, 30k_50k, 50k_plus
	Occupation  string `json:"occupation,omitempty"`   // student, salaried, freelancer, self_employed
}

// MonthAggregate summarises a user's debited spend for one month.
type MonthAggregate struct {
	UserID           string             `json:"user_id"`
	Month            string             `json:"month"`
	TotalSpent       float64            `json:"total_spent"`
	ByCategory       map[string]float64 `json:"by_category"`
	TransactionCount int                `json:"transaction_count"`
}

// Transaction is a single debit or credit in a user's history. Amount is
// always positive; Type carries the direction.
type Transaction struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Amount             float64   `json:"amount"`
	Type               string    `json:"type"`
	Category           string    `json:"category"`
	Merchant           string    `json:"merchant,omitempty"`
	CardName           string    `json:"card_name,omitempty"`
	Text               string    `json:"text,omitempty"`
	IgnoredOffer       bool      `json:"ignored_offer"`
	MissedSavingAmount float64   `json:"missed_saving_amount"`
	RecommendedCard    string    `json:"recommended_card,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// OfferFilter narrows the offers returned by the store. Empty fields do not
// constrain the query, except that a filter with MatchMerchantOrCategory set
// and both Merchant and Category empty matches nothing.
type OfferFilter struct {
	// BanksAllowed restricts offers to these banks. Offers without a bank
	// are included when IncludeAnyBank is set.
	BanksAllowed   []string
	IncludeAnyBank bool
	// AnyCardOnly keeps only offers that do not require a named card.
	AnyCardOnly bool
	// MatchMerchantOrCategory keeps offers whose merchant equals Merchant or
	// whose category equals Category, case-insensitively.
	MatchMerchantOrCategory bool
	Merchant                string
	Category                string
	// Amount drops offers whose min_amount exceeds it.
	Amount   float64
	ActiveAt time.Time
}

// StructuredInsight is the deterministic (context, tradeoff, impact) triple
// produced for a budget status.
type StructuredInsight struct {
	Status   string `json:"status"`
	Context  string `json:"context"`
	Tradeoff string `json:"tradeoff"`
	Impact   string `json:"impact"`
}

// PrePayAdvice is the response of the pre-pay analysis.
type PrePayAdvice struct {
	InterventionNeeded bool              `json:"intervention_needed"`
	Message            string            `json:"message"`
	StructuredInsight  StructuredInsight `json:"structured_insight"`
	SuggestionType     string            `json:"suggestion_type"`
	SuggestedAction    string            `json:"suggested_action"`
	BudgetStatus       string            `json:"budget_status"`
}

// BestOfferRequest is the request body for a best offer lookup.
type BestOfferRequest struct {
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Merchant string  `json:"merchant"`
}

// PrePayRequest is the request body for the pre-pay analysis.
type PrePayRequest struct {
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
}

// ChatRequest is the request body for the coach chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the response of the coach chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// GoalProgress reports spend against a monthly goal.
type GoalProgress struct {
	Month      string  `json:"month"`
	Target     float64 `json:"target"`
	Spent      float64 `json:"spent"`
	Remaining  float64 `json:"remaining"`
	Percentage int     `json:"percentage"`
}

// DecisionRequest records what the user did with a recommendation.
type DecisionRequest struct {
	Amount             float64 `json:"amount"`
	Category           string  `json:"category"`
	Merchant           string  `json:"merchant"`
	CardName           string  `json:"card_name"`
	Savings            float64 `json:"savings"`
	IgnoredOffer       bool    `json:"ignored_offer"`
	MissedSavingAmount float64 `json:"missed_saving_amount"`
	RecommendedCard    string  `json:"recommended_card"`
	Decision           string  `json:"decision"`
}

// CreateTransactionsRequest represents the request body for ingesting transactions.
type CreateTransactionsRequest struct {
	Transactions []Transaction `json:"transactions"`
}

// CreateTransactionsResponse represents the response for ingesting transactions.
type CreateTransactionsResponse struct {
	Inserted int `json:"inserted"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
