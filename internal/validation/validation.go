package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"payment-advisor-api/internal/models"
)

// Limits on request fields.
const (
	MaxUserIDLength   = 128
	MaxTextLength     = 256
	MaxMessageLength  = 2000
	MaxAmount         = 10_000_000
	MaxTransactions   = 1000
	DecisionAccepted  = "advice_accepted"
	DecisionProceeded = "proceeded"
)

var (
	monthRegex      = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
	lastDigitsRegex = regexp.MustCompile(`^\d{4}$`)

	discountTypes = map[string]bool{
		models.DiscountPercentage: true,
		models.DiscountFlat:       true,
		"cashback":                true,
	}
	trustLevels = map[string]bool{
		models.TrustHigh:   true,
		models.TrustMedium: true,
		models.TrustLow:    true,
	}
	incomeRanges = map[string]bool{"": true, "below_15k": true, "15k_30k": true, "30k_50k": true, "50k_plus": true}
	occupations  = map[string]bool{"": true, "student": true, "salaried": true, "freelancer": true, "self_employed": true}
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func ValidateUserID(id string) error {
	id = SanitizeString(id)
	if id == "" {
		return &ValidationError{Field: "user_id", Message: "is required"}
	}
	if len(id) > MaxUserIDLength {
		return &ValidationError{Field: "user_id", Message: fmt.Sprintf("cannot exceed %d characters", MaxUserIDLength)}
	}
	return nil
}

// ValidateAmount requires a positive purchase amount within MaxAmount.
func ValidateAmount(amount float64, field string) error {
	if amount <= 0 {
		return &ValidationError{Field: field, Message: "must be positive"}
	}
	if amount > MaxAmount {
		return &ValidationError{Field: field, Message: "exceeds maximum allowed amount"}
	}
	return nil
}

func ValidateMonth(month string) error {
	if !monthRegex.MatchString(month) {
		return &ValidationError{Field: "month", Message: "must be formatted YYYY-MM"}
	}
	return nil
}

func validateText(s, field string, required bool) error {
	if required && SanitizeString(s) == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	if len(s) > MaxTextLength {
		return &ValidationError{Field: field, Message: fmt.Sprintf("cannot exceed %d characters", MaxTextLength)}
	}
	return nil
}

func ValidateBestOfferRequest(req models.BestOfferRequest) error {
	if err := ValidateAmount(req.Amount, "amount"); err != nil {
		return err
	}
	if err := validateText(req.Category, "category", false); err != nil {
		return err
	}
	return validateText(req.Merchant, "merchant", false)
}

func ValidatePrePayRequest(req models.PrePayRequest) error {
	if err := ValidateAmount(req.Amount, "amount"); err != nil {
		return err
	}
	return validateText(req.Category, "category", true)
}

func ValidateChatRequest(req models.ChatRequest) error {
	if SanitizeString(req.Message) == "" {
		return &ValidationError{Field: "message", Message: "is required"}
	}
	if len(req.Message) > MaxMessageLength {
		return &ValidationError{Field: "message", Message: fmt.Sprintf("cannot exceed %d characters", MaxMessageLength)}
	}
	return nil
}

func ValidateOffer(offer models.Offer) error {
	if err := validateText(offer.ID, "id", false); err != nil {
		return err
	}
	if SanitizeString(offer.Merchant) == "" && SanitizeString(offer.Category) == "" {
		return &ValidationError{Field: "merchant", Message: "merchant or category is required"}
	}

	if !discountTypes[strings.ToLower(offer.DiscountType)] {
		return &ValidationError{Field: "discount_type", Message: "must be percentage, flat or cashback"}
	}
	if offer.DiscountValue <= 0 {
		return &ValidationError{Field: "discount_value", Message: "must be positive"}
	}
	if strings.EqualFold(offer.DiscountType, models.DiscountPercentage) && offer.DiscountValue > 100 {
		return &ValidationError{Field: "discount_value", Message: "percentage cannot exceed 100"}
	}
	if offer.MaxDiscount != nil && *offer.MaxDiscount < 0 {
		return &ValidationError{Field: "max_discount", Message: "must be non-negative"}
	}
	if offer.MinAmount < 0 {
		return &ValidationError{Field: "min_amount", Message: "must be non-negative"}
	}
	if offer.TrustLevel != "" && !trustLevels[strings.ToUpper(offer.TrustLevel)] {
		return &ValidationError{Field: "trust_level", Message: "must be HIGH, MEDIUM or LOW"}
	}

	if offer.ValidTo != nil && !offer.ValidFrom.IsZero() && !offer.ValidFrom.Before(*offer.ValidTo) {
		return &ValidationError{Field: "valid_from", Message: "must be before valid_to"}
	}

	return nil
}

func ValidateCard(card models.Card) error {
	if err := validateText(card.Bank, "bank", true); err != nil {
		return err
	}
	if err := validateText(card.CardName, "card_name", true); err != nil {
		return err
	}
	if card.LastDigits != "" && !lastDigitsRegex.MatchString(card.LastDigits) {
		return &ValidationError{Field: "last_digits", Message: "must be 4 digits"}
	}
	return nil
}

func ValidateProfile(profile models.UserProfile) error {
	if !incomeRanges[strings.ToLower(profile.IncomeRange)] {
		return &ValidationError{Field: "income_range", Message: "must be one of below_15k, 15k_30k, 30k_50k, 50k_plus"}
	}
	if !occupations[strings.ToLower(profile.Occupation)] {
		return &ValidationError{Field: "occupation", Message: "must be one of student, salaried, freelancer, self_employed"}
	}
	return nil
}

func ValidateGoal(goal models.Goal) error {
	if err := ValidateMonth(goal.Month); err != nil {
		return err
	}
	if goal.TargetAmount < 0 {
		return &ValidationError{Field: "target_amount", Message: "must be non-negative"}
	}
	if goal.TargetAmount > MaxAmount {
		return &ValidationError{Field: "target_amount", Message: "exceeds maximum allowed amount"}
	}
	return nil
}

func ValidateTransaction(txn models.Transaction) error {
	if err := ValidateAmount(txn.Amount, "amount"); err != nil {
		return err
	}

	if txn.Type != models.TxnDebited && txn.Type != models.TxnCredited {
		return &ValidationError{Field: "type", Message: "must be debited or credited"}
	}

	if err := validateText(txn.Category, "category", false); err != nil {
		return err
	}
	if err := validateText(txn.Merchant, "merchant", false); err != nil {
		return err
	}

	if txn.CreatedAt.IsZero() {
		return &ValidationError{Field: "created_at", Message: "is required"}
	}

	maxFutureTime := time.Now().Add(1 * time.Hour)
	if txn.CreatedAt.After(maxFutureTime) {
		return &ValidationError{Field: "created_at", Message: "cannot be more than 1 hour in the future"}
	}

	maxPastTime := time.Now().AddDate(-10, 0, 0)
	if txn.CreatedAt.Before(maxPastTime) {
		return &ValidationError{Field: "created_at", Message: "cannot be more than 10 years in the past"}
	}

	return nil
}

func ValidateDecision(req models.DecisionRequest) error {
	if err := ValidateAmount(req.Amount, "amount"); err != nil {
		return err
	}
	if err := validateText(req.Category, "category", false); err != nil {
		return err
	}
	if req.Savings < 0 || req.Savings > req.Amount {
		return &ValidationError{Field: "savings", Message: "must be between 0 and amount"}
	}
	if req.MissedSavingAmount < 0 {
		return &ValidationError{Field: "missed_saving_amount", Message: "must be non-negative"}
	}
	switch req.Decision {
	case "", DecisionAccepted, DecisionProceeded:
	default:
		return &ValidationError{Field: "decision", Message: "must be advice_accepted or proceeded"}
	}
	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}
