package offers

import (
	"encoding/json"
	"fmt"
	"time"

	"payment-advisor-api/internal/models"
)

// Stage identifies which waterfall stage produced a candidate.
type Stage string

const (
	StageStrict      Stage = "strict"
	StageBroad       Stage = "broad"
	StageFallback    Stage = "fallback"
	StageSynthesized Stage = "synthesized"
)

// Query is a pending or hypothetical purchase.
type Query struct {
	UserID   string
	Amount   float64
	Category string
	Merchant string
	Now      time.Time
}

// Candidate is either a Matched offer or a Synthesized reward. Both encode to
// the same flat JSON shape, distinguished by "kind".
type Candidate interface {
	Savings() float64
	Efficiency() float64
	MatchStage() Stage
	candidate()
}

// Matched is a real offer scored against a purchase.
type Matched struct {
	Offer             models.Offer
	Stage             Stage
	MatchScore        int
	CalculatedSavings float64
	FinalAmount       float64
	EfficiencyScore   float64
}

func (Matched) candidate() {}
func (m Matched) Savings() float64 { return m.CalculatedSavings }
func (m Matched) Efficiency() float64 { return m.EfficiencyScore }
func (m Matched) MatchStage() Stage { return m.Stage }

// Synthesized is the generic reward fabricated on the user's first card when
// no offer matched at all.
type Synthesized struct {
	Card              models.Card
	Merchant          string
	Category          string
	CalculatedSavings float64
	FinalAmount       float64
}

func (Synthesized) candidate() {}
func (s Synthesized) Savings() float64 { return s.CalculatedSavings }
func (s Synthesized) Efficiency() float64 { return synthesizedEfficiency }
func (s Synthesized) MatchStage() Stage { return StageSynthesized }

// candidateJSON is the wire shape shared by both variants.
type candidateJSON struct {
	Kind              string     `json:"kind"`
	MatchType         Stage      `json:"match_type"`
	ID                string     `json:"id"`
	OfferID           string     `json:"offer_id"`
	Merchant          string     `json:"merchant"`
	Category          string     `json:"category"`
	Bank              string     `json:"bank"`
	CardName          string     `json:"card_name"`
	DiscountType      string     `json:"discount_type,omitempty"`
	DiscountValue     float64    `json:"discount_value,omitempty"`
	MaxDiscount       *float64   `json:"max_discount,omitempty"`
	TrustLevel        string     `json:"trust_level,omitempty"`
	PromoCode         string     `json:"promo_code,omitempty"`
	Description       string     `json:"description,omitempty"`
	ValidTo           *time.Time `json:"valid_to,omitempty"`
	MatchScore        int        `json:"matchScore"`
	CalculatedSavings float64    `json:"calculated_savings"`
	FinalAmount       float64    `json:"final_amount"`
	EfficiencyScore   float64    `json:"efficiency_score"`
}

// MarshalJSON implements json.Marshaler.
func (m Matched) MarshalJSON() ([]byte, error) {
	return json.Marshal(candidateJSON{
		Kind:              "matched",
		MatchType:         m.Stage,
		ID:                m.Offer.ID,
		OfferID:           m.Offer.ID,
		Merchant:          m.Offer.Merchant,
		Category:          m.Offer.Category,
		Bank:              m.Offer.Bank,
		CardName:          m.Offer.CardName,
		DiscountType:      m.Offer.DiscountType,
		DiscountValue:     m.Offer.DiscountValue,
		MaxDiscount:       m.Offer.MaxDiscount,
		TrustLevel:        m.Offer.TrustLevel,
		PromoCode:         m.Offer.PromoCode,
		Description:       m.Offer.Description,
		ValidTo:           m.Offer.ValidTo,
		MatchScore:        m.MatchScore,
		CalculatedSavings: m.CalculatedSavings,
		FinalAmount:       m.FinalAmount,
		EfficiencyScore:   m.EfficiencyScore,
	})
}

// MarshalJSON implements json.Marshaler.
func (s Synthesized) MarshalJSON() ([]byte, error) {
	validTo := synthesizedValidTo
	return json.Marshal(candidateJSON{
		Kind:              "synthesized",
		MatchType:         StageSynthesized,
		ID:                synthesizedID,
		OfferID:           synthesizedOfferID,
		Merchant:          s.Merchant,
		Category:          s.Category,
		Bank:              s.Card.Bank,
		CardName:          s.Card.CardName,
		Description:       fmt.Sprintf("Standard 1%% reward points on %s", s.Card.CardName),
		ValidTo:           &validTo,
		CalculatedSavings: s.CalculatedSavings,
		FinalAmount:       s.FinalAmount,
		EfficiencyScore:   synthesizedEfficiency,
	})
}

// OfferID returns the offer id a candidate reports on the wire.
func OfferID(c Candidate) string {
	switch v := c.(type) {
	case Matched:
		return v.Offer.ID
	case Synthesized:
		return synthesizedOfferID
	default:
		return ""
	}
}

// CardName returns the card a candidate should be paid with, or "" when the
// offer accepts any card.
func CardName(c Candidate) string {
	switch v := c.(type) {
	case Matched:
		if v.Offer.AnyCard() {
			return ""
		}
		return v.Offer.CardName
	case Synthesized:
		return v.Card.CardName
	default:
		return ""
	}
}
