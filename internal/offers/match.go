package offers

import (
	"strings"
	"unicode"

	"payment-advisor-api/internal/models"
)

// Match score weights. A merchant match always outranks a category match,
// which always outranks a generic match.
const (
	ScoreMerchant     = 100
	ScoreCategory     = 50
	ScoreGeneric      = 10
	ScoreCardOwned    = 5
	AcceptanceMinimum = ScoreCategory
)

// categoryAliases lists category pairs that count as the same category for
// matching. Each pair applies in both directions.
var categoryAliases = [][2]string{
	{"dining", "food"},
	{"bill", "utility"},
	{"shopping", "shop"},
}

// genericMerchants are offer merchant tokens that stand for "any merchant".
var genericMerchants = []string{"all", "any", "general", "partner"}

// crossContains reports whether either string contains the other. Empty
// strings never match.
func crossContains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// MerchantMatch reports whether the purchase merchant and the offer merchant
// refer to the same merchant. An offer merchant that is only a wildcard token
// ("All", "Any") never matches here; named merchants such as "Partner
// Restaurants" do.
func MerchantMatch(input, offer string) bool {
	input = normalize(input)
	offer = normalize(offer)
	if isWildcardMerchant(offer) {
		return false
	}
	return crossContains(input, offer)
}

// CategoryMatch reports whether the purchase category and the offer category
// match, directly or through an alias pair.
func CategoryMatch(input, offer string) bool {
	input = normalize(input)
	offer = normalize(offer)
	if input == "" || offer == "" {
		return false
	}
	if crossContains(input, offer) {
		return true
	}
	for _, pair := range categoryAliases {
		a, b := pair[0], pair[1]
		if strings.Contains(input, a) && (strings.Contains(offer, a) || strings.Contains(offer, b)) {
			return true
		}
		if strings.Contains(input, b) && (strings.Contains(offer, b) || strings.Contains(offer, a)) {
			return true
		}
	}
	return false
}

func isWildcardMerchant(offer string) bool {
	for _, token := range genericMerchants {
		if offer == token {
			return true
		}
	}
	return false
}

// isGenericMerchant matches whole words so that "All Spends" is generic but
// "Smallworld" is not.
func isGenericMerchant(offer string) bool {
	words := strings.FieldsFunc(offer, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		for _, token := range genericMerchants {
			if word == token {
				return true
			}
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MatchScore scores an offer against a purchase context.
func MatchScore(offer models.Offer, merchant, category string, ownedCards []string) int {
	score := 0
	if MerchantMatch(merchant, offer.Merchant) {
		score += ScoreMerchant
	}
	categoryMatched := CategoryMatch(category, offer.Category)
	if categoryMatched {
		score += ScoreCategory
	}
	if categoryMatched && isGenericMerchant(normalize(offer.Merchant)) {
		score += ScoreGeneric
	}
	if !offer.AnyCard() && ownsCard(ownedCards, offer.CardName) {
		score += ScoreCardOwned
	}
	return score
}

func ownsCard(owned []string, name string) bool {
	for _, card := range owned {
		if strings.EqualFold(strings.TrimSpace(card), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}
