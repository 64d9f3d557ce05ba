package offers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"payment-advisor-api/internal/models"
)

func TestMatchScore_Fixtures(t *testing.T) {
	tests := []struct {
		name     string
		merchant string
		category string
		owned    []string
		offer    models.Offer
		want     int
	}{
		{
			name:     "merchant and category",
			merchant: "Amazon",
			category: "Shopping",
			offer:    models.Offer{Merchant: "Amazon", Category: "Shopping"},
			want:     150,
		},
		{
			name:     "merchant contained in input",
			merchant: "Amazon India",
			category: "Electronics",
			offer:    models.Offer{Merchant: "amazon", Category: "Shopping"},
			want:     100,
		},
		{
			name:     "input contained in offer merchant",
			merchant: "uber",
			category: "Travel",
			offer:    models.Offer{Merchant: "Uber Rides", Category: "Travel"},
			want:     150,
		},
		{
			name:     "dining to food alias",
			merchant: "Zomato",
			category: "Dining",
			offer:    models.Offer{Merchant: "Zomato", Category: "Food"},
			want:     150,
		},
		{
			name:     "food to dining alias",
			merchant: "Swiggy",
			category: "Food delivery",
			offer:    models.Offer{Merchant: "Zomato", Category: "Dining"},
			want:     50,
		},
		{
			name:     "bill to utility alias with generic merchant",
			merchant: "BESCOM",
			category: "Electricity Bill",
			offer:    models.Offer{Merchant: "Partner Merchants", Category: "Utility Payments"},
			want:     60,
		},
		{
			name:     "shop alias",
			merchant: "Local Store",
			category: "Shop",
			offer:    models.Offer{Merchant: "General", Category: "Shopping"},
			want:     60,
		},
		{
			name:     "generic merchant without category match",
			merchant: "Amazon",
			category: "Travel",
			offer:    models.Offer{Merchant: "All", Category: "Shopping"},
			want:     0,
		},
		{
			name:     "generic merchant never matches as merchant",
			merchant: "All",
			category: "Travel",
			offer:    models.Offer{Merchant: "All", Category: "Shopping"},
			want:     0,
		},
		{
			name:     "named merchant with generic word matches itself",
			merchant: "Partner Restaurants",
			category: "Restaurant Walk-in",
			offer:    models.Offer{Merchant: "Partner Restaurants"},
			want:     100,
		},
		{
			name:     "input contained in merchant with generic word",
			merchant: "Amazon",
			category: "Books",
			offer:    models.Offer{Merchant: "Amazon Partner Stores"},
			want:     100,
		},
		{
			name:     "named generic merchant with category match gets both",
			merchant: "Partner Restaurants",
			category: "Dining",
			offer:    models.Offer{Merchant: "Partner Restaurants", Category: "Dining"},
			want:     160,
		},
		{
			name:     "substring of a word is not generic",
			merchant: "Smallworld",
			category: "Books",
			offer:    models.Offer{Merchant: "Smallworld", Category: "Books"},
			want:     150,
		},
		{
			name:     "no match",
			merchant: "Uber",
			category: "Travel",
			offer:    models.Offer{Merchant: "Amazon", Category: "Shopping"},
			want:     0,
		},
		{
			name:     "empty input never matches",
			merchant: "",
			category: "",
			offer:    models.Offer{Merchant: "Amazon", Category: "Shopping"},
			want:     0,
		},
		{
			name:     "owned card adds tie-breaker",
			merchant: "Amazon",
			category: "Shopping",
			owned:    []string{"regalia"},
			offer:    models.Offer{Merchant: "Amazon", Category: "Shopping", CardName: "Regalia"},
			want:     155,
		},
		{
			name:     "unowned card adds nothing",
			merchant: "Amazon",
			category: "Shopping",
			owned:    []string{"Coral"},
			offer:    models.Offer{Merchant: "Amazon", Category: "Shopping", CardName: "Regalia"},
			want:     150,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchScore(tt.offer, tt.merchant, tt.category, tt.owned)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchScore_Ordering(t *testing.T) {
	merchantOnly := MatchScore(models.Offer{Merchant: "Amazon", Category: "Books"}, "Amazon", "Travel", nil)
	categoryAndGeneric := MatchScore(models.Offer{Merchant: "All", Category: "Travel"}, "Amazon", "Travel", []string{"x"})

	assert.Greater(t, merchantOnly, categoryAndGeneric)
	assert.GreaterOrEqual(t, categoryAndGeneric, AcceptanceMinimum)
}
