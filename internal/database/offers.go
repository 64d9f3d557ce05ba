package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"payment-advisor-api/internal/models"
)

const anyBankClause = `(TRIM(bank) = '' OR LOWER(TRIM(bank)) = 'any')`
const anyCardClause = `(TRIM(card_name) = '' OR LOWER(TRIM(card_name)) = 'any')`

// UpsertOffer creates or updates an offer. An empty ID is replaced by a new
// one, which is returned.
func (db *DB) UpsertOffer(ctx context.Context, offer models.Offer) (string, error) {
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}

	var validTo sql.NullString
	if offer.ValidTo != nil {
		validTo = sql.NullString{String: formatTime(*offer.ValidTo), Valid: true}
	}
	var maxDiscount sql.NullFloat64
	if offer.MaxDiscount != nil {
		maxDiscount = sql.NullFloat64{Float64: *offer.MaxDiscount, Valid: true}
	}

	query := `INSERT INTO offers (
		id, merchant, category, bank, card_name, min_amount, discount_type,
		discount_value, max_discount, trust_level, promo_code, description,
		valid_from, valid_to
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		merchant = excluded.merchant,
		category = excluded.category,
		bank = excluded.bank,
		card_name = excluded.card_name,
		min_amount = excluded.min_amount,
		discount_type = excluded.discount_type,
		discount_value = excluded.discount_value,
		max_discount = excluded.max_discount,
		trust_level = excluded.trust_level,
		promo_code = excluded.promo_code,
		description = excluded.description,
		valid_from = excluded.valid_from,
		valid_to = excluded.valid_to`

	_, err := db.conn.ExecContext(ctx, query,
		offer.ID,
		offer.Merchant,
		offer.Category,
		offer.Bank,
		offer.CardName,
		offer.MinAmount,
		offer.DiscountType,
		offer.DiscountValue,
		maxDiscount,
		offer.TrustLevel,
		offer.PromoCode,
		offer.Description,
		formatTime(offer.ValidFrom),
		validTo,
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert offer: %w", err)
	}
	return offer.ID, nil
}

// GetOffers returns the offers matching filter, ordered by id.
func (db *DB) GetOffers(ctx context.Context, filter models.OfferFilter) ([]models.Offer, error) {
	query, args, ok := buildOfferQuery(filter)
	if !ok {
		return []models.Offer{}, nil
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query offers: %w", err)
	}
	defer rows.Close()

	offers := []models.Offer{}
	for rows.Next() {
		var (
			offer        models.Offer
			maxDiscount  sql.NullFloat64
			validFromStr string
			validTo      sql.NullString
		)
		err := rows.Scan(
			&offer.ID,
			&offer.Merchant,
			&offer.Category,
			&offer.Bank,
			&offer.CardName,
			&offer.MinAmount,
			&offer.DiscountType,
			&offer.DiscountValue,
			&maxDiscount,
			&offer.TrustLevel,
			&offer.PromoCode,
			&offer.Description,
			&validFromStr,
			&validTo,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}

		if maxDiscount.Valid {
			v := maxDiscount.Float64
			offer.MaxDiscount = &v
		}
		offer.ValidFrom, err = parseTime(validFromStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse valid_from: %w", err)
		}
		if validTo.Valid {
			t, err := parseTime(validTo.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse valid_to: %w", err)
			}
			offer.ValidTo = &t
		}

		offers = append(offers, offer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offers: %w", err)
	}
	return offers, nil
}

// buildOfferQuery translates filter into SQL. It reports false when the
// filter cannot match anything.
func buildOfferQuery(filter models.OfferFilter) (string, []any, bool) {
	var (
		where []string
		args  []any
	)

	where = append(where, "min_amount <= ?")
	args = append(args, filter.Amount)

	if !filter.ActiveAt.IsZero() {
		at := formatTime(filter.ActiveAt)
		where = append(where, "valid_from <= ?", "(valid_to IS NULL OR valid_to >= ?)")
		args = append(args, at, at)
	}

	if len(filter.BanksAllowed) > 0 || filter.IncludeAnyBank {
		var terms []string
		if len(filter.BanksAllowed) > 0 {
			terms = append(terms, "LOWER(TRIM(bank)) IN ("+placeholders(len(filter.BanksAllowed))+")")
			for _, b := range filter.BanksAllowed {
				args = append(args, strings.ToLower(strings.TrimSpace(b)))
			}
		}
		if filter.IncludeAnyBank {
			terms = append(terms, anyBankClause)
		}
		where = append(where, "("+strings.Join(terms, " OR ")+")")
	}

	if filter.AnyCardOnly {
		where = append(where, anyCardClause)
	}

	if filter.MatchMerchantOrCategory {
		var terms []string
		if m := strings.TrimSpace(filter.Merchant); m != "" {
			terms = append(terms, "LOWER(merchant) = ?")
			args = append(args, strings.ToLower(m))
		}
		if c := strings.TrimSpace(filter.Category); c != "" {
			terms = append(terms, "LOWER(category) = ?")
			args = append(args, strings.ToLower(c))
		}
		if len(terms) == 0 {
			return "", nil, false
		}
		where = append(where, "("+strings.Join(terms, " OR ")+")")
	}

	query := `SELECT id, merchant, category, bank, card_name, min_amount,
		discount_type, discount_value, max_discount, trust_level, promo_code,
		description, valid_from, valid_to
		FROM offers
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id`
	return query, args, true
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
