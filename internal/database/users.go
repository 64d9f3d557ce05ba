package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"payment-advisor-api/internal/models"
)

// AddCard stores a card for its user, filling in a missing ID and creation
// time.
func (db *DB) AddCard(ctx context.Context, card models.Card) (models.Card, error) {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx, `INSERT INTO user_cards (
		id, user_id, bank, card_name, card_type, network, last_digits, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		card.ID,
		card.UserID,
		card.Bank,
		card.CardName,
		card.CardType,
		card.Network,
		card.LastDigits,
		formatTime(card.CreatedAt),
	)
	if err != nil {
		return models.Card{}, fmt.Errorf("failed to insert card: %w", err)
	}
	return card, nil
}

// GetUserCards returns a user's cards, oldest first.
func (db *DB) GetUserCards(ctx context.Context, userID string) ([]models.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, user_id, bank, card_name,
		card_type, network, last_digits, created_at
		FROM user_cards
		WHERE user_id = ?
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	cards := []models.Card{}
	for rows.Next() {
		var card models.Card
		var createdAt string
		if err := rows.Scan(
			&card.ID,
			&card.UserID,
			&card.Bank,
			&card.CardName,
			&card.CardType,
			&card.Network,
			&card.LastDigits,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		if card.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse card created_at: %w", err)
		}
		cards = append(cards, card)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cards: %w", err)
	}
	return cards, nil
}

// UpsertGoal sets a user's target for a month.
func (db *DB) UpsertGoal(ctx context.Context, goal models.Goal) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO goals (user_id, month, target_amount)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, month) DO UPDATE SET target_amount = excluded.target_amount`,
		goal.UserID, goal.Month, goal.TargetAmount)
	if err != nil {
		return fmt.Errorf("failed to upsert goal: %w", err)
	}
	return nil
}

// GetGoal returns the goal for a month, or nil when none is set.
func (db *DB) GetGoal(ctx context.Context, userID, month string) (*models.Goal, error) {
	goal := models.Goal{UserID: userID, Month: month}
	err := db.conn.QueryRowContext(ctx,
		`SELECT target_amount FROM goals WHERE user_id = ? AND month = ?`,
		userID, month,
	).Scan(&goal.TargetAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query goal: %w", err)
	}
	return &goal, nil
}

// UpsertProfile stores a user's declared income range and occupation.
func (db *DB) UpsertProfile(ctx context.Context, profile models.UserProfile) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO user_profiles (user_id, income_range, occupation)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			income_range = excluded.income_range,
			occupation = excluded.occupation`,
		profile.UserID, profile.IncomeRange, profile.Occupation)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// GetUserProfile returns the profile, or nil when the user never set one.
func (db *DB) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	profile := models.UserProfile{UserID: userID}
	err := db.conn.QueryRowContext(ctx,
		`SELECT income_range, occupation FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&profile.IncomeRange, &profile.Occupation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return &profile, nil
}
