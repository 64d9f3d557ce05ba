package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"payment-advisor-api/internal/models"
)

// InsertTransactions inserts multiple transactions in a single transaction.
// Rows whose id already exists are skipped and not counted.
func (db *DB) InsertTransactions(ctx context.Context, transactions []models.Transaction) (int, error) {
	if len(transactions) == 0 {
		return 0, nil
	}

	inserted := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO transactions (
			id, user_id, amount, type, category, merchant, card_name, text,
			ignored_offer, missed_saving_amount, recommended_card, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, txn := range transactions {
			if txn.ID == "" {
				txn.ID = uuid.NewString()
			}
			res, err := stmt.ExecContext(ctx,
				txn.ID,
				txn.UserID,
				txn.Amount,
				txn.Type,
				txn.Category,
				txn.Merchant,
				txn.CardName,
				txn.Text,
				txn.IgnoredOffer,
				txn.MissedSavingAmount,
				txn.RecommendedCard,
				formatTime(txn.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetMonthAggregate sums a user's debited spend for month (YYYY-MM), in
// total and per category.
func (db *DB) GetMonthAggregate(ctx context.Context, userID, month string) (*models.MonthAggregate, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT category, SUM(amount), COUNT(*)
		FROM transactions
		WHERE user_id = ? AND type = ? AND substr(created_at, 1, 7) = ?
		GROUP BY category`,
		userID, models.TxnDebited, month)
	if err != nil {
		return nil, fmt.Errorf("failed to query month aggregate: %w", err)
	}
	defer rows.Close()

	agg := &models.MonthAggregate{
		UserID:     userID,
		Month:      month,
		ByCategory: make(map[string]float64),
	}
	for rows.Next() {
		var category string
		var total float64
		var count int
		if err := rows.Scan(&category, &total, &count); err != nil {
			return nil, fmt.Errorf("failed to scan month aggregate: %w", err)
		}
		agg.ByCategory[category] += total
		agg.TotalSpent += total
		agg.TransactionCount += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating month aggregate: %w", err)
	}
	return agg, nil
}

// GetTransactionDays counts the distinct days of month on which the user
// spent money. Credits do not count as activity.
func (db *DB) GetTransactionDays(ctx context.Context, userID, month string) (int, error) {
	var days int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(DISTINCT substr(created_at, 1, 10))
		FROM transactions
		WHERE user_id = ? AND type = ? AND substr(created_at, 1, 7) = ?`,
		userID, models.TxnDebited, month,
	).Scan(&days)
	if err != nil {
		return 0, fmt.Errorf("failed to count transaction days: %w", err)
	}
	return days, nil
}
