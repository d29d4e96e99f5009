package database

import (
	"context"
	"fmt"
	"time"

	"foodtruck/internal/models"
)

func (db *DB) GetBalance(ctx context.Context) (int64, error) {
	var balance int64
	err := db.QueryRowContext(ctx, `SELECT balance FROM treasury WHERE id = 1`).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// RecordPayout drains the treasury in a single transaction: the balance reset
// and the payout row commit together with the external transfer. A transfer
// error rolls everything back, leaving the balance untouched.
func (db *DB) RecordPayout(ctx context.Context, payout *models.Payout, transfer func(context.Context) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()

	res, err := tx.ExecContext(ctx,
		`UPDATE treasury SET balance = 0, updated_at = ? WHERE id = 1 AND balance = ?`,
		now, payout.Amount,
	)
	if err != nil {
		return fmt.Errorf("failed to reset balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("treasury balance changed under payout of %d", payout.Amount)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO payouts (recipient, amount, created_at) VALUES (?, ?, ?)`,
		payout.Recipient, payout.Amount, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payout: %w", err)
	}

	if transfer != nil {
		if err := transfer(ctx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payout: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		payout.ID = id
	}
	payout.CreatedAt = now
	return nil
}

func (db *DB) GetPayouts(ctx context.Context) ([]models.Payout, error) {
	query := `SELECT id, recipient, amount, created_at FROM payouts ORDER BY id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get payouts: %w", err)
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		var p models.Payout
		if err := rows.Scan(&p.ID, &p.Recipient, &p.Amount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}

	return payouts, rows.Err()
}
