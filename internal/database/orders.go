package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"foodtruck/internal/models"
)

// ErrInventoryConflict is returned when a guarded inventory decrement matches
// no row. The ledger validates stock under its own lock before calling
// ApplyOrder, so hitting this means the store and the ledger disagree.
var ErrInventoryConflict = errors.New("inventory decrement conflict")

// ErrOrderNotFound is returned for reads of an order id that was never
// assigned.
var ErrOrderNotFound = errors.New("order not found")

// ApplyOrder commits an accepted order in a single transaction: decrements
// inventory per distinct item, appends the order with its lines and credits
// the treasury by the order total. Either everything is applied or nothing.
func (db *DB) ApplyOrder(ctx context.Context, order *models.Order) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// При повторении позиции в заказе спрос суммируется и списывается одним
	// декрементом
	demand := make(map[int64]int64)
	for _, line := range order.Lines {
		demand[line.ItemID] += line.Quantity
	}

	now := time.Now()
	for itemID, qty := range demand {
		res, err := tx.ExecContext(ctx,
			`UPDATE menu_items SET inventory = inventory - ?, updated_at = ? WHERE id = ? AND inventory >= ?`,
			qty, now, itemID, qty,
		)
		if err != nil {
			return fmt.Errorf("failed to decrement inventory for item %d: %w", itemID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("item %d: %w", itemID, ErrInventoryConflict)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, customer, total_price, placed_at, fulfilled, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?)`,
		order.ID, order.Customer, order.TotalPrice, order.PlacedAt, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for lineNo, line := range order.Lines {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_lines (order_id, line_no, item_id, quantity, unit_price) VALUES (?, ?, ?, ?, ?)`,
			order.ID, lineNo, line.ItemID, line.Quantity, line.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order line %d: %w", lineNo, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE treasury SET balance = balance + ?, updated_at = ? WHERE id = 1`,
		order.TotalPrice, now,
	)
	if err != nil {
		return fmt.Errorf("failed to credit treasury: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	order.UpdatedAt = now
	return nil
}

func (db *DB) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	query := `SELECT id, customer, total_price, placed_at, fulfilled, updated_at FROM orders WHERE id = ?`

	var order models.Order
	err := db.QueryRowContext(ctx, query, orderID).Scan(
		&order.ID,
		&order.Customer,
		&order.TotalPrice,
		&order.PlacedAt,
		&order.Fulfilled,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	lines, err := db.getOrderLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines

	return &order, nil
}

func (db *DB) getOrderLines(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	query := `SELECT item_id, quantity, unit_price FROM order_lines WHERE order_id = ? ORDER BY line_no`
	rows, err := db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order lines: %w", err)
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var line models.OrderLine
		if err := rows.Scan(&line.ItemID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

// GetOrders returns the full order log in placement order.
func (db *DB) GetOrders(ctx context.Context) ([]models.Order, error) {
	query := `SELECT id, customer, total_price, placed_at, fulfilled, updated_at FROM orders ORDER BY id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.Customer,
			&order.TotalPrice,
			&order.PlacedAt,
			&order.Fulfilled,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		lines, err := db.getOrderLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}

	return orders, nil
}

func (db *DB) CountOrders(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

func (db *DB) MarkOrderFulfilled(ctx context.Context, orderID int64) error {
	query := `UPDATE orders SET fulfilled = 1, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, time.Now(), orderID)
	if err != nil {
		return fmt.Errorf("failed to mark order fulfilled: %w", err)
	}
	return nil
}
