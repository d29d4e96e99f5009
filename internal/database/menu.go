package database

import (
	"context"
	"fmt"
	"time"

	"foodtruck/internal/models"
)

// InsertMenuItem persists a catalog entry under the index already assigned by
// the ledger (item.ID is explicit, never AUTOINCREMENT).
func (db *DB) InsertMenuItem(ctx context.Context, item *models.MenuItem) error {
	query := `INSERT INTO menu_items (id, name, price, inventory, item_type, is_available, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		item.ID,
		item.Name,
		item.Price,
		item.Inventory,
		int64(item.ItemType),
		item.IsAvailable,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert menu item: %w", err)
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

func (db *DB) UpdateMenuItemInventory(ctx context.Context, itemID, inventory int64) error {
	query := `UPDATE menu_items SET inventory = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, inventory, time.Now(), itemID)
	if err != nil {
		return fmt.Errorf("failed to update inventory: %w", err)
	}
	return nil
}

func (db *DB) UpdateMenuItemAvailability(ctx context.Context, itemID int64, available bool) error {
	query := `UPDATE menu_items SET is_available = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, available, time.Now(), itemID)
	if err != nil {
		return fmt.Errorf("failed to update availability: %w", err)
	}
	return nil
}

// GetMenuItems returns the full catalog in index order, including unavailable
// and out-of-stock entries.
func (db *DB) GetMenuItems(ctx context.Context) ([]models.MenuItem, error) {
	query := `SELECT id, name, price, inventory, item_type, is_available, created_at, updated_at
              FROM menu_items ORDER BY id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get menu items: %w", err)
	}
	defer rows.Close()

	var items []models.MenuItem
	for rows.Next() {
		var item models.MenuItem
		var itemType int64
		if err := rows.Scan(&item.ID, &item.Name, &item.Price, &item.Inventory, &itemType, &item.IsAvailable, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		item.ItemType = models.ItemType(itemType)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (db *DB) CountMenuItems(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM menu_items`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count menu items: %w", err)
	}
	return count, nil
}
