package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"foodtruck/internal/database"
	"foodtruck/internal/models"

	"github.com/rs/zerolog"
)

// TransferFunc moves a payout to its recipient through an external payment
// rail. It runs inside the withdrawal transaction: returning an error leaves
// the treasury untouched.
type TransferFunc func(ctx context.Context, recipient string, amount int64) error

// Ledger is the order and inventory engine. It owns the catalog, the order
// log and the treasury balance, plus the owner address fixed at construction.
//
// Все мутации идут под одним write-lock на всё состояние; читатели никогда не
// видят частично применённый заказ. In-memory зеркало каталога и баланса
// обновляется только после коммита в хранилище.
type Ledger struct {
	mu         sync.RWMutex
	store      *database.DB
	owner      string
	items      []models.MenuItem // index == item id
	orderCount int64
	balance    int64
	transfer   TransferFunc
	logger     zerolog.Logger
}

func New(store *database.DB, owner string, transfer TransferFunc, logger *zerolog.Logger) (*Ledger, error) {
	owner = strings.ToLower(strings.TrimSpace(owner))
	if owner == "" {
		return nil, errors.New("owner address is required")
	}

	ctx := context.Background()

	items, err := store.GetMenuItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	for i, item := range items {
		if item.ID != int64(i) {
			return nil, fmt.Errorf("catalog index %d holds item id %d; store is corrupt", i, item.ID)
		}
	}

	orderCount, err := store.CountOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load order count: %w", err)
	}

	balance, err := store.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}

	var ledgerLogger zerolog.Logger
	if logger != nil {
		ledgerLogger = logger.With().Str("component", "ledger").Logger()
	}

	return &Ledger{
		store:      store,
		owner:      owner,
		items:      items,
		orderCount: orderCount,
		balance:    balance,
		transfer:   transfer,
		logger:     ledgerLogger,
	}, nil
}

// Owner returns the address of the single privileged identity.
func (l *Ledger) Owner() string {
	return l.owner
}

func (l *Ledger) isOwner(caller string) bool {
	return strings.EqualFold(strings.TrimSpace(caller), l.owner)
}

// AddMenuItem appends a catalog entry and returns its index. Owner only.
// Empty name, negative price and negative inventory are rejected.
func (l *Ledger) AddMenuItem(ctx context.Context, caller, name string, price, inventory int64, itemType models.ItemType) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOwner(caller) {
		return 0, ErrUnauthorized
	}
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("%w: empty item name", ErrInvalidArgument)
	}
	if price < 0 {
		return 0, fmt.Errorf("%w: negative price %d", ErrInvalidArgument, price)
	}
	if inventory < 0 {
		return 0, fmt.Errorf("%w: negative inventory %d", ErrInvalidArgument, inventory)
	}
	if !itemType.Valid() {
		return 0, fmt.Errorf("%w: unknown item type %d", ErrInvalidArgument, itemType)
	}

	item := models.MenuItem{
		ID:          int64(len(l.items)),
		Name:        name,
		Price:       price,
		Inventory:   inventory,
		ItemType:    itemType,
		IsAvailable: true,
	}
	if err := l.store.InsertMenuItem(ctx, &item); err != nil {
		return 0, err
	}
	l.items = append(l.items, item)

	l.logger.Info().Int64("item_id", item.ID).Str("name", name).Int64("price", price).Msg("menu item added")
	return item.ID, nil
}

// UpdateInventory sets the stock count of an item to an absolute value.
// Owner only.
func (l *Ledger) UpdateInventory(ctx context.Context, caller string, itemID, newInventory int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOwner(caller) {
		return ErrUnauthorized
	}
	if itemID < 0 || itemID >= int64(len(l.items)) {
		return fmt.Errorf("%w: item %d", ErrNotFound, itemID)
	}
	if newInventory < 0 {
		return fmt.Errorf("%w: negative inventory %d", ErrInvalidArgument, newInventory)
	}

	if err := l.store.UpdateMenuItemInventory(ctx, itemID, newInventory); err != nil {
		return err
	}
	l.items[itemID].Inventory = newInventory
	return nil
}

// SetItemAvailability toggles the manual availability flag, independent of
// the stock count. Owner only.
func (l *Ledger) SetItemAvailability(ctx context.Context, caller string, itemID int64, available bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOwner(caller) {
		return ErrUnauthorized
	}
	if itemID < 0 || itemID >= int64(len(l.items)) {
		return fmt.Errorf("%w: item %d", ErrNotFound, itemID)
	}

	if err := l.store.UpdateMenuItemAvailability(ctx, itemID, available); err != nil {
		return err
	}
	l.items[itemID].IsAvailable = available
	return nil
}

// MenuItems returns the full catalog in index order, including unavailable
// and out-of-stock entries. Filtering is the caller's business.
func (l *Ledger) MenuItems() []models.MenuItem {
	l.mu.RLock()
	defer l.mu.RUnlock()

	items := make([]models.MenuItem, len(l.items))
	copy(items, l.items)
	return items
}

// PlaceOrder accepts a paid order. Preconditions are checked in a fixed
// order; the first failure aborts the call with no effect:
//
//	shape -> existence -> positive quantities -> availability ->
//	aggregated inventory -> exact payment
//
// On success the order is recorded, inventory decremented and the treasury
// credited in one transaction. Payments are never refunded.
func (l *Ledger) PlaceOrder(ctx context.Context, customer string, itemIDs, quantities []int64, amountPaid int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if strings.TrimSpace(customer) == "" {
		return 0, fmt.Errorf("%w: empty customer address", ErrInvalidArgument)
	}
	if len(itemIDs) == 0 || len(itemIDs) != len(quantities) {
		return 0, fmt.Errorf("%w: %d item ids, %d quantities", ErrInvalidArgument, len(itemIDs), len(quantities))
	}
	for _, id := range itemIDs {
		if id < 0 || id >= int64(len(l.items)) {
			return 0, fmt.Errorf("%w: item %d", ErrNotFound, id)
		}
	}
	for k, qty := range quantities {
		if qty <= 0 {
			return 0, fmt.Errorf("%w: quantity %d for item %d", ErrInvalidArgument, qty, itemIDs[k])
		}
	}
	for _, id := range itemIDs {
		if !l.items[id].IsAvailable {
			return 0, fmt.Errorf("%w: item %d", ErrItemUnavailable, id)
		}
	}

	// Повторная позиция суммирует спрос и проверяется одним числом против
	// текущего остатка
	demand := make(map[int64]int64)
	for k, id := range itemIDs {
		demand[id] += quantities[k]
	}
	for _, id := range itemIDs {
		if qty, checked := demand[id]; checked && qty > l.items[id].Inventory {
			return 0, fmt.Errorf("%w: item %d needs %d, has %d", ErrInsufficientInventory, id, qty, l.items[id].Inventory)
		}
		delete(demand, id)
	}

	var total int64
	lines := make([]models.OrderLine, len(itemIDs))
	for k, id := range itemIDs {
		price := l.items[id].Price
		lines[k] = models.OrderLine{ItemID: id, Quantity: quantities[k], UnitPrice: price}
		total += price * quantities[k]
	}
	if total != amountPaid {
		return 0, fmt.Errorf("%w: order totals %d, paid %d", ErrPaymentMismatch, total, amountPaid)
	}

	order := models.Order{
		ID:         l.orderCount,
		Customer:   strings.ToLower(strings.TrimSpace(customer)),
		Lines:      lines,
		TotalPrice: total,
		PlacedAt:   time.Now(),
	}
	if err := l.store.ApplyOrder(ctx, &order); err != nil {
		return 0, err
	}

	for _, line := range lines {
		l.items[line.ItemID].Inventory -= line.Quantity
	}
	l.orderCount++
	l.balance += total

	l.logger.Info().
		Int64("order_id", order.ID).
		Str("customer", order.Customer).
		Int64("total", total).
		Int("lines", len(lines)).
		Msg("order placed")
	return order.ID, nil
}

// OrderCount returns the number of orders ever placed. Order ids are dense:
// every id in [0, OrderCount) is defined.
func (l *Ledger) OrderCount() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.orderCount
}

// Order returns the full record of one order.
func (l *Ledger) Order(ctx context.Context, orderID int64) (*models.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if orderID < 0 || orderID >= l.orderCount {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	return l.store.GetOrder(ctx, orderID)
}

// Orders returns the whole order log. Owner only.
func (l *Ledger) Orders(ctx context.Context, caller string) ([]models.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.isOwner(caller) {
		return nil, ErrUnauthorized
	}
	return l.store.GetOrders(ctx)
}

// FulfillOrder marks an order fulfilled. Owner only. Re-fulfilling an
// already-fulfilled order is a no-op, so a UI double-submit never errors.
func (l *Ledger) FulfillOrder(ctx context.Context, caller string, orderID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOwner(caller) {
		return ErrUnauthorized
	}
	if orderID < 0 || orderID >= l.orderCount {
		return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}

	order, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Fulfilled {
		return nil
	}

	if err := l.store.MarkOrderFulfilled(ctx, orderID); err != nil {
		return err
	}

	l.logger.Info().Int64("order_id", orderID).Msg("order fulfilled")
	return nil
}

// Withdraw drains the whole treasury balance to the owner address and
// returns the amount moved. Owner only. A failed transfer leaves the balance
// exactly as it was.
func (l *Ledger) Withdraw(ctx context.Context, caller string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOwner(caller) {
		return 0, ErrUnauthorized
	}

	amount := l.balance
	if amount == 0 {
		return 0, nil
	}

	payout := models.Payout{Recipient: l.owner, Amount: amount}
	var transferErr error
	err := l.store.RecordPayout(ctx, &payout, func(ctx context.Context) error {
		if l.transfer == nil {
			return nil
		}
		if err := l.transfer(ctx, l.owner, amount); err != nil {
			transferErr = err
			return err
		}
		return nil
	})
	if transferErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, transferErr)
	}
	if err != nil {
		return 0, err
	}

	l.balance = 0
	l.logger.Info().Int64("amount", amount).Str("recipient", l.owner).Msg("treasury withdrawn")
	return amount, nil
}

// Balance returns the current withdrawable treasury balance.
func (l *Ledger) Balance() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance
}

// SeedMenu applies the configured starting catalog to an empty ledger. A
// non-empty catalog is left untouched, so restarts never duplicate entries.
func (l *Ledger) SeedMenu(ctx context.Context, items []models.MenuItem) error {
	if len(l.MenuItems()) > 0 {
		return nil
	}

	for _, item := range items {
		id, err := l.AddMenuItem(ctx, l.owner, item.Name, item.Price, item.Inventory, item.ItemType)
		if err != nil {
			return fmt.Errorf("seed item '%s': %w", item.Name, err)
		}
		if !item.IsAvailable {
			if err := l.SetItemAvailability(ctx, l.owner, id, false); err != nil {
				return fmt.Errorf("seed item '%s': %w", item.Name, err)
			}
		}
	}

	l.logger.Info().Int("count", len(items)).Msg("catalog seeded")
	return nil
}
