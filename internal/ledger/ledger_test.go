package ledger

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"foodtruck/internal/database"
	"foodtruck/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOwner    = "0x417e6d64f28bd6fa5d00d757976c9bcf87d0cc3e"
	testCustomer = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return newTestLedgerWithTransfer(t, nil)
}

func newTestLedgerWithTransfer(t *testing.T, transfer TransferFunc) *Ledger {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "ledger.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l, err := New(db, testOwner, transfer, &logger)
	require.NoError(t, err)
	return l
}

func addBurger(t *testing.T, l *Ledger, inventory int64) int64 {
	t.Helper()
	id, err := l.AddMenuItem(context.Background(), testOwner, "Burger", 10, inventory, models.ItemTypeFood)
	require.NoError(t, err)
	return id
}

// snapshot captures everything an operation could mutate.
type snapshot struct {
	items   []models.MenuItem
	count   int64
	balance int64
}

func takeSnapshot(l *Ledger) snapshot {
	return snapshot{items: l.MenuItems(), count: l.OrderCount(), balance: l.Balance()}
}

func TestAddMenuItem(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	id, err := l.AddMenuItem(ctx, testOwner, "Cheeseburger", 10, 20, models.ItemTypeFood)
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)

	id, err = l.AddMenuItem(ctx, testOwner, "Soda", 2, 50, models.ItemTypeDrink)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	items := l.MenuItems()
	require.Len(t, items, 2)
	assert.Equal(t, "Cheeseburger", items[0].Name)
	assert.True(t, items[0].IsAvailable)
	assert.Equal(t, models.ItemTypeDrink, items[1].ItemType)
}

func TestAddMenuItemValidation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddMenuItem(ctx, testOwner, "  ", 10, 20, models.ItemTypeFood)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = l.AddMenuItem(ctx, testOwner, "Burger", -1, 20, models.ItemTypeFood)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = l.AddMenuItem(ctx, testOwner, "Burger", 10, -5, models.ItemTypeFood)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = l.AddMenuItem(ctx, testOwner, "Burger", 10, 20, models.ItemType(9))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// нулевая цена допустима
	_, err = l.AddMenuItem(ctx, testOwner, "Tap Water", 0, 100, models.ItemTypeDrink)
	assert.NoError(t, err)
}

func TestOwnerOnlyOperations(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 5)

	_, err := l.AddMenuItem(ctx, testCustomer, "Pizza", 8, 15, models.ItemTypeFood)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// отказ не должен трогать остатки
	err = l.UpdateInventory(ctx, testCustomer, 0, 100)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int64(5), l.MenuItems()[0].Inventory)

	err = l.SetItemAvailability(ctx, testCustomer, 0, false)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, l.MenuItems()[0].IsAvailable)

	err = l.FulfillOrder(ctx, testCustomer, 0)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = l.Withdraw(ctx, testCustomer)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = l.Orders(ctx, testCustomer)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestOwnerAddressComparisonIsCaseInsensitive(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.AddMenuItem(context.Background(), "0x417E6D64F28bd6FA5D00D757976c9bCF87D0cC3E", "Burger", 10, 5, models.ItemTypeFood)
	assert.NoError(t, err)
}

func TestUpdateInventoryIsAbsolute(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 5)

	require.NoError(t, l.UpdateInventory(ctx, testOwner, 0, 2))
	assert.Equal(t, int64(2), l.MenuItems()[0].Inventory)

	require.NoError(t, l.UpdateInventory(ctx, testOwner, 0, 100))
	assert.Equal(t, int64(100), l.MenuItems()[0].Inventory)

	assert.ErrorIs(t, l.UpdateInventory(ctx, testOwner, 0, -1), ErrInvalidArgument)
	assert.ErrorIs(t, l.UpdateInventory(ctx, testOwner, 7, 1), ErrNotFound)
}

func TestAvailabilityIndependentOfInventory(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 5)

	// флаг не сбрасывается и не выставляется автоматически
	require.NoError(t, l.SetItemAvailability(ctx, testOwner, 0, false))
	require.NoError(t, l.UpdateInventory(ctx, testOwner, 0, 100))
	assert.False(t, l.MenuItems()[0].IsAvailable)

	require.NoError(t, l.SetItemAvailability(ctx, testOwner, 0, true))
	require.NoError(t, l.UpdateInventory(ctx, testOwner, 0, 0))
	assert.True(t, l.MenuItems()[0].IsAvailable)
}

func TestPlaceOrderDecrementsInventoryAndRecords(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 5)

	orderID, err := l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{2}, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), orderID)

	assert.Equal(t, int64(3), l.MenuItems()[0].Inventory)
	assert.Equal(t, int64(1), l.OrderCount())
	assert.Equal(t, int64(20), l.Balance())

	order, err := l.Order(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, testCustomer, order.Customer)
	assert.Equal(t, int64(20), order.TotalPrice)
	assert.False(t, order.Fulfilled)
	assert.False(t, order.PlacedAt.IsZero())
	assert.Equal(t, []int64{0}, order.ItemIDs())
	assert.Equal(t, []int64{2}, order.Quantities())
}

func TestPlaceOrderPaymentMismatchLeavesStateUntouched(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 5)

	_, err := l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{2}, 20)
	require.NoError(t, err)

	before := takeSnapshot(l)

	// недоплата
	_, err = l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{2}, 19)
	assert.ErrorIs(t, err, ErrPaymentMismatch)
	assert.Equal(t, before, takeSnapshot(l))

	// переплата тоже отклоняется
	_, err = l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{2}, 21)
	assert.ErrorIs(t, err, ErrPaymentMismatch)
	assert.Equal(t, before, takeSnapshot(l))
}

func TestPlaceOrderInsufficientInventoryRejectsWholeOrder(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 1)

	before := takeSnapshot(l)

	_, err := l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{2}, 20)
	assert.ErrorIs(t, err, ErrInsufficientInventory)
	assert.Equal(t, before, takeSnapshot(l))
}

func TestPlaceOrderShapeValidation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 5)

	before := takeSnapshot(l)

	cases := []struct {
		name    string
		ids     []int64
		qtys    []int64
		paid    int64
		wantErr error
	}{
		{"empty", nil, nil, 0, ErrInvalidArgument},
		{"length mismatch", []int64{0}, []int64{1, 2}, 10, ErrInvalidArgument},
		{"zero quantity", []int64{0}, []int64{0}, 0, ErrInvalidArgument},
		{"negative quantity", []int64{0}, []int64{-1}, 0, ErrInvalidArgument},
		{"unknown item", []int64{3}, []int64{1}, 10, ErrNotFound},
		{"negative item", []int64{-1}, []int64{1}, 10, ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.PlaceOrder(ctx, testCustomer, tc.ids, tc.qtys, tc.paid)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, before, takeSnapshot(l))
		})
	}
}

func TestPlaceOrderUnavailableItem(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 5)
	require.NoError(t, l.SetItemAvailability(ctx, testOwner, 0, false))

	before := takeSnapshot(l)

	// остаток есть, но вручную снято с продажи
	_, err := l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{1}, 10)
	assert.ErrorIs(t, err, ErrItemUnavailable)
	assert.Equal(t, before, takeSnapshot(l))
}

func TestPlaceOrderDuplicateLinesAggregateDemand(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 5)

	// 3+3 против остатка 5: суммарный спрос проверяется один раз
	_, err := l.PlaceOrder(ctx, testCustomer, []int64{0, 0}, []int64{3, 3}, 60)
	assert.ErrorIs(t, err, ErrInsufficientInventory)
	assert.Equal(t, int64(5), l.MenuItems()[0].Inventory)

	// 2+3 проходит и списывается одним заказом
	orderID, err := l.PlaceOrder(ctx, testCustomer, []int64{0, 0}, []int64{2, 3}, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(0), l.MenuItems()[0].Inventory)

	order, err := l.Order(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, int64(50), order.TotalPrice)
}

func TestPlaceOrderMultipleItems(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 5)
	_, err := l.AddMenuItem(ctx, testOwner, "Soda", 2, 50, models.ItemTypeDrink)
	require.NoError(t, err)

	orderID, err := l.PlaceOrder(ctx, testCustomer, []int64{0, 1}, []int64{1, 3}, 16)
	require.NoError(t, err)

	order, err := l.Order(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(16), order.TotalPrice)
	assert.Equal(t, int64(4), l.MenuItems()[0].Inventory)
	assert.Equal(t, int64(47), l.MenuItems()[1].Inventory)
}

func TestOrderTotalFixedAtPlacement(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 5)

	orderID, err := l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{2}, 20)
	require.NoError(t, err)

	// дальнейшее изменение цены не трогает записанный заказ
	l.mu.Lock()
	l.items[0].Price = 99
	l.mu.Unlock()

	order, err := l.Order(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), order.TotalPrice)
	assert.Equal(t, int64(10), order.Lines[0].UnitPrice)
}

func TestMonotonicOrderIDs(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 100)

	const n = 5
	for i := int64(0); i < n; i++ {
		orderID, err := l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{1}, 10)
		require.NoError(t, err)
		assert.Equal(t, i, orderID)
	}

	assert.Equal(t, int64(n), l.OrderCount())
	for i := int64(0); i < n; i++ {
		_, err := l.Order(ctx, i)
		assert.NoError(t, err)
	}
	_, err := l.Order(ctx, n)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFulfillOrderMarksAndIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 5)

	orderID, err := l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{2}, 20)
	require.NoError(t, err)

	require.NoError(t, l.FulfillOrder(ctx, testOwner, orderID))

	order, err := l.Order(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, order.Fulfilled)

	// повторное исполнение — no-op без ошибки
	require.NoError(t, l.FulfillOrder(ctx, testOwner, orderID))

	order, err = l.Order(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, order.Fulfilled)

	assert.ErrorIs(t, l.FulfillOrder(ctx, testOwner, 42), ErrNotFound)
}

func TestWithdrawDrainsTreasuryToOwner(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 10)

	_, err := l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{2}, 20)
	require.NoError(t, err)
	_, err = l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{2}, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(40), l.Balance())

	_, err = l.Withdraw(ctx, testCustomer)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int64(40), l.Balance())

	amount, err := l.Withdraw(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(40), amount)
	assert.Equal(t, int64(0), l.Balance())

	// пустая казна — no-op
	amount, err = l.Withdraw(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), amount)
}

func TestWithdrawTransferFailureKeepsBalance(t *testing.T) {
	rejected := errors.New("recipient unavailable")
	l := newTestLedgerWithTransfer(t, func(ctx context.Context, recipient string, amount int64) error {
		return rejected
	})
	ctx := context.Background()
	addBurger(t, l, 10)

	_, err := l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{2}, 20)
	require.NoError(t, err)

	_, err = l.Withdraw(ctx, testOwner)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, int64(20), l.Balance())
}

func TestWithdrawTransferReceivesAmount(t *testing.T) {
	var gotRecipient string
	var gotAmount int64
	l := newTestLedgerWithTransfer(t, func(ctx context.Context, recipient string, amount int64) error {
		gotRecipient = recipient
		gotAmount = amount
		return nil
	})
	ctx := context.Background()
	addBurger(t, l, 10)

	_, err := l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{3}, 30)
	require.NoError(t, err)

	_, err = l.Withdraw(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, testOwner, gotRecipient)
	assert.Equal(t, int64(30), gotAmount)
}

func TestConcurrentPlaceOrder(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	addBurger(t, l, 1)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{1}, 10)
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientInventory)
		}
	}

	// при остатке 1 пройти должен ровно один заказ
	assert.Equal(t, 1, successCount)
	assert.Equal(t, int64(0), l.MenuItems()[0].Inventory)
	assert.Equal(t, int64(1), l.OrderCount())
	assert.Equal(t, int64(10), l.Balance())
}

func TestLedgerStateSurvivesRestart(t *testing.T) {
	logger := zerolog.New(io.Discard)
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	db, err := database.NewDB(dbPath, &logger)
	require.NoError(t, err)
	l, err := New(db, testOwner, nil, &logger)
	require.NoError(t, err)

	_, err = l.AddMenuItem(ctx, testOwner, "Burger", 10, 5, models.ItemTypeFood)
	require.NoError(t, err)
	_, err = l.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{2}, 20)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := database.NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db2.Close()

	restarted, err := New(db2, testOwner, nil, &logger)
	require.NoError(t, err)

	assert.Equal(t, int64(1), restarted.OrderCount())
	assert.Equal(t, int64(20), restarted.Balance())
	require.Len(t, restarted.MenuItems(), 1)
	assert.Equal(t, int64(3), restarted.MenuItems()[0].Inventory)

	// следующий заказ продолжает нумерацию
	orderID, err := restarted.PlaceOrder(ctx, testCustomer, []int64{0}, []int64{1}, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), orderID)
}

func TestSeedMenu(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	seed := []models.MenuItem{
		{Name: "Cheeseburger", Price: 10, Inventory: 20, ItemType: models.ItemTypeFood, IsAvailable: true},
		{Name: "Soda", Price: 2, Inventory: 50, ItemType: models.ItemTypeDrink, IsAvailable: true},
	}

	require.NoError(t, l.SeedMenu(ctx, seed))
	require.Len(t, l.MenuItems(), 2)

	// повторный запуск не дублирует каталог
	require.NoError(t, l.SeedMenu(ctx, seed))
	assert.Len(t, l.MenuItems(), 2)
}
