package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"foodtruck/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Статусы заказа в журнале.
const (
	OrderStatusPlaced    = "placed"
	OrderStatusFulfilled = "fulfilled"
)

// SheetsService ведет журнал заказов в Google-таблице. Лист Orders хранит по
// строке на заказ; колонка A содержит числовой ID заказа.
type SheetsService struct {
	service       *sheets.Service
	ordersSheetID string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

func NewSheetsService(credentialsFile, ordersSheetID string) (*SheetsService, error) {
	ctx := context.Background()

	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	// Создаем JWT конфигурацию
	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := config.Client(ctx)

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	service := &SheetsService{
		service:       srv,
		ordersSheetID: ordersSheetID,
		rowCache:      make(map[int64]int),
	}

	// Warm up cache in background
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		service.WarmUpCache(ctx)
	}()

	// Periodic cache refresh every 1 hour
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			service.WarmUpCache(ctx)
			cancel()
		}
	}()

	return service, nil
}

// TestConnection проверяет подключение к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.ordersSheetID, "Orders!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail возвращает email сервисного аккаунта
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}

	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}

	return creds.ClientEmail, nil
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.ordersSheetID, "Orders!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		id, ok := parseRowID(row[0])
		if ok {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// parseRowID извлекает ID заказа из ячейки колонки A. Заголовок и прочие
// нечисловые значения отбрасываются; ноль — валидный ID.
func parseRowID(cell interface{}) (int64, bool) {
	switch v := cell.(type) {
	case float64:
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}

// AppendOrder добавляет новую строку заказа
func (s *SheetsService) AppendOrder(ctx context.Context, order *models.Order) error {
	rangeData := "Orders!A:A"
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{orderRowValues(order)},
	}

	_, err := s.service.Spreadsheets.Values.Append(s.ordersSheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()

	return err
}

// UpsertOrder updates an existing order row or appends a new one if not found.
func (s *SheetsService) UpsertOrder(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order is nil")
	}

	rowIdx, err := s.FindOrderRow(ctx, order.ID)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return s.AppendOrder(ctx, order)
		}
		return err
	}

	rangeData := fmt.Sprintf("Orders!A%d:G%d", rowIdx, rowIdx)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{orderRowValues(order)},
	}

	_, err = s.service.Spreadsheets.Values.Update(s.ordersSheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// UpdateOrderStatus updates status (and the updated-at column) for an order row.
func (s *SheetsService) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	rowIdx, err := s.FindOrderRow(ctx, orderID)
	if err != nil {
		return err
	}

	now := time.Now().Format("2006-01-02 15:04:05")

	statusRange := fmt.Sprintf("Orders!F%d:F%d", rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.ordersSheetID, statusRange, &sheets.ValueRange{
		Values: [][]interface{}{{status}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	updatedRange := fmt.Sprintf("Orders!G%d:G%d", rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.ordersSheetID, updatedRange, &sheets.ValueRange{
		Values: [][]interface{}{{now}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// FindOrderRow locates row index (1-based) for an order ID in column A with cache.
func (s *SheetsService) FindOrderRow(ctx context.Context, orderID int64) (int, error) {
	if orderID < 0 {
		return 0, fmt.Errorf("order id must be non-negative")
	}

	if row, ok := s.getCachedRow(orderID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.ordersSheetID, "Orders!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		id, ok := parseRowID(row[0])
		if !ok || id != orderID {
			continue
		}
		rowIdx := i + 1 // Values are zero-based; sheet rows are 1-based
		s.setCachedRow(orderID, rowIdx)
		return rowIdx, nil
	}

	return 0, errRowNotFound
}

var errRowNotFound = errors.New("order row not found")

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func orderStatus(order *models.Order) string {
	if order.Fulfilled {
		return OrderStatusFulfilled
	}
	return OrderStatusPlaced
}

// formatOrderLines сворачивает позиции заказа в одну ячейку вида "2 x #0; 1 x #3".
func formatOrderLines(order *models.Order) string {
	parts := make([]string, 0, len(order.Lines))
	for _, l := range order.Lines {
		parts = append(parts, fmt.Sprintf("%d x #%d", l.Quantity, l.ItemID))
	}
	return strings.Join(parts, "; ")
}

func orderRowValues(order *models.Order) []interface{} {
	return []interface{}{
		order.ID,
		order.Customer,
		formatOrderLines(order),
		order.TotalPrice,
		order.PlacedAt.Format("2006-01-02 15:04:05"),
		orderStatus(order),
		order.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

// ReplaceOrdersSheet полностью перезаписывает журнал заказов
func (s *SheetsService) ReplaceOrdersSheet(ctx context.Context, orders []models.Order) error {
	// Очищаем весь лист (кроме заголовков)
	clearRange := "Orders!A2:Z"
	clearReq := &sheets.ClearValuesRequest{}

	_, err := s.service.Spreadsheets.Values.Clear(s.ordersSheetID, clearRange, clearReq).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear orders sheet: %v", err)
	}

	var values [][]interface{}
	for i := range orders {
		values = append(values, orderRowValues(&orders[i]))
	}

	valueRange := &sheets.ValueRange{
		Values: values,
	}

	_, err = s.service.Spreadsheets.Values.Update(s.ordersSheetID, "Orders!A2", valueRange).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update orders sheet: %v", err)
	}

	// Re-populate cache
	s.cacheMu.Lock()
	s.rowCache = make(map[int64]int)
	for i, o := range orders {
		s.rowCache[o.ID] = i + 2 // +2 because data starts at row 2
	}
	s.cacheMu.Unlock()

	return nil
}
