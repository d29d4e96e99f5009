package export

import (
	"fmt"
	"io"
	"strings"

	"foodtruck/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	ordersSheet = "Заказы"
	menuSheet   = "Меню"

	statusFulfilled = "✅ выдан"
	statusPending   = "⏳ ожидает"
)

// Exporter renders the order book and catalog into an xlsx workbook.
type Exporter struct {
	logger zerolog.Logger
}

func NewExporter(logger *zerolog.Logger) *Exporter {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "export").Logger()
	}
	return &Exporter{logger: base}
}

// WriteOrdersReport пишет книгу с двумя листами: журнал заказов и каталог.
func (e *Exporter) WriteOrdersReport(w io.Writer, orders []models.Order, items []models.MenuItem) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(ordersSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	if err := e.writeOrders(f, orders, items); err != nil {
		return err
	}
	if err := e.writeMenu(f, items); err != nil {
		return err
	}

	_ = f.DeleteSheet("Sheet1")

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %v", err)
	}

	e.logger.Info().Int("orders", len(orders)).Int("items", len(items)).Msg("orders report written")
	return nil
}

func (e *Exporter) writeOrders(f *excelize.File, orders []models.Order, items []models.MenuItem) error {
	headers := []string{"ID", "Покупатель", "Позиции", "Сумма", "Оформлен", "Статус", "Обновлен"}
	if err := writeHeaderRow(f, ordersSheet, headers); err != nil {
		return err
	}

	fulfilledStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#C6EFCE"}, Pattern: 1},
	})
	pendingStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFEB9C"}, Pattern: 1},
	})

	for i, order := range orders {
		row := i + 2
		status := statusPending
		styleID := pendingStyle
		if order.Fulfilled {
			status = statusFulfilled
			styleID = fulfilledStyle
		}

		values := []interface{}{
			order.ID,
			order.Customer,
			formatOrderLines(order, items),
			order.TotalPrice,
			order.PlacedAt.Format("02.01.2006 15:04"),
			status,
			order.UpdatedAt.Format("02.01.2006 15:04"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(ordersSheet, cell, v)
		}

		statusCell, _ := excelize.CoordinatesToCellName(6, row)
		_ = f.SetCellStyle(ordersSheet, statusCell, statusCell, styleID)
	}

	_ = f.SetColWidth(ordersSheet, "A", "A", 8)
	_ = f.SetColWidth(ordersSheet, "B", "B", 45)
	_ = f.SetColWidth(ordersSheet, "C", "C", 40)
	_ = f.SetColWidth(ordersSheet, "D", "G", 18)
	return nil
}

func (e *Exporter) writeMenu(f *excelize.File, items []models.MenuItem) error {
	if _, err := f.NewSheet(menuSheet); err != nil {
		return fmt.Errorf("error creating sheet: %v", err)
	}

	headers := []string{"ID", "Название", "Цена", "Остаток", "Категория", "В продаже"}
	if err := writeHeaderRow(f, menuSheet, headers); err != nil {
		return err
	}

	for i, item := range items {
		row := i + 2
		values := []interface{}{
			item.ID,
			item.Name,
			item.Price,
			item.Inventory,
			item.ItemType.String(),
			boolToYesNo(item.IsAvailable),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(menuSheet, cell, v)
		}
	}

	_ = f.SetColWidth(menuSheet, "A", "A", 8)
	_ = f.SetColWidth(menuSheet, "B", "B", 25)
	_ = f.SetColWidth(menuSheet, "C", "F", 14)
	return nil
}

func writeHeaderRow(f *excelize.File, sheet string, headers []string) error {
	style, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
		_ = f.SetCellStyle(sheet, cell, cell, style)
	}
	return nil
}

// formatOrderLines разворачивает позиции заказа в читаемую строку с названиями
// из каталога; неизвестный индекс печатается как #N.
func formatOrderLines(order models.Order, items []models.MenuItem) string {
	parts := make([]string, 0, len(order.Lines))
	for _, l := range order.Lines {
		name := fmt.Sprintf("#%d", l.ItemID)
		if l.ItemID >= 0 && l.ItemID < int64(len(items)) {
			name = items[l.ItemID].Name
		}
		parts = append(parts, fmt.Sprintf("%d x %s", l.Quantity, name))
	}
	return strings.Join(parts, "; ")
}

func boolToYesNo(b bool) string {
	if b {
		return "Да"
	}
	return "Нет"
}
