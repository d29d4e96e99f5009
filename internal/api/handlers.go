package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"foodtruck/internal/events"
	"foodtruck/internal/ledger"
	"foodtruck/internal/metrics"
	"foodtruck/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type menuItemResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Inventory   int64  `json:"inventory"`
	ItemType    string `json:"item_type"`
	IsAvailable bool   `json:"is_available"`
}

type orderLineResponse struct {
	ItemID    int64 `json:"item_id"`
	Quantity  int64 `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

type orderResponse struct {
	ID         int64               `json:"id"`
	Customer   string              `json:"customer"`
	Lines      []orderLineResponse `json:"lines"`
	TotalPrice int64               `json:"total_price"`
	PlacedAt   time.Time           `json:"placed_at"`
	Fulfilled  bool                `json:"fulfilled"`
}

func toMenuItemResponse(item models.MenuItem) menuItemResponse {
	return menuItemResponse{
		ID:          item.ID,
		Name:        item.Name,
		Price:       item.Price,
		Inventory:   item.Inventory,
		ItemType:    item.ItemType.String(),
		IsAvailable: item.IsAvailable,
	}
}

func toOrderResponse(order *models.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, orderLineResponse{
			ItemID:    l.ItemID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return orderResponse{
		ID:         order.ID,
		Customer:   order.Customer,
		Lines:      lines,
		TotalPrice: order.TotalPrice,
		PlacedAt:   order.PlacedAt,
		Fulfilled:  order.Fulfilled,
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleGetMenu(w http.ResponseWriter, r *http.Request) {
	if s.cache != nil {
		if items, err := s.cache.GetMenu(r.Context()); err == nil && items != nil {
			writeMenu(w, items)
			return
		}
	}

	items := s.ledger.MenuItems()
	if s.cache != nil {
		if err := s.cache.SetMenu(r.Context(), items); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to cache menu snapshot")
		}
	}
	writeMenu(w, items)
}

func writeMenu(w http.ResponseWriter, items []models.MenuItem) {
	out := make([]menuItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toMenuItemResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *HTTPServer) handleGetOwner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"owner": s.ledger.Owner()})
}

func (s *HTTPServer) handleGetTreasury(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{"balance": s.ledger.Balance()})
}

func (s *HTTPServer) handleAddMenuItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name      string `json:"name"`
		Price     int64  `json:"price"`
		Inventory int64  `json:"inventory"`
		ItemType  string `json:"item_type"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid JSON body")
		return
	}

	itemType, err := models.ParseItemType(body.ItemType)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, err.Error())
		return
	}

	id, err := s.ledger.AddMenuItem(r.Context(), callerFromContext(r.Context()), body.Name, body.Price, body.Inventory, itemType)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	s.invalidateMenu(r)
	_ = s.bus.PublishJSON(events.EventMenuChanged, events.MenuEventPayload{ItemID: id, Change: "added"})
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *HTTPServer) handleUpdateInventory(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid item id")
		return
	}

	var body struct {
		Inventory int64 `json:"inventory"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid JSON body")
		return
	}

	if err := s.ledger.UpdateInventory(r.Context(), callerFromContext(r.Context()), itemID, body.Inventory); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	s.invalidateMenu(r)
	_ = s.bus.PublishJSON(events.EventMenuChanged, events.MenuEventPayload{ItemID: itemID, Change: "inventory"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid item id")
		return
	}

	var body struct {
		IsAvailable bool `json:"is_available"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid JSON body")
		return
	}

	if err := s.ledger.SetItemAvailability(r.Context(), callerFromContext(r.Context()), itemID, body.IsAvailable); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	s.invalidateMenu(r)
	_ = s.bus.PublishJSON(events.EventMenuChanged, events.MenuEventPayload{ItemID: itemID, Change: "availability"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemIDs    []int64 `json:"item_ids"`
		Quantities []int64 `json:"quantities"`
		AmountPaid int64   `json:"amount_paid"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid JSON body")
		return
	}

	caller := callerFromContext(r.Context())
	orderID, err := s.ledger.PlaceOrder(r.Context(), caller, body.ItemIDs, body.Quantities, body.AmountPaid)
	if err != nil {
		metrics.OrderRejected(rejectionReason(err))
		s.writeLedgerError(w, r, err)
		return
	}

	metrics.OrderPlaced(s.ledger.Balance())
	s.invalidateMenu(r)

	if order, err := s.ledger.Order(r.Context(), orderID); err == nil {
		_ = s.bus.PublishJSON(events.EventOrderPlaced, events.OrderEventPayload{
			OrderID:    order.ID,
			Customer:   order.Customer,
			TotalPrice: order.TotalPrice,
			PlacedAt:   order.PlacedAt,
		})
		if s.journal != nil {
			if err := s.journal.EnqueueOrderUpsert(r.Context(), order); err != nil {
				zerolog.Ctx(r.Context()).Error().Err(err).Int64("order_id", orderID).Msg("failed to enqueue order journal task")
			}
		}
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"order_id": orderID})
}

func (s *HTTPServer) handleOrderCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{"count": s.ledger.OrderCount()})
}

func (s *HTTPServer) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid order id")
		return
	}

	order, err := s.ledger.Order(r.Context(), orderID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *HTTPServer) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.ledger.Orders(r.Context(), callerFromContext(r.Context()))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (s *HTTPServer) handleFulfillOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid order id")
		return
	}

	if err := s.ledger.FulfillOrder(r.Context(), callerFromContext(r.Context()), orderID); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	_ = s.bus.PublishJSON(events.EventOrderFulfilled, events.OrderEventPayload{OrderID: orderID, Status: "fulfilled"})
	if s.journal != nil {
		if err := s.journal.EnqueueOrderStatus(r.Context(), orderID, "fulfilled"); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Int64("order_id", orderID).Msg("failed to enqueue order status task")
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	amount, err := s.ledger.Withdraw(r.Context(), callerFromContext(r.Context()))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	metrics.SetTreasuryBalance(s.ledger.Balance())
	_ = s.bus.PublishJSON(events.EventPayoutRecorded, events.PayoutEventPayload{To: s.ledger.Owner(), Amount: amount})
	writeJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}

func (s *HTTPServer) handleExportOrders(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotFound, "", "exports are not configured")
		return
	}

	orders, err := s.ledger.Orders(r.Context(), callerFromContext(r.Context()))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	filename := fmt.Sprintf("orders_%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := s.reports.WriteOrdersReport(w, orders, s.ledger.MenuItems()); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to write orders report")
	}
}

// invalidateMenu сбрасывает снимок каталога после любой мутации меню или остатков.
func (s *HTTPServer) invalidateMenu(r *http.Request) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to invalidate menu cache")
	}
}

// Машинные коды для конфликтов, различимых клиентом.
const (
	codeInvalidArgument       = "invalid_argument"
	codeItemUnavailable       = "item_unavailable"
	codeInsufficientInventory = "insufficient_inventory"
	codePaymentMismatch       = "payment_mismatch"
)

func (s *HTTPServer) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "", err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "", err.Error())
	case errors.Is(err, ledger.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, codeInvalidArgument, err.Error())
	case errors.Is(err, ledger.ErrItemUnavailable):
		writeError(w, http.StatusConflict, codeItemUnavailable, err.Error())
	case errors.Is(err, ledger.ErrInsufficientInventory):
		writeError(w, http.StatusConflict, codeInsufficientInventory, err.Error())
	case errors.Is(err, ledger.ErrPaymentMismatch):
		writeError(w, http.StatusConflict, codePaymentMismatch, err.Error())
	case errors.Is(err, ledger.ErrTransferFailed):
		writeError(w, http.StatusBadGateway, "", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "", "internal error")
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrItemUnavailable):
		return "item_unavailable"
	case errors.Is(err, ledger.ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, ledger.ErrPaymentMismatch):
		return "payment_mismatch"
	case errors.Is(err, ledger.ErrNotFound):
		return "unknown_item"
	default:
		return "invalid_argument"
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	body := map[string]string{"error": message}
	if code != "" {
		body["code"] = code
	}
	writeJSON(w, statusCode, body)
}
