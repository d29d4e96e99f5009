package models

import "time"

// OrderLine is one position of an order. UnitPrice is the catalog price at
// placement time; later price changes never alter a recorded order.
type OrderLine struct {
	ItemID    int64 `json:"item_id"`
	Quantity  int64 `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// Order is an immutable record of an accepted purchase. ID is the dense
// zero-based sequence number assigned at placement. Only Fulfilled may change
// after placement, and only false -> true.
type Order struct {
	ID         int64       `json:"id"`
	Customer   string      `json:"customer"`
	Lines      []OrderLine `json:"lines"`
	TotalPrice int64       `json:"total_price"`
	PlacedAt   time.Time   `json:"placed_at"`
	Fulfilled  bool        `json:"fulfilled"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ItemIDs returns the item index of each line, in order.
func (o *Order) ItemIDs() []int64 {
	ids := make([]int64, len(o.Lines))
	for i, l := range o.Lines {
		ids[i] = l.ItemID
	}
	return ids
}

// Quantities returns the quantity of each line, in order.
func (o *Order) Quantities() []int64 {
	qs := make([]int64, len(o.Lines))
	for i, l := range o.Lines {
		qs[i] = l.Quantity
	}
	return qs
}

// Payout is an append-only record of a completed withdrawal.
type Payout struct {
	ID        int64     `json:"id"`
	Recipient string    `json:"recipient"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
