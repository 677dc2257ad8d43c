package msg

import "github.com/shopspring/decimal"

// Order command actions
const (
	ActionPlace      = "place"
	ActionCancel     = "cancel"
	ActionReplace    = "replace"
	ActionMassCancel = "mass_cancel"
	ActionStatus     = "status"
)

// OrderCmdMsg is an order instruction consumed from orders.commands
type OrderCmdMsg struct {
	EventID      string          `json:"event_id"`
	Action       string          `json:"action"`
	ClOrdID      string          `json:"cl_ord_id,omitempty"` // target order for cancel/replace/status
	OrderID      string          `json:"order_id,omitempty"`  // venue order id, status only
	Account      string          `json:"account,omitempty"`
	Symbol       string          `json:"symbol,omitempty"`
	Side         string          `json:"side,omitempty"` // "BUY" or "SELL"
	Qty          decimal.Decimal `json:"qty"`
	Price        decimal.Decimal `json:"price"`
	TsUnixMillis int64           `json:"ts_unix_millis"`
}

// OrderEventMsg is an order lifecycle transition published to orders.events
type OrderEventMsg struct {
	EventID         string          `json:"event_id"`
	ClOrdID         string          `json:"cl_ord_id"`
	PreviousClOrdID string          `json:"previous_cl_ord_id,omitempty"`
	OrderID         string          `json:"order_id,omitempty"`
	Symbol          string          `json:"symbol"`
	Side            string          `json:"side"`
	Event           string          `json:"event"`
	Status          string          `json:"status"` // "PENDING_NEW", "NEW", "FILLED", "CANCELLED", ...
	Reason          string          `json:"reason,omitempty"`
	ExecID          string          `json:"exec_id,omitempty"`
	FillQty         decimal.Decimal `json:"fill_qty"`
	FillPx          decimal.Decimal `json:"fill_px"`
	CumQty          decimal.Decimal `json:"cum_qty"`
	RemainingQty    decimal.Decimal `json:"remaining_qty"`
	AvgPx           decimal.Decimal `json:"avg_px"`
	TsUnixMillis    int64           `json:"ts_unix_millis"`
}

// LevelMsg is one price level of a published book
type LevelMsg struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// BookMsg is a book snapshot published to market.books after each update
type BookMsg struct {
	Symbol       string     `json:"symbol"`
	Bids         []LevelMsg `json:"bids"`
	Asks         []LevelMsg `json:"asks"`
	TsUnixMillis int64      `json:"ts_unix_millis"`
}
