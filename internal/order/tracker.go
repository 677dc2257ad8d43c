package order

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownOrder  = errors.New("order: unknown client order id")
	ErrDuplicateID   = errors.New("order: client order id already tracked")
	ErrOrderTerminal = errors.New("order: order is in a terminal state")
)

// Status is the lifecycle state of an order
type Status int

const (
	StatusUnplaced Status = iota
	StatusPendingNew
	StatusNew
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

var statusNames = [...]string{"UNPLACED", "PENDING_NEW", "NEW", "PARTIALLY_FILLED", "FILLED", "CANCELLED", "REJECTED"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "UNKNOWN"
}

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Order is a snapshot of one logical order. ClOrdID is the id of the latest
// accepted request in its cancel/replace chain.
type Order struct {
	ClOrdID         string
	PreviousClOrdID string
	OrderID         string
	Account         string
	Symbol          string
	Side            string
	Price           decimal.Decimal
	OrderQty        decimal.Decimal
	RemainingQty    decimal.Decimal
	CumQty          decimal.Decimal
	AvgPx           decimal.Decimal
	Status          Status
	Text            string
	UpdatedAt       time.Time
}

// Event names the transition carried by an Update
type Event string

const (
	EventPlaced       Event = "PLACED"
	EventSent         Event = "SENT"
	EventAccepted     Event = "ACCEPTED"
	EventFill         Event = "FILL"
	EventReplaced     Event = "REPLACED"
	EventCancelled    Event = "CANCELLED"
	EventRejected     Event = "REJECTED"
	EventCancelReject Event = "CANCEL_REJECTED"
)

// Update is delivered to the tracker's callback after every state change
type Update struct {
	Event    Event
	Order    Order
	ExecID   string
	FillQty  decimal.Decimal
	FillPx   decimal.Decimal
	// Overfill is reported quantity beyond the order's remaining size
	Overfill decimal.Decimal
}

type amendKind int

const (
	amendCancel amendKind = iota
	amendReplace
)

// amend is an in-flight cancel or replace request
type amend struct {
	kind     amendKind
	clOrdID  string
	origID   string
	key      string
	price    decimal.Decimal
	qty      decimal.Decimal
	received int
}

// Tracker keeps per-order state keyed by client order id. Every id in a
// cancel/replace chain resolves to the same logical order.
type Tracker struct {
	mu            sync.Mutex
	orders        map[string]*Order
	alias         map[string]string
	amends        map[string]*amend
	cancelQueue   []*amend
	seenExecs     map[string]struct{}
	confirmations int
	onUpdate      func(Update)
	now           func() time.Time
}

// NewTracker creates a tracker. confirmations is the number of cancel
// confirmations the venue sends per cancel request; values below 1 mean 1.
func NewTracker(confirmations int, onUpdate func(Update)) *Tracker {
	if confirmations < 1 {
		confirmations = 1
	}
	return &Tracker{
		orders:        make(map[string]*Order),
		alias:         make(map[string]string),
		amends:        make(map[string]*amend),
		seenExecs:     make(map[string]struct{}),
		confirmations: confirmations,
		onUpdate:      onUpdate,
		now:           time.Now,
	}
}

// Place registers a new order in the Unplaced state
func (t *Tracker) Place(req fix.OrderRequest) (Order, error) {
	t.mu.Lock()
	if _, ok := t.alias[req.ClOrdID]; ok {
		t.mu.Unlock()
		return Order{}, fmt.Errorf("%w: %s", ErrDuplicateID, req.ClOrdID)
	}
	o := &Order{
		ClOrdID:      req.ClOrdID,
		Account:      req.Account,
		Symbol:       req.Instrument,
		Side:         req.Side,
		Price:        req.Price,
		OrderQty:     req.Quantity,
		RemainingQty: req.Quantity,
		Status:       StatusUnplaced,
		UpdatedAt:    t.now(),
	}
	t.orders[req.ClOrdID] = o
	t.alias[req.ClOrdID] = req.ClOrdID
	u := Update{Event: EventPlaced, Order: *o}
	t.mu.Unlock()

	t.emit(u)
	return u.Order, nil
}

// Sent moves an Unplaced order to PendingNew once its request is on the wire
func (t *Tracker) Sent(clOrdID string) {
	t.mu.Lock()
	o := t.lookup(clOrdID)
	if o == nil || o.Status != StatusUnplaced {
		t.mu.Unlock()
		return
	}
	o.Status = StatusPendingNew
	o.UpdatedAt = t.now()
	u := Update{Event: EventSent, Order: *o}
	t.mu.Unlock()

	t.emit(u)
}

// Forget drops an order that was never sent
func (t *Tracker) Forget(clOrdID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key, ok := t.alias[clOrdID]
	if !ok || t.orders[key].Status != StatusUnplaced {
		return
	}
	delete(t.orders, key)
	delete(t.alias, clOrdID)
}

// Cancel records a cancel request newID for the order currently known as
// origID.
func (t *Tracker) Cancel(origID, newID string) (Order, error) {
	return t.addAmend(&amend{kind: amendCancel, clOrdID: newID, origID: origID})
}

// Replace records a cancel/replace request newID for origID
func (t *Tracker) Replace(origID, newID string, price, qty decimal.Decimal) (Order, error) {
	return t.addAmend(&amend{kind: amendReplace, clOrdID: newID, origID: origID, price: price, qty: qty})
}

func (t *Tracker) addAmend(a *amend) (Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key, ok := t.alias[a.origID]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, a.origID)
	}
	if _, dup := t.alias[a.clOrdID]; dup {
		return Order{}, fmt.Errorf("%w: %s", ErrDuplicateID, a.clOrdID)
	}
	o := t.orders[key]
	if o.Status.Terminal() {
		return *o, fmt.Errorf("%w: %s is %s", ErrOrderTerminal, o.ClOrdID, o.Status)
	}
	a.key = key
	t.alias[a.clOrdID] = key
	t.amends[a.clOrdID] = a
	if a.kind == amendCancel {
		t.cancelQueue = append(t.cancelQueue, a)
	}
	return *o, nil
}

// Order returns the order any id of its chain refers to
func (t *Tracker) Order(clOrdID string) (Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.lookup(clOrdID)
	if o == nil {
		return Order{}, false
	}
	return *o, true
}

// Orders returns a snapshot of every tracked order
func (t *Tracker) Orders() []Order {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Order, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, *o)
	}
	return out
}

// Apply folds an execution report into the order it refers to. It reports
// whether any state changed.
func (t *Tracker) Apply(r ExecutionReport) bool {
	t.mu.Lock()
	updates := t.apply(r)
	t.mu.Unlock()

	for _, u := range updates {
		t.emit(u)
	}
	return len(updates) > 0
}

// ApplyCancelReject abandons the cancel or replace request the reject refers to
func (t *Tracker) ApplyCancelReject(r CancelReject) bool {
	t.mu.Lock()
	a, ok := t.amends[r.ClOrdID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	t.dropAmend(a)
	delete(t.alias, a.clOrdID)
	o := t.orders[a.key]
	o.Text = r.Text
	o.UpdatedAt = t.now()
	u := Update{Event: EventCancelReject, Order: *o}
	t.mu.Unlock()

	t.emit(u)
	return true
}

func (t *Tracker) apply(r ExecutionReport) []Update {
	if r.ExecID != "" {
		if _, dup := t.seenExecs[r.ExecID]; dup {
			return nil
		}
	}

	if r.IsCancel() {
		u, ok := t.applyCancel(r)
		t.markSeen(r)
		if !ok {
			return nil
		}
		return []Update{u}
	}

	o := t.lookup(r.ClOrdID)
	if o == nil && r.OrigClOrdID != "" {
		o = t.lookup(r.OrigClOrdID)
	}
	if o == nil {
		return nil
	}
	t.markSeen(r)
	if o.OrderID == "" && r.OrderID != "" {
		o.OrderID = r.OrderID
	}
	if o.Status.Terminal() {
		return nil
	}

	now := t.now()
	var updates []Update
	switch {
	case r.ExecType == ExecTypeReplaced:
		a, ok := t.amends[r.ClOrdID]
		if !ok || a.kind != amendReplace {
			return nil
		}
		t.dropAmend(a)
		o.PreviousClOrdID = o.ClOrdID
		o.ClOrdID = a.clOrdID
		o.Price = a.price
		o.OrderQty = a.qty
		o.RemainingQty = decimal.Max(a.qty.Sub(o.CumQty), decimal.Zero)
		o.Status = StatusNew
		if o.CumQty.IsPositive() {
			o.Status = StatusPartiallyFilled
		}
		if !o.RemainingQty.IsPositive() {
			o.Status = StatusFilled
		}
		updates = append(updates, Update{Event: EventReplaced, Order: *o})

	case r.IsFill():
		counted, overfill := t.fill(o, r.LastQty, r.LastPx)
		o.UpdatedAt = now
		updates = append(updates, Update{
			Event: EventFill, Order: *o, ExecID: r.ExecID,
			FillQty: counted, FillPx: r.LastPx, Overfill: overfill,
		})

	case r.ExecType == ExecTypeRejected || (r.ExecType == "" && r.OrdStatus == ExecTypeRejected):
		o.Status = StatusRejected
		o.Text = r.Text
		updates = append(updates, Update{Event: EventRejected, Order: *o})

	case r.ExecType == ExecTypeNew || (r.ExecType == "" && r.OrdStatus == ExecTypeNew):
		if o.Status == StatusUnplaced || o.Status == StatusPendingNew {
			o.Status = StatusNew
			updates = append(updates, Update{Event: EventAccepted, Order: *o})
		}

	case r.ExecType == ExecTypePendingNew:
		if o.Status == StatusUnplaced {
			o.Status = StatusPendingNew
			updates = append(updates, Update{Event: EventSent, Order: *o})
		}
	}

	for i := range updates {
		updates[i].Order.UpdatedAt = now
	}
	o.UpdatedAt = now
	return updates
}

// fill applies one trade: remaining shrinks, cumulative grows and the
// average price is the size-weighted mean of all fills. Quantity beyond the
// remaining size is not counted and is returned as the overfill.
func (t *Tracker) fill(o *Order, qty, px decimal.Decimal) (counted, overfill decimal.Decimal) {
	counted = decimal.Min(qty, o.RemainingQty)
	overfill = qty.Sub(counted)
	newCum := o.CumQty.Add(counted)
	if newCum.IsPositive() {
		o.AvgPx = o.AvgPx.Mul(o.CumQty).Add(px.Mul(counted)).Div(newCum)
	}
	o.CumQty = newCum
	o.RemainingQty = o.RemainingQty.Sub(counted)
	if o.RemainingQty.IsZero() {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	return counted, overfill
}

// applyCancel counts confirmations per cancel request. Only a confirmation
// that resolves to the order through its ClOrdID or OrigClOrdID can finalize
// it, and only once the request has seen every confirmation the venue sends.
// A confirmation whose ids match nothing takes a leading slot of the oldest
// request still missing one and never finalizes.
func (t *Tracker) applyCancel(r ExecutionReport) (Update, bool) {
	key, a := t.resolveCancel(r)
	if key == "" {
		if a := t.unattributedCancel(); a != nil {
			a.received++
		}
		return Update{}, false
	}
	if a != nil {
		a.received++
		if a.received < t.confirmations {
			return Update{}, false
		}
	}

	o := t.orders[key]
	if o.Status.Terminal() {
		return Update{}, false
	}
	t.dropAmendsFor(key)
	if a != nil {
		o.PreviousClOrdID = o.ClOrdID
		o.ClOrdID = a.clOrdID
	}
	if o.OrderID == "" && r.OrderID != "" {
		o.OrderID = r.OrderID
	}
	o.Status = StatusCancelled
	o.Text = r.Text
	o.UpdatedAt = t.now()
	return Update{Event: EventCancelled, Order: *o}, true
}

// resolveCancel finds the order a cancel confirmation names and its pending
// cancel request, if any. An empty key means the ids match nothing.
func (t *Tracker) resolveCancel(r ExecutionReport) (string, *amend) {
	if a, ok := t.amends[r.ClOrdID]; ok && a.kind == amendCancel {
		return a.key, a
	}
	for _, id := range []string{r.ClOrdID, r.OrigClOrdID} {
		if id == "" {
			continue
		}
		if key, ok := t.alias[id]; ok {
			return key, t.pendingCancel(key)
		}
	}
	return "", nil
}

// unattributedCancel returns the oldest cancel request that can take a
// confirmation without reaching its last one
func (t *Tracker) unattributedCancel() *amend {
	for _, a := range t.cancelQueue {
		if a.received < t.confirmations-1 {
			return a
		}
	}
	return nil
}

func (t *Tracker) dropAmendsFor(key string) {
	for _, a := range t.amends {
		if a.key == key {
			t.dropAmend(a)
		}
	}
}

func (t *Tracker) dropAmend(a *amend) {
	delete(t.amends, a.clOrdID)
	for i, q := range t.cancelQueue {
		if q == a {
			t.cancelQueue = append(t.cancelQueue[:i], t.cancelQueue[i+1:]...)
			break
		}
	}
}

func (t *Tracker) markSeen(r ExecutionReport) {
	if r.ExecID != "" {
		t.seenExecs[r.ExecID] = struct{}{}
	}
}

func (t *Tracker) lookup(id string) *Order {
	if id == "" {
		return nil
	}
	key, ok := t.alias[id]
	if !ok {
		return nil
	}
	return t.orders[key]
}

func (t *Tracker) emit(u Update) {
	if t.onUpdate != nil {
		t.onUpdate(u)
	}
}
