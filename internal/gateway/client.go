package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ismaiel54/dma-fix-gateway/internal/book"
	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/ismaiel54/dma-fix-gateway/internal/msg"
	"github.com/ismaiel54/dma-fix-gateway/internal/observability"
	"github.com/ismaiel54/dma-fix-gateway/internal/order"
	"github.com/ismaiel54/dma-fix-gateway/internal/session"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnknownSubscription is returned when unsubscribing a symbol that has no
// active market data subscription
var ErrUnknownSubscription = errors.New("no market data subscription for symbol")

// EventSink receives order lifecycle events (the outbox)
type EventSink interface {
	EnqueueEvent(ctx context.Context, ev msg.OrderEventMsg) error
}

// BookSink receives book snapshots after every market data update
type BookSink interface {
	ProduceJSONAsync(ctx context.Context, topic string, key string, v any)
}

// Deps are the optional collaborators of a Client. Nil members are skipped.
type Deps struct {
	Events  EventSink
	Books   BookSink
	Ledger  CommandLedger
	Metrics *observability.Metrics
}

// Client is the application-facing side of one FIX session. It owns the book
// engine and the order tracker, and routes inbound application messages to
// them.
type Client struct {
	session *session.Session
	books   *book.Engine
	orders  *order.Tracker
	deps    Deps
	account string
	logger  *zap.Logger

	mu          sync.Mutex
	mdReqIDs    map[string]string
	instruments map[string]Instrument
	now         func() time.Time
}

// NewClient binds a client to s. It must be called before s.Start so that no
// inbound message is missed.
func NewClient(s *session.Session, depth int, account string, deps Deps, logger *zap.Logger) *Client {
	d := s.Builder().Dialect()
	c := &Client{
		session:     s,
		books:       book.NewEngine(d, depth),
		deps:        deps,
		account:     account,
		logger:      logger,
		mdReqIDs:    make(map[string]string),
		instruments: make(map[string]Instrument),
		now:         time.Now,
	}
	c.orders = order.NewTracker(d.CancelConfirmations, c.onOrderUpdate)
	s.OnMessage(c.handle)
	return c
}

// Session returns the underlying FIX session
func (c *Client) Session() *session.Session { return c.session }

// Book returns a copy of the current book for symbol
func (c *Client) Book(symbol string) (book.Book, bool) {
	return c.books.Book(symbol)
}

// Symbols returns every symbol with a book
func (c *Client) Symbols() []string {
	return c.books.Symbols()
}

// Order returns the order known by any client order id in its chain
func (c *Client) Order(clOrdID string) (order.Order, bool) {
	return c.orders.Order(clOrdID)
}

// Orders returns every tracked order
func (c *Client) Orders() []order.Order {
	return c.orders.Orders()
}

// handle runs on the session reader goroutine
func (c *Client) handle(m *fix.Message, class fix.Class) {
	switch class.Kind {
	case fix.KindMarketDataSnapshot, fix.KindMarketDataIncremental:
		c.handleMarketData(m, class)
	case fix.KindExecutionReport:
		r, err := order.ParseExecutionReport(m)
		if err != nil {
			c.logger.Warn("unreadable execution report", zap.Error(err), zap.String("raw", m.String()))
			return
		}
		if !c.orders.Apply(r) {
			c.logger.Debug("execution report ignored",
				zap.String("cl_ord_id", r.ClOrdID),
				zap.String("exec_id", r.ExecID),
				zap.String("exec_type", r.ExecType),
			)
		}
	case fix.KindOrderCancelReject:
		r, err := order.ParseCancelReject(m)
		if err != nil {
			c.logger.Warn("unreadable cancel reject", zap.Error(err))
			return
		}
		if !c.orders.ApplyCancelReject(r) {
			c.logger.Debug("cancel reject for unknown request", zap.String("cl_ord_id", r.ClOrdID))
		}
	case fix.KindSecurityList:
		n := c.applySecurityList(m)
		c.logger.Info("security list received", zap.Int("instruments", n))
	case fix.KindTradeCaptureReport:
		c.logger.Info("trade capture report",
			zap.String("trade_request_id", m.GetOr(fix.TagTradeRequestID, "")),
			zap.String("symbol", m.GetOr(fix.TagSymbol, "")),
			zap.String("last_qty", m.GetOr(fix.TagLastQty, "")),
			zap.String("last_px", m.GetOr(fix.TagLastPx, "")),
		)
	default:
		c.logger.Debug("unhandled message", zap.String("msg_type", m.MsgType()))
	}
}

func (c *Client) handleMarketData(m *fix.Message, class fix.Class) {
	res := c.books.Apply(m, class)
	c.deps.Metrics.BookEntries(res.Applied, res.Skipped)
	if c.deps.Books == nil {
		return
	}
	ts := c.now().UnixMilli()
	for _, sym := range res.Symbols {
		b, ok := c.books.Book(sym)
		if !ok {
			continue
		}
		c.deps.Books.ProduceJSONAsync(context.Background(), msg.TopicMarketBooks, sym, bookMsg(b, ts))
	}
}

func bookMsg(b book.Book, ts int64) msg.BookMsg {
	out := msg.BookMsg{
		Symbol:       b.Symbol,
		Bids:         make([]msg.LevelMsg, 0, len(b.Bids)),
		Asks:         make([]msg.LevelMsg, 0, len(b.Asks)),
		TsUnixMillis: ts,
	}
	for _, l := range b.Bids {
		out.Bids = append(out.Bids, msg.LevelMsg{Price: l.Price, Size: l.Size})
	}
	for _, l := range b.Asks {
		out.Asks = append(out.Asks, msg.LevelMsg{Price: l.Price, Size: l.Size})
	}
	return out
}

func (c *Client) onOrderUpdate(u order.Update) {
	c.deps.Metrics.IncOrderEvent(string(u.Event))
	c.logger.Info("order event",
		zap.String("event", string(u.Event)),
		zap.String("cl_ord_id", u.Order.ClOrdID),
		zap.String("status", u.Order.Status.String()),
		zap.String("cum_qty", u.Order.CumQty.String()),
	)
	if u.Overfill.IsPositive() {
		c.logger.Warn("fill exceeds remaining quantity",
			zap.String("cl_ord_id", u.Order.ClOrdID),
			zap.String("exec_id", u.ExecID),
			zap.String("overfill", u.Overfill.String()),
		)
	}
	if c.deps.Events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.deps.Events.EnqueueEvent(ctx, eventMsg(u, c.now())); err != nil {
		c.logger.Error("failed to enqueue order event",
			zap.String("cl_ord_id", u.Order.ClOrdID),
			zap.String("event", string(u.Event)),
			zap.Error(err),
		)
	}
}

func eventMsg(u order.Update, now time.Time) msg.OrderEventMsg {
	o := u.Order
	return msg.OrderEventMsg{
		EventID:         uuid.NewString(),
		ClOrdID:         o.ClOrdID,
		PreviousClOrdID: o.PreviousClOrdID,
		OrderID:         o.OrderID,
		Symbol:          o.Symbol,
		Side:            sideName(o.Side),
		Event:           string(u.Event),
		Status:          o.Status.String(),
		Reason:          o.Text,
		ExecID:          u.ExecID,
		FillQty:         u.FillQty,
		FillPx:          u.FillPx,
		CumQty:          o.CumQty,
		RemainingQty:    o.RemainingQty,
		AvgPx:           o.AvgPx,
		TsUnixMillis:    now.UnixMilli(),
	}
}

// PlaceOrder sends a limit order and returns the tracked order. The client
// order id is allocated here; an empty account uses the client default.
func (c *Client) PlaceOrder(ctx context.Context, symbol, side string, price, qty decimal.Decimal, account string) (order.Order, error) {
	if account == "" {
		account = c.account
	}
	req := fix.OrderRequest{
		ClOrdID:    c.session.Builder().Counters().ClOrdID.NextID(),
		Account:    account,
		Instrument: symbol,
		Side:       side,
		Price:      price,
		Quantity:   qty,
	}
	if _, err := c.orders.Place(req); err != nil {
		return order.Order{}, err
	}

	_, err := c.session.Send(ctx, func(b *fix.Builder) (*fix.Message, error) {
		return b.NewOrderSingle(req)
	})
	if err != nil {
		c.orders.Forget(req.ClOrdID)
		return order.Order{}, fmt.Errorf("place order %s: %w", req.ClOrdID, err)
	}
	c.orders.Sent(req.ClOrdID)

	o, _ := c.orders.Order(req.ClOrdID)
	return o, nil
}

// CancelOrder requests cancellation of the order known as clOrdID and
// returns the new client order id of the request
func (c *Client) CancelOrder(ctx context.Context, clOrdID string) (string, error) {
	newID := c.session.Builder().Counters().ClOrdID.NextID()
	o, err := c.orders.Cancel(clOrdID, newID)
	if err != nil {
		return "", err
	}

	_, err = c.session.Send(ctx, func(b *fix.Builder) (*fix.Message, error) {
		return b.OrderCancelRequest(fix.CancelRequest{
			ClOrdID:     newID,
			OrigClOrdID: o.ClOrdID,
			Account:     o.Account,
			Instrument:  o.Symbol,
			Side:        o.Side,
			Quantity:    o.OrderQty,
		})
	})
	if err != nil {
		c.orders.ApplyCancelReject(order.CancelReject{ClOrdID: newID, OrigClOrdID: o.ClOrdID, Text: err.Error()})
		return "", fmt.Errorf("cancel order %s: %w", clOrdID, err)
	}
	return newID, nil
}

// ReplaceOrder amends price and total quantity of the order known as clOrdID
// and returns the new client order id of the request
func (c *Client) ReplaceOrder(ctx context.Context, clOrdID string, price, qty decimal.Decimal) (string, error) {
	newID := c.session.Builder().Counters().ClOrdID.NextID()
	o, err := c.orders.Replace(clOrdID, newID, price, qty)
	if err != nil {
		return "", err
	}

	_, err = c.session.Send(ctx, func(b *fix.Builder) (*fix.Message, error) {
		return b.OrderCancelReplaceRequest(fix.ReplaceRequest{
			ClOrdID:     newID,
			OrigClOrdID: o.ClOrdID,
			Account:     o.Account,
			Instrument:  o.Symbol,
			Side:        o.Side,
			Price:       price,
			Quantity:    qty,
		})
	})
	if err != nil {
		c.orders.ApplyCancelReject(order.CancelReject{ClOrdID: newID, OrigClOrdID: o.ClOrdID, Text: err.Error()})
		return "", fmt.Errorf("replace order %s: %w", clOrdID, err)
	}
	return newID, nil
}

// MassCancel cancels every working order of the session's party or segment
func (c *Client) MassCancel(ctx context.Context) (string, error) {
	var id string
	_, err := c.session.Send(ctx, func(b *fix.Builder) (*fix.Message, error) {
		m, reqID, err := b.OrderMassCancelRequest()
		id = reqID
		return m, err
	})
	if err != nil {
		return "", fmt.Errorf("mass cancel: %w", err)
	}
	return id, nil
}

// OrderStatus asks the venue for the state of the order known as clOrdID
func (c *Client) OrderStatus(ctx context.Context, clOrdID string) error {
	o, ok := c.orders.Order(clOrdID)
	if !ok {
		return fmt.Errorf("%w: %s", order.ErrUnknownOrder, clOrdID)
	}
	return c.OrderStatusByID(ctx, o.OrderID, o.Symbol, o.Side)
}

// OrderStatusByID asks for the state of a venue order id
func (c *Client) OrderStatusByID(ctx context.Context, orderID, symbol, side string) error {
	_, err := c.session.Send(ctx, func(b *fix.Builder) (*fix.Message, error) {
		return b.OrderStatusRequest(orderID, symbol, side)
	})
	if err != nil {
		return fmt.Errorf("order status: %w", err)
	}
	return nil
}

// Subscribe starts a market data subscription for symbol. Subscribing twice
// is a no-op.
func (c *Client) Subscribe(ctx context.Context, symbol string) error {
	c.mu.Lock()
	_, active := c.mdReqIDs[symbol]
	c.mu.Unlock()
	if active {
		return nil
	}

	var id string
	_, err := c.session.Send(ctx, func(b *fix.Builder) (*fix.Message, error) {
		m, reqID, err := b.MarketDataSubscribe(symbol, c.books.Depth())
		id = reqID
		return m, err
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}

	c.mu.Lock()
	c.mdReqIDs[symbol] = id
	c.mu.Unlock()
	return nil
}

// Unsubscribe ends the market data subscription for symbol
func (c *Client) Unsubscribe(ctx context.Context, symbol string) error {
	c.mu.Lock()
	id, ok := c.mdReqIDs[symbol]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, symbol)
	}

	_, err := c.session.Send(ctx, func(b *fix.Builder) (*fix.Message, error) {
		return b.MarketDataUnsubscribe(symbol, id, c.books.Depth())
	})
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w", symbol, err)
	}

	c.mu.Lock()
	delete(c.mdReqIDs, symbol)
	c.mu.Unlock()
	return nil
}

// Resubscribe clears every book and renews the active subscriptions. Call it
// after a reconnect; the venue drops subscriptions with the connection.
func (c *Client) Resubscribe(ctx context.Context) error {
	c.mu.Lock()
	symbols := make([]string, 0, len(c.mdReqIDs))
	for sym := range c.mdReqIDs {
		symbols = append(symbols, sym)
	}
	c.mdReqIDs = make(map[string]string)
	c.mu.Unlock()

	c.books.Reset()
	var errs []error
	for _, sym := range symbols {
		if err := c.Subscribe(ctx, sym); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscriptions returns the active market data request id per symbol
func (c *Client) Subscriptions() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.mdReqIDs))
	for k, v := range c.mdReqIDs {
		out[k] = v
	}
	return out
}

// RequestSecurityList asks for every instrument the venue lists
func (c *Client) RequestSecurityList(ctx context.Context) (string, error) {
	var id string
	_, err := c.session.Send(ctx, func(b *fix.Builder) (*fix.Message, error) {
		m, reqID := b.SecurityListRequest()
		id = reqID
		return m, nil
	})
	if err != nil {
		return "", fmt.Errorf("security list: %w", err)
	}
	return id, nil
}

// RequestTradeCapture asks for the day's trade capture reports
func (c *Client) RequestTradeCapture(ctx context.Context) (string, error) {
	var id string
	_, err := c.session.Send(ctx, func(b *fix.Builder) (*fix.Message, error) {
		m, reqID, err := b.TradeCaptureReportRequest()
		id = reqID
		return m, err
	})
	if err != nil {
		return "", fmt.Errorf("trade capture: %w", err)
	}
	return id, nil
}
