package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/ismaiel54/dma-fix-gateway/internal/msg"
	"github.com/ismaiel54/dma-fix-gateway/internal/order"
	"github.com/ismaiel54/dma-fix-gateway/internal/session"
	"github.com/ismaiel54/dma-fix-gateway/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const waitFor = 3 * time.Second

type pipeDialer struct {
	conns chan net.Conn
}

func (d *pipeDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	client, server := net.Pipe()
	select {
	case d.conns <- server:
		return client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// venue plays the exchange side of the pipe
type venue struct {
	t    *testing.T
	conn net.Conn
	in   chan *fix.Message
	seq  int64
}

func (v *venue) readLoop() {
	defer close(v.in)
	r := fix.NewReader(v.conn)
	for {
		raw, err := r.ReadMessage()
		if err != nil {
			return
		}
		if m, err := fix.Decode(raw); err == nil {
			v.in <- m
		}
	}
}

func (v *venue) expect(msgType string) *fix.Message {
	v.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case m, ok := <-v.in:
			require.True(v.t, ok, "connection closed while waiting for 35=%s", msgType)
			if m.MsgType() == msgType {
				return m
			}
		case <-deadline:
			v.t.Fatalf("no 35=%s received", msgType)
			return nil
		}
	}
}

func (v *venue) send(msgType string, fields ...fix.Field) {
	v.t.Helper()
	v.seq++
	m := fix.NewMessage(8+len(fields)).
		Add(fix.TagBeginString, "FIXT.1.1").
		Add(fix.TagMsgType, msgType).
		AddInt(fix.TagMsgSeqNum, v.seq).
		Add(fix.TagSenderCompID, "ROFX").
		Add(fix.TagSendingTime, fix.FormatTimestamp(time.Now())).
		Add(fix.TagTargetCompID, "SENDER")
	for _, f := range fields {
		m.Add(f.Tag, f.Value)
	}
	raw, err := fix.Encode(m, fix.EncodeOptions{})
	require.NoError(v.t, err)
	_, err = v.conn.Write(raw)
	require.NoError(v.t, err)
}

func f(tag fix.Tag, value string) fix.Field {
	return fix.Field{Tag: tag, Value: value}
}

type fakeEvents struct {
	mu     sync.Mutex
	events []msg.OrderEventMsg
}

func (e *fakeEvents) EnqueueEvent(_ context.Context, ev msg.OrderEventMsg) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *fakeEvents) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Event)
	}
	return out
}

func (e *fakeEvents) last() msg.OrderEventMsg {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events[len(e.events)-1]
}

type fakeBooks struct {
	mu    sync.Mutex
	books []msg.BookMsg
}

func (b *fakeBooks) ProduceJSONAsync(_ context.Context, topic string, key string, v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bm, ok := v.(msg.BookMsg); ok && topic == msg.TopicMarketBooks && key == bm.Symbol {
		b.books = append(b.books, bm)
	}
}

type fakeLedger struct {
	mu     sync.Mutex
	status map[string]string
	reason map[string]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{status: make(map[string]string), reason: make(map[string]string)}
}

func (l *fakeLedger) ClaimCommand(_ context.Context, cmd msg.OrderCmdMsg) (store.ClaimResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.status[cmd.EventID]; ok {
		return store.ClaimResult{Duplicate: true, Status: st}, nil
	}
	l.status[cmd.EventID] = store.StatusReceived
	return store.ClaimResult{Status: store.StatusReceived}, nil
}

func (l *fakeLedger) CompleteCommand(_ context.Context, eventID, status, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[eventID] = status
	l.reason[eventID] = reason
	return nil
}

func (l *fakeLedger) get(eventID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status[eventID]
}

func testSession(d session.Dialer) *session.Session {
	dialect := fix.ROFEX()
	dialect.SenderCompID = "SENDER"
	dialect.OnBehalfOfCompID = "user1"
	dialect.DeliverToCompID = "ROFX"
	dialect.PartyID = "trader1"
	opts := session.Options{
		Addr:        "venue:443",
		Credentials: fix.Credentials{Username: "user1", Password: "secret"},
		BackOff:     backoff.NewConstantBackOff(10 * time.Millisecond),
	}
	return session.New(opts, fix.NewBuilder(dialect, fix.NewCounters()), d, zap.NewNop())
}

// connectedClient starts a client against a pipe venue that has acknowledged
// the logon
func connectedClient(t *testing.T, deps Deps) (*Client, *venue) {
	t.Helper()
	d := &pipeDialer{conns: make(chan net.Conn, 2)}
	s := testSession(d)
	c := NewClient(s, 5, "REX001", deps, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		s.Disconnect(ctx)
	})

	var v *venue
	select {
	case conn := <-d.conns:
		v = &venue{t: t, conn: conn, in: make(chan *fix.Message, 64)}
		go v.readLoop()
		t.Cleanup(func() { conn.Close() })
	case <-time.After(waitFor):
		t.Fatal("session never dialled")
	}
	v.expect(fix.MsgTypeLogon)
	v.send(fix.MsgTypeLogon, f(fix.TagHeartBtInt, "60"))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.WaitLoggedOn(ctx))
	return c, v
}

func TestClient_PlaceOrderLifecycle(t *testing.T) {
	events := &fakeEvents{}
	c, v := connectedClient(t, Deps{Events: events})

	o, err := c.PlaceOrder(context.Background(), "DLR/MAR24", fix.SideBuy, decimal.RequireFromString("850"), decimal.RequireFromString("10"), "")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPendingNew, o.Status)

	nos := v.expect(fix.MsgTypeNewOrderSingle)
	assert.Equal(t, o.ClOrdID, nos.GetOr(fix.TagClOrdID, ""))
	assert.Equal(t, "REX001", nos.GetOr(fix.TagAccount, ""))
	assert.Equal(t, "DLR/MAR24", nos.GetOr(fix.TagSymbol, ""))

	v.send(fix.MsgTypeExecutionReport,
		f(fix.TagClOrdID, o.ClOrdID), f(fix.TagOrderID, "V1"), f(fix.TagExecID, "e0"),
		f(fix.TagExecType, "0"), f(fix.TagOrdStatus, "0"))
	v.send(fix.MsgTypeExecutionReport,
		f(fix.TagClOrdID, o.ClOrdID), f(fix.TagOrderID, "V1"), f(fix.TagExecID, "e1"),
		f(fix.TagExecType, "F"), f(fix.TagOrdStatus, "2"),
		f(fix.TagLastQty, "10"), f(fix.TagLastPx, "850"))

	require.Eventually(t, func() bool {
		got, ok := c.Order(o.ClOrdID)
		return ok && got.Status == order.StatusFilled
	}, waitFor, 5*time.Millisecond)

	got, _ := c.Order(o.ClOrdID)
	assert.Equal(t, "V1", got.OrderID)
	assert.True(t, got.AvgPx.Equal(decimal.RequireFromString("850")))

	require.Eventually(t, func() bool { return len(events.names()) == 4 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"PLACED", "SENT", "ACCEPTED", "FILL"}, events.names())
	last := events.last()
	assert.Equal(t, "BUY", last.Side)
	assert.Equal(t, "FILLED", last.Status)
	assert.Equal(t, "e1", last.ExecID)
	assert.NotEmpty(t, last.EventID)
}

func TestClient_CancelWithDoubleConfirmation(t *testing.T) {
	events := &fakeEvents{}
	c, v := connectedClient(t, Deps{Events: events})

	o, err := c.PlaceOrder(context.Background(), "DLR/MAR24", fix.SideSell, decimal.RequireFromString("851"), decimal.RequireFromString("3"), "")
	require.NoError(t, err)
	v.expect(fix.MsgTypeNewOrderSingle)

	cancelID, err := c.CancelOrder(context.Background(), o.ClOrdID)
	require.NoError(t, err)
	req := v.expect(fix.MsgTypeOrderCancelRequest)
	assert.Equal(t, cancelID, req.GetOr(fix.TagClOrdID, ""))
	assert.Equal(t, o.ClOrdID, req.GetOr(fix.TagOrigClOrdID, ""))

	// The venue confirms twice; the first confirmation carries an unknown id
	v.send(fix.MsgTypeExecutionReport, f(fix.TagClOrdID, "0"), f(fix.TagExecType, "4"), f(fix.TagOrdStatus, "4"))
	v.send(fix.MsgTypeExecutionReport,
		f(fix.TagClOrdID, cancelID), f(fix.TagOrigClOrdID, o.ClOrdID),
		f(fix.TagExecType, "4"), f(fix.TagOrdStatus, "4"))

	require.Eventually(t, func() bool {
		got, _ := c.Order(o.ClOrdID)
		return got.Status == order.StatusCancelled
	}, waitFor, 5*time.Millisecond)

	got, ok := c.Order(cancelID)
	require.True(t, ok)
	assert.Equal(t, cancelID, got.ClOrdID)
	assert.Equal(t, o.ClOrdID, got.PreviousClOrdID)

	cancels := func() int {
		n := 0
		for _, name := range events.names() {
			if name == string(order.EventCancelled) {
				n++
			}
		}
		return n
	}
	require.Eventually(t, func() bool { return cancels() == 1 }, waitFor, 5*time.Millisecond)
}

func TestClient_CancelRejectKeepsOrderWorking(t *testing.T) {
	c, v := connectedClient(t, Deps{})

	o, err := c.PlaceOrder(context.Background(), "DLR/MAR24", fix.SideBuy, decimal.RequireFromString("850"), decimal.RequireFromString("1"), "")
	require.NoError(t, err)
	v.expect(fix.MsgTypeNewOrderSingle)

	cancelID, err := c.CancelOrder(context.Background(), o.ClOrdID)
	require.NoError(t, err)
	v.expect(fix.MsgTypeOrderCancelRequest)

	v.send(fix.MsgTypeOrderCancelReject,
		f(fix.TagClOrdID, cancelID), f(fix.TagOrigClOrdID, o.ClOrdID), f(fix.TagText, "too late"))

	require.Eventually(t, func() bool {
		got, _ := c.Order(o.ClOrdID)
		return got.Text == "too late"
	}, waitFor, 5*time.Millisecond)

	_, ok := c.Order(cancelID)
	assert.False(t, ok)
	got, _ := c.Order(o.ClOrdID)
	assert.Equal(t, order.StatusPendingNew, got.Status)
}

func TestClient_SubscribeBuildsAndPublishesBooks(t *testing.T) {
	books := &fakeBooks{}
	c, v := connectedClient(t, Deps{Books: books})

	require.NoError(t, c.Subscribe(context.Background(), "DLR/MAR24"))
	req := v.expect(fix.MsgTypeMarketDataRequest)
	assert.Equal(t, "DLR/MAR24", req.GetOr(fix.TagSymbol, ""))
	id := c.Subscriptions()["DLR/MAR24"]
	require.NotEmpty(t, id)

	// Second subscribe is a no-op
	require.NoError(t, c.Subscribe(context.Background(), "DLR/MAR24"))
	assert.Equal(t, id, c.Subscriptions()["DLR/MAR24"])

	v.send(fix.MsgTypeMarketDataSnapshot,
		f(fix.TagSymbol, "DLR/MAR24"), f(fix.TagNoMDEntries, "2"),
		f(fix.TagMDEntryType, "0"), f(fix.TagMDEntryPx, "850"), f(fix.TagMDEntrySize, "10"),
		f(fix.TagMDEntryType, "1"), f(fix.TagMDEntryPx, "852"), f(fix.TagMDEntrySize, "4"))

	require.Eventually(t, func() bool {
		books.mu.Lock()
		defer books.mu.Unlock()
		return len(books.books) > 0
	}, waitFor, 5*time.Millisecond)

	b, _ := c.Book("DLR/MAR24")
	require.Len(t, b.Bids, 1)
	require.Len(t, b.Asks, 1)
	assert.True(t, b.Bids[0].Price.Equal(decimal.RequireFromString("850")))

	books.mu.Lock()
	require.Len(t, books.books, 1)
	published := books.books[0]
	books.mu.Unlock()
	assert.Equal(t, "DLR/MAR24", published.Symbol)
	assert.True(t, published.Asks[0].Size.Equal(decimal.RequireFromString("4")))

	require.NoError(t, c.Unsubscribe(context.Background(), "DLR/MAR24"))
	unsub := v.expect(fix.MsgTypeMarketDataRequest)
	assert.Equal(t, id, unsub.GetOr(fix.TagMDReqID, ""))
	assert.Empty(t, c.Subscriptions())

	err := c.Unsubscribe(context.Background(), "DLR/MAR24")
	assert.ErrorIs(t, err, ErrUnknownSubscription)
}

func TestClient_SecurityList(t *testing.T) {
	c := NewClient(testSession(&pipeDialer{}), 5, "REX001", Deps{}, zap.NewNop())

	m := fix.NewMessage(12).
		Add(fix.TagMsgType, fix.MsgTypeSecurityList).
		Add(fix.TagNoRelatedSym, "2").
		Add(fix.TagSymbol, "DLR/MAR24").Add(fix.TagSecurityDesc, "Dolar marzo").Add(fix.TagMinPriceIncrement, "0.5").
		Add(fix.TagSymbol, "GGAL/ABR24").Add(fix.TagSecurityID, "GGAL").Add(fix.TagMinPriceIncrement, "0.01")
	c.handle(m, fix.Classify(m, nil))

	in, ok := c.Instrument("DLR/MAR24")
	require.True(t, ok)
	assert.Equal(t, "Dolar marzo", in.Description)
	assert.True(t, in.MinTick.Equal(decimal.RequireFromString("0.5")))

	in, ok = c.Instrument("GGAL/ABR24")
	require.True(t, ok)
	assert.Equal(t, "GGAL", in.SecurityID)
	assert.True(t, in.MinTick.Equal(decimal.RequireFromString("0.01")))

	_, ok = c.Instrument("UNKNOWN")
	assert.False(t, ok)
}

func TestClient_SendBeforeLogonForgetsOrder(t *testing.T) {
	c := NewClient(testSession(&pipeDialer{}), 5, "REX001", Deps{}, zap.NewNop())

	_, err := c.PlaceOrder(context.Background(), "DLR/MAR24", fix.SideBuy, decimal.RequireFromString("1"), decimal.RequireFromString("1"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrNotLoggedOn)
	assert.Empty(t, c.Orders())

	_, err = c.CancelOrder(context.Background(), "404")
	assert.ErrorIs(t, err, order.ErrUnknownOrder)
}

func command(t *testing.T, cmd msg.OrderCmdMsg) msg.Record {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	return msg.Record{Topic: msg.TopicOrdersCommands, Key: cmd.EventID, Value: data}
}

func TestClient_HandleCommandSendsOnce(t *testing.T) {
	ledger := newFakeLedger()
	c, v := connectedClient(t, Deps{Ledger: ledger})

	rec := command(t, msg.OrderCmdMsg{
		EventID: "evt-1",
		Action:  msg.ActionPlace,
		Symbol:  "DLR/MAR24",
		Side:    "SELL",
		Qty:     decimal.RequireFromString("2"),
		Price:   decimal.RequireFromString("851"),
	})
	require.NoError(t, c.HandleCommand(context.Background(), rec))
	nos := v.expect(fix.MsgTypeNewOrderSingle)
	assert.Equal(t, fix.SideSell, nos.GetOr(fix.TagSide, ""))
	assert.Equal(t, store.StatusSent, ledger.get("evt-1"))

	// Redelivery is acknowledged without a second order
	require.NoError(t, c.HandleCommand(context.Background(), rec))
	assert.Len(t, c.Orders(), 1)
}

func TestClient_HandleCommandFailures(t *testing.T) {
	ledger := newFakeLedger()
	c := NewClient(testSession(&pipeDialer{}), 5, "REX001", Deps{Ledger: ledger}, zap.NewNop())

	err := c.HandleCommand(context.Background(), msg.Record{Value: []byte("{not json")})
	assert.True(t, errors.Is(err, msg.ErrPermanent))

	err = c.HandleCommand(context.Background(), command(t, msg.OrderCmdMsg{Action: msg.ActionPlace}))
	assert.ErrorIs(t, err, msg.ErrPermanent)

	err = c.HandleCommand(context.Background(), command(t, msg.OrderCmdMsg{EventID: "evt-2", Action: msg.ActionPlace, Side: "HOLD"}))
	assert.ErrorIs(t, err, msg.ErrPermanent)
	assert.Equal(t, store.StatusFailed, ledger.get("evt-2"))

	err = c.HandleCommand(context.Background(), command(t, msg.OrderCmdMsg{EventID: "evt-3", Action: "explode"}))
	assert.ErrorIs(t, err, msg.ErrPermanent)
	assert.Equal(t, store.StatusFailed, ledger.get("evt-3"))
}
