package fix

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampFormat is the UTC SendingTime layout with millisecond precision
const TimestampFormat = "20060102-15:04:05.000"

// FormatTimestamp renders t in UTC using TimestampFormat
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// Credentials authenticate the Logon
type Credentials struct {
	Username string
	Password string
}

// OrderRequest describes a limit order placement
type OrderRequest struct {
	ClOrdID    string
	Account    string
	Instrument string
	Side       string
	Price      decimal.Decimal
	Quantity   decimal.Decimal
}

// CancelRequest describes a cancel of a live order
type CancelRequest struct {
	ClOrdID     string
	OrigClOrdID string
	Account     string
	Instrument  string
	Side        string
	Quantity    decimal.Decimal
}

// ReplaceRequest describes a cancel/replace amendment
type ReplaceRequest struct {
	ClOrdID     string
	OrigClOrdID string
	Account     string
	Instrument  string
	Side        string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
}

// Builder composes outbound messages for one dialect. Every message returned
// by a Builder method has consumed exactly one outbound sequence number.
type Builder struct {
	dialect  Dialect
	counters *Counters
	now      func() time.Time
}

// NewBuilder binds a dialect to a set of counters
func NewBuilder(d Dialect, c *Counters) *Builder {
	return &Builder{dialect: d, counters: c, now: time.Now}
}

// WithClock replaces the time source, for tests
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Dialect returns the dialect the builder was created with
func (b *Builder) Dialect() Dialect {
	return b.dialect
}

// Counters returns the shared id sources
func (b *Builder) Counters() *Counters {
	return b.counters
}

func (b *Builder) header(msgType string, extra int) *Message {
	d := &b.dialect
	m := NewMessage(8 + extra)
	m.Add(TagBeginString, d.BeginString).
		Add(TagMsgType, msgType).
		AddInt(TagMsgSeqNum, b.counters.Seq.Next()).
		Add(TagSenderCompID, d.SenderCompID).
		Add(TagSendingTime, FormatTimestamp(b.now())).
		Add(TagTargetCompID, d.TargetCompID)
	if d.OnBehalfOfCompID != "" {
		m.Add(TagOnBehalfOfCompID, d.OnBehalfOfCompID)
	}
	if d.DeliverToCompID != "" {
		m.Add(TagDeliverToCompID, d.DeliverToCompID)
	}
	return m
}

func (b *Builder) transactTime(m *Message) {
	m.Add(TagTransactTime, m.GetOr(TagSendingTime, ""))
}

func (b *Builder) party(m *Message, role string) {
	m.Add(TagNoPartyIDs, "1").
		Add(TagPartyID, b.dialect.PartyID).
		Add(TagPartyIDSource, PartyIDSourceProprietary).
		Add(TagPartyRole, role)
}

// instrument writes the instrument fields for the dialect. With
// InstrumentSecurityID the id is validated before the header is built.
func (b *Builder) instrument(m *Message, sec *SecurityID, instrument string) {
	if sec == nil {
		m.Add(TagSymbol, instrument)
		return
	}
	m.Add(TagSymbol, sec.Symbol).
		Add(TagSecurityID, sec.Raw).
		Add(TagSecurityType, "CS").
		Add(TagSettlType, sec.SettlType).
		Add(TagCurrency, sec.Currency)
}

func (b *Builder) resolveInstrument(instrument string) (*SecurityID, error) {
	if instrument == "" {
		return nil, fmt.Errorf("%w: instrument", ErrMissingField)
	}
	if err := CheckEncodable(TagSymbol, instrument); err != nil {
		return nil, err
	}
	if b.dialect.Instrument != InstrumentSecurityID {
		return nil, nil
	}
	sec, err := ParseSecurityID(instrument)
	if err != nil {
		return nil, err
	}
	return &sec, nil
}

func (b *Builder) requireParty() error {
	if b.dialect.PartyID == "" {
		return fmt.Errorf("%w: party id", ErrMissingField)
	}
	return nil
}

// Logon builds 35=A. resetSeq sets ResetSeqNumFlag(141).
func (b *Builder) Logon(heartbeat time.Duration, creds Credentials, resetSeq bool) (*Message, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("%w: logon credentials", ErrMissingField)
	}
	if heartbeat < time.Second {
		return nil, fmt.Errorf("%w: heartbeat interval %s", ErrFieldMalformed, heartbeat)
	}
	if err := CheckEncodable(TagUsername, creds.Username); err != nil {
		return nil, err
	}
	if err := CheckEncodable(TagPassword, creds.Password); err != nil {
		return nil, err
	}
	m := b.header(MsgTypeLogon, 6)
	m.Add(TagEncryptMethod, "0").
		AddInt(TagHeartBtInt, int64(heartbeat/time.Second))
	if resetSeq {
		m.Add(TagResetSeqNumFlag, "Y")
	}
	m.Add(TagUsername, creds.Username).
		Add(TagPassword, creds.Password).
		Add(TagDefaultApplVerID, b.dialect.ApplVerID)
	return m, nil
}

// Logout builds 35=5
func (b *Builder) Logout(text string) *Message {
	m := b.header(MsgTypeLogout, 1)
	if text != "" {
		m.Add(TagText, text)
	}
	return m
}

// Heartbeat builds 35=0, echoing testReqID when answering a TestRequest
func (b *Builder) Heartbeat(testReqID string) *Message {
	m := b.header(MsgTypeHeartbeat, 1)
	if testReqID != "" {
		m.Add(TagTestReqID, testReqID)
	}
	return m
}

// TestRequest builds 35=1 with a fresh TestReqID
func (b *Builder) TestRequest() (*Message, string) {
	id := b.counters.TestReqID.NextID()
	return b.header(MsgTypeTestRequest, 1).Add(TagTestReqID, id), id
}

// ResendRequest builds 35=2 for the inclusive range [begin, end]. end 0 means
// everything after begin.
func (b *Builder) ResendRequest(begin, end int64) *Message {
	return b.header(MsgTypeResendRequest, 2).
		AddInt(TagBeginSeqNo, begin).
		AddInt(TagEndSeqNo, end)
}

// SequenceReset builds 35=4 in reset mode, moving the peer's expected
// inbound number to the sequence number following this message.
func (b *Builder) SequenceReset() *Message {
	m := b.header(MsgTypeSequenceReset, 2)
	seq, _ := m.Int(TagMsgSeqNum)
	return m.Add(TagGapFillFlag, "N").AddInt(TagNewSeqNo, seq+1)
}

// SecurityListRequest builds 35=x for all securities and returns its request id
func (b *Builder) SecurityListRequest() (*Message, string) {
	id := b.counters.MDReqID.NextID()
	m := b.header(MsgTypeSecurityListRequest, 3).
		Add(TagSubscriptionRequestType, b.dialect.SecurityListSubscription).
		Add(TagSecurityReqID, id).
		Add(TagSecurityListRequestType, SecurityListAll)
	return m, id
}

// MarketDataSubscribe builds 35=V for bids and offers of one instrument and
// returns the MDReqID used.
func (b *Builder) MarketDataSubscribe(instrument string, depth int) (*Message, string, error) {
	if depth <= 0 {
		return nil, "", fmt.Errorf("%w: market depth %d", ErrFieldMalformed, depth)
	}
	sec, err := b.resolveInstrument(instrument)
	if err != nil {
		return nil, "", err
	}
	id := b.counters.MDReqID.NextID()
	return b.marketData(id, b.dialect.MDSubscriptionType, instrument, sec, depth), id, nil
}

// MarketDataUnsubscribe builds 35=V cancelling the subscription mdReqID
func (b *Builder) MarketDataUnsubscribe(instrument, mdReqID string, depth int) (*Message, error) {
	if mdReqID == "" {
		return nil, fmt.Errorf("%w: MDReqID", ErrMissingField)
	}
	if instrument == "" {
		return nil, fmt.Errorf("%w: instrument", ErrMissingField)
	}
	// unsubscribes always name the instrument by Symbol(55)
	return b.marketData(mdReqID, SubscriptionUnsubscribe, instrument, nil, depth), nil
}

func (b *Builder) marketData(id, subType, instrument string, sec *SecurityID, depth int) *Message {
	m := b.header(MsgTypeMarketDataRequest, 16).
		Add(TagMDReqID, id).
		Add(TagSubscriptionRequestType, subType).
		Add(TagMarketDepth, strconv.Itoa(depth)).
		Add(TagMDUpdateType, b.dialect.MDUpdateType).
		Add(TagAggregatedBook, "Y")
	if b.dialect.MDEntryOrigin != "" {
		m.Add(TagMDEntryOrigin, b.dialect.MDEntryOrigin)
	}
	m.Add(TagNoMDEntryTypes, "2").
		Add(TagMDEntryType, MDEntryTypeBid).
		Add(TagMDEntryType, MDEntryTypeOffer).
		Add(TagNoRelatedSym, "1")
	b.instrument(m, sec, instrument)
	return m
}

func validSide(side string) error {
	if side != SideBuy && side != SideSell {
		return fmt.Errorf("%w: side %q", ErrFieldMalformed, side)
	}
	return nil
}

func positive(name string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrFieldMalformed, name)
	}
	return nil
}

// NewOrderSingle builds 35=D for a day limit order
func (b *Builder) NewOrderSingle(req OrderRequest) (*Message, error) {
	if req.ClOrdID == "" || req.Account == "" {
		return nil, fmt.Errorf("%w: ClOrdID and Account", ErrMissingField)
	}
	if err := CheckEncodable(TagAccount, req.Account); err != nil {
		return nil, err
	}
	if err := validSide(req.Side); err != nil {
		return nil, err
	}
	if err := positive("price", req.Price); err != nil {
		return nil, err
	}
	if err := positive("quantity", req.Quantity); err != nil {
		return nil, err
	}
	sec, err := b.resolveInstrument(req.Instrument)
	if err != nil {
		return nil, err
	}
	if b.dialect.PartyOnNewOrder {
		if err := b.requireParty(); err != nil {
			return nil, err
		}
	}

	m := b.header(MsgTypeNewOrderSingle, 20).
		Add(TagAccount, req.Account).
		Add(TagClOrdID, req.ClOrdID).
		AddDecimal(TagOrderQty, req.Quantity).
		Add(TagOrdType, OrdTypeLimit).
		AddDecimal(TagPrice, req.Price).
		Add(TagSide, req.Side)
	b.instrument(m, sec, req.Instrument)
	b.transactTime(m)
	if sec != nil {
		b.equityOrderFields(m, req.Account, req.Quantity)
	}
	if b.dialect.PartyOnNewOrder {
		b.party(m, b.dialect.OrderPartyRole)
	}
	return m, nil
}

func (b *Builder) equityOrderFields(m *Message, account string, qty decimal.Decimal) {
	capacity := "A"
	if b.dialect.Owns(account) {
		capacity = "P"
	}
	m.Add(TagTimeInForce, "0").
		Add(TagOrderCapacity, capacity).
		AddDecimal(TagDisplayQty, qty).
		Add(TagTradeFlag, "1")
}

// OrderCancelRequest builds 35=F
func (b *Builder) OrderCancelRequest(req CancelRequest) (*Message, error) {
	if req.ClOrdID == "" || req.OrigClOrdID == "" {
		return nil, fmt.Errorf("%w: ClOrdID and OrigClOrdID", ErrMissingField)
	}
	if err := validSide(req.Side); err != nil {
		return nil, err
	}
	if err := b.requireParty(); err != nil {
		return nil, err
	}
	sec, err := b.resolveInstrument(req.Instrument)
	if err != nil {
		return nil, err
	}

	m := b.header(MsgTypeOrderCancelRequest, 16)
	if req.Account != "" {
		m.Add(TagAccount, req.Account)
	}
	m.Add(TagClOrdID, req.ClOrdID)
	if req.Quantity.IsPositive() {
		m.AddDecimal(TagOrderQty, req.Quantity)
	}
	m.Add(TagOrigClOrdID, req.OrigClOrdID).
		Add(TagSide, req.Side)
	b.instrument(m, sec, req.Instrument)
	b.transactTime(m)
	b.party(m, b.dialect.OrderPartyRole)
	return m, nil
}

// OrderCancelReplaceRequest builds 35=G
func (b *Builder) OrderCancelReplaceRequest(req ReplaceRequest) (*Message, error) {
	if req.ClOrdID == "" || req.OrigClOrdID == "" || req.Account == "" {
		return nil, fmt.Errorf("%w: ClOrdID, OrigClOrdID and Account", ErrMissingField)
	}
	if err := validSide(req.Side); err != nil {
		return nil, err
	}
	if err := positive("price", req.Price); err != nil {
		return nil, err
	}
	if err := positive("quantity", req.Quantity); err != nil {
		return nil, err
	}
	if err := b.requireParty(); err != nil {
		return nil, err
	}
	sec, err := b.resolveInstrument(req.Instrument)
	if err != nil {
		return nil, err
	}

	m := b.header(MsgTypeOrderCancelReplaceRequest, 22).
		Add(TagAccount, req.Account).
		Add(TagClOrdID, req.ClOrdID).
		AddDecimal(TagOrderQty, req.Quantity).
		Add(TagOrdType, OrdTypeLimit).
		Add(TagOrigClOrdID, req.OrigClOrdID).
		AddDecimal(TagPrice, req.Price).
		Add(TagSide, req.Side)
	b.instrument(m, sec, req.Instrument)
	b.transactTime(m)
	if sec != nil {
		b.equityOrderFields(m, req.Account, req.Quantity)
	}
	b.party(m, b.dialect.OrderPartyRole)
	return m, nil
}

// OrderStatusRequest builds 35=H for a venue order id
func (b *Builder) OrderStatusRequest(orderID, instrument, side string) (*Message, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: OrderID", ErrMissingField)
	}
	if err := validSide(side); err != nil {
		return nil, err
	}
	if err := b.requireParty(); err != nil {
		return nil, err
	}
	sec, err := b.resolveInstrument(instrument)
	if err != nil {
		return nil, err
	}
	m := b.header(MsgTypeOrderStatusRequest, 12).
		Add(TagOrderID, orderID).
		Add(TagSide, side)
	b.instrument(m, sec, instrument)
	b.party(m, b.dialect.OrderPartyRole)
	return m, nil
}

// OrderMassCancelRequest builds 35=q cancelling every order in the dialect's
// scope and returns the ClOrdID assigned to the request.
func (b *Builder) OrderMassCancelRequest() (*Message, string, error) {
	switch b.dialect.MassCancel {
	case MassCancelMarketSegment:
		if b.dialect.MarketSegmentID == "" {
			return nil, "", fmt.Errorf("%w: market segment", ErrMissingField)
		}
	case MassCancelTargetParty:
		if err := b.requireParty(); err != nil {
			return nil, "", err
		}
	}
	id := b.counters.ClOrdID.NextID()
	m := b.header(MsgTypeOrderMassCancelRequest, 8).
		Add(TagClOrdID, id).
		Add(TagMassCancelRequestType, MassCancelAllOrders)
	switch b.dialect.MassCancel {
	case MassCancelMarketSegment:
		m.Add(TagMarketSegmentID, b.dialect.MarketSegmentID)
	case MassCancelTargetParty:
		m.Add(TagNoTargetPartyIDs, "1").
			Add(TagTargetPartyID, b.dialect.PartyID).
			Add(TagTargetPartyIDSource, PartyIDSourceProprietary).
			Add(TagTargetPartyRole, b.dialect.OrderPartyRole)
	}
	b.transactTime(m)
	return m, id, nil
}

// TradeCaptureReportRequest builds 35=AD for the party's trades and returns
// the TradeRequestID.
func (b *Builder) TradeCaptureReportRequest() (*Message, string, error) {
	if err := b.requireParty(); err != nil {
		return nil, "", err
	}
	id := b.counters.TradeReqID.NextID()
	m := b.header(MsgTypeTradeCaptureReportRequest, 10).
		Add(TagTradeRequestID, id).
		Add(TagTradeRequestType, b.dialect.TradeRequestType)
	m.Fields = append(m.Fields, b.dialect.TradeCaptureExtra...)
	b.party(m, b.dialect.TradeReportPartyRole)
	return m, id, nil
}
