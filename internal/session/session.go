package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/ismaiel54/dma-fix-gateway/internal/observability"
	"go.uber.org/zap"
)

// State of the session
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateLoggedOn
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateLoggedOn:
		return "LOGGED_ON"
	}
	return "UNKNOWN"
}

// Options configures a Session. Zero durations take the defaults below.
type Options struct {
	Addr        string
	Credentials fix.Credentials

	// HeartbeatInterval is sent as HeartBtInt(108). Default 60s.
	HeartbeatInterval time.Duration
	// IdleTimeout is the inbound silence that triggers a TestRequest.
	// Default 1.5x HeartbeatInterval.
	IdleTimeout time.Duration
	// EchoTimeout bounds the wait for the Heartbeat answering a TestRequest.
	// Default HeartbeatInterval.
	EchoTimeout time.Duration
	// TickInterval is how often keepalive deadlines are checked. Default 1s.
	TickInterval time.Duration

	ConnectTimeout time.Duration // default 10s
	WriteTimeout   time.Duration // default 10s

	// MaxConnectAttempts caps consecutive failed dials, 0 means unlimited
	MaxConnectAttempts int
	// BackOff paces reconnects. Default is a constant 5s.
	BackOff backoff.BackOff

	// ResetOnLogon sets ResetSeqNumFlag on the first logon of a trading day
	ResetOnLogon bool

	// ReserveBlock is how many sequence numbers and ClOrdIDs are persisted
	// ahead of the wire in one store write. Default 1. A larger block leaves
	// a gap in the numbering after a crash.
	ReserveBlock int
}

func (o *Options) setDefaults() {
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 60 * time.Second
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = o.HeartbeatInterval * 3 / 2
	}
	if o.EchoTimeout == 0 {
		o.EchoTimeout = o.HeartbeatInterval
	}
	if o.TickInterval == 0 {
		o.TickInterval = time.Second
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.BackOff == nil {
		o.BackOff = backoff.NewConstantBackOff(5 * time.Second)
	}
	if o.ReserveBlock <= 0 {
		o.ReserveBlock = 1
	}
}

// Handler receives every inbound application message in arrival order
type Handler func(m *fix.Message, class fix.Class)

// BuildFunc builds one outbound message. It runs under the write lock, so
// the sequence number it takes is the next one on the wire.
type BuildFunc func(b *fix.Builder) (*fix.Message, error)

// Session owns one FIX connection to a venue: connect, logon, keepalive,
// sequence numbering and reconnects.
type Session struct {
	opts     Options
	builder  *fix.Builder
	dialect  fix.Dialect
	encode   fix.EncodeOptions
	dialer   Dialer
	logger   *zap.Logger
	metrics  *observability.Metrics
	store    SequenceStore
	throttle *Throttle
	handler  Handler
	onState  func(State)
	now      func() time.Time

	mu           sync.Mutex
	state        State
	conn         net.Conn
	changed      chan struct{}
	everLoggedOn bool
	logonAcked   bool
	closed       bool
	fatalErr     error
	pendingTest  string
	testDeadline time.Time

	writeMu sync.Mutex

	inSeq    atomic.Int64
	lastSent atomic.Int64
	lastRecv atomic.Int64

	persistMu sync.Mutex
	saved     Sequences
	reserved  Sequences

	fatal  chan error
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a disconnected session. Call the With/On setters before Start.
func New(opts Options, builder *fix.Builder, dialer Dialer, logger *zap.Logger) *Session {
	opts.setDefaults()
	d := builder.Dialect()
	return &Session{
		opts:     opts,
		builder:  builder,
		dialect:  d,
		encode:   d.EncodeOptions(),
		dialer:   dialer,
		logger:   logger,
		throttle: NewThrottle(d.Throttle, time.Now),
		now:      time.Now,
		changed:  make(chan struct{}),
		fatal:    make(chan error, 1),
	}
}

// WithStore persists sequence numbers per trading day
func (s *Session) WithStore(store SequenceStore) *Session {
	s.store = store
	return s
}

// WithMetrics records session metrics
func (s *Session) WithMetrics(m *observability.Metrics) *Session {
	s.metrics = m
	return s
}

// OnMessage sets the inbound application message handler
func (s *Session) OnMessage(h Handler) *Session {
	s.handler = h
	return s
}

// OnStateChange registers a callback invoked after every state transition
func (s *Session) OnStateChange(f func(State)) *Session {
	s.onState = f
	return s
}

// Builder exposes the session's message builder
func (s *Session) Builder() *fix.Builder { return s.builder }

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Fatal delivers the error that stopped the session for good: a rejected
// logon or exhausted connect retries
func (s *Session) Fatal() <-chan error { return s.fatal }

// Start restores persisted sequence numbers and runs the connection loop in
// the background
func (s *Session) Start(ctx context.Context) error {
	if s.store != nil {
		seq, found, err := s.store.LoadSequences(ctx, TradingDay(s.now()))
		if err != nil {
			return fmt.Errorf("failed to load sequences: %w", err)
		}
		if found {
			counters := s.builder.Counters()
			counters.Seq.Set(seq.Out)
			counters.ClOrdID.Set(seq.ClOrdID)
			s.inSeq.Store(seq.In)
			s.saved = seq
			s.reserved = seq
			s.logger.Info("restored sequence numbers",
				zap.Int64("out_seq", seq.Out),
				zap.Int64("in_seq", seq.In),
				zap.Int64("cl_ord_id", seq.ClOrdID),
			)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(runCtx)
	return nil
}

// WaitLoggedOn blocks until the session is logged on
func (s *Session) WaitLoggedOn(ctx context.Context) error {
	for {
		s.mu.Lock()
		switch {
		case s.fatalErr != nil:
			err := s.fatalErr
			s.mu.Unlock()
			return err
		case s.closed:
			s.mu.Unlock()
			return ErrClosed
		case s.state == StateLoggedOn:
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Send builds and writes one application message. While a reconnect is in
// progress it waits for the new logon; a message whose write fails is
// rebuilt with a fresh sequence number once the session is back. A message
// that cannot be encoded or reserved fails at once and leaves the
// connection up.
func (s *Session) Send(ctx context.Context, build BuildFunc) (*fix.Message, error) {
	for {
		conn, err := s.awaitConn(ctx)
		if err != nil {
			return nil, err
		}

		s.writeMu.Lock()
		if !s.isCurrent(conn) {
			s.writeMu.Unlock()
			continue
		}
		m, err := build(s.builder)
		if err != nil {
			s.writeMu.Unlock()
			return nil, &Error{Kind: KindContract, Err: err}
		}
		raw, err := s.prepareLocked(m)
		if err != nil {
			s.writeMu.Unlock()
			return nil, err
		}
		err = s.writeRawLocked(conn, m, raw)
		s.writeMu.Unlock()
		if err == nil {
			return m, nil
		}

		s.logger.Warn("send failed, waiting for reconnect",
			zap.String("msg_type", m.MsgType()),
			zap.Error(err),
		)
		s.dropConn(conn)
	}
}

// Disconnect logs out, stops the background tasks and leaves the session
// Disconnected
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	loggedOn := s.state == StateLoggedOn
	s.mu.Unlock()

	if conn != nil && loggedOn {
		s.writeMu.Lock()
		if err := s.writeLocked(conn, s.builder.Logout("")); err != nil {
			s.logger.Debug("logout not sent", zap.Error(err))
		}
		s.writeMu.Unlock()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if conn != nil {
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.persist(context.Background())
	s.setState(StateDisconnected, nil)
	s.logger.Info("fix session disconnected", zap.String("reason", "shutdown"))
	return err
}

// run is the connection loop
func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()
	bo := s.opts.BackOff
	bo.Reset()
	attempts := 0

	for {
		if ctx.Err() != nil || s.isClosed() {
			s.setState(StateDisconnected, nil)
			return
		}

		s.setState(StateConnecting, nil)
		conn, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if kind, _ := KindOf(err); kind == KindContract {
				s.fail(err)
				return
			}
			attempts++
			s.logger.Warn("fix connect failed",
				zap.String("addr", s.opts.Addr),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			if s.opts.MaxConnectAttempts > 0 && attempts >= s.opts.MaxConnectAttempts {
				s.fail(transportErr(fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, err)))
				return
			}
			s.sleep(ctx, bo.NextBackOff())
			continue
		}
		attempts = 0
		bo.Reset()

		err = s.serve(ctx, conn)
		if kind, _ := KindOf(err); kind == KindAuth {
			s.logger.Error("logon rejected", zap.Error(err))
			s.fail(err)
			return
		}
		if ctx.Err() != nil || s.isClosed() {
			continue
		}
		s.metrics.IncReconnect()
		s.logger.Warn("fix session disconnected", zap.Error(err))
		s.sleep(ctx, bo.NextBackOff())
	}
}

// connect dials and sends Logon. The session is LoggedOn as soon as the
// Logon is written; a rejection arrives later as a Logout.
func (s *Session) connect(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()
	conn, err := s.dialer.DialContext(dialCtx, "tcp", s.opts.Addr)
	if err != nil {
		return nil, transportErr(err)
	}

	s.writeMu.Lock()
	reset := s.opts.ResetOnLogon && s.builder.Counters().Seq.Peek() == 0
	logon, err := s.builder.Logon(s.opts.HeartbeatInterval, s.opts.Credentials, reset)
	if err != nil {
		s.writeMu.Unlock()
		conn.Close()
		return nil, &Error{Kind: KindContract, Err: err}
	}
	if reset {
		s.inSeq.Store(0)
	}
	err = s.writeLocked(conn, logon)
	s.writeMu.Unlock()
	if err != nil {
		conn.Close()
		if kind, ok := KindOf(err); ok && kind == KindContract {
			return nil, err
		}
		return nil, transportErr(err)
	}

	now := s.now().UnixNano()
	s.lastRecv.Store(now)
	s.mu.Lock()
	s.everLoggedOn = true
	s.logonAcked = false
	s.pendingTest = ""
	s.mu.Unlock()
	s.setState(StateLoggedOn, conn)

	seq, _ := logon.SeqNum()
	s.logger.Info("fix session connected",
		zap.String("addr", s.opts.Addr),
		zap.Int64("logon_seq", seq),
		zap.Bool("reset_seq", reset),
	)
	s.persist(ctx)
	return conn, nil
}

// serve runs the reader and keepalive for one connection and returns the
// first error either of them hits
func (s *Session) serve(ctx context.Context, conn net.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 2)
	go func() { errc <- s.readLoop(conn) }()
	go func() { errc <- s.keepalive(connCtx, conn) }()

	err := <-errc
	cancel()
	s.dropConn(conn)
	<-errc
	s.persist(context.Background())
	return err
}

func (s *Session) readLoop(conn net.Conn) error {
	r := fix.NewReader(conn)
	for {
		raw, err := r.ReadMessage()
		if err != nil {
			if errors.Is(err, fix.ErrMalformed) {
				s.metrics.IncDecodeError()
				s.logger.Warn("decode failed", zap.Error(&Error{Kind: KindDecode, Err: err}))
				continue
			}
			return transportErr(err)
		}
		s.lastRecv.Store(s.now().UnixNano())

		m, err := fix.Decode(raw)
		if err != nil {
			s.metrics.IncDecodeError()
			s.logger.Warn("decode failed", zap.Error(&Error{Kind: KindDecode, Err: err}))
			continue
		}
		if err := s.handleInbound(conn, m); err != nil {
			return err
		}
	}
}

// handleInbound applies sequencing and session-level handling, then passes
// application messages to the handler
func (s *Session) handleInbound(conn net.Conn, m *fix.Message) error {
	class := fix.Classify(m, &s.dialect)
	s.metrics.IncReceived(class.Kind.String())

	seq, err := m.SeqNum()
	if err != nil {
		s.metrics.IncDecodeError()
		s.logger.Warn("decode failed", zap.Error(&Error{Kind: KindDecode, Err: err}))
		return nil
	}

	switch class.Kind {
	case fix.KindLogon:
		if reset, _ := m.Bool(fix.TagResetSeqNumFlag); reset {
			s.inSeq.Store(seq - 1)
		}
	case fix.KindSequenceReset:
		newSeq, err := m.Int(fix.TagNewSeqNo)
		if err != nil {
			s.logger.Warn("decode failed", zap.Error(&Error{Kind: KindDecode, Err: err}))
			return nil
		}
		s.inSeq.Store(newSeq - 1)
		s.logger.Info("inbound sequence reset", zap.Int64("new_seq", newSeq))
		return nil
	}

	expected := s.inSeq.Load() + 1
	switch {
	case seq > expected:
		s.metrics.IncSequenceGap()
		s.logger.Warn("inbound sequence gap",
			zap.Error(&Error{Kind: KindSequence, Err: fmt.Errorf("expected %d, received %d", expected, seq)}),
		)
		if err := s.sendSession(conn, func() *fix.Message {
			return s.builder.ResendRequest(expected, seq-1)
		}); err != nil {
			return transportErr(err)
		}
		s.inSeq.Store(seq)
	case seq < expected:
		if dup, _ := m.Bool(fix.TagPossDupFlag); !dup {
			s.logger.Warn("inbound sequence too low, dropped",
				zap.Int64("expected", expected),
				zap.Int64("received", seq),
			)
			return nil
		}
	default:
		s.inSeq.Store(seq)
	}

	switch class.Kind {
	case fix.KindLogon:
		s.mu.Lock()
		s.logonAcked = true
		s.mu.Unlock()
		s.logger.Info("logon acknowledged", zap.Int64("seq", seq))
		return nil
	case fix.KindLogout:
		text := m.GetOr(fix.TagText, "")
		s.mu.Lock()
		acked := s.logonAcked
		s.mu.Unlock()
		if !acked {
			return &Error{Kind: KindAuth, Err: fmt.Errorf("%w: %s", ErrAuthRejected, text)}
		}
		return transportErr(fmt.Errorf("%w: %s", ErrLoggedOut, text))
	case fix.KindHeartbeat:
		if id := m.GetOr(fix.TagTestReqID, ""); id != "" {
			s.mu.Lock()
			if id == s.pendingTest {
				s.pendingTest = ""
			}
			s.mu.Unlock()
		}
		return nil
	case fix.KindTestRequest:
		id := m.GetOr(fix.TagTestReqID, "")
		if err := s.sendSession(conn, func() *fix.Message { return s.builder.Heartbeat(id) }); err != nil {
			return transportErr(err)
		}
		return nil
	case fix.KindResendRequest:
		// Application messages are never replayed
		if err := s.sendSession(conn, s.builder.SequenceReset); err != nil {
			return transportErr(err)
		}
		return nil
	case fix.KindReject:
		s.logger.Warn("session reject",
			zap.String("ref_seq", m.GetOr(fix.TagRefSeqNum, "")),
			zap.String("text", m.GetOr(fix.TagText, "")),
		)
		return nil
	}

	if s.handler != nil {
		s.handler(m, class)
	}
	return nil
}

// keepalive sends Heartbeats on outbound idle and checks inbound silence
// with a TestRequest
func (s *Session) keepalive(ctx context.Context, conn net.Conn) error {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		now := s.now()
		s.persist(ctx)

		s.mu.Lock()
		pending := s.pendingTest
		deadline := s.testDeadline
		s.mu.Unlock()

		if pending != "" && now.After(deadline) {
			return transportErr(fmt.Errorf("%w: TestReqID %s", ErrHeartbeatTimeout, pending))
		}

		if pending == "" && now.Sub(time.Unix(0, s.lastRecv.Load())) > s.opts.IdleTimeout {
			err := s.sendSession(conn, func() *fix.Message {
				m, id := s.builder.TestRequest()
				// registered before the write so an immediate echo matches
				s.mu.Lock()
				s.pendingTest = id
				s.testDeadline = now.Add(s.opts.EchoTimeout)
				s.mu.Unlock()
				return m
			})
			if err != nil {
				return transportErr(err)
			}
			s.logger.Debug("test request sent")
			continue
		}

		if now.Sub(time.Unix(0, s.lastSent.Load())) >= s.opts.HeartbeatInterval {
			if err := s.sendSession(conn, func() *fix.Message { return s.builder.Heartbeat("") }); err != nil {
				return transportErr(err)
			}
		}
	}
}

// sendSession writes a session-level message on conn if conn is still the
// live connection
func (s *Session) sendSession(conn net.Conn, build func() *fix.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.isCurrent(conn) {
		return net.ErrClosed
	}
	return s.writeLocked(conn, build())
}

// writeLocked encodes and writes m. Caller holds writeMu.
func (s *Session) writeLocked(conn net.Conn, m *fix.Message) error {
	raw, err := s.prepareLocked(m)
	if err != nil {
		return err
	}
	return s.writeRawLocked(conn, m, raw)
}

// prepareLocked encodes m and reserves its numbers in the store. On failure
// the sequence number m took is handed back, since it never reached the
// wire. Caller holds writeMu.
func (s *Session) prepareLocked(m *fix.Message) ([]byte, error) {
	seq, _ := m.SeqNum()
	raw, err := fix.Encode(m, s.encode)
	if err != nil {
		s.builder.Counters().Seq.Release(seq)
		return nil, &Error{Kind: KindContract, Err: err}
	}
	if err := s.reserve(seq); err != nil {
		s.builder.Counters().Seq.Release(seq)
		return nil, err
	}
	return raw, nil
}

// writeRawLocked puts encoded bytes on conn. Caller holds writeMu.
func (s *Session) writeRawLocked(conn net.Conn, m *fix.Message, raw []byte) error {
	if err := conn.SetWriteDeadline(s.now().Add(s.opts.WriteTimeout)); err != nil {
		return err
	}
	if _, err := conn.Write(raw); err != nil {
		return err
	}
	s.lastSent.Store(s.now().UnixNano())
	s.metrics.IncSent(m.MsgType())

	if check, ok := s.throttle.Record(); ok {
		s.metrics.ObserveThrottle(check.RatePerMinute, check.Exceeded)
		s.logger.Debug("outbound rate",
			zap.Float64("window_rate_per_minute", check.RatePerMinute),
			zap.Float64("avg_per_minute", check.AvgPerMinute),
		)
		if check.Exceeded {
			s.logger.Warn("throttle ceiling exceeded",
				zap.Float64("rate_per_minute", check.RatePerMinute),
				zap.Float64("max_per_minute", s.dialect.Throttle.MaxPerMinute),
				zap.Duration("window", check.WindowDuration),
			)
		}
	}
	return nil
}

// awaitConn returns the live connection, waiting through reconnects
func (s *Session) awaitConn(ctx context.Context) (net.Conn, error) {
	for {
		s.mu.Lock()
		switch {
		case s.closed:
			s.mu.Unlock()
			return nil, ErrClosed
		case s.fatalErr != nil:
			err := s.fatalErr
			s.mu.Unlock()
			return nil, err
		case !s.everLoggedOn:
			s.mu.Unlock()
			return nil, &Error{Kind: KindContract, Err: ErrNotLoggedOn}
		case s.state == StateLoggedOn && s.conn != nil:
			conn := s.conn
			s.mu.Unlock()
			return conn, nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

func (s *Session) isCurrent(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == conn && s.state == StateLoggedOn
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// dropConn closes conn and leaves LoggedOn if conn was the live connection
func (s *Session) dropConn(conn net.Conn) {
	s.mu.Lock()
	current := s.conn == conn
	closed := s.closed
	s.mu.Unlock()
	conn.Close()
	switch {
	case current && closed:
		s.setState(StateDisconnected, nil)
	case current:
		s.setState(StateConnecting, nil)
	}
}

func (s *Session) setState(state State, conn net.Conn) {
	s.mu.Lock()
	if s.state == state && s.conn == conn {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.conn = conn
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	s.metrics.SetSessionState(int(state))
	if s.onState != nil {
		s.onState(state)
	}
}

// fail stops the session for good and reports err on Fatal
func (s *Session) fail(err error) {
	s.mu.Lock()
	s.fatalErr = err
	s.mu.Unlock()
	select {
	case s.fatal <- err:
	default:
	}
	s.setState(StateDisconnected, nil)
}

func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		d = s.opts.ConnectTimeout
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// reserve persists a high-water mark covering seq and every ClOrdID issued
// so far before they go on the wire. A restart after a crash resumes above
// it and never reissues a number.
func (s *Session) reserve(seq int64) error {
	if s.store == nil {
		return nil
	}
	clOrdID := s.builder.Counters().ClOrdID.Peek()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if seq <= s.reserved.Out && clOrdID <= s.reserved.ClOrdID {
		return nil
	}
	ahead := int64(s.opts.ReserveBlock - 1)
	next := Sequences{
		Out:     max(seq+ahead, s.reserved.Out),
		In:      s.inSeq.Load(),
		ClOrdID: max(clOrdID+ahead, s.reserved.ClOrdID),
	}
	if err := s.store.SaveSequences(context.Background(), TradingDay(s.now()), next); err != nil {
		return &Error{Kind: KindTransport, Err: fmt.Errorf("%w: %v", ErrReserve, err)}
	}
	s.reserved = next
	return nil
}

// persist saves the numbering state when it changed since the last save
func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	counters := s.builder.Counters()
	seq := Sequences{
		Out:     counters.Seq.Peek(),
		In:      s.inSeq.Load(),
		ClOrdID: counters.ClOrdID.Peek(),
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if seq == s.saved {
		return
	}
	if err := s.store.SaveSequences(ctx, TradingDay(s.now()), seq); err != nil {
		s.logger.Warn("failed to persist sequences", zap.Error(err))
		return
	}
	s.saved = seq
}
