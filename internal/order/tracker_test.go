package order

import (
	"testing"

	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func placeOrder(t *testing.T, tr *Tracker, id, qty string) {
	t.Helper()
	_, err := tr.Place(fix.OrderRequest{
		ClOrdID:    id,
		Account:    "REX001",
		Instrument: "DLR/MAR24",
		Side:       fix.SideBuy,
		Price:      d("10"),
		Quantity:   d(qty),
	})
	require.NoError(t, err)
	tr.Sent(id)
}

func TestTracker_ScenarioD_WeightedAverage(t *testing.T) {
	var events []Event
	tr := NewTracker(1, func(u Update) { events = append(events, u.Event) })
	placeOrder(t, tr, "1", "50")

	o, _ := tr.Order("1")
	assert.Equal(t, StatusPendingNew, o.Status)

	require.True(t, tr.Apply(ExecutionReport{ClOrdID: "1", OrderID: "X1", ExecType: ExecTypeNew, OrdStatus: "0"}))
	require.True(t, tr.Apply(ExecutionReport{ClOrdID: "1", ExecID: "e1", ExecType: ExecTypeTrade, LastQty: d("20"), LastPx: d("10.0")}))

	o, _ = tr.Order("1")
	assert.Equal(t, StatusPartiallyFilled, o.Status)
	assert.True(t, o.RemainingQty.Equal(d("30")))

	require.True(t, tr.Apply(ExecutionReport{ClOrdID: "1", ExecID: "e2", ExecType: ExecTypeTrade, LastQty: d("30"), LastPx: d("11.0")}))

	o, ok := tr.Order("1")
	require.True(t, ok)
	assert.Equal(t, StatusFilled, o.Status)
	assert.True(t, o.CumQty.Equal(d("50")), "cum %s", o.CumQty)
	assert.True(t, o.AvgPx.Equal(d("10.6")), "avg %s", o.AvgPx)
	assert.True(t, o.RemainingQty.IsZero())
	assert.Equal(t, "X1", o.OrderID)

	assert.Equal(t, []Event{EventPlaced, EventSent, EventAccepted, EventFill, EventFill}, events)
}

func TestTracker_FillInvariants(t *testing.T) {
	tr := NewTracker(1, nil)
	placeOrder(t, tr, "1", "10")

	// Cumulative plus remaining never exceeds the ordered quantity
	tr.Apply(ExecutionReport{ClOrdID: "1", ExecID: "a", ExecType: ExecTypeTrade, LastQty: d("4"), LastPx: d("1")})
	tr.Apply(ExecutionReport{ClOrdID: "1", ExecID: "b", ExecType: ExecTypeTrade, LastQty: d("4"), LastPx: d("2")})
	o, _ := tr.Order("1")
	assert.True(t, o.CumQty.Add(o.RemainingQty).LessThanOrEqual(o.OrderQty))
	assert.True(t, o.AvgPx.Equal(d("1.5")))

	// Duplicate ExecID is ignored
	assert.False(t, tr.Apply(ExecutionReport{ClOrdID: "1", ExecID: "b", ExecType: ExecTypeTrade, LastQty: d("4"), LastPx: d("2")}))
	o, _ = tr.Order("1")
	assert.True(t, o.CumQty.Equal(d("8")))

	// Terminal orders take no more fills
	tr.Apply(ExecutionReport{ClOrdID: "1", ExecID: "c", ExecType: ExecTypeTrade, LastQty: d("2"), LastPx: d("2")})
	assert.False(t, tr.Apply(ExecutionReport{ClOrdID: "1", ExecID: "d", ExecType: ExecTypeTrade, LastQty: d("2"), LastPx: d("2")}))
	o, _ = tr.Order("1")
	assert.Equal(t, StatusFilled, o.Status)
	assert.True(t, o.CumQty.Equal(d("10")))
}

func TestTracker_ScenarioE_SingleConfirmationVenue(t *testing.T) {
	var cancels int
	tr := NewTracker(1, func(u Update) {
		if u.Event == EventCancelled {
			cancels++
		}
	})
	placeOrder(t, tr, "1", "10")
	_, err := tr.Cancel("1", "2")
	require.NoError(t, err)

	assert.True(t, tr.Apply(ExecutionReport{ClOrdID: "2", OrigClOrdID: "1", ExecType: ExecTypeCanceled}))
	assert.False(t, tr.Apply(ExecutionReport{ClOrdID: "2", OrigClOrdID: "1", ExecType: ExecTypeCanceled}))

	o, _ := tr.Order("1")
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, "2", o.ClOrdID)
	assert.Equal(t, "1", o.PreviousClOrdID)
	assert.Equal(t, 1, cancels)
}

func TestTracker_ScenarioE_DoubleConfirmationWithInvalidID(t *testing.T) {
	var cancels int
	tr := NewTracker(2, func(u Update) {
		if u.Event == EventCancelled {
			cancels++
		}
	})
	placeOrder(t, tr, "1", "10")
	placeOrder(t, tr, "5", "10")
	_, err := tr.Cancel("1", "2")
	require.NoError(t, err)

	// First confirmation carries an id nobody issued
	assert.False(t, tr.Apply(ExecutionReport{ClOrdID: "0", ExecType: ExecTypeCanceled}))
	o, _ := tr.Order("1")
	assert.Equal(t, StatusPendingNew, o.Status)

	assert.True(t, tr.Apply(ExecutionReport{ClOrdID: "2", OrigClOrdID: "1", ExecType: ExecTypeCanceled}))
	o, _ = tr.Order("2")
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, 1, cancels)

	// The other order is untouched
	other, _ := tr.Order("5")
	assert.Equal(t, StatusPendingNew, other.Status)

	// Late duplicates never produce a second terminal transition
	assert.False(t, tr.Apply(ExecutionReport{ClOrdID: "2", ExecType: ExecTypeCanceled}))
	assert.False(t, tr.Apply(ExecutionReport{ClOrdID: "0", ExecType: ExecTypeCanceled}))
	assert.Equal(t, 1, cancels)
}

func TestTracker_InterleavedDoubleConfirmations(t *testing.T) {
	var cancelled []string
	tr := NewTracker(2, func(u Update) {
		if u.Event == EventCancelled {
			cancelled = append(cancelled, u.Order.ClOrdID)
		}
	})
	placeOrder(t, tr, "1", "10")
	placeOrder(t, tr, "2", "10")
	_, err := tr.Cancel("1", "3")
	require.NoError(t, err)
	_, err = tr.Cancel("2", "4")
	require.NoError(t, err)

	// Both leading confirmations carry an id nobody issued
	assert.False(t, tr.Apply(ExecutionReport{ClOrdID: "0", ExecType: ExecTypeCanceled}))
	assert.False(t, tr.Apply(ExecutionReport{ClOrdID: "0", ExecType: ExecTypeCanceled}))
	for _, id := range []string{"1", "2"} {
		o, _ := tr.Order(id)
		assert.Equal(t, StatusPendingNew, o.Status, "order %s", id)
	}

	// A third unknown confirmation has no slot left and is discarded
	assert.False(t, tr.Apply(ExecutionReport{ClOrdID: "0", ExecType: ExecTypeCanceled}))

	assert.True(t, tr.Apply(ExecutionReport{ClOrdID: "4", OrigClOrdID: "2", ExecType: ExecTypeCanceled}))
	assert.True(t, tr.Apply(ExecutionReport{ClOrdID: "3", OrigClOrdID: "1", ExecType: ExecTypeCanceled}))

	o1, _ := tr.Order("1")
	o2, _ := tr.Order("2")
	assert.Equal(t, StatusCancelled, o1.Status)
	assert.Equal(t, StatusCancelled, o2.Status)
	assert.Equal(t, []string{"4", "3"}, cancelled)
}

func TestTracker_UnknownConfirmationsNeverFinalize(t *testing.T) {
	tr := NewTracker(2, nil)
	placeOrder(t, tr, "1", "10")
	_, err := tr.Cancel("1", "2")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.False(t, tr.Apply(ExecutionReport{ClOrdID: "0", ExecType: ExecTypeCanceled}))
	}
	o, _ := tr.Order("1")
	assert.Equal(t, StatusPendingNew, o.Status)

	assert.True(t, tr.Apply(ExecutionReport{ClOrdID: "2", OrigClOrdID: "1", ExecType: ExecTypeCanceled}))
}

func TestTracker_OverfillIsClampedAndReported(t *testing.T) {
	var last Update
	tr := NewTracker(1, func(u Update) { last = u })
	placeOrder(t, tr, "1", "10")

	require.True(t, tr.Apply(ExecutionReport{ClOrdID: "1", ExecID: "a", ExecType: ExecTypeTrade, LastQty: d("6"), LastPx: d("2")}))
	require.True(t, tr.Apply(ExecutionReport{ClOrdID: "1", ExecID: "b", ExecType: ExecTypeTrade, LastQty: d("7"), LastPx: d("4")}))

	o, _ := tr.Order("1")
	assert.Equal(t, StatusFilled, o.Status)
	assert.True(t, o.CumQty.Equal(d("10")), "cum %s", o.CumQty)
	assert.True(t, o.RemainingQty.IsZero())
	assert.True(t, o.CumQty.Add(o.RemainingQty).LessThanOrEqual(o.OrderQty))
	assert.True(t, o.AvgPx.Equal(d("2.8")), "avg %s", o.AvgPx)

	assert.True(t, last.FillQty.Equal(d("4")))
	assert.True(t, last.Overfill.Equal(d("3")))
}

func TestTracker_UnsolicitedCancel(t *testing.T) {
	tr := NewTracker(2, nil)
	placeOrder(t, tr, "1", "10")

	// Venue-initiated cancel (mass cancel) on the order's own id
	assert.True(t, tr.Apply(ExecutionReport{ClOrdID: "1", ExecType: ExecTypeCanceled}))
	o, _ := tr.Order("1")
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, "1", o.ClOrdID)

	_, err := tr.Cancel("1", "9")
	assert.ErrorIs(t, err, ErrOrderTerminal)
}

func TestTracker_ReplaceChain(t *testing.T) {
	tr := NewTracker(1, nil)
	placeOrder(t, tr, "1", "10")
	tr.Apply(ExecutionReport{ClOrdID: "1", ExecID: "f1", ExecType: ExecTypeTrade, LastQty: d("4"), LastPx: d("10")})

	_, err := tr.Replace("1", "2", d("11"), d("12"))
	require.NoError(t, err)
	require.True(t, tr.Apply(ExecutionReport{ClOrdID: "2", OrigClOrdID: "1", ExecType: ExecTypeReplaced}))

	o, ok := tr.Order("2")
	require.True(t, ok)
	assert.Equal(t, "2", o.ClOrdID)
	assert.Equal(t, "1", o.PreviousClOrdID)
	assert.True(t, o.Price.Equal(d("11")))
	assert.True(t, o.RemainingQty.Equal(d("8")), "remaining %s", o.RemainingQty)
	assert.True(t, o.CumQty.Equal(d("4")))
	assert.Equal(t, StatusPartiallyFilled, o.Status)

	// Old id still resolves to the same logical order
	old, _ := tr.Order("1")
	assert.Equal(t, o, old)

	// Fill history carries forward
	tr.Apply(ExecutionReport{ClOrdID: "2", ExecID: "f2", ExecType: ExecTypeTrade, LastQty: d("8"), LastPx: d("11")})
	o, _ = tr.Order("2")
	assert.Equal(t, StatusFilled, o.Status)
	assert.True(t, o.AvgPx.Equal(d("10.6666666666666667")) || o.AvgPx.Round(4).Equal(d("10.6667")))
}

func TestTracker_CancelRejectAndOrderReject(t *testing.T) {
	tr := NewTracker(1, nil)
	placeOrder(t, tr, "1", "10")
	_, err := tr.Cancel("1", "2")
	require.NoError(t, err)

	assert.True(t, tr.ApplyCancelReject(CancelReject{ClOrdID: "2", OrigClOrdID: "1", Text: "too late"}))
	_, ok := tr.Order("2")
	assert.False(t, ok, "rejected cancel id must not resolve")
	o, _ := tr.Order("1")
	assert.Equal(t, StatusPendingNew, o.Status)
	assert.Equal(t, "too late", o.Text)

	placeOrder(t, tr, "3", "10")
	assert.True(t, tr.Apply(ExecutionReport{ClOrdID: "3", ExecType: ExecTypeRejected, Text: "no margin"}))
	o, _ = tr.Order("3")
	assert.Equal(t, StatusRejected, o.Status)
	assert.True(t, o.Status.Terminal())
}

func TestTracker_UnknownAndDuplicateIDs(t *testing.T) {
	tr := NewTracker(1, nil)
	placeOrder(t, tr, "1", "10")

	_, err := tr.Place(fix.OrderRequest{ClOrdID: "1"})
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, err = tr.Cancel("404", "2")
	assert.ErrorIs(t, err, ErrUnknownOrder)

	assert.False(t, tr.Apply(ExecutionReport{ClOrdID: "404", ExecType: ExecTypeNew}))
	assert.Len(t, tr.Orders(), 1)
}

func TestParseExecutionReport(t *testing.T) {
	m := fix.NewMessage(12).
		Add(fix.TagBeginString, "FIXT.1.1").
		Add(fix.TagMsgType, fix.MsgTypeExecutionReport).
		Add(fix.TagClOrdID, "7").
		Add(fix.TagOrderID, "OID").
		Add(fix.TagExecID, "E1").
		Add(fix.TagExecType, "F").
		Add(fix.TagOrdStatus, "1").
		Add(fix.TagLastQty, "3").
		Add(fix.TagLastPx, "99.5").
		Add(fix.TagText, "Operada")

	r, err := ParseExecutionReport(m)
	require.NoError(t, err)
	assert.Equal(t, "7", r.ClOrdID)
	assert.True(t, r.IsFill())
	assert.False(t, r.IsCancel())
	assert.True(t, r.LastPx.Equal(d("99.5")))
	assert.True(t, r.CumQty.IsZero())

	m.Add(fix.TagCumQty, "abc")
	_, err = ParseExecutionReport(m)
	assert.ErrorIs(t, err, fix.ErrFieldMalformed)

	_, err = ParseExecutionReport(fix.NewMessage(0).Add(fix.TagMsgType, "8"))
	assert.ErrorIs(t, err, fix.ErrFieldNotFound)
}
