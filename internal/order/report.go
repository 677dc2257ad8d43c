package order

import (
	"errors"
	"fmt"

	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/shopspring/decimal"
)

// ExecType values (tag 150)
const (
	ExecTypeNew        = "0"
	ExecTypePartial    = "1"
	ExecTypeFill       = "2"
	ExecTypeCanceled   = "4"
	ExecTypeReplaced   = "5"
	ExecTypePendingCxl = "6"
	ExecTypeRejected   = "8"
	ExecTypePendingNew = "A"
	ExecTypeExpired    = "C"
	ExecTypeTrade      = "F"
	ExecTypeStatus     = "I"
)

// OrdStatus values (tag 39) that differ from ExecType
const (
	OrdStatusPartiallyFilled = "1"
	OrdStatusFilled          = "2"
)

// ExecutionReport is the subset of an execution report the tracker consumes
type ExecutionReport struct {
	ClOrdID     string
	OrigClOrdID string
	OrderID     string
	ExecID      string
	ExecType    string
	OrdStatus   string
	Symbol      string
	Side        string
	Text        string
	LastQty     decimal.Decimal
	LastPx      decimal.Decimal
	CumQty      decimal.Decimal
	LeavesQty   decimal.Decimal
	AvgPx       decimal.Decimal
}

// IsFill reports whether the report carries a trade
func (r ExecutionReport) IsFill() bool {
	if !r.LastQty.IsPositive() {
		return false
	}
	switch r.ExecType {
	case ExecTypeTrade, ExecTypePartial, ExecTypeFill, "":
		return true
	}
	return false
}

// IsCancel reports whether the report confirms a cancel
func (r ExecutionReport) IsCancel() bool {
	if r.ExecType != "" {
		return r.ExecType == ExecTypeCanceled || r.ExecType == ExecTypeExpired
	}
	return r.OrdStatus == ExecTypeCanceled
}

// ParseExecutionReport reads an execution report. ClOrdID is mandatory;
// numeric fields that are present must parse.
func ParseExecutionReport(m *fix.Message) (ExecutionReport, error) {
	r := ExecutionReport{
		OrigClOrdID: m.GetOr(fix.TagOrigClOrdID, ""),
		OrderID:     m.GetOr(fix.TagOrderID, ""),
		ExecID:      m.GetOr(fix.TagExecID, ""),
		ExecType:    m.GetOr(fix.TagExecType, ""),
		OrdStatus:   m.GetOr(fix.TagOrdStatus, ""),
		Symbol:      m.GetOr(fix.TagSymbol, ""),
		Side:        m.GetOr(fix.TagSide, ""),
		Text:        m.GetOr(fix.TagText, ""),
	}
	var err error
	if r.ClOrdID, err = m.Get(fix.TagClOrdID); err != nil {
		return r, err
	}
	for _, f := range []struct {
		tag fix.Tag
		dst *decimal.Decimal
	}{
		{fix.TagLastQty, &r.LastQty},
		{fix.TagLastPx, &r.LastPx},
		{fix.TagCumQty, &r.CumQty},
		{fix.TagLeavesQty, &r.LeavesQty},
		{fix.TagAvgPx, &r.AvgPx},
	} {
		v, err := m.Decimal(f.tag)
		if errors.Is(err, fix.ErrFieldNotFound) {
			continue
		}
		if err != nil {
			return r, fmt.Errorf("execution report %s: %w", r.ClOrdID, err)
		}
		*f.dst = v
	}
	return r, nil
}

// CancelReject is the subset of an OrderCancelReject (35=9) the tracker needs
type CancelReject struct {
	ClOrdID     string
	OrigClOrdID string
	Text        string
}

// ParseCancelReject reads an OrderCancelReject
func ParseCancelReject(m *fix.Message) (CancelReject, error) {
	id, err := m.Get(fix.TagClOrdID)
	if err != nil {
		return CancelReject{}, err
	}
	return CancelReject{
		ClOrdID:     id,
		OrigClOrdID: m.GetOr(fix.TagOrigClOrdID, ""),
		Text:        m.GetOr(fix.TagText, ""),
	}, nil
}
