package fix

import "strings"

// Kind is the business class of a decoded message
type Kind int

const (
	KindOther Kind = iota
	KindLogon
	KindLogout
	KindHeartbeat
	KindTestRequest
	KindResendRequest
	KindReject
	KindSequenceReset
	KindSecurityList
	KindMarketDataSnapshot
	KindMarketDataIncremental
	KindExecutionReport
	KindOrderCancelReject
	KindTradeCaptureReport
)

var kindNames = map[Kind]string{
	KindOther:                 "other",
	KindLogon:                 "logon",
	KindLogout:                "logout",
	KindHeartbeat:             "heartbeat",
	KindTestRequest:           "test_request",
	KindResendRequest:         "resend_request",
	KindReject:                "reject",
	KindSequenceReset:         "sequence_reset",
	KindSecurityList:          "security_list",
	KindMarketDataSnapshot:    "md_snapshot",
	KindMarketDataIncremental: "md_incremental",
	KindExecutionReport:       "execution_report",
	KindOrderCancelReject:     "order_cancel_reject",
	KindTradeCaptureReport:    "trade_capture_report",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsSession reports whether k is handled by the session layer itself
func (k Kind) IsSession() bool {
	switch k {
	case KindLogon, KindLogout, KindHeartbeat, KindTestRequest, KindResendRequest, KindReject, KindSequenceReset:
		return true
	}
	return false
}

// Granularity sub-classifies incremental market data
type Granularity int

const (
	GranularityUnspecified Granularity = iota
	GranularityPrice
	GranularityOrder
)

// Class is the result of Classify
type Class struct {
	Kind        Kind
	Granularity Granularity
}

// Classify discriminates a decoded message. Execution reports are recognised
// by payload (ExecType/OrdStatus, or the dialect's text marker) rather than
// by MsgType alone, since the venue reuses 35=8 and 35=AE for other reports.
func Classify(m *Message, d *Dialect) Class {
	switch m.MsgType() {
	case MsgTypeLogon:
		return Class{Kind: KindLogon}
	case MsgTypeLogout:
		return Class{Kind: KindLogout}
	case MsgTypeHeartbeat:
		return Class{Kind: KindHeartbeat}
	case MsgTypeTestRequest:
		return Class{Kind: KindTestRequest}
	case MsgTypeResendRequest:
		return Class{Kind: KindResendRequest}
	case MsgTypeReject:
		return Class{Kind: KindReject}
	case MsgTypeSequenceReset:
		return Class{Kind: KindSequenceReset}
	case MsgTypeSecurityList:
		return Class{Kind: KindSecurityList}
	case MsgTypeMarketDataSnapshot:
		return Class{Kind: KindMarketDataSnapshot}
	case MsgTypeMarketDataIncremental:
		c := Class{Kind: KindMarketDataIncremental}
		switch m.GetOr(TagMDBookType, "") {
		case MDBookTypePriceDepth:
			c.Granularity = GranularityPrice
		case MDBookTypeOrderDepth:
			c.Granularity = GranularityOrder
		}
		return c
	case MsgTypeOrderCancelReject:
		return Class{Kind: KindOrderCancelReject}
	case MsgTypeExecutionReport:
		if m.Has(TagExecType) || m.Has(TagOrdStatus) || hasMarker(m, d) {
			return Class{Kind: KindExecutionReport}
		}
	case MsgTypeTradeCaptureReport:
		if hasMarker(m, d) {
			return Class{Kind: KindExecutionReport}
		}
		return Class{Kind: KindTradeCaptureReport}
	}
	return Class{Kind: KindOther}
}

func hasMarker(m *Message, d *Dialect) bool {
	if d == nil || d.ExecTextMarker == "" {
		return false
	}
	return strings.Contains(m.GetOr(TagText, ""), d.ExecTextMarker)
}
