package fix

import (
	"fmt"
	"strconv"
	"strings"
)

// BookMode selects how market data messages rebuild a book
type BookMode int

const (
	// BookFullRefresh treats every market data message as a complete book.
	BookFullRefresh BookMode = iota
	// BookIncremental applies add/change/delete entries to the existing book.
	BookIncremental
)

func (m BookMode) String() string {
	switch m {
	case BookFullRefresh:
		return "full_refresh"
	case BookIncremental:
		return "incremental"
	default:
		return "unknown"
	}
}

// MassCancelMode selects how an OrderMassCancelRequest names its scope
type MassCancelMode int

const (
	MassCancelMarketSegment MassCancelMode = iota
	MassCancelTargetParty
)

// InstrumentStyle selects how an instrument is written into a message
type InstrumentStyle int

const (
	// InstrumentSymbol writes the instrument as Symbol(55).
	InstrumentSymbol InstrumentStyle = iota
	// InstrumentSecurityID expands SYMBOL-SETTL-...-CCY into 55/48/167/63/15.
	InstrumentSecurityID
)

// ThrottlePolicy describes an advisory outbound rate ceiling. A zero Window
// disables the check.
type ThrottlePolicy struct {
	Window       int
	MaxPerMinute float64
}

// Dialect is the venue descriptor consumed by the builders, the session and
// the book engine.
type Dialect struct {
	Name        string
	BeginString string
	ApplVerID   string

	SenderCompID     string
	TargetCompID     string
	OnBehalfOfCompID string
	DeliverToCompID  string

	PartyID              string
	OrderPartyRole       string
	TradeReportPartyRole string
	// PartyOnNewOrder adds the party group to NewOrderSingle.
	PartyOnNewOrder bool

	MassCancel      MassCancelMode
	MarketSegmentID string

	Instrument    InstrumentStyle
	SymbolTag     Tag
	OwnedAccounts []string

	MDSubscriptionType       string
	MDUpdateType             string
	MDEntryOrigin            string
	SecurityListSubscription string
	TradeRequestType         string
	TradeCaptureExtra        []Field

	BookMode BookMode
	Throttle ThrottlePolicy

	// ExecTextMarker classifies a message as an execution when Text(58)
	// contains it. Empty disables text detection.
	ExecTextMarker string
	// CancelConfirmations is the number of cancel confirmations the venue
	// sends per cancel request; the last one finalizes the order.
	CancelConfirmations int

	OmitTrailer bool
}

// ROFEX returns the derivatives venue dialect: full refresh books, routing
// via OnBehalfOf/DeliverTo and mass cancel by market segment.
func ROFEX() Dialect {
	return Dialect{
		Name:                     "rofex",
		BeginString:              "FIXT.1.1",
		ApplVerID:                "9",
		TargetCompID:             "ROFX",
		OrderPartyRole:           "11",
		TradeReportPartyRole:     "24",
		MassCancel:               MassCancelMarketSegment,
		MarketSegmentID:          "DDF",
		Instrument:               InstrumentSymbol,
		SymbolTag:                TagSymbol,
		MDSubscriptionType:       SubscriptionSubscribe,
		MDUpdateType:             "0",
		MDEntryOrigin:            "D",
		SecurityListSubscription: SubscriptionSubscribe,
		TradeRequestType:         "1",
		TradeCaptureExtra: []Field{
			{Tag: TagTrdType, Value: "0"},
			{Tag: TagTransferReason, Value: "AccountDetail"},
		},
		BookMode:            BookFullRefresh,
		ExecTextMarker:      "Operada",
		CancelConfirmations: 2,
	}
}

// BYMA returns the equities venue dialect: incremental books keyed by
// SecurityID, target-party mass cancel and an advisory throttle.
func BYMA() Dialect {
	return Dialect{
		Name:                     "byma",
		BeginString:              "FIXT.1.1",
		ApplVerID:                "7",
		OrderPartyRole:           "53",
		TradeReportPartyRole:     "53",
		PartyOnNewOrder:          true,
		MassCancel:               MassCancelTargetParty,
		Instrument:               InstrumentSecurityID,
		SymbolTag:                TagSecurityID,
		MDSubscriptionType:       SubscriptionSnapshot,
		MDUpdateType:             "1",
		SecurityListSubscription: SubscriptionSnapshot,
		TradeRequestType:         "0",
		TradeCaptureExtra: []Field{
			{Tag: TagTradeQueryAll, Value: "1"},
		},
		BookMode:            BookIncremental,
		Throttle:            ThrottlePolicy{Window: 50, MaxPerMinute: 600},
		CancelConfirmations: 1,
	}
}

// DialectByName resolves a preset by its configuration name
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "rofex":
		return ROFEX(), nil
	case "byma":
		return BYMA(), nil
	default:
		return Dialect{}, fmt.Errorf("unknown FIX dialect %q", name)
	}
}

// Owns reports whether account is one of the firm's own accounts
func (d *Dialect) Owns(account string) bool {
	for _, a := range d.OwnedAccounts {
		if a == account {
			return true
		}
	}
	return false
}

// SecurityID is a venue security identifier split into its parts, for
// example "GGAL-0003-C-CT-ARS".
type SecurityID struct {
	Raw       string
	Symbol    string
	SettlType string
	Currency  string
}

// ParseSecurityID splits id on '-'. It needs at least symbol, settlement and
// currency parts.
func ParseSecurityID(id string) (SecurityID, error) {
	parts := strings.Split(id, "-")
	if len(parts) < 3 || parts[0] == "" {
		return SecurityID{}, fmt.Errorf("%w: security id %q", ErrMissingField, id)
	}
	settl, err := strconv.Atoi(parts[1])
	if err != nil {
		return SecurityID{}, fmt.Errorf("%w: settlement type in %q", ErrFieldMalformed, id)
	}
	return SecurityID{
		Raw:       id,
		Symbol:    parts[0],
		SettlType: strconv.Itoa(settl),
		Currency:  parts[len(parts)-1],
	}, nil
}

// EncodeOptions returns the wire options implied by the dialect
func (d *Dialect) EncodeOptions() EncodeOptions {
	return EncodeOptions{OmitTrailer: d.OmitTrailer}
}
