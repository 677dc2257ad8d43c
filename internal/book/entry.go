package book

import (
	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/shopspring/decimal"
)

// Side of the ladder an entry belongs to
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Action is the incremental update action (MDUpdateAction, tag 279)
type Action int

const (
	ActionNew Action = iota
	ActionChange
	ActionDelete
)

// Entry is one parsed market data entry group
type Entry struct {
	Symbol string
	Action Action
	Side   Side
	Price  decimal.Decimal
	Size   decimal.Decimal
}

// Parser extracts entry groups from a market data message. skipped counts
// groups that were empty or malformed.
type Parser func(m *fix.Message, symbolTag fix.Tag) (entries []Entry, skipped int)

type group struct {
	symbol  string
	action  string
	side    string
	price   string
	size    string
	started bool
}

func (g *group) entry(needSize bool) (Entry, bool) {
	var e Entry
	switch g.side {
	case fix.MDEntryTypeBid:
		e.Side = Bid
	case fix.MDEntryTypeOffer:
		e.Side = Ask
	default:
		return e, false
	}
	switch g.action {
	case "", fix.MDUpdateActionNew:
		e.Action = ActionNew
	case fix.MDUpdateActionChange:
		e.Action = ActionChange
	case fix.MDUpdateActionDelete:
		e.Action = ActionDelete
		needSize = false
	default:
		return e, false
	}
	px, err := decimal.NewFromString(g.price)
	if err != nil {
		return e, false
	}
	e.Price = px
	if g.size != "" {
		sz, err := decimal.NewFromString(g.size)
		if err != nil {
			return e, false
		}
		e.Size = sz
	} else if needSize {
		return e, false
	}
	e.Symbol = g.symbol
	return e, e.Symbol != ""
}

// ParseFullRefresh splits a snapshot on MDEntryType(269) markers. The
// instrument is named once at message level.
func ParseFullRefresh(m *fix.Message, symbolTag fix.Tag) ([]Entry, int) {
	symbol := m.GetOr(symbolTag, "")
	var (
		entries []Entry
		skipped int
		cur     group
	)
	flush := func() {
		if !cur.started {
			return
		}
		cur.symbol = symbol
		if e, ok := cur.entry(true); ok {
			entries = append(entries, e)
		} else {
			skipped++
		}
	}
	for _, f := range m.Fields {
		switch f.Tag {
		case fix.TagMDEntryType:
			flush()
			cur = group{side: f.Value, started: true}
		case fix.TagMDEntryPx:
			cur.price = f.Value
		case fix.TagMDEntrySize:
			cur.size = f.Value
		}
	}
	flush()
	return entries, skipped
}

// ParseIncremental splits an incremental refresh on MDUpdateAction(279)
// markers. Each group names its own instrument; a symbol given before the
// first group applies to groups that omit it.
func ParseIncremental(m *fix.Message, symbolTag fix.Tag) ([]Entry, int) {
	var (
		entries  []Entry
		skipped  int
		fallback string
		cur      group
	)
	flush := func() {
		if !cur.started {
			return
		}
		if cur.symbol == "" {
			cur.symbol = fallback
		}
		if e, ok := cur.entry(true); ok {
			entries = append(entries, e)
		} else {
			skipped++
		}
	}
	for _, f := range m.Fields {
		switch f.Tag {
		case fix.TagMDUpdateAction:
			flush()
			cur = group{action: f.Value, started: true}
		case symbolTag:
			if cur.started {
				cur.symbol = f.Value
			} else {
				fallback = f.Value
			}
		case fix.TagMDEntryType:
			cur.side = f.Value
		case fix.TagMDEntryPx:
			cur.price = f.Value
		case fix.TagMDEntrySize:
			cur.size = f.Value
		}
	}
	flush()
	return entries, skipped
}
