package gateway

import (
	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/shopspring/decimal"
)

// Instrument is one entry of the venue security list
type Instrument struct {
	Symbol      string
	SecurityID  string
	Description string
	MinTick     decimal.Decimal
}

// Instrument returns the security list entry for symbol
func (c *Client) Instrument(symbol string) (Instrument, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.instruments[symbol]
	return in, ok
}

// applySecurityList merges the NoRelatedSym group of a SecurityList. Every
// Symbol(55) opens a new entry.
func (c *Client) applySecurityList(m *fix.Message) int {
	var parsed []Instrument
	for _, f := range m.Fields {
		switch f.Tag {
		case fix.TagSymbol:
			parsed = append(parsed, Instrument{Symbol: f.Value})
		case fix.TagSecurityID, fix.TagSecurityDesc, fix.TagMinPriceIncrement:
			if len(parsed) == 0 {
				continue
			}
			cur := &parsed[len(parsed)-1]
			switch f.Tag {
			case fix.TagSecurityID:
				cur.SecurityID = f.Value
			case fix.TagSecurityDesc:
				cur.Description = f.Value
			case fix.TagMinPriceIncrement:
				if tick, err := decimal.NewFromString(f.Value); err == nil {
					cur.MinTick = tick
				}
			}
		}
	}

	c.mu.Lock()
	for _, in := range parsed {
		c.instruments[in.Symbol] = in
	}
	c.mu.Unlock()
	return len(parsed)
}
