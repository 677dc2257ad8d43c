package book

import (
	"sort"
	"sync"

	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/shopspring/decimal"
)

// DefaultDepth is the ladder length kept per side
const DefaultDepth = 5

// Level is one price level of a ladder
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Book is a depth-bounded bid/ask ladder for one instrument. Bids are sorted
// by descending price and asks by ascending price.
type Book struct {
	Symbol string
	Bids   []Level
	Asks   []Level
}

func (b *Book) clone() Book {
	return Book{
		Symbol: b.Symbol,
		Bids:   append([]Level(nil), b.Bids...),
		Asks:   append([]Level(nil), b.Asks...),
	}
}

func (b *Book) side(s Side) *[]Level {
	if s == Bid {
		return &b.Bids
	}
	return &b.Asks
}

// Result summarises one applied message
type Result struct {
	Symbols []string
	Applied int
	Skipped int
}

// Engine maintains books for every instrument seen on the feed. It is safe
// for one writer (the session reader) and any number of readers.
type Engine struct {
	mu        sync.RWMutex
	depth     int
	symbolTag fix.Tag
	mode      fix.BookMode
	books     map[string]*Book
}

// NewEngine creates an engine for a dialect's book mode and symbol tag.
// depth <= 0 selects DefaultDepth.
func NewEngine(d fix.Dialect, depth int) *Engine {
	if depth <= 0 {
		depth = DefaultDepth
	}
	tag := d.SymbolTag
	if tag == 0 {
		tag = fix.TagSymbol
	}
	return &Engine{
		depth:     depth,
		symbolTag: tag,
		mode:      d.BookMode,
		books:     make(map[string]*Book),
	}
}

// Depth returns the configured maximum ladder length
func (e *Engine) Depth() int {
	return e.depth
}

// Apply routes a classified market data message. In full refresh mode every
// market data message replaces the book; in incremental mode snapshots
// replace and incremental refreshes patch. Order-depth incrementals carry
// per-order entries the price ladder cannot represent and are ignored.
func (e *Engine) Apply(m *fix.Message, class fix.Class) Result {
	switch class.Kind {
	case fix.KindMarketDataSnapshot:
		return e.ApplySnapshot(m)
	case fix.KindMarketDataIncremental:
		if e.mode == fix.BookFullRefresh {
			return e.ApplySnapshot(m)
		}
		if class.Granularity == fix.GranularityOrder {
			return Result{}
		}
		return e.ApplyIncremental(m)
	}
	return Result{}
}

// ApplySnapshot replaces the book of the message's instrument with the
// entries it carries. Applying the same snapshot twice yields the same book.
func (e *Engine) ApplySnapshot(m *fix.Message) Result {
	entries, skipped := ParseFullRefresh(m, e.symbolTag)
	symbol := m.GetOr(e.symbolTag, "")
	if symbol == "" {
		return Result{Skipped: skipped + len(entries)}
	}

	b := &Book{Symbol: symbol}
	for _, en := range entries {
		s := b.side(en.Side)
		*s = append(*s, Level{Price: en.Price, Size: en.Size})
	}
	sortSide(b.Bids, Bid)
	sortSide(b.Asks, Ask)
	b.Bids = truncate(b.Bids, e.depth)
	b.Asks = truncate(b.Asks, e.depth)

	e.mu.Lock()
	e.books[symbol] = b
	e.mu.Unlock()

	return Result{Symbols: []string{symbol}, Applied: len(entries), Skipped: skipped}
}

// ApplyIncremental applies New/Change/Delete entries to the books they name.
// Change and Delete with no level at that price are no-ops. Each touched side
// is truncated to depth after the whole message is applied.
func (e *Engine) ApplyIncremental(m *fix.Message) Result {
	entries, skipped := ParseIncremental(m, e.symbolTag)
	res := Result{Skipped: skipped}
	if len(entries) == 0 {
		return res
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	touched := make(map[string]*Book)
	for _, en := range entries {
		b, ok := e.books[en.Symbol]
		if !ok {
			b = &Book{Symbol: en.Symbol}
			e.books[en.Symbol] = b
		}
		if _, seen := touched[en.Symbol]; !seen {
			touched[en.Symbol] = b
			res.Symbols = append(res.Symbols, en.Symbol)
		}
		apply(b.side(en.Side), en)
		res.Applied++
	}
	for _, b := range touched {
		b.Bids = truncate(b.Bids, e.depth)
		b.Asks = truncate(b.Asks, e.depth)
	}
	return res
}

func apply(levels *[]Level, en Entry) {
	switch en.Action {
	case ActionNew:
		*levels = append(*levels, Level{Price: en.Price, Size: en.Size})
		sortSide(*levels, en.Side)
	case ActionChange:
		if i := indexOf(*levels, en.Price); i >= 0 {
			(*levels)[i] = Level{Price: en.Price, Size: en.Size}
		}
	case ActionDelete:
		if i := indexOf(*levels, en.Price); i >= 0 {
			*levels = append((*levels)[:i], (*levels)[i+1:]...)
		}
	}
}

func indexOf(levels []Level, price decimal.Decimal) int {
	for i, l := range levels {
		if l.Price.Equal(price) {
			return i
		}
	}
	return -1
}

func sortSide(levels []Level, s Side) {
	sort.SliceStable(levels, func(i, j int) bool {
		if s == Bid {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
}

func truncate(levels []Level, depth int) []Level {
	if len(levels) > depth {
		return levels[:depth]
	}
	return levels
}

// Book returns a copy of the current book for symbol
func (e *Engine) Book(symbol string) (Book, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.books[symbol]
	if !ok {
		return Book{}, false
	}
	return b.clone(), true
}

// Symbols lists every instrument with a book, sorted
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	out := make([]string, 0, len(e.books))
	for s := range e.books {
		out = append(out, s)
	}
	e.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Reset drops every book, for example after a reconnect before snapshots
// are re-requested.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.books = make(map[string]*Book)
	e.mu.Unlock()
}
