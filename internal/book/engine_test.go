package book

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sym = "GGAL-0003-C-CT-ARS"

func incrementalEngine() *Engine {
	return NewEngine(fix.BYMA(), DefaultDepth)
}

func incMsg() *fix.Message {
	return fix.NewMessage(16).
		Add(fix.TagBeginString, "FIXT.1.1").
		Add(fix.TagMsgType, fix.MsgTypeMarketDataIncremental).
		Add(fix.TagMDBookType, fix.MDBookTypePriceDepth)
}

func addEntry(m *fix.Message, action, side, symbol, px, size string) *fix.Message {
	m.Add(fix.TagMDUpdateAction, action).
		Add(fix.TagMDEntryType, side).
		Add(fix.TagSecurityID, symbol).
		Add(fix.TagMDEntryPx, px)
	if size != "" {
		m.Add(fix.TagMDEntrySize, size)
	}
	return m
}

func levels(pairs ...string) []Level {
	out := make([]Level, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, Level{
			Price: decimal.RequireFromString(pairs[i]),
			Size:  decimal.RequireFromString(pairs[i+1]),
		})
	}
	return out
}

func assertLevels(t *testing.T, want, got []Level) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Price.Equal(got[i].Price), "level %d price: want %s got %s", i, want[i].Price, got[i].Price)
		assert.True(t, want[i].Size.Equal(got[i].Size), "level %d size: want %s got %s", i, want[i].Size, got[i].Size)
	}
}

func TestIncremental_ScenarioB(t *testing.T) {
	e := incrementalEngine()

	e.ApplyIncremental(addEntry(incMsg(), "0", "0", sym, "100.5", "10"))
	e.ApplyIncremental(addEntry(incMsg(), "0", "0", sym, "100.0", "5"))
	e.ApplyIncremental(addEntry(incMsg(), "0", "0", sym, "101.0", "3"))

	b, ok := e.Book(sym)
	require.True(t, ok)
	assertLevels(t, levels("101.0", "3", "100.5", "10", "100.0", "5"), b.Bids)
	assert.Empty(t, b.Asks)
}

func TestIncremental_ScenarioC_DepthTruncation(t *testing.T) {
	e := incrementalEngine()

	m := incMsg()
	for _, px := range []string{"106", "105", "104", "103", "102", "101"} {
		addEntry(m, "0", "0", sym, px, "1")
	}
	res := e.ApplyIncremental(m)
	assert.Equal(t, 6, res.Applied)

	b, _ := e.Book(sym)
	require.Len(t, b.Bids, 5)
	assert.True(t, b.Bids[4].Price.Equal(decimal.NewFromInt(102)), "lowest bid must be dropped")
}

func TestIncremental_ChangeAndDelete(t *testing.T) {
	e := incrementalEngine()

	m := incMsg()
	addEntry(m, "0", "1", sym, "50", "1")
	addEntry(m, "0", "1", sym, "49", "2")
	e.ApplyIncremental(m)

	e.ApplyIncremental(addEntry(incMsg(), "1", "1", sym, "50", "9"))
	b, _ := e.Book(sym)
	assertLevels(t, levels("49", "2", "50", "9"), b.Asks)

	e.ApplyIncremental(addEntry(incMsg(), "2", "1", sym, "49", ""))
	b, _ = e.Book(sym)
	assertLevels(t, levels("50", "9"), b.Asks)
}

func TestIncremental_UnmatchedChangeDeleteAreNoOps(t *testing.T) {
	e := incrementalEngine()

	// On an empty book
	e.ApplyIncremental(addEntry(incMsg(), "1", "0", sym, "10", "1"))
	e.ApplyIncremental(addEntry(incMsg(), "2", "1", sym, "10", "1"))
	b, _ := e.Book(sym)
	assert.Empty(t, b.Bids)
	assert.Empty(t, b.Asks)

	// On a populated book, replaying a delete is harmless
	e.ApplyIncremental(addEntry(incMsg(), "0", "0", sym, "10", "1"))
	e.ApplyIncremental(addEntry(incMsg(), "0", "0", sym, "9", "1"))
	before, _ := e.Book(sym)
	e.ApplyIncremental(addEntry(incMsg(), "2", "0", sym, "11", ""))
	e.ApplyIncremental(addEntry(incMsg(), "1", "0", sym, "8", "4"))
	after, _ := e.Book(sym)
	assert.Equal(t, before, after)
}

func TestIncremental_SkipsMalformedGroupsAndOtherSymbols(t *testing.T) {
	e := incrementalEngine()
	e.ApplyIncremental(addEntry(incMsg(), "0", "0", "OTHER-0001-C-CT-ARS", "5", "5"))

	m := incMsg()
	// Bad price, empty group, missing symbol, then one valid entry
	addEntry(m, "0", "0", sym, "abc", "1")
	m.Add(fix.TagMDUpdateAction, "0")
	addEntry(m, "0", "0", "", "3", "1")
	addEntry(m, "0", "0", sym, "4", "2")

	res := e.ApplyIncremental(m)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, []string{sym}, res.Symbols)

	other, ok := e.Book("OTHER-0001-C-CT-ARS")
	require.True(t, ok)
	assertLevels(t, levels("5", "5"), other.Bids)
}

func TestIncremental_OrderingAndDepthProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	e := NewEngine(fix.BYMA(), 3)

	for i := 0; i < 2000; i++ {
		m := incMsg()
		for n := rng.Intn(4) + 1; n > 0; n-- {
			action := strconv.Itoa(rng.Intn(3))
			side := strconv.Itoa(rng.Intn(2))
			px := strconv.Itoa(90 + rng.Intn(20))
			addEntry(m, action, side, sym, px, strconv.Itoa(rng.Intn(10)+1))
		}
		e.ApplyIncremental(m)

		b, _ := e.Book(sym)
		assert.LessOrEqual(t, len(b.Bids), 3)
		assert.LessOrEqual(t, len(b.Asks), 3)
		for j := 1; j < len(b.Bids); j++ {
			require.False(t, b.Bids[j].Price.GreaterThan(b.Bids[j-1].Price), "bids out of order at step %d", i)
		}
		for j := 1; j < len(b.Asks); j++ {
			require.False(t, b.Asks[j].Price.LessThan(b.Asks[j-1].Price), "asks out of order at step %d", i)
		}
	}
}

func snapshot() *fix.Message {
	return fix.NewMessage(20).
		Add(fix.TagBeginString, "FIXT.1.1").
		Add(fix.TagMsgType, fix.MsgTypeMarketDataSnapshot).
		Add(fix.TagSymbol, "DLR/MAR24").
		Add(fix.TagNoMDEntries, "7").
		Add(fix.TagMDEntryType, "0").Add(fix.TagMDEntryPx, "850").Add(fix.TagMDEntrySize, "10").
		Add(fix.TagMDEntryType, "1").Add(fix.TagMDEntryPx, "852").Add(fix.TagMDEntrySize, "4").
		Add(fix.TagMDEntryType, "0").Add(fix.TagMDEntryPx, "851").Add(fix.TagMDEntrySize, "1").
		Add(fix.TagMDEntryType, "1").Add(fix.TagMDEntryPx, "851.5").Add(fix.TagMDEntrySize, "2").
		Add(fix.TagMDEntryType, "2").Add(fix.TagMDEntryPx, "851.2").Add(fix.TagMDEntrySize, "2").
		Add(fix.TagMDEntryType, "0").Add(fix.TagMDEntrySize, "2")
}

func TestSnapshot_SortsAndIsIdempotent(t *testing.T) {
	e := NewEngine(fix.ROFEX(), DefaultDepth)

	res := e.ApplySnapshot(snapshot())
	assert.Equal(t, 4, res.Applied)
	assert.Equal(t, 2, res.Skipped) // trade entry and the entry without a price

	first, ok := e.Book("DLR/MAR24")
	require.True(t, ok)
	assertLevels(t, levels("851", "1", "850", "10"), first.Bids)
	assertLevels(t, levels("851.5", "2", "852", "4"), first.Asks)

	e.ApplySnapshot(snapshot())
	second, _ := e.Book("DLR/MAR24")
	assert.Equal(t, first, second)
}

func TestSnapshot_ReplacesPreviousBook(t *testing.T) {
	e := NewEngine(fix.ROFEX(), DefaultDepth)
	e.ApplySnapshot(snapshot())

	empty := fix.NewMessage(3).
		Add(fix.TagBeginString, "FIXT.1.1").
		Add(fix.TagMsgType, fix.MsgTypeMarketDataSnapshot).
		Add(fix.TagSymbol, "DLR/MAR24")
	e.ApplySnapshot(empty)

	b, _ := e.Book("DLR/MAR24")
	assert.Empty(t, b.Bids)
	assert.Empty(t, b.Asks)
}

func TestApply_Routing(t *testing.T) {
	// Full refresh dialect treats incrementals as complete books
	full := NewEngine(fix.ROFEX(), DefaultDepth)
	m := snapshot()
	m.Fields[1].Value = fix.MsgTypeMarketDataIncremental
	full.Apply(m, fix.Class{Kind: fix.KindMarketDataIncremental})
	b, ok := full.Book("DLR/MAR24")
	require.True(t, ok)
	assert.Len(t, b.Bids, 2)

	// Order-depth incrementals leave the ladder alone
	inc := incrementalEngine()
	res := inc.Apply(addEntry(incMsg(), "0", "0", sym, "1", "1"),
		fix.Class{Kind: fix.KindMarketDataIncremental, Granularity: fix.GranularityOrder})
	assert.Zero(t, res.Applied)
	_, ok = inc.Book(sym)
	assert.False(t, ok)
}

func TestBook_ReturnsCopy(t *testing.T) {
	e := incrementalEngine()
	e.ApplyIncremental(addEntry(incMsg(), "0", "0", sym, "10", "1"))

	b, _ := e.Book(sym)
	b.Bids[0].Size = decimal.NewFromInt(99)

	again, _ := e.Book(sym)
	assert.True(t, again.Bids[0].Size.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, []string{sym}, e.Symbols())
}
