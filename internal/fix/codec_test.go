package fix

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDialect() Dialect {
	d := ROFEX()
	d.SenderCompID = "SENDER"
	d.OnBehalfOfCompID = "user1"
	d.DeliverToCompID = "ROFX"
	d.PartyID = "trader1"
	return d
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 13, 45, 7, 123_000_000, time.UTC)
}

func TestEncodeDecode_RoundTripWithRepeatedTag(t *testing.T) {
	b := NewBuilder(testDialect(), NewCounters()).WithClock(fixedClock)

	m, mdReqID, err := b.MarketDataSubscribe("DLR/MAR24", 5)
	require.NoError(t, err)
	assert.Equal(t, "1", mdReqID)

	raw, err := Encode(m, EncodeOptions{})
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)

	// Every supplied field comes back in order
	assert.Equal(t, m.Fields, decoded.Fields)
	assert.Equal(t, []string{"0", "1"}, decoded.GetAll(TagMDEntryType))
	assert.Equal(t, "20240301-13:45:07.123", decoded.GetOr(TagSendingTime, ""))
}

func TestEncode_TrailerShape(t *testing.T) {
	m := NewMessage(4).
		Add(TagBeginString, "FIXT.1.1").
		Add(TagMsgType, MsgTypeHeartbeat).
		AddInt(TagMsgSeqNum, 1)

	raw, err := Encode(m, EncodeOptions{})
	require.NoError(t, err)

	body := "35=0\x0134=1\x01"
	head := "8=FIXT.1.1\x019=10\x01"
	require.True(t, strings.HasPrefix(string(raw), head+body), "got %q", raw)
	assert.Regexp(t, `10=\d{3}\x01$`, string(raw))

	legacy, err := Encode(m, EncodeOptions{OmitTrailer: true})
	require.NoError(t, err)
	assert.Equal(t, "8=FIXT.1.1\x01"+body, string(legacy))

	// Trailer-less messages still decode
	decoded, err := Decode(legacy)
	require.NoError(t, err)
	assert.Equal(t, MsgTypeHeartbeat, decoded.MsgType())
}

func TestEncode_RequiresHeader(t *testing.T) {
	_, err := Encode(NewMessage(1).Add(TagMsgType, "0"), EncodeOptions{})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	m := NewMessage(3).Add(TagBeginString, "FIXT.1.1").Add(TagMsgType, "0").AddInt(TagMsgSeqNum, 7)
	raw, err := Encode(m, EncodeOptions{})
	require.NoError(t, err)

	// Corrupt the sequence number without touching the trailer
	corrupted := bytes.Replace(raw, []byte("34=7"), []byte("34=8"), 1)
	_, err = Decode(corrupted)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestDecode_Garbage(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("garbage"),
		[]byte("=x\x01"),
		[]byte("abc=1\x0135=0\x01"),
		[]byte("35=0\x018=FIX\x01"),
		[]byte("8=FIXT.1.1\x01"),
		{0x01, 0x01, 0x01},
	}
	for _, in := range inputs {
		_, err := Decode(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestDecode_Windows1252(t *testing.T) {
	// 0xF1 is 'ñ' in windows-1252
	raw := []byte("8=FIXT.1.1\x0135=8\x0158=Opera\xf1a\x01")
	m, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "Operaña", m.GetOr(TagText, ""))

	out, err := Encode(m, EncodeOptions{OmitTrailer: true})
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestMessage_TypedAccessors(t *testing.T) {
	m := NewMessage(4).
		Add(TagMsgSeqNum, "12").
		Add(TagPrice, "101.25").
		Add(TagPossDupFlag, "Y").
		Add(TagOrderQty, "ten")

	n, err := m.Int(TagMsgSeqNum)
	require.NoError(t, err)
	assert.EqualValues(t, 12, n)

	px, err := m.Decimal(TagPrice)
	require.NoError(t, err)
	assert.Equal(t, "101.25", px.String())

	dup, err := m.Bool(TagPossDupFlag)
	require.NoError(t, err)
	assert.True(t, dup)

	_, err = m.Int(TagOrderQty)
	assert.ErrorIs(t, err, ErrFieldMalformed)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, TagOrderQty, fe.Tag)

	_, err = m.Get(TagSymbol)
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestReader_FramesAndResyncs(t *testing.T) {
	b := NewBuilder(testDialect(), NewCounters())
	first, err := Encode(b.Heartbeat(""), EncodeOptions{})
	require.NoError(t, err)
	second, err := Encode(b.Heartbeat("7"), EncodeOptions{})
	require.NoError(t, err)

	var stream bytes.Buffer
	stream.WriteString("noise\x01more\x01")
	stream.Write(first)
	stream.Write(second)

	r := NewReader(&stream)

	got, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, second, got)

	_, err = r.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_MissingBodyLength(t *testing.T) {
	r := NewReader(strings.NewReader("8=FIXT.1.1\x0135=0\x01"))
	_, err := r.ReadMessage()
	assert.ErrorIs(t, err, ErrMalformed)
}
