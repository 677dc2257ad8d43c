package fix

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrFieldNotFound  = errors.New("fix: field not found")
	ErrFieldMalformed = errors.New("fix: field malformed")
	ErrMissingField   = errors.New("fix: missing mandatory field")
	ErrMalformed      = errors.New("fix: malformed message")
	ErrChecksum       = errors.New("fix: checksum mismatch")
	ErrBodyLength     = errors.New("fix: body length mismatch")
)

// FieldError reports a failed typed access to a single tag
type FieldError struct {
	Tag Tag
	Err error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("tag %d: %v", e.Tag, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Field is a single tag=value pair. Value holds UTF-8 text.
type Field struct {
	Tag   Tag
	Value string
}

// Message is an ordered sequence of fields. Repeated tags are kept in order.
type Message struct {
	Fields []Field
}

// NewMessage returns an empty message with room for n fields
func NewMessage(n int) *Message {
	return &Message{Fields: make([]Field, 0, n)}
}

// Add appends a text field
func (m *Message) Add(tag Tag, value string) *Message {
	m.Fields = append(m.Fields, Field{Tag: tag, Value: value})
	return m
}

// AddInt appends an integer field
func (m *Message) AddInt(tag Tag, value int64) *Message {
	return m.Add(tag, strconv.FormatInt(value, 10))
}

// AddDecimal appends a decimal field
func (m *Message) AddDecimal(tag Tag, value decimal.Decimal) *Message {
	return m.Add(tag, value.String())
}

// Has reports whether the tag occurs at least once
func (m *Message) Has(tag Tag) bool {
	_, ok := m.lookup(tag)
	return ok
}

// Get returns the first value for tag
func (m *Message) Get(tag Tag) (string, error) {
	v, ok := m.lookup(tag)
	if !ok {
		return "", &FieldError{Tag: tag, Err: ErrFieldNotFound}
	}
	return v, nil
}

// GetOr returns the first value for tag or def when absent
func (m *Message) GetOr(tag Tag, def string) string {
	if v, ok := m.lookup(tag); ok {
		return v
	}
	return def
}

// GetAll returns every value for tag in wire order
func (m *Message) GetAll(tag Tag) []string {
	var out []string
	for _, f := range m.Fields {
		if f.Tag == tag {
			out = append(out, f.Value)
		}
	}
	return out
}

// Int returns the first value for tag parsed as an integer
func (m *Message) Int(tag Tag) (int64, error) {
	v, err := m.Get(tag)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, &FieldError{Tag: tag, Err: fmt.Errorf("%w: %q", ErrFieldMalformed, v)}
	}
	return n, nil
}

// Decimal returns the first value for tag parsed as a decimal
func (m *Message) Decimal(tag Tag) (decimal.Decimal, error) {
	v, err := m.Get(tag)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, &FieldError{Tag: tag, Err: fmt.Errorf("%w: %q", ErrFieldMalformed, v)}
	}
	return d, nil
}

// Bool returns the first value for tag parsed as a FIX boolean (Y/N)
func (m *Message) Bool(tag Tag) (bool, error) {
	v, err := m.Get(tag)
	if err != nil {
		return false, err
	}
	switch v {
	case "Y":
		return true, nil
	case "N":
		return false, nil
	default:
		return false, &FieldError{Tag: tag, Err: fmt.Errorf("%w: %q", ErrFieldMalformed, v)}
	}
}

// MsgType returns tag 35
func (m *Message) MsgType() string {
	return m.GetOr(TagMsgType, "")
}

// SeqNum returns tag 34
func (m *Message) SeqNum() (int64, error) {
	return m.Int(TagMsgSeqNum)
}

// String renders the message with '|' in place of SOH, for logs
func (m *Message) String() string {
	var b strings.Builder
	for _, f := range m.Fields {
		b.WriteString(strconv.Itoa(int(f.Tag)))
		b.WriteByte('=')
		b.WriteString(f.Value)
		b.WriteByte('|')
	}
	return b.String()
}

func (m *Message) lookup(tag Tag) (string, bool) {
	for _, f := range m.Fields {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return "", false
}
