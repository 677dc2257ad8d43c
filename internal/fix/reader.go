package fix

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// MaxBodyLength bounds a single framed message
const MaxBodyLength = 1 << 20

var beginPrefix = []byte("8=")

// Reader frames wire messages out of a byte stream. It resynchronises on the
// next BeginString after garbage and requires BodyLength to find the trailer.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadMessage returns the raw bytes of the next message, trailer included.
// A framing error leaves the reader usable; transport errors are returned as is.
func (r *Reader) ReadMessage() ([]byte, error) {
	var begin []byte
	for {
		field, err := r.readField()
		if err != nil {
			return nil, err
		}
		if bytes.HasPrefix(field, beginPrefix) {
			begin = field
			break
		}
	}

	lengthField, err := r.readField()
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(lengthField, []byte("9=")) {
		return nil, fmt.Errorf("%w: expected BodyLength after BeginString", ErrMalformed)
	}
	n, err := strconv.Atoi(string(lengthField[2 : len(lengthField)-1]))
	if err != nil || n < 0 || n > MaxBodyLength {
		return nil, fmt.Errorf("%w: bad BodyLength %q", ErrMalformed, lengthField)
	}

	out := make([]byte, 0, len(begin)+len(lengthField)+n+8)
	out = append(out, begin...)
	out = append(out, lengthField...)
	body := make([]byte, n)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return nil, err
	}
	out = append(out, body...)

	trailer, err := r.readField()
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(trailer, []byte("10=")) {
		return nil, fmt.Errorf("%w: expected CheckSum after body", ErrMalformed)
	}
	return append(out, trailer...), nil
}

// readField returns one SOH-terminated field including the delimiter.
func (r *Reader) readField() ([]byte, error) {
	line, err := r.r.ReadSlice(SOH)
	if err == bufio.ErrBufferFull {
		// oversized field: drop it and keep scanning
		for err == bufio.ErrBufferFull {
			_, err = r.r.ReadSlice(SOH)
		}
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: field exceeds buffer", ErrMalformed)
	}
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(line))
	copy(cp, line)
	return cp, nil
}
