package fix

import (
	"bytes"
	"fmt"
	"strconv"

	"golang.org/x/text/encoding/charmap"
)

// SOH is the field delimiter
const SOH byte = 0x01

// EncodeOptions controls the wire shape produced by Encode
type EncodeOptions struct {
	// OmitTrailer drops BodyLength(9) and CheckSum(10).
	OmitTrailer bool
}

// Encode renders m to wire bytes. The first field must be BeginString and the
// second MsgType. BodyLength and CheckSum are computed here; any 9/10 fields
// already present in m are ignored.
func Encode(m *Message, opts EncodeOptions) ([]byte, error) {
	if len(m.Fields) < 2 || m.Fields[0].Tag != TagBeginString || m.Fields[1].Tag != TagMsgType {
		return nil, fmt.Errorf("%w: message must start with tags 8 and 35", ErrMissingField)
	}

	enc := charmap.Windows1252.NewEncoder()
	var body bytes.Buffer
	for _, f := range m.Fields[1:] {
		if f.Tag == TagBodyLength || f.Tag == TagCheckSum || f.Tag == TagBeginString {
			continue
		}
		v, err := enc.String(f.Value)
		if err != nil {
			return nil, unencodable(f.Tag)
		}
		appendField(&body, f.Tag, v)
	}

	var out bytes.Buffer
	appendField(&out, TagBeginString, m.Fields[0].Value)
	if opts.OmitTrailer {
		out.Write(body.Bytes())
		return out.Bytes(), nil
	}
	appendField(&out, TagBodyLength, strconv.Itoa(body.Len()))
	out.Write(body.Bytes())
	appendField(&out, TagCheckSum, fmt.Sprintf("%03d", checksum(out.Bytes())))
	return out.Bytes(), nil
}

// CheckEncodable returns a FieldError when value cannot be written in
// Windows-1252
func CheckEncodable(tag Tag, value string) error {
	if _, err := charmap.Windows1252.NewEncoder().String(value); err != nil {
		return unencodable(tag)
	}
	return nil
}

func unencodable(tag Tag) error {
	return &FieldError{Tag: tag, Err: fmt.Errorf("%w: not representable in windows-1252", ErrFieldMalformed)}
}

// Decode parses one complete message. Windows-1252 values are converted to
// UTF-8. A present CheckSum is verified and BodyLength/CheckSum are not
// returned as fields.
func Decode(raw []byte) (*Message, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrMalformed)
	}
	dec := charmap.Windows1252.NewDecoder()
	m := NewMessage(bytes.Count(raw, []byte{SOH}) + 1)

	var (
		bodyStart   = -1
		declaredLen = -1
		trailerAt   = -1
		sum         string
	)
	pos := 0
	for pos < len(raw) {
		end := bytes.IndexByte(raw[pos:], SOH)
		if end < 0 {
			end = len(raw) - pos
		}
		chunk := raw[pos : pos+end]
		next := pos + end + 1
		if len(chunk) == 0 {
			pos = next
			continue
		}
		eq := bytes.IndexByte(chunk, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("%w: field without tag at offset %d", ErrMalformed, pos)
		}
		n, err := strconv.Atoi(string(chunk[:eq]))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: bad tag %q", ErrMalformed, chunk[:eq])
		}
		tag := Tag(n)
		value := chunk[eq+1:]

		switch tag {
		case TagBodyLength:
			declaredLen, err = strconv.Atoi(string(value))
			if err != nil {
				return nil, &FieldError{Tag: tag, Err: ErrFieldMalformed}
			}
			bodyStart = next
		case TagCheckSum:
			trailerAt = pos
			sum = string(value)
		default:
			text, err := dec.Bytes(value)
			if err != nil {
				return nil, &FieldError{Tag: tag, Err: ErrFieldMalformed}
			}
			m.Fields = append(m.Fields, Field{Tag: tag, Value: string(text)})
		}
		pos = next
	}

	if !m.Has(TagBeginString) || !m.Has(TagMsgType) {
		return nil, fmt.Errorf("%w: tags 8 and 35 are mandatory", ErrMalformed)
	}
	if m.Fields[0].Tag != TagBeginString {
		return nil, fmt.Errorf("%w: tag 8 must come first", ErrMalformed)
	}
	if trailerAt >= 0 {
		want, err := strconv.Atoi(sum)
		if err != nil || want != checksum(raw[:trailerAt]) {
			return nil, ErrChecksum
		}
		if bodyStart >= 0 && declaredLen != trailerAt-bodyStart {
			return nil, fmt.Errorf("%w: declared %d, got %d", ErrBodyLength, declaredLen, trailerAt-bodyStart)
		}
	}
	return m, nil
}

func appendField(buf *bytes.Buffer, tag Tag, value string) {
	buf.WriteString(strconv.Itoa(int(tag)))
	buf.WriteByte('=')
	buf.WriteString(value)
	buf.WriteByte(SOH)
}

func checksum(b []byte) int {
	var sum int
	for _, c := range b {
		sum += int(c)
	}
	return sum % 256
}
