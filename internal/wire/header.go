package wire

import "fmt"

// signatureOf returns the combined signature string for m.Values, inferring
// one type code per value. The broker only ever sends values it itself
// constructed, so the mapping here only needs to cover those shapes.
func signatureOf(values []any) (string, error) {
	var sig string
	for _, v := range values {
		switch vv := v.(type) {
		case string:
			sig += "s"
		case ObjectPath:
			sig += "o"
		case Signature:
			sig += "g"
		case bool:
			sig += "b"
		case uint32:
			sig += "u"
		case []string:
			sig += "as"
		case map[string]Variant:
			sig += "a{sv}"
		case Variant:
			sig += "v"
		default:
			return "", fmt.Errorf("wire: cannot infer signature for %T", vv)
		}
	}
	return sig, nil
}

// encodeMessage renders m into its full wire form (header + body).
func encodeMessage(m *Message) ([]byte, error) {
	body := &encoder{}
	sig := string(m.Signature)
	if sig == "" && len(m.Values) > 0 {
		var err error
		sig, err = signatureOf(m.Values)
		if err != nil {
			return nil, err
		}
	}
	remaining := sig
	for _, v := range m.Values {
		// consume exactly one complete type off the front of `remaining`
		n := typeLen(remaining)
		if n == 0 {
			return nil, fmt.Errorf("wire: signature %q shorter than value list", sig)
		}
		if err := body.value(remaining[:n], v); err != nil {
			return nil, err
		}
		remaining = remaining[n:]
	}

	head := &encoder{}
	head.byte(nativeOrder)
	head.byte(byte(m.Type))
	head.byte(byte(m.Flags))
	head.byte(protocolVersion)
	head.uint32(uint32(body.buf.Len()))
	head.uint32(m.Serial)

	head.arrayOf(8, func() {
		if m.Path != "" {
			writeHeaderField(head, fieldPath, Variant{Sig: "o", Value: m.Path})
		}
		if m.Interface != "" {
			writeHeaderField(head, fieldInterface, Variant{Sig: "s", Value: m.Interface})
		}
		if m.Member != "" {
			writeHeaderField(head, fieldMember, Variant{Sig: "s", Value: m.Member})
		}
		if m.ErrorName != "" {
			writeHeaderField(head, fieldErrorName, Variant{Sig: "s", Value: m.ErrorName})
		}
		if m.ReplySerial != 0 {
			writeHeaderField(head, fieldReplySerial, Variant{Sig: "u", Value: m.ReplySerial})
		}
		if m.Destination != "" {
			writeHeaderField(head, fieldDestination, Variant{Sig: "s", Value: m.Destination})
		}
		if m.Sender != "" {
			writeHeaderField(head, fieldSender, Variant{Sig: "s", Value: m.Sender})
		}
		if sig != "" {
			writeHeaderField(head, fieldSignature, Variant{Sig: "g", Value: Signature(sig)})
		}
	})
	head.align(8)

	out := make([]byte, 0, head.buf.Len()+body.buf.Len())
	out = append(out, head.buf.Bytes()...)
	out = append(out, body.buf.Bytes()...)
	return out, nil
}

func writeHeaderField(e *encoder, code byte, v Variant) {
	e.align(8)
	e.byte(code)
	_ = e.variant(v)
}

// typeLen returns the number of signature characters consumed by the first
// complete type in sig (1 for scalars, 2+ for arrays, recursing for a{..}).
func typeLen(sig string) int {
	if sig == "" {
		return 0
	}
	switch sig[0] {
	case 'a':
		if len(sig) > 1 && sig[1] == '{' {
			end := matchBrace(sig[1:])
			return 1 + end
		}
		return 1 + typeLen(sig[1:])
	default:
		return 1
	}
}

func matchBrace(s string) int {
	depth := 0
	for i, c := range s {
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(s)
}

// decodeMessage parses one full message out of data[0:]. It returns
// (nil, errShort) if data does not yet contain a complete message — callers
// must not advance their read offset in that case.
func decodeMessage(data []byte) (*Message, int, error) {
	if len(data) < 16 {
		return nil, 0, errShort
	}
	order := data[0]
	if order != 'l' && order != 'B' {
		return nil, 0, fmt.Errorf("wire: unknown endianness byte %q", order)
	}
	d := &decoder{data: data}
	d.pos = 1
	typByte, _ := d.byte()
	flagsByte, _ := d.byte()
	_, _ = d.byte() // protocol version, ignored

	bodyLen, err := d.uint32()
	if err != nil {
		return nil, 0, errShort
	}
	serial, err := d.uint32()
	if err != nil {
		return nil, 0, errShort
	}

	fieldsLen, err := d.uint32()
	if err != nil {
		return nil, 0, errShort
	}
	if err := d.align(8); err != nil {
		return nil, 0, errShort
	}
	fieldsEnd := d.pos + int(fieldsLen)
	if len(data) < fieldsEnd {
		return nil, 0, errShort
	}

	m := &Message{
		Type:   Type(typByte),
		Flags:  Flags(flagsByte),
		Serial: serial,
	}

	for d.pos < fieldsEnd {
		if err := d.align(8); err != nil {
			return nil, 0, errShort
		}
		code, err := d.byte()
		if err != nil {
			return nil, 0, errShort
		}
		v, err := d.variant()
		if err != nil {
			return nil, 0, errShort
		}
		switch code {
		case fieldPath:
			if s, ok := v.Value.(ObjectPath); ok {
				m.Path = s
			}
		case fieldInterface:
			if s, ok := v.Value.(string); ok {
				m.Interface = s
			}
		case fieldMember:
			if s, ok := v.Value.(string); ok {
				m.Member = s
			}
		case fieldErrorName:
			if s, ok := v.Value.(string); ok {
				m.ErrorName = s
			}
		case fieldReplySerial:
			if u, ok := v.Value.(uint32); ok {
				m.ReplySerial = u
			}
		case fieldDestination:
			if s, ok := v.Value.(string); ok {
				m.Destination = s
			}
		case fieldSender:
			if s, ok := v.Value.(string); ok {
				m.Sender = s
			}
		case fieldSignature:
			if s, ok := v.Value.(Signature); ok {
				m.Signature = s
			}
		}
	}
	d.pos = fieldsEnd
	if err := d.align(8); err != nil {
		return nil, 0, errShort
	}

	total := d.pos + int(bodyLen)
	if len(data) < total {
		return nil, 0, errShort
	}

	remaining := string(m.Signature)
	for remaining != "" {
		n := typeLen(remaining)
		val, err := d.value(remaining[:n])
		if err != nil {
			return nil, 0, errShort
		}
		m.Values = append(m.Values, val)
		remaining = remaining[n:]
	}

	return m, total, nil
}
