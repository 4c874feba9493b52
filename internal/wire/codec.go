package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var errShort = errors.New("wire: not enough data")

// encoder builds the little-endian wire form of a single message.
type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) align(n int) {
	for e.buf.Len()%n != 0 {
		e.buf.WriteByte(0)
	}
}

func (e *encoder) byte(b byte)     { e.buf.WriteByte(b) }
func (e *encoder) bytes(b []byte)  { e.buf.Write(b) }
func (e *encoder) uint32(v uint32) {
	e.align(4)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.buf.Write(tmp[:])
}
func (e *encoder) uint16(v uint16) {
	e.align(2)
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	e.buf.Write(tmp[:])
}
func (e *encoder) uint64(v uint64) {
	e.align(8)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf.Write(tmp[:])
}
func (e *encoder) boolean(v bool) {
	if v {
		e.uint32(1)
	} else {
		e.uint32(0)
	}
}

// str writes a length-prefixed, NUL-terminated string (type 's' or 'o').
func (e *encoder) str(s string) {
	e.uint32(uint32(len(s)))
	e.buf.WriteString(s)
	e.buf.WriteByte(0)
}

// sig writes a length-prefixed (1 byte), NUL-terminated signature (type 'g').
func (e *encoder) sig(s string) {
	e.byte(byte(len(s)))
	e.buf.WriteString(s)
	e.buf.WriteByte(0)
}

// arrayOf writes an array by reserving a 4-byte length, aligning to the
// element's natural boundary, running body, and patching the length in.
func (e *encoder) arrayOf(elemAlign int, body func()) {
	e.align(4)
	lenPos := e.buf.Len()
	e.buf.Write([]byte{0, 0, 0, 0}) // placeholder
	e.align(elemAlign)
	start := e.buf.Len()
	body()
	length := uint32(e.buf.Len() - start)
	out := e.buf.Bytes()
	binary.LittleEndian.PutUint32(out[lenPos:lenPos+4], length)
}

// variant writes a 'v': a signature string followed by the aligned value.
func (e *encoder) variant(v Variant) error {
	e.sig(string(v.Sig))
	return e.value(string(v.Sig), v.Value)
}

// value encodes v per a single complete type signature (which may itself be
// a container, e.g. "as" or "a{sv}").
func (e *encoder) value(sig string, v any) error {
	if sig == "" {
		return nil
	}
	switch sig[0] {
	case 'y':
		b, ok := v.(byte)
		if !ok {
			return fmt.Errorf("wire: expected byte for 'y', got %T", v)
		}
		e.byte(b)
	case 'b':
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("wire: expected bool for 'b', got %T", v)
		}
		e.boolean(b)
	case 'n':
		n, ok := v.(int16)
		if !ok {
			return fmt.Errorf("wire: expected int16 for 'n', got %T", v)
		}
		e.uint16(uint16(n))
	case 'q':
		n, ok := v.(uint16)
		if !ok {
			return fmt.Errorf("wire: expected uint16 for 'q', got %T", v)
		}
		e.uint16(n)
	case 'i':
		n, ok := v.(int32)
		if !ok {
			return fmt.Errorf("wire: expected int32 for 'i', got %T", v)
		}
		e.uint32(uint32(n))
	case 'u':
		n, ok := v.(uint32)
		if !ok {
			return fmt.Errorf("wire: expected uint32 for 'u', got %T", v)
		}
		e.uint32(n)
	case 'x':
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("wire: expected int64 for 'x', got %T", v)
		}
		e.uint64(uint64(n))
	case 't':
		n, ok := v.(uint64)
		if !ok {
			return fmt.Errorf("wire: expected uint64 for 't', got %T", v)
		}
		e.uint64(n)
	case 's':
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("wire: expected string for 's', got %T", v)
		}
		e.str(s)
	case 'o':
		switch s := v.(type) {
		case ObjectPath:
			e.str(string(s))
		case string:
			e.str(s)
		default:
			return fmt.Errorf("wire: expected object path for 'o', got %T", v)
		}
	case 'g':
		switch s := v.(type) {
		case Signature:
			e.sig(string(s))
		case string:
			e.sig(s)
		default:
			return fmt.Errorf("wire: expected signature for 'g', got %T", v)
		}
	case 'v':
		vv, ok := v.(Variant)
		if !ok {
			return fmt.Errorf("wire: expected Variant for 'v', got %T", v)
		}
		return e.variant(vv)
	case 'a':
		return e.array(sig, v)
	default:
		return fmt.Errorf("wire: unsupported type code %q", sig[0])
	}
	return nil
}

func (e *encoder) array(sig string, v any) error {
	elemSig := sig[1:]
	if elemSig == "s" {
		ss, ok := v.([]string)
		if !ok {
			return fmt.Errorf("wire: expected []string for 'as', got %T", v)
		}
		var encErr error
		e.arrayOf(4, func() {
			for _, s := range ss {
				e.str(s)
			}
		})
		return encErr
	}
	if elemSig == "{sv}" {
		m, ok := v.(map[string]Variant)
		if !ok {
			return fmt.Errorf("wire: expected map[string]Variant for 'a{sv}', got %T", v)
		}
		var encErr error
		e.arrayOf(8, func() {
			for k, val := range m {
				e.align(8)
				e.str(k)
				if err := e.variant(val); err != nil && encErr == nil {
					encErr = err
				}
			}
		})
		return encErr
	}
	return fmt.Errorf("wire: unsupported array element signature %q", elemSig)
}

// decoder reads a single message body out of a fixed byte slice.
type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) remaining() int { return len(d.data) - d.pos }

func (d *decoder) align(n int) error {
	pad := (n - d.pos%n) % n
	if d.remaining() < pad {
		return errShort
	}
	d.pos += pad
	return nil
}

func (d *decoder) byte() (byte, error) {
	if d.remaining() < 1 {
		return 0, errShort
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) uint16() (uint16, error) {
	if err := d.align(2); err != nil {
		return 0, err
	}
	if d.remaining() < 2 {
		return 0, errShort
	}
	v := binary.LittleEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) uint32() (uint32, error) {
	if err := d.align(4); err != nil {
		return 0, err
	}
	if d.remaining() < 4 {
		return 0, errShort
	}
	v := binary.LittleEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) uint64() (uint64, error) {
	if err := d.align(8); err != nil {
		return 0, err
	}
	if d.remaining() < 8 {
		return 0, errShort
	}
	v := binary.LittleEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) boolean() (bool, error) {
	v, err := d.uint32()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (d *decoder) str() (string, error) {
	n, err := d.uint32()
	if err != nil {
		return "", err
	}
	if d.remaining() < int(n)+1 {
		return "", errShort
	}
	s := string(d.data[d.pos : d.pos+int(n)])
	d.pos += int(n) + 1 // skip NUL
	return s, nil
}

func (d *decoder) sigStr() (string, error) {
	n, err := d.byte()
	if err != nil {
		return "", err
	}
	if d.remaining() < int(n)+1 {
		return "", errShort
	}
	s := string(d.data[d.pos : d.pos+int(n)])
	d.pos += int(n) + 1
	return s, nil
}

func (d *decoder) variant() (Variant, error) {
	sig, err := d.sigStr()
	if err != nil {
		return Variant{}, err
	}
	v, err := d.value(sig)
	if err != nil {
		return Variant{}, err
	}
	return Variant{Sig: Signature(sig), Value: v}, nil
}

// value decodes exactly one complete type (scalar or container) per sig.
func (d *decoder) value(sig string) (any, error) {
	if sig == "" {
		return nil, nil
	}
	switch sig[0] {
	case 'y':
		return d.byte()
	case 'b':
		return d.boolean()
	case 'n':
		v, err := d.uint16()
		return int16(v), err
	case 'q':
		return d.uint16()
	case 'i':
		v, err := d.uint32()
		return int32(v), err
	case 'u':
		return d.uint32()
	case 'x':
		v, err := d.uint64()
		return int64(v), err
	case 't':
		return d.uint64()
	case 'd':
		return d.uint64() // callers needing float64 reinterpret; unused by broker
	case 's':
		return d.str()
	case 'o':
		s, err := d.str()
		return ObjectPath(s), err
	case 'g':
		s, err := d.sigStr()
		return Signature(s), err
	case 'v':
		return d.variant()
	case 'a':
		return d.array(sig)
	default:
		return nil, fmt.Errorf("wire: unsupported type code %q", sig[0])
	}
}

func (d *decoder) array(sig string) (any, error) {
	elemSig := sig[1:]
	length, err := d.uint32()
	if err != nil {
		return nil, err
	}
	switch {
	case elemSig == "s":
		if err := d.align(4); err != nil {
			return nil, err
		}
		end := d.pos + int(length)
		var out []string
		for d.pos < end {
			s, err := d.str()
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case elemSig == "{sv}":
		if err := d.align(8); err != nil {
			return nil, err
		}
		end := d.pos + int(length)
		out := map[string]Variant{}
		for d.pos < end {
			if err := d.align(8); err != nil {
				return nil, err
			}
			k, err := d.str()
			if err != nil {
				return nil, err
			}
			val, err := d.variant()
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("wire: unsupported array element signature %q", elemSig)
	}
}
