package wire

import "bytes"

// ReadBuffer reframes bytes arriving on a session's transport into complete
// protocol units: SASL lines during the auth phase, D-Bus messages during
// the message phase. Its contract mirrors the record-marking reframing the
// adapter layer already does for length-prefixed RPC fragments: never
// consume a partial unit, and never corrupt the read offset on a short read.
type ReadBuffer struct {
	buf    []byte
	offset int
}

// WriteBytes appends newly-received bytes to the buffer.
func (r *ReadBuffer) WriteBytes(b []byte) {
	r.buf = append(r.buf, b...)
}

// ReadLine extracts one \r\n-terminated line starting at the current offset.
// It returns ("", false) if no full line is present yet; the offset is left
// unchanged in that case.
func (r *ReadBuffer) ReadLine() (string, bool) {
	rest := r.buf[r.offset:]
	idx := bytes.Index(rest, []byte("\r\n"))
	if idx < 0 {
		return "", false
	}
	line := string(rest[:idx])
	r.offset += idx + 2
	return line, true
}

// ReadMessage decodes one complete D-Bus message starting at the current
// offset. It returns (nil, false, nil) if the buffer does not yet hold a
// complete message — the read offset is NOT advanced in that case, which is
// the "rewind" behavior the framing loop relies on to retry after the next
// chunk of bytes arrives.
func (r *ReadBuffer) ReadMessage() (*Message, bool, error) {
	m, n, err := decodeMessage(r.buf[r.offset:])
	if err == errShort {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	r.offset += n
	return m, true, nil
}

// Offset returns the current read offset, for tests asserting rewind safety.
func (r *ReadBuffer) Offset() int { return r.offset }

// SetOffset is exposed for tests exercising the rewind invariant directly.
func (r *ReadBuffer) SetOffset(n int) { r.offset = n }

// Flush compacts the buffer, discarding bytes already consumed.
func (r *ReadBuffer) Flush() {
	if r.offset == 0 {
		return
	}
	r.buf = append([]byte(nil), r.buf[r.offset:]...)
	r.offset = 0
}

// WriteBuffer accumulates the wire form of outgoing messages.
type WriteBuffer struct {
	buf bytes.Buffer
}

// WriteMessage appends the encoded wire form of m.
func (w *WriteBuffer) WriteMessage(m *Message) error {
	b, err := encodeMessage(m)
	if err != nil {
		return err
	}
	w.buf.Write(b)
	return nil
}

// Data returns the accumulated bytes ready to be written to the transport.
// The caller is expected to write them and then discard the buffer.
func (w *WriteBuffer) Data() []byte {
	return w.buf.Bytes()
}

// Reset clears the buffer after its data has been written out.
func (w *WriteBuffer) Reset() {
	w.buf.Reset()
}
