package packets

// minPacketLen is the smallest possible control packet: one control byte and
// a single-byte remaining length of zero.
const minPacketLen = 2

// Framer accumulates raw transport bytes and extracts whole control packets.
// MQTT packets need not align with transport frame boundaries, so pushed
// frames are concatenated and extraction is purely speculative: a partial
// packet leaves the buffer untouched until more bytes arrive.
type Framer struct {
	buf []byte
}

// NewFramer returns a new instance of Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Push appends a transport frame to the receive buffer.
func (f *Framer) Push(p []byte) {
	f.buf = append(f.buf, p...)
}

// Buffered returns the number of bytes awaiting extraction.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards all buffered bytes.
func (f *Framer) Reset() {
	f.buf = nil
}

// Next extracts the next complete packet from the buffer. It returns the
// decoded fixed header and the packet body, and discards the consumed bytes
// so fully parsed packets never accumulate. When the buffer holds less than
// a whole packet, ok is false and the buffer is left exactly as it was.
//
// Flag combinations the fixed header rejects are still consumed and
// returned with err set, so the stream can continue past them.
func (f *Framer) Next() (fh FixedHeader, payload []byte, ok bool, err error) {
	if len(f.buf) < minPacketLen {
		return fh, nil, false, nil
	}

	ctrl := f.buf[0]

	body, next, derr := decodeBlob(f.buf, 1)
	if derr != nil {
		// Not an extraction failure, just not enough bytes yet. An
		// oversized length indicator can never complete, but there is no
		// resync point in the stream either way; the session is torn down
		// by the transport, not the framer.
		return fh, nil, false, nil
	}

	payload = make([]byte, len(body))
	copy(payload, body)
	f.buf = f.buf[next:]
	if len(f.buf) == 0 {
		f.buf = nil
	}

	err = fh.Decode(ctrl)
	return fh, payload, true, err
}
