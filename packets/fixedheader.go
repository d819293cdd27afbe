package packets

import (
	"bytes"
)

// FixedHeader contains the values of the fixed header portion of the MQTT packet.
type FixedHeader struct {
	Remaining int  // the number of remaining bytes in the payload.
	Type      byte // the type of the packet (PUBLISH, SUBSCRIBE, etc) from bits 7 - 4 (byte 1).
	Qos       byte // indicates the quality of service expected.
	Dup       bool // indicates if the packet was already sent at an earlier time.
	Retain    bool // whether the message should be retained.
}

// Encode writes the control byte and the remaining length to buf. The
// remaining length must fit the 4-byte variable length integer.
func (fh *FixedHeader) Encode(buf *bytes.Buffer) error {
	buf.WriteByte(fh.Type<<4 | encodeBool(fh.Dup)<<3 | fh.Qos<<1 | encodeBool(fh.Retain))
	return encodeLength(buf, fh.Remaining)
}

// Decode extracts the packet type and flag bits from the header byte.
func (fh *FixedHeader) Decode(headerByte byte) error {
	fh.Type = headerByte >> 4

	switch fh.Type {
	case Publish:
		fh.Dup = (headerByte>>3)&0x01 > 0
		fh.Qos = (headerByte >> 1) & 0x03
		fh.Retain = headerByte&0x01 > 0
	case Pubrel, Subscribe, Unsubscribe:
		fh.Qos = (headerByte >> 1) & 0x03
	default:
		// Reserved flag bits must be zero on every other type.
		if headerByte&0x0F > 0 {
			return ErrInvalidFlags
		}
	}

	return nil
}
