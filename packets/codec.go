package packets

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"
	"unsafe"
)

// MaxRemainingLength is the largest value the 4-byte variable length
// integer can carry (2^28 - 1).
const MaxRemainingLength = 268435455

// bytesToString provides a zero-alloc, no-copy byte to string conversion.
// via https://github.com/golang/go/issues/25484#issuecomment-391415660
func bytesToString(bs []byte) string {
	return *(*string)(unsafe.Pointer(&bs))
}

// decodeByte extracts the value of a byte from a byte array.
func decodeByte(buf []byte, offset int) (byte, int, error) {
	if len(buf) <= offset {
		return 0, 0, ErrInsufficientBytes
	}
	return buf[offset], offset + 1, nil
}

// decodeByteBool extracts the value of a byte from a byte array and returns a bool.
func decodeByteBool(buf []byte, offset int) (bool, int, error) {
	if len(buf) <= offset {
		return false, 0, ErrInsufficientBytes
	}
	return 1&buf[offset] > 0, offset + 1, nil
}

// decodeUint16 extracts the value of two bytes from a byte array.
func decodeUint16(buf []byte, offset int) (uint16, int, error) {
	if len(buf) < offset+2 {
		return 0, 0, ErrInsufficientBytes
	}

	return binary.BigEndian.Uint16(buf[offset : offset+2]), offset + 2, nil
}

// decodeShortBytes extracts a 1-byte length-prefixed byte array, the framing
// used for topics, client ids, credentials and will fields on the wire.
func decodeShortBytes(buf []byte, offset int) ([]byte, int, error) {
	length, next, err := decodeByte(buf, offset)
	if err != nil {
		return nil, 0, err
	}

	if next+int(length) > len(buf) {
		return nil, 0, ErrTruncatedBytes
	}

	return buf[next : next+int(length)], next + int(length), nil
}

// decodeString extracts a 1-byte length-prefixed UTF-8 string.
func decodeString(buf []byte, offset int) (string, int, error) {
	b, n, err := decodeShortBytes(buf, offset)
	if err != nil {
		return "", 0, err
	}

	if !validUTF8(b) {
		return "", 0, ErrInvalidUTF8
	}

	return bytesToString(b), n, nil
}

// decodeBytes extracts a 2-byte big-endian length-prefixed byte array, the
// generic binary field form.
func decodeBytes(buf []byte, offset int) ([]byte, int, error) {
	length, next, err := decodeUint16(buf, offset)
	if err != nil {
		return nil, 0, err
	}

	if next+int(length) > len(buf) {
		return nil, 0, ErrTruncatedBytes
	}

	return buf[next : next+int(length)], next + int(length), nil
}

// decodeLength extracts a variable length integer of 1-4 bytes. Each byte
// carries 7 value bits, the high bit is the continuation flag. A missing
// terminator within the available bytes yields ErrInsufficientBytes so the
// caller can retry at the same offset once more data is buffered; a fourth
// byte carrying a continuation flag is an oversized indicator.
func decodeLength(buf []byte, offset int) (int, int, error) {
	var value uint32
	var shift uint
	for i := 0; i < 4; i++ {
		if len(buf) <= offset+i {
			return 0, 0, ErrInsufficientBytes
		}

		eb := buf[offset+i]
		value |= uint32(eb&127) << shift
		if eb&128 == 0 {
			return int(value), offset + i + 1, nil
		}

		shift += 7
	}

	return 0, 0, ErrOversizedLengthIndicator
}

// decodeBlob extracts a variable-length-integer-prefixed byte array. This is
// the resumable form control packet bodies arrive in: if either the length
// field or the body is not yet fully buffered, ErrInsufficientBytes is
// returned and no bytes are consumed.
func decodeBlob(buf []byte, offset int) ([]byte, int, error) {
	length, next, err := decodeLength(buf, offset)
	if err != nil {
		return nil, 0, err
	}

	if next+length > len(buf) {
		return nil, 0, ErrInsufficientBytes
	}

	return buf[next : next+length], next + length, nil
}

// encodeBool returns a byte instead of a bool.
func encodeBool(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// encodeUint16 encodes a uint16 value to a byte array.
func encodeUint16(val uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, val)
	return buf
}

// encodeShortBytes encodes a byte array with a 1-byte length prefix.
// Values longer than 255 bytes do not fit the prefix and are rejected.
func encodeShortBytes(val []byte) ([]byte, error) {
	if len(val) > 255 {
		return nil, ErrOversizedShortField
	}

	// In many circumstances the number of bytes being encoded is small.
	// Setting the cap to a low amount allows us to account for those without
	// triggering allocation growth on append unless we need to.
	buf := make([]byte, 1, 32)
	buf[0] = byte(len(val))
	return append(buf, val...), nil
}

// encodeString encodes a string with a 1-byte length prefix.
func encodeString(val string) ([]byte, error) {
	return encodeShortBytes([]byte(val))
}

// encodeBytes encodes a byte array with a 2-byte big-endian length prefix.
func encodeBytes(val []byte) []byte {
	buf := make([]byte, 2, 32)
	binary.BigEndian.PutUint16(buf, uint16(len(val)))
	return append(buf, val...)
}

// encodeLength writes a variable length integer of 1-4 bytes. Non-positive
// values write a single zero byte. Values above MaxRemainingLength cannot be
// represented and are rejected before anything is written.
func encodeLength(buf *bytes.Buffer, length int) error {
	if length <= 0 {
		buf.WriteByte(0)
		return nil
	}

	if length > MaxRemainingLength {
		return ErrOversizedLengthIndicator
	}

	for {
		digit := byte(length % 128)
		length /= 128
		if length > 0 {
			digit |= 0x80
		}
		buf.WriteByte(digit)
		if length == 0 {
			return nil
		}
	}
}

// validUTF8 checks if the byte array contains valid UTF-8 characters.
func validUTF8(b []byte) bool {
	return utf8.Valid(b) && bytes.IndexByte(b, 0x00) == -1
}
