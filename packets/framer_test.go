package packets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// publishFrame builds a complete QoS 0 PUBLISH packet for framing tests.
func publishFrame(t *testing.T, topic, payload string) []byte {
	t.Helper()
	pk := Packet{
		FixedHeader: FixedHeader{Type: Publish},
		TopicName:   topic,
		Payload:     []byte(payload),
	}
	buf := new(bytes.Buffer)
	require.NoError(t, pk.PublishEncode(buf))
	return buf.Bytes()
}

func TestFramerSinglePacket(t *testing.T) {
	f := NewFramer()
	raw := publishFrame(t, "a/b", "hello")
	f.Push(raw)

	fh, payload, ok, err := f.Next()
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, Publish, fh.Type)
	require.Equal(t, raw[2:], payload)
	require.Zero(t, f.Buffered())

	_, _, ok, _ = f.Next()
	require.False(t, ok)
}

// Feeding a packet whole and feeding the same bytes split across arbitrary
// chunk boundaries must produce identical results and residual state.
func TestFramerChunkedDeliveryEquivalence(t *testing.T) {
	raw := publishFrame(t, "sensors/temp", "21.5")

	whole := NewFramer()
	whole.Push(raw)
	wfh, wpayload, ok, err := whole.Next()
	require.True(t, ok)
	require.NoError(t, err)

	for cut := 1; cut < len(raw); cut++ {
		f := NewFramer()
		f.Push(raw[:cut])

		_, _, ok, _ := f.Next()
		require.False(t, ok, "cut %d: partial packet must not extract", cut)
		require.Equal(t, cut, f.Buffered(), "cut %d: buffer must be untouched", cut)

		f.Push(raw[cut:])
		fh, payload, ok, err := f.Next()
		require.True(t, ok, "cut %d", cut)
		require.NoError(t, err, "cut %d", cut)
		require.Equal(t, wfh, fh, "cut %d", cut)
		require.Equal(t, wpayload, payload, "cut %d", cut)
		require.Equal(t, whole.Buffered(), f.Buffered(), "cut %d", cut)
	}
}

func TestFramerThreeWaySplit(t *testing.T) {
	raw := publishFrame(t, "a", "abcdefgh")

	f := NewFramer()
	f.Push(raw[:2])
	f.Push(raw[2:5])

	_, _, ok, _ := f.Next()
	require.False(t, ok)

	f.Push(raw[5:])
	fh, payload, ok, err := f.Next()
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, Publish, fh.Type)
	require.Equal(t, raw[2:], payload)
}

func TestFramerBatchedPackets(t *testing.T) {
	// Two packets in one frame plus the front half of a third.
	a := publishFrame(t, "a", "1")
	b := publishFrame(t, "b", "2")
	c := publishFrame(t, "c", "3")

	f := NewFramer()
	f.Push(append(append(append([]byte{}, a...), b...), c[:3]...))

	fh, payload, ok, err := f.Next()
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, a[2:], payload)
	require.Equal(t, Publish, fh.Type)

	_, payload, ok, err = f.Next()
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, b[2:], payload)

	_, _, ok, _ = f.Next()
	require.False(t, ok)
	require.Equal(t, 3, f.Buffered())

	f.Push(c[3:])
	_, payload, ok, err = f.Next()
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, c[2:], payload)
	require.Zero(t, f.Buffered())
}

func TestFramerBelowMinimum(t *testing.T) {
	f := NewFramer()
	f.Push([]byte{Publish << 4})

	_, _, ok, _ := f.Next()
	require.False(t, ok)
	require.Equal(t, 1, f.Buffered())
}

func TestFramerInvalidFlagsStillConsumed(t *testing.T) {
	// A CONNACK with a reserved flag bit set: the packet is consumed so the
	// stream continues, but the flag error is surfaced.
	f := NewFramer()
	f.Push([]byte{Connack<<4 | 0x01, 2, 0x00, 0x00})
	f.Push(publishFrame(t, "a", "x"))

	_, _, ok, err := f.Next()
	require.True(t, ok)
	require.ErrorIs(t, err, ErrInvalidFlags)

	fh, _, ok, err := f.Next()
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, Publish, fh.Type)
}

func TestFramerReset(t *testing.T) {
	f := NewFramer()
	f.Push([]byte{Publish << 4, 100, 1, 2, 3})
	require.Equal(t, 5, f.Buffered())

	f.Reset()
	require.Zero(t, f.Buffered())
}

func TestFramerEmptyBodyPacket(t *testing.T) {
	f := NewFramer()
	f.Push([]byte{Pingresp << 4, 0})

	fh, payload, ok, err := f.Next()
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, Pingresp, fh.Type)
	require.Empty(t, payload)
}
