package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockDial(t *testing.T) {
	m := NewMock()
	require.Equal(t, Closed, m.Status())

	require.NoError(t, m.Dial("ws://x"))
	require.Equal(t, "ws://x", m.Dialed)
	require.Equal(t, Connecting, m.Status())

	m.ErrDial = errors.New("refused")
	require.Error(t, m.Dial("ws://y"))
}

func TestMockSend(t *testing.T) {
	m := NewMock()
	require.ErrorIs(t, m.Send([]byte{1}), ErrNotOpen)

	m.SetStatus(Open)
	require.NoError(t, m.Send([]byte{1}))
	require.NoError(t, m.Send([]byte{2}))
	require.Equal(t, [][]byte{{1}, {2}}, m.Sent)

	m.ErrSend = errors.New("broken pipe")
	require.Error(t, m.Send([]byte{3}))
	require.Len(t, m.Sent, 2)
}

func TestMockDeliverReceive(t *testing.T) {
	m := NewMock()
	require.Empty(t, m.Receive())

	m.Deliver([]byte{1}, []byte{2})
	require.Equal(t, [][]byte{{1}, {2}}, m.Receive())
	require.Empty(t, m.Receive())
}

func TestMockClose(t *testing.T) {
	m := NewMock()
	m.SetStatus(Open)
	m.Deliver([]byte{1})

	require.NoError(t, m.Close())
	require.Equal(t, 1, m.CloseCnt)
	require.Equal(t, Closed, m.Status())
	require.Empty(t, m.Receive())
}
