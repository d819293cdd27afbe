package packets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectEncode(t *testing.T) {
	pk := Packet{
		FixedHeader:      FixedHeader{Type: Connect},
		ProtocolName:     "MQTT",
		ProtocolVersion:  4,
		CleanSession:     true,
		Keepalive:        60,
		ClientIdentifier: "zen",
	}

	buf := new(bytes.Buffer)
	require.NoError(t, pk.ConnectEncode(buf))

	require.Equal(t, []byte{
		Connect << 4, 13, // fixed header
		4, 'M', 'Q', 'T', 'T', // protocol name
		4,          // protocol level
		0x02,       // connect flags: clean session
		0x00, 0x3c, // keepalive 60
		3, 'z', 'e', 'n', // client id
	}, buf.Bytes())
}

func TestConnectEncodeWill(t *testing.T) {
	pk := Packet{
		FixedHeader:      FixedHeader{Type: Connect},
		ProtocolName:     "MQTT",
		ProtocolVersion:  4,
		CleanSession:     true,
		Keepalive:        10,
		ClientIdentifier: "c",
		WillFlag:         true,
		WillTopic:        "lwt",
		WillMessage:      []byte("bye"),
		WillQos:          1,
		WillRetain:       true,
	}

	buf := new(bytes.Buffer)
	require.NoError(t, pk.ConnectEncode(buf))

	require.Equal(t, []byte{
		Connect << 4, 19,
		4, 'M', 'Q', 'T', 'T',
		4,
		0x02 | 0x04 | 1<<3 | 1<<5, // clean session, will flag, will qos 1, will retain
		0x00, 0x0a,
		1, 'c',
		3, 'l', 'w', 't',
		3, 'b', 'y', 'e',
	}, buf.Bytes())
}

func TestConnectEncodeCredentials(t *testing.T) {
	pk := Packet{
		FixedHeader:      FixedHeader{Type: Connect},
		ProtocolName:     "MQTT",
		ProtocolVersion:  4,
		CleanSession:     true,
		Keepalive:        60,
		ClientIdentifier: "c",
		UsernameFlag:     true,
		Username:         "bob",
		PasswordFlag:     true,
		Password:         []byte("pw"),
	}

	buf := new(bytes.Buffer)
	require.NoError(t, pk.ConnectEncode(buf))

	require.Equal(t, []byte{
		Connect << 4, 18,
		4, 'M', 'Q', 'T', 'T',
		4,
		0x02 | 1<<6 | 1<<7, // clean session, password flag, username flag
		0x00, 0x3c,
		1, 'c',
		3, 'b', 'o', 'b',
		2, 'p', 'w',
	}, buf.Bytes())
}

func TestConnackDecode(t *testing.T) {
	pk := new(Packet)
	require.NoError(t, pk.ConnackDecode([]byte{0x01, 0x00}))
	require.True(t, pk.SessionPresent)
	require.Equal(t, ConnackAccepted, pk.ReturnCode)

	pk = new(Packet)
	require.NoError(t, pk.ConnackDecode([]byte{0x00, 0x05}))
	require.False(t, pk.SessionPresent)
	require.Equal(t, byte(0x05), pk.ReturnCode)
}

func TestConnackDecodeShort(t *testing.T) {
	pk := new(Packet)
	require.ErrorIs(t, pk.ConnackDecode([]byte{0x00}), ErrMalformedReturnCode)
	require.ErrorIs(t, pk.ConnackDecode(nil), ErrMalformedSessionPresent)
}

func TestPublishEncodeQos0(t *testing.T) {
	pk := Packet{
		FixedHeader: FixedHeader{Type: Publish},
		TopicName:   "a/b",
		Payload:     []byte("hi"),
	}

	buf := new(bytes.Buffer)
	require.NoError(t, pk.PublishEncode(buf))
	require.Equal(t, []byte{Publish << 4, 6, 3, 'a', '/', 'b', 'h', 'i'}, buf.Bytes())
}

func TestPublishEncodeQos1(t *testing.T) {
	pk := Packet{
		FixedHeader: FixedHeader{Type: Publish, Qos: 1, Retain: true},
		TopicName:   "a",
		PacketID:    511,
		Payload:     []byte("x"),
	}

	buf := new(bytes.Buffer)
	require.NoError(t, pk.PublishEncode(buf))
	require.Equal(t, []byte{Publish<<4 | 1<<1 | 1, 5, 1, 'a', 0x01, 0xff, 'x'}, buf.Bytes())
}

func TestPublishEncodeMissingID(t *testing.T) {
	pk := Packet{
		FixedHeader: FixedHeader{Type: Publish, Qos: 1},
		TopicName:   "a",
	}
	require.ErrorIs(t, pk.PublishEncode(new(bytes.Buffer)), ErrMissingPacketID)
}

func TestPublishDecode(t *testing.T) {
	pk := Packet{FixedHeader: FixedHeader{Type: Publish, Qos: 1}}
	require.NoError(t, pk.PublishDecode([]byte{1, 'a', 0x01, 0xff, 'x', 'y'}))
	require.Equal(t, "a", pk.TopicName)
	require.Equal(t, uint16(511), pk.PacketID)
	require.Equal(t, []byte("xy"), pk.Payload)

	pk = Packet{FixedHeader: FixedHeader{Type: Publish}}
	require.NoError(t, pk.PublishDecode([]byte{1, 'a', 'x', 'y'}))
	require.Equal(t, "a", pk.TopicName)
	require.Zero(t, pk.PacketID)
	require.Equal(t, []byte("xy"), pk.Payload)
}

func TestPublishDecodeMalformed(t *testing.T) {
	pk := Packet{FixedHeader: FixedHeader{Type: Publish, Qos: 1}}
	require.ErrorIs(t, pk.PublishDecode([]byte{5, 'a'}), ErrMalformedTopic)

	pk = Packet{FixedHeader: FixedHeader{Type: Publish, Qos: 1}}
	require.ErrorIs(t, pk.PublishDecode([]byte{1, 'a', 0x01}), ErrMalformedPacketID)
}

func TestSubscribeEncode(t *testing.T) {
	pk := Packet{
		FixedHeader: FixedHeader{Type: Subscribe},
		PacketID:    7,
		Topics:      []string{"a/b", "c"},
		Qoss:        []byte{1, 2},
	}

	buf := new(bytes.Buffer)
	require.NoError(t, pk.SubscribeEncode(buf))
	require.Equal(t, []byte{
		Subscribe << 4, 10,
		0x00, 0x07,
		3, 'a', '/', 'b', 1,
		1, 'c', 2,
	}, buf.Bytes())
}

func TestSubscribeEncodeMissingID(t *testing.T) {
	pk := Packet{FixedHeader: FixedHeader{Type: Subscribe}, Topics: []string{"a"}, Qoss: []byte{0}}
	require.ErrorIs(t, pk.SubscribeEncode(new(bytes.Buffer)), ErrMissingPacketID)
}

func TestSubackDecode(t *testing.T) {
	pk := new(Packet)
	require.NoError(t, pk.SubackDecode([]byte{0x00, 0x07, 0x01, 0x80}))
	require.Equal(t, uint16(7), pk.PacketID)
	require.Equal(t, []byte{0x01, 0x80}, pk.ReturnCodes)

	pk = new(Packet)
	require.ErrorIs(t, pk.SubackDecode([]byte{0x00}), ErrMalformedPacketID)
}

func TestUnsubscribeEncode(t *testing.T) {
	pk := Packet{
		FixedHeader: FixedHeader{Type: Unsubscribe},
		PacketID:    8,
		Topics:      []string{"a/b", "c"},
	}

	buf := new(bytes.Buffer)
	require.NoError(t, pk.UnsubscribeEncode(buf))
	require.Equal(t, []byte{
		Unsubscribe << 4, 8,
		0x00, 0x08,
		3, 'a', '/', 'b',
		1, 'c',
	}, buf.Bytes())
}

func TestAckRoundtrip(t *testing.T) {
	pk := Packet{FixedHeader: FixedHeader{Type: Puback}, PacketID: 4321}
	buf := new(bytes.Buffer)
	require.NoError(t, pk.PubackEncode(buf))
	require.Equal(t, []byte{Puback << 4, 2, 0x10, 0xe1}, buf.Bytes())

	dec := new(Packet)
	require.NoError(t, dec.PubackDecode(buf.Bytes()[2:]))
	require.Equal(t, pk.PacketID, dec.PacketID)
}

func TestPubrelEncodeFlags(t *testing.T) {
	pk := Packet{FixedHeader: FixedHeader{Type: Pubrel, Qos: 1}, PacketID: 9}
	buf := new(bytes.Buffer)
	require.NoError(t, pk.PubrelEncode(buf))
	require.Equal(t, []byte{Pubrel<<4 | 1<<1, 2, 0x00, 0x09}, buf.Bytes())
}

func TestPingreqDisconnectEncode(t *testing.T) {
	pk := Packet{FixedHeader: FixedHeader{Type: Pingreq}}
	buf := new(bytes.Buffer)
	require.NoError(t, pk.PingreqEncode(buf))
	require.Equal(t, []byte{Pingreq << 4, 0}, buf.Bytes())

	pk = Packet{FixedHeader: FixedHeader{Type: Disconnect}}
	buf = new(bytes.Buffer)
	require.NoError(t, pk.DisconnectEncode(buf))
	require.Equal(t, []byte{Disconnect << 4, 0}, buf.Bytes())
}
