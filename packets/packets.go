// Package packets implements the MQTT 3.1.1 control packet wire format:
// primitive field codecs, the fixed header, per-type packet encoding and
// decoding, and a framer that extracts whole packets from a stream of
// arbitrarily chunked transport frames.
package packets

import (
	"bytes"
	"errors"
	"fmt"
)

// All of the valid packet types and their packet identifier.
const (
	Reserved    byte = iota
	Connect          // 1
	Connack          // 2
	Publish          // 3
	Puback           // 4
	Pubrec           // 5
	Pubrel           // 6
	Pubcomp          // 7
	Subscribe        // 8
	Suback           // 9
	Unsubscribe      // 10
	Unsuback         // 11
	Pingreq          // 12
	Pingresp         // 13
	Disconnect       // 14

	// ConnackAccepted is the CONNACK return code for a successful handshake.
	ConnackAccepted byte = 0x00

	// SubackFailure is the granted-QoS byte a broker returns for a topic
	// it refused to subscribe.
	SubackFailure byte = 0x80
)

var (
	// Codec failures.
	ErrInsufficientBytes        = errors.New("insufficient bytes in buffer")
	ErrTruncatedBytes           = errors.New("length prefix exceeds remaining bytes")
	ErrOversizedLengthIndicator = errors.New("oversized length indicator")
	ErrOversizedShortField      = errors.New("field exceeds 1-byte length prefix")
	ErrInvalidUTF8              = errors.New("string is not valid utf8")
	ErrInvalidFlags             = errors.New("invalid flags set for packet")

	// Packet-level failures.
	ErrMissingPacketID         = errors.New("missing packet id")
	ErrMalformedTopic          = errors.New("malformed packet: topic name")
	ErrMalformedPacketID       = errors.New("malformed packet: packet id")
	ErrMalformedSessionPresent = errors.New("malformed packet: session present")
	ErrMalformedReturnCode     = errors.New("malformed packet: return code")
	ErrMalformedClientID       = errors.New("malformed packet: client id")
	ErrMalformedWillTopic      = errors.New("malformed packet: will topic")
	ErrMalformedWillMessage    = errors.New("malformed packet: will message")
	ErrMalformedUsername       = errors.New("malformed packet: username")
	ErrMalformedPassword       = errors.New("malformed packet: password")
	ErrMalformedProtocolName   = errors.New("malformed packet: protocol name")
)

// Packet is an MQTT packet. Instead of providing a packet interface and
// variant packet structs, this is a single concrete packet type covering all
// packet types, so values can be stack allocated and copied freely.
type Packet struct {
	FixedHeader      FixedHeader
	Topics           []string
	ReturnCodes      []byte
	Qoss             []byte
	Payload          []byte
	WillMessage      []byte
	Password         []byte
	ProtocolName     string
	ClientIdentifier string
	TopicName        string
	WillTopic        string
	Username         string
	PacketID         uint16
	Keepalive        uint16
	ReturnCode       byte
	ProtocolVersion  byte
	WillQos          byte
	CleanSession     bool
	WillFlag         bool
	WillRetain       bool
	UsernameFlag     bool
	PasswordFlag     bool
	SessionPresent   bool
}

// ConnectEncode encodes a CONNECT packet.
func (pk *Packet) ConnectEncode(buf *bytes.Buffer) error {
	protoName, err := encodeString(pk.ProtocolName)
	if err != nil {
		return fmt.Errorf("%s: %w", err, ErrMalformedProtocolName)
	}

	clientID, err := encodeString(pk.ClientIdentifier)
	if err != nil {
		return fmt.Errorf("%s: %w", err, ErrMalformedClientID)
	}

	flag := encodeBool(pk.CleanSession)<<1 | encodeBool(pk.WillFlag)<<2 | pk.WillQos<<3 | encodeBool(pk.WillRetain)<<5 | encodeBool(pk.PasswordFlag)<<6 | encodeBool(pk.UsernameFlag)<<7
	keepalive := encodeUint16(pk.Keepalive)

	var willTopic, willMessage, username, password []byte
	if pk.WillFlag {
		willTopic, err = encodeString(pk.WillTopic)
		if err != nil {
			return fmt.Errorf("%s: %w", err, ErrMalformedWillTopic)
		}

		willMessage, err = encodeShortBytes(pk.WillMessage)
		if err != nil {
			return fmt.Errorf("%s: %w", err, ErrMalformedWillMessage)
		}
	}

	if pk.UsernameFlag {
		username, err = encodeString(pk.Username)
		if err != nil {
			return fmt.Errorf("%s: %w", err, ErrMalformedUsername)
		}
	}

	if pk.PasswordFlag {
		password, err = encodeShortBytes(pk.Password)
		if err != nil {
			return fmt.Errorf("%s: %w", err, ErrMalformedPassword)
		}
	}

	pk.FixedHeader.Remaining =
		len(protoName) + 1 + 1 + len(keepalive) + len(clientID) +
			len(willTopic) + len(willMessage) +
			len(username) + len(password)

	err = pk.FixedHeader.Encode(buf)
	if err != nil {
		return err
	}

	buf.Write(protoName)
	buf.WriteByte(pk.ProtocolVersion)
	buf.WriteByte(flag)
	buf.Write(keepalive)
	buf.Write(clientID)
	buf.Write(willTopic)
	buf.Write(willMessage)
	buf.Write(username)
	buf.Write(password)

	return nil
}

// ConnackDecode decodes a CONNACK packet.
func (pk *Packet) ConnackDecode(buf []byte) error {
	var offset int
	var err error

	pk.SessionPresent, offset, err = decodeByteBool(buf, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", err, ErrMalformedSessionPresent)
	}

	pk.ReturnCode, _, err = decodeByte(buf, offset)
	if err != nil {
		return fmt.Errorf("%s: %w", err, ErrMalformedReturnCode)
	}

	return nil
}

// PublishEncode encodes a PUBLISH packet. The application payload rides as
// the raw remainder of the packet body, unframed.
func (pk *Packet) PublishEncode(buf *bytes.Buffer) error {
	topicName, err := encodeString(pk.TopicName)
	if err != nil {
		return fmt.Errorf("%s: %w", err, ErrMalformedTopic)
	}

	var packetID []byte

	// A packet identifier is only present when QoS is above best-effort.
	if pk.FixedHeader.Qos > 0 {
		if pk.PacketID == 0 {
			return ErrMissingPacketID
		}

		packetID = encodeUint16(pk.PacketID)
	}

	pk.FixedHeader.Remaining = len(topicName) + len(packetID) + len(pk.Payload)
	err = pk.FixedHeader.Encode(buf)
	if err != nil {
		return err
	}

	buf.Write(topicName)
	buf.Write(packetID)
	buf.Write(pk.Payload)

	return nil
}

// PublishDecode extracts the topic, optional packet id and payload from an
// inbound PUBLISH body. The QoS must already be set from the fixed header.
func (pk *Packet) PublishDecode(buf []byte) error {
	var offset int
	var err error

	pk.TopicName, offset, err = decodeString(buf, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", err, ErrMalformedTopic)
	}

	if pk.FixedHeader.Qos > 0 {
		pk.PacketID, offset, err = decodeUint16(buf, offset)
		if err != nil {
			return fmt.Errorf("%s: %w", err, ErrMalformedPacketID)
		}
	}

	pk.Payload = buf[offset:]

	return nil
}

// PubackEncode encodes a PUBACK packet.
func (pk *Packet) PubackEncode(buf *bytes.Buffer) error {
	return pk.encodeIDOnly(buf)
}

// PubackDecode decodes a PUBACK packet.
func (pk *Packet) PubackDecode(buf []byte) error {
	return pk.decodeIDOnly(buf)
}

// PubrecEncode encodes a PUBREC packet.
func (pk *Packet) PubrecEncode(buf *bytes.Buffer) error {
	return pk.encodeIDOnly(buf)
}

// PubrecDecode decodes a PUBREC packet.
func (pk *Packet) PubrecDecode(buf []byte) error {
	return pk.decodeIDOnly(buf)
}

// PubrelEncode encodes a PUBREL packet. The fixed header carries the QoS-1
// flag bit on this type.
func (pk *Packet) PubrelEncode(buf *bytes.Buffer) error {
	return pk.encodeIDOnly(buf)
}

// PubcompDecode decodes a PUBCOMP packet.
func (pk *Packet) PubcompDecode(buf []byte) error {
	return pk.decodeIDOnly(buf)
}

// SubscribeEncode encodes a SUBSCRIBE packet.
func (pk *Packet) SubscribeEncode(buf *bytes.Buffer) error {
	if pk.PacketID == 0 {
		return ErrMissingPacketID
	}

	packetID := encodeUint16(pk.PacketID)

	var body bytes.Buffer
	for i, topic := range pk.Topics {
		t, err := encodeString(topic)
		if err != nil {
			return fmt.Errorf("%s: %w", err, ErrMalformedTopic)
		}
		body.Write(t)
		body.WriteByte(pk.Qoss[i])
	}

	pk.FixedHeader.Remaining = len(packetID) + body.Len()
	err := pk.FixedHeader.Encode(buf)
	if err != nil {
		return err
	}

	buf.Write(packetID)
	buf.Write(body.Bytes())

	return nil
}

// SubackDecode decodes a SUBACK packet. The granted return codes are the
// body remainder, one byte per requested topic in request order.
func (pk *Packet) SubackDecode(buf []byte) error {
	var offset int
	var err error

	pk.PacketID, offset, err = decodeUint16(buf, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", err, ErrMalformedPacketID)
	}

	pk.ReturnCodes = buf[offset:]

	return nil
}

// UnsubscribeEncode encodes an UNSUBSCRIBE packet.
func (pk *Packet) UnsubscribeEncode(buf *bytes.Buffer) error {
	if pk.PacketID == 0 {
		return ErrMissingPacketID
	}

	packetID := encodeUint16(pk.PacketID)

	var body bytes.Buffer
	for _, topic := range pk.Topics {
		t, err := encodeString(topic)
		if err != nil {
			return fmt.Errorf("%s: %w", err, ErrMalformedTopic)
		}
		body.Write(t)
	}

	pk.FixedHeader.Remaining = len(packetID) + body.Len()
	err := pk.FixedHeader.Encode(buf)
	if err != nil {
		return err
	}

	buf.Write(packetID)
	buf.Write(body.Bytes())

	return nil
}

// UnsubackDecode decodes an UNSUBACK packet.
func (pk *Packet) UnsubackDecode(buf []byte) error {
	return pk.decodeIDOnly(buf)
}

// PingreqEncode encodes a PINGREQ packet.
func (pk *Packet) PingreqEncode(buf *bytes.Buffer) error {
	return pk.FixedHeader.Encode(buf)
}

// DisconnectEncode encodes a DISCONNECT packet.
func (pk *Packet) DisconnectEncode(buf *bytes.Buffer) error {
	return pk.FixedHeader.Encode(buf)
}

// encodeIDOnly encodes the common acknowledgement shape of a fixed header
// followed by a 2-byte packet identifier.
func (pk *Packet) encodeIDOnly(buf *bytes.Buffer) error {
	pk.FixedHeader.Remaining = 2
	err := pk.FixedHeader.Encode(buf)
	if err != nil {
		return err
	}
	buf.Write(encodeUint16(pk.PacketID))
	return nil
}

// decodeIDOnly decodes a body consisting solely of a 2-byte packet identifier.
func (pk *Packet) decodeIDOnly(buf []byte) error {
	var err error
	pk.PacketID, _, err = decodeUint16(buf, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", err, ErrMalformedPacketID)
	}
	return nil
}
