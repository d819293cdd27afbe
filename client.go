// Package mqttnode implements an MQTT 3.1.1 client over a message-oriented
// duplex transport such as a websocket. The client is cooperative and
// tick-driven: the embedding application calls Poll on an interval, and all
// protocol work — handshake, packet dispatch, QoS flows, keepalive — happens
// on that single path. Waiting is state carried between polls, never a
// blocked call.
package mqttnode

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"log/slog"

	"github.com/freehuntx/mqtt-node/packets"
	"github.com/freehuntx/mqtt-node/transport"
	"github.com/jinzhu/copier"
)

// Version is the current client version.
const Version = "0.1.0"

// LatencyUnknown is reported until the first PINGRESP is measured.
const LatencyUnknown time.Duration = -1

var (
	ErrNoTransport    = errors.New("no transport attached")    // the client has no transport to connect with
	ErrTransportInUse = errors.New("transport already in use") // a session is already connecting or connected
	ErrNotConnected   = errors.New("not connected")            // the operation needs an established session
	ErrClosed         = errors.New("client closed")            // the client was permanently closed
)

// State is the connection state of the client session.
type State byte

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking // transport open, CONNECT sent, awaiting CONNACK
	StateEstablished
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// Subscription pairs a topic filter with a QoS level.
type Subscription struct {
	Topic string
	Qos   byte
}

// Client is a single MQTT session over one transport. All fields are
// mutated exclusively by Poll and the public operations; the client is not
// safe for concurrent use from multiple goroutines.
type Client struct {
	options       Options
	log           *slog.Logger
	tr            transport.Transport
	state         State
	framer        *packets.Framer
	inflight      *Inflight
	subscriptions map[string]byte
	handler       EventHandler
	lastStatus    transport.Status
	keepalive     uint16    // wire keepalive seconds, clamped at CONNECT time
	lastPing      time.Time // last PINGREQ, or session establishment
	latency       time.Duration
}

// New returns a new Client over the given transport. The options value is
// snapshotted; later mutation by the caller does not reach the session.
func New(tr transport.Transport, opts *Options) *Client {
	c := &Client{
		tr:            tr,
		framer:        packets.NewFramer(),
		inflight:      NewInflight(rand.New(rand.NewSource(time.Now().UnixNano()))),
		subscriptions: map[string]byte{},
		latency:       LatencyUnknown,
	}

	if opts != nil {
		if err := copier.Copy(&c.options, opts); err != nil {
			c.options = *opts
		}
	}
	c.options.ensureDefaults()

	c.log = c.options.Logger
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	c.log = c.log.With(slog.String("client", c.options.ClientID))

	return c
}

// OnEvent installs the handler receiving client notifications. The handler
// runs synchronously on the poll path.
func (c *Client) OnEvent(h EventHandler) {
	c.handler = h
}

// State returns the current session state.
func (c *Client) State() State {
	return c.state
}

// Latency returns the most recent round-trip latency measurement, or
// LatencyUnknown before the first PINGRESP.
func (c *Client) Latency() time.Duration {
	return c.latency
}

// Pending returns the number of requests awaiting acknowledgement.
func (c *Client) Pending() int {
	return c.inflight.Len()
}

// Subscriptions returns a copy of the granted subscriptions, topic filter
// to granted QoS.
func (c *Client) Subscriptions() map[string]byte {
	out := make(map[string]byte, len(c.subscriptions))
	for k, v := range c.subscriptions {
		out[k] = v
	}
	return out
}

// Connect begins opening the transport toward the configured broker. The
// handshake continues across subsequent Poll calls; success is signalled by
// a connected event.
func (c *Client) Connect() error {
	if c.tr == nil {
		return c.opFailed(ErrNoTransport)
	}

	if c.state == StateClosed {
		return c.opFailed(ErrClosed)
	}

	if c.state != StateDisconnected {
		return c.opFailed(ErrTransportInUse)
	}

	if err := c.tr.Dial(c.options.Broker); err != nil {
		c.emit(Event{Kind: EventConnectingFailed, Reason: err.Error()})
		return err
	}

	c.state = StateConnecting
	c.lastStatus = transport.Connecting
	c.log.Info("connecting", slog.String("broker", c.options.Broker))
	c.emit(Event{Kind: EventConnecting})
	return nil
}

// Disconnect gracefully ends the session: a DISCONNECT packet is sent, the
// transport is closed and all session state is discarded. Outstanding
// publishes and subscribes vanish without individual notification.
func (c *Client) Disconnect() error {
	if c.tr == nil {
		return c.opFailed(ErrNoTransport)
	}

	if c.state != StateEstablished {
		return c.opFailed(ErrNotConnected)
	}

	c.send(&packets.Packet{FixedHeader: packets.FixedHeader{Type: packets.Disconnect}})
	c.tr.Close()
	c.reset()
	c.log.Info("disconnected")
	c.emit(Event{Kind: EventDisconnected})
	return nil
}

// Close permanently tears the client down. Unlike Disconnect, the session
// cannot be reopened afterwards.
func (c *Client) Close() error {
	if c.tr != nil && c.state == StateEstablished {
		c.send(&packets.Packet{FixedHeader: packets.FixedHeader{Type: packets.Disconnect}})
	}
	if c.tr != nil {
		c.tr.Close()
	}
	c.reset()
	c.state = StateClosed
	return nil
}

// Publish sends an application message. For QoS above best-effort a packet
// identifier is allocated and the message is tracked until the matching
// PUBACK (QoS 1) or PUBCOMP (QoS 2) arrives.
func (c *Client) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if c.state != StateEstablished {
		return c.opFailed(ErrNotConnected)
	}

	pk := packets.Packet{
		FixedHeader: packets.FixedHeader{Type: packets.Publish, Qos: qos, Retain: retain},
		TopicName:   topic,
		Payload:     payload,
	}

	var id uint16
	if qos > 0 {
		var err error
		id, err = c.inflight.NextID()
		if err != nil {
			return c.opFailed(err)
		}
		pk.PacketID = id
	}

	if err := c.send(&pk); err != nil {
		return err
	}

	if qos > 0 {
		c.inflight.Set(id, PendingPublish{Qos: qos, Retain: retain})
	}

	return nil
}

// Subscribe requests a single subscription.
func (c *Client) Subscribe(topic string, qos byte) error {
	return c.SubscribeMultiple([]Subscription{{Topic: topic, Qos: qos}})
}

// SubscribeMultiple requests several subscriptions in one SUBSCRIBE packet.
// The request order is retained so the SUBACK's granted-QoS bytes can be
// matched back to their topics.
func (c *Client) SubscribeMultiple(subs []Subscription) error {
	if c.state != StateEstablished {
		return c.opFailed(ErrNotConnected)
	}

	id, err := c.inflight.NextID()
	if err != nil {
		return c.opFailed(err)
	}

	pk := packets.Packet{
		FixedHeader: packets.FixedHeader{Type: packets.Subscribe},
		PacketID:    id,
		Topics:      make([]string, 0, len(subs)),
		Qoss:        make([]byte, 0, len(subs)),
	}
	for _, s := range subs {
		pk.Topics = append(pk.Topics, s.Topic)
		pk.Qoss = append(pk.Qoss, s.Qos)
	}

	if err := c.send(&pk); err != nil {
		return err
	}

	c.inflight.Set(id, PendingSubscribe{Topics: pk.Topics, Qoss: pk.Qoss})
	return nil
}

// Unsubscribe removes a single subscription.
func (c *Client) Unsubscribe(topic string) error {
	return c.UnsubscribeMultiple([]string{topic})
}

// UnsubscribeMultiple removes several subscriptions in one UNSUBSCRIBE packet.
func (c *Client) UnsubscribeMultiple(topics []string) error {
	if c.state != StateEstablished {
		return c.opFailed(ErrNotConnected)
	}

	id, err := c.inflight.NextID()
	if err != nil {
		return c.opFailed(err)
	}

	pk := packets.Packet{
		FixedHeader: packets.FixedHeader{Type: packets.Unsubscribe},
		PacketID:    id,
		Topics:      topics,
	}

	if err := c.send(&pk); err != nil {
		return err
	}

	c.inflight.Set(id, PendingUnsubscribe{Topics: topics})
	return nil
}

// Poll advances the session by one tick: transport status changes are
// handled, inbound frames are drained and every complete packet dispatched
// in arrival order, then the keepalive timer is checked. It never blocks.
func (c *Client) Poll() {
	if c.tr == nil {
		return
	}

	status := c.tr.Status()
	c.handleStatus(status)

	if c.options.AutoConnect && c.state == StateDisconnected && status == transport.Closed {
		c.Connect()
	}

	for _, frame := range c.tr.Receive() {
		c.framer.Push(frame)
	}

	for {
		fh, payload, ok, err := c.framer.Next()
		if !ok {
			break
		}
		if err != nil {
			c.emitError(fmt.Sprintf("dropping packet with invalid flags: %s", err))
			continue
		}
		c.processPacket(fh, payload)
	}

	c.checkKeepalive()
}

// handleStatus reacts to transport status transitions observed between polls.
func (c *Client) handleStatus(status transport.Status) {
	if status == c.lastStatus {
		return
	}
	c.lastStatus = status

	switch {
	case status == transport.Open && c.state == StateConnecting:
		if err := c.sendConnect(); err != nil {
			c.tr.Close()
			return
		}
		c.state = StateHandshaking

	case status == transport.Closed && (c.state == StateConnecting || c.state == StateHandshaking):
		// The transport died before a CONNACK was ever accepted.
		c.reset()
		c.log.Warn("connection attempt failed")
		c.emit(Event{Kind: EventConnectingFailed})

	case status == transport.Closed && c.state == StateEstablished:
		c.reset()
		c.log.Info("connection lost")
		c.emit(Event{Kind: EventDisconnected})
	}
}

// sendConnect builds and transmits the CONNECT packet from the configured
// options.
func (c *Client) sendConnect() error {
	ka := *c.options.Keepalive
	if ka < 0 || ka > 65535 {
		c.log.Warn("keepalive out of range, using default",
			slog.Int("configured", ka), slog.Int("default", DefaultKeepalive))
		ka = DefaultKeepalive
	}
	c.keepalive = uint16(ka)

	pk := packets.Packet{
		FixedHeader:      packets.FixedHeader{Type: packets.Connect},
		ProtocolName:     "MQTT",
		ProtocolVersion:  4,
		CleanSession:     *c.options.CleanSession,
		Keepalive:        c.keepalive,
		ClientIdentifier: c.options.ClientID,
	}

	if w := c.options.Will; w != nil {
		pk.WillFlag = true
		pk.WillTopic = w.Topic
		pk.WillMessage = w.body()
		pk.WillQos = w.Qos
		pk.WillRetain = w.Retain
	}

	if c.options.Username != "" {
		pk.UsernameFlag = true
		pk.Username = c.options.Username
		if c.options.Password != "" {
			pk.PasswordFlag = true
			pk.Password = []byte(c.options.Password)
		}
	}

	return c.send(&pk)
}

// processPacket dispatches one complete inbound packet by type.
func (c *Client) processPacket(fh packets.FixedHeader, payload []byte) {
	switch fh.Type {
	case packets.Connack:
		c.processConnack(fh, payload)
	case packets.Suback:
		c.processSuback(fh, payload)
	case packets.Unsuback:
		c.processUnsuback(fh, payload)
	case packets.Publish:
		c.processPublish(fh, payload)
	case packets.Puback, packets.Pubcomp:
		c.processPuback(fh, payload)
	case packets.Pubrec:
		c.processPubrec(fh, payload)
	case packets.Pingresp:
		c.processPingresp()
	case packets.Disconnect:
		c.log.Info("broker requested disconnect")
		c.tr.Close()
	default:
		// TODO: answer an inbound PUBREL with PUBCOMP so broker-initiated
		// exactly-once deliveries actually complete.
		c.log.Warn("unhandled packet type", slog.Int("type", int(fh.Type)))
		c.emitError(fmt.Sprintf("unhandled packet type %d", fh.Type))
	}
}

// processConnack finishes the handshake. Anything but a well-formed, zero
// return code is fatal to the session.
func (c *Client) processConnack(fh packets.FixedHeader, payload []byte) {
	pk := packets.Packet{FixedHeader: fh}
	if err := pk.ConnackDecode(payload); err != nil {
		c.emitError(fmt.Sprintf("malformed connack: %s", err))
		c.tr.Close()
		return
	}

	if pk.ReturnCode != packets.ConnackAccepted {
		c.emitError(fmt.Sprintf("connection refused, return code %d", pk.ReturnCode))
		c.tr.Close()
		return
	}

	c.state = StateEstablished
	c.lastPing = time.Now()
	c.log.Info("connected", slog.Bool("session_present", pk.SessionPresent))
	c.emit(Event{Kind: EventConnected})
}

// processSuback matches granted QoS codes back to the requested topics in
// request order. A 0x80 code means the broker refused that topic; it is
// reported and not registered. The pending entry is removed regardless of
// per-topic outcome.
func (c *Client) processSuback(fh packets.FixedHeader, payload []byte) {
	pk := packets.Packet{FixedHeader: fh}
	if err := pk.SubackDecode(payload); err != nil {
		c.emitError(fmt.Sprintf("malformed suback: %s", err))
		return
	}

	entry, ok := c.inflight.Get(pk.PacketID)
	if !ok {
		c.emitError(fmt.Sprintf("suback for unknown packet id %d", pk.PacketID))
		return
	}

	sub, ok := entry.(PendingSubscribe)
	if !ok {
		c.emitError(fmt.Sprintf("suback for non-subscribe packet id %d", pk.PacketID))
		c.inflight.Delete(pk.PacketID)
		return
	}

	for i, topic := range sub.Topics {
		if i >= len(pk.ReturnCodes) {
			c.emitError(fmt.Sprintf("suback missing return code for topic %q", topic))
			break
		}

		code := pk.ReturnCodes[i]
		if code == packets.SubackFailure {
			c.log.Warn("subscription refused", slog.String("topic", topic))
			c.emitError(fmt.Sprintf("subscription refused for topic %q", topic))
			continue
		}

		c.subscriptions[topic] = code
		c.emit(Event{Kind: EventSubscribed, Topic: topic, Qos: code})
	}

	c.inflight.Delete(pk.PacketID)
}

// processUnsuback removes every topic of the original request.
func (c *Client) processUnsuback(fh packets.FixedHeader, payload []byte) {
	pk := packets.Packet{FixedHeader: fh}
	if err := pk.UnsubackDecode(payload); err != nil {
		c.emitError(fmt.Sprintf("malformed unsuback: %s", err))
		return
	}

	entry, ok := c.inflight.Get(pk.PacketID)
	if !ok {
		c.emitError(fmt.Sprintf("unsuback for unknown packet id %d", pk.PacketID))
		return
	}

	unsub, ok := entry.(PendingUnsubscribe)
	if !ok {
		c.emitError(fmt.Sprintf("unsuback for non-unsubscribe packet id %d", pk.PacketID))
		c.inflight.Delete(pk.PacketID)
		return
	}

	for _, topic := range unsub.Topics {
		delete(c.subscriptions, topic)
		c.emit(Event{Kind: EventUnsubscribed, Topic: topic})
	}

	c.inflight.Delete(pk.PacketID)
}

// processPublish delivers an inbound application message and answers the
// QoS handshake: PUBACK for at-least-once, PUBREC for exactly-once.
func (c *Client) processPublish(fh packets.FixedHeader, payload []byte) {
	pk := packets.Packet{FixedHeader: fh}
	if err := pk.PublishDecode(payload); err != nil {
		c.emitError(fmt.Sprintf("malformed publish: %s", err))
		return
	}

	c.emit(Event{Kind: EventMessage, Topic: pk.TopicName, Qos: fh.Qos, Payload: pk.Payload})

	switch fh.Qos {
	case 1:
		c.send(&packets.Packet{
			FixedHeader: packets.FixedHeader{Type: packets.Puback},
			PacketID:    pk.PacketID,
		})
	case 2:
		c.send(&packets.Packet{
			FixedHeader: packets.FixedHeader{Type: packets.Pubrec},
			PacketID:    pk.PacketID,
		})
	}
}

// processPuback completes a publish flow: PUBACK ends QoS 1, PUBCOMP ends
// QoS 2. The pending entry is removed only here.
func (c *Client) processPuback(fh packets.FixedHeader, payload []byte) {
	pk := packets.Packet{FixedHeader: fh}
	var err error
	if fh.Type == packets.Puback {
		err = pk.PubackDecode(payload)
	} else {
		err = pk.PubcompDecode(payload)
	}
	if err != nil {
		c.emitError(fmt.Sprintf("malformed ack: %s", err))
		return
	}

	if !c.inflight.Delete(pk.PacketID) {
		c.emitError(fmt.Sprintf("ack for unknown packet id %d", pk.PacketID))
	}
}

// processPubrec continues the outbound exactly-once flow with a PUBREL.
// The pending entry stays alive until the PUBCOMP arrives.
func (c *Client) processPubrec(fh packets.FixedHeader, payload []byte) {
	pk := packets.Packet{FixedHeader: fh}
	if err := pk.PubrecDecode(payload); err != nil {
		c.emitError(fmt.Sprintf("malformed pubrec: %s", err))
		return
	}

	if _, ok := c.inflight.Get(pk.PacketID); !ok {
		c.emitError(fmt.Sprintf("pubrec for unknown packet id %d", pk.PacketID))
		return
	}

	c.send(&packets.Packet{
		FixedHeader: packets.FixedHeader{Type: packets.Pubrel, Qos: 1},
		PacketID:    pk.PacketID,
	})
}

// processPingresp measures round-trip latency as half the elapsed time
// since the PINGREQ went out.
func (c *Client) processPingresp() {
	c.latency = time.Since(c.lastPing) / 2
	c.log.Debug("pingresp", slog.Duration("latency", c.latency))
	c.emit(Event{Kind: EventPing, Latency: c.latency})
}

// checkKeepalive sends a PINGREQ whenever the configured interval elapses
// without one. A missing PINGRESP does not tear the session down.
func (c *Client) checkKeepalive() {
	if c.state != StateEstablished || c.keepalive == 0 {
		return
	}

	if time.Since(c.lastPing) > time.Duration(c.keepalive)*time.Second {
		c.lastPing = time.Now()
		c.send(&packets.Packet{FixedHeader: packets.FixedHeader{Type: packets.Pingreq}})
	}
}

// send encodes pk and hands it to the transport.
func (c *Client) send(pk *packets.Packet) error {
	buf := new(bytes.Buffer)

	var err error
	switch pk.FixedHeader.Type {
	case packets.Connect:
		err = pk.ConnectEncode(buf)
	case packets.Publish:
		err = pk.PublishEncode(buf)
	case packets.Puback:
		err = pk.PubackEncode(buf)
	case packets.Pubrec:
		err = pk.PubrecEncode(buf)
	case packets.Pubrel:
		err = pk.PubrelEncode(buf)
	case packets.Subscribe:
		err = pk.SubscribeEncode(buf)
	case packets.Unsubscribe:
		err = pk.UnsubscribeEncode(buf)
	case packets.Pingreq:
		err = pk.PingreqEncode(buf)
	case packets.Disconnect:
		err = pk.DisconnectEncode(buf)
	default:
		err = fmt.Errorf("no encoder for packet type %d", pk.FixedHeader.Type)
	}
	if err != nil {
		c.emitError(fmt.Sprintf("encode failed: %s", err))
		return err
	}

	if err := c.tr.Send(buf.Bytes()); err != nil {
		c.emitError(fmt.Sprintf("send failed: %s", err))
		return err
	}

	return nil
}

// reset returns the session to its initial values. The receive buffer,
// pending acknowledgements and subscriptions are discarded; nobody waiting
// on a specific acknowledgement is notified.
func (c *Client) reset() {
	c.state = StateDisconnected
	c.framer.Reset()
	c.inflight.Clear()
	c.subscriptions = map[string]byte{}
	c.latency = LatencyUnknown
	c.lastPing = time.Time{}
	c.keepalive = 0
	c.lastStatus = transport.Closed
}

// opFailed reports a caller-misuse failure through both the return value
// and the event stream.
func (c *Client) opFailed(err error) error {
	c.log.Warn("operation rejected", slog.Any("error", err))
	c.emitError(err.Error())
	return err
}

// emitError emits an error event.
func (c *Client) emitError(reason string) {
	c.log.Error(reason)
	c.emit(Event{Kind: EventError, Reason: reason})
}

// emit delivers ev to the installed handler, if any.
func (c *Client) emit(ev Event) {
	if c.handler != nil {
		c.handler(ev)
	}
}
