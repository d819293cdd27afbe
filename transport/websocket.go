package transport

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/gorilla/websocket"
)

// Subprotocol is the websocket sub-protocol identifier negotiated with
// MQTT 3.1.1 brokers.
const Subprotocol = "mqttv3.1"

// dialTimeout bounds the websocket handshake.
const dialTimeout = 30 * time.Second

// Websocket is a Transport over a websocket connection. Frames are sent as
// binary messages; inbound messages are read by a background goroutine and
// queued until the poll loop drains them with Receive.
type Websocket struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	inbound *queue.Queue // inbound frames awaiting Receive
	status  Status
	gen     uint64 // incremented per dial, stale goroutines detect teardown
}

// NewWebsocket returns a new instance of the websocket transport.
func NewWebsocket() *Websocket {
	return &Websocket{
		inbound: queue.New(),
	}
}

// Dial starts the websocket handshake against address (a ws:// or wss://
// URL) in the background. The transport reports Connecting until the
// handshake finishes, then Open or Closed.
func (t *Websocket) Dial(address string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != Closed {
		return ErrAlreadyDialing
	}

	t.status = Connecting
	t.gen++
	gen := t.gen

	go t.dial(address, gen)
	return nil
}

func (t *Websocket) dial(address string, gen uint64) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{Subprotocol},
		HandshakeTimeout: dialTimeout,
	}

	c, _, err := dialer.Dial(address, nil)

	t.mu.Lock()
	if t.gen != gen || t.status != Connecting {
		t.mu.Unlock()
		if c != nil {
			c.Close()
		}
		return
	}

	if err != nil {
		t.status = Closed
		t.mu.Unlock()
		return
	}

	t.conn = c
	t.status = Open
	t.mu.Unlock()

	go t.reader(c, gen)
}

// reader pulls frames off the socket until it fails, queueing each for the
// next Receive call.
func (t *Websocket) reader(c *websocket.Conn, gen uint64) {
	for {
		_, p, err := c.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if t.gen == gen {
				t.status = Closed
				t.conn = nil
			}
			t.mu.Unlock()
			c.Close()
			return
		}

		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.inbound.Add(p)
		t.mu.Unlock()
	}
}

// Status reports the current channel status.
func (t *Websocket) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Send transmits one binary frame.
func (t *Websocket) Send(p []byte) error {
	t.mu.Lock()
	c := t.conn
	open := t.status == Open
	t.mu.Unlock()

	if !open || c == nil {
		return ErrNotOpen
	}

	return c.WriteMessage(websocket.BinaryMessage, p)
}

// Receive drains all queued inbound frames in arrival order.
func (t *Websocket) Receive() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inbound.Length() == 0 {
		return nil
	}

	out := make([][]byte, 0, t.inbound.Length())
	for t.inbound.Length() > 0 {
		out = append(out, t.inbound.Remove().([]byte))
	}

	return out
}

// Close tears the channel down and discards queued frames.
func (t *Websocket) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	t.status = Closed
	for t.inbound.Length() > 0 {
		t.inbound.Remove()
	}

	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		return err
	}

	return nil
}
