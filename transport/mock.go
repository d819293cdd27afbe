package transport

// Mock is a scripted Transport for testing. Tests drive the channel status
// directly and deliver inbound frames by hand; everything the client sends
// is captured in Sent.
type Mock struct {
	Sent     [][]byte // frames the client sent, in order
	inbound  [][]byte
	status   Status
	ErrSend  error // returned by Send when set
	Dialed   string
	ErrDial  error // returned by Dial when set
	CloseCnt int
}

// NewMock returns a new instance of Mock.
func NewMock() *Mock {
	return &Mock{}
}

// Dial records the address and moves the channel to Connecting.
func (t *Mock) Dial(address string) error {
	if t.ErrDial != nil {
		return t.ErrDial
	}
	t.Dialed = address
	t.status = Connecting
	return nil
}

// Status reports the scripted status.
func (t *Mock) Status() Status {
	return t.status
}

// SetStatus scripts the channel status.
func (t *Mock) SetStatus(s Status) {
	t.status = s
}

// Send captures an outbound frame.
func (t *Mock) Send(p []byte) error {
	if t.ErrSend != nil {
		return t.ErrSend
	}
	if t.status != Open {
		return ErrNotOpen
	}
	t.Sent = append(t.Sent, p)
	return nil
}

// Deliver queues inbound frames for the next Receive call.
func (t *Mock) Deliver(frames ...[]byte) {
	t.inbound = append(t.inbound, frames...)
}

// Receive drains the queued inbound frames.
func (t *Mock) Receive() [][]byte {
	out := t.inbound
	t.inbound = nil
	return out
}

// Close marks the channel closed and discards queued frames.
func (t *Mock) Close() error {
	t.CloseCnt++
	t.status = Closed
	t.inbound = nil
	return nil
}
