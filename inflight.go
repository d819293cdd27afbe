package mqttnode

import (
	"errors"
	"math/rand"
)

// ErrPacketIDExhausted indicates every identifier in [1, 65535] is already
// awaiting an acknowledgement.
var ErrPacketIDExhausted = errors.New("packet id space exhausted")

// Inflight tracks requests awaiting acknowledgement, keyed on packet id.
// It is mutated only on the client's single poll/operation path, so it
// carries no locking.
type Inflight struct {
	internal map[uint16]PendingAck
	rng      *rand.Rand
}

// NewInflight returns a new instance of an Inflight pending-ack map.
func NewInflight(rng *rand.Rand) *Inflight {
	return &Inflight{
		internal: map[uint16]PendingAck{},
		rng:      rng,
	}
}

// NextID allocates an unused packet identifier uniformly at random from
// [1, 65535]. The retry count is bounded by the size of the identifier
// space rather than trusting statistical luck.
func (i *Inflight) NextID() (uint16, error) {
	for n := 0; n < 65535; n++ {
		id := uint16(i.rng.Intn(65535)) + 1
		if _, ok := i.internal[id]; !ok {
			return id, nil
		}
	}

	return 0, ErrPacketIDExhausted
}

// Set adds or updates a pending entry by packet id.
func (i *Inflight) Set(id uint16, p PendingAck) {
	i.internal[id] = p
}

// Get returns a pending entry by packet id.
func (i *Inflight) Get(id uint16) (PendingAck, bool) {
	p, ok := i.internal[id]
	return p, ok
}

// Delete removes a pending entry. Returns true if the entry existed.
func (i *Inflight) Delete(id uint16) bool {
	_, ok := i.internal[id]
	delete(i.internal, id)
	return ok
}

// Len returns the number of pending entries.
func (i *Inflight) Len() int {
	return len(i.internal)
}

// Clear removes every pending entry. In-flight state is not preserved
// across sessions.
func (i *Inflight) Clear() {
	i.internal = map[uint16]PendingAck{}
}
