package mqttnode

// PendingAck is the context retained for an outgoing request awaiting its
// acknowledgement, keyed by packet id in Inflight. It is a closed set of
// variants: one per request kind that carries a packet identifier.
type PendingAck interface {
	pendingAck()
}

// PendingPublish is the retained context of a QoS > 0 PUBLISH awaiting
// PUBACK (QoS 1) or PUBREC/PUBCOMP (QoS 2).
type PendingPublish struct {
	Qos    byte
	Retain bool
	Dup    bool
}

// PendingSubscribe is the retained context of a SUBSCRIBE awaiting SUBACK.
// Topics and Qoss are kept in request order so granted-QoS bytes in the
// SUBACK body can be matched positionally.
type PendingSubscribe struct {
	Topics []string
	Qoss   []byte
}

// PendingUnsubscribe is the retained context of an UNSUBSCRIBE awaiting
// UNSUBACK.
type PendingUnsubscribe struct {
	Topics []string
}

func (PendingPublish) pendingAck()     {}
func (PendingSubscribe) pendingAck()   {}
func (PendingUnsubscribe) pendingAck() {}
