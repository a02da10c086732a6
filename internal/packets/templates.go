// Package packets holds the fixed MQTT packet templates emitted by the
// state machine and the bounded packet sequence container mutated during a
// fuzzing session.
package packets

import "fmt"

// PacketType enumerates the packet kinds the state machine can add to a
// sequence.
type PacketType int

const (
	Connect PacketType = iota
	Publish
	Subscribe
	Unsubscribe
	PingReq
	Disconnect
)

// AllTypes lists every packet type, in the order ADDING samples from.
var AllTypes = [...]PacketType{Connect, Publish, Subscribe, Unsubscribe, PingReq, Disconnect}

func (t PacketType) String() string {
	switch t {
	case Connect:
		return "CONNECT"
	case Publish:
		return "PUBLISH"
	case Subscribe:
		return "SUBSCRIBE"
	case Unsubscribe:
		return "UNSUBSCRIBE"
	case PingReq:
		return "PINGREQ"
	case Disconnect:
		return "DISCONNECT"
	default:
		return fmt.Sprintf("PacketType(%d)", int(t))
	}
}

// These are the exact byte encodings required for interop with existing
// fuzzing corpora. They carry a fixed topic name ("topic"), client
// identifier ("Hello MQTT Broker"), and payload, and are baked in as
// constants rather than produced by an encoder at runtime.
var templateBytes = map[PacketType][]byte{
	Connect: {
		16, 60, 0, 4, 77, 81, 84, 84, 4, 4, 0, 0, 0, 17, 72, 101, 108, 108, 111, 32, 77, 81, 84,
		84, 32, 66, 114, 111, 107, 101, 114, 0, 5, 116, 111, 112, 105, 99, 0, 22, 1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 72, 255, 50, 0, 0, 0,
	},
	Publish: {
		49, 25, 0, 5, 116, 111, 112, 105, 99, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 72, 255, 50,
		0, 0, 0,
	},
	Subscribe:   {130, 10, 0, 100, 0, 5, 116, 111, 112, 105, 99, 0},
	Unsubscribe: {162, 9, 0, 10, 0, 5, 116, 111, 112, 105, 99},
	PingReq:     {192, 0},
	Disconnect:  {224, 0},
}

// Template returns a fresh copy of the canonical byte encoding for t. The
// caller owns the returned slice and may mutate it freely.
func Template(t PacketType) []byte {
	src, ok := templateBytes[t]
	if !ok {
		panic(fmt.Sprintf("packets: unknown packet type %d", int(t)))
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out
}
