// Package markov drives one complete fuzzing session: a finite Markov chain
// that builds a packet sequence, mutates it, and sends it over a transport
// adapter, recording every sequence it sent along the way.
package markov

import (
	"math/rand"

	"mqttfume/fume/internal/coverage"
	"mqttfume/fume/internal/mutate"
	"mqttfume/fume/internal/packets"
	"mqttfume/fume/internal/transport"
)

// Mode selects whether a session seeds itself from the coverage table
// (MutationGuided) or always starts from a fresh CONNECT (GenerationGuided).
type Mode int

const (
	MutationGuided Mode = iota
	GenerationGuided
)

// Config holds the chain's tunable probabilities.
type Config struct {
	SelFromQueue       float64
	PacketAppendChance float64
	SendChance         float64
	MutAfterSend       float64
	TimeoutMS          int
}

// DefaultConfig returns the calibrated default probabilities.
func DefaultConfig() Config {
	return Config{
		SelFromQueue:       0.7,
		PacketAppendChance: 0.2,
		SendChance:         0.2,
		MutAfterSend:       0.7,
		TimeoutMS:          1000,
	}
}

type state int

const (
	stateS0 state = iota
	stateSelectFromQueue
	stateAdd
	stateAdding
	stateMutation
	stateMutate
	stateSend
	stateSf
)

// appendTypes is the uniform set Adding draws from when it chooses to
// append another packet.
var appendTypes = [...]packets.PacketType{
	packets.Connect,
	packets.Publish,
	packets.Subscribe,
	packets.Unsubscribe,
	packets.PingReq,
	packets.Disconnect,
}

// Machine runs one session of the state machine against a transport and a
// shared coverage table.
type Machine struct {
	cfg    Config
	stream *transport.Adapter
	table  *coverage.Table

	state        state
	addType      packets.PacketType
	op           mutate.Op
	seq          *packets.Sequence
	previousSeqs []*packets.Sequence
}

// New constructs a session machine. stream may be nil only in tests that
// never reach the Send state.
func New(cfg Config, stream *transport.Adapter, table *coverage.Table) *Machine {
	return &Machine{
		cfg:    cfg,
		stream: stream,
		table:  table,
		state:  stateS0,
		seq:    packets.New(),
	}
}

// PreviousSequences returns every sequence sent during the session, in
// order. Populated only once Execute has run.
func (m *Machine) PreviousSequences() []*packets.Sequence {
	return m.previousSeqs
}

// Execute drives the chain from S0 to Sf.
func (m *Machine) Execute(mode Mode, rng *rand.Rand) {
	for m.state != stateSf {
		m.step(mode, rng)
	}
}

func (m *Machine) step(mode Mode, rng *rand.Rand) {
	switch m.state {
	case stateS0:
		m.stepS0(mode, rng)
	case stateSelectFromQueue:
		m.stepSelectFromQueue(rng)
	case stateAdd:
		m.stepAdd()
	case stateAdding:
		m.stepAdding(rng)
	case stateMutation:
		m.stepMutation(rng)
	case stateMutate:
		m.stepMutate(rng)
	case stateSend:
		m.stepSend(rng)
	}
}

func (m *Machine) stepS0(mode Mode, rng *rand.Rand) {
	switch mode {
	case MutationGuided:
		if rng.Float64() < m.cfg.SelFromQueue && !m.seq.IsFull() {
			m.addType = packets.Connect
			m.state = stateAdd
		} else {
			m.state = stateSelectFromQueue
		}
	case GenerationGuided:
		m.addType = packets.Connect
		m.state = stateAdd
	}
}

func (m *Machine) stepSelectFromQueue(rng *rand.Rand) {
	if m.table.IsEmpty() {
		m.addType = packets.Connect
		m.state = stateAdd
		return
	}
	m.seq = m.table.Sample(rng)
	m.state = stateMutation
}

func (m *Machine) stepAdd() {
	m.seq.Append(packets.Template(m.addType))
	m.state = stateAdding
}

func (m *Machine) stepAdding(rng *rand.Rand) {
	if rng.Float64() < m.cfg.PacketAppendChance {
		m.addType = appendTypes[rng.Intn(len(appendTypes))]
		m.state = stateAdd
	} else {
		m.state = stateMutation
	}
}

func (m *Machine) stepMutation(rng *rand.Rand) {
	if rng.Float64() < m.cfg.SendChance {
		m.state = stateSend
	} else {
		m.op = mutate.RandomOp(rng)
		m.state = stateMutate
	}
}

func (m *Machine) stepMutate(rng *rand.Rand) {
	mutate.Apply(m.seq, rng, m.op)
	m.state = stateMutation
}

func (m *Machine) stepSend(rng *rand.Rand) {
	m.previousSeqs = append(m.previousSeqs, m.seq.Clone())

	var err error
	if m.stream != nil {
		err = m.stream.SendSequence(m.seq, m.table, m.cfg.TimeoutMS)
	}

	// The draw happens unconditionally, even when err != nil. Gating it on
	// the error would desynchronize the RNG stream from a replayed session
	// using the same seed.
	draw := rng.Float64()
	if draw > m.cfg.MutAfterSend || err != nil {
		m.state = stateSf
	} else {
		m.op = mutate.RandomOp(rng)
		m.state = stateMutate
	}
}
