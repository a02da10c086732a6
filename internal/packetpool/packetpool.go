// Package packetpool persists and restores a coverage.Table snapshot in the
// comma-separated-decimal-octet TOML format used by packet_pool.toml, so a
// replay run can recreate the exact SelectFromQueue decisions a recorded
// session made.
package packetpool

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"mqttfume/fume/internal/coverage"
	"mqttfume/fume/internal/packets"
)

// entry mirrors one PacketSequence: MAX_PACKETS slots, each a comma-separated
// decimal octet string ("16,60,0,4,...") or empty for an unfilled slot.
type entry struct {
	Inner [packets.MaxPackets]string `toml:"inner"`
}

// document is the root of packet_pool.toml: response-byte-fingerprint (also
// comma-separated decimal octets) to the sequence that first produced it.
type document map[string]entry

// EncodeTable renders every entry of table into the packet_pool.toml wire
// format.
func EncodeTable(table *coverage.Table) ([]byte, error) {
	snapshot := table.Snapshot()
	doc := make(document, len(snapshot))
	for key, seq := range snapshot {
		doc[keyToString([]byte(key))] = sequenceToEntry(seq)
	}

	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(doc); err != nil {
		return nil, fmt.Errorf("packetpool: encode: %w", err)
	}
	return []byte(sb.String()), nil
}

// Decode parses packet_pool.toml content into a fresh coverage table, for
// seeding a replay's SelectFromQueue decisions.
func Decode(data []byte) (*coverage.Table, error) {
	table := coverage.New()
	if err := Merge(table, data); err != nil {
		return nil, err
	}
	return table, nil
}

// Merge decodes data in the packet_pool.toml wire format and seeds every
// entry into the existing table via Table.Seed, leaving entries already
// present untouched (first-writer-wins, same as Observe). Used both to
// restore a replay snapshot into a freshly constructed table and to layer
// the CVE seed corpus (internal/packets.CVECorpus) on top of it.
func Merge(table *coverage.Table, data []byte) error {
	var doc document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return fmt.Errorf("packetpool: decode: %w", err)
	}

	for key, e := range doc {
		keyBytes, err := stringToKey(key)
		if err != nil {
			return fmt.Errorf("packetpool: bad key %q: %w", key, err)
		}
		seq, err := entryToSequence(e)
		if err != nil {
			return fmt.Errorf("packetpool: bad entry for key %q: %w", key, err)
		}
		table.Seed(keyBytes, seq)
	}
	return nil
}

func sequenceToEntry(seq *packets.Sequence) entry {
	var e entry
	for i := 0; i < packets.MaxPackets; i++ {
		e.Inner[i] = keyToString(seq.At(i))
	}
	return e
}

func entryToSequence(e entry) (*packets.Sequence, error) {
	seq := packets.New()
	for i := 0; i < packets.MaxPackets; i++ {
		if e.Inner[i] == "" {
			continue
		}
		b, err := stringToKey(e.Inner[i])
		if err != nil {
			return nil, err
		}
		seq.Append(b)
	}
	return seq, nil
}

func keyToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = strconv.Itoa(int(c))
	}
	return strings.Join(parts, ",")
}

func stringToKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]byte, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return nil, fmt.Errorf("invalid octet %q", p)
		}
		out[i] = byte(n)
	}
	return out, nil
}
