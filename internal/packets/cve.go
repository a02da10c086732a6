package packets

import _ "embed"

// cveCorpus embeds a handful of packet sequences keyed off previously
// discovered MQTT broker CVEs, in the packet_pool.toml wire format (see
// internal/packetpool). cmd/fume's --seed-cve-corpus flag loads it into the
// coverage table at startup so SelectFromQueue can reach these sequences
// from the very first session, without waiting for a worker to rediscover
// them by chance.
//
//go:embed testdata/cve_corpus.toml
var cveCorpus []byte

// CVECorpus returns the embedded CVE seed corpus in packet_pool.toml format.
func CVECorpus() []byte {
	return cveCorpus
}
