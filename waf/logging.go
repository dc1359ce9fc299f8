package waf

import "bouncer/facts"

// ResultsLogger is where the firewall writes the high level results: which rule rejected
// which request, and evidence that could not be kept. These are for operators only and are
// never shown to the client.
type ResultsLogger interface {
	RequestRejected(txid string, f *facts.Facts, rule string)
	EvidenceWriteFailed(txid string, f *facts.Facts, err error)
}
