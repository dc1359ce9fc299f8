package logging

import (
	"encoding/json"

	"bouncer/facts"
	"bouncer/waf"

	"github.com/rs/zerolog"
)

// NewZerologResultsLogger creates a results logger that builds the same entries as the file results logger, but just outputs them to Zerolog.
func NewZerologResultsLogger(logger zerolog.Logger) waf.ResultsLogger {
	return &zerologResultsLogger{logger: logger}
}

type zerologResultsLogger struct {
	logger zerolog.Logger
}

func (l *zerologResultsLogger) RequestRejected(txid string, f *facts.Facts, rule string) {
	l.write(l.logger.Info(), rejectedEntry(txid, f, rule))
}

func (l *zerologResultsLogger) EvidenceWriteFailed(txid string, f *facts.Facts, err error) {
	l.write(l.logger.Warn(), evidenceFailedEntry(txid, f, err))
}

func (l *zerologResultsLogger) write(ev *zerolog.Event, entry *firewallLogEntry) {
	if ev == nil {
		return
	}

	bb, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error().Err(err).Msg("Error while marshaling JSON results log")
		return
	}

	ev.Str("txid", entry.Properties.TransactionID).RawJSON("entry", bb).Msg("Firewall results log")
}
