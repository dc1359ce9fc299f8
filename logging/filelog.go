package logging

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"

	"bouncer/facts"
	"bouncer/waf"

	"github.com/rs/zerolog"
)

// FileName is the results log file name
const FileName = "firewall_json.log"

// ErrClosed is returned when closing a results logger twice.
var ErrClosed = errors.New("results logger closed")

// FileResultsLogger is a waf.ResultsLogger that owns an open file.
type FileResultsLogger interface {
	waf.ResultsLogger
	Close() error
}

type filelogResultsLogger struct {
	fileSystem LogFileSystem
	file       LogFile
	logger     zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewFileResultsLogger creates a results logger that writes one JSON line per entry to FileName in dir.
func NewFileResultsLogger(fileSystem LogFileSystem, logger zerolog.Logger, dir string) (FileResultsLogger, error) {
	r := &filelogResultsLogger{fileSystem: fileSystem, logger: logger}

	err := fileSystem.MkDir(dir)
	if err != nil {
		logger.Error().Err(err).Str("path", dir).Msg("Failed to create the directory while initializing")
		return nil, err
	}

	name := filepath.Join(dir, FileName)
	r.file, err = fileSystem.Open(name)
	if err != nil {
		logger.Error().Err(err).Str("file", name).Msg("Failed to open the file at initiation")
		return nil, err
	}

	return r, nil
}

func (l *filelogResultsLogger) RequestRejected(txid string, f *facts.Facts, rule string) {
	l.write(rejectedEntry(txid, f, rule))
}

func (l *filelogResultsLogger) EvidenceWriteFailed(txid string, f *facts.Facts, err error) {
	l.write(evidenceFailedEntry(txid, f, err))
}

func (l *filelogResultsLogger) write(entry *firewallLogEntry) {
	bb, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error().Err(err).Msg("Error while marshaling JSON results log")
		return
	}
	bb = append(bb, '\n')

	// Entries from concurrent requests must not interleave within a line.
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		l.logger.Warn().Str("txid", entry.Properties.TransactionID).Msg("Dropped results log entry after close")
		return
	}

	if err := l.file.Append(bb); err != nil {
		l.logger.Error().Err(err).Str("txid", entry.Properties.TransactionID).Msg("Error while writing results log")
	}
}

func (l *filelogResultsLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	l.closed = true
	return l.file.Close()
}
