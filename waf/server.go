package waf

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"bouncer/facts"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultEvidenceWriteTimeout bounds how long a rejected request waits for its evidence to be stored.
const DefaultEvidenceWriteTimeout = 2 * time.Second

// ErrNoClassifier is returned when a server is created without a classifier.
var ErrNoClassifier = errors.New("waf server needs a classifier")

// Server is the top level interface to the firewall.
type Server interface {
	EvalRequest(ctx context.Context, f *facts.Facts) Decision
	PutClassifier(c Classifier)
	Middleware(next http.Handler) http.Handler
}

// ServerOptions are the tunables of a Server.
type ServerOptions struct {
	// EvidenceWriteTimeout bounds each evidence write. Zero selects DefaultEvidenceWriteTimeout.
	EvidenceWriteTimeout time.Duration

	// Facts controls how the middleware normalizes incoming requests.
	Facts facts.Options
}

type classifierHolder struct {
	c Classifier
}

type serverImpl struct {
	logger        zerolog.Logger
	classifier    atomic.Pointer[classifierHolder]
	evidenceStore EvidenceStore
	resultsLogger ResultsLogger
	metrics       MetricsRecorder
	opts          ServerOptions
}

// NewServer creates a new top level firewall. The evidence store and metrics recorder may be nil.
func NewServer(logger zerolog.Logger, c Classifier, es EvidenceStore, rl ResultsLogger, m MetricsRecorder, opts ServerOptions) (server Server, err error) {
	if c == nil {
		err = ErrNoClassifier
		return
	}

	if opts.EvidenceWriteTimeout <= 0 {
		opts.EvidenceWriteTimeout = DefaultEvidenceWriteTimeout
	}

	s := &serverImpl{
		logger:        logger,
		evidenceStore: es,
		resultsLogger: rl,
		metrics:       m,
		opts:          opts,
	}
	s.classifier.Store(&classifierHolder{c: c})

	server = s
	return
}

// PutClassifier replaces the classifier used for requests that start after the call returns.
func (s *serverImpl) PutClassifier(c Classifier) {
	if c == nil {
		return
	}
	s.classifier.Store(&classifierHolder{c: c})
	s.logger.Info().Msg("Installed new classifier")
}

func (s *serverImpl) EvalRequest(ctx context.Context, f *facts.Facts) (decision Decision) {
	txid := uuid.NewString()

	// Create a sub-logger with a transaction ID
	logger := s.logger.With().Str("txid", txid).Logger()

	if logger.Debug() != nil {
		startTime := time.Now()
		defer func() {
			logger.Debug().Dur("timeTaken", time.Since(startTime)).Str("uri", f.URI()).Str("decision", decision.String()).Msg("Firewall completed request")
		}()
	}

	decision, rule := s.classifier.Load().c.Evaluate(f)
	if decision != Reject {
		decision = Allow
	}

	if s.metrics != nil {
		s.metrics.ObserveVerdict(decision.String(), rule)
	}

	if decision == Allow {
		return
	}

	if s.resultsLogger != nil {
		s.resultsLogger.RequestRejected(txid, f, rule)
	}

	s.recordEvidence(ctx, logger, txid, f)
	return
}

// recordEvidence stores a rejected request. It gives up once the write timeout passes;
// the write itself is never allowed to change the decision.
func (s *serverImpl) recordEvidence(ctx context.Context, logger zerolog.Logger, txid string, f *facts.Facts) {
	if s.evidenceStore == nil {
		return
	}

	// The client hanging up must not cancel the write.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.EvidenceWriteTimeout)
	defer cancel()

	startTime := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- s.evidenceStore.RecordRejection(ctx, f)
	}()

	var err error
	outcome := EvidenceWriteOK
	select {
	case err = <-done:
		if err != nil {
			outcome = EvidenceWriteError
		}
	case <-ctx.Done():
		err = ctx.Err()
		outcome = EvidenceWriteTimeout
	}

	if s.metrics != nil {
		s.metrics.ObserveEvidenceWrite(outcome, time.Since(startTime))
	}

	if err != nil {
		logger.Warn().Err(err).Str("outcome", outcome).Msg("Failed to store evidence of rejected request")
		if s.resultsLogger != nil {
			s.resultsLogger.EvidenceWriteFailed(txid, f, err)
		}
	}
}
