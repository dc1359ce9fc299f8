// Package heuristics decides whether a request is admitted by running an ordered list
// of independent checks over its facts. The first check that fires rejects the request.
package heuristics

import (
	"fmt"

	"bouncer/facts"
	"bouncer/ipreputation"
	"bouncer/signature"
	"bouncer/waf"
)

// Check names, in the order the default pipeline runs them.
const (
	CheckSanity     = "sanity"
	CheckURI        = "uri"
	CheckReputation = "reputation"
	CheckUserAgent  = "useragent"
	CheckHeaders    = "headers"
)

// reasonPanic is reported when a check faults instead of returning.
const reasonPanic = "panic"

// Check is one named predicate. Eval returns the reason it fires, or "" when it does not.
type Check struct {
	Name string
	Eval func(f *facts.Facts) string
}

// Options are the deployment settings that change how checks judge a request.
type Options struct {
	// ExemptLocal admits local and private peers and relaxes the server name requirement on referers.
	ExemptLocal bool
}

// Pipeline runs checks in order and stops at the first one that fires.
// A Pipeline is immutable and safe for concurrent use.
type Pipeline struct {
	checks []Check
}

// NewPipeline creates a pipeline that runs the given checks in order.
func NewPipeline(checks ...Check) *Pipeline {
	return &Pipeline{checks: checks}
}

// New creates the standard pipeline over a dataset: sanity, uri, reputation, useragent, headers.
func New(ds *signature.Dataset, opts Options) *Pipeline {
	reputation := ipreputation.NewEngine(ds, ipreputation.Options{ExemptLocal: opts.ExemptLocal})

	return NewPipeline(
		Check{Name: CheckSanity, Eval: sanityCheck},
		Check{Name: CheckURI, Eval: newURICheck(ds)},
		Check{Name: CheckReputation, Eval: reputation.EvalFacts},
		Check{Name: CheckUserAgent, Eval: newUserAgentCheck(ds)},
		Check{Name: CheckHeaders, Eval: newHeaderCheck(ds, opts)},
	)
}

// Names returns the check names in evaluation order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.checks))
	for i, c := range p.checks {
		names[i] = c.Name
	}
	return names
}

// Classify returns the verdict for a request.
func (p *Pipeline) Classify(f *facts.Facts) waf.Decision {
	decision, _ := p.Evaluate(f)
	return decision
}

// Evaluate returns the verdict for a request and, on Reject, the rule that fired as "check/reason".
func (p *Pipeline) Evaluate(f *facts.Facts) (decision waf.Decision, rule string) {
	for _, c := range p.checks {
		if reason := runCheck(c, f); reason != "" {
			return waf.Reject, c.Name + "/" + reason
		}
	}
	return waf.Allow, ""
}

func runCheck(c Check, f *facts.Facts) (reason string) {
	defer func() {
		if r := recover(); r != nil {
			reason = reasonPanic
		}
	}()

	reason = c.Eval(f)
	return
}

// String is used in logs when a pipeline is installed.
func (p *Pipeline) String() string {
	return fmt.Sprintf("heuristics%v", p.Names())
}
