// Package ipreputation judges a request by where it comes from: unroutable and
// local peers, and search engine user agents sent from outside the engine's ranges.
package ipreputation

import (
	"bouncer/facts"
	"bouncer/ipaddresses"
	"bouncer/signature"
)

// Reasons reported by EvalFacts.
const (
	ReasonNoIP    = "no-ip"
	ReasonMartian = "martian"
	ReasonLocal   = "local"

	// Spoofed crawler reasons are this prefix followed by the crawler name.
	ReasonSpoofedCrawlerPrefix = "spoofed-"
)

// Options control which peers count as local.
type Options struct {
	ExemptLocal bool
}

// Engine evaluates the peer address of a request against the dataset's subnet tables.
// It only reads its tables after construction and is safe for concurrent use.
type Engine struct {
	martians []string
	local    []string
	crawlers []crawler
	opts     Options
}

type crawler struct {
	name     string
	uaTokens []string
	ranges   []string
	reason   string
}

// NewEngine creates an engine for determining an ip's reputation.
func NewEngine(ds *signature.Dataset, opts Options) *Engine {
	e := &Engine{
		martians: ds.MartianRanges,
		local:    ds.LocalRanges,
		opts:     opts,
	}

	for _, c := range ds.Crawlers {
		e.crawlers = append(e.crawlers, crawler{
			name:     c.Name,
			uaTokens: c.UATokens,
			ranges:   c.Ranges,
			reason:   ReasonSpoofedCrawlerPrefix + c.Name,
		})
	}

	return e
}

// EvalFacts returns the reason the request's origin is unacceptable, or "" if it is acceptable.
func (e *Engine) EvalFacts(f *facts.Facts) string {
	ip := f.IP
	if ip == "" {
		return ReasonNoIP
	}

	if ipaddresses.InAnySubnet(ip, e.martians) {
		return ReasonMartian
	}

	if !e.opts.ExemptLocal && ipaddresses.InAnySubnet(ip, e.local) {
		return ReasonLocal
	}

	// Only the first crawler the user agent claims to be is consulted.
	for _, c := range e.crawlers {
		if !signature.MatchesAny(f.UserAgent, c.uaTokens) {
			continue
		}
		if !ipaddresses.InAnySubnet(ip, c.ranges) {
			return c.reason
		}
		return ""
	}

	return ""
}
