//go:build hyperscan

package signature

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	hs "github.com/flier/gohs/hyperscan"
)

var errStopScan = errors.New("signature: stop scan")

// hyperscanMatcher scans for all fragments in one pass over the input.
type hyperscanMatcher struct {
	// Hyperscan's compiled database of literal fragments
	db hs.BlockDatabase

	// Scratch space may not be shared between concurrent scans, so each goroutine borrows one.
	scratches sync.Pool

	fallback linearMatcher
}

func newEngineMatcher(needles []string) (m Matcher, err error) {
	fallback := NewLinearMatcher(needles).(linearMatcher)
	if len(fallback) == 0 {
		return fallback, nil
	}

	patterns := make([]*hs.Pattern, 0, len(fallback))
	for i, needle := range fallback {
		p := hs.NewPattern(escapeLiteral(needle), hs.SingleMatch)
		p.Id = i
		patterns = append(patterns, p)
	}

	db, err := hs.NewBlockDatabase(patterns...)
	if err != nil {
		err = fmt.Errorf("failed to compile hyperscan database for %d fragments: %v", len(patterns), err)
		return
	}

	// Allocating one up front surfaces scratch errors at construction time.
	scratch, err := hs.NewScratch(db)
	if err != nil {
		db.Close()
		return
	}

	h := &hyperscanMatcher{db: db, fallback: fallback}
	h.scratches.New = func() interface{} {
		s, err := hs.NewScratch(db)
		if err != nil {
			return nil
		}
		return s
	}
	h.scratches.Put(scratch)

	m = h
	return
}

func (h *hyperscanMatcher) Match(haystack string) bool {
	if haystack == "" {
		return false
	}

	scratch, _ := h.scratches.Get().(*hs.Scratch)
	if scratch == nil {
		return h.fallback.Match(haystack)
	}
	defer h.scratches.Put(scratch)

	matched := false
	handler := func(id uint, from, to uint64, flags uint, context interface{}) error {
		matched = true
		return errStopScan
	}

	err := h.db.Scan([]byte(haystack), scratch, handler, nil)
	if err != nil && !matched {
		return h.fallback.Match(haystack)
	}
	return matched
}

func (h *hyperscanMatcher) Len() int {
	return len(h.fallback)
}

// escapeLiteral turns a fragment into a pattern that matches it byte for byte.
func escapeLiteral(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "\\x%02x", c)
	}
	return b.String()
}
