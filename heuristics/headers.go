package heuristics

import (
	"net/url"
	"strings"

	"bouncer/facts"
	"bouncer/signature"
)

// Headers a client must never send: a deprecated proxy header, a response-only
// header and a placeholder left by a known scanner.
var forbiddenHeaders = []string{"proxy-connection", "content-range", "x-aaaaaaaaaa"}

// Methods that have no business carrying a referer.
var refererlessMethods = map[string]bool{
	"put":     true,
	"delete":  true,
	"patch":   true,
	"options": true,
	"head":    true,
}

type headerCheck struct {
	viaSpam []string
	browser *browserCheck
	opts    Options
}

func newHeaderCheck(ds *signature.Dataset, opts Options) func(*facts.Facts) string {
	c := &headerCheck{
		viaSpam: ds.ViaSpam,
		browser: newBrowserCheck(ds),
		opts:    opts,
	}
	return c.eval
}

func (c *headerCheck) eval(f *facts.Facts) string {
	for _, name := range forbiddenHeaders {
		if f.HasHeader(name) {
			return "forbidden-" + name
		}
	}

	// The header is spelled "referer"; the dictionary spelling comes from forgers.
	if f.HasHeader("referrer") {
		return "referrer"
	}

	if ref, ok := f.Header("referer"); ok {
		if reason := c.referer(f, ref); reason != "" {
			return reason
		}
	}

	// A missing connection header counts as empty.
	cn := f.Headers["connection"]
	switch {
	case cn == "":
		return "connection-empty"
	case signature.ContainsFold(cn, "keep-alive") && signature.ContainsFold(cn, "close"):
		return "connection-contradiction"
	case hasRepeatedWord(cn):
		return "connection-repeated"
	}

	if via := f.Headers["via"]; via != "" && signature.MatchesAny(via, c.viaSpam) {
		return "via-spam"
	}

	return c.browser.eval(f)
}

func (c *headerCheck) referer(f *facts.Facts, ref string) string {
	if ref == "" {
		return "referer-empty"
	}
	if !strings.Contains(ref, ":") {
		return "referer-no-scheme"
	}

	if !c.opts.ExemptLocal && f.ServerName == "" && f.Method != "get" {
		return "referer-no-server"
	}

	if refererlessMethods[f.Method] {
		return "referer-method"
	}

	if f.Method == "post" && !strings.EqualFold(f.ServerName, refererHost(ref)) {
		return "referer-host"
	}

	return ""
}

// refererHost returns the host of a referer URL, or "" if it has none.
func refererHost(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// hasRepeatedWord reports whether s contains a run of three or more word characters
// followed by a comma or period, optional whitespace, and the same run again,
// ignoring case. "close, close" and "Keep-Alive.alive" both qualify.
func hasRepeatedWord(s string) bool {
	for start := 0; start < len(s); start++ {
		end := start
		for end < len(s) && isWordChar(s[end]) {
			end++
		}
		if end-start < 3 || end >= len(s) {
			continue
		}
		if s[end] != ',' && s[end] != '.' {
			continue
		}

		next := end + 1
		for next < len(s) && isSpace(s[next]) {
			next++
		}

		word := s[start:end]
		if len(s)-next >= len(word) && strings.EqualFold(s[next:next+len(word)], word) {
			return true
		}
	}
	return false
}

func isWordChar(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
