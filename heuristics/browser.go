package heuristics

import (
	"regexp"
	"strings"

	"bouncer/facts"
	"bouncer/signature"
)

// Platform and engine tokens that appear at most once in a genuine user agent.
var platformTokens = []string{"windows", "wow64", "linux", "gecko", "apple", "android"}

var teToken = regexp.MustCompile(`(?i)\bTE\b`)

type browserCheck struct {
	discontinuedTools   []string
	mobileIETokens      []string
	trustedProxyHeaders []string
}

func newBrowserCheck(ds *signature.Dataset) *browserCheck {
	return &browserCheck{
		discontinuedTools:   ds.DiscontinuedTools,
		mobileIETokens:      ds.MobileIETokens,
		trustedProxyHeaders: ds.TrustedProxyHeaders,
	}
}

// eval compares the headers a browser would send with what the user agent claims to be.
func (b *browserCheck) eval(f *facts.Facts) string {
	ua := f.UserAgent
	pr := f.Protocol

	if !f.HasHeader("accept") {
		return "accept-missing"
	}

	if strings.Contains(pr, "HTTP/1.0") && f.HasHeader("expect") {
		return "expect-http10"
	}

	for _, token := range platformTokens {
		if signature.CountFold(ua, token) >= 2 {
			return "repeated-" + token
		}
	}

	if strings.Contains(pr, "HTTP/1.1") && signature.Has(f.Headers["pragma"], "no-cache") && !f.HasHeader("cache-control") {
		return "pragma-without-cache-control"
	}

	if signature.Has(f.Headers["cookie"], "$Version=0") || f.HasHeader("cookie2") || signature.Has(f.Headers["range"], "=0-") {
		return "obsolete-header"
	}

	if signature.StartsWithAny(ua, []string{"Mozilla"}) && signature.MatchesAny(ua, b.discontinuedTools) {
		return "discontinued-tool"
	}

	if teToken.MatchString(f.Headers["connection"]) && !b.viaTrustedProxy(f) && signature.MatchesAny(ua, b.mobileIETokens) {
		return "mobile-ie-te"
	}

	return browserCompat(ua)
}

func (b *browserCheck) viaTrustedProxy(f *facts.Facts) bool {
	for _, name := range b.trustedProxyHeaders {
		if f.HasHeader(name) {
			return true
		}
	}
	return false
}

// browserCompat looks for engine and platform tokens that cannot appear together.
func browserCompat(ua string) string {
	has := func(token string) bool {
		return signature.Has(ua, token)
	}

	safari := has("Safari")
	chrome := has("Chrome")
	trident := has("Trident")
	edge := has("Edge")
	linux := has("Linux")
	mac := has("Mac OS")
	x11 := has("X11")
	wow64 := has("WOW64")
	nix := x11 || linux || mac
	ie10 := has("MSIE 10.")
	ie5 := has("MSIE 5")

	switch {
	case chrome && safari && trident:
		return "compat-chrome-safari-trident"
	case edge && trident:
		return "compat-edge-trident"
	case nix && wow64:
		return "compat-nix-wow64"
	case has("Win64") && wow64:
		return "compat-win64-wow64"
	case has("MSIE") && !trident:
		return "compat-msie-without-trident"
	case mac && trident:
		return "compat-mac-trident"
	case safari && trident:
		return "compat-safari-trident"
	case ie10 && edge:
		return "compat-ie10-edge"
	case ie10 && has("Windows NT 10."):
		return "compat-ie10-windows10"
	case nix && trident:
		return "compat-nix-trident"
	case ie5 && wow64:
		return "compat-ie5-wow64"
	case ie5 && (trident || nix):
		return "compat-ie5-trident-nix"
	case ie10 && nix:
		return "compat-ie10-nix"
	case has("Windows Phone") && has("Android"):
		return "compat-windows-phone-android"
	}
	return ""
}
