package heuristics

import (
	"bouncer/facts"
	"bouncer/signature"
)

func newURICheck(ds *signature.Dataset) func(*facts.Facts) string {
	fragments := signature.NewMatcher(ds.URIFragments)

	return func(f *facts.Facts) string {
		if fragments.Match(f.QueryString) {
			return "fragment"
		}
		return ""
	}
}

func newUserAgentCheck(ds *signature.Dataset) func(*facts.Facts) string {
	prefixes := ds.UAPrefixes
	fragments := signature.NewMatcher(ds.UAFragments)

	return func(f *facts.Facts) string {
		ua := f.UserAgent
		switch {
		case !isASCII(ua):
			return "non-ascii"
		case signature.StartsWithAny(ua, prefixes):
			return "prefix"
		case fragments.Match(ua):
			return "fragment"
		}
		return ""
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
