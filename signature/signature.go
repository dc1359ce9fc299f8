// Package signature holds the string predicates used to match request attributes
// against lists of known-bad fragments, and the dataset those lists are loaded from.
package signature

import "strings"

// Has reports whether needle occurs in haystack. Empty inputs never match.
func Has(haystack string, needle string) bool {
	if haystack == "" || needle == "" {
		return false
	}
	return strings.Contains(haystack, needle)
}

// MatchesAny reports whether any of the needles occurs in haystack, case-sensitively.
func MatchesAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if Has(haystack, needle) {
			return true
		}
	}
	return false
}

// StartsWithAny reports whether haystack starts with any of the prefixes,
// ignoring ASCII case. Empty prefixes are ignored.
func StartsWithAny(haystack string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && hasPrefixFold(haystack, prefix) {
			return true
		}
	}
	return false
}

// ContainsFold reports whether needle occurs in haystack, ignoring ASCII case.
func ContainsFold(haystack string, needle string) bool {
	return CountFold(haystack, needle) > 0
}

// CountFold counts the non-overlapping occurrences of needle in haystack, ignoring ASCII case.
func CountFold(haystack string, needle string) (n int) {
	if needle == "" {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); {
		if hasPrefixFold(haystack[i:], needle) {
			n++
			i += len(needle)
			continue
		}
		i++
	}
	return
}

func hasPrefixFold(s string, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if lowerASCII(s[i]) != lowerASCII(prefix[i]) {
			return false
		}
	}
	return true
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
