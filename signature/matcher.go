package signature

// Matcher tests a string against a fixed list of fragments.
// Implementations are immutable after construction and safe for concurrent use.
type Matcher interface {
	Match(haystack string) bool
	Len() int
}

// NewMatcher builds the fastest Matcher available in this build for the given fragments.
// If the accelerated engine cannot compile the list, a linear scan is used instead.
func NewMatcher(needles []string) Matcher {
	if m, err := newEngineMatcher(needles); err == nil {
		return m
	}
	return NewLinearMatcher(needles)
}

// NewLinearMatcher builds a Matcher that scans the fragments in order and stops at the first hit.
func NewLinearMatcher(needles []string) Matcher {
	m := make(linearMatcher, 0, len(needles))
	for _, needle := range needles {
		if needle != "" {
			m = append(m, needle)
		}
	}
	return m
}

type linearMatcher []string

func (m linearMatcher) Match(haystack string) bool {
	return MatchesAny(haystack, m)
}

func (m linearMatcher) Len() int {
	return len(m)
}
