//go:build !hyperscan

package signature

// Without the hyperscan build tag the linear matcher is the only engine.
func newEngineMatcher(needles []string) (Matcher, error) {
	return NewLinearMatcher(needles), nil
}
