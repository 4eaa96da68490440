package matcher

// Option is a functional option for configuring a Matcher.
type Option func(*Matcher)

// WithBufferDistance sets the tolerance in metres around facility
// boundaries for spatial matching.
func WithBufferDistance(metres float64) Option {
	return func(m *Matcher) {
		m.bufferDistance = metres
	}
}

// WithFuzzyThreshold sets the minimum combined score a fuzzy-name candidate
// must reach to be accepted.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithDecayDistance sets the e-folding distance in metres of the proximity
// decay applied to fuzzy-name scores.
func WithDecayDistance(metres float64) Option {
	return func(m *Matcher) {
		m.decayDistance = metres
	}
}
