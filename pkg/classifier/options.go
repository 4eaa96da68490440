package classifier

import "time"

// Option configures a Classifier.
type Option func(*Classifier)

// WithUser records the operator name on the RunSummary.
func WithUser(user string) Option {
	return func(c *Classifier) {
		if user != "" {
			c.user = user
		}
	}
}

// WithRunID sets the run identifier recorded on the RunSummary, so the
// summary correlates with the task log rows of the same run. A fresh id is
// generated when unset.
func WithRunID(runID string) Option {
	return func(c *Classifier) {
		if runID != "" {
			c.runID = runID
		}
	}
}

// WithClock overrides the time source, for reproducible summaries in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}
