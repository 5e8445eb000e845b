package usersync

// MaxFailures caps the failure counter of a RetryBudget
const MaxFailures = 2

// RetryBudget counts consecutive failed sync calls. It is a value: every
// transition returns a new budget and the current one travels with the
// sync request and result.
type RetryBudget struct {
	Failures int `json:"failures"`
}

// RecordFailure returns the budget after one more failed call
func (b RetryBudget) RecordFailure() RetryBudget {
	b = b.normalized()
	if b.Failures < MaxFailures {
		b.Failures++
	}
	return b
}

// Reset returns an empty budget
func (b RetryBudget) Reset() RetryBudget {
	return RetryBudget{}
}

// ShouldSurface reports whether the user should now see a connectivity error
func (b RetryBudget) ShouldSurface() bool {
	return b.normalized().Failures >= MaxFailures
}

// normalized clamps budgets decoded from untrusted input
func (b RetryBudget) normalized() RetryBudget {
	switch {
	case b.Failures < 0:
		b.Failures = 0
	case b.Failures > MaxFailures:
		b.Failures = MaxFailures
	}
	return b
}
