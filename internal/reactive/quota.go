package reactive

import "fmt"

// DefaultMaxSteps bounds how often one reaction may run within a flush.
const DefaultMaxSteps = 100

// QuotaEnforcer counts the runs of one reaction within a flush and stops a
// reaction that keeps rescheduling itself, such as two custom effects
// writing each other's watched paths. Reactions that stay within their
// quota are unaffected, however many of them a flush runs.
//
// Dependency cycles between reactions are rejected by the linkage engine at
// registration time; the quota covers what static analysis cannot see.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates an enforcer allowing maxSteps runs.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check records one run and fails once the limit is passed.
func (q *QuotaEnforcer) Check(scope string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			Scope: scope,
			Steps: q.current,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// Current returns the number of recorded runs.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// StepsExceededError is reported when a reaction exceeds its quota. The
// reaction is skipped for the rest of that flush.
type StepsExceededError struct {
	Scope string
	Steps int
	Limit int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("%s exceeded max steps quota: %d steps > %d limit",
		e.Scope, e.Steps, e.Limit)
}
