// Package recovery implements the retry-vs-dead-letter decision (C2)
// consuming the error taxonomy (C1) and a set of retry budgets.
package recovery

import (
	"math"

	"github.com/bobmcallan/docworker/internal/taxonomy"
)

// Reason is the coarse classification used to select a retry budget.
type Reason string

const (
	ReasonTransientInfra Reason = "TRANSIENT_INFRA"
	ReasonInputMedia     Reason = "INPUT_MEDIA"
	ReasonUnknownOrFatal Reason = "UNKNOWN_OR_FATAL"
)

// Budgets holds the three non-negative retry budgets, configured per
// deployment (spec.md section 4.2).
type Budgets struct {
	Transient int
	Media     int
	Default   int
}

// Action is the recovery decision.
type Action string

const (
	ActionRetryWithBackoff Action = "retry_with_backoff"
	ActionFailFastDLQ      Action = "fail_fast_dlq"
)

// Decision is the full recovery policy output.
type Decision struct {
	Action       Action
	Reason       Reason
	NextAttempt  int
	MaxAttempts  int
	RetryAllowed bool
}

// ClassifyReason maps a taxonomy code to its recovery reason.
func ClassifyReason(code taxonomy.Code) Reason {
	switch code {
	case taxonomy.CodeInfraRedis, taxonomy.CodeInfraGCS, taxonomy.CodeRateLimitExceeded:
		return ReasonTransientInfra
	case taxonomy.CodeMediaDecodeFailed, taxonomy.CodeInputNotFound:
		return ReasonInputMedia
	default:
		return ReasonUnknownOrFatal
	}
}

func budgetFor(reason Reason, b Budgets) int {
	var budget int
	switch reason {
	case ReasonTransientInfra:
		budget = b.Transient
	case ReasonInputMedia:
		budget = b.Media
	default:
		budget = b.Default
	}
	if budget < 0 {
		return 0
	}
	return budget
}

// Decide applies the recovery policy for a given code, the count of prior
// failures (attempts), and the configured budgets.
func Decide(code taxonomy.Code, attempts int, budgets Budgets) Decision {
	reason := ClassifyReason(code)
	budget := budgetFor(reason, budgets)
	retryAllowed := attempts < budget

	d := Decision{
		Reason:       reason,
		MaxAttempts:  budget,
		RetryAllowed: retryAllowed,
	}
	if retryAllowed {
		d.Action = ActionRetryWithBackoff
		d.NextAttempt = attempts + 1
	} else {
		d.Action = ActionFailFastDLQ
		d.NextAttempt = attempts
	}
	return d
}

// BackoffDelaySeconds computes the user-visible retry delay for a given
// next-attempt count: min(5.0, 0.5 * 2^(nextAttempt-1)). No jitter is
// applied here; jitter is reserved for the infrastructure retry primitive
// (C4).
func BackoffDelaySeconds(nextAttempt int) float64 {
	if nextAttempt < 1 {
		nextAttempt = 1
	}
	delay := 0.5 * math.Pow(2, float64(nextAttempt-1))
	if delay > 5.0 {
		return 5.0
	}
	return delay
}
