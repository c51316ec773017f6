package recovery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bobmcallan/docworker/internal/recovery"
	"github.com/bobmcallan/docworker/internal/taxonomy"
)

func TestDecide_RetryAllowed(t *testing.T) {
	d := recovery.Decide(taxonomy.CodeInfraRedis, 0, recovery.Budgets{Transient: 2})
	assert.Equal(t, recovery.ActionRetryWithBackoff, d.Action)
	assert.Equal(t, recovery.ReasonTransientInfra, d.Reason)
	assert.Equal(t, 1, d.NextAttempt)
	assert.Equal(t, 2, d.MaxAttempts)
	assert.True(t, d.RetryAllowed)
}

func TestDecide_FailFast(t *testing.T) {
	d := recovery.Decide(taxonomy.CodeProcessingFailed, 0, recovery.Budgets{Default: 1})
	// budget is 1, attempts 0 -> allowed. Need attempts>=budget for fail fast.
	assert.True(t, d.RetryAllowed)

	d = recovery.Decide(taxonomy.CodeProcessingFailed, 1, recovery.Budgets{Default: 1})
	assert.Equal(t, recovery.ActionFailFastDLQ, d.Action)
	assert.Equal(t, recovery.ReasonUnknownOrFatal, d.Reason)
	assert.False(t, d.RetryAllowed)
	assert.Equal(t, 1, d.NextAttempt, "next_attempt stays at attempts when not retrying")
}

func TestDecide_NegativeBudgetClampedToZero(t *testing.T) {
	d := recovery.Decide(taxonomy.CodeInputNotFound, 0, recovery.Budgets{Media: -5})
	assert.Equal(t, 0, d.MaxAttempts)
	assert.False(t, d.RetryAllowed)
}

func TestDecide_Monotone(t *testing.T) {
	budgets := recovery.Budgets{Transient: 2}
	for k := 2; k < 10; k++ {
		d := recovery.Decide(taxonomy.CodeInfraRedis, k, budgets)
		assert.False(t, d.RetryAllowed, "attempts=%d must remain denied once denied at 2", k)
	}
}

func TestBackoffDelaySeconds(t *testing.T) {
	assert.InDelta(t, 0.5, recovery.BackoffDelaySeconds(1), 1e-9)
	assert.InDelta(t, 1.0, recovery.BackoffDelaySeconds(2), 1e-9)
	assert.InDelta(t, 2.0, recovery.BackoffDelaySeconds(3), 1e-9)
	assert.InDelta(t, 4.0, recovery.BackoffDelaySeconds(4), 1e-9)
	assert.InDelta(t, 5.0, recovery.BackoffDelaySeconds(5), 1e-9, "must clamp at 5s")
}
