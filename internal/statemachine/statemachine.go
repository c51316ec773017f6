// Package statemachine implements the guarded status-write operation
// (C3): the sole sanctioned mutator of the job-status record, enforcing
// the allowed-transition graph and terminal-state stickiness.
package statemachine

import (
	"context"
	"strings"
	"time"

	"github.com/bobmcallan/docworker/internal/common"
	"github.com/bobmcallan/docworker/internal/jobmodel"
	"github.com/bobmcallan/docworker/internal/queuestore"
	"github.com/bobmcallan/docworker/internal/retry"
)

// allowed maps a current status to the set of statuses it may transition
// to (spec.md section 4.3). An unset/empty current status allows any
// target.
var allowed = map[jobmodel.Status]map[jobmodel.Status]bool{
	jobmodel.StatusQueued: {
		jobmodel.StatusQueued:     true,
		jobmodel.StatusProcessing: true,
		jobmodel.StatusCompleted:  true,
		jobmodel.StatusFailed:     true,
		jobmodel.StatusCancelled:  true,
	},
	jobmodel.StatusProcessing: {
		jobmodel.StatusProcessing: true,
		jobmodel.StatusCompleted:  true,
		jobmodel.StatusFailed:     true,
		jobmodel.StatusCancelled:  true,
	},
	jobmodel.StatusCompleted: {
		jobmodel.StatusCompleted: true,
	},
	jobmodel.StatusFailed: {
		jobmodel.StatusFailed: true,
	},
	jobmodel.StatusCancelled: {
		jobmodel.StatusCancelled: true,
	},
}

// IsAllowedTransition reports whether current may transition to target.
// An empty target is always allowed (the write proceeds without mutating
// status). Status strings are normalized (upper-cased, trimmed) before
// comparison.
func IsAllowedTransition(current, target string) bool {
	target = strings.ToUpper(strings.TrimSpace(target))
	if target == "" {
		return true
	}
	current = strings.ToUpper(strings.TrimSpace(current))
	if current == "" {
		return true
	}
	row, ok := allowed[jobmodel.Status(current)]
	if !ok {
		return false
	}
	return row[jobmodel.Status(target)]
}

// Result is the outcome of a guarded write.
type Result struct {
	OK   bool
	From string
	To   string
}

// Machine performs guarded writes against a queuestore.Store.
type Machine struct {
	store  queuestore.Store
	logger *common.Logger
}

// New constructs a Machine.
func New(store queuestore.Store, logger *common.Logger) *Machine {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Machine{store: store, logger: logger}
}

// GuardedWrite is the sole sanctioned mutator of the status record
// (spec.md section 4.3). If mapping lacks a "status" entry, the write
// proceeds unconditionally. Otherwise the current status is read, the
// transition is checked against the allowed-transition graph, and the
// write is only applied if permitted.
func (m *Machine) GuardedWrite(ctx context.Context, jobID string, mapping map[string]any, requestID string) (Result, error) {
	key := queuestore.StatusKey(jobID)

	targetRaw, hasStatus := mapping["status"]
	if !hasStatus {
		if err := m.writeFields(ctx, key, mapping); err != nil {
			return Result{}, err
		}
		return Result{OK: true}, nil
	}
	target, _ := targetRaw.(string)

	current, err := retry.DoValue(ctx, retry.KVPolicy, func(ctx context.Context) (map[string]string, error) {
		return m.store.HGetAll(ctx, key)
	})
	if err != nil {
		return Result{}, err
	}
	currentStatus := current["status"]

	if !IsAllowedTransition(currentStatus, target) {
		m.logger.Warn().
			Str("event", "status_transition_blocked").
			Str("job_id", jobID).
			Str("request_id", requestID).
			Str("from", currentStatus).
			Str("to", target).
			Msg("blocked illegal status transition")
		return Result{OK: false, From: currentStatus, To: target}, nil
	}

	normalized := strings.ToUpper(strings.TrimSpace(target))
	mapping["status"] = normalized
	if _, ok := mapping["contract_version"]; !ok {
		mapping["contract_version"] = jobmodel.ContractVersion
	}
	if _, ok := mapping["updated_at"]; !ok {
		mapping["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	}

	if err := m.writeFields(ctx, key, mapping); err != nil {
		return Result{}, err
	}
	return Result{OK: true, From: currentStatus, To: normalized}, nil
}

func (m *Machine) writeFields(ctx context.Context, key string, mapping map[string]any) error {
	return retry.Do(ctx, retry.KVPolicy, func(ctx context.Context) error {
		return m.store.HSet(ctx, key, mapping, queuestore.StatusTTL)
	})
}
