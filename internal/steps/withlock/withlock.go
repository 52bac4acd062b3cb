// Package withlock implements the with_lock built-in step: a keyed TTL
// mutex wrapping an inner step. Its guaranteed-release region is a plain
// Go defer, the same technique the teacher relies on in
// internal/controller/leader/leader.go to release a held advisory lock
// on every exit path (normal, error, or panic unwind) of run().
package withlock

import (
	"context"
	"fmt"

	"github.com/aetherflow/aetherflow/internal/registry"
	afstore "github.com/aetherflow/aetherflow/internal/store"
	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
	afstep "github.com/aetherflow/aetherflow/pkg/step"
)

// defaultTTLSeconds is used when a with_lock step omits ttl_seconds.
const defaultTTLSeconds = 600

// Step is the with_lock step implementation.
type Step struct {
	locks afstore.LockStore
	steps *registry.StepRegistry
}

var _ afstep.Step = (*Step)(nil)

// NewConstructor returns a step.Constructor bound to the given lock
// store and step registry. with_lock needs both collaborators at
// construction time, which is why it is wired explicitly by whatever
// builds the registries rather than discovered through a broader
// ambient context.
func NewConstructor(locks afstore.LockStore, steps *registry.StepRegistry) afstep.Constructor {
	return func() afstep.Step {
		return &Step{locks: locks, steps: steps}
	}
}

// Run acquires lock_key (owned by the run id), executes the inner step,
// and releases the lock on every exit path.
func (s *Step) Run(ctx context.Context, rc afstep.Context, inputs map[string]interface{}) (afstep.Result, error) {
	lockKey, _ := inputs["lock_key"].(string)
	if lockKey == "" {
		return afstep.Result{}, fmt.Errorf("with_lock requires a non-empty lock_key")
	}

	ttl := defaultTTLSeconds
	if raw, ok := inputs["ttl_seconds"]; ok {
		ttl = toInt(raw, defaultTTLSeconds)
	}

	innerType, innerInputs, err := parseInnerStep(inputs["step"])
	if err != nil {
		return afstep.Result{}, err
	}

	owner := rc.RunID()
	acquired, err := s.locks.TryAcquireLock(ctx, lockKey, owner, ttl)
	if err != nil {
		return afstep.Result{}, aferrors.Wrapf(err, "acquiring lock %q", lockKey)
	}
	if !acquired {
		return afstep.Result{}, &aferrors.LockNotAcquired{Key: lockKey, Owner: owner}
	}

	// Released independently of ctx so a cancelled/timed-out context
	// never leaves the lock held past this step's exit.
	defer func() {
		_ = s.locks.ReleaseLock(context.Background(), lockKey, owner)
	}()

	inner, err := s.steps.New(innerType)
	if err != nil {
		return afstep.Result{}, err
	}
	return inner.Run(ctx, rc, innerInputs)
}

func parseInnerStep(raw interface{}) (string, map[string]interface{}, error) {
	spec, ok := raw.(map[string]interface{})
	if !ok {
		return "", nil, fmt.Errorf("with_lock requires a step input describing the inner step")
	}
	typeName, _ := spec["type"].(string)
	if typeName == "" {
		return "", nil, fmt.Errorf("with_lock's inner step requires a type")
	}
	inputs, _ := spec["inputs"].(map[string]interface{})
	return typeName, inputs, nil
}

func toInt(v interface{}, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}
