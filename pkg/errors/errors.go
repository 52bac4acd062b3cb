// Package errors defines the AetherFlow error taxonomy: a small set of typed
// errors representing the kinds of failure described in the engine's error
// handling design (spec errors, resolver errors, connector errors, step
// errors, lock contention, timeouts, and output validation failures).
//
// Callers should use errors.As to discriminate between kinds rather than
// string-matching messages.
package errors

import (
	"errors"
	"fmt"
)

// SpecError represents a failure to parse or semantically validate a flow,
// profile, or manifest document. SpecErrors always occur before any job
// executes and never cause state writes.
type SpecError struct {
	// Path identifies the offending location within the document, e.g.
	// "jobs[2].depends_on[0]" or "jobs.process.when".
	Path string

	// Message is the human-readable description of the violation.
	Message string
}

func (e *SpecError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("spec error at %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("spec error: %s", e.Message)
}

// ResolverSyntaxError is raised whenever a rendered string contains a
// templating form other than {{PATH}} or {{PATH:DEFAULT}}. The message is
// fixed by the resolver specification and must not be altered.
type ResolverSyntaxError struct {
	// Source is the offending string (truncated for readability).
	Source string
}

const resolverSyntaxMessage = "Unsupported templating syntax. Use {{VAR}} or {{VAR:DEFAULT}}"

func (e *ResolverSyntaxError) Error() string {
	return resolverSyntaxMessage
}

// ResolverMissingKeyError is raised when a template token's PATH does not
// resolve against the active variable root and no DEFAULT was supplied.
type ResolverMissingKeyError struct {
	// Path is the dotted path that failed to resolve, e.g. "env.MISSING".
	Path string
}

func (e *ResolverMissingKeyError) Error() string {
	return fmt.Sprintf("missing template value for %q", e.Path)
}

// ConnectorError represents a failure constructing a resource's connector:
// an unknown (kind, driver) pair, a failed decode hook, or a driver
// constructor error. Resource resolution failures abort the run before any
// job executes.
type ConnectorError struct {
	Resource string
	Kind     string
	Driver   string
	Cause    error
}

func (e *ConnectorError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("connector error for resource %q (%s/%s): %v", e.Resource, e.Kind, e.Driver, e.Cause)
	}
	return fmt.Sprintf("connector error (%s/%s): %v", e.Kind, e.Driver, e.Cause)
}

func (e *ConnectorError) Unwrap() error { return e.Cause }

// StepError represents an exception raised by a step's run operation. The
// job owning the step is marked FAILED and no StepRun row is written for
// the failing step.
type StepError struct {
	JobID  string
	StepID string
	Cause  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q in job %q failed: %v", e.StepID, e.JobID, e.Cause)
}

func (e *StepError) Unwrap() error { return e.Cause }

// LockNotAcquired is raised by with_lock when try_acquire_lock returns
// false. The owning job fails fast; the caller (typically a scheduler) is
// expected to retry later.
type LockNotAcquired struct {
	Key   string
	Owner string
}

func (e *LockNotAcquired) Error() string {
	return fmt.Sprintf("lock %q not acquired by %q", e.Key, e.Owner)
}

// TimeoutError represents a step (typically external.process) exceeding its
// configured timeout.
type TimeoutError struct {
	Operation string
	Cause     error
}

func (e *TimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s timed out: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("%s timed out", e.Operation)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// OutputValidationError represents a success-rule violation raised by
// external.process after a process exits: a missing required file, a
// present forbidden file, an unsatisfied glob, or an absent marker.
type OutputValidationError struct {
	Rule    string
	Message string
}

func (e *OutputValidationError) Error() string {
	return fmt.Sprintf("outputs invalid (%s): %s", e.Rule, e.Message)
}

// Wrap annotates err with a message, preserving the error chain for
// errors.Is/errors.As. Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf annotates err with a formatted message. Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is is a convenience re-export of the standard library's errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is a convenience re-export of the standard library's errors.As.
func As(err error, target interface{}) bool { return errors.As(err, target) }
