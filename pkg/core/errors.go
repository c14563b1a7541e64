package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across stores and the engine.
var (
	// ErrLockHeld is returned when the schema edit lock for a scope is
	// held by another owner and has not expired.
	ErrLockHeld = errors.New("schema edit lock held by another owner")

	// ErrVersionNotFound is returned for lookups of unknown version ids.
	ErrVersionNotFound = errors.New("schema version not found")

	// ErrNoActiveVersion is returned when a scope has no active version.
	ErrNoActiveVersion = errors.New("no active schema version for scope")
)

// ErrorDetail describes one failed validation rule and its location.
type ErrorDetail struct {
	Rule    string `json:"rule"`
	Table   string `json:"table,omitempty"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

func (d ErrorDetail) String() string {
	loc := d.Table
	if d.Column != "" {
		loc = d.Table + "." + d.Column
	}
	if loc == "" {
		return fmt.Sprintf("[%s] %s", d.Rule, d.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Rule, loc, d.Message)
}

// ValidationError aggregates all rule violations found in a candidate
// schema. Validation is fail-closed: any entry blocks compilation.
type ValidationError struct {
	Errors []ErrorDetail
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "schema validation failed"
	}
	parts := make([]string, len(e.Errors))
	for i, d := range e.Errors {
		parts[i] = d.String()
	}
	return fmt.Sprintf("schema validation failed: %s", strings.Join(parts, "; "))
}

// CompilationError reports a compiler invariant violation. Schemas reach
// the compiler only after validation, so this class is treated as a
// programming error and logged loudly by callers.
type CompilationError struct {
	Reason string
	Table  string
}

func (e *CompilationError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("compiler invariant violated for table %s: %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("compiler invariant violated: %s", e.Reason)
}

// ProvisioningError reports a statement rejected by the database. In the
// per-entity fallback path it is isolated to one table and non-fatal to
// sibling tables.
type ProvisioningError struct {
	Table string
	Err   error
}

func (e *ProvisioningError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("provisioning failed: %v", e.Err)
	}
	return fmt.Sprintf("provisioning failed for table %s: %v", e.Table, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// AIServiceError reports a failed or unparsable response from the
// external collaborator. Refinement sessions surface it as an assistant
// message and leave schema history untouched.
type AIServiceError struct {
	Op  string
	Err error
}

func (e *AIServiceError) Error() string {
	return fmt.Sprintf("ai collaborator %s failed: %v", e.Op, e.Err)
}

func (e *AIServiceError) Unwrap() error { return e.Err }

// ConcurrencyError reports a lost race on a shared resource (edit lock,
// version activation). Callers retry it; it is never silently ignored.
type ConcurrencyError struct {
	Scope string
	Op    string
	Err   error
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrent %s on scope %s: %v", e.Op, e.Scope, e.Err)
}

func (e *ConcurrencyError) Unwrap() error { return e.Err }
