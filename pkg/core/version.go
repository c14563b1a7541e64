package core

import "time"

// Scope identifies the (project, user) pair under which the single
// active version invariant is enforced.
type Scope struct {
	ProjectID string
	UserID    string
}

func (s Scope) String() string {
	if s.ProjectID == "" {
		return s.UserID
	}
	return s.ProjectID + "/" + s.UserID
}

// SchemaVersion is an immutable persisted snapshot of an accepted schema.
// At most one version per scope has IsActive set; activating a version
// deactivates its siblings in the same transaction.
type SchemaVersion struct {
	ID                string
	ProjectID         string
	UserID            string
	Version           int
	Snapshot          *Schema
	ChangeDescription string
	CreatedAt         time.Time
	IsActive          bool
}

// Scope returns the version's enforcement scope.
func (v *SchemaVersion) Scope() Scope {
	return Scope{ProjectID: v.ProjectID, UserID: v.UserID}
}

// VersionDiff is a set difference over table names between two snapshots.
// Modified lists tables present in both whose definitions differ; column
// level diffing (renamed vs removed+added) is intentionally not attempted.
type VersionDiff struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// DecisionTrace is one append-only audit record of a schema-affecting
// action. Traces are never mutated; only cascading project deletion
// removes them.
type DecisionTrace struct {
	ID           string
	ProjectID    string
	UserID       string
	Intent       string
	Action       string
	Precedent    string
	Version      int
	SchemaBefore *Schema
	SchemaAfter  *Schema
	Timestamp    time.Time
}

// VersionStore persists schema versions, decision traces and edit locks.
type VersionStore interface {
	Open(path string) error
	Close() error
	Migrate() error

	// CreateVersion persists snapshot as the next version for scope and
	// activates it, deactivating all siblings in the same transaction.
	CreateVersion(scope Scope, snapshot *Schema, description string) (*SchemaVersion, error)
	GetVersion(id string) (*SchemaVersion, error)
	GetActiveVersion(scope Scope) (*SchemaVersion, error)
	ListVersions(scope Scope) ([]*SchemaVersion, error)

	// RollbackToVersion returns a copy of the stored snapshot only. The
	// caller must run it back through validation, compilation and
	// provisioning and persist the result as a new version; old rows are
	// never revived.
	RollbackToVersion(id string) (*Schema, error)
	CompareVersions(aID, bID string) (*VersionDiff, error)

	AppendTrace(trace *DecisionTrace) error
	ListTraces(scope Scope, limit int) ([]*DecisionTrace, error)

	// DeleteProject cascades: versions, traces and locks of the project.
	DeleteProject(projectID string) error

	// Edit locks with a time-to-live, acquired before refinement or
	// provisioning. Expired locks are claimable by any owner.
	AcquireLock(scope Scope, owner string, ttl time.Duration) (token string, err error)
	RenewLock(token string, ttl time.Duration) error
	ReleaseLock(token string) error
}

// TraceSink is the narrow trace-appending view of a VersionStore,
// injected into components that only record audit entries.
type TraceSink interface {
	AppendTrace(trace *DecisionTrace) error
}
