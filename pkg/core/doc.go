// Package core defines the shared types of the schemaforge pipeline:
// declarative schemas, compiled entities, persisted versions, decision
// traces, the error taxonomy, and the AI-collaborator contract.
//
// The package is deliberately dependency-free so that internal packages
// and adapters can share these types without import cycles.
package core
