// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (module.go, credential.go, session.go, presentation.go, errors.go)
// hold the shared types and the collaborator contracts. No implementation code - just contracts.
// Interfaces live here so workspace, backend and redis never import each other.
package domain
