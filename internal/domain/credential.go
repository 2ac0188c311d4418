package domain

import "context"

// CredentialStore holds the bearer token of one workspace.
// Set and Clear are the only writers; Get never mutates.
type CredentialStore interface {
	Get(ctx context.Context) (token string, ok bool, err error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// CredentialKeyring returns the Credential Store of a workspace.
// Stores must outlive the in-memory workspace so a restored workspace finds its token.
type CredentialKeyring interface {
	Store(workspaceID string) CredentialStore
	Forget(workspaceID string)
}
