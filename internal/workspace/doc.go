// Package workspace holds the per-browser dashboard state.
//
// A Workspace combines the Session Controller, the module list obtained from the
// registry, the Selection State and the Presentation Gateway. The Manager owns
// all live workspaces, creates them lazily from the browser's cookie and evicts
// idle ones.
//
// Fetch results are tagged with the session epoch and an issuance sequence.
// A result from an earlier session is dropped, and so is a result older than
// one already applied.
package workspace
