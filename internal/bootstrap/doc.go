// Package bootstrap starts and stops the collaborators a registry needs
// before it can serve operations: the store, the compiled definitions and
// the management controller.
//
// Collaborators are grouped into stages. Stages start in order; the
// collaborators of one stage start concurrently. A required collaborator
// that fails aborts startup: everything already started is stopped again
// and Start returns a BootstrapFailure carrying the cause. An optional
// collaborator that fails only degrades the system and is listed in the
// Report.
//
// Under lazy activation, collaborators marked Lazy are not started by
// Start; Activate starts them on demand.
package bootstrap
