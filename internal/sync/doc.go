// Package sync orchestrates read-modify-write cycles against the plan store
// using the version-guarded conditional write.
//
// Two concurrent sessions may race a read-modify-write cycle against the same
// plan; there is no global serialization. The safety net is the version guard:
// a writer whose observed version is stale is rejected, never silently
// overwritten. Task toggles additionally reconcile one conflict internally by
// merging completion state into the freshly stored structure before retrying,
// so end users rarely see the conflict at all. Within one process, mutations
// on the same plan are serialized by a per-plan mutex, which closes the
// rapid double-toggle window a single session can otherwise hit.
package sync
