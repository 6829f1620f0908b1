/*
Package history persists the append-only deployment record log.

Every run appends one DeploymentRecord at start and finalizes it exactly
once with a terminal outcome; records are never deleted or rewritten after
finalization, so the log doubles as the audit trail. Two queries drive the
orchestrator:

  - ActiveRef: toRef of the newest Succeeded record, the version currently
    considered live on the target.
  - RollbackTarget: what a bare rollback reverts to: the newest attempt
    prior to the last one whose toRef differs from it.

Storage is a single BoltDB bucket with keys of the form
target|startedAtNanos|id, giving a chronological prefix scan per target.
The shipway history subcommand renders the log for humans.
*/
package history
