/*
Package orchestrator implements the deployment state machine.

A run moves through the phases

	Idle → Prechecked → Built → Transferred → Activated → Verified →
	{Committed | RolledBack} → Done

and every failure is classified by Kind, which decides the response:
precondition, build, and transfer failures abort with nothing live to
revert; activation and verification failures escalate into automatic
rollback to the snapshot captured at activation time; a rollback that
itself fails verification is fatal and surfaces operator guidance.
The operator never decides whether to roll back.

The orchestrator owns sequencing and policy only. Building, remote
execution, artifact storage, health probing, history, and locking all
arrive as collaborators through Deps; the retry budgets for transfer and
verification come from configuration, so no call site embeds its own
attempt counts.

Every run holds the target's lock for its duration and appends one history
record, finalized exactly once with a terminal outcome on every path out,
including panics. Dry runs are the exception: they take no lock, write no
record, and never open a connection to the target.
*/
package orchestrator
