/*
Package lock provides per-target mutual exclusion between orchestrator
runs.

A lock is a file in <data>/locks created with O_EXCL, holding the owner's
pid, run ID and lease expiry. Acquisition fails fast with ContentionError
when another live run owns the target; stale locks (expired lease, dead
pid, or an unreadable file left by a crash) are broken automatically so an
interrupted run cannot wedge the target forever.

The lock is acquired before any precondition check and released on every
exit path, including signal-driven shutdown, via a deferred Guard.Release.
*/
package lock
