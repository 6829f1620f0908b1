/*
Package executor abstracts "run a command on the target" and "copy a file to
the target" behind a single interface.

The orchestrator performs every remote mutation through an Executor; the
core never assumes a specific remote OS beyond the ability to run the
declared runtime descriptor. Two implementations exist:

  - SSHExecutor: the production transport. Authenticated with a private key
    from the target's identity file, encrypted by SSH. The dial is bounded
    by ConnectTimeout and each command by CommandTimeout, two separate
    knobs: an unreachable target fails fast, and a reachable-but-hanging
    target cannot wedge a run.

  - LocalExecutor: the same contract against the invoking machine, used for
    toolchain prechecks and by the artifact builder.

File copies stream through the channel (no whole-artifact buffering) and
are staged under a ".partial" name, renamed into place only on completion.
A retried transfer therefore always starts from scratch and never exposes a
half-written artifact.
*/
package executor
