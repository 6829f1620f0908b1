/*
Package artifact provides local and remote catalogs of build artifacts.

An artifact is a gzipped image tarball named <name>_<revision>.tar.gz.
The store's contents ARE the catalog; nothing is tracked beside the files
themselves, so the catalog can never disagree with reality. Entries list
oldest first; rollback never consults "latest", it always names an explicit
prior ref resolved from the deployment history.

LocalStore lives in the orchestrator's data directory. RemoteStore lives
under <workdir>/.shipway/artifacts on the target and is accessed purely
through the Remote Executor, so it works against any target that can run a
shell. The two stores may diverge (a pruned remote, a re-imaged local
machine); retention treats them independently.
*/
package artifact
