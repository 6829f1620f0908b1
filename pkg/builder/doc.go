/*
Package builder produces immutable, content-addressed build artifacts.

A Builder turns the configured source tree into an artifact identified by a
short, stable revision hash. The determinism invariant, that building identical
source twice yields the identical revision, comes from how the revision is
derived, never from the build itself:

  - clean git checkout: the short commit hash (stable, familiar in tags)
  - anything else: a sha256 tree hash over sorted relative paths and file
    contents, with VCS metadata and build output directories excluded

DockerBuilder is the production implementation. It drives the docker CLI
through a local Executor: buildx for cross-platform builds (the target's
CPU architecture routinely differs from the build machine's) and
docker save piped through gzip to export the image as the transferable
artifact tarball.
*/
package builder
