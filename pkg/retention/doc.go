// Package retention prunes old artifact versions from a store.
//
// A Cleaner keeps the K newest versions of each artifact name and removes
// the rest, with one exception: the currently active ref is never removed,
// no matter how old it is, because it is the rollback anchor for the
// deployment history.
//
// Pruning is best effort. A failure to list or remove is logged and skipped;
// it never fails a deployment that has already committed. Counts of removed
// artifacts are returned so callers can surface them in metrics.
package retention
