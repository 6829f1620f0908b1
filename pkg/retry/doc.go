/*
Package retry implements the bounded fixed-backoff retry policy shared by
every retrying call site in a deployment run.

Policy.Do retries an operation (artifact transfer) until it succeeds or the
attempt budget is spent. Policy.Verify polls a health probe until the
required number of consecutive healthy results is seen, within the same
bounded budget. Both sleep a fixed interval between tries and abort
promptly on context cancellation. There is intentionally no API for
unbounded retry.
*/
package retry
