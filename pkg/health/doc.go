/*
Package health probes deployment targets and classifies the result.

A Prober performs exactly one bounded-timeout check per call. Retry policy
deliberately lives elsewhere (the state machine's verification loop) so
attempt counts and backoff are configured in one place rather than
duplicated across call sites.

HTTPProber is the authoritative check: a GET against the target's declared
health endpoint, healthy only when the status is 2xx and the JSON body
carries an affirmative indicator field (healthy/status/ok). A 200 with a
garbage body is classified unhealthy.

ProcessLiveness ("are containers running?") is a secondary, advisory signal
surfaced in logs for operators. It never substitutes for the HTTP probe.
*/
package health
