package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shipway/shipway/pkg/artifact"
	"github.com/shipway/shipway/pkg/builder"
	"github.com/shipway/shipway/pkg/config"
	"github.com/shipway/shipway/pkg/executor"
	"github.com/shipway/shipway/pkg/health"
	"github.com/shipway/shipway/pkg/history"
	"github.com/shipway/shipway/pkg/lock"
	"github.com/shipway/shipway/pkg/log"
	"github.com/shipway/shipway/pkg/metrics"
	"github.com/shipway/shipway/pkg/retention"
	"github.com/shipway/shipway/pkg/retry"
	"github.com/shipway/shipway/pkg/types"
)

// transferInterval is the fixed pause between transfer retries. Transfers
// fail on flaky links, not on load, so there is nothing to back off from.
const transferInterval = 2 * time.Second

// RollbackGuidance is printed when automated recovery is exhausted.
const RollbackGuidance = `The rollback did not verify healthy. The target is in an unknown state and
requires manual intervention:
  1. Inspect the target:        ssh <target> 'docker compose ps && docker compose logs --tail 100'
  2. Check the active marker:   ssh <target> 'cat <workdir>/.shipway/active'
  3. Re-activate a known ref:   shipway rollback --to <name:revision>
  4. Or repair in place and re-run the health probe before routing traffic.`

// LocalArtifacts is the local store as the orchestrator consumes it: the
// catalog plus direct file access for the builder export and the transfer
// upload.
type LocalArtifacts interface {
	artifact.Store
	Path(ref types.ArtifactRef) string
	Open(ref types.ArtifactRef) (io.ReadCloser, int64, error)
}

// RemoteArtifacts is the target-side store as the orchestrator consumes it.
type RemoteArtifacts interface {
	artifact.Store
	Put(ctx context.Context, ref types.ArtifactRef, src io.Reader) error
	Path(ref types.ArtifactRef) string
}

// Deps are the orchestrator's collaborators. Everything that touches the
// outside world arrives here as an interface; the state machine itself only
// sequences them.
type Deps struct {
	Config  *config.Config
	Builder builder.Builder
	Exec    executor.Executor
	Local   LocalArtifacts
	Remote  RemoteArtifacts
	Prober  health.Prober
	History history.Log
	Locks   *lock.Manager
}

// Orchestrator sequences the deployment state machine:
//
//	Idle → Prechecked → Built → Transferred → Activated → Verified →
//	{Committed | RolledBack} → Done
//
// Failures before Activated abort; failures at or after Activated escalate
// into automatic rollback. One Orchestrator serves one configured target.
type Orchestrator struct {
	cfg     *config.Config
	builder builder.Builder
	exec    executor.Executor
	local   LocalArtifacts
	remote  RemoteArtifacts
	prober  health.Prober
	hist    history.Log
	locks   *lock.Manager
	cleaner *retention.Cleaner
	logger  zerolog.Logger
}

// New assembles an orchestrator from its collaborators.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:     deps.Config,
		builder: deps.Builder,
		exec:    deps.Exec,
		local:   deps.Local,
		remote:  deps.Remote,
		prober:  deps.Prober,
		hist:    deps.History,
		locks:   deps.Locks,
		cleaner: retention.NewCleaner(deps.Config.Retention.Keep),
		logger:  log.WithComponent("orchestrator"),
	}
}

// RunOptions select the entry point and guards for a single run.
type RunOptions struct {
	// Message is the operator-supplied deployment message, recorded in the
	// history log.
	Message string

	// DryRun reports what would happen without acquiring the lock, writing
	// a record, or touching the target.
	DryRun bool

	// Force proceeds past a dirty working tree and past the same-revision
	// guard.
	Force bool

	// Rollback enters the state machine at activation with a prior ref
	// resolved from the history log, skipping build and transfer of new
	// work.
	Rollback bool

	// RollbackTo pins the rollback ref explicitly instead of resolving it
	// from history. Only meaningful with Rollback.
	RollbackTo types.ArtifactRef
}

// run carries the mutable state of one deployment through the phases.
type run struct {
	id       string
	opts     RunOptions
	target   types.DeploymentTarget
	ref      types.ArtifactRef
	fromRef  types.ArtifactRef
	phase    types.Phase
	snapshot types.Snapshot
	recorded bool
	logger   zerolog.Logger
}

// Run executes one deployment to completion. The returned summary is always
// non-nil and describes the terminal state; err is the failure that ended
// the run, nil when the run committed.
//
// The deployment record is finalized exactly once on every path out of this
// function, including panics.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (summary *types.RunSummary, err error) {
	if opts.DryRun {
		return o.dryRun(ctx, opts)
	}

	r := &run{
		id:     uuid.New().String(),
		opts:   opts,
		target: o.cfg.Target,
		phase:  types.PhaseIdle,
	}
	r.logger = log.WithRun(r.id).With().Str("target", r.target.Name).Logger()

	defer func() {
		if mErr := metrics.Export(o.cfg.MetricsFile); mErr != nil {
			r.logger.Warn().Err(mErr).Msg("metrics export failed")
		}
	}()

	guard, lockErr := o.locks.Acquire(r.target.Name, r.id)
	if lockErr != nil {
		var contention *lock.ContentionError
		if errors.As(lockErr, &contention) {
			perr := newErr(KindLockContention, r.phase, lockErr)
			return o.conclude(r, types.OutcomeFailed, perr.Error()), perr
		}
		perr := newErr(KindPrecondition, r.phase, lockErr)
		return o.conclude(r, types.OutcomeFailed, perr.Error()), perr
	}
	defer guard.Release()

	// Safety net: a panic between record append and finalize must not leave
	// the record open.
	defer func() {
		if p := recover(); p != nil {
			o.finalize(r, types.OutcomeFailed, fmt.Sprintf("panic: %v", p))
			panic(p)
		}
	}()

	if perr := o.precheck(ctx, r); perr != nil {
		return o.abort(r, perr)
	}

	if perr := o.record(r); perr != nil {
		return o.abort(r, perr)
	}

	if !r.opts.Rollback {
		if perr := o.build(ctx, r); perr != nil {
			return o.abort(r, perr)
		}
	}

	if perr := o.transfer(ctx, r); perr != nil {
		return o.abort(r, perr)
	}

	if perr := o.activate(ctx, r); perr != nil {
		return o.recover(ctx, r, perr)
	}

	if perr := o.verify(ctx, r); perr != nil {
		return o.recover(ctx, r, perr)
	}

	return o.commit(ctx, r)
}

// dryRun performs the local half of the precheck phase, reports what the
// remaining phases would do, and stops. It takes no lock, writes no record,
// and opens no connection to the target; a tree a real deploy would refuse
// at precondition is refused here too.
func (o *Orchestrator) dryRun(ctx context.Context, opts RunOptions) (*types.RunSummary, error) {
	target := o.cfg.Target
	logger := log.WithTarget(target.Name).With().Bool("dry_run", true).Logger()

	fail := func(perr *PhaseError) (*types.RunSummary, error) {
		return &types.RunSummary{
			Target:       target.Name,
			Outcome:      types.OutcomeFailed,
			PhaseReached: types.PhaseIdle,
			Reason:       perr.Error(),
		}, perr
	}

	if _, err := os.Stat(target.Descriptor); err != nil {
		return fail(errf(KindPrecondition, types.PhaseIdle,
			"runtime descriptor %s: %w", target.Descriptor, err))
	}

	fromRef, err := o.hist.ActiveRef(target.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment history: %w", err)
	}

	var ref types.ArtifactRef
	if opts.Rollback {
		ref = opts.RollbackTo
		if ref.IsZero() {
			ref, err = o.hist.RollbackTarget(target.Name)
			if err != nil {
				return fail(newErr(KindPrecondition, types.PhaseIdle, err))
			}
		}
		logger.Info().Str("ref", ref.String()).
			Msg("would re-activate, verify, and commit; build and transfer skipped")
	} else {
		if err := o.builder.CheckToolchain(ctx); err != nil {
			return fail(newErr(KindPrecondition, types.PhaseIdle, err))
		}

		dirty, err := o.builder.Dirty(ctx)
		if err != nil {
			return fail(newErr(KindPrecondition, types.PhaseIdle, err))
		}
		if dirty && !opts.Force {
			return fail(errf(KindPrecondition, types.PhaseIdle,
				"working tree has uncommitted changes (use --force to deploy anyway)"))
		}

		revision, err := o.builder.Revision(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to compute revision: %w", err)
		}
		ref = types.ArtifactRef{Name: target.Name, Revision: revision}

		if ref == fromRef && !opts.Force {
			return fail(errf(KindPrecondition, types.PhaseIdle,
				"revision %s is already active (use --force to redeploy)", ref.Revision))
		}

		cached, err := o.local.Has(ctx, ref)
		if err != nil {
			return nil, err
		}
		logger.Info().
			Str("ref", ref.String()).
			Bool("build_needed", !cached).
			Msg("would build, transfer, activate, verify, and commit")
	}

	return &types.RunSummary{
		Target:       target.Name,
		FromRef:      fromRef,
		ToRef:        ref,
		Outcome:      types.OutcomeSucceeded,
		PhaseReached: types.PhasePrechecked,
		Reason:       "dry run, no changes made",
	}, nil
}

// precheck validates everything cheap to validate before any mutation:
// toolchain, working tree, descriptor, remote reachability, and the refs
// this run moves between.
func (o *Orchestrator) precheck(ctx context.Context, r *run) *PhaseError {
	start := time.Now()
	defer metrics.ObservePhase("precheck", start)

	if _, err := os.Stat(r.target.Descriptor); err != nil {
		return errf(KindPrecondition, r.phase, "runtime descriptor %s: %w", r.target.Descriptor, err)
	}

	if r.opts.Rollback {
		ref := r.opts.RollbackTo
		if ref.IsZero() {
			resolved, err := o.hist.RollbackTarget(r.target.Name)
			if err != nil {
				return newErr(KindPrecondition, r.phase, err)
			}
			ref = resolved
		}
		r.ref = ref
	} else {
		if err := o.builder.CheckToolchain(ctx); err != nil {
			return newErr(KindPrecondition, r.phase, err)
		}

		dirty, err := o.builder.Dirty(ctx)
		if err != nil {
			return newErr(KindPrecondition, r.phase, err)
		}
		if dirty && !r.opts.Force {
			return errf(KindPrecondition, r.phase,
				"working tree has uncommitted changes (use --force to deploy anyway)")
		}

		revision, err := o.builder.Revision(ctx)
		if err != nil {
			return newErr(KindPrecondition, r.phase, err)
		}
		r.ref = types.ArtifactRef{Name: r.target.Name, Revision: revision}
	}

	// Reachability probe. Anything beyond a trivial command belongs to
	// later phases.
	res, err := o.exec.Run(ctx, "true")
	if err != nil {
		return errf(KindPrecondition, r.phase, "target %s unreachable: %w", r.target.Name, err)
	}
	if res.ExitCode != 0 {
		return errf(KindPrecondition, r.phase, "target %s cannot run commands (exit %d)",
			r.target.Name, res.ExitCode)
	}

	// The marker on the target is the runtime truth for what is active;
	// the history log is the fallback when the marker has never been
	// written.
	if active, ok := o.readActiveMarker(ctx); ok {
		r.fromRef = active
	} else if ref, err := o.hist.ActiveRef(r.target.Name); err == nil {
		r.fromRef = ref
	}

	if !r.opts.Rollback && r.ref == r.fromRef && !r.opts.Force {
		return errf(KindPrecondition, r.phase,
			"revision %s is already active (use --force to redeploy)", r.ref.Revision)
	}

	r.phase = types.PhasePrechecked
	r.logger.Info().
		Str("from", r.fromRef.String()).
		Str("to", r.ref.String()).
		Msg("prechecks passed")
	return nil
}

// record appends the in-progress history entry. From here on the run must
// finalize it exactly once.
func (o *Orchestrator) record(r *run) *PhaseError {
	rec := &types.DeploymentRecord{
		ID:           r.id,
		Target:       r.target.Name,
		FromRef:      r.fromRef,
		ToRef:        r.ref,
		Message:      r.opts.Message,
		StartedAt:    time.Now(),
		PhaseReached: r.phase,
	}
	if err := o.hist.Append(rec); err != nil {
		return errf(KindPrecondition, r.phase, "failed to record deployment: %w", err)
	}
	r.recorded = true
	return nil
}

// build produces the artifact for this run's ref unless the local store
// already holds it. Identical source yields an identical revision, so a
// cache hit is exact.
func (o *Orchestrator) build(ctx context.Context, r *run) *PhaseError {
	start := time.Now()
	defer metrics.ObservePhase("build", start)

	cached, err := o.local.Has(ctx, r.ref)
	if err != nil {
		return newErr(KindBuild, r.phase, err)
	}
	if cached {
		r.logger.Info().Str("ref", r.ref.String()).Msg("artifact cached, skipping build")
		r.phase = types.PhaseBuilt
		return nil
	}

	r.logger.Info().
		Str("ref", r.ref.String()).
		Str("platform", r.target.Platform).
		Msg("building artifact")
	if err := o.builder.Build(ctx, r.ref, r.target.Platform, o.local.Path(r.ref)); err != nil {
		return newErr(KindBuild, r.phase, err)
	}

	r.phase = types.PhaseBuilt
	return nil
}

// transfer pushes the artifact to the target store under the bounded retry
// policy. A partial transfer is never visible remotely; each retry re-sends
// the whole artifact.
func (o *Orchestrator) transfer(ctx context.Context, r *run) *PhaseError {
	start := time.Now()
	defer metrics.ObservePhase("transfer", start)

	present, err := o.remote.Has(ctx, r.ref)
	if err != nil {
		return newErr(KindTransfer, r.phase, err)
	}
	if present {
		r.logger.Info().Str("ref", r.ref.String()).Msg("artifact already on target")
		r.phase = types.PhaseTransferred
		return nil
	}

	if ok, err := o.local.Has(ctx, r.ref); err != nil || !ok {
		return errf(KindTransfer, r.phase,
			"artifact %s is in neither the local nor the remote store", r.ref)
	}

	policy := retry.Policy{
		Attempts: o.cfg.Transfer.Retries + 1,
		Interval: transferInterval,
	}
	attempt := 0
	err = policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.TransferRetries.Inc()
			r.logger.Warn().Int("attempt", attempt).Msg("retrying transfer")
		}

		src, size, err := o.local.Open(r.ref)
		if err != nil {
			return err
		}
		defer src.Close()

		r.logger.Info().
			Str("ref", r.ref.String()).
			Int64("bytes", size).
			Msg("pushing artifact")
		return o.remote.Put(ctx, r.ref, src)
	})
	if err != nil {
		return newErr(KindTransfer, r.phase, err)
	}

	r.phase = types.PhaseTransferred
	return nil
}

// activate snapshots the target's current state, then switches it to this
// run's ref: load the artifact into the runtime, install the descriptor,
// re-apply it wholesale, and move the active marker. Any failure from here
// on escalates to rollback.
func (o *Orchestrator) activate(ctx context.Context, r *run) *PhaseError {
	start := time.Now()
	defer metrics.ObservePhase("activate", start)

	r.snapshot = o.takeSnapshot(ctx, r)

	if perr := o.applyRef(ctx, r, r.ref); perr != nil {
		return perr
	}

	r.phase = types.PhaseActivated
	r.logger.Info().Str("ref", r.ref.String()).Msg("activated")
	return nil
}

// takeSnapshot captures what rollback needs: the active ref and the
// descriptor currently installed on the target. Both reads are best-effort;
// a first deploy has neither.
func (o *Orchestrator) takeSnapshot(ctx context.Context, r *run) types.Snapshot {
	snap := types.Snapshot{TakenAt: time.Now()}
	if active, ok := o.readActiveMarker(ctx); ok {
		snap.ActiveRef = active
	}
	res, err := o.exec.Run(ctx, fmt.Sprintf("cat %q 2>/dev/null", o.remoteDescriptorPath()))
	if err == nil && res.ExitCode == 0 {
		snap.Descriptor = []byte(res.Stdout)
	}
	return snap
}

// applyRef performs the forward activation sequence for a ref whose
// artifact is in the remote store.
func (o *Orchestrator) applyRef(ctx context.Context, r *run, ref types.ArtifactRef) *PhaseError {
	if err := o.runRemote(ctx, fmt.Sprintf("docker load -i %q", o.remote.Path(ref))); err != nil {
		return errf(KindActivation, r.phase, "failed to load artifact: %w", err)
	}

	f, err := os.Open(r.target.Descriptor)
	if err != nil {
		return errf(KindActivation, r.phase, "failed to open descriptor: %w", err)
	}
	defer f.Close()
	if err := o.exec.Copy(ctx, f, o.remoteDescriptorPath(), 0644); err != nil {
		return errf(KindActivation, r.phase, "failed to install descriptor: %w", err)
	}

	up := fmt.Sprintf("cd %q && SHIPWAY_IMAGE=%q docker compose up -d --remove-orphans",
		r.target.WorkDir, ref.String())
	if err := o.runRemote(ctx, up); err != nil {
		return errf(KindActivation, r.phase, "failed to apply descriptor: %w", err)
	}

	if err := o.writeActiveMarker(ctx, ref); err != nil {
		return errf(KindActivation, r.phase, "failed to update active marker: %w", err)
	}
	return nil
}

// verify probes the health endpoint under the configured retry policy until
// the required consecutive-healthy streak is observed or the budget runs
// out. A passing probe is authoritative; the process liveness check is
// advisory and only warns.
func (o *Orchestrator) verify(ctx context.Context, r *run) *PhaseError {
	start := time.Now()
	defer metrics.ObservePhase("verify", start)

	policy := retry.Policy{
		Attempts:    o.cfg.Probe.Attempts,
		Interval:    o.cfg.Probe.Interval,
		Consecutive: o.cfg.Probe.Consecutive,
	}
	result, err := policy.Verify(ctx, func(ctx context.Context) types.HealthResult {
		metrics.ProbeAttempts.Inc()
		res := o.prober.Probe(ctx)
		r.logger.Debug().
			Bool("healthy", res.Healthy).
			Str("detail", res.Detail).
			Dur("took", res.Duration).
			Msg("health probe")
		return res
	})
	if err != nil {
		return newErr(KindVerification, r.phase, err)
	}

	if live, detail := health.ProcessLiveness(ctx, o.exec, r.target.WorkDir); !live {
		r.logger.Warn().Str("detail", detail).Msg("health endpoint passed but process liveness did not")
	}

	r.phase = types.PhaseVerified
	r.logger.Info().Str("detail", result.Detail).Msg("verified healthy")
	return nil
}

// commit finalizes a verified run, then prunes both artifact stores under
// the retention policy. Pruning spares the ref just committed.
func (o *Orchestrator) commit(ctx context.Context, r *run) (*types.RunSummary, error) {
	r.phase = types.PhaseCommitted

	outcome := types.OutcomeSucceeded
	reason := ""
	if r.opts.Rollback {
		outcome = types.OutcomeRolledBack
		reason = fmt.Sprintf("rolled back to %s", r.ref)
	}

	o.finalize(r, outcome, reason)
	r.phase = types.PhaseDone
	metrics.DeploysTotal.WithLabelValues(string(outcome)).Inc()

	removed := o.cleaner.Prune(ctx, o.local, r.target.Name, r.ref)
	metrics.ArtifactsPruned.WithLabelValues(o.local.Description()).Add(float64(removed))
	removed = o.cleaner.Prune(ctx, o.remote, r.target.Name, r.ref)
	metrics.ArtifactsPruned.WithLabelValues(o.remote.Description()).Add(float64(removed))

	r.logger.Info().Str("ref", r.ref.String()).Str("outcome", string(outcome)).Msg("deployment committed")
	return o.summary(r, outcome, reason), nil
}

// recover is the rollback path for failures at or after activation. It
// re-applies the pre-deployment snapshot and re-verifies the restored
// version. A rollback that does not verify is fatal and surfaced loudly.
func (o *Orchestrator) recover(ctx context.Context, r *run, cause *PhaseError) (*types.RunSummary, error) {
	if !cause.RollbackNeeded() {
		return o.abort(r, cause)
	}

	metrics.Rollbacks.Inc()
	r.logger.Error().Err(cause).Str("restore", r.snapshot.ActiveRef.String()).Msg("deployment failed, rolling back")

	if r.snapshot.ActiveRef.IsZero() {
		// First deploy: the snapshot is "nothing running". Restoring it
		// means taking the stack down, and there is nothing to verify.
		if err := o.runRemote(ctx, fmt.Sprintf("cd %q && docker compose down", r.target.WorkDir)); err != nil {
			perr := errf(KindRollbackVerification, r.phase,
				"no previous version and deactivation failed: %w", err)
			return o.fatalRollback(r, cause, perr)
		}
		reason := fmt.Sprintf("%v; no previous version, target deactivated", cause.Err)
		r.phase = types.PhaseRolledBack
		o.finalize(r, types.OutcomeRolledBack, reason)
		metrics.DeploysTotal.WithLabelValues(string(types.OutcomeRolledBack)).Inc()
		return o.summary(r, types.OutcomeRolledBack, reason), cause
	}

	if len(r.snapshot.Descriptor) > 0 {
		if err := o.exec.Copy(ctx, strings.NewReader(string(r.snapshot.Descriptor)),
			o.remoteDescriptorPath(), 0644); err != nil {
			perr := errf(KindRollbackVerification, r.phase, "failed to restore descriptor: %w", err)
			return o.fatalRollback(r, cause, perr)
		}
	}

	prev := r.snapshot.ActiveRef
	if present, err := o.remote.Has(ctx, prev); err == nil && present {
		// Reload in case the runtime lost the image. Best-effort: the
		// image is usually still loaded from its own deployment.
		if err := o.runRemote(ctx, fmt.Sprintf("docker load -i %q", o.remote.Path(prev))); err != nil {
			r.logger.Warn().Err(err).Msg("could not reload previous artifact, assuming image is present")
		}
	}

	up := fmt.Sprintf("cd %q && SHIPWAY_IMAGE=%q docker compose up -d --remove-orphans",
		r.target.WorkDir, prev.String())
	if err := o.runRemote(ctx, up); err != nil {
		perr := errf(KindRollbackVerification, r.phase, "failed to re-apply previous version: %w", err)
		return o.fatalRollback(r, cause, perr)
	}
	if err := o.writeActiveMarker(ctx, prev); err != nil {
		perr := errf(KindRollbackVerification, r.phase, "failed to restore active marker: %w", err)
		return o.fatalRollback(r, cause, perr)
	}

	policy := retry.Policy{
		Attempts:    o.cfg.Probe.Attempts,
		Interval:    o.cfg.Probe.Interval,
		Consecutive: o.cfg.Probe.Consecutive,
	}
	_, err := policy.Verify(ctx, func(ctx context.Context) types.HealthResult {
		metrics.ProbeAttempts.Inc()
		return o.prober.Probe(ctx)
	})
	if err != nil {
		perr := errf(KindRollbackVerification, r.phase, "restored %s but verification failed: %w", prev, err)
		return o.fatalRollback(r, cause, perr)
	}

	reason := fmt.Sprintf("%v; restored %s", cause.Err, prev)
	r.phase = types.PhaseRolledBack
	o.finalize(r, types.OutcomeRolledBack, reason)
	metrics.DeploysTotal.WithLabelValues(string(types.OutcomeRolledBack)).Inc()
	r.logger.Info().Str("restored", prev.String()).Msg("rollback verified healthy")
	return o.summary(r, types.OutcomeRolledBack, reason), cause
}

// fatalRollback terminates a run whose rollback itself failed. This is the
// one terminal state where the target may be unhealthy, so the summary
// carries explicit operator guidance.
func (o *Orchestrator) fatalRollback(r *run, cause, rbErr *PhaseError) (*types.RunSummary, error) {
	reason := fmt.Sprintf("%v; rollback failed: %v", cause.Err, rbErr.Err)
	o.finalize(r, types.OutcomeFailed, reason)
	metrics.DeploysTotal.WithLabelValues(string(types.OutcomeFailed)).Inc()

	r.logger.Error().
		Err(rbErr).
		Str("target", r.target.Name).
		Msg("ROLLBACK FAILED, MANUAL INTERVENTION REQUIRED")
	fmt.Fprintln(os.Stderr, RollbackGuidance)

	return o.summary(r, types.OutcomeFailed, reason), rbErr
}

// abort terminates a run before anything went live. No rollback.
func (o *Orchestrator) abort(r *run, perr *PhaseError) (*types.RunSummary, error) {
	o.finalize(r, types.OutcomeFailed, perr.Error())
	metrics.DeploysTotal.WithLabelValues(string(types.OutcomeFailed)).Inc()
	r.logger.Error().Err(perr).Str("phase", string(r.phase)).Msg("deployment failed")
	return o.summary(r, types.OutcomeFailed, perr.Error()), perr
}

// conclude builds a terminal summary for a run that never opened a record.
func (o *Orchestrator) conclude(r *run, outcome types.Outcome, reason string) *types.RunSummary {
	metrics.DeploysTotal.WithLabelValues(string(outcome)).Inc()
	return o.summary(r, outcome, reason)
}

// finalize writes the terminal outcome to the history record, exactly once.
func (o *Orchestrator) finalize(r *run, outcome types.Outcome, reason string) {
	if !r.recorded {
		return
	}
	r.recorded = false
	if err := o.hist.Finalize(r.target.Name, r.id, outcome, r.phase, reason); err != nil {
		r.logger.Error().Err(err).Msg("failed to finalize deployment record")
	}
}

func (o *Orchestrator) summary(r *run, outcome types.Outcome, reason string) *types.RunSummary {
	return &types.RunSummary{
		Target:       r.target.Name,
		FromRef:      r.fromRef,
		ToRef:        r.ref,
		Outcome:      outcome,
		PhaseReached: r.phase,
		Reason:       reason,
	}
}

// runRemote runs a command on the target and folds a non-zero exit into an
// error with the command's stderr tail.
func (o *Orchestrator) runRemote(ctx context.Context, command string) error {
	res, err := o.exec.Run(ctx, command)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(res.Stdout)
		}
		return fmt.Errorf("exit %d: %s", res.ExitCode, detail)
	}
	return nil
}

func (o *Orchestrator) markerPath() string {
	return path.Join(o.cfg.Target.WorkDir, ".shipway", "active")
}

func (o *Orchestrator) remoteDescriptorPath() string {
	return path.Join(o.cfg.Target.WorkDir, filepath.Base(o.cfg.Target.Descriptor))
}

// readActiveMarker reads the target's active ref marker. ok is false when
// the marker is missing or unparsable.
func (o *Orchestrator) readActiveMarker(ctx context.Context) (types.ArtifactRef, bool) {
	res, err := o.exec.Run(ctx, fmt.Sprintf("cat %q 2>/dev/null", o.markerPath()))
	if err != nil || res.ExitCode != 0 {
		return types.ArtifactRef{}, false
	}
	ref, err := types.ParseRef(strings.TrimSpace(res.Stdout))
	if err != nil {
		return types.ArtifactRef{}, false
	}
	return ref, true
}

func (o *Orchestrator) writeActiveMarker(ctx context.Context, ref types.ArtifactRef) error {
	return o.exec.Copy(ctx, strings.NewReader(ref.String()+"\n"), o.markerPath(), 0644)
}
