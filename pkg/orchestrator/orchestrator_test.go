package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipway/shipway/pkg/config"
	"github.com/shipway/shipway/pkg/executor"
	"github.com/shipway/shipway/pkg/history"
	"github.com/shipway/shipway/pkg/lock"
	"github.com/shipway/shipway/pkg/log"
	"github.com/shipway/shipway/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

// fakeExec simulates the deployment target. Copied files land in files;
// commands are pattern-matched and logged.
type fakeExec struct {
	mu    sync.Mutex
	files map[string]string
	cmds  []string

	failLoad bool
	failUp   bool
	failDown bool
}

func newFakeExec() *fakeExec {
	return &fakeExec{files: map[string]string{}}
}

func (e *fakeExec) Run(ctx context.Context, command string) (executor.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmds = append(e.cmds, command)

	switch {
	case command == "true":
		return executor.Result{}, nil
	case strings.HasPrefix(command, "cat "):
		p := quoted(command)
		if content, ok := e.files[p]; ok {
			return executor.Result{Stdout: content}, nil
		}
		return executor.Result{ExitCode: 1}, nil
	case strings.HasPrefix(command, "docker load"):
		if e.failLoad {
			return executor.Result{ExitCode: 1, Stderr: "no space left on device"}, nil
		}
		return executor.Result{}, nil
	case strings.Contains(command, "docker compose up"):
		if e.failUp {
			return executor.Result{ExitCode: 1, Stderr: "port is already allocated"}, nil
		}
		return executor.Result{}, nil
	case strings.Contains(command, "docker compose ps"):
		return executor.Result{Stdout: "3f2a9c\n"}, nil
	case strings.Contains(command, "docker compose down"):
		if e.failDown {
			return executor.Result{ExitCode: 1, Stderr: "cannot stop"}, nil
		}
		return executor.Result{}, nil
	}
	return executor.Result{}, nil
}

func (e *fakeExec) Copy(ctx context.Context, src io.Reader, remotePath string, mode os.FileMode) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[remotePath] = string(data)
	return nil
}

func (e *fakeExec) Close() error { return nil }

func (e *fakeExec) marker() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.TrimSpace(e.files["/srv/api/.shipway/active"])
}

func (e *fakeExec) ran(substr string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.cmds {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

// quoted extracts the first double-quoted token of a command.
func quoted(command string) string {
	i := strings.Index(command, `"`)
	if i < 0 {
		return ""
	}
	j := strings.Index(command[i+1:], `"`)
	if j < 0 {
		return ""
	}
	return command[i+1 : i+1+j]
}

// memStore is an in-memory artifact store used for both sides of the
// transfer.
type memStore struct {
	mu       sync.Mutex
	name     string
	refs     []types.ArtifactRef
	blobs    map[types.ArtifactRef]string
	failPuts int
	removed  []types.ArtifactRef
}

func newMemStore(name string) *memStore {
	return &memStore{name: name, blobs: map[types.ArtifactRef]string{}}
}

func (s *memStore) add(ref types.ArtifactRef, blob string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; !ok {
		s.refs = append(s.refs, ref)
	}
	s.blobs[ref] = blob
}

func (s *memStore) List(ctx context.Context, name string) ([]types.ArtifactCatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []types.ArtifactCatalogEntry
	for _, ref := range s.refs {
		if ref.Name == name {
			entries = append(entries, types.ArtifactCatalogEntry{Ref: ref})
		}
	}
	return entries, nil
}

func (s *memStore) Has(ctx context.Context, ref types.ArtifactRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[ref]
	return ok, nil
}

func (s *memStore) Remove(ctx context.Context, ref types.ArtifactRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, ref)
	for i, r := range s.refs {
		if r == ref {
			s.refs = append(s.refs[:i], s.refs[i+1:]...)
			break
		}
	}
	s.removed = append(s.removed, ref)
	return nil
}

func (s *memStore) Description() string { return s.name }

func (s *memStore) Path(ref types.ArtifactRef) string {
	return "/store/" + ref.Name + "_" + ref.Revision + ".tar.gz"
}

func (s *memStore) Open(ref types.ArtifactRef) (io.ReadCloser, int64, error) {
	s.mu.Lock()
	blob, ok := s.blobs[ref]
	s.mu.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("artifact %s not in store", ref)
	}
	return io.NopCloser(strings.NewReader(blob)), int64(len(blob)), nil
}

func (s *memStore) Put(ctx context.Context, ref types.ArtifactRef, src io.Reader) error {
	s.mu.Lock()
	fail := s.failPuts > 0
	if fail {
		s.failPuts--
	}
	s.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	s.add(ref, string(data))
	return nil
}

// fakeBuilder produces a fixed revision and registers the built artifact in
// the local store.
type fakeBuilder struct {
	revision  string
	dirty     bool
	buildErr  error
	toolErr   error
	local     *memStore
	buildRuns int
}

func (b *fakeBuilder) Revision(ctx context.Context) (string, error) { return b.revision, nil }

func (b *fakeBuilder) Dirty(ctx context.Context) (bool, error) { return b.dirty, nil }

func (b *fakeBuilder) CheckToolchain(ctx context.Context) error { return b.toolErr }

func (b *fakeBuilder) Build(ctx context.Context, ref types.ArtifactRef, platform, exportPath string) error {
	b.buildRuns++
	if b.buildErr != nil {
		return b.buildErr
	}
	b.local.add(ref, "tarball:"+ref.String())
	return nil
}

// proberFunc adapts a function to health.Prober.
type proberFunc func(ctx context.Context) types.HealthResult

func (f proberFunc) Probe(ctx context.Context) types.HealthResult { return f(ctx) }

func healthyWhenActive(exec *fakeExec, ref types.ArtifactRef) proberFunc {
	return func(ctx context.Context) types.HealthResult {
		if exec.marker() == ref.String() {
			return types.HealthResult{Healthy: true, Detail: "healthy=true"}
		}
		return types.HealthResult{Healthy: false, Detail: "status=\"down\""}
	}
}

func alwaysUnhealthy() proberFunc {
	return func(ctx context.Context) types.HealthResult {
		return types.HealthResult{Healthy: false, Detail: "healthy=false"}
	}
}

// harness bundles one orchestrator with its fakes.
type harness struct {
	orch    *Orchestrator
	cfg     *config.Config
	exec    *fakeExec
	local   *memStore
	remote  *memStore
	builder *fakeBuilder
	hist    *history.BoltLog
	locks   *lock.Manager
	prober  proberFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	descriptor := filepath.Join(t.TempDir(), "docker-compose.yml")
	require.NoError(t, os.WriteFile(descriptor, []byte("services:\n  api:\n    image: ${SHIPWAY_IMAGE}\n"), 0644))

	cfg := &config.Config{
		Target: types.DeploymentTarget{
			Name:       "api",
			Host:       "10.0.0.5",
			User:       "deploy",
			WorkDir:    "/srv/api",
			Descriptor: descriptor,
			Platform:   "linux/amd64",
			HealthURL:  "http://10.0.0.5:8080/health",
		},
		Probe: config.ProbeConfig{
			Attempts:    3,
			Interval:    time.Millisecond,
			Timeout:     time.Second,
			Consecutive: 1,
		},
		Transfer:  config.TransferConfig{Retries: 1},
		Retention: config.RetentionConfig{Keep: 5},
	}

	hist, err := history.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	locks, err := lock.NewManager(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		cfg:    cfg,
		exec:   newFakeExec(),
		local:  newMemStore("local"),
		remote: newMemStore("remote"),
		hist:   hist,
		locks:  locks,
	}
	h.builder = &fakeBuilder{revision: "def456", local: h.local}
	h.prober = healthyWhenActive(h.exec, types.ArtifactRef{Name: "api", Revision: "def456"})
	return h
}

func (h *harness) build() *Orchestrator {
	h.orch = New(Deps{
		Config:  h.cfg,
		Builder: h.builder,
		Exec:    h.exec,
		Local:   h.local,
		Remote:  h.remote,
		Prober:  h.prober,
		History: h.hist,
		Locks:   h.locks,
	})
	return h.orch
}

// seedDeployment fakes a previously committed deployment of ref: history
// record, artifact in both stores, marker and descriptor on the target.
func (h *harness) seedDeployment(t *testing.T, ref types.ArtifactRef, startedAt time.Time) {
	t.Helper()
	rec := &types.DeploymentRecord{
		ID:        "seed-" + ref.Revision,
		Target:    "api",
		ToRef:     ref,
		StartedAt: startedAt,
	}
	require.NoError(t, h.hist.Append(rec))
	require.NoError(t, h.hist.Finalize("api", rec.ID, types.OutcomeSucceeded, types.PhaseDone, ""))

	blob := "tarball:" + ref.String()
	h.local.add(ref, blob)
	h.remote.add(ref, blob)
	h.exec.files["/srv/api/.shipway/active"] = ref.String() + "\n"
	h.exec.files["/srv/api/docker-compose.yml"] = "services:\n  api:\n    image: " + ref.String() + "\n"
}

func lastRecord(t *testing.T, h *harness) *types.DeploymentRecord {
	t.Helper()
	records, err := h.hist.List("api")
	require.NoError(t, err)
	require.NotEmpty(t, records)
	return records[len(records)-1]
}

func TestRun_CommitsHealthyDeployment(t *testing.T) {
	h := newHarness(t)
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{Message: "ship it"})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSucceeded, summary.Outcome)
	assert.Equal(t, types.PhaseDone, summary.PhaseReached)
	assert.Equal(t, "api:def456", summary.ToRef.String())

	// New version is live on the target.
	assert.Equal(t, "api:def456", h.exec.marker())
	assert.True(t, h.exec.ran(`SHIPWAY_IMAGE="api:def456" docker compose up`))

	// Artifact made it to the remote store.
	has, err := h.remote.Has(context.Background(), summary.ToRef)
	require.NoError(t, err)
	assert.True(t, has)

	rec := lastRecord(t, h)
	assert.Equal(t, types.OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, "ship it", rec.Message)
	assert.True(t, rec.Finalized())
}

func TestRun_UnhealthyDeploymentRollsBack(t *testing.T) {
	h := newHarness(t)
	prev := types.ArtifactRef{Name: "api", Revision: "abc123"}
	h.seedDeployment(t, prev, time.Now().Add(-time.Hour))

	// Healthy only while the previous version is active.
	h.prober = healthyWhenActive(h.exec, prev)
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindVerification, perr.Kind)

	assert.Equal(t, types.OutcomeRolledBack, summary.Outcome)
	assert.Equal(t, "api:abc123", h.exec.marker())
	assert.True(t, h.exec.ran(`SHIPWAY_IMAGE="api:abc123" docker compose up`))

	rec := lastRecord(t, h)
	assert.Equal(t, types.OutcomeRolledBack, rec.Outcome)
	assert.Equal(t, "api:def456", rec.ToRef.String())
}

func TestRun_ActivationFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	prev := types.ArtifactRef{Name: "api", Revision: "abc123"}
	h.seedDeployment(t, prev, time.Now().Add(-time.Hour))
	h.prober = healthyWhenActive(h.exec, prev)
	h.exec.failLoad = true
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindActivation, perr.Kind)
	assert.Equal(t, types.OutcomeRolledBack, summary.Outcome)
}

func TestRun_BuildFailureNeverTouchesTarget(t *testing.T) {
	h := newHarness(t)
	prev := types.ArtifactRef{Name: "api", Revision: "abc123"}
	h.seedDeployment(t, prev, time.Now().Add(-time.Hour))
	h.builder.buildErr = errors.New("compile error in main.go")
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindBuild, perr.Kind)
	assert.Equal(t, types.OutcomeFailed, summary.Outcome)

	// No rollback and no activation: the target never changed.
	assert.False(t, h.exec.ran("docker compose up"))
	assert.False(t, h.exec.ran("docker compose down"))
	assert.Equal(t, "api:abc123", h.exec.marker())

	rec := lastRecord(t, h)
	assert.Equal(t, types.OutcomeFailed, rec.Outcome)
}

func TestRun_RollbackVerificationFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	prev := types.ArtifactRef{Name: "api", Revision: "abc123"}
	h.seedDeployment(t, prev, time.Now().Add(-time.Hour))
	h.prober = alwaysUnhealthy()
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindRollbackVerification, perr.Kind)

	assert.Equal(t, types.OutcomeFailed, summary.Outcome)
	assert.Contains(t, summary.Reason, "rollback failed")

	rec := lastRecord(t, h)
	assert.Equal(t, types.OutcomeFailed, rec.Outcome)
}

func TestRun_FirstDeployFailureDeactivates(t *testing.T) {
	h := newHarness(t)
	h.prober = alwaysUnhealthy()
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	assert.Equal(t, types.OutcomeRolledBack, summary.Outcome)
	assert.Contains(t, summary.Reason, "no previous version")
	assert.True(t, h.exec.ran("docker compose down"))
}

func TestRun_LockContentionAbortsWithoutRecord(t *testing.T) {
	h := newHarness(t)
	orch := h.build()

	guard, err := h.locks.Acquire("api", "another-run")
	require.NoError(t, err)
	defer guard.Release()

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindLockContention, perr.Kind)
	assert.Equal(t, types.OutcomeFailed, summary.Outcome)

	// No side effects at all.
	records, err := h.hist.List("api")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, h.exec.cmds)
}

func TestRun_DryRunHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSucceeded, summary.Outcome)
	assert.Equal(t, "api:def456", summary.ToRef.String())

	assert.Empty(t, h.exec.cmds)
	assert.Equal(t, 0, h.builder.buildRuns)
	records, err := h.hist.List("api")
	require.NoError(t, err)
	assert.Empty(t, records)

	// The lock was never taken: a real run still acquires it.
	guard, err := h.locks.Acquire("api", "after-dry-run")
	require.NoError(t, err)
	guard.Release()
}

func TestRun_DryRunHonorsDirtyTreeGuard(t *testing.T) {
	h := newHarness(t)
	h.builder.dirty = true
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{DryRun: true})
	require.Error(t, err)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindPrecondition, perr.Kind)
	assert.Equal(t, types.OutcomeFailed, summary.Outcome)
	assert.Empty(t, h.exec.cmds)

	// Force passes the gate, exactly like a real deploy.
	summary, err = orch.Run(context.Background(), RunOptions{DryRun: true, Force: true})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSucceeded, summary.Outcome)
	assert.Empty(t, h.exec.cmds)
}

func TestRun_DryRunChecksToolchain(t *testing.T) {
	h := newHarness(t)
	h.builder.toolErr = errors.New("docker buildx unavailable")
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{DryRun: true})
	require.Error(t, err)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindPrecondition, perr.Kind)
	assert.Equal(t, types.OutcomeFailed, summary.Outcome)
	assert.Empty(t, h.exec.cmds)
}

func TestRun_CancellationFinalizesRecordAndReleasesLock(t *testing.T) {
	h := newHarness(t)
	prev := types.ArtifactRef{Name: "api", Revision: "abc123"}
	h.seedDeployment(t, prev, time.Now().Add(-time.Hour))

	// The operator interrupts while verification is in flight.
	ctx, cancel := context.WithCancel(context.Background())
	h.prober = proberFunc(func(context.Context) types.HealthResult {
		cancel()
		return types.HealthResult{Healthy: false, Detail: "connection refused"}
	})
	orch := h.build()

	summary, err := orch.Run(ctx, RunOptions{})
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.NotEqual(t, types.Outcome(""), summary.Outcome)

	// The record carries a terminal outcome despite the interruption.
	rec := lastRecord(t, h)
	assert.True(t, rec.Finalized())

	// And the lock was released on the way out.
	guard, err := h.locks.Acquire("api", "next-run")
	require.NoError(t, err)
	guard.Release()
}

func TestRun_SameRevisionGuard(t *testing.T) {
	h := newHarness(t)
	cur := types.ArtifactRef{Name: "api", Revision: "def456"}
	h.seedDeployment(t, cur, time.Now().Add(-time.Hour))
	orch := h.build()

	_, err := orch.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindPrecondition, perr.Kind)
	assert.Contains(t, err.Error(), "already active")

	// Force redeploys the same revision.
	summary, err := orch.Run(context.Background(), RunOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSucceeded, summary.Outcome)
}

func TestRun_DirtyTreeGuard(t *testing.T) {
	h := newHarness(t)
	h.builder.dirty = true
	orch := h.build()

	_, err := orch.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uncommitted changes")

	summary, err := orch.Run(context.Background(), RunOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSucceeded, summary.Outcome)
}

func TestRun_TransferRetriesThenSucceeds(t *testing.T) {
	h := newHarness(t)
	h.remote.failPuts = 1
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSucceeded, summary.Outcome)

	has, err := h.remote.Has(context.Background(), summary.ToRef)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRun_TransferRetriesExhausted(t *testing.T) {
	h := newHarness(t)
	h.remote.failPuts = 10
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindTransfer, perr.Kind)
	assert.Equal(t, types.OutcomeFailed, summary.Outcome)
	assert.False(t, h.exec.ran("docker compose up"))
}

func TestRun_OperatorRollback(t *testing.T) {
	h := newHarness(t)
	old := types.ArtifactRef{Name: "api", Revision: "abc123"}
	h.seedDeployment(t, old, time.Now().Add(-2*time.Hour))

	// A later attempt of def456 that was rolled back.
	rec := &types.DeploymentRecord{
		ID:        "seed-rb",
		Target:    "api",
		FromRef:   old,
		ToRef:     types.ArtifactRef{Name: "api", Revision: "def456"},
		StartedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, h.hist.Append(rec))
	require.NoError(t, h.hist.Finalize("api", rec.ID, types.OutcomeRolledBack, types.PhaseRolledBack, "unhealthy"))

	h.prober = healthyWhenActive(h.exec, old)
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{Rollback: true})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeRolledBack, summary.Outcome)
	assert.Equal(t, "api:abc123", summary.ToRef.String())
	assert.Equal(t, "api:abc123", h.exec.marker())

	// Build and transfer were skipped: the artifact already exists.
	assert.Equal(t, 0, h.builder.buildRuns)

	rec2 := lastRecord(t, h)
	assert.Equal(t, types.OutcomeRolledBack, rec2.Outcome)
	assert.Contains(t, rec2.Reason, "rolled back to api:abc123")
}

func TestRun_OperatorRollbackToExplicitRef(t *testing.T) {
	h := newHarness(t)
	old := types.ArtifactRef{Name: "api", Revision: "abc123"}
	h.seedDeployment(t, old, time.Now().Add(-2*time.Hour))
	cur := types.ArtifactRef{Name: "api", Revision: "fff999"}
	h.seedDeployment(t, cur, time.Now().Add(-time.Hour))

	h.prober = healthyWhenActive(h.exec, old)
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{Rollback: true, RollbackTo: old})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeRolledBack, summary.Outcome)
	assert.Equal(t, "api:abc123", h.exec.marker())
}

func TestRun_RollbackWithNoHistoryFails(t *testing.T) {
	h := newHarness(t)
	orch := h.build()

	_, err := orch.Run(context.Background(), RunOptions{Rollback: true})
	require.Error(t, err)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindPrecondition, perr.Kind)
}

func TestRun_CachedArtifactSkipsBuild(t *testing.T) {
	h := newHarness(t)
	ref := types.ArtifactRef{Name: "api", Revision: "def456"}
	h.local.add(ref, "tarball:"+ref.String())
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSucceeded, summary.Outcome)
	assert.Equal(t, 0, h.builder.buildRuns)
}

func TestRun_RetentionPrunesAfterCommit(t *testing.T) {
	h := newHarness(t)
	h.cfg.Retention.Keep = 2
	base := time.Now().Add(-10 * time.Hour)
	for i, rev := range []string{"r1", "r2", "r3"} {
		h.seedDeployment(t, types.ArtifactRef{Name: "api", Revision: rev}, base.Add(time.Duration(i)*time.Hour))
	}
	orch := h.build()

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, types.OutcomeSucceeded, summary.Outcome)

	// Keep=2 leaves the new ref plus one predecessor in each store.
	entries, err := h.local.List(context.Background(), "api")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "def456", entries[len(entries)-1].Ref.Revision)
}
