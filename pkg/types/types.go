package types

import (
	"fmt"
	"time"
)

// DeploymentTarget identifies where a deployment lands. It is immutable for
// the duration of a run and supplied from configuration.
type DeploymentTarget struct {
	Name         string `yaml:"name" json:"name"`
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	User         string `yaml:"user" json:"user"`
	IdentityFile string `yaml:"identity_file" json:"identity_file"`
	WorkDir      string `yaml:"workdir" json:"workdir"`

	// Descriptor is the local path of the declarative runtime descriptor
	// (compose file) that is re-applied wholesale on every activation.
	Descriptor string `yaml:"descriptor" json:"descriptor"`

	// Platform is the build platform for this target (e.g. "linux/arm64").
	// It may differ from the invoking machine's architecture.
	Platform string `yaml:"platform" json:"platform"`

	// HealthURL is the HTTP endpoint probed during verification.
	HealthURL string `yaml:"health_url" json:"health_url"`
}

// Addr returns the host:port dial address for the target.
func (t DeploymentTarget) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", t.Host, port)
}

// ArtifactRef is a content-addressed artifact identifier. Revision is a
// short, stable hash of the source tree at build time: building identical
// source twice yields identical refs. Artifacts are immutable once created.
type ArtifactRef struct {
	Name     string `json:"name"`
	Revision string `json:"revision"`
}

// String renders the ref as name:revision, the form used for image tags and
// store filenames.
func (r ArtifactRef) String() string {
	return r.Name + ":" + r.Revision
}

// IsZero reports whether the ref is empty.
func (r ArtifactRef) IsZero() bool {
	return r.Name == "" && r.Revision == ""
}

// ParseRef parses a name:revision string into an ArtifactRef.
func ParseRef(s string) (ArtifactRef, error) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			if i == 0 || i == len(s)-1 {
				break
			}
			return ArtifactRef{Name: s[:i], Revision: s[i+1:]}, nil
		}
	}
	return ArtifactRef{}, fmt.Errorf("invalid artifact ref %q: want name:revision", s)
}

// ArtifactCatalogEntry tracks one stored artifact version. Catalogs are
// ordered by creation time; "latest" is derived, never authoritative.
type ArtifactCatalogEntry struct {
	Ref       ArtifactRef `json:"ref"`
	CreatedAt time.Time   `json:"created_at"`
	Location  string      `json:"location"`
	SizeBytes int64       `json:"size_bytes"`
}

// Outcome is the terminal result of a deployment run.
type Outcome string

const (
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeRolledBack Outcome = "rolled-back"
	OutcomeFailed     Outcome = "failed"
)

// Phase is a state of the deployment state machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhasePrechecked  Phase = "prechecked"
	PhaseBuilt       Phase = "built"
	PhaseTransferred Phase = "transferred"
	PhaseActivated   Phase = "activated"
	PhaseVerified    Phase = "verified"
	PhaseCommitted   Phase = "committed"
	PhaseRolledBack  Phase = "rolled-back"
	PhaseDone        Phase = "done"
)

// DeploymentRecord is one append-only audit log entry. A record is created
// when a run starts and finalized exactly once with a terminal outcome; an
// empty Outcome means the run is (or was, at the time of a crash) in
// progress. Records are never deleted.
type DeploymentRecord struct {
	ID           string      `json:"id"`
	Target       string      `json:"target"`
	FromRef      ArtifactRef `json:"from_ref"`
	ToRef        ArtifactRef `json:"to_ref"`
	Message      string      `json:"message,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
	Outcome      Outcome     `json:"outcome,omitempty"`
	PhaseReached Phase       `json:"phase_reached"`
	Reason       string      `json:"reason,omitempty"`
}

// Finalized reports whether the record carries a terminal outcome.
func (r *DeploymentRecord) Finalized() bool {
	return r.Outcome != ""
}

// HealthResult is the classified outcome of a single health probe. It is
// never persisted beyond the run except inside a record's Reason field.
type HealthResult struct {
	Healthy   bool
	Detail    string
	CheckedAt time.Time
	Duration  time.Duration
}

// Snapshot captures the pre-activation state of a target: the active ref and
// the descriptor currently applied. It is sufficient to reconstruct the
// previous deployment during rollback.
type Snapshot struct {
	ActiveRef  ArtifactRef `json:"active_ref"`
	Descriptor []byte      `json:"descriptor"`
	TakenAt    time.Time   `json:"taken_at"`
}

// RunSummary is the structured summary printed for every terminal state.
type RunSummary struct {
	Target       string      `json:"target"`
	FromRef      ArtifactRef `json:"from_ref"`
	ToRef        ArtifactRef `json:"to_ref"`
	Outcome      Outcome     `json:"outcome"`
	PhaseReached Phase       `json:"phase_reached"`
	Reason       string      `json:"reason,omitempty"`
}
