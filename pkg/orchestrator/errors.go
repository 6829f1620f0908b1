package orchestrator

import (
	"fmt"

	"github.com/shipway/shipway/pkg/types"
)

// Kind classifies a deployment failure. The kind, not the phase, decides
// what happens next: whether the run aborts, retries, or rolls back.
type Kind int

const (
	// KindPrecondition aborts before anything was changed.
	KindPrecondition Kind = iota

	// KindBuild aborts; the target was never touched.
	KindBuild

	// KindTransfer aborts after bounded retries; the staged upload never
	// became visible on the target.
	KindTransfer

	// KindActivation triggers rollback; the target may be partially
	// switched over.
	KindActivation

	// KindVerification triggers rollback; the new version is live but
	// not healthy.
	KindVerification

	// KindRollbackVerification is fatal. Automated recovery is exhausted
	// and the operator must intervene.
	KindRollbackVerification

	// KindLockContention aborts immediately with no side effects; another
	// run owns the target.
	KindLockContention
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindBuild:
		return "build"
	case KindTransfer:
		return "transfer"
	case KindActivation:
		return "activation"
	case KindVerification:
		return "verification"
	case KindRollbackVerification:
		return "rollback-verification"
	case KindLockContention:
		return "lock-contention"
	default:
		return "unknown"
	}
}

// PhaseError is a deployment failure tagged with its kind and the phase the
// state machine had reached when it occurred.
type PhaseError struct {
	Kind  Kind
	Phase types.Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s error in phase %s: %v", e.Kind, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// RollbackNeeded reports whether this failure escalates into the rollback
// path. Only failures at or after activation do; before that there is
// nothing live to revert.
func (e *PhaseError) RollbackNeeded() bool {
	return e.Kind == KindActivation || e.Kind == KindVerification
}

func newErr(kind Kind, phase types.Phase, err error) *PhaseError {
	return &PhaseError{Kind: kind, Phase: phase, Err: err}
}

func errf(kind Kind, phase types.Phase, format string, args ...any) *PhaseError {
	return &PhaseError{Kind: kind, Phase: phase, Err: fmt.Errorf(format, args...)}
}
