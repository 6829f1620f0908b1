package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/shipway/shipway/pkg/executor"
)

// ProcessLiveness reports whether the target's declared runtime has running
// containers. This is a weaker, advisory signal only: the HTTP probe is
// authoritative for verification, and a running process that fails its
// probe is still unhealthy.
func ProcessLiveness(ctx context.Context, exec executor.Executor, workDir string) (bool, string) {
	cmd := fmt.Sprintf("cd %q && docker compose ps --status running --quiet", workDir)
	res, err := exec.Run(ctx, cmd)
	if err != nil {
		return false, fmt.Sprintf("liveness check failed: %v", err)
	}
	if res.ExitCode != 0 {
		return false, fmt.Sprintf("liveness check exit %d", res.ExitCode)
	}

	running := len(strings.Fields(res.Stdout))
	if running == 0 {
		return false, "no running containers"
	}
	return true, fmt.Sprintf("%d container(s) running", running)
}
