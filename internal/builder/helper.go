package builder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// checkDockerAvailability verifies that Docker is running and available
func checkDockerAvailability(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "ps")
	cmd.Env = filterOtelEnv(os.Environ())
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker not available: %w", err)
	}
	return nil
}

// get rid of all environment variables that are related to OpenTelemetry
func filterOtelEnv(env []string) []string {
	var filtered []string
	for _, e := range env {
		if strings.HasPrefix(e, "OTEL_") || strings.HasPrefix(e, "OTLP_") {
			continue // Skip OpenTelemetry related environment variables
		}
		filtered = append(filtered, e)
	}
	return filtered
}
