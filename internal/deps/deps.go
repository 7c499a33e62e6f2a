package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const probeTimeout = 5 * time.Second

// Requirement is an external binary the pipeline shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// VersionArgs, when set, are run against the resolved binary; a
	// non-zero exit marks it unavailable.
	VersionArgs []string
}

// Status reports how a Requirement resolved on this host.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// FFmpeg describes the transcoder binary. A blank binary means "ffmpeg" from
// PATH.
func FFmpeg(binary string) Requirement {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return Requirement{
		Name:        "FFmpeg",
		Command:     binary,
		Description: "Extracts speech audio and applies the alignment filter",
		VersionArgs: []string{"-hide_banner", "-version"},
	}
}

// Check resolves every requirement in order.
func Check(ctx context.Context, requirements ...Requirement) []Status {
	out := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		out = append(out, check(ctx, req))
	}
	return out
}

func check(ctx context.Context, req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := resolve(status.Command)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Command = resolved
	if len(req.VersionArgs) == 0 {
		status.Available = true
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	output, err := exec.CommandContext(probeCtx, resolved, req.VersionArgs...).Output()
	if err != nil {
		status.Detail = fmt.Sprintf("version probe failed: %v", err)
		return status
	}
	status.Available = true
	status.Version = firstLine(output)
	return status
}

// resolve accepts an explicit path (anything with a separator) only when it
// is an executable file; bare names go through PATH.
func resolve(command string) (string, error) {
	if !strings.ContainsRune(command, filepath.Separator) {
		path, err := exec.LookPath(command)
		if err != nil {
			return "", fmt.Errorf("binary %q not found", command)
		}
		return path, nil
	}
	info, err := os.Stat(command)
	if err != nil || info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("binary %q is not executable", command)
	}
	return command, nil
}

func firstLine(output []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

// AllAvailable reports whether every required dependency resolved.
func AllAvailable(statuses []Status) bool {
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			return false
		}
	}
	return true
}
