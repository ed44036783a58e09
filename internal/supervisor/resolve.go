package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// resolveExecutable implements the search order spec.md §4.1 names: next to
// the agent's own binary, then ./bin/<name>, then ./<name>, then PATH.
// FABSTIR_NODE_BIN, if set, is tried first and must point at a real file.
func resolveExecutable(name string) (string, error) {
	if override := strings.TrimSpace(os.Getenv("FABSTIR_NODE_BIN")); override != "" {
		if st, err := os.Stat(override); err == nil && !st.IsDir() {
			return filepath.Abs(override)
		}
		return "", fmt.Errorf("FABSTIR_NODE_BIN=%q does not point at an existing file", override)
	}

	var candidates []string
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates, filepath.Join(dir, name))
	}
	candidates = append(candidates,
		filepath.Join(".", "bin", name),
		filepath.Join(".", name),
	)

	for _, candidate := range candidates {
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return filepath.Abs(candidate)
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("inference binary %q not found next to the agent binary, in ./bin, ./, or PATH", name)
}
