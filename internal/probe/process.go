// ABOUTME: Provider process probe using a go-ps scan plus /proc cwd checks.
// ABOUTME: Detects and kills orphan worker processes rooted at an agent's working dir.

package probe

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	ps "github.com/mitchellh/go-ps"
)

// ProcessProbe finds coding-assistant processes that the orchestrator has
// no handle for. Matching is by executable name and, where the platform
// allows it, by process working directory.
type ProcessProbe struct {
	logger *slog.Logger
}

// NewProcessProbe creates a process probe.
func NewProcessProbe(logger *slog.Logger) *ProcessProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessProbe{logger: logger.With("component", "process-probe")}
}

// IsProviderProcessRunningInCwd reports whether some process for the given
// provider binary is alive under the working directory. When the platform
// exposes no per-process cwd, a name match alone counts, which errs toward
// not declaring live work dead.
func (p *ProcessProbe) IsProviderProcessRunningInCwd(provider, cwd string) bool {
	pids, err := p.findProviderPIDs(provider)
	if err != nil {
		p.logger.Debug("process scan failed", "error", err)
		return false
	}

	for _, pid := range pids {
		procCwd, ok := processCwd(pid)
		if !ok {
			return true
		}
		if pathsEqual(procCwd, cwd) {
			return true
		}
	}
	return false
}

// KillDetachedProcesses terminates every provider process rooted at cwd.
// Used by the stop path to clean up workers the runner lost track of.
// Returns the number of processes signalled.
func (p *ProcessProbe) KillDetachedProcesses(provider, cwd string) int {
	pids, err := p.findProviderPIDs(provider)
	if err != nil {
		p.logger.Debug("process scan failed", "error", err)
		return 0
	}

	killed := 0
	for _, pid := range pids {
		procCwd, ok := processCwd(pid)
		if ok && !pathsEqual(procCwd, cwd) {
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			p.logger.Debug("kill failed", "pid", pid, "error", err)
			continue
		}
		p.logger.Info("killed detached provider process", "pid", pid, "cwd", cwd)
		killed++
	}
	return killed
}

// findProviderPIDs returns pids whose executable matches the provider
// binary name, excluding this process's own tree is not attempted; callers
// filter by cwd.
func (p *ProcessProbe) findProviderPIDs(provider string) ([]int, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	name := filepath.Base(provider)
	var pids []int
	for _, proc := range procs {
		if proc.Executable() == name {
			pids = append(pids, proc.Pid())
		}
	}
	return pids, nil
}

// processCwd resolves a process's working directory via /proc. Returns
// false when the platform or permissions don't allow it.
func processCwd(pid int) (string, bool) {
	link, err := os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
	if err != nil {
		return "", false
	}
	return link, true
}

// pathsEqual compares cleaned absolute paths, treating a worker in a
// subdirectory of the agent workspace as inside it.
func pathsEqual(procCwd, agentCwd string) bool {
	procCwd = filepath.Clean(procCwd)
	agentCwd = filepath.Clean(agentCwd)
	if procCwd == agentCwd {
		return true
	}
	return strings.HasPrefix(procCwd, agentCwd+string(filepath.Separator))
}
