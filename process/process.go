// Package process tracks agent processes started by this engine and finds
// stray ones left behind by earlier runs.
package process

import (
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/zhubert/plural-agent/logger"
)

// AgentProcess represents a running agent CLI process found on the system.
type AgentProcess struct {
	PID     int    // Process ID
	Command string // Full command line
}

// agentPattern matches the non-interactive agent invocation used by the engine.
const agentPattern = "codex.* exec .*--json"

// FindAgentProcesses finds all running agent processes on the system.
// Useful for detecting processes left behind after a crash.
func FindAgentProcesses() ([]AgentProcess, error) {
	var processes []AgentProcess
	log := logger.WithComponent("process")

	switch runtime.GOOS {
	case "darwin", "linux":
		output, err := exec.Command("pgrep", "-f", agentPattern).Output()
		if err != nil {
			// pgrep exits 1 when nothing matches
			if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
				return processes, nil
			}
			return nil, err
		}

		for _, pidStr := range strings.Fields(string(output)) {
			pid, err := strconv.Atoi(strings.TrimSpace(pidStr))
			if err != nil {
				continue
			}
			psOutput, err := exec.Command("ps", "-p", pidStr, "-o", "args=").Output()
			if err != nil {
				continue
			}
			processes = append(processes, AgentProcess{
				PID:     pid,
				Command: strings.TrimSpace(string(psOutput)),
			})
		}

	case "windows":
		output, err := exec.Command("tasklist", "/FI", "IMAGENAME eq codex*", "/FO", "CSV", "/NH").Output()
		if err != nil {
			return nil, err
		}
		for line := range strings.SplitSeq(string(output), "\n") {
			fields := strings.Split(line, ",")
			if len(fields) < 2 {
				continue
			}
			pid, err := strconv.Atoi(strings.Trim(strings.TrimSpace(fields[1]), "\""))
			if err != nil {
				continue
			}
			processes = append(processes, AgentProcess{
				PID:     pid,
				Command: strings.Trim(fields[0], "\""),
			})
		}
	}

	log.Debug("found agent processes", "count", len(processes))
	return processes, nil
}

// KillProcess kills a process by PID.
func KillProcess(pid int) error {
	switch runtime.GOOS {
	case "darwin", "linux":
		return exec.Command("kill", "-9", strconv.Itoa(pid)).Run()
	case "windows":
		return exec.Command("taskkill", "/F", "/PID", strconv.Itoa(pid)).Run()
	}
	return nil
}

// FindOrphanedProcesses returns agent processes that are not tracked by
// reg and whose resumed session ID is not in knownSessionIDs. Processes
// running a fresh (non-resume) invocation are orphans unless tracked.
func FindOrphanedProcesses(reg *Registry, knownSessionIDs map[string]bool) ([]AgentProcess, error) {
	all, err := FindAgentProcesses()
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("process")
	var orphans []AgentProcess
	for _, proc := range all {
		if reg != nil && reg.Tracks(proc.PID) {
			continue
		}
		sessionID := extractSessionID(proc.Command)
		if sessionID != "" && knownSessionIDs[sessionID] {
			continue
		}
		orphans = append(orphans, proc)
		log.Info("found orphaned agent process", "pid", proc.PID, "sessionID", sessionID)
	}
	return orphans, nil
}

// extractSessionID pulls the thread ID out of an "exec ... resume <id> <prompt>"
// command line. Returns "" for fresh invocations.
func extractSessionID(cmdLine string) string {
	fields := strings.Fields(cmdLine)
	for i, f := range fields {
		if f == "resume" && i+1 < len(fields) {
			id := fields[i+1]
			if strings.HasPrefix(id, "-") {
				return ""
			}
			return id
		}
	}
	return ""
}

// CleanupOrphanedProcesses kills every orphan reported by FindOrphanedProcesses.
// Returns the number of processes killed.
func CleanupOrphanedProcesses(reg *Registry, knownSessionIDs map[string]bool) (int, error) {
	orphans, err := FindOrphanedProcesses(reg, knownSessionIDs)
	if err != nil {
		return 0, err
	}

	log := logger.WithComponent("process")
	killed := 0
	for _, proc := range orphans {
		log.Info("killing orphaned agent process", "pid", proc.PID)
		if err := KillProcess(proc.PID); err != nil {
			log.Error("failed to kill process", "pid", proc.PID, "error", err)
			continue
		}
		killed++
	}
	return killed, nil
}
