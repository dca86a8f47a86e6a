// Package sandbox executes agent-requested shell commands under an
// allowlist/denylist safety policy with timeout-enforced process-group
// kill and output truncation, ported from
// original_source/agents/shell_runner.py's ShellSafetyConfig/run_command,
// restructured around process-tracking with a mutex the way the teacher's
// internal/agents/spawner.go tracks live processes.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/swebotic/coordfab/internal/config"
	"github.com/swebotic/coordfab/internal/errs"
)

// Status is the terminal state of a sandboxed command run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusTimeout Status = "timeout"
	StatusBlocked Status = "blocked"
)

// Result is the outcome of a Sandbox.Run call. to_dict-equivalent output
// truncation (maxOutputBytes) is applied before Stdout/Stderr are set.
type Result struct {
	Status   Status
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Sandbox enforces the shell safety policy and tracks in-flight commands.
type Sandbox struct {
	cfg             config.SandboxConfig
	blockedPatterns []*regexp.Regexp

	mu      sync.Mutex
	running map[int]*exec.Cmd // pid -> cmd, for introspection/force-kill
}

// New compiles the configured blocked patterns and returns a ready Sandbox.
func New(cfg config.SandboxConfig) (*Sandbox, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.BlockedPatterns))
	for _, p := range cfg.BlockedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile blocked pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &Sandbox{cfg: cfg, blockedPatterns: patterns, running: make(map[int]*exec.Cmd)}, nil
}

// Validate applies the allowlist/denylist policy without running anything,
// mirroring the original's separate validation step before execution.
func (s *Sandbox) Validate(command, workDir string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return &errs.BlockedBySandbox{Command: command, Reason: "empty command"}
	}

	lower := strings.ToLower(trimmed)
	for _, blocked := range s.cfg.BlockedCommands {
		if strings.Contains(lower, strings.ToLower(blocked)) {
			return &errs.BlockedBySandbox{Command: command, Reason: "matches blocked command " + blocked}
		}
	}
	for _, re := range s.blockedPatterns {
		if re.MatchString(command) {
			return &errs.BlockedBySandbox{Command: command, Reason: "matches blocked pattern " + re.String()}
		}
	}

	if len(s.cfg.AllowedCommands) > 0 {
		fields := strings.Fields(trimmed)
		if len(fields) == 0 {
			return &errs.BlockedBySandbox{Command: command, Reason: "no executable token"}
		}
		bin := filepath.Base(fields[0])
		allowed := false
		for _, a := range s.cfg.AllowedCommands {
			if bin == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return &errs.BlockedBySandbox{Command: command, Reason: "executable not in allowlist: " + bin}
		}
	}

	if len(s.cfg.AllowedBaseDirs) > 0 && workDir != "" {
		ok := false
		for _, base := range s.cfg.AllowedBaseDirs {
			rel, err := filepath.Rel(base, workDir)
			if err == nil && !strings.HasPrefix(rel, "..") {
				ok = true
				break
			}
		}
		if !ok {
			return &errs.BlockedBySandbox{Command: command, Reason: "working directory outside allowed base dirs"}
		}
	}
	return nil
}

// Run validates and executes command in workDir with a bounded timeout,
// killing the whole process group if it overruns -- the shape
// agents/spawner.go uses for its own timeout-based process reaping.
func (s *Sandbox) Run(ctx context.Context, command, workDir string, timeout time.Duration) (Result, error) {
	if err := s.Validate(command, workDir); err != nil {
		return Result{Status: StatusBlocked}, err
	}

	if timeout <= 0 {
		timeout = time.Duration(s.cfg.DefaultTimeoutSeconds) * time.Second
	}
	maxTimeout := time.Duration(s.cfg.MaxTimeoutSeconds) * time.Second
	if maxTimeout > 0 && timeout > maxTimeout {
		timeout = maxTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{Status: StatusFailure}, fmt.Errorf("start command: %w", err)
	}

	s.mu.Lock()
	s.running[cmd.Process.Pid] = cmd
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, cmd.Process.Pid)
		s.mu.Unlock()
	}()

	err := cmd.Wait()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd.Process.Pid)
		return Result{
			Status:   StatusTimeout,
			Stdout:   truncate(stdout.String(), s.cfg.MaxOutputBytes),
			Stderr:   truncate(stderr.String(), s.cfg.MaxOutputBytes),
			Duration: duration,
		}, &errs.Timeout{Op: "sandbox run", Seconds: timeout.Seconds()}
	}

	result := Result{
		Stdout:   truncate(stdout.String(), s.cfg.MaxOutputBytes),
		Stderr:   truncate(stderr.String(), s.cfg.MaxOutputBytes),
		Duration: duration,
	}
	if err != nil {
		result.Status = StatusFailure
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, nil
	}
	result.Status = StatusSuccess
	return result, nil
}

// RunningCount reports how many commands this sandbox currently has in flight.
func (s *Sandbox) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func killProcessGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + fmt.Sprintf("\n...[truncated %d bytes]", len(s)-maxBytes)
}

// manifestRunners maps build-manifest filenames to the test command they
// imply, the declarative table SPEC_FULL.md §4.4 calls for in place of an
// if/else chain -- matching the data-driven style of internal/tasks/sources.go.
var manifestRunners = []struct {
	Manifest string
	Command  string
}{
	{"go.mod", "go test ./..."},
	{"package.json", "npm test"},
	{"pyproject.toml", "pytest"},
	{"requirements.txt", "pytest"},
	{"Cargo.toml", "cargo test"},
	{"pom.xml", "mvn test"},
}

// DetectTestCommand returns the test command implied by presence, the set
// of manifest filenames found in a workspace root.
func DetectTestCommand(presence map[string]bool) (string, bool) {
	for _, r := range manifestRunners {
		if presence[r.Manifest] {
			return r.Command, true
		}
	}
	return "", false
}
