// Package remedy selects and executes platform-specific remediation tactics
// for vulnerable ports. Every tactic is isolated: a fault in one command
// invocation is recorded in the outcome and never aborts the remaining
// tactics or the surrounding operation.
package remedy

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/portguard/pkg/config"
	"github.com/ExclusiveAccount/portguard/pkg/models"
)

// tacticFunc is one concrete remediation attempt
type tacticFunc func(ctx context.Context, port int, service string) models.TacticResult

// Engine executes remediation strategies against the local host
type Engine struct {
	platform Platform
	runner   Runner
	logger   *logrus.Logger
	elevated bool

	packages map[int]string // port -> package/service name for updates
	services map[int]string // port -> OS service name for close

	closeChain   []tacticFunc
	restoreChain []tacticFunc

	mu   sync.Mutex
	held map[int]net.Listener // placeholder listeners keeping closed ports bound
}

// NewEngine creates an engine for the detected platform, probing privileges
// with the default command runner
func NewEngine(cfg config.Config, logger *logrus.Logger) *Engine {
	return NewEngineWith(cfg, DetectPlatform(), NewExecRunner(), logger)
}

// NewEngineWith creates an engine for an explicit platform and runner
func NewEngineWith(cfg config.Config, platform Platform, runner Runner, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	if runner == nil {
		runner = NewExecRunner()
	}

	e := &Engine{
		platform: platform,
		runner:   runner,
		logger:   logger,
		packages: cfg.Packages[string(platform)],
		services: cfg.Services[string(platform)],
		held:     make(map[int]net.Listener),
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	e.elevated = detectPrivilege(probeCtx, platform, runner)
	cancel()

	switch platform {
	case PlatformLinux:
		e.closeChain = []tacticFunc{e.stopServiceNix, e.killListenersNix, e.firewallNix, e.bindPlaceholder, e.fuserFallback}
		e.restoreChain = []tacticFunc{e.releasePlaceholder, e.unblockFirewallNix, e.startServiceNix}
	case PlatformWindows:
		e.closeChain = []tacticFunc{e.stopServiceWin, e.killListenersWin, e.firewallWin, e.bindPlaceholder, e.registryDisableWin}
		e.restoreChain = []tacticFunc{e.releasePlaceholder, e.unblockFirewallWin, e.startServiceWin}
	}

	if !e.elevated {
		logger.Warn("Not running with elevated privileges. Firewall, service control and system-level port blocking may fail.")
	}

	return e
}

// SetElevated overrides the probed privilege level
func (e *Engine) SetElevated(v bool) {
	e.elevated = v
}

// Elevated reports whether the engine runs with elevated privileges
func (e *Engine) Elevated() bool {
	return e.elevated
}

// Platform returns the platform the engine was built for
func (e *Engine) Platform() Platform {
	return e.platform
}

// Status probes the current privilege and firewall state
func (e *Engine) Status(ctx context.Context) SystemStatus {
	return SystemStatus{
		Platform:        e.platform,
		AdminPrivileges: e.elevated,
		FirewallEnabled: detectFirewall(ctx, e.platform, e.runner),
		Timestamp:       time.Now(),
	}
}

// Remediate executes the chosen strategy for the port/service pair. The
// notify callback, if non-nil, receives progress checkpoints as tactic
// phases begin. The returned outcome is never nil.
func (e *Engine) Remediate(ctx context.Context, port int, service string, action models.Action, notify func(progress int, message string)) *models.RemediationOutcome {
	if notify == nil {
		notify = func(int, string) {}
	}

	if e.platform == PlatformUnsupported {
		return &models.RemediationOutcome{
			Port:    port,
			Service: service,
			Action:  action,
			Message: fmt.Sprintf("Unsupported operating system for port %d remediation", port),
		}
	}

	switch action {
	case models.ActionUpdate:
		notify(30, "Downloading patches from official sources...")
		return e.update(ctx, port, service)

	case models.ActionClose:
		notify(30, "Closing port using multiple methods...")
		return e.closePort(ctx, port, service)

	case models.ActionAuto:
		notify(20, "Applying updates and closing port...")
		up := e.update(ctx, port, service)
		notify(60, "Closing port...")
		cl := e.closePort(ctx, port, service)

		out := &models.RemediationOutcome{
			Port:    port,
			Service: service,
			Action:  models.ActionAuto,
			Tactics: append(append([]models.TacticResult{}, up.Tactics...), cl.Tactics...),
			Success: up.Success || cl.Success,
			Message: fmt.Sprintf("Update: %s, Close: %s", up.Message, cl.Message),
		}
		return out

	case models.ActionRestore:
		notify(30, "Restoring port...")
		return e.restore(ctx, port, service)

	default:
		return &models.RemediationOutcome{
			Port:    port,
			Service: service,
			Action:  action,
			Message: fmt.Sprintf("Unknown action %q", action),
		}
	}
}

// runTactic executes one tactic, converting any panic from the command layer
// into a recorded failure so sibling tactics still run
func (e *Engine) runTactic(ctx context.Context, name string, port int, service string, fn tacticFunc) (result models.TacticResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("Tactic %q faulted: %v", name, r)
			result = models.TacticResult{Name: name, Success: false, Message: fmt.Sprintf("fault: %v", r)}
		}
	}()

	result = fn(ctx, port, service)
	result.Name = name

	if result.Skipped {
		e.logger.Debugf("Tactic %q skipped for port %d: %s", name, port, result.Message)
	} else if result.Success {
		e.logger.Infof("Tactic %q succeeded for port %d: %s", name, port, result.Message)
	} else {
		e.logger.Warnf("Tactic %q failed for port %d: %s", name, port, result.Message)
	}
	return result
}

// try runs a command and reports success plus its output
func (e *Engine) try(ctx context.Context, name string, args ...string) (string, bool) {
	out, err := e.runner.Run(ctx, name, args...)
	if err != nil {
		if out == "" {
			out = err.Error()
		}
		return out, false
	}
	return out, true
}

// tryEach runs command variants in order until one succeeds, unprivileged
// attempts before privileged ones
func (e *Engine) tryEach(ctx context.Context, attempts ...[]string) (string, bool) {
	var lastOut string
	for _, argv := range attempts {
		out, ok := e.try(ctx, argv[0], argv[1:]...)
		if ok {
			return out, true
		}
		lastOut = out
	}
	return lastOut, false
}

// bindPlaceholder binds a local listener on the port so no other process can
// reuse it. A port that is already bound counts as success: something is
// holding it either way.
func (e *Engine) bindPlaceholder(ctx context.Context, port int, service string) models.TacticResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.held[port]; ok {
		return models.TacticResult{Success: true, Message: fmt.Sprintf("port %d already held by placeholder listener", port)}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		if strings.Contains(err.Error(), "address already in use") || strings.Contains(err.Error(), "Only one usage of each socket address") {
			return models.TacticResult{Success: true, Message: fmt.Sprintf("port %d is already in use, preventing reuse by other processes", port)}
		}
		return models.TacticResult{Success: false, Message: fmt.Sprintf("could not bind port %d: %v", port, err)}
	}

	e.held[port] = ln
	return models.TacticResult{Success: true, Message: "bound port to prevent usage"}
}

// releasePlaceholder closes the placeholder listener for the port, if held
func (e *Engine) releasePlaceholder(ctx context.Context, port int, service string) models.TacticResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	ln, ok := e.held[port]
	if !ok {
		return models.TacticResult{Skipped: true, Message: "no placeholder listener held for this port"}
	}

	delete(e.held, port)
	if err := ln.Close(); err != nil {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("failed to release placeholder: %v", err)}
	}
	return models.TacticResult{Success: true, Message: "released placeholder listener"}
}

// HeldPorts returns the ports currently kept bound by placeholder listeners
func (e *Engine) HeldPorts() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ports []int
	for p := range e.held {
		ports = append(ports, p)
	}
	return ports
}

// Close releases all placeholder listeners
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for port, ln := range e.held {
		ln.Close()
		delete(e.held, port)
	}
	return nil
}

// closePort runs the ordered close tactic chain. Every tactic is attempted
// regardless of prior outcomes; overall success means at least one tactic
// succeeded.
func (e *Engine) closePort(ctx context.Context, port int, service string) *models.RemediationOutcome {
	e.logger.Infof("Attempting to close port %d using multiple methods", port)

	out := &models.RemediationOutcome{Port: port, Service: service, Action: models.ActionClose}
	for i, tactic := range e.closeChain {
		out.Tactics = append(out.Tactics, e.runTactic(ctx, e.closeTacticName(i), port, service, tactic))
	}

	out.Summarize()
	return out
}

// restore best-effort re-opens a previously closed port: it releases the
// placeholder, removes deny rules and restarts the service. Not a
// transactional undo.
func (e *Engine) restore(ctx context.Context, port int, service string) *models.RemediationOutcome {
	e.logger.Infof("Attempting to restore port %d", port)

	out := &models.RemediationOutcome{Port: port, Service: service, Action: models.ActionRestore}
	names := []string{"release placeholder", "remove firewall rules", "start service"}
	for i, tactic := range e.restoreChain {
		out.Tactics = append(out.Tactics, e.runTactic(ctx, names[i], port, service, tactic))
	}

	succeeded := out.SucceededTactics()
	out.Success = len(succeeded) > 0
	if out.Success {
		out.Message = fmt.Sprintf("Port %d restored using: %s", port, strings.Join(succeeded, ", "))
	} else {
		out.Message = fmt.Sprintf("Failed to restore port %d", port)
	}
	return out
}

func (e *Engine) closeTacticName(i int) string {
	names := map[Platform][]string{
		PlatformLinux:   {"stop service", "kill listeners", "firewall rule", "bind port", "fuser fallback"},
		PlatformWindows: {"stop service", "kill listeners", "firewall rule", "bind port", "registry disable"},
	}
	return names[e.platform][i]
}
