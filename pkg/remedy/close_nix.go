package remedy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ExclusiveAccount/portguard/pkg/models"
)

// Linux tactics. Commands are data selected at engine construction, so this
// file builds on every platform; only a linux engine ever invokes them.

// stopServiceNix stops and disables the systemd unit bound to the port,
// trying the unprivileged user manager before escalating through sudo
func (e *Engine) stopServiceNix(ctx context.Context, port int, service string) models.TacticResult {
	unit := e.services[port]
	if unit == "" {
		unit = service
	}
	if unit == "" {
		return models.TacticResult{Skipped: true, Message: fmt.Sprintf("no service mapping for port %d", port)}
	}

	if _, ok := e.try(ctx, "systemctl", "--user", "stop", unit); ok {
		e.try(ctx, "systemctl", "--user", "disable", unit)
		return models.TacticResult{Success: true, Message: fmt.Sprintf("stopped user service %s", unit)}
	}

	if out, ok := e.try(ctx, "sudo", "systemctl", "stop", unit); !ok {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("failed to stop service %s: %s", unit, out)}
	}

	e.try(ctx, "sudo", "systemctl", "disable", unit)
	return models.TacticResult{Success: true, Message: fmt.Sprintf("stopped system service %s", unit)}
}

// killListenersNix terminates every process bound to the port, found via
// netstat, unprivileged kill before sudo
func (e *Engine) killListenersNix(ctx context.Context, port int, service string) models.TacticResult {
	out, ok := e.try(ctx, "netstat", "-tulpn")
	if !ok {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("could not enumerate listeners: %s", out)}
	}

	pids := listeningPIDsNix(out, port)
	if len(pids) == 0 {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("no processes found listening on port %d", port)}
	}

	var killed []string
	for _, pid := range pids {
		if _, ok := e.tryEach(ctx,
			[]string{"kill", "-9", pid},
			[]string{"sudo", "kill", "-9", pid},
		); ok {
			killed = append(killed, pid)
		}
	}

	if len(killed) == 0 {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("failed to terminate processes %v", pids)}
	}
	return models.TacticResult{Success: true, Message: fmt.Sprintf("killed processes %s", strings.Join(killed, ", "))}
}

// firewallNix inserts an iptables deny rule for the port. Requires root;
// skipped rather than failed without it.
func (e *Engine) firewallNix(ctx context.Context, port int, service string) models.TacticResult {
	if !e.elevated {
		return models.TacticResult{Skipped: true, Message: "requires root privileges"}
	}

	out, ok := e.try(ctx, "iptables", "-A", "INPUT", "-p", "tcp", "--dport", strconv.Itoa(port), "-j", "DROP")
	if !ok {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("iptables rule failed: %s", out)}
	}
	return models.TacticResult{Success: true, Message: "blocked with iptables"}
}

// fuserFallback sends SIGKILL to whatever holds the port via fuser, a
// process-signal fallback for listeners netstat could not attribute
func (e *Engine) fuserFallback(ctx context.Context, port int, service string) models.TacticResult {
	spec := fmt.Sprintf("%d/tcp", port)
	if out, ok := e.tryEach(ctx,
		[]string{"fuser", "-k", spec},
		[]string{"sudo", "fuser", "-k", spec},
	); !ok {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("fuser found nothing to signal: %s", out)}
	}
	return models.TacticResult{Success: true, Message: "killed processes using fuser"}
}

// unblockFirewallNix removes the deny rule inserted by firewallNix
func (e *Engine) unblockFirewallNix(ctx context.Context, port int, service string) models.TacticResult {
	if !e.elevated {
		return models.TacticResult{Skipped: true, Message: "requires root privileges"}
	}

	out, ok := e.try(ctx, "iptables", "-D", "INPUT", "-p", "tcp", "--dport", strconv.Itoa(port), "-j", "DROP")
	if !ok {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("no iptables rule removed: %s", out)}
	}
	return models.TacticResult{Success: true, Message: "removed iptables deny rule"}
}

// startServiceNix starts and re-enables the service for the port
func (e *Engine) startServiceNix(ctx context.Context, port int, service string) models.TacticResult {
	unit := e.services[port]
	if unit == "" {
		unit = service
	}
	if unit == "" {
		return models.TacticResult{Skipped: true, Message: fmt.Sprintf("no service mapping for port %d", port)}
	}

	if out, ok := e.try(ctx, "sudo", "systemctl", "start", unit); !ok {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("failed to start service %s: %s", unit, out)}
	}

	e.try(ctx, "sudo", "systemctl", "enable", unit)
	return models.TacticResult{Success: true, Message: fmt.Sprintf("started and enabled %s", unit)}
}

// listeningPIDsNix extracts the process identifiers bound to the port from
// `netstat -tulpn` output
func listeningPIDsNix(output string, port int) []string {
	needle := fmt.Sprintf(":%d", port)
	var pids []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, needle) || !strings.Contains(line, "LISTEN") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 7 {
			continue
		}
		pidProg := fields[6]
		pid, _, found := strings.Cut(pidProg, "/")
		if !found || pid == "" || pid == "-" || seen[pid] {
			continue
		}
		if _, err := strconv.Atoi(pid); err != nil {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}

	return pids
}
