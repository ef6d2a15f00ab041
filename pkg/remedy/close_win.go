package remedy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ExclusiveAccount/portguard/pkg/models"
)

// Windows tactics. As with the linux chain, these are plain command
// invocations selected at engine construction.

// stopServiceWin stops the Windows service mapped to the port and disables
// its automatic start
func (e *Engine) stopServiceWin(ctx context.Context, port int, service string) models.TacticResult {
	svc := e.services[port]
	if svc == "" {
		svc = service
	}
	if svc == "" {
		return models.TacticResult{Skipped: true, Message: fmt.Sprintf("no service mapping for port %d", port)}
	}
	if !e.elevated {
		return models.TacticResult{Skipped: true, Message: "requires administrator privileges"}
	}

	if out, ok := e.try(ctx, "sc", "stop", svc); !ok {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("failed to stop service %s: %s", svc, out)}
	}

	if _, ok := e.try(ctx, "sc", "config", svc, "start=", "disabled"); ok {
		return models.TacticResult{Success: true, Message: fmt.Sprintf("stopped and disabled service %s", svc)}
	}
	return models.TacticResult{Success: true, Message: fmt.Sprintf("stopped service %s", svc)}
}

// killListenersWin terminates every process bound to the port via taskkill
func (e *Engine) killListenersWin(ctx context.Context, port int, service string) models.TacticResult {
	out, ok := e.try(ctx, "netstat", "-ano")
	if !ok {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("could not enumerate listeners: %s", out)}
	}

	pids := listeningPIDsWin(out, port)
	if len(pids) == 0 {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("no processes found listening on port %d", port)}
	}

	var killed []string
	for _, pid := range pids {
		if _, ok := e.try(ctx, "taskkill", "/F", "/PID", pid); ok {
			killed = append(killed, pid)
		}
	}

	if len(killed) == 0 {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("failed to terminate processes %v", pids)}
	}
	return models.TacticResult{Success: true, Message: fmt.Sprintf("killed processes %s", strings.Join(killed, ", "))}
}

// firewallWin inserts inbound and outbound deny rules for the port via netsh.
// Requires administrator privileges; skipped without them.
func (e *Engine) firewallWin(ctx context.Context, port int, service string) models.TacticResult {
	if !e.elevated {
		return models.TacticResult{Skipped: true, Message: "requires administrator privileges"}
	}

	p := strconv.Itoa(port)
	rules := [][]string{
		{"netsh", "advfirewall", "firewall", "add", "rule", fmt.Sprintf("name=Block_Port_%s_TCP_In", p), "dir=in", "action=block", "protocol=TCP", "localport=" + p, "enable=yes"},
		{"netsh", "advfirewall", "firewall", "add", "rule", fmt.Sprintf("name=Block_Port_%s_TCP_Out", p), "dir=out", "action=block", "protocol=TCP", "localport=" + p, "enable=yes"},
		{"netsh", "advfirewall", "firewall", "add", "rule", fmt.Sprintf("name=Block_Port_%s_UDP_In", p), "dir=in", "action=block", "protocol=UDP", "localport=" + p, "enable=yes"},
		{"netsh", "advfirewall", "firewall", "add", "rule", fmt.Sprintf("name=Block_Port_%s_UDP_Out", p), "dir=out", "action=block", "protocol=UDP", "localport=" + p, "enable=yes"},
	}

	created := 0
	for _, argv := range rules {
		if _, ok := e.try(ctx, argv[0], argv[1:]...); ok {
			created++
		}
	}

	if created == 0 {
		return models.TacticResult{Success: false, Message: "failed to create any firewall rule"}
	}
	return models.TacticResult{Success: true, Message: fmt.Sprintf("blocked with Windows Firewall (%d rules)", created)}
}

// registryDisableWin disables the service behind well-known ports through the
// registry, a last-resort tactic for services that ignore sc control
func (e *Engine) registryDisableWin(ctx context.Context, port int, service string) models.TacticResult {
	if !e.elevated {
		return models.TacticResult{Skipped: true, Message: "requires administrator privileges"}
	}

	var script string
	switch port {
	case 445:
		script = `Set-ItemProperty -Path "HKLM:\SYSTEM\CurrentControlSet\Services\LanmanServer" -Name "Start" -Value 4 -Type DWord`
	case 3389:
		script = `Set-ItemProperty -Path "HKLM:\SYSTEM\CurrentControlSet\Control\Terminal Server" -Name "fDenyTSConnections" -Value 1 -Type DWord`
	case 23:
		script = `Set-ItemProperty -Path "HKLM:\SYSTEM\CurrentControlSet\Services\TlntSvr" -Name "Start" -Value 4 -Type DWord`
	default:
		return models.TacticResult{Skipped: true, Message: fmt.Sprintf("no registry method for port %d", port)}
	}

	if out, ok := e.try(ctx, "powershell", "-ExecutionPolicy", "Bypass", "-Command", script); !ok {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("registry change failed: %s", out)}
	}
	return models.TacticResult{Success: true, Message: "disabled via registry"}
}

// unblockFirewallWin removes the deny rules inserted by firewallWin
func (e *Engine) unblockFirewallWin(ctx context.Context, port int, service string) models.TacticResult {
	if !e.elevated {
		return models.TacticResult{Skipped: true, Message: "requires administrator privileges"}
	}

	p := strconv.Itoa(port)
	names := []string{
		fmt.Sprintf("Block_Port_%s_TCP_In", p),
		fmt.Sprintf("Block_Port_%s_TCP_Out", p),
		fmt.Sprintf("Block_Port_%s_UDP_In", p),
		fmt.Sprintf("Block_Port_%s_UDP_Out", p),
	}

	removed := 0
	for _, name := range names {
		if _, ok := e.try(ctx, "netsh", "advfirewall", "firewall", "delete", "rule", "name="+name); ok {
			removed++
		}
	}

	if removed == 0 {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("no firewall rules found to remove for port %d", port)}
	}
	return models.TacticResult{Success: true, Message: fmt.Sprintf("removed %d firewall rules", removed)}
}

// startServiceWin restarts the service for the port and restores auto start
func (e *Engine) startServiceWin(ctx context.Context, port int, service string) models.TacticResult {
	svc := e.services[port]
	if svc == "" {
		svc = service
	}
	if svc == "" {
		return models.TacticResult{Skipped: true, Message: fmt.Sprintf("no service mapping for port %d", port)}
	}
	if !e.elevated {
		return models.TacticResult{Skipped: true, Message: "requires administrator privileges"}
	}

	e.try(ctx, "sc", "config", svc, "start=", "auto")
	if out, ok := e.try(ctx, "sc", "start", svc); !ok {
		return models.TacticResult{Success: false, Message: fmt.Sprintf("failed to start service %s: %s", svc, out)}
	}
	return models.TacticResult{Success: true, Message: fmt.Sprintf("started service %s", svc)}
}

// listeningPIDsWin extracts the process identifiers bound to the port from
// `netstat -ano` output
func listeningPIDsWin(output string, port int) []string {
	needle := fmt.Sprintf(":%d", port)
	var pids []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, needle) || !strings.Contains(line, "LISTENING") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		pid := fields[4]
		if seen[pid] {
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
