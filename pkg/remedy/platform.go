package remedy

import (
	"context"
	"os"
	"runtime"
	"strings"
	"time"
)

// Platform is the closed set of remediation targets, selected once at startup
type Platform string

const (
	PlatformLinux       Platform = "linux"
	PlatformWindows     Platform = "windows"
	PlatformUnsupported Platform = "unsupported"
)

// DetectPlatform resolves the running OS to a remediation platform
func DetectPlatform() Platform {
	switch runtime.GOOS {
	case "linux":
		return PlatformLinux
	case "windows":
		return PlatformWindows
	default:
		return PlatformUnsupported
	}
}

// SystemStatus reports privilege and firewall state for the running host
type SystemStatus struct {
	Platform        Platform  `json:"operating_system"`
	AdminPrivileges bool      `json:"admin_privileges"`
	FirewallEnabled bool      `json:"firewall_enabled"`
	Timestamp       time.Time `json:"timestamp"`
}

// detectPrivilege reports whether the process can perform elevated operations.
// On POSIX systems this is effective uid 0; on Windows the "net session"
// probe succeeds only in an elevated shell.
func detectPrivilege(ctx context.Context, platform Platform, runner Runner) bool {
	switch platform {
	case PlatformLinux:
		return os.Geteuid() == 0
	case PlatformWindows:
		_, err := runner.Run(ctx, "net", "session")
		return err == nil
	default:
		return false
	}
}

// detectFirewall reports whether the host packet filter is reachable/enabled
func detectFirewall(ctx context.Context, platform Platform, runner Runner) bool {
	switch platform {
	case PlatformWindows:
		out, err := runner.Run(ctx, "netsh", "advfirewall", "show", "allprofiles", "state")
		return err == nil && strings.Contains(out, "ON") && !strings.Contains(out, "OFF")
	case PlatformLinux:
		_, err := runner.Run(ctx, "iptables", "-L", "-n")
		return err == nil
	default:
		return false
	}
}
