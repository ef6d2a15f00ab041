package remedy

import (
	"context"
	"fmt"
	"strings"

	"github.com/ExclusiveAccount/portguard/pkg/models"
)

// windowsUpdateScript queries and installs pending updates through the
// Windows Update COM API. It exits 1 on success so a zero exit can keep
// meaning "nothing installed".
const windowsUpdateScript = `
try {
    $Session = New-Object -ComObject Microsoft.Update.Session
    $Searcher = $Session.CreateUpdateSearcher()
    $SearchResult = $Searcher.Search("IsInstalled=0 and Type='Software' and IsHidden=0")
    if ($SearchResult.Updates.Count -eq 0) { Write-Host "No updates available"; exit 0 }
    $Coll = New-Object -ComObject Microsoft.Update.UpdateColl
    foreach ($Update in $SearchResult.Updates) {
        if ($Update.EulaAccepted -eq 0) { $Update.AcceptEula() }
        $Coll.Add($Update) | Out-Null
    }
    $Downloader = $Session.CreateUpdateDownloader(); $Downloader.Updates = $Coll
    if ($Downloader.Download().ResultCode -ne 2) { Write-Host "Update download failed"; exit 0 }
    $Installer = $Session.CreateUpdateInstaller(); $Installer.Updates = $Coll
    if ($Installer.Install().ResultCode -eq 2) { Write-Host "Updates installed successfully"; exit 1 }
    Write-Host "Update installation failed"; exit 0
} catch { Write-Error "Failed to process Windows updates: $_"; exit 0 }
`

// windowsUpdateCheckScript lists pending updates without installing
const windowsUpdateCheckScript = `
$Session = New-Object -ComObject Microsoft.Update.Session
$Searcher = $Session.CreateUpdateSearcher()
$Result = $Searcher.Search("IsInstalled=0 and Type='Software'")
if ($Result.Updates.Count -gt 0) { Write-Output "Updates available: $($Result.Updates.Count)" }
else { Write-Output "No updates available" }
`

// update applies the update strategy: resolve the platform package for the
// port, verify an update is available from an official source (advisory
// only), then apply it. With no package mapping it falls back to applying
// all pending security updates.
func (e *Engine) update(ctx context.Context, port int, service string) *models.RemediationOutcome {
	out := &models.RemediationOutcome{Port: port, Service: service, Action: models.ActionUpdate}

	pkg := e.packages[port]

	// Advisory pre-check; a failure here is logged and never blocks the apply.
	check := e.runTactic(ctx, "check official updates", port, service, func(ctx context.Context, port int, service string) models.TacticResult {
		return e.checkOfficialUpdates(ctx, pkg)
	})
	out.Tactics = append(out.Tactics, check)
	if !check.Success && !check.Skipped {
		e.logger.Warnf("No official patches confirmed for port %d: %s", port, check.Message)
	}

	var apply models.TacticResult
	if pkg == "" {
		e.logger.Infof("No specific package mapping for port %d - attempting generic security updates", port)
		apply = e.runTactic(ctx, "apply generic updates", port, service, e.applyGenericUpdates)
	} else {
		apply = e.runTactic(ctx, "apply package update", port, service, func(ctx context.Context, port int, service string) models.TacticResult {
			return e.applyPackageUpdate(ctx, pkg)
		})
	}
	out.Tactics = append(out.Tactics, apply)

	// The advisory check never decides the outcome.
	out.Success = apply.Success
	out.Message = apply.Message
	return out
}

// checkOfficialUpdates verifies an update is actually available from an
// official source. Advisory only.
func (e *Engine) checkOfficialUpdates(ctx context.Context, pkg string) models.TacticResult {
	switch e.platform {
	case PlatformLinux:
		if pkg == "" {
			return models.TacticResult{Skipped: true, Message: "no package to check"}
		}
		out, ok := e.try(ctx, "apt", "list", "--upgradable")
		if !ok {
			return models.TacticResult{Success: false, Message: fmt.Sprintf("could not query upgradable packages: %s", out)}
		}
		if strings.Contains(out, pkg) {
			return models.TacticResult{Success: true, Message: "updates available from official repository"}
		}
		return models.TacticResult{Success: false, Message: fmt.Sprintf("no updates available for %s", pkg)}

	case PlatformWindows:
		out, ok := e.try(ctx, "powershell", "-Command", windowsUpdateCheckScript)
		if ok && strings.Contains(out, "Updates available") {
			return models.TacticResult{Success: true, Message: "Windows updates available from Microsoft"}
		}
		return models.TacticResult{Success: false, Message: "no Windows updates reported"}

	default:
		return models.TacticResult{Skipped: true, Message: "unsupported platform"}
	}
}

// applyPackageUpdate upgrades the specific package behind the port
func (e *Engine) applyPackageUpdate(ctx context.Context, pkg string) models.TacticResult {
	switch e.platform {
	case PlatformLinux:
		if out, ok := e.try(ctx, "sudo", "apt-get", "update"); !ok {
			return models.TacticResult{Success: false, Message: fmt.Sprintf("failed to update package list: %s", out)}
		}
		if out, ok := e.try(ctx, "sudo", "apt-get", "install", "--only-upgrade", "-y", pkg); !ok {
			return models.TacticResult{Success: false, Message: fmt.Sprintf("update failed: %s", out)}
		}
		return models.TacticResult{Success: true, Message: fmt.Sprintf("updated package %s", pkg)}

	case PlatformWindows:
		if !e.elevated {
			return models.TacticResult{Success: false, Message: "administrator privileges required for Windows updates"}
		}
		out, ok := e.try(ctx, "powershell", "-ExecutionPolicy", "Bypass", "-Command", windowsUpdateScript)
		// The script inverts exit codes: 1 means updates were installed.
		if !ok && strings.Contains(out, "Updates installed successfully") {
			return models.TacticResult{Success: true, Message: "Windows updates processed successfully"}
		}
		return models.TacticResult{Success: false, Message: fmt.Sprintf("Windows update failed or no updates available: %s", out)}

	default:
		return models.TacticResult{Success: false, Message: "unsupported platform"}
	}
}

// applyGenericUpdates applies all pending security updates for the platform,
// the fallback for ports with no package mapping
func (e *Engine) applyGenericUpdates(ctx context.Context, port int, service string) models.TacticResult {
	switch e.platform {
	case PlatformLinux:
		if out, ok := e.try(ctx, "sudo", "apt-get", "update"); !ok {
			return models.TacticResult{Success: false, Message: fmt.Sprintf("failed to update package list: %s", out)}
		}
		if out, ok := e.try(ctx, "sudo", "apt-get", "upgrade", "-y"); !ok {
			return models.TacticResult{Success: false, Message: fmt.Sprintf("generic update failed: %s", out)}
		}
		return models.TacticResult{Success: true, Message: "applied pending security updates"}

	case PlatformWindows:
		return e.applyPackageUpdate(ctx, "")

	default:
		return models.TacticResult{Success: false, Message: "unsupported platform"}
	}
}
