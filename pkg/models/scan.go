package models

import (
	"fmt"
	"strings"
	"time"
)

// RiskLevel is a coarse severity label derived from the high-risk port subset
type RiskLevel string

const (
	RiskHigh   RiskLevel = "High"
	RiskMedium RiskLevel = "Medium"
)

// Vulnerability status tags, advisory metadata for display only
const (
	VulnDetected   = "detected"
	VulnInProgress = "in-progress"
	VulnSecured    = "secured"
	VulnFailed     = "failed"
)

// Vulnerability represents a flagged open port on the scanned host
type Vulnerability struct {
	Port        int       `json:"port"`        // Open port number
	Service     string    `json:"service"`     // Canonical service name from the catalog
	Description string    `json:"description"` // Risk description from the catalog
	RiskLevel   RiskLevel `json:"risk_level"`  // High or Medium
	Status      string    `json:"status"`      // detected, in-progress, secured, failed
}

// ScanStatus describes the outcome of a scan
type ScanStatus string

const (
	ScanSucceeded    ScanStatus = "succeeded"
	ScanNoPortsFound ScanStatus = "no-ports-found"
	ScanFailed       ScanStatus = "failed"
)

// ScanResult holds the normalized outcome of one port scan
type ScanResult struct {
	ScanID          string          `json:"scan_id"`
	Target          string          `json:"target"`
	OpenPorts       []int           `json:"open_ports"`       // Discovery order, duplicates removed
	Vulnerabilities []Vulnerability `json:"vulnerable_ports"` // Catalog matches among OpenPorts
	Status          ScanStatus      `json:"scan_status"`
	Timestamp       time.Time       `json:"timestamp"`
	TotalPorts      int             `json:"total_ports"`
	VulnerableCount int             `json:"vulnerable_count"`
}

// TacticResult records one remediation attempt
type TacticResult struct {
	Name    string `json:"name"`              // Tactic identifier, e.g. "stop service", "bind port"
	Success bool   `json:"success"`           // Whether the tactic succeeded
	Skipped bool   `json:"skipped,omitempty"` // Tactic not attempted, e.g. missing privilege
	Message string `json:"message"`           // Command output or failure reason
}

// RemediationOutcome aggregates the tactic results of one remediation action.
// Overall success is the logical OR across tactics.
type RemediationOutcome struct {
	Port    int            `json:"port"`
	Service string         `json:"service"`
	Action  Action         `json:"action"`
	Tactics []TacticResult `json:"tactics"`
	Success bool           `json:"success"`
	Message string         `json:"message"`
}

// SucceededTactics returns the names of the tactics that succeeded
func (r *RemediationOutcome) SucceededTactics() []string {
	var names []string
	for _, t := range r.Tactics {
		if t.Success {
			names = append(names, t.Name)
		}
	}
	return names
}

// Summarize recomputes the overall success flag and combined message from the
// recorded tactics
func (r *RemediationOutcome) Summarize() {
	succeeded := r.SucceededTactics()
	r.Success = len(succeeded) > 0
	if r.Success {
		r.Message = fmt.Sprintf("Port %d closed using: %s", r.Port, strings.Join(succeeded, ", "))
	} else {
		r.Message = fmt.Sprintf("Failed to close port %d using any method. Elevated privileges may be required for full functionality.", r.Port)
	}
}
