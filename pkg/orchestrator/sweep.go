package orchestrator

import (
	"fmt"

	"github.com/ExclusiveAccount/portguard/pkg/models"
)

// SweepReport aggregates the results of one complete scan/remediate/verify
// cycle
type SweepReport struct {
	Scan         *models.ScanResult           `json:"scan"`
	Outcomes     []*models.RemediationOutcome `json:"outcomes"`
	Verification *models.ScanResult           `json:"verification,omitempty"`
}

// RunSweep synchronously drives the full workflow: scan the target, consult
// the policy for each flagged port, remediate with retries, then re-scan to
// report persisting vulnerabilities. Used by the CLI; the policy supplies
// either interactive prompts or the automated defaults.
func (o *Orchestrator) RunSweep(target string, policy DecisionPolicy) (*SweepReport, error) {
	if target == "" {
		target = o.cfg.Target
	}
	if policy == nil {
		policy = AutoPolicy{}
	}

	op := o.registry.Create(models.KindScan, func(op *models.Operation) {
		op.Target = target
	})

	result := o.runScan(op.ID, target)
	if result == nil {
		failed, err := o.registry.Get(op.ID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("scan of %s failed: %s", target, failed.Message)
	}

	report := &SweepReport{Scan: result}

	if len(result.Vulnerabilities) == 0 {
		o.logger.Info("No vulnerable ports detected. System appears secure.")
		return report, nil
	}

	o.logger.Warnf("Found %d potentially vulnerable ports", len(result.Vulnerabilities))
	report.Outcomes = o.remediateAll(result.Vulnerabilities, policy)
	report.Verification = o.runVerification(target)

	return report, nil
}
