package orchestrator

import (
	"github.com/ExclusiveAccount/portguard/pkg/models"
)

// Decision is the choice made after a failed remediation attempt
type Decision int

const (
	DecisionRetry Decision = iota
	DecisionSkip
	DecisionBackup
)

// DecisionPolicy separates the retry/skip decisions from the orchestration
// state machine, so an interactive terminal, a web client or the automated
// default can drive the same workflow.
type DecisionPolicy interface {
	// ChooseAction picks the remediation strategy for a flagged port.
	// Returning ActionSkip leaves the port alone.
	ChooseAction(v models.Vulnerability) models.Action

	// OnFailure is consulted between remediation attempts. Returning
	// anything other than DecisionRetry abandons the remaining attempts.
	OnFailure(port int, service, message string, attempt int) Decision
}

// AutoPolicy is the non-interactive default: always remediate with the Auto
// strategy and retry until the attempt bound is exhausted.
type AutoPolicy struct{}

func (AutoPolicy) ChooseAction(models.Vulnerability) models.Action { return models.ActionAuto }

func (AutoPolicy) OnFailure(int, string, string, int) Decision { return DecisionRetry }
