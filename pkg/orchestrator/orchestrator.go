// Package orchestrator sequences scan, classification and remediation into
// tracked, observable operations.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/portguard/pkg/classify"
	"github.com/ExclusiveAccount/portguard/pkg/config"
	"github.com/ExclusiveAccount/portguard/pkg/events"
	"github.com/ExclusiveAccount/portguard/pkg/models"
	"github.com/ExclusiveAccount/portguard/pkg/registry"
)

// ErrInvalidTransition is returned when an action is requested on an
// operation that is not in the expected status
var ErrInvalidTransition = errors.New("operation is not in the expected status")

// Scanner is the scan driver boundary consumed by the orchestrator
type Scanner interface {
	Scan(ctx context.Context, target string) ([]int, error)
}

// Remediator is the remediation strategy selector boundary
type Remediator interface {
	Remediate(ctx context.Context, port int, service string, action models.Action, notify func(progress int, message string)) *models.RemediationOutcome
}

// Orchestrator drives scan/classify/remediate workflows, recording every
// state transition in the registry before broadcasting it to observers.
// Each operation is mutated only by the goroutine driving it.
type Orchestrator struct {
	cfg        config.Config
	scanner    Scanner
	classifier *classify.Classifier
	remedy     Remediator
	registry   *registry.Registry
	events     *events.Broadcaster
	logger     *logrus.Logger
	wg         sync.WaitGroup
}

// New wires the orchestrator to its collaborators
func New(cfg config.Config, scanner Scanner, classifier *classify.Classifier, remedy Remediator, reg *registry.Registry, broadcaster *events.Broadcaster, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		cfg:        cfg,
		scanner:    scanner,
		classifier: classifier,
		remedy:     remedy,
		registry:   reg,
		events:     broadcaster,
		logger:     logger,
	}
}

// Registry exposes the operation ledger for pollers
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// Events exposes the progress broadcaster for subscribers
func (o *Orchestrator) Events() *events.Broadcaster { return o.events }

// Wait blocks until all background operations have finished
func (o *Orchestrator) Wait() { o.wg.Wait() }

// transition applies a registry update and then broadcasts the matching
// event. The registry write always happens first, so a poller can never be
// behind an observer for the same instant.
func (o *Orchestrator) transition(id string, evType models.EventType, u registry.Update) {
	op, err := o.registry.Apply(id, u)
	if err != nil {
		o.logger.Errorf("Dropping transition for unknown operation %s: %v", id, err)
		return
	}

	ev := models.ProgressEvent{
		Type:        evType,
		OperationID: op.ID,
		Status:      op.Status,
		Progress:    op.Progress,
		Message:     op.Message,
		Timestamp:   op.UpdatedAt,
		Success:     op.Success,
	}
	if evType == models.EventScanComplete || evType == models.EventActionComplete {
		ev.Result = op.Result
	}
	o.events.Publish(ev)
}

// StartScan begins an asynchronous scan of the target and returns the
// operation identifier immediately. In automated mode the scan is followed
// by an Auto remediation of every flagged port and a verification pass.
func (o *Orchestrator) StartScan(target string, automated bool) string {
	if target == "" {
		target = o.cfg.Target
	}

	op := o.registry.Create(models.KindScan, func(op *models.Operation) {
		op.Target = target
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		result := o.runScan(op.ID, target)
		if !automated || result == nil || len(result.Vulnerabilities) == 0 {
			return
		}

		o.remediateAll(result.Vulnerabilities, AutoPolicy{})
		o.runVerification(target)
	}()

	return op.ID
}

// ExecuteAction begins an asynchronous remediation action and returns the
// operation identifier immediately. scanID is the scan the action was chosen
// from, carried for log correlation only.
func (o *Orchestrator) ExecuteAction(port int, service string, action models.Action, scanID string) (string, error) {
	if !action.Valid() || action == models.ActionSkip {
		return "", fmt.Errorf("invalid action %q for port %d", action, port)
	}

	op := o.registry.Create(models.KindAction, func(op *models.Operation) {
		op.Port = port
		op.Service = service
		op.Action = action
	})

	if scanID != "" {
		o.logger.Infof("Action %s requested for port %d (scan %s)", action, port, scanID)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runAction(op.ID, port, service, action, AutoPolicy{})
	}()

	return op.ID, nil
}

// Rollback re-runs the Auto strategy for a previously failed operation's
// port. Best-effort: there is no state snapshot to restore. Only failed
// operations can be rolled back.
func (o *Orchestrator) Rollback(operationID string, port int) (string, error) {
	failed, err := o.registry.Get(operationID)
	if err != nil {
		return "", err
	}
	if failed.Status != models.StatusFailed {
		return "", fmt.Errorf("%w: rollback requires a failed operation, got %s", ErrInvalidTransition, failed.Status)
	}

	service := failed.Service
	if service == "" {
		service = o.classifier.ServiceFor(port)
	}

	op := o.registry.Create(models.KindRollback, func(op *models.Operation) {
		op.Port = port
		op.Service = service
		op.Action = models.ActionAuto
	})

	o.logger.Infof("Rollback of operation %s started for port %d", operationID, port)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runAction(op.ID, port, service, models.ActionAuto, AutoPolicy{})
	}()

	return op.ID, nil
}

// runScan drives one scan operation through its checkpoints and returns the
// result, or nil when the scan failed
func (o *Orchestrator) runScan(id, target string) *models.ScanResult {
	o.transition(id, models.EventScanUpdate, registry.Update{
		Status:  models.StatusRunning,
		Message: "Starting port scan...",
	})

	o.transition(id, models.EventScanUpdate, registry.Update{
		Status:   models.StatusRunning,
		Progress: 25,
		Message:  fmt.Sprintf("Scanning %s with Nmap...", target),
	})

	ports, err := o.scanner.Scan(context.Background(), target)
	if err != nil {
		o.transition(id, models.EventScanComplete, registry.Update{
			Status:  models.StatusFailed,
			Message: fmt.Sprintf("Scan failed: %v", err),
		})
		return nil
	}

	result := &models.ScanResult{
		ScanID:     id,
		Target:     target,
		OpenPorts:  ports,
		Status:     models.ScanSucceeded,
		Timestamp:  time.Now(),
		TotalPorts: len(ports),
	}

	if len(ports) == 0 {
		result.Status = models.ScanNoPortsFound
		o.transition(id, models.EventScanComplete, registry.Update{
			Status:   models.StatusCompleted,
			Progress: 100,
			Message:  "Scan completed. No open ports found.",
			Result:   result,
		})
		return result
	}

	o.transition(id, models.EventScanUpdate, registry.Update{
		Status:   models.StatusRunning,
		Progress: 50,
		Message:  fmt.Sprintf("Found %d open ports. Analyzing vulnerabilities...", len(ports)),
	})

	vulns := o.classifier.Classify(ports)
	result.Vulnerabilities = vulns
	result.VulnerableCount = len(vulns)

	o.transition(id, models.EventScanUpdate, registry.Update{
		Status:   models.StatusRunning,
		Progress: 75,
		Message:  fmt.Sprintf("Identified %d vulnerable ports. Building report...", len(vulns)),
	})

	o.transition(id, models.EventScanComplete, registry.Update{
		Status:   models.StatusCompleted,
		Progress: 100,
		Message:  fmt.Sprintf("Scan completed. Found %d vulnerable ports.", len(vulns)),
		Result:   result,
	})

	return result
}

// runAction drives one remediation operation, retrying failed attempts up to
// the configured bound. The policy is consulted between attempts; the
// automated policy always retries.
func (o *Orchestrator) runAction(id string, port int, service string, action models.Action, policy DecisionPolicy) *models.RemediationOutcome {
	o.transition(id, models.EventActionUpdate, registry.Update{
		Status:  models.StatusRunning,
		Message: fmt.Sprintf("Starting %s for port %d...", action, port),
	})

	notify := func(progress int, message string) {
		o.transition(id, models.EventActionUpdate, registry.Update{
			Status:   models.StatusRunning,
			Progress: progress,
			Message:  message,
		})
	}

	maxRetries := o.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var outcome *models.RemediationOutcome
	for attempt := 1; attempt <= maxRetries; attempt++ {
		outcome = o.remedy.Remediate(context.Background(), port, service, action, notify)
		if outcome.Success {
			break
		}

		o.logger.Errorf("%s failed for port %d (attempt %d/%d): %s", action, port, attempt, maxRetries, outcome.Message)
		if attempt == maxRetries {
			break
		}
		if policy.OnFailure(port, service, outcome.Message, attempt) != DecisionRetry {
			break
		}
	}

	status := models.StatusCompleted
	if !outcome.Success {
		status = models.StatusFailed
	}
	success := outcome.Success

	o.transition(id, models.EventActionComplete, registry.Update{
		Status:   status,
		Progress: 100,
		Message:  outcome.Message,
		Success:  &success,
		Result:   outcome,
	})

	return outcome
}

// remediateAll runs the chosen action for each flagged port in order,
// creating one action operation per port
func (o *Orchestrator) remediateAll(vulns []models.Vulnerability, policy DecisionPolicy) []*models.RemediationOutcome {
	var outcomes []*models.RemediationOutcome

	for _, v := range vulns {
		action := policy.ChooseAction(v)
		if action == models.ActionSkip || !action.Valid() {
			o.logger.Infof("Skipping port %d (%s)", v.Port, v.Service)
			continue
		}

		op := o.registry.Create(models.KindAction, func(op *models.Operation) {
			op.Port = v.Port
			op.Service = v.Service
			op.Action = action
		})

		outcomes = append(outcomes, o.runAction(op.ID, v.Port, v.Service, action, policy))
	}

	return outcomes
}

// runVerification re-runs the scan once after remediation and reports which
// vulnerabilities persisted. Recorded as its own scan operation so the
// original scan's payload stays immutable.
func (o *Orchestrator) runVerification(target string) *models.ScanResult {
	op := o.registry.Create(models.KindScan, func(op *models.Operation) {
		op.Target = target
	})

	o.transition(op.ID, models.EventScanUpdate, registry.Update{
		Status:  models.StatusRunning,
		Message: "Running final verification scan...",
	})

	ports, err := o.scanner.Scan(context.Background(), target)
	if err != nil {
		o.transition(op.ID, models.EventScanComplete, registry.Update{
			Status:  models.StatusFailed,
			Message: fmt.Sprintf("Verification scan failed: %v", err),
		})
		return nil
	}

	vulns := o.classifier.Classify(ports)
	result := &models.ScanResult{
		ScanID:          op.ID,
		Target:          target,
		OpenPorts:       ports,
		Vulnerabilities: vulns,
		Status:          models.ScanSucceeded,
		Timestamp:       time.Now(),
		TotalPorts:      len(ports),
		VulnerableCount: len(vulns),
	}
	if len(ports) == 0 {
		result.Status = models.ScanNoPortsFound
	}

	message := "Verification scan: no vulnerable ports detected. System is secure."
	if len(vulns) > 0 {
		message = fmt.Sprintf("Verification scan: %d vulnerable ports still open.", len(vulns))
		for _, v := range vulns {
			o.logger.Warnf("  - Port %d: %s still open", v.Port, v.Service)
		}
	}

	o.transition(op.ID, models.EventScanComplete, registry.Update{
		Status:   models.StatusCompleted,
		Progress: 100,
		Message:  message,
		Result:   result,
	})

	return result
}
