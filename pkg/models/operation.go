package models

import (
	"time"
)

// OperationKind identifies the type of work an operation tracks
type OperationKind string

const (
	KindScan     OperationKind = "scan"
	KindAction   OperationKind = "action"
	KindRollback OperationKind = "rollback"
)

// OperationStatus is the lifecycle state of an operation
type OperationStatus string

const (
	StatusPending   OperationStatus = "pending"
	StatusRunning   OperationStatus = "running"
	StatusCompleted OperationStatus = "completed"
	StatusFailed    OperationStatus = "failed"
)

// Terminal reports whether the status is a final state
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Action is a remediation strategy chosen for a vulnerable port
type Action string

const (
	ActionUpdate  Action = "update"  // Apply security updates from official sources
	ActionClose   Action = "close"   // Close/block the port using multiple tactics
	ActionAuto    Action = "auto"    // Update and close, independent of each other
	ActionRestore Action = "restore" // Best-effort undo of a previous closure
	ActionSkip    Action = "skip"    // Leave the port alone
)

// Valid reports whether the action names a known strategy
func (a Action) Valid() bool {
	switch a {
	case ActionUpdate, ActionClose, ActionAuto, ActionRestore, ActionSkip:
		return true
	}
	return false
}

// Operation represents a tracked unit of asynchronous work
type Operation struct {
	ID        string          `json:"operation_id"`        // Unique identifier
	Kind      OperationKind   `json:"kind"`                // scan, action or rollback
	Status    OperationStatus `json:"status"`              // Lifecycle state
	Progress  int             `json:"progress"`            // 0-100, never decreases
	Message   string          `json:"message"`             // Human-readable progress message
	CreatedAt time.Time       `json:"created_at"`          // When the operation was created
	UpdatedAt time.Time       `json:"timestamp"`           // Last state transition
	Target    string          `json:"target,omitempty"`    // Scan target host
	Port      int             `json:"port,omitempty"`      // Port under remediation
	Service   string          `json:"service,omitempty"`   // Service bound to the port
	Action    Action          `json:"action,omitempty"`    // Chosen remediation strategy
	Success   *bool           `json:"success,omitempty"`   // Set on action completion
	Result    interface{}     `json:"result,omitempty"`    // ScanResult or RemediationOutcome
}

// Clone returns a shallow copy of the operation. The result payload is shared;
// payloads are immutable once attached.
func (o *Operation) Clone() *Operation {
	c := *o
	if o.Success != nil {
		v := *o.Success
		c.Success = &v
	}
	return &c
}

// EventType identifies the category of a progress event
type EventType string

const (
	EventScanUpdate     EventType = "scan_update"
	EventScanComplete   EventType = "scan_complete"
	EventActionUpdate   EventType = "action_update"
	EventActionComplete EventType = "action_complete"
)

// ProgressEvent is pushed to observers on every operation state transition
type ProgressEvent struct {
	Type        EventType       `json:"type"`
	OperationID string          `json:"operation_id"`
	Status      OperationStatus `json:"status"`
	Progress    int             `json:"progress"`
	Message     string          `json:"message"`
	Timestamp   time.Time       `json:"timestamp"`
	Success     *bool           `json:"success,omitempty"`
	Result      interface{}     `json:"result,omitempty"` // Payload on completion events
}
