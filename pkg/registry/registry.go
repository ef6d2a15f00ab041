// Package registry is the concurrency-safe ledger of long-running operations.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/portguard/pkg/models"
)

// ErrNotFound is returned when an operation identifier is unknown
var ErrNotFound = errors.New("operation not found")

// Update carries the fields applied by one state transition. Progress is
// clamped so it never regresses within an operation.
type Update struct {
	Status   models.OperationStatus
	Progress int
	Message  string
	Success  *bool
	Result   interface{}
}

// Registry tracks in-flight and completed operations keyed by identifier.
// It is safe for concurrent use across disjoint keys; each operation is
// mutated only by the task that owns it.
type Registry struct {
	mu     sync.RWMutex
	ops    map[string]*models.Operation
	logger *logrus.Logger
}

// New creates an empty registry
func New(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		ops:    make(map[string]*models.Operation),
		logger: logger,
	}
}

// Create registers a new pending operation and returns a copy of it. The
// returned identifier is never reissued.
func (r *Registry) Create(kind models.OperationKind, opts ...func(*models.Operation)) *models.Operation {
	now := time.Now()
	op := &models.Operation{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, opt := range opts {
		opt(op)
	}

	r.mu.Lock()
	r.ops[op.ID] = op
	r.mu.Unlock()

	r.logger.Debugf("Created %s operation %s", kind, op.ID)
	return op.Clone()
}

// Apply records a state transition on an operation and returns a copy of the
// updated entry. Progress is monotonic: a lower value than the current one is
// ignored.
func (r *Registry) Apply(id string, u Update) (*models.Operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[id]
	if !ok {
		return nil, ErrNotFound
	}

	op.Status = u.Status
	if u.Progress > op.Progress {
		op.Progress = u.Progress
	}
	op.Message = u.Message
	if u.Success != nil {
		op.Success = u.Success
	}
	if u.Result != nil {
		op.Result = u.Result
	}
	op.UpdatedAt = time.Now()

	return op.Clone(), nil
}

// Get returns a copy of the operation with the given identifier
func (r *Registry) Get(id string) (*models.Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	return op.Clone(), nil
}

// List returns copies of all tracked operations keyed by identifier
func (r *Registry) List() map[string]*models.Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*models.Operation, len(r.ops))
	for id, op := range r.ops {
		out[id] = op.Clone()
	}
	return out
}

// Delete removes an operation and reports whether it existed. Operations are
// never removed automatically.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.ops[id]
	if ok {
		delete(r.ops, id)
	}
	return ok
}

// Len returns the number of tracked operations
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}
