package sensor

import (
	"sync"

	"github.com/benmeehan/tracklog-agent/internal/models"
)

// Authorizer is the permission boundary of the positioning collaborator.
// Request is a hint to the external collaborator (e.g. a permission dialog);
// grants and revocations arrive asynchronously on Changes.
type Authorizer interface {
	Status() models.Authorization
	Request(level models.Authorization)
	Changes() <-chan models.Authorization
}

// StaticAuthorizer reports a fixed authorization and never changes. Headless
// deployments (dedicated tracker hardware) use it with Always.
type StaticAuthorizer struct {
	status models.Authorization
}

// NewStaticAuthorizer returns an authorizer pinned to status.
func NewStaticAuthorizer(status models.Authorization) *StaticAuthorizer {
	return &StaticAuthorizer{status: status}
}

// Status returns the fixed authorization.
func (a *StaticAuthorizer) Status() models.Authorization {
	return a.status
}

// Request is a no-op; the status never changes.
func (a *StaticAuthorizer) Request(models.Authorization) {}

// Changes returns a nil channel that never delivers, which blocks forever
// inside a select as intended.
func (a *StaticAuthorizer) Changes() <-chan models.Authorization {
	return nil
}

// ManualAuthorizer lets an external collaborator grant or revoke
// authorization at runtime. Requests are recorded so the collaborator can
// observe what level the controller asked for.
type ManualAuthorizer struct {
	mu            sync.Mutex
	status        models.Authorization
	lastRequested models.Authorization
	changes       chan models.Authorization
}

// NewManualAuthorizer returns a ManualAuthorizer starting at initial.
func NewManualAuthorizer(initial models.Authorization) *ManualAuthorizer {
	return &ManualAuthorizer{
		status:  initial,
		changes: make(chan models.Authorization, 4),
	}
}

// Status returns the current authorization.
func (a *ManualAuthorizer) Status() models.Authorization {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Request records the level the controller asked for.
func (a *ManualAuthorizer) Request(level models.Authorization) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastRequested = level
}

// LastRequested returns the most recently requested level.
func (a *ManualAuthorizer) LastRequested() models.Authorization {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastRequested
}

// Grant sets the authorization and notifies the controller.
func (a *ManualAuthorizer) Grant(status models.Authorization) {
	a.mu.Lock()
	a.status = status
	a.mu.Unlock()
	a.changes <- status
}

// Changes delivers authorization transitions.
func (a *ManualAuthorizer) Changes() <-chan models.Authorization {
	return a.changes
}
