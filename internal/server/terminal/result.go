package terminal

import (
	"errors"
	"fmt"

	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/pkg/api"
)

// Error classes for failed operations, matched with errors.Is
var (
	ErrValidation = errors.New("validation error")
	ErrIdentity   = errors.New("identity error")
	ErrConflict   = errors.New("revision conflict")
	ErrNotFound   = errors.New("not found")
	ErrCapacity   = errors.New("capacity error")
	ErrOwnership  = errors.New("ownership error")
	ErrInternal   = errors.New("internal error")
)

// Snapshot is the authoritative view of a terminal at one revision
type Snapshot struct {
	SessionID          string
	TerminalID         string
	Items              []models.AggregatedTotal
	Revision           int64
	SlotsUsedVirtual   int
	SlotsTotalPhysical int
	ChestCount         int
}

// Delta is pushed to one subscriber after a state-affecting mutation
type Delta struct {
	Snapshot   *Snapshot
	TerminalID string
	Revision   int64
}

// Result is returned by every operation. A failed Result still carries the
// current revision and a snapshot so the caller can re-sync.
type Result struct {
	Snapshot        *Snapshot
	Reason          api.Reason
	Token           string
	Revision        int64
	ReservedAmount  int
	CommittedAmount int
	RestoredAmount  int
	DroppedAmount   int
	StoredAmount    int
	ReturnedAmount  int
	Success         bool
}

// Err maps a failed result onto its error class
func (r *Result) Err() error {
	if r == nil || r.Success {
		return nil
	}

	var class error
	switch r.Reason.Category() {
	case api.CategoryValidation:
		class = ErrValidation
	case api.CategoryIdentity:
		class = ErrIdentity
	case api.CategoryConflict:
		class = ErrConflict
	case api.CategoryNotFound:
		class = ErrNotFound
	case api.CategoryCapacity:
		class = ErrCapacity
	case api.CategoryOwnership:
		class = ErrOwnership
	default:
		class = ErrInternal
	}
	return fmt.Errorf("%w: %s", class, r.Reason)
}

func failure(reason api.Reason) *Result {
	return &Result{Reason: reason}
}
