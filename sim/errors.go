package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAction is reported when a submitted action is not in the action space.
	ErrInvalidAction = errors.New("invalid action")
	// ErrSlotFault matches every *SlotError via errors.Is.
	ErrSlotFault = errors.New("slot fault")
	// ErrPoolClosed is returned for work submitted after the pool (or engine) shut down.
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrShapeMismatch is returned when an action batch does not have one action per slot.
	ErrShapeMismatch = errors.New("action batch shape mismatch")
	// ErrTimeout is returned when a round does not collect all reports in time.
	ErrTimeout = errors.New("round timed out")
	// ErrUnknownKind is returned when no environment factory is registered for a kind.
	ErrUnknownKind = errors.New("unknown environment kind")
)

// SlotError is a failure confined to one slot's round. It rides on that slot's
// StepReport; the rest of the batch is unaffected.
type SlotError struct {
	Slot int
	Op   string // "step", "reset", "warmup", "observation", "dispatch"
	Err  error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("slot %d: %s: %v", e.Slot, e.Op, e.Err)
}

func (e *SlotError) Unwrap() error { return e.Err }

// Is reports every SlotError as an ErrSlotFault.
func (e *SlotError) Is(target error) bool { return target == ErrSlotFault }

func slotFault(slot int, op string, err error) *SlotError {
	return &SlotError{Slot: slot, Op: op, Err: err}
}
