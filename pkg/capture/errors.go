package capture

import (
	"errors"
	"fmt"
)

var (
	ErrNotRunning = errors.New("capture: not running")
	ErrNotReady   = errors.New("capture: publisher not ready")
)

// AllocationError - device can't provide requested buffers
type AllocationError struct {
	Count int
	Err   error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("capture: can't allocate %d buffers: %v", e.Count, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// MappingError - plane of buffer can't be mapped into process memory
type MappingError struct {
	Index int
	Plane int
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("capture: can't map buffer %d plane %d: %v", e.Index, e.Plane, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// FlowError - publisher can't accept frame, frame is lost
type FlowError struct {
	Err error
}

func (e *FlowError) Error() string {
	return "capture: flow error: " + e.Err.Error()
}

func (e *FlowError) Unwrap() error {
	return e.Err
}
