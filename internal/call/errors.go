package call

import (
	"errors"
	"fmt"
)

// ErrTornDown is returned for work attempted after the session was torn down.
var ErrTornDown = errors.New("call session torn down")

// DeviceAcquisitionError means the microphone or camera could not be opened.
type DeviceAcquisitionError struct {
	Op  string
	Err error
}

func (e *DeviceAcquisitionError) Error() string {
	return fmt.Sprintf("device acquisition failed (%s): %v", e.Op, e.Err)
}

func (e *DeviceAcquisitionError) Unwrap() error { return e.Err }

// DescriptionError means creating or applying a local or remote session
// description failed.
type DescriptionError struct {
	Op  string
	Err error
}

func (e *DescriptionError) Error() string {
	return fmt.Sprintf("description error (%s): %v", e.Op, e.Err)
}

func (e *DescriptionError) Unwrap() error { return e.Err }

// CandidateError means a remote connectivity candidate could not be applied.
type CandidateError struct {
	Op  string
	Err error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("candidate error (%s): %v", e.Op, e.Err)
}

func (e *CandidateError) Unwrap() error { return e.Err }
