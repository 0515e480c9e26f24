package correlator

import (
	"errors"
	"fmt"
	"time"
)

// DefaultHostError is the description used when the host sends an ERROR reply
// without one.
const DefaultHostError = "Unknown host error"

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("request timed out")
	// ErrHostReported matches every *HostError.
	ErrHostReported = errors.New("host reported error")
)

// TimeoutError is returned when no reply arrives before the request timeout.
type TimeoutError struct {
	ID    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Request timed out after %s (id=%s)", e.After, e.ID)
}

// Is lets errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// HostError carries the description from a host ERROR reply.
type HostError struct {
	ID      string
	Message string
}

func (e *HostError) Error() string {
	return e.Message
}

// Is lets errors.Is(err, ErrHostReported) match.
func (e *HostError) Is(target error) bool {
	return target == ErrHostReported
}
