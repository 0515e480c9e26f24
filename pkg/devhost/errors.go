// Package devhost is a development host: the other end of the widget bridge.
// It answers GET_CONTEXT from a context store, routes INVOKE_METHOD calls
// named in the capability manifest to storage, UI and IO handlers, and
// pushes events to widgets over NATS and websockets.
package devhost

import "fmt"

// Error codes carried by HostError. Only Message travels on the wire.
const (
	CodeMethodNotFound  = "METHOD_NOT_FOUND"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeUnsupportedType = "UNSUPPORTED_TYPE"
	CodeUnsupportedSDK  = "UNSUPPORTED_SDK"
	CodeInternal        = "INTERNAL_ERROR"
)

// HostError is a structured dispatch failure.
type HostError struct {
	Code    string
	Message string
}

func (e *HostError) Error() string {
	return e.Code + ": " + e.Message
}

// NewHostError creates a HostError.
func NewHostError(code, format string, args ...interface{}) *HostError {
	return &HostError{Code: code, Message: fmt.Sprintf(format, args...)}
}
