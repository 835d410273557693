package scpi

import (
	"errors"
	"fmt"
	"net/http"
)

// SCPI status codes. The protocol status is distinct from the transport
// status: server- and hub-detected downstream failures are reported with an
// HTTP 200 and a non-success protocol status, because from the original
// caller's perspective the node answered, it just could not deliver.
const (
	StatusSuccess = 1000

	StatusClientError           = 2000
	StatusClientInvalidParams   = 2001
	StatusClientNotEnoughInfo   = 2002
	StatusClientUnknownLocation = 2003

	StatusServerError               = 3000
	StatusServerUnusableAPI         = 3001
	StatusServerUnsupportedVersion  = 3002
	StatusServerNoMatchingEndpoints = 3003

	StatusHubUnknownReceiver   = 4001
	StatusHubRequestTimeout    = 4002
	StatusHubConnectionProblem = 4003
)

// Error is a typed SCPI protocol error. HTTPStatus is the transport status
// to respond with; Status is the protocol status code embedded in the
// response body.
type Error struct {
	HTTPStatus int
	Status     int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// AsError unwraps err into an *Error, or wraps unknown errors as a generic
// client error so the boundary always has a status pair to render.
func AsError(err error) *Error {
	var scpiErr *Error
	if errors.As(err, &scpiErr) {
		return scpiErr
	}
	return &Error{HTTPStatus: http.StatusBadRequest, Status: StatusClientError, Message: err.Error()}
}

// Client errors: always the caller's fault, never retried.

func ErrClientGeneric(format string, args ...any) *Error {
	return &Error{HTTPStatus: http.StatusBadRequest, Status: StatusClientError, Message: fmt.Sprintf(format, args...)}
}

func ErrInvalidParams(format string, args ...any) *Error {
	return &Error{HTTPStatus: http.StatusBadRequest, Status: StatusClientInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func ErrNotEnoughInfo(format string, args ...any) *Error {
	return &Error{HTTPStatus: http.StatusBadRequest, Status: StatusClientNotEnoughInfo, Message: fmt.Sprintf(format, args...)}
}

func ErrUnknownLocation(format string, args ...any) *Error {
	return &Error{HTTPStatus: http.StatusNotFound, Status: StatusClientUnknownLocation, Message: fmt.Sprintf(format, args...)}
}

// Server errors: the node's own inability to complete a well-formed request.
// Reported with a success-range transport status.

func ErrServerGeneric(format string, args ...any) *Error {
	return &Error{HTTPStatus: http.StatusOK, Status: StatusServerError, Message: fmt.Sprintf(format, args...)}
}

func ErrUnusableAPI(format string, args ...any) *Error {
	return &Error{HTTPStatus: http.StatusOK, Status: StatusServerUnusableAPI, Message: fmt.Sprintf(format, args...)}
}

func ErrUnsupportedVersion(format string, args ...any) *Error {
	return &Error{HTTPStatus: http.StatusOK, Status: StatusServerUnsupportedVersion, Message: fmt.Sprintf(format, args...)}
}

func ErrNoMatchingEndpoints(format string, args ...any) *Error {
	return &Error{HTTPStatus: http.StatusOK, Status: StatusServerNoMatchingEndpoints, Message: fmt.Sprintf(format, args...)}
}

// Hub errors: routing and inter-node failures, terminal for the request.

func ErrUnknownReceiver(format string, args ...any) *Error {
	return &Error{HTTPStatus: http.StatusOK, Status: StatusHubUnknownReceiver, Message: fmt.Sprintf(format, args...)}
}

func ErrRequestTimeout(format string, args ...any) *Error {
	return &Error{HTTPStatus: http.StatusOK, Status: StatusHubRequestTimeout, Message: fmt.Sprintf(format, args...)}
}

func ErrConnectionProblem(format string, args ...any) *Error {
	return &Error{HTTPStatus: http.StatusOK, Status: StatusHubConnectionProblem, Message: fmt.Sprintf(format, args...)}
}
