package gateway

import "net/http"

// ErrorKind classifies a BackendError for retry/circuit-breaker decisions.
type ErrorKind string

const (
	ErrTransport     ErrorKind = "transport"
	ErrTimeout       ErrorKind = "timeout"
	ErrRejected      ErrorKind = "rejected"
	ErrBackendStatus ErrorKind = "backend_status"
	ErrProtocol      ErrorKind = "protocol"
)

// BackendError is the uniform error shape every Client returns (C3).
type BackendError struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
}

func (e *BackendError) Error() string {
	return e.Message
}

func transportError(msg string) *BackendError {
	return &BackendError{Kind: ErrTransport, Message: msg, Retryable: true}
}

func timeoutError(msg string) *BackendError {
	return &BackendError{Kind: ErrTimeout, Message: msg, Retryable: true}
}

func rejectedError(msg string) *BackendError {
	return &BackendError{Kind: ErrRejected, Message: msg, Retryable: false}
}

func protocolError(msg string) *BackendError {
	return &BackendError{Kind: ErrProtocol, Message: msg, Retryable: false}
}

// RequestError is a top-level orchestration failure, mapped to an HTTP
// status code at the router boundary (spec §7).
type RequestError struct {
	Code    string
	Message string
	Status  int
}

func (e *RequestError) Error() string {
	return e.Message
}

func errCircularDependency(route string) *RequestError {
	return &RequestError{Code: "CircularDependency", Message: "circular dependency in route " + route, Status: http.StatusInternalServerError}
}

func errUnknownClient(id string) *RequestError {
	return &RequestError{Code: "UnknownClient", Message: "unknown client_id " + id, Status: http.StatusInternalServerError}
}

func errSubrequestFailed(msg string) *RequestError {
	return &RequestError{Code: "SubrequestFailed", Message: msg, Status: http.StatusBadGateway}
}

func errRouteNotFound() *RequestError {
	return &RequestError{Code: "RouteNotFound", Message: "no route matches", Status: http.StatusNotFound}
}

func errBadRequest(msg string) *RequestError {
	return &RequestError{Code: "BadRequest", Message: msg, Status: http.StatusBadRequest}
}

func errGlobalTimeout() *RequestError {
	return &RequestError{Code: "GlobalTimeout", Message: "request exceeded global timeout", Status: http.StatusGatewayTimeout}
}
